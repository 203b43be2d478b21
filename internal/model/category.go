package model

import "time"

// Category groups products and supplies their default low-stock threshold.
// Name is unique and immutable.
type Category struct {
	Name             string    `json:"name"`
	DefaultThreshold int64     `json:"defaultThreshold"`
	Description      *string   `json:"description,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CreateCategoryRequest represents the request payload for creating a category.
type CreateCategoryRequest struct {
	Name             string  `json:"name"`
	DefaultThreshold int64   `json:"defaultThreshold"`
	Description      *string `json:"description,omitempty"`
}

// UpdateCategoryRequest is a partial update; nil fields are left untouched.
type UpdateCategoryRequest struct {
	DefaultThreshold *int64  `json:"defaultThreshold,omitempty"`
	Description      *string `json:"description,omitempty"`
}

// IsEmpty reports whether the request sets no field at all.
func (r *UpdateCategoryRequest) IsEmpty() bool {
	return r.DefaultThreshold == nil && r.Description == nil
}
