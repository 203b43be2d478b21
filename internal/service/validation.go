package service

import (
	"regexp"
	"strings"

	"stockwatch/internal/model"
)

const (
	minCategoryNameLength = 2
	maxCategoryNameLength = 50
)

var (
	categoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9 _-]{0,48}[A-Za-z0-9])$`)
	digitsOnly          = regexp.MustCompile(`^[0-9]+$`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// normaliseCategoryName trims name, checks it and collapses internal
// whitespace runs to a single space.
func normaliseCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if len(name) < minCategoryNameLength || len(name) > maxCategoryNameLength {
		return "", model.Invalid("name", "Category name must be between 2 and 50 characters")
	}
	if !categoryNamePattern.MatchString(name) {
		return "", model.Invalid("name", "Category name must contain only letters, numbers, spaces, '-' or '_' and must start and end with a letter or number")
	}
	if digitsOnly.MatchString(name) {
		return "", model.Invalid("name", "Category name cannot be only numbers")
	}

	return whitespaceRun.ReplaceAllString(name, " "), nil
}

// categoryKey folds a category name the way normaliseCategoryName stores it,
// without validating it.
func categoryKey(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}

func validateCreateCategory(req *model.CreateCategoryRequest) error {
	if req == nil {
		return model.Invalid("body", "Request body is required")
	}
	name, err := normaliseCategoryName(req.Name)
	if err != nil {
		return err
	}
	req.Name = name

	if req.DefaultThreshold < 0 {
		return model.Invalid("defaultThreshold", "Default threshold must not be negative")
	}
	return nil
}

func validateUpdateCategory(req *model.UpdateCategoryRequest) error {
	if req == nil {
		return model.Invalid("body", "Request body is required")
	}
	if req.DefaultThreshold != nil && *req.DefaultThreshold < 0 {
		return model.Invalid("defaultThreshold", "Default threshold must not be negative")
	}
	return nil
}

func validateCreateProduct(req *model.CreateProductRequest) error {
	if req == nil {
		return model.Invalid("body", "Request body is required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = categoryKey(req.Category)

	switch {
	case req.Name == "":
		return model.Invalid("name", "Product name is required")
	case req.Price.IsNegative():
		return model.Invalid("price", "Price must not be negative")
	case req.Quantity < 0:
		return model.Invalid("quantity", "Quantity must not be negative")
	case req.Category == "":
		return model.Invalid("category", "Category is required")
	case req.OverrideThreshold != nil && *req.OverrideThreshold < 0:
		return model.Invalid("overrideThreshold", "Override threshold must not be negative")
	}
	return nil
}

func validateStockUpdate(req *model.StockUpdateRequest) error {
	if req == nil {
		return model.Invalid("body", "Request body is required")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return model.Invalid("productId", "Product ID is required")
	}
	if req.Quantity <= 0 {
		return model.Invalid("quantity", "Quantity must be greater than zero")
	}
	return nil
}
