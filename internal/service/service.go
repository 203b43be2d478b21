package service

import (
	"context"

	"stockwatch/internal/model"
)

// CategoryService defines operations for category management.
type CategoryService interface {
	// Create validates and stores a new category.
	Create(ctx context.Context, req *model.CreateCategoryRequest) (*model.Category, error)

	// Get retrieves a category by name.
	Get(ctx context.Context, name string) (*model.Category, error)

	// List retrieves all categories.
	List(ctx context.Context) ([]model.Category, error)

	// Update applies a partial update and returns the resulting category.
	Update(ctx context.Context, name string, req *model.UpdateCategoryRequest) (*model.Category, error)

	// Delete removes a category.
	Delete(ctx context.Context, name string) error
}

// ProductService defines operations for product and stock management.
type ProductService interface {
	// Create validates the request, checks the category exists and stores a
	// new product under a fresh id.
	Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error)

	// GetByID retrieves a single product by ID.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// List retrieves all products.
	List(ctx context.Context) ([]model.Product, error)

	// StockIn adds stock and clears a stale low-stock alert flag.
	StockIn(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error)

	// StockOut withdraws stock and publishes a low-stock alert once per
	// low-stock episode.
	StockOut(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error)

	// Delete removes a product.
	Delete(ctx context.Context, id string) error
}
