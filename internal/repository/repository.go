package repository

import (
	"context"

	"stockwatch/internal/model"
)

// CategoryRepository defines the interface for category data access operations.
type CategoryRepository interface {
	// Create stores a new category. Returns model.ErrCategoryAlreadyExists when
	// the name is taken.
	Create(ctx context.Context, category *model.Category) error

	// Get retrieves a category by name.
	Get(ctx context.Context, name string) (*model.Category, error)

	// List returns every category in backend order.
	List(ctx context.Context) ([]model.Category, error)

	// Update applies a partial update. An empty update is a no-op that never
	// reaches the backend.
	Update(ctx context.Context, name string, update model.UpdateCategoryRequest) error

	// Delete removes a category.
	Delete(ctx context.Context, name string) error
}

// ProductRepository defines the interface for product data access operations.
// Every write touches the primary and the index record in one transaction.
type ProductRepository interface {
	// Create stores a new product.
	Create(ctx context.Context, product *model.Product) error

	// GetByID reads the primary record of a product.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// List scans the product index partition.
	List(ctx context.Context) ([]model.Product, error)

	// StockIn adds quantity to the product.
	StockIn(ctx context.Context, id string, quantity int64) error

	// StockOut subtracts quantity from the product, failing with
	// model.ErrStockInsufficient rather than going negative.
	StockOut(ctx context.Context, id string, quantity int64) error

	// SetLowStockAlertFlag sets the alert flag to sent. It reports whether
	// this call changed the flag; false means it already held that value.
	SetLowStockAlertFlag(ctx context.Context, id string, sent bool) (bool, error)

	// Delete removes both records of a product.
	Delete(ctx context.Context, id string) error
}
