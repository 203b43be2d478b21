package repository

import (
	"context"
	"errors"

	"stockwatch/internal/kv"
	"stockwatch/internal/model"

	"github.com/rs/zerolog"
)

// productRepository implements ProductRepository on a kv.Backend. Each
// product is kept as a primary record under its own partition and an index
// record in the shared products partition; both change in one transaction.
type productRepository struct {
	backend kv.Backend
	logger  zerolog.Logger
}

// NewProductRepository creates a new product repository.
func NewProductRepository(backend kv.Backend, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		backend: backend,
		logger:  logger.With().Str("repository", "product").Logger(),
	}
}

// Create writes both records, conditioned on the primary record being absent.
func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	attrs := productAttributes(product)

	err := r.backend.TransactWrite(ctx, []kv.TransactItem{
		{Put: &kv.Put{
			Item:       kv.Item{Key: productKey(product.ID), Attributes: attrs},
			Conditions: []kv.Condition{kv.NotExists()},
		}},
		{Put: &kv.Put{
			Item: kv.Item{Key: productIndexKey(product.ID), Attributes: attrs},
		}},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Warn().Str("product_id", product.ID).Msg("product id already exists")
		return model.ErrProductAlreadyExists
	}

	r.logger.Error().Err(err).
		Str("product_id", product.ID).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to create product")
	return backendFailure("Failed to create product", err)
}

// GetByID reads the primary record.
func (r *productRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	item, err := r.backend.Get(ctx, productKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			r.logger.Debug().Str("product_id", id).Msg("product not found")
			return nil, model.ErrProductNotFound
		}
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to get product")
		return nil, backendFailure("Failed to get product", err)
	}

	product, err := decodeProduct(item.Attributes)
	if err != nil {
		r.logger.Error().Err(err).Str("product_id", id).Msg("failed to decode product")
		return nil, decodeFailure("Failed to read product", err)
	}
	return product, nil
}

// List scans the index partition.
func (r *productRepository) List(ctx context.Context) ([]model.Product, error) {
	items, err := r.backend.Query(ctx, partitionProducts)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list products")
		return nil, backendFailure("Failed to list products", err)
	}

	products := make([]model.Product, 0, len(items))
	for _, item := range items {
		product, err := decodeProduct(item.Attributes)
		if err != nil {
			r.logger.Error().Err(err).Str("sk", item.Key.SK).Msg("failed to decode product")
			return nil, decodeFailure("Failed to read product", err)
		}
		products = append(products, *product)
	}

	return products, nil
}

// StockIn increments both records. Only the primary record gates the write.
func (r *productRepository) StockIn(ctx context.Context, id string, quantity int64) error {
	err := r.backend.TransactWrite(ctx, []kv.TransactItem{
		{Update: &kv.Update{
			Key:        productKey(id),
			Add:        map[string]int64{attrQuantity: quantity},
			Conditions: []kv.Condition{kv.Exists()},
		}},
		{Update: &kv.Update{
			Key: productIndexKey(id),
			Add: map[string]int64{attrQuantity: quantity},
		}},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Debug().Str("product_id", id).Msg("product not found for stock in")
		return model.ErrProductNotFound
	}

	r.logger.Error().Err(err).
		Str("product_id", id).
		Int64("quantity", quantity).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to stock in")
	return backendFailure("Failed to update stock", err)
}

// StockOut decrements both records, conditioned on the primary record
// holding at least quantity.
func (r *productRepository) StockOut(ctx context.Context, id string, quantity int64) error {
	err := r.backend.TransactWrite(ctx, []kv.TransactItem{
		{Update: &kv.Update{
			Key:        productKey(id),
			Add:        map[string]int64{attrQuantity: -quantity},
			Conditions: []kv.Condition{kv.Exists(), kv.AtLeast(attrQuantity, quantity)},
		}},
		{Update: &kv.Update{
			Key: productIndexKey(id),
			Add: map[string]int64{attrQuantity: -quantity},
		}},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		// The condition covers both existence and quantity; a read tells
		// which one failed.
		current, getErr := r.GetByID(ctx, id)
		if errors.Is(getErr, model.ErrProductNotFound) {
			return model.ErrProductNotFound
		}
		r.logger.Warn().
			Str("product_id", id).
			Int64("requested", quantity).
			Msg("stock out rejected, insufficient stock")
		if getErr != nil {
			return model.ErrStockInsufficient
		}
		return model.ErrStockInsufficient.WithDetails(map[string]any{
			"available_stock": current.Quantity,
			"requested":       quantity,
		})
	}

	r.logger.Error().Err(err).
		Str("product_id", id).
		Int64("quantity", quantity).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to stock out")
	return backendFailure("Failed to update stock", err)
}

// SetLowStockAlertFlag sets the flag on both records when it differs from
// sent.
func (r *productRepository) SetLowStockAlertFlag(ctx context.Context, id string, sent bool) (bool, error) {
	err := r.backend.TransactWrite(ctx, []kv.TransactItem{
		{Update: &kv.Update{
			Key:        productKey(id),
			Set:        kv.Attributes{attrAlertSent: sent},
			Conditions: []kv.Condition{kv.Exists(), kv.NotEqual(attrAlertSent, sent)},
		}},
		{Update: &kv.Update{
			Key: productIndexKey(id),
			Set: kv.Attributes{attrAlertSent: sent},
		}},
	})
	if err == nil {
		return true, nil
	}

	if conditionFailed(err) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return false, getErr
		}
		r.logger.Debug().
			Str("product_id", id).
			Bool("sent", sent).
			Msg("alert flag already set to requested value")
		return false, nil
	}

	r.logger.Error().Err(err).
		Str("product_id", id).
		Bool("sent", sent).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to set low stock alert flag")
	return false, backendFailure("Failed to update alert flag", err)
}

// Delete removes both records.
func (r *productRepository) Delete(ctx context.Context, id string) error {
	err := r.backend.TransactWrite(ctx, []kv.TransactItem{
		{Delete: &kv.Delete{
			Key:        productKey(id),
			Conditions: []kv.Condition{kv.Exists()},
		}},
		{Delete: &kv.Delete{
			Key: productIndexKey(id),
		}},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Debug().Str("product_id", id).Msg("product not found for delete")
		return model.ErrProductNotFound
	}

	r.logger.Error().Err(err).
		Str("product_id", id).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to delete product")
	return backendFailure("Failed to delete product", err)
}
