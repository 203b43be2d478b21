package service

import (
	"context"
	"errors"
	"math"
	"time"

	"stockwatch/internal/model"
	"stockwatch/internal/notify"
	"stockwatch/internal/recipient"
	"stockwatch/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// productService implements ProductService. It holds no locks: concurrent
// withdrawals are serialised by the store's conditional writes and alert
// deduplication by the compare-and-set on the alert flag.
type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	recipients   recipient.Directory
	publisher    notify.Publisher
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() string
}

// NewProductService creates a new product service.
func NewProductService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
	recipients recipient.Directory,
	publisher notify.Publisher,
	logger zerolog.Logger,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		recipients:   recipients,
		publisher:    publisher,
		logger:       logger.With().Str("service", "product").Logger(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Create stores a new product. The initial quantity may already be below
// threshold; alerts only follow a stock-out.
func (s *productService) Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error) {
	if err := validateCreateProduct(req); err != nil {
		s.logger.Debug().Err(err).Msg("invalid create product request")
		return nil, err
	}

	if _, err := s.categoryRepo.Get(ctx, req.Category); err != nil {
		s.logger.Debug().Err(err).Str("category", req.Category).Msg("category check failed")
		return nil, err
	}

	product := &model.Product{
		ID:                s.newID(),
		Name:              req.Name,
		Price:             req.Price,
		Quantity:          req.Quantity,
		Category:          req.Category,
		OverrideThreshold: req.OverrideThreshold,
		LowStockAlertSent: false,
		CreatedAt:         s.now().UTC(),
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", product.ID).
		Str("category", product.Category).
		Int64("quantity", product.Quantity).
		Msg("product created")

	return product, nil
}

// GetByID retrieves a single product by ID.
func (s *productService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		s.logger.Warn().Msg("product ID is empty")
		return nil, model.ErrProductNotFound
	}
	return s.productRepo.GetByID(ctx, id)
}

// List retrieves all products.
func (s *productService) List(ctx context.Context) ([]model.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("count", len(products)).Msg("retrieved products")
	return products, nil
}

// StockIn adds stock, refusing additions that would overflow the quantity. If
// the product recovers above its threshold while the alert flag is set, the
// flag is cleared so the next episode alerts again.
func (s *productService) StockIn(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error) {
	if err := validateStockUpdate(req); err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if req.Quantity > math.MaxInt64-product.Quantity {
		return nil, model.Invalid("quantity", "Quantity would exceed the maximum stock level").WithDetails(map[string]any{
			"field":           "quantity",
			"available_stock": product.Quantity,
			"requested":       req.Quantity,
		})
	}

	if err := s.productRepo.StockIn(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, err
	}

	product, err = s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", req.ProductID).Msg("failed to re-read product after stock in")
		return nil, err
	}

	category, err := s.categoryOf(ctx, product)
	if err != nil {
		return nil, err
	}

	threshold := product.EffectiveThreshold(category)
	movement := &model.StockMovement{
		Product:   product,
		Threshold: threshold,
		LowStock:  product.IsLowStock(category),
	}
	if !movement.LowStock && product.LowStockAlertSent {
		s.clearAlert(ctx, product)
	}

	s.logger.Info().
		Str("product_id", product.ID).
		Int64("added", req.Quantity).
		Int64("quantity", product.Quantity).
		Msg("stock in")

	return movement, nil
}

// StockOut withdraws stock and drives the low-stock alert.
//
// The quantity check against the read product only saves a round trip; the
// store's conditional decrement is what prevents overselling. Once the
// decrement commits it is never undone: failures while alerting are returned
// to the caller with the new quantity already durable.
func (s *productService) StockOut(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error) {
	if err := validateStockUpdate(req); err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	category, err := s.categoryOf(ctx, product)
	if err != nil {
		return nil, err
	}

	if req.Quantity > product.Quantity {
		s.logger.Debug().
			Str("product_id", product.ID).
			Int64("available", product.Quantity).
			Int64("requested", req.Quantity).
			Msg("insufficient stock")
		return nil, model.ErrStockInsufficient.WithDetails(map[string]any{
			"available_stock": product.Quantity,
			"requested":       req.Quantity,
		})
	}

	threshold := product.EffectiveThreshold(category)

	if err := s.productRepo.StockOut(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, err
	}

	product, err = s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", req.ProductID).Msg("failed to re-read product after stock out")
		return nil, err
	}

	s.logger.Info().
		Str("product_id", product.ID).
		Int64("removed", req.Quantity).
		Int64("quantity", product.Quantity).
		Int64("threshold", threshold).
		Msg("stock out")

	movement := &model.StockMovement{
		Product:   product,
		Threshold: threshold,
		LowStock:  product.IsLowStock(category),
	}

	if !movement.LowStock {
		if product.LowStockAlertSent {
			s.clearAlert(ctx, product)
		}
		return movement, nil
	}

	published, err := s.raiseAlert(ctx, product, threshold)
	if err != nil {
		return nil, err
	}
	movement.AlertPublished = published

	return movement, nil
}

// Delete removes a product.
func (s *productService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.ErrProductNotFound
	}
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("product_id", id).Msg("product deleted")
	return nil
}

// categoryOf returns the product's category. A product whose category has
// been deleted falls back to a zero default threshold.
func (s *productService) categoryOf(ctx context.Context, product *model.Product) (*model.Category, error) {
	category, err := s.categoryRepo.Get(ctx, product.Category)
	if err == nil {
		return category, nil
	}
	if errors.Is(err, model.ErrCategoryNotFound) {
		s.logger.Warn().
			Str("product_id", product.ID).
			Str("category", product.Category).
			Msg("product category is missing, using zero default threshold")
		return &model.Category{Name: product.Category}, nil
	}
	return nil, err
}

// raiseAlert flips the alert flag and, if this call flipped it, publishes a
// low-stock event. The flag is set before publishing, so a failure between
// the two under-notifies rather than notifying twice.
func (s *productService) raiseAlert(ctx context.Context, product *model.Product, threshold int64) (bool, error) {
	if product.LowStockAlertSent {
		s.logger.Debug().Str("product_id", product.ID).Msg("low stock alert already sent for this episode")
		return false, nil
	}

	changed, err := s.productRepo.SetLowStockAlertFlag(ctx, product.ID, true)
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Debug().Str("product_id", product.ID).Msg("low stock alert flag set by a concurrent request")
		return false, nil
	}
	product.LowStockAlertSent = true

	recipients, err := s.recipients.Managers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to resolve low stock alert recipients")
		return false, alertFailure("Failed to list managers", product.ID, err)
	}

	event := &model.LowStockEvent{
		EventType:       model.EventTypeLowStock,
		ProductID:       product.ID,
		ProductName:     product.Name,
		Category:        product.Category,
		CurrentQuantity: product.Quantity,
		Threshold:       threshold,
		Recipients:      recipients,
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to publish low stock alert")
		return false, alertFailure("Failed to publish low stock alert", product.ID, err)
	}

	s.logger.Info().
		Str("product_id", product.ID).
		Int64("quantity", product.Quantity).
		Int64("threshold", threshold).
		Int("recipients", len(recipients)).
		Msg("low stock alert published")

	return true, nil
}

// clearAlert ends a low-stock episode. A failure leaves the flag set and is
// only logged; the stock change it follows has already committed.
func (s *productService) clearAlert(ctx context.Context, product *model.Product) {
	changed, err := s.productRepo.SetLowStockAlertFlag(ctx, product.ID, false)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", product.ID).Msg("failed to clear low stock alert flag")
		return
	}
	product.LowStockAlertSent = false
	if changed {
		s.logger.Info().Str("product_id", product.ID).Msg("low stock episode ended")
	}
}

func alertFailure(message, productID string, err error) *model.DomainError {
	return &model.DomainError{
		Kind:    model.KindStorage,
		Code:    model.ErrCodeAlertFailed,
		Message: message,
		Details: map[string]any{"product_id": productID, "error": err.Error()},
		Err:     err,
	}
}
