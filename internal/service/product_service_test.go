package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/kv/memory"
	"stockwatch/internal/model"
	"stockwatch/internal/recipient"
	"stockwatch/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestProductService(products repository.ProductRepository, categories repository.CategoryRepository, recipients recipient.Directory, publisher *recordingPublisher) *productService {
	svc := NewProductService(products, categories, recipients, publisher, zerolog.Nop()).(*productService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

// stockFixture wires the service to real repositories on an in-memory
// backend.
type stockFixture struct {
	backend    *memory.Backend
	products   repository.ProductRepository
	categories repository.CategoryRepository
	publisher  *recordingPublisher
	service    *productService
}

func newStockFixture(t *testing.T) *stockFixture {
	t.Helper()
	backend := memory.New()
	f := &stockFixture{
		backend:    backend,
		products:   repository.NewProductRepository(backend, zerolog.Nop()),
		categories: repository.NewCategoryRepository(backend, zerolog.Nop()),
		publisher:  &recordingPublisher{},
	}
	f.service = newTestProductService(f.products, f.categories, recipient.NewStaticDirectory("boss@example.com"), f.publisher)
	return f
}

func (f *stockFixture) category(t *testing.T, name string, threshold int64) {
	t.Helper()
	require.NoError(t, f.categories.Create(context.Background(), &model.Category{
		Name:             name,
		DefaultThreshold: threshold,
		CreatedAt:        fixedNow,
	}))
}

func (f *stockFixture) product(t *testing.T, id, category string, quantity int64, override *int64) {
	t.Helper()
	require.NoError(t, f.products.Create(context.Background(), &model.Product{
		ID:                id,
		Name:              "Widget " + id,
		Price:             decimal.RequireFromString("4.99"),
		Quantity:          quantity,
		Category:          category,
		OverrideThreshold: override,
		CreatedAt:         fixedNow,
	}))
}

func (f *stockFixture) get(t *testing.T, id string) *model.Product {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestProductService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		products := new(MockProductRepository)
		categories := new(MockCategoryRepository)
		categories.On("Get", ctx, "Tools").Return(&model.Category{Name: "Tools", DefaultThreshold: 5}, nil)
		products.On("Create", ctx, mock.MatchedBy(func(p *model.Product) bool {
			return p.ID == "generated-id" && !p.LowStockAlertSent && p.Quantity == 1
		})).Return(nil)

		svc := newTestProductService(products, categories, nil, nil)
		svc.newID = func() string { return "generated-id" }

		product, err := svc.Create(ctx, &model.CreateProductRequest{
			Name:     " Hammer ",
			Price:    decimal.RequireFromString("12.50"),
			Quantity: 1,
			Category: "Tools",
		})
		require.NoError(t, err)
		assert.Equal(t, "generated-id", product.ID)
		assert.Equal(t, "Hammer", product.Name)
		assert.Equal(t, fixedNow, product.CreatedAt)
		assert.False(t, product.LowStockAlertSent)

		products.AssertExpectations(t)
		categories.AssertExpectations(t)
	})

	t.Run("unknown category", func(t *testing.T) {
		products := new(MockProductRepository)
		categories := new(MockCategoryRepository)
		categories.On("Get", ctx, "Nope").Return(nil, model.ErrCategoryNotFound)

		svc := newTestProductService(products, categories, nil, nil)

		_, err := svc.Create(ctx, &model.CreateProductRequest{Name: "Hammer", Quantity: 1, Category: "Nope"})
		assert.ErrorIs(t, err, model.ErrCategoryNotFound)
		products.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("invalid request never reaches the store", func(t *testing.T) {
		products := new(MockProductRepository)
		categories := new(MockCategoryRepository)
		svc := newTestProductService(products, categories, nil, nil)

		_, err := svc.Create(ctx, &model.CreateProductRequest{Name: "Hammer", Quantity: -1, Category: "Tools"})
		assert.ErrorIs(t, err, model.ErrInvalid)
		assert.Empty(t, products.Calls)
		assert.Empty(t, categories.Calls)
	})

	t.Run("ids are unique", func(t *testing.T) {
		f := newStockFixture(t)
		f.category(t, "Tools", 5)

		a, err := f.service.Create(ctx, &model.CreateProductRequest{Name: "A", Quantity: 1, Category: "Tools"})
		require.NoError(t, err)
		b, err := f.service.Create(ctx, &model.CreateProductRequest{Name: "B", Quantity: 1, Category: "Tools"})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("low initial quantity does not alert", func(t *testing.T) {
		f := newStockFixture(t)
		f.category(t, "Tools", 5)

		product, err := f.service.Create(ctx, &model.CreateProductRequest{Name: "A", Quantity: 0, Category: "Tools"})
		require.NoError(t, err)
		assert.Empty(t, f.publisher.published())
		assert.False(t, f.get(t, product.ID).LowStockAlertSent)
	})
}

func TestProductService_GetByID(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductRepository)
	products.On("GetByID", ctx, "p-1").Return(&model.Product{ID: "p-1"}, nil)
	products.On("GetByID", ctx, "missing").Return(nil, model.ErrProductNotFound)

	svc := newTestProductService(products, nil, nil, nil)

	product, err := svc.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", product.ID)

	_, err = svc.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrProductNotFound)

	_, err = svc.GetByID(ctx, "")
	assert.ErrorIs(t, err, model.ErrProductNotFound)
	products.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestProductService_List(t *testing.T) {
	ctx := context.Background()
	storeErr := model.Unavailable("Failed to list products", errors.New("timeout"))

	tests := []struct {
		name        string
		mockReturn  []model.Product
		mockError   error
		expectError bool
	}{
		{name: "products", mockReturn: []model.Product{{ID: "p-1"}, {ID: "p-2"}}},
		{name: "empty", mockReturn: []model.Product{}},
		{name: "store error", mockError: storeErr, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := new(MockProductRepository)
			if tt.mockReturn == nil {
				products.On("List", ctx).Return(nil, tt.mockError)
			} else {
				products.On("List", ctx).Return(tt.mockReturn, tt.mockError)
			}
			svc := newTestProductService(products, nil, nil, nil)

			got, err := svc.List(ctx)
			if tt.expectError {
				assert.ErrorIs(t, err, model.ErrUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mockReturn, got)
		})
	}
}

func TestProductService_StockOutInsufficientMakesNoMutation(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductRepository)
	categories := new(MockCategoryRepository)
	products.On("GetByID", ctx, "p-1").Return(&model.Product{ID: "p-1", Quantity: 2, Category: "Tools"}, nil)
	categories.On("Get", ctx, "Tools").Return(&model.Category{Name: "Tools", DefaultThreshold: 5}, nil)

	svc := newTestProductService(products, categories, nil, nil)

	_, err := svc.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 3})

	var de *model.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, model.ErrCodeInsufficientStock, de.Code)
	assert.Equal(t, int64(2), de.Details["available_stock"])
	products.AssertNotCalled(t, "StockOut", mock.Anything, mock.Anything, mock.Anything)
	products.AssertNotCalled(t, "SetLowStockAlertFlag", mock.Anything, mock.Anything, mock.Anything)
}

func TestProductService_StockOutAgainstStore(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 3, nil)
	ctx := context.Background()

	_, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 4})
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
	assert.Equal(t, int64(3), f.get(t, "p-1").Quantity)

	_, err = f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, model.ErrProductNotFound)
}

func TestProductService_LowStockEpisode(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 6, nil)
	ctx := context.Background()

	movement, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), movement.Product.Quantity)
	assert.True(t, movement.LowStock)
	assert.True(t, movement.AlertPublished)
	assert.True(t, f.get(t, "p-1").LowStockAlertSent)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, model.LowStockEvent{
		EventType:       model.EventTypeLowStock,
		ProductID:       "p-1",
		ProductName:     "Widget p-1",
		Category:        "Tools",
		CurrentQuantity: 3,
		Threshold:       5,
		Recipients:      []string{"boss@example.com"},
	}, events[0])

	movement, err = f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, movement.LowStock)
	assert.False(t, movement.AlertPublished)
	assert.Len(t, f.publisher.published(), 1, "still in the same episode")
	assert.True(t, f.get(t, "p-1").LowStockAlertSent)
}

func TestProductService_EpisodeEndsOnRecovery(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 6, nil)
	ctx := context.Background()

	_, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, f.publisher.published(), 1)

	movement, err := f.service.StockIn(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(14), movement.Product.Quantity)
	assert.False(t, movement.LowStock)
	assert.False(t, movement.Product.LowStockAlertSent)
	assert.False(t, f.get(t, "p-1").LowStockAlertSent)

	_, err = f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 10})
	require.NoError(t, err)
	assert.Len(t, f.publisher.published(), 2, "a new episode alerts again")
}

func TestProductService_StockInWhileLowKeepsFlag(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 6, nil)
	ctx := context.Background()

	_, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 5})
	require.NoError(t, err)

	movement, err := f.service.StockIn(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	assert.True(t, movement.LowStock)
	assert.True(t, f.get(t, "p-1").LowStockAlertSent)
	assert.Len(t, f.publisher.published(), 1, "stock in never publishes")
}

func TestProductService_OverrideThresholdTakesPrecedence(t *testing.T) {
	tests := []struct {
		name          string
		override      *int64
		initial       int64
		withdraw      int64
		expectLow     bool
		expectPublish int
	}{
		{name: "override zero beats default 100", override: ptr(int64(0)), initial: 51, withdraw: 1, expectLow: false},
		{name: "default applies without override", override: nil, initial: 51, withdraw: 1, expectLow: true, expectPublish: 1},
		{name: "override reached", override: ptr(int64(0)), initial: 1, withdraw: 1, expectLow: true, expectPublish: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStockFixture(t)
			f.category(t, "Bulk", 100)
			f.product(t, "p-1", "Bulk", tt.initial, tt.override)

			movement, err := f.service.StockOut(context.Background(), &model.StockUpdateRequest{ProductID: "p-1", Quantity: tt.withdraw})
			require.NoError(t, err)
			assert.Equal(t, tt.expectLow, movement.LowStock)
			assert.Len(t, f.publisher.published(), tt.expectPublish)
		})
	}
}

func TestProductService_MissingCategoryFallsBackToZeroThreshold(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 3, nil)
	require.NoError(t, f.categories.Delete(context.Background(), "Tools"))

	movement, err := f.service.StockOut(context.Background(), &model.StockUpdateRequest{ProductID: "p-1", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(0), movement.Threshold)
	assert.False(t, movement.LowStock)

	movement, err = f.service.StockOut(context.Background(), &model.StockUpdateRequest{ProductID: "p-1", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, movement.LowStock)
	assert.Len(t, f.publisher.published(), 1)
}

func TestProductService_ConcurrentStockOutsPublishOnce(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 10)
	f.product(t, "p-1", "Tools", 30, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, model.ErrInsufficientStock)
	}

	assert.Equal(t, 30, succeeded)
	assert.Equal(t, int64(0), f.get(t, "p-1").Quantity)
	assert.Len(t, f.publisher.published(), 1)
}

func TestProductService_AlertFailures(t *testing.T) {
	ctx := context.Background()
	lookupErr := errors.New("ResourceNotFoundException")
	publishErr := errors.New("AuthorizationError")

	tests := []struct {
		name          string
		recipientsErr error
		publishErr    error
		expectedCause error
	}{
		{name: "recipient lookup fails", recipientsErr: lookupErr, expectedCause: lookupErr},
		{name: "publish fails", publishErr: publishErr, expectedCause: publishErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStockFixture(t)
			f.category(t, "Tools", 5)
			f.product(t, "p-1", "Tools", 6, nil)

			directory := new(MockDirectory)
			if tt.recipientsErr != nil {
				directory.On("Managers", mock.Anything).Return(nil, tt.recipientsErr)
			} else {
				directory.On("Managers", mock.Anything).Return([]string{"boss@example.com"}, nil)
			}
			f.service.recipients = directory
			f.publisher.err = tt.publishErr

			_, err := f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 3})
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrStorage)
			assert.ErrorIs(t, err, tt.expectedCause)

			var de *model.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, model.ErrCodeAlertFailed, de.Code)

			product := f.get(t, "p-1")
			assert.Equal(t, int64(3), product.Quantity, "stock out is not rolled back")
			assert.True(t, product.LowStockAlertSent, "flag stays set so the episode is not alerted twice")
		})
	}
}

func TestProductService_ClearFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductRepository)
	categories := new(MockCategoryRepository)

	products.On("StockIn", ctx, "p-1", int64(10)).Return(nil)
	products.On("GetByID", ctx, "p-1").Return(&model.Product{ID: "p-1", Quantity: 12, Category: "Tools", LowStockAlertSent: true}, nil)
	categories.On("Get", ctx, "Tools").Return(&model.Category{Name: "Tools", DefaultThreshold: 5}, nil)
	products.On("SetLowStockAlertFlag", ctx, "p-1", false).Return(false, model.Unavailable("Failed to update alert flag", errors.New("throttled")))

	svc := newTestProductService(products, categories, nil, nil)

	movement, err := svc.StockIn(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 10})
	require.NoError(t, err)
	assert.True(t, movement.Product.LowStockAlertSent)
	products.AssertExpectations(t)
}

func TestProductService_StockInMissingProduct(t *testing.T) {
	f := newStockFixture(t)

	_, err := f.service.StockIn(context.Background(), &model.StockUpdateRequest{ProductID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, model.ErrProductNotFound)
	assert.Equal(t, 0, f.backend.Len())
}

func TestProductService_StockInBeyondMaximum(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		add      int64
		wantErr  bool
	}{
		{name: "fills to the maximum", quantity: math.MaxInt64 - 10, add: 10, wantErr: false},
		{name: "one past the maximum", quantity: math.MaxInt64 - 10, add: 11, wantErr: true},
		{name: "far past the maximum", quantity: math.MaxInt64 - 1, add: math.MaxInt64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStockFixture(t)
			f.category(t, "Tools", 5)
			f.product(t, "p-1", "Tools", tt.quantity, nil)
			ctx := context.Background()

			movement, err := f.service.StockIn(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: tt.add})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrInvalid)
				assert.Equal(t, tt.quantity, f.get(t, "p-1").Quantity, "rejected stock in changes nothing")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(math.MaxInt64), movement.Product.Quantity)
			assert.False(t, movement.LowStock)

			_, err = f.service.StockOut(ctx, &model.StockUpdateRequest{ProductID: "p-1", Quantity: 1})
			require.NoError(t, err)
			assert.Equal(t, int64(math.MaxInt64-1), f.get(t, "p-1").Quantity)
		})
	}
}

func TestProductService_Delete(t *testing.T) {
	f := newStockFixture(t)
	f.category(t, "Tools", 5)
	f.product(t, "p-1", "Tools", 6, nil)
	ctx := context.Background()

	require.NoError(t, f.service.Delete(ctx, "p-1"))
	assert.ErrorIs(t, f.service.Delete(ctx, "p-1"), model.ErrProductNotFound)
	assert.ErrorIs(t, f.service.Delete(ctx, ""), model.ErrProductNotFound)
}
