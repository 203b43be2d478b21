package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProductService is a mock implementation of ProductService.
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductService) List(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductService) StockIn(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockMovement), args.Error(1)
}

func (m *MockProductService) StockOut(ctx context.Context, req *model.StockUpdateRequest) (*model.StockMovement, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockMovement), args.Error(1)
}

func (m *MockProductService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func testProduct(id string, quantity int64) *model.Product {
	return &model.Product{
		ID:        id,
		Name:      "Widget",
		Price:     decimal.RequireFromString("9.99"),
		Quantity:  quantity,
		Category:  "Tools",
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestProductHandler_List(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		mockReturn     []model.Product
		mockError      error
		expectedStatus int
		expectService  bool
	}{
		{
			name:           "Success",
			method:         http.MethodGet,
			mockReturn:     []model.Product{*testProduct("P001", 3), *testProduct("P002", 5)},
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:           "Store unavailable",
			method:         http.MethodGet,
			mockError:      model.Unavailable("Failed to list products", errors.New("timeout")),
			expectedStatus: http.StatusServiceUnavailable,
			expectService:  true,
		},
		{
			name:           "Method not allowed",
			method:         http.MethodPut,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProductService)
			if tt.expectService {
				if tt.mockReturn == nil {
					svc.On("List", mock.Anything).Return(nil, tt.mockError)
				} else {
					svc.On("List", mock.Anything).Return(tt.mockReturn, tt.mockError)
				}
			}
			handler := NewProductHandler(svc, zerolog.Nop())

			req := httptest.NewRequest(tt.method, "/api/products", nil)
			w := httptest.NewRecorder()
			handler.List(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var products []model.Product
				require.NoError(t, json.NewDecoder(w.Body).Decode(&products))
				assert.Len(t, products, 2)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestProductHandler_ListWithProductID(t *testing.T) {
	svc := new(MockProductService)
	svc.On("GetByID", mock.Anything, "P001").Return(testProduct("P001", 3), nil)
	handler := NewProductHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/products?productId=P001", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertNotCalled(t, "List", mock.Anything)
}

func TestProductHandler_GetByID(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		mockReturn     *model.Product
		mockError      error
		expectedStatus int
		expectedCode   string
		expectService  bool
	}{
		{
			name:           "Found",
			path:           "/api/products/P001",
			mockReturn:     testProduct("P001", 3),
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:           "Not found",
			path:           "/api/products/P999",
			mockError:      model.ErrProductNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   model.ErrCodeProductNotFound,
			expectService:  true,
		},
		{
			name:           "Missing ID",
			path:           "/api/products/",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProductService)
			if tt.expectService {
				id := strings.TrimPrefix(tt.path, productsPath)
				if tt.mockReturn == nil {
					svc.On("GetByID", mock.Anything, id).Return(nil, tt.mockError)
				} else {
					svc.On("GetByID", mock.Anything, id).Return(tt.mockReturn, tt.mockError)
				}
			}
			handler := NewProductHandler(svc, zerolog.Nop())

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			handler.GetByID(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Error)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestProductHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockReturn     *model.Product
		mockError      error
		expectedStatus int
		expectService  bool
	}{
		{
			name:           "Created",
			body:           `{"name":"Widget","price":"9.99","quantity":3,"category":"Tools"}`,
			mockReturn:     testProduct("P001", 3),
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name:           "Numeric price",
			body:           `{"name":"Widget","price":9.99,"quantity":3,"category":"Tools","overrideThreshold":0}`,
			mockReturn:     testProduct("P001", 3),
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name:           "Unknown category",
			body:           `{"name":"Widget","price":"9.99","quantity":3,"category":"Nope"}`,
			mockError:      model.ErrCategoryNotFound,
			expectedStatus: http.StatusNotFound,
			expectService:  true,
		},
		{
			name:           "Invalid JSON",
			body:           `{"name":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Unknown field",
			body:           `{"name":"Widget","colour":"red"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProductService)
			if tt.expectService {
				if tt.mockReturn == nil {
					svc.On("Create", mock.Anything, mock.AnythingOfType("*model.CreateProductRequest")).Return(nil, tt.mockError)
				} else {
					svc.On("Create", mock.Anything, mock.AnythingOfType("*model.CreateProductRequest")).Return(tt.mockReturn, tt.mockError)
				}
			}
			handler := NewProductHandler(svc, zerolog.Nop())

			req := httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.Create(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestProductHandler_StockOut(t *testing.T) {
	tests := []struct {
		name            string
		method          string
		body            string
		mockReturn      *model.StockMovement
		mockError       error
		expectedStatus  int
		expectedCode    string
		expectedDetails map[string]any
		expectService   bool
	}{
		{
			name:   "Success with alert",
			method: http.MethodPatch,
			body:   `{"productId":"P001","quantity":3}`,
			mockReturn: &model.StockMovement{
				Product:        testProduct("P001", 3),
				Threshold:      5,
				LowStock:       true,
				AlertPublished: true,
			},
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:   "Insufficient stock exposes available quantity",
			method: http.MethodPatch,
			body:   `{"productId":"P001","quantity":30}`,
			mockError: model.ErrStockInsufficient.WithDetails(map[string]any{
				"available_stock": int64(3),
				"requested":       int64(30),
			}),
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    model.ErrCodeInsufficientStock,
			expectedDetails: map[string]any{"available_stock": float64(3), "requested": float64(30)},
			expectService:   true,
		},
		{
			name:           "Storage failure hides diagnostics",
			method:         http.MethodPatch,
			body:           `{"productId":"P001","quantity":1}`,
			mockError:      model.StorageFailure("Failed to update stock", "ValidationException", errors.New("item size too large")),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   model.ErrCodeDatabaseError,
			expectService:  true,
		},
		{
			name:           "Wrong method",
			method:         http.MethodPost,
			body:           `{"productId":"P001","quantity":1}`,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProductService)
			if tt.expectService {
				matcher := mock.MatchedBy(func(r *model.StockUpdateRequest) bool { return r.ProductID == "P001" })
				if tt.mockReturn == nil {
					svc.On("StockOut", mock.Anything, matcher).Return(nil, tt.mockError)
				} else {
					svc.On("StockOut", mock.Anything, matcher).Return(tt.mockReturn, tt.mockError)
				}
			}
			handler := NewProductHandler(svc, zerolog.Nop())

			req := httptest.NewRequest(tt.method, "/api/products/stock-out", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.StockOut(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, resp.Error)
				assert.Equal(t, tt.expectedDetails, resp.Details)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestProductHandler_StockIn(t *testing.T) {
	svc := new(MockProductService)
	svc.On("StockIn", mock.Anything, &model.StockUpdateRequest{ProductID: "P001", Quantity: 4}).
		Return(&model.StockMovement{Product: testProduct("P001", 7), Threshold: 5}, nil)
	handler := NewProductHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPatch, "/api/products/stock-in", strings.NewReader(`{"productId":"P001","quantity":4}`))
	w := httptest.NewRecorder()
	handler.StockIn(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var movement model.StockMovement
	require.NoError(t, json.NewDecoder(w.Body).Decode(&movement))
	assert.Equal(t, int64(7), movement.Product.Quantity)
	assert.False(t, movement.LowStock)
}

func TestProductHandler_Delete(t *testing.T) {
	svc := new(MockProductService)
	svc.On("Delete", mock.Anything, "P001").Return(nil)
	svc.On("Delete", mock.Anything, "P404").Return(model.ErrProductNotFound)
	handler := NewProductHandler(svc, zerolog.Nop())

	w := httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest(http.MethodDelete, "/api/products/P001", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest(http.MethodDelete, "/api/products/P404", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectDetails  bool
	}{
		{name: "not found", err: model.ErrCategoryNotFound, expectedStatus: http.StatusNotFound, expectedCode: model.ErrCodeCategoryNotFound},
		{name: "already exists", err: model.ErrProductAlreadyExists, expectedStatus: http.StatusConflict, expectedCode: model.ErrCodeProductAlreadyExists},
		{name: "invalid", err: model.Invalid("name", "bad"), expectedStatus: http.StatusBadRequest, expectedCode: model.ErrCodeValidation, expectDetails: true},
		{name: "forbidden", err: model.ErrAccessForbidden, expectedStatus: http.StatusForbidden, expectedCode: model.ErrCodeForbidden},
		{name: "storage", err: model.StorageFailure("boom", "X", errors.New("raw")), expectedStatus: http.StatusInternalServerError, expectedCode: model.ErrCodeDatabaseError},
		{name: "unavailable", err: model.Unavailable("later", errors.New("raw")), expectedStatus: http.StatusServiceUnavailable, expectedCode: model.ErrCodeUnavailable},
		{name: "plain error", err: errors.New("raw"), expectedStatus: http.StatusInternalServerError, expectedCode: model.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, tt.err, zerolog.Nop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.NotContains(t, w.Body.String(), "raw")

			resp := decodeError(t, w)
			assert.Equal(t, tt.expectedCode, resp.Error)
			assert.Equal(t, tt.expectDetails, resp.Details != nil)
		})
	}
}
