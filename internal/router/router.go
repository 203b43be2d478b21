package router

import (
	"net/http"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/handler"
	"stockwatch/internal/middleware"
	"stockwatch/internal/model"

	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	categoryHandler *handler.CategoryHandler,
	productHandler *handler.ProductHandler,
	verifier auth.Verifier,
	requestTimeout time.Duration,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	managers := middleware.RequireGroups(logger, model.GroupManager)
	anyone := middleware.RequireGroups(logger, model.GroupManager, model.GroupStaff)

	// Health check endpoint (no authentication required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	// Category collection
	mux.Handle("/api/categories", byMethod(map[string]http.Handler{
		http.MethodGet:  managers(http.HandlerFunc(categoryHandler.List)),
		http.MethodPost: managers(http.HandlerFunc(categoryHandler.Create)),
	}))

	// Single category, addressed by name
	mux.Handle("/api/categories/", byMethod(map[string]http.Handler{
		http.MethodGet:    managers(http.HandlerFunc(categoryHandler.Get)),
		http.MethodPatch:  managers(http.HandlerFunc(categoryHandler.Update)),
		http.MethodDelete: managers(http.HandlerFunc(categoryHandler.Delete)),
	}))

	// Product collection
	mux.Handle("/api/products", byMethod(map[string]http.Handler{
		http.MethodGet:  anyone(http.HandlerFunc(productHandler.List)),
		http.MethodPost: managers(http.HandlerFunc(productHandler.Create)),
	}))

	// Stock movements; more specific than the product ID pattern below
	mux.Handle("/api/products/stock-in", managers(http.HandlerFunc(productHandler.StockIn)))
	mux.Handle("/api/products/stock-out", anyone(http.HandlerFunc(productHandler.StockOut)))

	// Single product, addressed by ID
	mux.Handle("/api/products/", byMethod(map[string]http.Handler{
		http.MethodGet:    anyone(http.HandlerFunc(productHandler.GetByID)),
		http.MethodDelete: managers(http.HandlerFunc(productHandler.Delete)),
	}))

	// Apply middleware in order: Recovery -> Logging -> CORS -> Authenticate -> Timeout
	var handler http.Handler = mux
	handler = middleware.Timeout(requestTimeout)(handler)
	handler = middleware.Authenticate(verifier, logger)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}

// byMethod dispatches on the request method. Unlisted methods get a 405
// without reaching the group check.
func byMethod(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.Method]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusMethodNotAllowed)
			w.Write([]byte(`{"error":"` + model.ErrCodeMethodNotAllowed + `","message":"method not allowed"}`))
			return
		}
		h.ServeHTTP(w, r)
	})
}
