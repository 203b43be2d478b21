package handler

import (
	"net/http"
	"net/url"

	"stockwatch/internal/model"
	"stockwatch/internal/service"

	"github.com/rs/zerolog"
)

const categoriesPath = "/api/categories/"

// CategoryHandler handles category-related HTTP requests.
type CategoryHandler struct {
	service service.CategoryService
	logger  zerolog.Logger
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(service service.CategoryService, logger zerolog.Logger) *CategoryHandler {
	return &CategoryHandler{
		service: service,
		logger:  logger.With().Str("handler", "category").Logger(),
	}
}

// Create handles POST /api/categories requests.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	var req model.CreateCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	category, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

// List handles GET /api/categories requests. A name query parameter narrows
// the result to that category.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	if name := r.URL.Query().Get("name"); name != "" {
		h.get(w, r, name)
		return
	}

	categories, err := h.service.List(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// Get handles GET /api/categories/{name} requests.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	name, ok := h.nameFromPath(w, r)
	if !ok {
		return
	}
	h.get(w, r, name)
}

func (h *CategoryHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	category, err := h.service.Get(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, category)
}

// Update handles PATCH /api/categories/{name} requests.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	name, ok := h.nameFromPath(w, r)
	if !ok {
		return
	}

	var req model.UpdateCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	category, err := h.service.Update(r.Context(), name, &req)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, category)
}

// Delete handles DELETE /api/categories/{name} requests.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	name, ok := h.nameFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), name); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// nameFromPath extracts the category name. Names may contain spaces, so the
// segment is taken from the escaped path and unescaped.
func (h *CategoryHandler) nameFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := pathParam(r.URL.EscapedPath(), categoriesPath)
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "category name is required", h.logger)
		return "", false
	}
	return name, true
}
