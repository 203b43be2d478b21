package repository

import (
	"context"
	"errors"

	"stockwatch/internal/kv"
	"stockwatch/internal/model"

	"github.com/rs/zerolog"
)

// categoryRepository implements CategoryRepository on a kv.Backend. All
// categories share one partition, keyed by name.
type categoryRepository struct {
	backend kv.Backend
	logger  zerolog.Logger
}

// NewCategoryRepository creates a new category repository.
func NewCategoryRepository(backend kv.Backend, logger zerolog.Logger) CategoryRepository {
	return &categoryRepository{
		backend: backend,
		logger:  logger.With().Str("repository", "category").Logger(),
	}
}

// Create stores a new category, conditioned on the name being free.
func (r *categoryRepository) Create(ctx context.Context, category *model.Category) error {
	err := r.backend.Put(ctx, kv.Put{
		Item: kv.Item{
			Key:        categoryKey(category.Name),
			Attributes: categoryAttributes(category),
		},
		Conditions: []kv.Condition{kv.NotExists()},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Debug().Str("category", category.Name).Msg("category already exists")
		return model.ErrCategoryAlreadyExists
	}

	r.logger.Error().Err(err).
		Str("category", category.Name).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to create category")
	return unavailable("Failed to create category", err)
}

// Get retrieves a category by name.
func (r *categoryRepository) Get(ctx context.Context, name string) (*model.Category, error) {
	item, err := r.backend.Get(ctx, categoryKey(name))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			r.logger.Debug().Str("category", name).Msg("category not found")
			return nil, model.ErrCategoryNotFound
		}
		r.logger.Error().Err(err).Str("category", name).Msg("failed to get category")
		return nil, backendFailure("Failed to get category", err)
	}

	category, err := decodeCategory(item.Attributes)
	if err != nil {
		r.logger.Error().Err(err).Str("category", name).Msg("failed to decode category")
		return nil, decodeFailure("Failed to read category", err)
	}
	return category, nil
}

// List returns every category.
func (r *categoryRepository) List(ctx context.Context) ([]model.Category, error) {
	items, err := r.backend.Query(ctx, partitionCategory)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list categories")
		return nil, backendFailure("Failed to list categories", err)
	}

	categories := make([]model.Category, 0, len(items))
	for _, item := range items {
		category, err := decodeCategory(item.Attributes)
		if err != nil {
			r.logger.Error().Err(err).Str("sk", item.Key.SK).Msg("failed to decode category")
			return nil, decodeFailure("Failed to read category", err)
		}
		categories = append(categories, *category)
	}

	return categories, nil
}

// Update sets the present fields of update on an existing category.
func (r *categoryRepository) Update(ctx context.Context, name string, update model.UpdateCategoryRequest) error {
	if update.IsEmpty() {
		r.logger.Debug().Str("category", name).Msg("empty category update, skipping write")
		return nil
	}

	set := kv.Attributes{}
	if update.DefaultThreshold != nil {
		set[attrDefaultThreshold] = *update.DefaultThreshold
	}
	if update.Description != nil {
		set[attrDescription] = *update.Description
	}

	err := r.backend.Update(ctx, kv.Update{
		Key:        categoryKey(name),
		Set:        set,
		Conditions: []kv.Condition{kv.Exists()},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Debug().Str("category", name).Msg("category not found for update")
		return model.ErrCategoryNotFound
	}

	r.logger.Error().Err(err).
		Str("category", name).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to update category")
	return unavailable("Failed to update category", err)
}

// Delete removes an existing category. Products referencing it are left
// untouched.
func (r *categoryRepository) Delete(ctx context.Context, name string) error {
	err := r.backend.Delete(ctx, kv.Delete{
		Key:        categoryKey(name),
		Conditions: []kv.Condition{kv.Exists()},
	})
	if err == nil {
		return nil
	}

	if conditionFailed(err) {
		r.logger.Debug().Str("category", name).Msg("category not found for delete")
		return model.ErrCategoryNotFound
	}

	r.logger.Error().Err(err).
		Str("category", name).
		Str("backend_code", kv.ErrorCode(err)).
		Msg("failed to delete category")
	return unavailable("Failed to delete category", err)
}
