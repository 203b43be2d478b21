package service

import (
	"context"
	"time"

	"stockwatch/internal/model"
	"stockwatch/internal/repository"

	"github.com/rs/zerolog"
)

// categoryService implements CategoryService.
type categoryService struct {
	categoryRepo repository.CategoryRepository
	logger       zerolog.Logger
	now          func() time.Time
}

// NewCategoryService creates a new category service.
func NewCategoryService(categoryRepo repository.CategoryRepository, logger zerolog.Logger) CategoryService {
	return &categoryService{
		categoryRepo: categoryRepo,
		logger:       logger.With().Str("service", "category").Logger(),
		now:          time.Now,
	}
}

func (s *categoryService) Create(ctx context.Context, req *model.CreateCategoryRequest) (*model.Category, error) {
	if err := validateCreateCategory(req); err != nil {
		s.logger.Debug().Err(err).Msg("invalid create category request")
		return nil, err
	}

	category := &model.Category{
		Name:             req.Name,
		DefaultThreshold: req.DefaultThreshold,
		Description:      req.Description,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("category", category.Name).
		Int64("default_threshold", category.DefaultThreshold).
		Msg("category created")

	return category, nil
}

func (s *categoryService) Get(ctx context.Context, name string) (*model.Category, error) {
	name = categoryKey(name)
	if name == "" {
		return nil, model.ErrCategoryNotFound
	}
	return s.categoryRepo.Get(ctx, name)
}

func (s *categoryService) List(ctx context.Context) ([]model.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("count", len(categories)).Msg("retrieved categories")
	return categories, nil
}

// Update applies req and reads the category back. An empty request only
// reads.
func (s *categoryService) Update(ctx context.Context, name string, req *model.UpdateCategoryRequest) (*model.Category, error) {
	name = categoryKey(name)
	if name == "" {
		return nil, model.ErrCategoryNotFound
	}
	if err := validateUpdateCategory(req); err != nil {
		return nil, err
	}

	if err := s.categoryRepo.Update(ctx, name, *req); err != nil {
		return nil, err
	}

	category, err := s.categoryRepo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if !req.IsEmpty() {
		s.logger.Info().
			Str("category", name).
			Int64("default_threshold", category.DefaultThreshold).
			Msg("category updated")
	}

	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, name string) error {
	name = categoryKey(name)
	if name == "" {
		return model.ErrCategoryNotFound
	}
	if err := s.categoryRepo.Delete(ctx, name); err != nil {
		return err
	}

	s.logger.Info().Str("category", name).Msg("category deleted")
	return nil
}
