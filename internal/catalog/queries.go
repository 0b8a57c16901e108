package catalog

import (
	"context"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/validators"
)

// ListCacheTTL is how long a category listing stays cached.
const ListCacheTTL = time.Hour

// DisplayListCategoryQuery lists categories page by page, optionally restricted to one
// tree level. OrderBy maps sort fields (name, slug, level, createdAt) to ASC or DESC.
type DisplayListCategoryQuery struct {
	Pagination Pagination
	Level      *int
	OrderBy    map[string]string
}

// CacheKey implements cqrs.Cacheable.
func (q DisplayListCategoryQuery) CacheKey() string {
	orderBy := q.OrderBy
	if orderBy == nil {
		orderBy = map[string]string{}
	}
	return cache.MustKey("category_list_", map[string]any{
		"pagination": map[string]any{
			"page":         q.Pagination.Page,
			"itemsPerPage": q.Pagination.ItemsPerPage,
		},
		"level":   q.Level,
		"orderBy": orderBy,
	})
}

// CacheTTL implements cqrs.Cacheable.
func (q DisplayListCategoryQuery) CacheTTL() time.Duration {
	return ListCacheTTL
}

// CacheTags implements cqrs.Cacheable.
func (q DisplayListCategoryQuery) CacheTags() []string {
	return []string{TagCategories}
}

// Validate checks pagination bounds and sort fields.
func (q DisplayListCategoryQuery) Validate() error {
	b := validators.NewBuilder()
	if q.Pagination.Page < 1 {
		b.Add(validators.NewValidationResult(false, "page",
			validators.WithValidationCode(validators.ValidationCodeInvalid),
			validators.WithMessage("Page must be 1 or greater.")))
	}
	if q.Pagination.ItemsPerPage < 1 || q.Pagination.ItemsPerPage > MaxItemsPerPage {
		b.Add(validators.NewValidationResult(false, "items_per_page",
			validators.WithValidationCode(validators.ValidationCodeInvalid),
			validators.WithMessage("Items per page must be between 1 and 100.")))
	}
	if q.Level != nil && *q.Level < 0 {
		b.Add(validators.NewValidationResult(false, "level",
			validators.WithValidationCode(validators.ValidationCodeInvalid),
			validators.WithMessage("Level cannot be negative.")))
	}
	for field, dir := range q.OrderBy {
		_, known := orderColumns[field]
		_, dirErr := orderDirection(dir)
		if !known || dirErr != nil {
			b.Add(validators.NewValidationResult(false, "order_by",
				validators.WithValidationCode(validators.ValidationCodeInvalid),
				validators.WithValue(field+" "+dir),
				validators.WithMessage("Unsupported sort order.")))
		}
	}
	return b.Err()
}

// DisplayListCategoryQueryHandler serves DisplayListCategoryQuery.
type DisplayListCategoryQueryHandler struct {
	repo Repository
}

// NewDisplayListCategoryQueryHandler creates the handler.
func NewDisplayListCategoryQueryHandler(repo Repository) *DisplayListCategoryQueryHandler {
	return &DisplayListCategoryQueryHandler{repo: repo}
}

// Handle returns the requested page.
func (h *DisplayListCategoryQueryHandler) Handle(ctx context.Context, q DisplayListCategoryQuery) (CategoryPage, error) {
	items, total, err := h.repo.List(ctx, ListFilter{
		Level:   q.Level,
		OrderBy: q.OrderBy,
		Limit:   q.Pagination.ItemsPerPage,
		Offset:  q.Pagination.Offset(),
	})
	if err != nil {
		return CategoryPage{}, err
	}
	return CategoryPage{
		Items:        items,
		Total:        total,
		Page:         q.Pagination.Page,
		ItemsPerPage: q.Pagination.ItemsPerPage,
	}, nil
}

// DisplayCategoryQuery fetches a single category.
type DisplayCategoryQuery struct {
	ID string
}

// CacheKey implements cqrs.Cacheable.
func (q DisplayCategoryQuery) CacheKey() string {
	return cache.MustKey("category_", map[string]any{"id": q.ID})
}

// CacheTTL implements cqrs.Cacheable.
func (q DisplayCategoryQuery) CacheTTL() time.Duration {
	return ListCacheTTL
}

// CacheTags implements cqrs.Cacheable.
func (q DisplayCategoryQuery) CacheTags() []string {
	return []string{TagCategories, CategoryTag(q.ID)}
}

// Validate requires an id.
func (q DisplayCategoryQuery) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateRequired("id", q.ID)).
		Err()
}

// DisplayCategoryQueryHandler serves DisplayCategoryQuery.
type DisplayCategoryQueryHandler struct {
	repo Repository
}

// NewDisplayCategoryQueryHandler creates the handler.
func NewDisplayCategoryQueryHandler(repo Repository) *DisplayCategoryQueryHandler {
	return &DisplayCategoryQueryHandler{repo: repo}
}

// Handle returns the category or ErrCategoryNotFound.
func (h *DisplayCategoryQueryHandler) Handle(ctx context.Context, q DisplayCategoryQuery) (Category, error) {
	return h.repo.Get(ctx, q.ID)
}
