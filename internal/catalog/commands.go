package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/idgen"
	"github.com/plaenen/shopcore/pkg/validators"
)

// CreateCategoryCommand adds a category under ParentID, or a root category when
// ParentID is empty.
type CreateCategoryCommand struct {
	Name     string
	ParentID string
}

// Validate checks the name.
func (c CreateCategoryCommand) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateRequired("name", c.Name)).
		Add(validators.ValidateStringLength("name", normalizeName(c.Name), 2, 120))
	if Slugify(c.Name) == "" {
		b.Add(validators.NewValidationResult(false, "name",
			validators.WithValue(c.Name),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
			validators.WithMessage("Name must contain letters or digits.")))
	}
	return b.Err()
}

// CreateCategoryCommandHandler serves CreateCategoryCommand.
type CreateCategoryCommandHandler struct {
	repo  Repository
	cache cache.Invalidator
	now   func() time.Time
}

// NewCreateCategoryCommandHandler creates the handler. Listings cached under
// TagCategories are invalidated after each successful insert.
func NewCreateCategoryCommandHandler(repo Repository, invalidator cache.Invalidator) *CreateCategoryCommandHandler {
	return &CreateCategoryCommandHandler{repo: repo, cache: invalidator, now: time.Now}
}

// Handle creates the category and returns it.
func (h *CreateCategoryCommandHandler) Handle(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	now := h.now().UTC()
	category := Category{
		ID:        idgen.NewSortableID(now).String(),
		Name:      normalizeName(cmd.Name),
		Slug:      Slugify(cmd.Name),
		CreatedAt: now,
	}

	if cmd.ParentID != "" {
		parent, err := h.repo.Get(ctx, cmd.ParentID)
		if err != nil {
			return Category{}, fmt.Errorf("parent category: %w", err)
		}
		category.ParentID = parent.ID
		category.Level = parent.Level + 1
	}

	if err := h.repo.Create(ctx, category); err != nil {
		return Category{}, err
	}
	if err := h.cache.InvalidateTags(ctx, TagCategories); err != nil {
		return Category{}, fmt.Errorf("invalidate category cache: %w", err)
	}
	return category, nil
}

// DeleteCategoryCommand removes a category without subcategories.
type DeleteCategoryCommand struct {
	ID string
}

// Validate requires an id.
func (c DeleteCategoryCommand) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateRequired("id", c.ID)).
		Err()
}

// DeleteCategoryCommandHandler serves DeleteCategoryCommand.
type DeleteCategoryCommandHandler struct {
	repo  Repository
	cache cache.Invalidator
}

// NewDeleteCategoryCommandHandler creates the handler.
func NewDeleteCategoryCommandHandler(repo Repository, invalidator cache.Invalidator) *DeleteCategoryCommandHandler {
	return &DeleteCategoryCommandHandler{repo: repo, cache: invalidator}
}

// Handle deletes the category and invalidates every cached read that could include it.
func (h *DeleteCategoryCommandHandler) Handle(ctx context.Context, cmd DeleteCategoryCommand) error {
	if err := h.repo.Delete(ctx, cmd.ID); err != nil {
		return err
	}
	if err := h.cache.InvalidateTags(ctx, TagCategories, CategoryTag(cmd.ID)); err != nil {
		return fmt.Errorf("invalidate category cache: %w", err)
	}
	return nil
}
