package catalog

import (
	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

// Register provides every catalog handler to c.
func Register(c *cqrs.Container, repo Repository, invalidator cache.Invalidator) {
	c.Provide(
		NewDisplayListCategoryQueryHandler(repo),
		NewDisplayCategoryQueryHandler(repo),
		NewCreateCategoryCommandHandler(repo, invalidator),
		NewDeleteCategoryCommandHandler(repo, invalidator),
	)
}

// Commands returns a prototype of each catalog command, for eager resolution.
func Commands() []cqrs.Message {
	return []cqrs.Message{CreateCategoryCommand{}, DeleteCategoryCommand{}}
}

// Queries returns a prototype of each catalog query, for eager resolution.
func Queries() []cqrs.Message {
	return []cqrs.Message{DisplayListCategoryQuery{}, DisplayCategoryQuery{}}
}

// CacheTypes returns the result types cached by catalog queries, for codec registration.
func CacheTypes() []any {
	return []any{CategoryPage{}, Category{}}
}
