// Package catalog manages the product category tree. Its queries and commands are
// dispatched through the cqrs buses; list and detail reads are cacheable and the
// write side invalidates their tags.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TagCategories is invalidated by every catalog mutation.
const TagCategories = "categories"

var (
	// ErrCategoryNotFound is returned when no category has the requested id.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryHasChildren is returned when deleting a category that still has subcategories.
	ErrCategoryHasChildren = errors.New("category has subcategories")

	// ErrSlugTaken is returned when another category already uses the derived slug.
	ErrSlugTaken = errors.New("category slug already in use")
)

// Category is a node of the category tree. Root categories have level 0.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ParentID  string    `json:"parentId,omitempty"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryPage is one page of a category listing.
type CategoryPage struct {
	Items        []Category `json:"items"`
	Total        int64      `json:"total"`
	Page         int        `json:"page"`
	ItemsPerPage int        `json:"itemsPerPage"`
}

// Pagination selects a 1-based page.
type Pagination struct {
	Page         int `json:"page"`
	ItemsPerPage int `json:"itemsPerPage"`
}

const (
	// DefaultItemsPerPage is used when a listing does not ask for a page size.
	DefaultItemsPerPage = 30
	// MaxItemsPerPage bounds the page size of a listing.
	MaxItemsPerPage = 100
)

// DefaultPagination returns the first page with the default size.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, ItemsPerPage: DefaultItemsPerPage}
}

// Offset returns the number of rows skipped before this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.ItemsPerPage
}

// CategoryTag returns the invalidation tag of a single category.
func CategoryTag(id string) string {
	return "category_" + id
}

// Slugify derives a URL-safe slug from name: accents are stripped, letters are
// lowercased and runs of other characters collapse to a single dash.
func Slugify(name string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(fold, name)
	if err != nil {
		plain = name
	}
	plain = cases.Lower(language.Und).String(plain)

	var b strings.Builder
	dash := false
	for _, r := range plain {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// normalizeName trims name, collapses inner whitespace and composes it to NFC.
func normalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}

// orderColumns maps sortable listing fields to their column.
var orderColumns = map[string]string{
	"name":      "name",
	"slug":      "slug",
	"level":     "level",
	"createdAt": "created_at",
}

func orderDirection(dir string) (string, error) {
	switch strings.ToUpper(dir) {
	case "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	}
	return "", fmt.Errorf("invalid sort direction %q", dir)
}
