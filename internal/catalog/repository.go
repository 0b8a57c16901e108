package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plaenen/shopcore/pkg/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ListFilter narrows and orders a category listing.
type ListFilter struct {
	Level   *int
	OrderBy map[string]string
	Limit   int
	Offset  int
}

// Repository persists categories.
type Repository interface {
	Create(ctx context.Context, c Category) error
	Get(ctx context.Context, id string) (Category, error)
	List(ctx context.Context, filter ListFilter) ([]Category, int64, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository stores categories in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository migrates the catalog tables in db.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if err := migrate.Run(ctx, db, "catalog_migrations", migrationsFS, "migrations"); err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// Create inserts c. Its level is derived from the parent, which must exist.
func (r *SQLiteRepository) Create(ctx context.Context, c Category) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE slug = ?`, c.Slug).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrSlugTaken, c.Slug)
	}

	var parent sql.NullString
	if c.ParentID != "" {
		parent = sql.NullString{String: c.ParentID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, parent_id, level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Slug, parent, c.Level, c.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return tx.Commit()
}

// Get returns the category with id or ErrCategoryNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (Category, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, parent_id, level, created_at FROM categories WHERE id = ?
	`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return c, err
}

// List returns one page of categories and the total number matching the filter.
// Sort fields are applied in name order, then by id for a stable page boundary.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Category, int64, error) {
	where := ""
	var args []any
	if filter.Level != nil {
		where = ` WHERE level = ?`
		args = append(args, *filter.Level)
	}

	orderBy, err := orderClause(filter.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count categories: %w", err)
	}

	query := `SELECT id, name, slug, parent_id, level, created_at FROM categories` + where + orderBy + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	return items, total, nil
}

// Delete removes the category with id. It fails with ErrCategoryHasChildren while
// subcategories reference it.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var children int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return fmt.Errorf("count subcategories: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("%w: %s has %d", ErrCategoryHasChildren, id, children)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (Category, error) {
	var (
		c         Category
		parent    sql.NullString
		createdAt int64
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Slug, &parent, &c.Level, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, err
		}
		return Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.ParentID = parent.String
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	return c, nil
}

func orderClause(orderBy map[string]string) (string, error) {
	fields := make([]string, 0, len(orderBy))
	for field := range orderBy {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	terms := make([]string, 0, len(fields)+1)
	for _, field := range fields {
		column, ok := orderColumns[field]
		if !ok {
			return "", fmt.Errorf("unknown sort field %q", field)
		}
		dir, err := orderDirection(orderBy[field])
		if err != nil {
			return "", err
		}
		terms = append(terms, column+" "+dir)
	}
	terms = append(terms, "id ASC")
	return " ORDER BY " + strings.Join(terms, ", "), nil
}
