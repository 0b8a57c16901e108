package orders

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/shopcore/pkg/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// SQLiteRepository stores orders and their lines in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository migrates the order tables in db.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if err := migrate.Run(ctx, db, "orders_migrations", migrationsFS, "migrations"); err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// Create inserts o and its lines atomically.
func (r *SQLiteRepository) Create(ctx context.Context, o Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, currency, total, status, placed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, o.Currency, o.Total.String(), string(o.Status), o.PlacedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, l := range o.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, sku, quantity, unit_price, total)
			VALUES (?, ?, ?, ?, ?, ?)
		`, o.ID, i, l.SKU, l.Quantity, l.UnitPrice.String(), l.Total.String()); err != nil {
			return fmt.Errorf("insert order line %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Get returns the order with id and its lines.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, currency, total, status, placed_at FROM orders WHERE id = ?
	`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}

	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, currency, total, status, placed_at FROM orders
		WHERE user_id = ? ORDER BY placed_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	list := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, o)
	}
	// Lines are loaded after the cursor is released; memory databases hold a single connection.
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	for i := range list {
		if list[i].Lines, err = r.lines(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateStatus moves order id from one status to another. It fails with
// ErrNotCancellable when the order is not in the from state.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is not %s", ErrNotCancellable, id, from)
	}
	return nil
}

func (r *SQLiteRepository) lines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, quantity, unit_price, total FROM order_lines WHERE order_id = ? ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l            Line
			price, total string
		)
		if err := rows.Scan(&l.SKU, &l.Quantity, &price, &total); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if l.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse line total: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (Order, error) {
	var (
		o        Order
		total    string
		status   string
		placedAt int64
	)
	if err := s.Scan(&o.ID, &o.UserID, &o.Currency, &total, &status, &placedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse order total: %w", err)
	}
	o.Total = t
	o.Status = Status(status)
	o.PlacedAt = time.Unix(0, placedAt).UTC()
	return o, nil
}
