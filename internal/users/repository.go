package users

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/shopcore/pkg/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Activate(ctx context.Context, token string, at time.Time) (User, error)
}

// SQLiteRepository stores accounts in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository migrates the users table in db.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if err := migrate.Run(ctx, db, "users_migrations", migrationsFS, "migrations"); err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// Create inserts u, failing with ErrEmailTaken when the address is in use.
func (r *SQLiteRepository) Create(ctx context.Context, u User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, u.Email).Scan(&taken); err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken > 0 {
		return ErrEmailTaken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, activation_token, created_at, activated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, nullString(u.ActivationToken), u.CreatedAt.UnixNano(), unixNano(u.ActivatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit()
}

// Get returns the account with id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail returns the account registered under email.
func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getBy(ctx, "email", NormalizeEmail(email))
}

func (r *SQLiteRepository) getBy(ctx context.Context, column, value string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, activation_token, created_at, activated_at
		FROM users WHERE `+column+` = ?
	`, value)

	var (
		u           User
		token       sql.NullString
		createdAt   int64
		activatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &token, &createdAt, &activatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, value)
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ActivationToken = token.String
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	if activatedAt > 0 {
		u.ActivatedAt = time.Unix(0, activatedAt).UTC()
	}
	return u, nil
}

// Activate consumes token and marks its account active at the given time.
func (r *SQLiteRepository) Activate(ctx context.Context, token string, at time.Time) (User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE activation_token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET activation_token = NULL, activated_at = ? WHERE id = ?
	`, at.UnixNano(), id); err != nil {
		return User{}, fmt.Errorf("activate user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return r.Get(ctx, id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
