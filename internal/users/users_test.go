package users_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/shopcore/internal/users"
	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/middleware"
	"github.com/plaenen/shopcore/pkg/password"
	"github.com/plaenen/shopcore/pkg/sqlite"
	"github.com/plaenen/shopcore/pkg/validators"
)

const strongPassword = "correct-Horse-battery-9"

type outbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (o *outbox) SendActivation(ctx context.Context, email, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tokens == nil {
		o.tokens = make(map[string]string)
	}
	o.tokens[email] = token
	return nil
}

type fixture struct {
	repo     *users.SQLiteRepository
	outbox   *outbox
	commands *cqrs.CommandBus
	queries  *cqrs.QueryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := users.NewSQLiteRepository(context.Background(), db)
	require.NoError(t, err)

	f := &fixture{repo: repo, outbox: &outbox{}}
	c := cqrs.NewContainer()
	users.Register(c, repo, f.outbox, password.MinCost)

	f.commands = cqrs.NewCommandBus(c, cqrs.WithMiddleware(middleware.Validation()))
	f.queries = cqrs.NewQueryBus(c, cqrs.WithMiddleware(middleware.Validation()))
	require.NoError(t, f.commands.Preload(users.Commands()...))
	require.NoError(t, f.queries.Preload(users.Queries()...))
	return f
}

func (f *fixture) register(t *testing.T, email string) users.UserView {
	t.Helper()
	view, err := cqrs.DispatchAs[users.UserView](context.Background(), f.commands, users.RegisterUserCommand{
		Email:       email,
		Password:    strongPassword,
		AcceptTerms: true,
	})
	require.NoError(t, err)
	return view
}

func TestRegisterAndActivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view := f.register(t, "  Ada@Example.COM ")
	assert.Equal(t, "ada@example.com", view.Email)
	assert.False(t, view.Active)
	assert.True(t, view.ActivatedAt.IsZero())

	stored, err := f.repo.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.NoError(t, password.Compare(stored.PasswordHash, strongPassword))
	assert.NotEqual(t, strongPassword, stored.PasswordHash)

	token := f.outbox.tokens["ada@example.com"]
	require.NotEmpty(t, token)
	assert.Equal(t, stored.ActivationToken, token)

	activated, err := cqrs.DispatchAs[users.UserView](ctx, f.commands, users.ActivateUserCommand{Token: token})
	require.NoError(t, err)
	assert.True(t, activated.Active)
	assert.False(t, activated.ActivatedAt.IsZero())

	_, err = f.commands.Dispatch(ctx, users.ActivateUserCommand{Token: token})
	assert.ErrorIs(t, err, users.ErrInvalidToken, "tokens are single use")

	shown, err := cqrs.DispatchAs[users.UserView](ctx, f.queries, users.DisplayUserQuery{Email: "ADA@example.com"})
	require.NoError(t, err)
	assert.Equal(t, activated, shown)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "grace@example.com")

	_, err := f.commands.Dispatch(context.Background(), users.RegisterUserCommand{
		Email:       "Grace@Example.com",
		Password:    strongPassword,
		AcceptTerms: true,
	})
	assert.ErrorIs(t, err, users.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.commands.Dispatch(context.Background(), users.RegisterUserCommand{
		Email:    "not-an-email",
		Password: "abc",
	})
	require.ErrorIs(t, err, middleware.ErrInvalidMessage)

	var verr *validators.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"email", "password", "accept_terms"} {
		_, ok := verr.Field(field)
		assert.True(t, ok, field)
	}
	assert.NotContains(t, err.Error(), "abc")
	assert.Empty(t, f.outbox.tokens)
}

func TestActivateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.commands.Dispatch(context.Background(), users.ActivateUserCommand{Token: "xyz"})
	assert.ErrorIs(t, err, validators.ErrValidation)

	_, err = f.commands.Dispatch(context.Background(), users.ActivateUserCommand{Token: "6f1b6a8e-8f5e-4d3f-9a55-0d5c3f0a1b2c"})
	assert.ErrorIs(t, err, users.ErrInvalidToken)
}

func TestDisplayUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view := f.register(t, "linus@example.com")

	byID, err := cqrs.DispatchAs[users.UserView](ctx, f.queries, users.DisplayUserQuery{ID: view.ID})
	require.NoError(t, err)
	assert.Equal(t, view, byID)

	_, err = f.queries.Dispatch(ctx, users.DisplayUserQuery{ID: "missing"})
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = f.queries.Dispatch(ctx, users.DisplayUserQuery{})
	assert.ErrorIs(t, err, middleware.ErrInvalidMessage)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := users.NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.SendActivation(context.Background(), "ada@example.com", "tok-123"))
	assert.Contains(t, buf.String(), "activation_token=tok-123")
	assert.Contains(t, buf.String(), "a**@example.com")
	assert.NotContains(t, buf.String(), "ada@example.com")
}
