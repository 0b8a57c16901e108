package cqrs_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type RenameProductCommand struct {
	ProductID string
	Name      string
}

type RenameProductCommandHandler struct {
	calls    atomic.Int32
	received []RenameProductCommand
	mu       sync.Mutex
}

func (h *RenameProductCommandHandler) Handle(ctx context.Context, cmd RenameProductCommand) (string, error) {
	h.calls.Add(1)
	h.mu.Lock()
	h.received = append(h.received, cmd)
	h.mu.Unlock()
	return "renamed " + cmd.ProductID, nil
}

type ArchiveProductCommand struct {
	ProductID string
}

type ArchiveProductCommandHandler struct{}

func (ArchiveProductCommandHandler) Handle(ctx context.Context, cmd *ArchiveProductCommand) error {
	return nil
}

// RenameProduct has a coincidentally named handler but breaks the convention.
type RenameProduct struct{}

type RenameProductHandler struct{}

func (RenameProductHandler) Handle(ctx context.Context, cmd RenameProduct) error { return nil }

type PublishProductCommand struct{}

type PublishProductCommandHandler struct{}

type DiscontinueProductCommand struct{}

type DiscontinueProductCommandHandler struct{}

func (DiscontinueProductCommandHandler) Handle(ctx context.Context, cmd string) error { return nil }

type RestockProductCommand struct{}

type RestockProductCommandHandler struct{}

func TestHandlerName(t *testing.T) {
	tests := []struct {
		name    string
		kind    cqrs.Kind
		message string
		want    string
		ok      bool
	}{
		{"command", cqrs.KindCommand, "shop/catalog.CreateCategoryCommand", "shop/catalog.CreateCategoryCommandHandler", true},
		{"query", cqrs.KindQuery, "shop/catalog.DisplayListCategoryQuery", "shop/catalog.DisplayListCategoryQueryHandler", true},
		{"unqualified", cqrs.KindQuery, "FindUserQuery", "FindUserQueryHandler", true},
		{"missing suffix", cqrs.KindCommand, "shop/catalog.CreateCategory", "", false},
		{"wrong kind", cqrs.KindCommand, "shop/catalog.DisplayListCategoryQuery", "", false},
		{"suffix only", cqrs.KindQuery, "shop/catalog.Query", "", false},
		{"suffix in package only", cqrs.KindCommand, "shop/Command.Create", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cqrs.HandlerName(tt.kind, tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "github.com/plaenen/shopcore/pkg/cqrs_test.RenameProductCommand", cqrs.TypeName(RenameProductCommand{}))
	assert.Equal(t, "github.com/plaenen/shopcore/pkg/cqrs_test.RenameProductCommand", cqrs.TypeName(&RenameProductCommand{}))
	assert.Equal(t, "RenameProductCommand", cqrs.ShortTypeName(&RenameProductCommand{}))
	assert.Equal(t, "", cqrs.TypeName(nil))
}

func TestKindOf(t *testing.T) {
	kind, ok := cqrs.KindOf(RenameProductCommand{})
	assert.True(t, ok)
	assert.Equal(t, cqrs.KindCommand, kind)

	_, ok = cqrs.KindOf(RenameProduct{})
	assert.False(t, ok)
}

func TestResolver(t *testing.T) {
	t.Run("ResolvesAndInvokesHandler", func(t *testing.T) {
		handler := &RenameProductCommandHandler{}
		container := cqrs.NewContainer()
		container.Provide(handler)

		resolver := cqrs.NewCommandResolver(container)
		target, err := resolver.Resolve(RenameProductCommand{})
		require.NoError(t, err)

		cmd := RenameProductCommand{ProductID: "p-1", Name: "Desk"}
		result, err := target(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, "renamed p-1", result)
		assert.Equal(t, []RenameProductCommand{cmd}, handler.received)
	})

	t.Run("ErrorOnlyHandler", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(ArchiveProductCommandHandler{})

		target, err := cqrs.NewCommandResolver(container).Resolve(&ArchiveProductCommand{})
		require.NoError(t, err)

		result, err := target(context.Background(), &ArchiveProductCommand{ProductID: "p-1"})
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("NamingConvention", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(RenameProductHandler{})

		_, err := cqrs.NewCommandResolver(container).Resolve(RenameProduct{})
		require.Error(t, err)
		assert.ErrorIs(t, err, cqrs.ErrResolution)
		assert.ErrorIs(t, err, cqrs.ErrNamingConvention)
	})

	t.Run("QueryResolverRejectsCommands", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(&RenameProductCommandHandler{})

		_, err := cqrs.NewQueryResolver(container).Resolve(RenameProductCommand{})
		assert.ErrorIs(t, err, cqrs.ErrNamingConvention)
	})

	t.Run("HandlerTypeNotFound", func(t *testing.T) {
		_, err := cqrs.NewCommandResolver(cqrs.NewContainer()).Resolve(RenameProductCommand{})
		require.Error(t, err)
		assert.ErrorIs(t, err, cqrs.ErrHandlerTypeNotFound)

		var resErr *cqrs.ResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, "github.com/plaenen/shopcore/pkg/cqrs_test.RenameProductCommand", resErr.Message)
		assert.Equal(t, "github.com/plaenen/shopcore/pkg/cqrs_test.RenameProductCommandHandler", resErr.Handler)
		assert.Contains(t, err.Error(), "CommandHandler")
	})

	t.Run("HandlerNotRegistered", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Declare(&RenameProductCommandHandler{})

		_, err := cqrs.NewCommandResolver(container).Resolve(RenameProductCommand{})
		assert.ErrorIs(t, err, cqrs.ErrHandlerNotRegistered)
		assert.NotErrorIs(t, err, cqrs.ErrHandlerTypeNotFound)
	})

	t.Run("HandlerWithoutHandleMethod", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(PublishProductCommandHandler{})

		_, err := cqrs.NewCommandResolver(container).Resolve(PublishProductCommand{})
		assert.ErrorIs(t, err, cqrs.ErrHandlerNotCallable)
	})

	t.Run("HandleWithWrongSignature", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(DiscontinueProductCommandHandler{})

		_, err := cqrs.NewCommandResolver(container).Resolve(DiscontinueProductCommand{})
		assert.ErrorIs(t, err, cqrs.ErrHandlerNotCallable)
	})

	t.Run("NilMessage", func(t *testing.T) {
		_, err := cqrs.NewCommandResolver(cqrs.NewContainer()).Resolve(nil)
		assert.ErrorIs(t, err, cqrs.ErrNilMessage)
	})

	t.Run("TargetRejectsOtherMessageTypes", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(ArchiveProductCommandHandler{})

		target, err := cqrs.NewCommandResolver(container).Resolve(&ArchiveProductCommand{})
		require.NoError(t, err)

		// Value and pointer forms share a name but not a dispatch target.
		_, err = target(context.Background(), ArchiveProductCommand{})
		assert.ErrorIs(t, err, cqrs.ErrUnexpectedMessage)
	})

	t.Run("Memoization", func(t *testing.T) {
		var built atomic.Int32
		container := cqrs.NewContainer()
		cqrs.ProvideFactory(container, func() (*RenameProductCommandHandler, error) {
			built.Add(1)
			return &RenameProductCommandHandler{}, nil
		})
		container.Provide(ArchiveProductCommandHandler{})

		resolver := cqrs.NewCommandResolver(container)
		first, err := resolver.Resolve(RenameProductCommand{})
		require.NoError(t, err)
		second, err := resolver.Resolve(RenameProductCommand{ProductID: "other"})
		require.NoError(t, err)

		_, err = first(context.Background(), RenameProductCommand{})
		require.NoError(t, err)
		_, err = second(context.Background(), RenameProductCommand{})
		require.NoError(t, err)

		handler, err := container.Get(cqrs.TypeName(&RenameProductCommandHandler{}))
		require.NoError(t, err)
		assert.Equal(t, int32(2), handler.(*RenameProductCommandHandler).calls.Load())
		assert.Equal(t, int32(1), built.Load())

		_, err = resolver.Resolve(&ArchiveProductCommand{})
		require.NoError(t, err)
		assert.Len(t, resolver.Resolved(), 2)
	})

	t.Run("ConcurrentFirstResolution", func(t *testing.T) {
		var built atomic.Int32
		container := cqrs.NewContainer()
		cqrs.ProvideFactory(container, func() (*RenameProductCommandHandler, error) {
			built.Add(1)
			return &RenameProductCommandHandler{}, nil
		})
		resolver := cqrs.NewCommandResolver(container)

		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				target, err := resolver.Resolve(RenameProductCommand{})
				if assert.NoError(t, err) {
					_, err = target(context.Background(), RenameProductCommand{})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), built.Load())
	})

	t.Run("Preload", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(&RenameProductCommandHandler{})

		resolver := cqrs.NewCommandResolver(container)
		err := resolver.Preload(RenameProductCommand{}, RestockProductCommand{}, RenameProduct{})
		require.Error(t, err)
		assert.ErrorIs(t, err, cqrs.ErrHandlerTypeNotFound)
		assert.ErrorIs(t, err, cqrs.ErrNamingConvention)
		assert.Equal(t, []string{cqrs.TypeName(RenameProductCommand{})}, resolver.Resolved())
	})
}

func TestContainer(t *testing.T) {
	t.Run("DuplicateRegistrationPanics", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(&RenameProductCommandHandler{})
		assert.Panics(t, func() { container.Provide(&RenameProductCommandHandler{}) })
	})

	t.Run("FactoryError", func(t *testing.T) {
		container := cqrs.NewContainer()
		cqrs.ProvideFactory(container, func() (*RenameProductCommandHandler, error) {
			return nil, errors.New("database unavailable")
		})

		_, err := cqrs.NewCommandResolver(container).Resolve(RenameProductCommand{})
		require.Error(t, err)
		assert.ErrorIs(t, err, cqrs.ErrHandlerNotRegistered)
		assert.Contains(t, err.Error(), "database unavailable")
	})

	t.Run("Names", func(t *testing.T) {
		container := cqrs.NewContainer()
		container.Provide(ArchiveProductCommandHandler{})
		container.Declare(RestockProductCommandHandler{})
		assert.Equal(t, []string{cqrs.TypeName(ArchiveProductCommandHandler{})}, container.Names())
		assert.True(t, container.Exists(cqrs.TypeName(RestockProductCommandHandler{})))
		assert.False(t, container.Has(cqrs.TypeName(RestockProductCommandHandler{})))
	})
}
