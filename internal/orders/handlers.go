package orders

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/shopcore/internal/users"
	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/idgen"
	"github.com/plaenen/shopcore/pkg/validators"
)

// CacheTTL is how long order reads stay cached.
const CacheTTL = 10 * time.Minute

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// LineInput is a requested order line.
type LineInput struct {
	SKU       string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// PlaceOrderCommand places an order for an active user.
type PlaceOrderCommand struct {
	UserID   string
	Currency string
	Lines    []LineInput
}

// Validate checks the currency code and every line.
func (c PlaceOrderCommand) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateRequired("user_id", c.UserID)).
		Add(validators.ValidateStringPattern("currency", c.Currency, currencyPattern, "ISO 4217"))
	if len(c.Lines) == 0 {
		b.Add(validators.NewValidationResult(false, "lines",
			validators.WithValidationCode(validators.ValidationCodeRequired),
			validators.WithMessage("An order needs at least one line.")))
	}
	for i, l := range c.Lines {
		field := "lines[" + strconv.Itoa(i) + "]"
		b.Add(validators.ValidateRequired(field+".sku", l.SKU))
		if l.Quantity <= 0 {
			b.Add(validators.NewValidationResult(false, field+".quantity",
				validators.WithValue(strconv.FormatInt(l.Quantity, 10)),
				validators.WithValidationCode(validators.ValidationCodeInvalid),
				validators.WithMessage("Quantity must be positive.")))
		}
		if l.UnitPrice.IsNegative() {
			b.Add(validators.NewValidationResult(false, field+".unit_price",
				validators.WithValue(l.UnitPrice.String()),
				validators.WithValidationCode(validators.ValidationCodeInvalid),
				validators.WithMessage("Unit price cannot be negative.")))
		}
	}
	return b.Err()
}

// PlaceOrderCommandHandler serves PlaceOrderCommand.
type PlaceOrderCommandHandler struct {
	repo    Repository
	cache   cache.Invalidator
	queries cqrs.Dispatcher
	now     func() time.Time
}

// NewPlaceOrderCommandHandler creates the handler. The user is looked up through
// queries with users.DisplayUserQuery.
func NewPlaceOrderCommandHandler(repo Repository, invalidator cache.Invalidator, queries cqrs.Dispatcher) *PlaceOrderCommandHandler {
	return &PlaceOrderCommandHandler{repo: repo, cache: invalidator, queries: queries, now: time.Now}
}

// Handle prices and stores the order.
func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	user, err := cqrs.DispatchAs[users.UserView](ctx, h.queries, users.DisplayUserQuery{ID: cmd.UserID})
	if err != nil {
		return Order{}, fmt.Errorf("load customer: %w", err)
	}
	if !user.Active {
		return Order{}, fmt.Errorf("%w: %s", ErrUserInactive, user.ID)
	}

	lines, total := priceLines(cmd.Lines)
	o := Order{
		ID:       idgen.NewUUID(),
		UserID:   user.ID,
		Currency: cmd.Currency,
		Lines:    lines,
		Total:    total,
		Status:   StatusPlaced,
		PlacedAt: h.now().UTC(),
	}
	if err := h.repo.Create(ctx, o); err != nil {
		return Order{}, err
	}
	if err := h.cache.InvalidateTags(ctx, UserOrdersTag(o.UserID)); err != nil {
		return Order{}, fmt.Errorf("invalidate order cache: %w", err)
	}
	return o, nil
}

// CancelOrderCommand cancels a placed order.
type CancelOrderCommand struct {
	ID string
}

// Validate requires an id.
func (c CancelOrderCommand) Validate() error {
	return validators.NewBuilder().Add(validators.ValidateRequired("id", c.ID)).Err()
}

// CancelOrderCommandHandler serves CancelOrderCommand.
type CancelOrderCommandHandler struct {
	repo  Repository
	cache cache.Invalidator
}

// NewCancelOrderCommandHandler creates the handler.
func NewCancelOrderCommandHandler(repo Repository, invalidator cache.Invalidator) *CancelOrderCommandHandler {
	return &CancelOrderCommandHandler{repo: repo, cache: invalidator}
}

// Handle cancels the order and invalidates its cached reads.
func (h *CancelOrderCommandHandler) Handle(ctx context.Context, cmd CancelOrderCommand) error {
	o, err := h.repo.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if err := h.repo.UpdateStatus(ctx, o.ID, StatusPlaced, StatusCancelled); err != nil {
		return err
	}
	return h.cache.InvalidateTags(ctx, OrderTag(o.ID), UserOrdersTag(o.UserID))
}

// DisplayOrderQuery fetches one order.
type DisplayOrderQuery struct {
	ID string
}

// CacheKey implements cqrs.Cacheable.
func (q DisplayOrderQuery) CacheKey() string {
	return cache.MustKey("order_", map[string]any{"id": q.ID})
}

// CacheTTL implements cqrs.Cacheable.
func (q DisplayOrderQuery) CacheTTL() time.Duration {
	return CacheTTL
}

// CacheTags implements cqrs.Cacheable.
func (q DisplayOrderQuery) CacheTags() []string {
	return []string{OrderTag(q.ID)}
}

// Validate requires an id.
func (q DisplayOrderQuery) Validate() error {
	return validators.NewBuilder().Add(validators.ValidateRequired("id", q.ID)).Err()
}

// DisplayOrderQueryHandler serves DisplayOrderQuery.
type DisplayOrderQueryHandler struct {
	repo Repository
}

// NewDisplayOrderQueryHandler creates the handler.
func NewDisplayOrderQueryHandler(repo Repository) *DisplayOrderQueryHandler {
	return &DisplayOrderQueryHandler{repo: repo}
}

// Handle returns the order or ErrOrderNotFound.
func (h *DisplayOrderQueryHandler) Handle(ctx context.Context, q DisplayOrderQuery) (Order, error) {
	return h.repo.Get(ctx, q.ID)
}

// ListUserOrdersQuery lists a user's orders, newest first.
type ListUserOrdersQuery struct {
	UserID string
}

// CacheKey implements cqrs.Cacheable.
func (q ListUserOrdersQuery) CacheKey() string {
	return cache.MustKey("user_orders_", map[string]any{"userId": q.UserID})
}

// CacheTTL implements cqrs.Cacheable.
func (q ListUserOrdersQuery) CacheTTL() time.Duration {
	return CacheTTL
}

// CacheTags implements cqrs.Cacheable.
func (q ListUserOrdersQuery) CacheTags() []string {
	return []string{UserOrdersTag(q.UserID)}
}

// Validate requires a user id.
func (q ListUserOrdersQuery) Validate() error {
	return validators.NewBuilder().Add(validators.ValidateRequired("user_id", q.UserID)).Err()
}

// ListUserOrdersQueryHandler serves ListUserOrdersQuery.
type ListUserOrdersQueryHandler struct {
	repo Repository
}

// NewListUserOrdersQueryHandler creates the handler.
func NewListUserOrdersQueryHandler(repo Repository) *ListUserOrdersQueryHandler {
	return &ListUserOrdersQueryHandler{repo: repo}
}

// Handle returns the orders.
func (h *ListUserOrdersQueryHandler) Handle(ctx context.Context, q ListUserOrdersQuery) ([]Order, error) {
	return h.repo.ListByUser(ctx, q.UserID)
}

// Register provides every orders handler to c. queries must serve users.DisplayUserQuery.
func Register(c *cqrs.Container, repo Repository, invalidator cache.Invalidator, queries cqrs.Dispatcher) {
	c.Provide(
		NewPlaceOrderCommandHandler(repo, invalidator, queries),
		NewCancelOrderCommandHandler(repo, invalidator),
		NewDisplayOrderQueryHandler(repo),
		NewListUserOrdersQueryHandler(repo),
	)
}

// Commands returns a prototype of each orders command.
func Commands() []cqrs.Message {
	return []cqrs.Message{PlaceOrderCommand{}, CancelOrderCommand{}}
}

// Queries returns a prototype of each orders query.
func Queries() []cqrs.Message {
	return []cqrs.Message{DisplayOrderQuery{}, ListUserOrdersQuery{}}
}

// CacheTypes returns the result types cached by orders queries.
func CacheTypes() []any {
	return []any{Order{}, []Order{}}
}
