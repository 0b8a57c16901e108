// Package orders places and tracks customer orders. Amounts are decimal values in the
// order's currency, rounded to cents.
package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusCancelled Status = "cancelled"
)

// MoneyPlaces is the number of decimal places amounts are rounded to.
const MoneyPlaces = 2

var (
	// ErrOrderNotFound is returned when no order has the requested id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUserInactive is returned when an account that has not been activated places an order.
	ErrUserInactive = errors.New("user account is not active")

	// ErrNotCancellable is returned when cancelling an order that is not in the placed state.
	ErrNotCancellable = errors.New("order cannot be cancelled")
)

// Line is one product line of an order.
type Line struct {
	SKU       string          `json:"sku"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
}

// Order is a placed order with computed totals.
type Order struct {
	ID       string          `json:"id"`
	UserID   string          `json:"userId"`
	Currency string          `json:"currency"`
	Lines    []Line          `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Status   Status          `json:"status"`
	PlacedAt time.Time       `json:"placedAt"`
}

// OrderTag returns the invalidation tag of one order.
func OrderTag(id string) string {
	return "order_" + id
}

// UserOrdersTag returns the invalidation tag of a user's order history.
func UserOrdersTag(userID string) string {
	return "user_orders_" + userID
}

// priceLines computes line totals and the order total, rounded to cents.
func priceLines(in []LineInput) ([]Line, decimal.Decimal) {
	lines := make([]Line, len(in))
	total := decimal.Zero
	for i, l := range in {
		price := l.UnitPrice.Round(MoneyPlaces)
		lineTotal := price.Mul(decimal.NewFromInt(l.Quantity)).Round(MoneyPlaces)
		lines[i] = Line{
			SKU:       l.SKU,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Total:     lineTotal,
		}
		total = total.Add(lineTotal)
	}
	return lines, total.Round(MoneyPlaces)
}
