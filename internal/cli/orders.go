package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/orders"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

func newOrdersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Place, inspect and cancel orders",
	}
	cmd.AddCommand(
		newOrdersPlaceCmd(opts),
		newOrdersShowCmd(opts),
		newOrdersListCmd(opts),
		newOrdersCancelCmd(opts),
	)
	return cmd
}

func newOrdersPlaceCmd(opts *rootOptions) *cobra.Command {
	var (
		currency string
		lines    []string
	)
	cmd := &cobra.Command{
		Use:   "place USER_ID",
		Short: "Place an order for an active user",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		inputs := make([]orders.LineInput, 0, len(lines))
		for _, raw := range lines {
			in, err := parseLine(raw)
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}
		o, err := cqrs.DispatchAs[orders.Order](cmd.Context(), e.app.Commands, orders.PlaceOrderCommand{
			UserID:   args[0],
			Currency: strings.ToUpper(currency),
			Lines:    inputs,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), o)
	})
	cmd.Flags().StringVar(&currency, "currency", "EUR", "ISO 4217 currency code")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "Order line as SKU:QUANTITY:UNIT_PRICE (repeatable)")
	return cmd
}

// parseLine reads SKU:QUANTITY:UNIT_PRICE. Prices are decimal strings.
func parseLine(raw string) (orders.LineInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return orders.LineInput{}, fmt.Errorf("invalid line %q: want SKU:QUANTITY:UNIT_PRICE", raw)
	}
	qty, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return orders.LineInput{}, fmt.Errorf("invalid quantity in line %q: %w", raw, err)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return orders.LineInput{}, fmt.Errorf("invalid unit price in line %q: %w", raw, err)
	}
	return orders.LineInput{SKU: parts[0], Quantity: qty, UnitPrice: price}, nil
}

func newOrdersShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			o, err := cqrs.DispatchAs[orders.Order](cmd.Context(), e.app.Queries, orders.DisplayOrderQuery{ID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		}),
	}
}

func newOrdersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list USER_ID",
		Short: "List a user's orders, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			list, err := cqrs.DispatchAs[[]orders.Order](cmd.Context(), e.app.Queries, orders.ListUserOrdersQuery{UserID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		}),
	}
}

func newOrdersCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a placed order",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			_, err := e.app.Commands.Dispatch(cmd.Context(), orders.CancelOrderCommand{ID: args[0]})
			return err
		}),
	}
}
