package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/domain"
)

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and update orders",
	}

	cmd.AddCommand(newOrdersListCommand(rootOpts))
	cmd.AddCommand(newOrdersStatusCommand(rootOpts))
	cmd.AddCommand(newOrdersTrackingCommand(rootOpts))
	cmd.AddCommand(newOrdersTestCommand(rootOpts))
	return cmd
}

func newOrdersListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List orders, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			list := sess.Orders.Orders()
			return newFormatter(cmd, opts).Result(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No orders.")
					return
				}
				for _, o := range list {
					writeOrder(w, o)
				}
			})
		},
	}
}

func newOrdersStatusCommand(opts *RootOptions) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Move an order to a new status",
		Long: `Move an order to a new status. Only forward transitions are allowed:

  pending    -> confirmed | processing | cancelled
  confirmed  -> processing | shipped | cancelled | refunded
  processing -> shipped | cancelled | refunded
  shipped    -> delivered | refunded
  delivered  -> refunded

Example:
  storefront orders status -u u1 <order-id> shipped --note "left the warehouse"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseOrderStatus(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid status", err)
			}

			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			o, err := sess.Orders.UpdateStatus(cmd.Context(), args[0], status, note)
			if err != nil {
				return operationError("failed to update order status", err)
			}
			return newFormatter(cmd, opts).Result(o, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Order %s is %s\n", o.OrderNumber, o.Status)
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note recorded in the status history")
	return cmd
}

func newOrdersTrackingCommand(opts *RootOptions) *cobra.Command {
	var tracking domain.Tracking

	cmd := &cobra.Command{
		Use:   "tracking <order-id>",
		Short: "Attach shipment tracking to an order",
		Long: `Attach shipment tracking to an order. A confirmed or processing order
moves to shipped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			o, err := sess.Orders.UpdateTracking(cmd.Context(), args[0], tracking)
			if err != nil {
				return operationError("failed to update tracking", err)
			}
			return newFormatter(cmd, opts).Result(o, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Order %s is %s, tracking %s %s\n",
					o.OrderNumber, o.Status, tracking.Carrier, tracking.Number)
			})
		},
	}

	cmd.Flags().StringVar(&tracking.Carrier, "carrier", "", "shipping carrier")
	cmd.Flags().StringVar(&tracking.Number, "number", "", "tracking number")
	cmd.Flags().StringVar(&tracking.URL, "url", "", "tracking URL")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func newOrdersTestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Create a local test order from the cart",
		Long: `Create a local test order from the cart contents, shipped to the
default address. Test orders are kept in the local orders file
($STOREFRONT_LOCAL_ORDERS) and never written to the database. The cart is
left unchanged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			o, err := sess.OrderFromCart()
			if err != nil {
				return operationError("failed to create test order", err)
			}
			return newFormatter(cmd, opts).Result(o, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created test order %s\n", o.OrderNumber)
				writeOrder(w, o)
			})
		},
	}
}

func writeOrder(w io.Writer, o domain.Order) {
	fmt.Fprintf(w, "  %s  %-12s %-10s %3d items  %9.2f  %s\n",
		o.OrderNumber, o.Status, o.Source, o.ItemCount(), o.Totals.Total, o.ID)
	if o.Tracking != nil && o.Tracking.Number != "" {
		fmt.Fprintf(w, "    tracking: %s %s\n", o.Tracking.Carrier, o.Tracking.Number)
	}
}
