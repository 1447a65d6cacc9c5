package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/domain"
)

// CartView is the rendered cart.
type CartView struct {
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"totalItems"`
	TotalPrice float64           `json:"totalPrice"`
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart",
	}

	cmd.AddCommand(newCartListCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartSetCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))
	cmd.AddCommand(newCartWatchCommand(rootOpts))
	return cmd
}

func newCartListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "Show the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			view := CartView{
				Items:      sess.Cart.Items(),
				TotalItems: sess.Cart.TotalItems(),
				TotalPrice: sess.Cart.TotalPrice(),
			}
			return newFormatter(cmd, opts).Result(view, func(w io.Writer) {
				writeCart(w, view)
			})
		},
	}
}

func newCartAddCommand(opts *RootOptions) *cobra.Command {
	var (
		product    domain.ProductSnapshot
		qty        int
		outOfStock bool
	)

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart. Adding a product that is already in the
cart increases its quantity; the product details are refreshed.

Example:
  storefront cart add -u u1 sku-1 --name "Enamel mug" --price 12.50 --qty 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			product.InStock = !outOfStock
			it, err := sess.Cart.AddItem(cmd.Context(), args[0], product, qty)
			if err != nil {
				return operationError("failed to add to cart", err)
			}
			return newFormatter(cmd, opts).Result(it, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s x%d in cart\n", it.ProductID, it.Quantity)
			})
		},
	}

	cmd.Flags().StringVar(&product.Name, "name", "", "product name")
	cmd.Flags().Float64Var(&product.Price, "price", 0, "unit price")
	cmd.Flags().StringVar(&product.Description, "description", "", "product description")
	cmd.Flags().StringVar(&product.Category, "category", "", "product category")
	cmd.Flags().StringSliceVar(&product.Images, "image", nil, "image URL (repeatable)")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity to add")
	cmd.Flags().BoolVar(&outOfStock, "out-of-stock", false, "mark the product as out of stock")
	return cmd
}

func newCartSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <product-id> <quantity>",
		Short:         "Set the quantity of a cart line",
		Long:          "Set the quantity of a cart line. A quantity of zero removes the line.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", args[1]))
			}

			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			it, err := sess.Cart.SetQuantity(cmd.Context(), args[0], qty)
			if err != nil {
				return operationError("failed to set quantity", err)
			}
			return newFormatter(cmd, opts).Result(it, func(w io.Writer) {
				if it.Quantity == 0 {
					fmt.Fprintf(w, "✓ Removed %s\n", args[0])
					return
				}
				fmt.Fprintf(w, "✓ %s x%d in cart\n", it.ProductID, it.Quantity)
			})
		},
	}
}

func newCartRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <product-id>",
		Short:         "Remove a product from the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := sess.Cart.RemoveItem(cmd.Context(), args[0]); err != nil {
				return operationError("failed to remove from cart", err)
			}
			return newFormatter(cmd, opts).Result(map[string]string{"removed": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Removed %s\n", args[0])
			})
		},
	}
}

func newCartClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Empty the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := sess.Cart.Clear(cmd.Context()); err != nil {
				return operationError("failed to clear cart", err)
			}
			return newFormatter(cmd, opts).Result(map[string]int{"totalItems": 0}, func(w io.Writer) {
				fmt.Fprintln(w, "✓ Cart cleared")
			})
		},
	}
}

func newCartWatchCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the cart whenever it changes",
		Long: `Follow the cart's live feed and print the cart on every change,
including changes made by other processes sharing the database.

Stops on Ctrl-C, or after --duration when set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context(), opts.Logger)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			sess, release, err := opts.openSession(ctx)
			if err != nil {
				return err
			}
			defer release()

			updates, unsubscribe := sess.Cart.Subscribe(ctx)
			defer unsubscribe()

			f := newFormatter(cmd, opts)
			for items := range updates {
				view := CartView{Items: items}
				for _, it := range items {
					view.TotalItems += it.Quantity
					view.TotalPrice += it.LineTotal()
				}
				if err := f.Result(view, func(w io.Writer) {
					writeCart(w, view)
					fmt.Fprintln(w)
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop watching after this long (0 means until interrupted)")
	return cmd
}

func writeCart(w io.Writer, view CartView) {
	if len(view.Items) == 0 {
		fmt.Fprintln(w, "Cart is empty.")
		return
	}
	for _, it := range view.Items {
		stock := ""
		if !it.InStock {
			stock = "  (out of stock)"
		}
		fmt.Fprintf(w, "  %-16s %-24s %3d x %8.2f = %9.2f%s\n",
			it.ProductID, it.Name, it.Quantity, it.Price, it.LineTotal(), stock)
	}
	fmt.Fprintf(w, "Items: %d  Total: %.2f\n", view.TotalItems, view.TotalPrice)
}
