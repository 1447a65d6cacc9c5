package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/orders"
	"github.com/roach88/storefront/internal/server"
	"github.com/roach88/storefront/internal/session"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr      string
	KeepCarts bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout webhook server",
		Long: `Run the HTTP server that receives the payment processor's
checkout.session.completed events and reconciles them into orders, for
buyers who never return to the storefront's success page.

Routes:
  GET  /healthz
  POST /webhooks/checkout

Example:
  storefront serve --db ./storefront.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $STOREFRONT_HTTP_ADDR or :8080)")
	cmd.Flags().BoolVar(&opts.KeepCarts, "keep-carts", false, "do not clear the buyer's cart when an order is created")

	return cmd
}

func runServer(opts *ServeOptions, cmd *cobra.Command) error {
	log := opts.Logger
	addr := opts.Config.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("opening database", "path", opts.Config.Store.DatabasePath)
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	sessOpts := opts.sessionOptions()
	rec := session.NewReconciler(st, sessOpts)

	var carts server.CartFactory
	if !opts.KeepCarts {
		carts = func(userID string) orders.CartClearer {
			return cart.NewEngine(st, userID, cart.Options{
				OperationTimeout: sessOpts.OperationTimeout,
				Logger:           log,
			})
		}
	}

	ctx, stop := signalContext(cmd.Context(), log)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Webhook server listening on %s\n", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	srv := server.New(rec, carts, st, log)
	if err := srv.Run(ctx, addr, opts.Config.HTTP.ShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// parent is done.
func signalContext(parent context.Context, log *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
