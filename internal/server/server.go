// Package server exposes the payment webhook that turns completed checkout
// sessions into orders when the buyer never returns to the storefront.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/orders"
)

// EventCheckoutCompleted is the only webhook event acted upon.
const EventCheckoutCompleted = "checkout.session.completed"

// Reconciler creates orders from checkout sessions.
type Reconciler interface {
	Reconcile(ctx context.Context, userID, sessionID string, cart orders.CartClearer) (orders.Result, error)
}

// VersionReader reports the document store's current version. The health
// check uses it to confirm the database answers.
type VersionReader interface {
	Version(ctx context.Context) (int64, error)
}

// CartFactory returns the cart to clear for userID after an order is
// created. It may return nil to leave carts alone.
type CartFactory func(userID string) orders.CartClearer

// Server is the webhook HTTP server.
type Server struct {
	router *gin.Engine
	rec    Reconciler
	carts  CartFactory
	store  VersionReader
	log    *slog.Logger
}

// CheckoutEvent is the subset of the payment processor's event payload the
// webhook reads.
type CheckoutEvent struct {
	Type string `json:"type" binding:"required"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ReconcileResponse is the body of a handled checkout event.
type ReconcileResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Created     bool   `json:"created"`
}

// New builds the router. carts and st may be nil.
func New(rec Reconciler, carts CartFactory, st VersionReader, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{rec: rec, carts: carts, store: st, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.health)
	r.POST("/webhooks/checkout", s.checkoutWebhook)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("webhook server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("webhook server stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	version, err := s.store.Version(c.Request.Context())
	if err != nil {
		s.log.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "STORE_UNAVAILABLE", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "storeVersion": version})
}

func (s *Server) checkoutWebhook(c *gin.Context) {
	var evt CheckoutEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_INPUT",
			Message: "Invalid event body: " + err.Error(),
		})
		return
	}

	// Other event types are acknowledged so the processor stops retrying.
	if evt.Type != EventCheckoutCompleted {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "type": evt.Type})
		return
	}

	sessionID := evt.Data.Object.ID
	userID := evt.Data.Object.Metadata[domain.MetaUserID]
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_INPUT",
			Message: "event is missing the session id or metadata.userId",
		})
		return
	}

	var cart orders.CartClearer
	if s.carts != nil {
		cart = s.carts(userID)
	}

	res, err := s.rec.Reconcile(c.Request.Context(), userID, sessionID, cart)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("webhook reconcile failed", "user", userID, "session", sessionID, "error", err)
		}
		c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ReconcileResponse{
		OrderID:     res.Order.ID,
		OrderNumber: res.Order.OrderNumber,
		Created:     res.Created,
	})
}

// classify maps a reconcile error to an HTTP status and error code.
// 4xx answers tell the processor that retrying will not help.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusBadRequest, "UNAUTHENTICATED"
	case errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidTotals),
		errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, "INVALID_CHECKOUT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
