package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/logging"
	"github.com/roach88/storefront/internal/session"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
)

// confirmationByte drives the constant random source; 10 encodes as 'A'.
const confirmationByte = 10

// Harness executes one scenario.
//
// Each Harness owns a fresh store, a session for the scenario's user and the
// deterministic helpers the session is built with.
type Harness struct {
	store  *store.Store
	sess   *session.Session
	opts   session.Options
	user   string
	seq    *testutil.DeterministicClock
	refs   map[string]string
	labels map[string]string
	logger *slog.Logger
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Open the store and the user's session
// 2. Execute flow steps, checking expectations and invariants after each
// 3. Evaluate assertions
// 4. Capture the final state
//
// A returned error means the scenario could not be executed at all; failed
// expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a caller-supplied context and logger. A nil logger
// discards component logs.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if logger == nil {
		logger = logging.Discard()
	}

	storeID := scenario.StoreID
	if storeID == "" {
		storeID = "SF"
	}

	h := &Harness{
		store: st,
		opts: session.Options{
			StoreID:          storeID,
			OperationTimeout: 5 * time.Second,
			IDs:              doc.NewSequentialGenerator("id"),
			Clock:            testutil.NewStepClock(testutil.DefaultEpoch, time.Second),
			Random:           testutil.ConstantReader(confirmationByte),
			Logger:           logger,
		},
		user:   scenario.User,
		seq:    testutil.NewDeterministicClock(),
		refs:   make(map[string]string),
		labels: make(map[string]string),
		logger: logger,
		result: NewResult(),
	}

	if err := h.open(ctx); err != nil {
		return nil, err
	}
	defer func() { h.sess.Close() }()

	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step)
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, User: scenario.User, Refs: h.refs}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	h.result.State = h.snapshotState()
	return h.result, nil
}

// open creates the session and loads it from the store.
func (h *Harness) open(ctx context.Context) error {
	sess, err := session.Open(h.store, h.user, h.opts)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	if err := sess.Load(ctx); err != nil {
		sess.Close()
		return fmt.Errorf("failed to load session: %w", err)
	}
	h.sess = sess
	return nil
}

// executeStep runs one flow step, records it and checks the outcome.
func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep) {
	op := operations[step.Invoke]
	res, err := op(ctx, h, step)

	ev := TraceEvent{
		Seq:    h.seq.Next(),
		Action: step.Invoke,
		Args:   step.Args,
		Case:   errorCase(err),
	}
	if err == nil {
		ev.Result = res
	}
	h.result.AddTrace(ev)
	h.logger.Debug("scenario step", "seq", ev.Seq, "action", ev.Action, "case", ev.Case)

	want := CaseOK
	if step.Expect != nil && step.Expect.Case != "" {
		want = step.Expect.Case
	}
	if ev.Case != want {
		detail := ""
		if err != nil {
			detail = ": " + err.Error()
		}
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q%s", i, step.Invoke, want, ev.Case, detail))
	} else if step.Expect != nil && len(step.Expect.Result) > 0 && !matchArgs(ev.Result, step.Expect.Result) {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, step.Expect.Result, ev.Result))
	}

	if err := h.checkInvariants(ctx); err != nil {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: invariant violated: %v", i, step.Invoke, err))
	}
}

// bind labels id with ref so later steps and the final state can name it.
func (h *Harness) bind(ref, id string) {
	if ref == "" {
		return
	}
	h.refs[ref] = id
	h.labels[id] = ref
}

// resolve returns the id bound to target, or target itself.
func (h *Harness) resolve(target string) string {
	if id, ok := h.refs[target]; ok {
		return id
	}
	return target
}

// label returns the ref bound to id, or id itself.
func (h *Harness) label(id string) string {
	if ref, ok := h.labels[id]; ok {
		return ref
	}
	return id
}

// Error kinds reported as step cases.
const (
	CaseOK                = "ok"
	CaseUnauthenticated   = "unauthenticated"
	CaseNotFound          = "not_found"
	CaseEmptyOrder        = "empty_order"
	CaseInvalidTotals     = "invalid_totals"
	CaseInvalidTransition = "invalid_transition"
	CaseValidation        = "validation"
	CaseError             = "error"
)

func knownCase(c string) bool {
	switch c {
	case CaseOK, CaseUnauthenticated, CaseNotFound, CaseEmptyOrder,
		CaseInvalidTotals, CaseInvalidTransition, CaseValidation, CaseError:
		return true
	}
	return false
}

// errorCase maps an operation error to its case name.
func errorCase(err error) string {
	switch {
	case err == nil:
		return CaseOK
	case errors.Is(err, domain.ErrUnauthenticated):
		return CaseUnauthenticated
	case errors.Is(err, domain.ErrNotFound):
		return CaseNotFound
	case errors.Is(err, domain.ErrEmptyOrder):
		return CaseEmptyOrder
	case errors.Is(err, domain.ErrInvalidTotals):
		return CaseInvalidTotals
	case errors.Is(err, domain.ErrInvalidTransition):
		return CaseInvalidTransition
	case errors.Is(err, domain.ErrValidation):
		return CaseValidation
	default:
		return CaseError
	}
}

// snapshotState captures the session view of the user's state. Ids are
// replaced by their refs and timestamps are left out, so the snapshot does
// not depend on how many ids or clock readings a run consumed.
func (h *Harness) snapshotState() map[string]any {
	addresses := []any{}
	for _, a := range h.sess.Addresses.Addresses() {
		addresses = append(addresses, map[string]any{
			"ref":       h.label(a.ID),
			"type":      string(a.Type),
			"name":      a.Name,
			"city":      a.City,
			"country":   a.Country,
			"isDefault": a.IsDefault,
		})
	}

	cart := []any{}
	for _, it := range h.sess.Cart.Items() {
		cart = append(cart, map[string]any{
			"productId": it.ProductID,
			"name":      it.Name,
			"price":     it.Price,
			"quantity":  it.Quantity,
		})
	}

	orders := []any{}
	for _, o := range h.sess.Orders.Orders() {
		history := []any{}
		for _, e := range o.StatusHistory {
			history = append(history, string(e.Status))
		}
		entry := map[string]any{
			"ref":           h.label(o.ID),
			"source":        string(o.Source),
			"status":        string(o.Status),
			"history":       history,
			"itemCount":     o.ItemCount(),
			"total":         o.Totals.Total,
			"paymentMethod": o.PaymentMethod,
		}
		if o.CheckoutSessionID != "" {
			entry["checkoutSessionId"] = o.CheckoutSessionID
		}
		if o.Tracking != nil {
			entry["trackingNumber"] = o.Tracking.Number
		}
		orders = append(orders, entry)
	}

	return map[string]any{
		"user":      h.user,
		"addresses": addresses,
		"cart":      cart,
		"orders":    orders,
		"cartTotal": h.sess.Cart.TotalPrice(),
		"cartItems": h.sess.Cart.TotalItems(),
	}
}
