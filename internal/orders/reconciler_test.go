package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/testutil"
)

func TestReconcile_VaseScenario(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r, _ := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_test_a1B2c3D4e5"))
	cart := &countingCart{}

	res, err := r.Reconcile(ctx, "u1", "cs_test_a1B2c3D4e5", cart)
	require.NoError(t, err)
	require.True(t, res.Created)

	o := res.Order
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, 25.0, o.Items[0].Price)
	assert.InDelta(t, 59.0, o.Totals.Total, domain.TotalsTolerance)
	assert.Equal(t, domain.StatusConfirmed, o.Status)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, domain.StatusConfirmed, o.StatusHistory[0].Status)

	assert.Equal(t, "order-0001", o.ID)
	assert.Equal(t, "SF-94400000-A1B2C3", o.OrderNumber)
	assert.Equal(t, "AAAA0000U4", o.ConfirmationNumber)
	assert.Equal(t, "u1", o.CustomerID)
	assert.Equal(t, "Ada Lovelace", o.ShippingAddress.Name)
	assert.Equal(t, "express", o.ShippingMethod)
	assert.Equal(t, testutil.DefaultEpoch.AddDate(0, 0, 5), o.EstimatedDelivery)
	assert.Equal(t, domain.SourceRemote, o.Source)
	assert.Equal(t, "cs_test_a1B2c3D4e5", o.CheckoutSessionID)
	require.NoError(t, o.Validate())

	assert.Equal(t, 1, cart.count())
	assert.Equal(t, 1, countOrders(t, st, "u1"))
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r, _ := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_1"))
	cart := &countingCart{}

	first, err := r.Reconcile(ctx, "u1", "cs_1", cart)
	require.NoError(t, err)
	second, err := r.Reconcile(ctx, "u1", "cs_1", cart)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.ConfirmationNumber, second.Order.ConfirmationNumber)
	assert.Equal(t, 1, countOrders(t, st, "u1"))
	assert.Equal(t, 1, cart.count(), "cart is cleared only by the creating call")
}

func TestReconcile_ConcurrentCallersCreateOneOrder(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r := NewReconciler(st, Options{Random: fixedRandom{}})
	putCheckout(t, st, "u1", vaseRecord("cs_race"))
	cart := &countingCart{}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Reconcile(ctx, "u1", "cs_race", cart)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		assert.Equal(t, results[0].Order.ID, results[i].Order.ID)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countOrders(t, st, "u1"))
	assert.Equal(t, 1, cart.count())
}

func TestReconcile_EmptyItemsLeavesCartAlone(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r, _ := newTestReconciler(t, st)

	rec := vaseRecord("cs_empty")
	rec.Metadata[domain.MetaOrderItems] = "not json"
	putCheckout(t, st, "u1", rec)
	cart := &countingCart{}

	_, err := r.Reconcile(ctx, "u1", "cs_empty", cart)
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
	assert.Equal(t, 0, cart.count())
	assert.Equal(t, 0, countOrders(t, st, "u1"))
}

func TestReconcile_InvalidTotals(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)

	rec := vaseRecord("cs_bad_total")
	rec.Metadata[domain.MetaTotal] = "60.00"
	putCheckout(t, st, "u1", rec)

	_, err := r.Reconcile(context.Background(), "u1", "cs_bad_total", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTotals)
	assert.Equal(t, 0, countOrders(t, st, "u1"))
}

func TestReconcile_MissingSession(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)

	_, err := r.Reconcile(context.Background(), "u1", "cs_missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcile_SessionsAreScopedPerUser(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_1"))

	_, err := r.Reconcile(context.Background(), "u2", "cs_1", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcile_MalformedRecord(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)

	_, err := st.Set(context.Background(), doc.Collection("u1", doc.FamilyCheckoutSessions), "cs_junk",
		doc.Fields{"id": "cs_junk", "created": "yesterday"})
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background(), "u1", "cs_junk", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_MissingCreatedUsesReconcileTime(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)

	fields, err := doc.Encode(vaseRecord("cs_undated"))
	require.NoError(t, err)
	delete(fields, "created")
	_, err = st.Set(context.Background(), doc.Collection("u1", doc.FamilyCheckoutSessions), "cs_undated", fields)
	require.NoError(t, err)

	res, err := r.Reconcile(context.Background(), "u1", "cs_undated", nil)
	require.NoError(t, err)
	o := res.Order
	assert.Equal(t, o.CreatedAt.AddDate(0, 0, 5), o.EstimatedDelivery)
}

func TestReconcile_RequiresUser(t *testing.T) {
	r, _ := newTestReconciler(t, openStore(t))
	_, err := r.Reconcile(context.Background(), "", "cs_1", nil)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = r.Reconcile(context.Background(), "u1", " ", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_CartClearFailureKeepsOrder(t *testing.T) {
	st := openStore(t)
	r, _ := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_1"))
	cart := &countingCart{err: errors.New("offline")}

	res, err := r.Reconcile(context.Background(), "u1", "cs_1", cart)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, countOrders(t, st, "u1"))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r, clk := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_1"))
	res, err := r.Reconcile(ctx, "u1", "cs_1", nil)
	require.NoError(t, err)

	o, err := r.UpdateStatus(ctx, "u1", res.Order.ID, domain.StatusProcessing, "Packing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, o.Status)
	require.Len(t, o.StatusHistory, 2)
	assert.Equal(t, "Packing", o.StatusHistory[1].Note)

	// A wall clock that jumps backwards must not reorder history.
	clk.Set(testutil.DefaultEpoch.Add(-time.Hour))
	o, err = r.UpdateStatus(ctx, "u1", res.Order.ID, domain.StatusShipped, "")
	require.NoError(t, err)
	require.NoError(t, o.Validate())
	assert.False(t, o.StatusHistory[2].Timestamp.Before(o.StatusHistory[1].Timestamp))

	_, err = r.UpdateStatus(ctx, "u1", res.Order.ID, domain.StatusPending, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := st.Get(ctx, doc.Collection("u1", doc.FamilyOrders), res.Order.ID)
	require.NoError(t, err)
	var reloaded domain.Order
	require.NoError(t, domain.DecodeDocument(domain.KindOrder, stored.Fields, &reloaded))
	assert.Equal(t, domain.StatusShipped, reloaded.Status)
	assert.Len(t, reloaded.StatusHistory, 3)
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	r, _ := newTestReconciler(t, openStore(t))
	_, err := r.UpdateStatus(context.Background(), "u1", "nope", domain.StatusShipped, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateTracking(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	r, _ := newTestReconciler(t, st)
	putCheckout(t, st, "u1", vaseRecord("cs_1"))
	res, err := r.Reconcile(ctx, "u1", "cs_1", nil)
	require.NoError(t, err)

	o, err := r.UpdateTracking(ctx, "u1", res.Order.ID, domain.Tracking{Carrier: "UPS", Number: "1Z999"})
	require.NoError(t, err)
	require.NotNil(t, o.Tracking)
	assert.Equal(t, "1Z999", o.Tracking.Number)
	assert.Equal(t, domain.StatusShipped, o.Status)
	assert.Equal(t, "Shipped via UPS", o.StatusHistory[len(o.StatusHistory)-1].Note)

	// Already shipped: tracking changes, history does not.
	o, err = r.UpdateTracking(ctx, "u1", res.Order.ID, domain.Tracking{Carrier: "UPS", Number: "1Z000"})
	require.NoError(t, err)
	assert.Equal(t, "1Z000", o.Tracking.Number)
	assert.Len(t, o.StatusHistory, 2)

	_, err = r.UpdateTracking(ctx, "u1", res.Order.ID, domain.Tracking{Carrier: "UPS"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewTestOrder(t *testing.T) {
	r, _ := newTestReconciler(t, openStore(t))

	o, err := r.NewTestOrder("u1", []domain.OrderItem{
		{ProductID: "p1", Name: "Vase", Price: 19.99, Quantity: 3},
	}, domain.ShippingAddress{Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceLocal, o.Source)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Len(t, o.StatusHistory, 1)
	assert.InDelta(t, 59.97, o.Totals.Total, domain.TotalsTolerance)
	require.NoError(t, o.Validate())

	_, err = r.NewTestOrder("u1", nil, domain.ShippingAddress{})
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
	_, err = r.NewTestOrder("", nil, domain.ShippingAddress{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
