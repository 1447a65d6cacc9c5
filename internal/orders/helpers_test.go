package orders

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
)

// fixedRandom fills every read with byte 10, which maps to 'A' in base 36.
type fixedRandom struct{}

func (fixedRandom) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 10
	}
	return len(p), nil
}

// countingCart records Clear calls.
type countingCart struct {
	mu     sync.Mutex
	clears int
	err    error
}

func (c *countingCart) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	return c.err
}

func (c *countingCart) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestReconciler(t *testing.T, st DocumentStore) (*Reconciler, *testutil.StepClock) {
	t.Helper()
	clk := testutil.NewStepClock(testutil.DefaultEpoch, time.Second)
	r := NewReconciler(st, Options{
		StoreID: "SF",
		IDs:     doc.NewSequentialGenerator("order"),
		Clock:   clk,
		Random:  fixedRandom{},
	})
	return r, clk
}

// vaseRecord is the checkout record of a two-vase purchase.
func vaseRecord(id string) domain.CheckoutRecord {
	return domain.CheckoutRecord{
		ID:            id,
		CustomerEmail: "ada@example.com",
		CustomerName:  "Ada Lovelace",
		PaymentIntent: "pi_123",
		PaymentMethod: "card",
		Created:       testutil.DefaultEpoch.Unix(),
		Metadata: map[string]string{
			domain.MetaOrderItems:            `[{"productId":"p1","name":"Vase","price":25,"quantity":2}]`,
			domain.MetaSubtotal:              "50.00",
			domain.MetaShipping:              "5.00",
			domain.MetaTax:                   "4.00",
			domain.MetaTotal:                 "59.00",
			domain.MetaShippingMethod:        "express",
			domain.MetaEstimatedDeliveryDays: "3-5",
			domain.MetaShippingLine1:         "12 St James's Square",
			domain.MetaShippingCity:          "London",
			domain.MetaShippingPostalCode:    "SW1Y 4JH",
			domain.MetaShippingCountry:       "GB",
		},
	}
}

func putCheckout(t *testing.T, st *store.Store, userID string, rec domain.CheckoutRecord) {
	t.Helper()
	fields, err := doc.Encode(rec)
	require.NoError(t, err)
	_, err = st.Set(context.Background(), doc.Collection(userID, doc.FamilyCheckoutSessions), rec.ID, fields)
	require.NoError(t, err)
}

func countOrders(t *testing.T, st *store.Store, userID string) int {
	t.Helper()
	docs, err := st.List(context.Background(), doc.Collection(userID, doc.FamilyOrders))
	require.NoError(t, err)
	return len(docs)
}
