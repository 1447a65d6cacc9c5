package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Action: "cart.add", Args: map[string]any{"product": "p1", "quantity": 2}, Case: CaseOK},
		{Seq: 2, Action: "checkout.put", Args: map[string]any{"id": "cs_1"}, Case: CaseOK},
		{Seq: 3, Action: "checkout.reconcile", Args: map[string]any{"session": "cs_1"}, Case: CaseOK},
		{Seq: 4, Action: "checkout.reconcile", Args: map[string]any{"session": "cs_1"}, Case: CaseOK},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "cart.add", Args: map[string]any{"quantity": 2.0}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "checkout.put"}))

	err := assertTraceContains(trace, Assertion{Action: "cart.add", Args: map[string]any{"product": "p9"}})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"cart.add", "checkout.reconcile"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"checkout.reconcile", "cart.add"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"cart.add", "order.test"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: order.test")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "checkout.reconcile", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "order.test", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Action: "checkout.reconcile", Count: 1}))
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"json number vs int", json.Number("59"), 59, true},
		{"json number vs float", json.Number("10.5"), 10.5, true},
		{"int vs float", 4, 4.0, true},
		{"number mismatch", json.Number("59.01"), 59, false},
		{"string", "shipped", "shipped", true},
		{"string vs number", "59", 59, false},
		{"bool", true, true, true},
		{"nil both", nil, nil, true},
		{"nil actual", nil, "x", false},
		{"nested subset", map[string]any{"total": json.Number("25"), "tax": json.Number("0")}, map[string]any{"total": 25}, true},
		{"nested mismatch", map[string]any{"total": json.Number("25")}, map[string]any{"total": 26}, false},
		{"slice", []any{"confirmed", "shipped"}, []any{"confirmed", "shipped"}, true},
		{"slice length", []any{"confirmed"}, []any{"confirmed", "shipped"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestAssertFinalState(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := t.Context()
	coll := doc.Collection("u1", doc.FamilyOrders)
	_, err = st.Set(ctx, coll, "o-1", doc.Fields{"status": "shipped", "checkoutSessionId": "cs_1"})
	require.NoError(t, err)
	_, err = st.Set(ctx, coll, "o-2", doc.Fields{"status": "confirmed", "checkoutSessionId": "cs_2"})
	require.NoError(t, err)

	actx := &AssertionContext{Ctx: ctx, Store: st, User: "u1", Refs: map[string]string{"first": "o-1"}}

	assert.NoError(t, assertFinalState(actx, Assertion{
		Family: "orders",
		Where:  map[string]any{"ref": "first"},
		Expect: map[string]any{"status": "shipped"},
	}))
	assert.NoError(t, assertFinalState(actx, Assertion{
		Family: "orders",
		Where:  map[string]any{"checkoutSessionId": "cs_3"},
		Absent: true,
	}))

	err = assertFinalState(actx, Assertion{
		Family: "orders",
		Where:  map[string]any{"id": "o-2"},
		Expect: map[string]any{"status": "shipped"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "status" = shipped`)

	err = assertFinalState(actx, Assertion{
		Family: "orders",
		Where:  map[string]any{"status": "shipped"},
		Expect: map[string]any{"trackingNumber": "1Z"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present")

	err = assertFinalState(&AssertionContext{Ctx: ctx, Store: st, User: "u2"}, Assertion{
		Family: "orders",
		Where:  map[string]any{"id": "o-1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")
}

func TestEvaluateAssertions_RequiresStoreForFinalState(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertFinalState, Family: "orders"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires store context")
}
