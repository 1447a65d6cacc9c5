package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/testutil"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"valid", `[{"productId":"p1","name":"Vase","price":25,"quantity":2}]`, 1},
		{"string price", `[{"productId":"p1","name":"Vase","price":"25.50","quantity":1}]`, 1},
		{"missing", "", 0},
		{"not json", "{oops", 0},
		{"object instead of array", `{"productId":"p1"}`, 0},
		{"zero quantity", `[{"productId":"p1","price":1,"quantity":0}]`, 0},
		{"missing product", `[{"price":1,"quantity":1}]`, 0},
		{"negative price", `[{"productId":"p1","price":-1,"quantity":1}]`, 0},
		{"one bad line spoils the array", `[{"productId":"p1","price":1,"quantity":1},{"productId":"p2","price":1,"quantity":0}]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseItems(map[string]string{domain.MetaOrderItems: tt.raw})
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseItems_Values(t *testing.T) {
	got := ParseItems(map[string]string{
		domain.MetaOrderItems: `[{"productId":"p1","name":"Vase","price":"25.50","quantity":2,"image":"vase.png"}]`,
	})
	require.Len(t, got, 1)
	assert.Equal(t, domain.OrderItem{ProductID: "p1", Name: "Vase", Price: 25.5, Quantity: 2, Image: "vase.png"}, got[0])
}

func TestParseItems_NilMetadata(t *testing.T) {
	assert.Empty(t, ParseItems(nil))
}

func TestParseTotals(t *testing.T) {
	items := []domain.OrderItem{{ProductID: "p1", Price: 25, Quantity: 2}}

	t.Run("all present", func(t *testing.T) {
		got, err := ParseTotals(vaseRecord("cs_1").Metadata, items)
		require.NoError(t, err)
		assert.Equal(t, domain.Totals{Subtotal: 50, Shipping: 5, Tax: 4, Total: 59}, got)
	})

	t.Run("missing amounts fall back", func(t *testing.T) {
		got, err := ParseTotals(map[string]string{}, items)
		require.NoError(t, err)
		assert.Equal(t, domain.Totals{Subtotal: 50, Total: 50}, got)
	})

	t.Run("malformed amounts fall back", func(t *testing.T) {
		got, err := ParseTotals(map[string]string{
			domain.MetaSubtotal: "fifty",
			domain.MetaShipping: "5.00",
			domain.MetaTax:      "n/a",
		}, items)
		require.NoError(t, err)
		assert.Equal(t, domain.Totals{Subtotal: 50, Shipping: 5, Total: 55}, got)
	})

	t.Run("cent amounts add up exactly", func(t *testing.T) {
		got, err := ParseTotals(map[string]string{
			domain.MetaSubtotal: "0.10",
			domain.MetaShipping: "0.20",
			domain.MetaTotal:    "0.30",
		}, items)
		require.NoError(t, err)
		assert.InDelta(t, 0.3, got.Total, domain.TotalsTolerance)
	})

	t.Run("inconsistent total", func(t *testing.T) {
		_, err := ParseTotals(map[string]string{
			domain.MetaSubtotal: "50.00",
			domain.MetaTotal:    "99.00",
		}, items)
		assert.ErrorIs(t, err, domain.ErrInvalidTotals)
	})

	t.Run("negative shipping", func(t *testing.T) {
		_, err := ParseTotals(map[string]string{
			domain.MetaSubtotal: "50.00",
			domain.MetaShipping: "-5.00",
			domain.MetaTotal:    "45.00",
		}, items)
		assert.ErrorIs(t, err, domain.ErrInvalidTotals)
	})
}

func TestEstimatedDelivery(t *testing.T) {
	created := testutil.DefaultEpoch
	tests := []struct {
		window string
		days   int
	}{
		{"3-5", 5},
		{"5-7", 7},
		{"4", 4},
		{" 2 - 9 ", 9},
		{"", DefaultDeliveryDays},
		{"soon", DefaultDeliveryDays},
		{"3-", DefaultDeliveryDays},
		{"0", DefaultDeliveryDays},
	}

	for _, tt := range tests {
		t.Run(tt.window, func(t *testing.T) {
			got := EstimatedDelivery(created, tt.window, DefaultDeliveryDays)
			assert.Equal(t, created.Add(time.Duration(tt.days)*24*time.Hour), got)
		})
	}
}
