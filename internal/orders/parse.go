package orders

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/domain"
)

// DefaultDeliveryDays is used when a checkout record has no usable
// estimated delivery window.
const DefaultDeliveryDays = 7

type rawItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// ParseItems decodes the JSON item array stored in checkout metadata.
//
// Malformed or missing data yields an empty slice, never an error: the
// caller decides that zero items is fatal. An array containing any invalid
// line (no product id, quantity below one, negative price) is treated as
// malformed as a whole.
func ParseItems(metadata map[string]string) []domain.OrderItem {
	raw := strings.TrimSpace(metadata[domain.MetaOrderItems])
	if raw == "" {
		return []domain.OrderItem{}
	}

	var parsed []rawItem
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return []domain.OrderItem{}
	}

	items := make([]domain.OrderItem, 0, len(parsed))
	for _, it := range parsed {
		if it.ProductID == "" || it.Quantity < 1 || it.Price.IsNegative() {
			return []domain.OrderItem{}
		}
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.InexactFloat64(),
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}
	return items
}

// parseAmount reads a decimal string. ok is false for missing or malformed
// values so callers can fall back to a default.
func parseAmount(s string) (d decimal.Decimal, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseTotals reads subtotal, shipping, tax and total from metadata.
//
// Missing or malformed amounts fall back: subtotal to the sum of the items,
// shipping and tax to zero, total to the sum of the three. The result must
// still satisfy domain.Totals.Validate.
func ParseTotals(metadata map[string]string, items []domain.OrderItem) (domain.Totals, error) {
	subtotal, ok := parseAmount(metadata[domain.MetaSubtotal])
	if !ok {
		subtotal = decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	shipping, _ := parseAmount(metadata[domain.MetaShipping])
	tax, _ := parseAmount(metadata[domain.MetaTax])

	total, ok := parseAmount(metadata[domain.MetaTotal])
	if !ok {
		total = subtotal.Add(shipping).Add(tax)
	}

	totals := domain.Totals{
		Subtotal: subtotal.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
	if err := totals.Validate(); err != nil {
		return domain.Totals{}, err
	}
	return totals, nil
}

// EstimatedDelivery adds the upper bound of a "min-max" business-day window
// to created. A single number is used as is; anything unparsable uses
// fallbackDays.
func EstimatedDelivery(created time.Time, window string, fallbackDays int) time.Time {
	days := fallbackDays
	window = strings.TrimSpace(window)
	if window != "" {
		parts := strings.Split(window, "-")
		if n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil && n > 0 {
			days = n
		}
	}
	return created.AddDate(0, 0, days)
}
