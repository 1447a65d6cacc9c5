package domain

// Metadata keys of a checkout record.
const (
	MetaOrderItems            = "orderItems"
	MetaSubtotal              = "subtotal"
	MetaShipping              = "originalShipping"
	MetaTax                   = "originalTax"
	MetaTotal                 = "originalTotal"
	MetaShippingMethod        = "shippingMethod"
	MetaEstimatedDeliveryDays = "estimatedDeliveryDays"
	MetaCustomerName          = "customerName"
	MetaShippingName          = "shippingName"
	MetaShippingLine1         = "shippingLine1"
	MetaShippingLine2         = "shippingLine2"
	MetaShippingCity          = "shippingCity"
	MetaShippingState         = "shippingState"
	MetaShippingPostalCode    = "shippingPostalCode"
	MetaShippingCountry       = "shippingCountry"
	MetaShippingPhone         = "shippingPhone"
	MetaUserID                = "userId"
)

// CheckoutRecord is the immutable, externally authored snapshot of a
// completed purchase intent, stored under users/{uid}/checkout_sessions.
//
// Field names follow the payment processor's session object.
type CheckoutRecord struct {
	ID            string            `json:"id" yaml:"id"`
	CustomerEmail string            `json:"customer_email" yaml:"customer_email"`
	CustomerName  string            `json:"customer_name,omitempty" yaml:"customer_name,omitempty"`
	PaymentIntent string            `json:"payment_intent,omitempty" yaml:"payment_intent,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty" yaml:"payment_method,omitempty"`
	Created       int64             `json:"created" yaml:"created"`
	Metadata      map[string]string `json:"metadata" yaml:"metadata"`
}

// Meta returns a metadata value, or "" when absent.
func (r CheckoutRecord) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}
