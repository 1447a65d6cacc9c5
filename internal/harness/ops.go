package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
)

// operation executes one flow step and returns its observable result.
type operation func(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error)

// operations maps flow step names to their implementation.
var operations = map[string]operation{
	"address.add":         addAddress,
	"address.update":      updateAddress,
	"address.delete":      deleteAddress,
	"address.set_default": setDefaultAddress,
	"cart.add":            addToCart,
	"cart.set":            setCartQuantity,
	"cart.remove":         removeFromCart,
	"cart.clear":          clearCart,
	"checkout.put":        putCheckout,
	"checkout.reconcile":  reconcileCheckout,
	"order.test":          createTestOrder,
	"order.status":        updateOrderStatus,
	"order.tracking":      updateOrderTracking,
	"session.reload":      reloadSession,
}

// decodeArgs decodes step args into v. Unknown keys are rejected. Fields of
// v that have no key in args keep their current value.
func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

type addressArgs struct {
	Type       string `yaml:"type"`
	Default    bool   `yaml:"default"`
	Name       string `yaml:"name"`
	Phone      string `yaml:"phone"`
	Line1      string `yaml:"line1"`
	Line2      string `yaml:"line2"`
	City       string `yaml:"city"`
	State      string `yaml:"state"`
	PostalCode string `yaml:"postal_code"`
	Country    string `yaml:"country"`
}

func (a addressArgs) address() domain.Address {
	return domain.Address{
		Type:       domain.AddressType(a.Type),
		IsDefault:  a.Default,
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func addAddress(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args addressArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	added, err := h.sess.Addresses.Add(ctx, args.address())
	if err != nil {
		return nil, err
	}
	h.bind(step.Ref, added.ID)
	return map[string]any{"isDefault": added.IsDefault}, nil
}

// updateAddress overlays the step args on the current address, so a step
// only names the fields it changes.
func updateAddress(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	id := h.resolve(step.Target)
	var args addressArgs
	for _, a := range h.sess.Addresses.Addresses() {
		if a.ID == id {
			args = addressArgs{
				Type:       string(a.Type),
				Default:    a.IsDefault,
				Name:       a.Name,
				Phone:      a.Phone,
				Line1:      a.Line1,
				Line2:      a.Line2,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
			}
		}
	}
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	updated, err := h.sess.Addresses.Update(ctx, id, args.address())
	if err != nil {
		return nil, err
	}
	return map[string]any{"isDefault": updated.IsDefault}, nil
}

func deleteAddress(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	if err := h.sess.Addresses.Delete(ctx, h.resolve(step.Target)); err != nil {
		return nil, err
	}
	return defaultResult(h), nil
}

func setDefaultAddress(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	if err := h.sess.Addresses.SetDefault(ctx, h.resolve(step.Target)); err != nil {
		return nil, err
	}
	return defaultResult(h), nil
}

// defaultResult reports the ref of the current default address.
func defaultResult(h *Harness) map[string]any {
	def, ok := h.sess.Addresses.Default()
	if !ok {
		return map[string]any{"default": ""}
	}
	return map[string]any{"default": h.label(def.ID)}
}

type cartArgs struct {
	Product     string   `yaml:"product"`
	Name        string   `yaml:"name"`
	Price       float64  `yaml:"price"`
	Quantity    int      `yaml:"quantity"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Images      []string `yaml:"images"`
	InStock     *bool    `yaml:"in_stock"`
}

func (a cartArgs) product() domain.ProductSnapshot {
	inStock := true
	if a.InStock != nil {
		inStock = *a.InStock
	}
	return domain.ProductSnapshot{
		Name:        a.Name,
		Price:       a.Price,
		Description: a.Description,
		Category:    a.Category,
		Images:      a.Images,
		InStock:     inStock,
	}
}

func addToCart(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	args := cartArgs{Quantity: 1}
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	it, err := h.sess.Cart.AddItem(ctx, args.Product, args.product(), args.Quantity)
	if err != nil {
		return nil, err
	}
	return map[string]any{"quantity": it.Quantity}, nil
}

func setCartQuantity(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args cartArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	it, err := h.sess.Cart.SetQuantity(ctx, args.Product, args.Quantity)
	if err != nil {
		return nil, err
	}
	return map[string]any{"quantity": it.Quantity}, nil
}

func removeFromCart(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args cartArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	if err := h.sess.Cart.RemoveItem(ctx, args.Product); err != nil {
		return nil, err
	}
	return map[string]any{"items": h.sess.Cart.TotalItems()}, nil
}

func clearCart(ctx context.Context, h *Harness, _ FlowStep) (map[string]any, error) {
	if err := h.sess.Cart.Clear(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"items": h.sess.Cart.TotalItems()}, nil
}

// putCheckout stores a checkout record the way the payment processor's
// webhook handler does.
func putCheckout(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var rec domain.CheckoutRecord
	if err := decodeArgs(step.Args, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, fmt.Errorf("%w: checkout record needs an id", domain.ErrValidation)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	fields, err := doc.Encode(rec)
	if err != nil {
		return nil, err
	}
	if _, err := h.store.Set(ctx, doc.Collection(h.user, doc.FamilyCheckoutSessions), rec.ID, fields); err != nil {
		return nil, err
	}
	return nil, nil
}

type reconcileArgs struct {
	Session string `yaml:"session"`
}

func reconcileCheckout(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args reconcileArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	res, err := h.sess.CompleteCheckout(ctx, args.Session)
	if err != nil {
		return nil, err
	}
	if _, bound := h.labels[res.Order.ID]; !bound {
		h.bind(step.Ref, res.Order.ID)
	}
	return map[string]any{
		"created": res.Created,
		"order":   h.label(res.Order.ID),
		"status":  string(res.Order.Status),
		"total":   res.Order.Totals.Total,
	}, nil
}

func createTestOrder(_ context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	o, err := h.sess.OrderFromCart()
	if err != nil {
		return nil, err
	}
	h.bind(step.Ref, o.ID)
	return map[string]any{
		"status": string(o.Status),
		"total":  o.Totals.Total,
	}, nil
}

type statusArgs struct {
	Status string `yaml:"status"`
	Note   string `yaml:"note"`
}

func updateOrderStatus(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args statusArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	status, err := domain.ParseOrderStatus(args.Status)
	if err != nil {
		return nil, err
	}
	o, err := h.sess.Orders.UpdateStatus(ctx, h.resolve(step.Target), status, args.Note)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": string(o.Status)}, nil
}

type trackingArgs struct {
	Carrier string `yaml:"carrier"`
	Number  string `yaml:"number"`
	URL     string `yaml:"url"`
}

func updateOrderTracking(ctx context.Context, h *Harness, step FlowStep) (map[string]any, error) {
	var args trackingArgs
	if err := decodeArgs(step.Args, &args); err != nil {
		return nil, err
	}
	o, err := h.sess.Orders.UpdateTracking(ctx, h.resolve(step.Target), domain.Tracking{
		Carrier: args.Carrier,
		Number:  args.Number,
		URL:     args.URL,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": string(o.Status)}, nil
}

// reloadSession replaces the session with a fresh one loaded from the
// store, as a second device of the same user would see it. Local test
// orders do not survive a reload.
func reloadSession(ctx context.Context, h *Harness, _ FlowStep) (map[string]any, error) {
	h.sess.Close()
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	return map[string]any{
		"addresses": len(h.sess.Addresses.Addresses()),
		"cartItems": h.sess.Cart.TotalItems(),
		"orders":    len(h.sess.Orders.Orders()),
	}, nil
}
