// Package orders turns completed checkout records into canonical orders.
//
// A checkout record is written by the payment processor integration under
// users/{uid}/checkout_sessions/{sessionID}. Reconcile converts it into
// exactly one Order under users/{uid}/orders, no matter how many callers
// (the browser return page, the payment webhook, a manual retry) race on the
// same session id. The existence check and the order write share one store
// transaction and an idempotency key claimed on the session id.
//
// After creation the order changes only through UpdateStatus and
// UpdateTracking, which append to the status history and never rewrite it.
package orders
