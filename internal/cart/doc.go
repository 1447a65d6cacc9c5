// Package cart keeps a local cart cache consistent with the remote cart.
//
// Local writes are applied optimistically, committed in a store transaction
// and then reconciled with the committed result. The live feed from the
// store overwrites the cache wholesale except for products that are fenced:
// a product with a write in flight, or whose last local commit carries a
// store version newer than the incoming snapshot. Fencing is what keeps a
// late feed event from resurrecting a line the user just removed.
//
// Adds for a product that already has a line become quantity increments.
// Within one Engine a per-product lock serializes operations; across
// engines (other tabs, other devices) the store transaction does a
// find-or-create by product id, so a product never gets two lines.
package cart
