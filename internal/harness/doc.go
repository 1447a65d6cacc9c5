// Package harness runs storefront scenarios as executable contract tests.
//
// A scenario drives one user's session (addresses, cart, orders) through a
// flow of operations against a fresh in-memory store, checks the commerce
// invariants after every step, and evaluates assertions on the trace and on
// the stored documents.
//
// # Scenario Format
//
//	name: checkout_clears_cart
//	description: "Reconciling a checkout creates one order and empties the cart"
//	user: u1
//	flow:
//	  - invoke: cart.add
//	    args: { product: p1, name: Vase, price: 25, quantity: 2 }
//	  - invoke: checkout.put
//	    args: { id: cs_1, customer_email: ada@example.com, metadata: {...} }
//	  - invoke: checkout.reconcile
//	    ref: first
//	    args: { session: cs_1 }
//	    expect:
//	      case: ok
//	      result: { created: true }
//	assertions:
//	  - type: trace_count
//	    action: checkout.reconcile
//	    count: 1
//	  - type: final_state
//	    family: orders
//	    where: { ref: first }
//	    expect: { status: confirmed }
//
// # Operations
//
//   - address.add, address.update, address.delete, address.set_default
//   - cart.add, cart.set, cart.remove, cart.clear
//   - checkout.put, checkout.reconcile
//   - order.test, order.status, order.tracking
//   - session.reload
//
// A step's ref names the address or order it creates; later steps address
// it through target. Expected cases are "ok" or an error kind:
// unauthenticated, not_found, empty_order, invalid_totals,
// invalid_transition, validation or error.
//
// # Invariants
//
// After every step the harness verifies that the user has exactly one
// default address (or none), that cart lines are unique per product and
// match the stored lines, that every stored order is valid, and that no
// checkout session produced more than one order. A violation fails the
// scenario.
//
// # Deterministic Testing
//
// Runs use a step clock starting at testutil.DefaultEpoch, sequential ids
// and a constant random source, so traces and final state are identical
// across runs and can be compared against golden files.
package harness
