// Package doc defines the schemaless document model shared by the store and
// the commerce components.
//
// A document is a flat or nested JSON object (Fields) addressed by a
// collection path and an id. Collections are partitioned per user:
//
//	users/{uid}/addresses
//	users/{uid}/cart
//	users/{uid}/checkout_sessions
//	users/{uid}/orders
//
// Documents are persisted as canonical JSON: object keys sorted by UTF-16
// code units, strings NFC normalized, no HTML escaping. The same bytes are
// produced for the same logical document regardless of map iteration order,
// which keeps golden snapshots and change detection stable.
package doc
