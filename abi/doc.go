// Package abi defines the values that cross the boundary between Go and the
// native object graph.
//
// Nothing in this package holds a Go object the native side could retain.
// Every value is either plain data (integers, fixed-layout structs, UUIDs),
// an opaque native address (Handle), or a caller-allocated StringBuffer that
// the callee fills in place.
//
// # Handles
//
// A Handle is only meaningful to the native side and is never cached across
// calls. Handles come in two flavors:
//
//	Const   - read-only access, for queries
//	Mutable - obtained immediately before a call that changes native state
//
// Null is the invalid sentinel; a proxy that resolves to Null has lost its
// native twin.
//
// # Callback Slots
//
// Callbacks is the fixed table of native-to-Go entry points. Each field is one
// Slot with a signature that never changes; a new signature means a new slot.
// Installing a nil *Callbacks takes the bridge offline.
package abi
