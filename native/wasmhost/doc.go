// Package wasmhost keeps the native object graph inside a WebAssembly guest
// running on wazero.
//
// Twin records live in the guest's linear memory and are created, found and
// deleted by guest code. The callback slots are host functions in module
// "rdk": the guest calls rdk.delete_this when it deletes a twin that has a Go
// counterpart, and rdk.evaluator_get_color or rdk.simulate_material when a
// twin is evaluated. Every one of those calls re-enters Go dispatch from
// inside a guest frame.
//
// Handles are guest record addresses. Mutable handles carry an extra bit so
// const handles are rejected by SetString.
package wasmhost
