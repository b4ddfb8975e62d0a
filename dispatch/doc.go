// Package dispatch builds the callback table the native side calls into and
// routes every call to the Go proxy registered under the caller's serial.
//
// Every slot follows the same algorithm:
//
//  1. resolve the serial; a miss, or a proxy that does not implement the
//     slot's target interface, returns the slot's sentinel
//  2. run the target method with no dispatcher lock held
//  3. a panic or a returned error becomes the sentinel plus a Fault sent to
//     the Reporter; nothing unwinds into the native frame
//
// Slot installation is reference counted. The first Attach installs the whole
// table, the last Detach installs nil so the native side sees the bridge
// offline. Uninstall forces that state during shutdown.
package dispatch
