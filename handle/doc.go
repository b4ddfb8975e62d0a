// Package handle implements the serial-number table that maps small positive
// integers to Go proxy objects.
//
// Serials start at 1 and are never reused, even after the entry they named is
// unregistered. Serial 0 (None) means "no Go counterpart". An entry with
// serial s lives at index s-1 for as long as it is registered.
//
// Resolve is lock-free and safe to call from any thread, including from inside
// a callback that is itself running on behalf of another Resolve. Register and
// Unregister serialize on a single mutex that is never held while observer or
// caller code runs.
package handle
