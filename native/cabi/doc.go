// Package cabi binds a native object library exported as plain C symbols.
//
// The library is opened with purego, so no cgo toolchain is needed. It must
// export the functions declared in rdk.h. Go callbacks are handed to the
// library with rdk_set_callback; the trampolines behind them are created
// once per process. A C callback carries only a serial, so the trampolines
// serve one Library at a time: a second Library cannot install callbacks
// until the first clears them or is closed.
//
// The library path comes from Config.Path or, when empty, the
// OBJBRIDGE_NATIVE_LIB environment variable.
package cabi
