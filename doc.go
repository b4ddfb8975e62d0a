// Package objbridge connects Go objects to counterpart objects owned by a
// native host, so that native code can call back into Go through a fixed
// table of callback slots.
//
// Every Go proxy that needs a native presence gets a twin: a native object
// that carries the proxy's serial number. Native code calls a slot with that
// serial, the bridge resolves it to the live proxy and invokes the Go method.
// Native objects created outside Go are reached through anonymous wrappers
// that hold no state and are never registered.
//
// # Architecture Overview
//
//	objbridge/
//	├── abi/             Shared wire types: handles, kinds, slots, callback table
//	├── errors/          Structured error types for debugging
//	├── handle/          Serial-keyed table with lock-free resolve
//	├── registry/        Type registry keyed by type GUID and owning module
//	├── dispatch/        Callback slots, fault containment, install refcount
//	├── bridge/          Proxy base, twin lifecycle, module attach/detach
//	├── render/          Content, texture, material, environment, evaluator,
//	│                    mesh provider and pipeline families
//	├── native/          The native library contract and its conformance suite
//	│   ├── sim/         In-process simulated host
//	│   ├── wasmhost/    Twin store running as a wazero guest module
//	│   └── cabi/        C ABI shared library loaded with purego
//	└── cmd/bridgectl/   Demonstration CLI and interactive inspector
//
// # Quick Start
//
// Register a module's types and give a proxy its twin:
//
//	lib := sim.New(sim.Config{})
//	b := bridge.New(lib, bridge.Config{Wrappers: render.Wrappers()})
//	defer b.Shutdown(ctx)
//
//	err := b.AttachModule(ctx, pluginID,
//	    render.Type(goldID, "Gold", func() *Gold { return &Gold{} }),
//	)
//
//	g := &Gold{}
//	if err := render.Create(ctx, b, g, goldID); err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close(ctx)
//
// # Lifetime
//
// Closing a proxy deletes its twin while the proxy is still registered, so
// delete callbacks raised during the deletion still resolve. A twin deleted
// by native code detaches its proxy: the serial is released and the proxy
// stays usable as a plain Go value.
//
// # Thread Safety
//
// Bridge, handle tables, registries and dispatchers are safe for concurrent
// use. Callbacks may re-enter the bridge from inside another callback on the
// same goroutine.
package objbridge
