// Package bridge ties Go proxies to objects in a native object graph.
//
// A proxy embeds Base. Proxies created from Go (Create) are registered in the
// handle table first and then get a native twin that carries their serial;
// from then on the twin's stable id is the only way the proxy reaches native
// memory, and every call re-resolves a fresh handle from it. Objects that
// native code created on its own are viewed through anonymous wrappers
// (FromHandle): they have serial 0, are never registered and are rebuilt on
// every lookup.
//
// Teardown order matters. Closing a proxy deletes its twin while the proxy is
// still registered, so a delete notification racing the close resolves to a
// closing proxy rather than to an empty slot. Shutdown takes the callback
// table offline before any proxy is closed.
//
// Watch subscribes to document events on libraries that report them. Event
// content arrives as a handle and is resolved like any other, so a twin is
// seen as its proxy.
//
//	b := bridge.New(lib, bridge.Config{})
//	if err := b.AttachModule(ctx, pluginID, types...); err != nil { ... }
//	defer b.Shutdown(ctx)
//
//	m := &Marble{}
//	if err := b.Create(ctx, m, abi.TwinSpec{TypeID: marbleID, Kind: abi.KindTexture}); err != nil { ... }
//	defer m.Close(ctx)
package bridge
