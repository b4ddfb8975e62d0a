// Package native defines the contract the bridge uses to reach the native
// object graph.
//
// A Library owns every native object. The bridge never keeps a native address
// between calls: it keeps the StableID returned by NewTwin and asks Find for a
// fresh Handle of the required Access each time. Find returns abi.Null once
// the object is gone.
//
// Implementations live in subpackages: sim (an in-process object graph),
// wasmhost (objects in a WebAssembly guest) and cabi (a C shared library).
package native

import (
	"context"

	"github.com/wippyai/objbridge/abi"
)

// Library is the native side of the bridge. All methods are safe for
// concurrent use and may call back into the installed abi.Callbacks.
type Library interface {
	// NewTwin creates the native twin for a Go proxy with spec.Serial and
	// returns its stable identity.
	NewTwin(ctx context.Context, spec abi.TwinSpec) (abi.StableID, error)

	// DeleteTwin destroys the object. Objects with a serial notify Go
	// through the kind's delete slot.
	DeleteTwin(ctx context.Context, id abi.StableID) error

	// Find resolves a stable identity to a handle of the requested access.
	Find(ctx context.Context, id abi.StableID, access abi.Access) abi.Handle

	// SerialOf returns the serial of the Go counterpart of h, or 0.
	SerialOf(ctx context.Context, h abi.Handle) int32

	// Describe reports identity and kind of the object behind h.
	Describe(ctx context.Context, h abi.Handle) (abi.Description, bool)

	// GetString fills out with a string property. Ownership of out stays
	// with the caller.
	GetString(ctx context.Context, h abi.Handle, which abi.StringID, out *abi.StringBuffer) bool

	// SetString changes a string property. h must be a mutable handle.
	SetString(ctx context.Context, h abi.Handle, which abi.StringID, value string) bool

	// GetColor evaluates a texture evaluator.
	GetColor(ctx context.Context, h abi.Handle, uvw, duvwdx, duvwdy abi.Vec3) (abi.Color4f, bool)

	// SimulateMaterial asks a material for its display approximation.
	SimulateMaterial(ctx context.Context, h abi.Handle) (abi.SimulatedMaterial, bool)

	// SetCallbacks installs the callback table. Nil takes the bridge offline.
	SetCallbacks(ctx context.Context, cb *abi.Callbacks) error

	Close(ctx context.Context) error
}

// EventSource is implemented by libraries that report document events.
// Each event has its own callback so a host only pays for the events
// somebody watches.
type EventSource interface {
	// SetEventCallback installs fn for ev. Nil removes it.
	SetEventCallback(ctx context.Context, ev abi.Event, fn abi.EventFunc) error
}

// DeleteSlot returns the slot a library calls when it destroys an object of
// kind k that has a Go counterpart.
func DeleteSlot(k abi.Kind) abi.Slot {
	switch k {
	case abi.KindTextureEvaluator:
		return abi.SlotEvaluatorDeleteThis
	case abi.KindMeshProvider:
		return abi.SlotMeshProviderDeleteThis
	case abi.KindContentIO:
		return abi.SlotIODeleteThis
	}
	return abi.SlotDeleteThis
}

// NotifyDeleted calls the delete slot for kind k if cb has one installed.
func NotifyDeleted(ctx context.Context, cb *abi.Callbacks, k abi.Kind, serial int32) {
	if cb == nil || serial <= 0 {
		return
	}
	var fn func(context.Context, int32)
	switch DeleteSlot(k) {
	case abi.SlotEvaluatorDeleteThis:
		fn = cb.EvaluatorDeleteThis
	case abi.SlotMeshProviderDeleteThis:
		fn = cb.MeshProviderDeleteThis
	case abi.SlotIODeleteThis:
		fn = cb.IODeleteThis
	default:
		fn = cb.DeleteThis
	}
	if fn != nil {
		fn(ctx, serial)
	}
}
