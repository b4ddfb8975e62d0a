package cabi

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/objbridge/abi"
)

// bridgedSlots are the callbacks a C library can invoke.
var bridgedSlots = []abi.Slot{
	abi.SlotDeleteThis,
	abi.SlotContentString,
	abi.SlotSimulateMaterial,
	abi.SlotEvaluatorGetColor,
	abi.SlotEvaluatorDeleteThis,
	abi.SlotMeshProviderDeleteThis,
	abi.SlotIODeleteThis,
}

var (
	active atomic.Pointer[abi.Callbacks]

	// owner is the Library whose callbacks active holds.
	ownerMu sync.Mutex
	owner   *Library

	trampolinesOnce sync.Once
	trampolines     [abi.SlotCount]uintptr
)

// loadTrampolines creates the C-callable function pointers on first use.
// purego never frees callbacks, so they are made exactly once.
func loadTrampolines() *[abi.SlotCount]uintptr {
	trampolinesOnce.Do(func() {
		trampolines[abi.SlotDeleteThis] = newCallback(cbDeleteThis)
		trampolines[abi.SlotContentString] = newCallback(cbContentString)
		trampolines[abi.SlotSimulateMaterial] = newCallback(cbSimulateMaterial)
		trampolines[abi.SlotEvaluatorGetColor] = newCallback(cbEvaluatorGetColor)
		trampolines[abi.SlotEvaluatorDeleteThis] = newCallback(cbEvaluatorDeleteThis)
		trampolines[abi.SlotMeshProviderDeleteThis] = newCallback(cbMeshProviderDeleteThis)
		trampolines[abi.SlotIODeleteThis] = newCallback(cbIODeleteThis)
	})
	return &trampolines
}

// Calls arriving from C carry no context of their own.

func cbDeleteThis(serial int32) {
	if cb := active.Load(); cb != nil && cb.DeleteThis != nil {
		cb.DeleteThis(context.Background(), serial)
	}
}

func cbEvaluatorDeleteThis(serial int32) {
	if cb := active.Load(); cb != nil && cb.EvaluatorDeleteThis != nil {
		cb.EvaluatorDeleteThis(context.Background(), serial)
	}
}

func cbMeshProviderDeleteThis(serial int32) {
	if cb := active.Load(); cb != nil && cb.MeshProviderDeleteThis != nil {
		cb.MeshProviderDeleteThis(context.Background(), serial)
	}
}

func cbIODeleteThis(serial int32) {
	if cb := active.Load(); cb != nil && cb.IODeleteThis != nil {
		cb.IODeleteThis(context.Background(), serial)
	}
}

// cbContentString writes at most capacity bytes and returns the full length,
// or -1 when the slot declines.
func cbContentString(serial, which int32, buf unsafe.Pointer, capacity int32) int32 {
	cb := active.Load()
	if cb == nil || cb.ContentString == nil {
		return -1
	}
	var out abi.StringBuffer
	if !cb.ContentString(context.Background(), serial, abi.StringID(which), &out) {
		return -1
	}
	s := out.String()
	if buf != nil && capacity > 0 {
		copy(unsafe.Slice((*byte)(buf), capacity), s)
	}
	return int32(len(s))
}

func cbEvaluatorGetColor(serial int32, in, out unsafe.Pointer) int32 {
	cb := active.Load()
	if cb == nil || cb.EvaluatorGetColor == nil || in == nil || out == nil {
		return 0
	}
	v := (*[9]float64)(in)
	ok := cb.EvaluatorGetColor(context.Background(), serial,
		abi.Vec3{X: v[0], Y: v[1], Z: v[2]},
		abi.Vec3{X: v[3], Y: v[4], Z: v[5]},
		abi.Vec3{X: v[6], Y: v[7], Z: v[8]},
		(*abi.Color4f)(out))
	return boolInt(ok)
}

func cbSimulateMaterial(serial int32, out unsafe.Pointer, forDataOnly int32) int32 {
	cb := active.Load()
	if cb == nil || cb.SimulateMaterial == nil || out == nil {
		return 0
	}
	return boolInt(cb.SimulateMaterial(context.Background(), serial, (*abi.SimulatedMaterial)(out), forDataOnly != 0))
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
