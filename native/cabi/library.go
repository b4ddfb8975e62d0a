package cabi

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
)

var _ native.Library = (*Library)(nil)

// description mirrors rdk_description.
type description struct {
	TypeID [16]byte
	ID     uint64
	Kind   int32
	Serial int32
}

// bindings are the library's exported functions.
type bindings struct {
	twinNew      func(typeID, owner *byte, kind, serial int32) uint64
	twinDelete   func(id uint64) int32
	twinFind     func(id uint64, mutable int32) uintptr
	twinSerial   func(h uintptr) int32
	twinDescribe func(h uintptr, out *description) int32
	getString    func(h uintptr, which int32, buf *byte, capacity int32) int32
	setString    func(h uintptr, which int32, value string) int32
	getColor     func(h uintptr, in *[9]float64, out *abi.Color4f) int32
	simulate     func(h uintptr, out *abi.SimulatedMaterial) int32
	setCallback  func(slot int32, fn uintptr)
}

// Library is a native.Library over a dlopen'd C shared object.
type Library struct {
	fn      bindings
	handle  uintptr
	path    string
	dlclose func(uintptr) error
	logger  *zap.Logger
	closed  atomic.Bool
}

// Path returns the shared object the library was opened from.
func (l *Library) Path() string { return l.path }

// NewTwin implements native.Library.
func (l *Library) NewTwin(_ context.Context, spec abi.TwinSpec) (abi.StableID, error) {
	if spec.Serial <= 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Serial(spec.Serial).
			TypeID(spec.TypeID).
			Detail("twin requires a positive serial").
			Build()
	}
	if l.closed.Load() {
		return 0, errors.Closed(errors.PhaseNative, "native library")
	}
	id := l.fn.twinNew(&spec.TypeID[0], &spec.Owner[0], int32(spec.Kind), spec.Serial)
	if id == 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindNative).
			Serial(spec.Serial).
			TypeID(spec.TypeID).
			Detail("rdk_twin_new refused the twin").
			Build()
	}
	return abi.StableID(id), nil
}

// DeleteTwin implements native.Library.
func (l *Library) DeleteTwin(_ context.Context, id abi.StableID) error {
	if l.closed.Load() {
		return errors.Closed(errors.PhaseNative, "native library")
	}
	if l.fn.twinDelete(uint64(id)) == 0 {
		return errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("no native object with id %d", id).
			Build()
	}
	return nil
}

// Find implements native.Library.
func (l *Library) Find(_ context.Context, id abi.StableID, access abi.Access) abi.Handle {
	if l.closed.Load() || id == 0 {
		return abi.Null
	}
	var mutable int32
	if access == abi.Mutable {
		mutable = 1
	}
	return abi.Handle(l.fn.twinFind(uint64(id), mutable))
}

// SerialOf implements native.Library.
func (l *Library) SerialOf(_ context.Context, h abi.Handle) int32 {
	if l.closed.Load() || !h.Valid() {
		return 0
	}
	return l.fn.twinSerial(uintptr(h))
}

// Describe implements native.Library.
func (l *Library) Describe(_ context.Context, h abi.Handle) (abi.Description, bool) {
	if l.closed.Load() || !h.Valid() {
		return abi.Description{}, false
	}
	var d description
	if l.fn.twinDescribe(uintptr(h), &d) == 0 {
		return abi.Description{}, false
	}
	return abi.Description{
		TypeID: d.TypeID,
		ID:     abi.StableID(d.ID),
		Kind:   abi.Kind(d.Kind),
		Serial: d.Serial,
	}, true
}

// GetString implements native.Library.
func (l *Library) GetString(_ context.Context, h abi.Handle, which abi.StringID, out *abi.StringBuffer) bool {
	if out == nil || l.closed.Load() || !h.Valid() {
		return false
	}
	buf := make([]byte, 256)
	for {
		n := l.fn.getString(uintptr(h), int32(which), &buf[0], int32(len(buf)))
		if n < 0 {
			return false
		}
		if int(n) <= len(buf) {
			out.SetBytes(buf[:n])
			return true
		}
		buf = make([]byte, n)
	}
}

// SetString implements native.Library.
func (l *Library) SetString(_ context.Context, h abi.Handle, which abi.StringID, value string) bool {
	if l.closed.Load() || !h.Valid() {
		return false
	}
	return l.fn.setString(uintptr(h), int32(which), value) != 0
}

// GetColor implements native.Library.
func (l *Library) GetColor(_ context.Context, h abi.Handle, uvw, duvwdx, duvwdy abi.Vec3) (abi.Color4f, bool) {
	if l.closed.Load() || !h.Valid() {
		return abi.Color4f{}, false
	}
	in := [9]float64{
		uvw.X, uvw.Y, uvw.Z,
		duvwdx.X, duvwdx.Y, duvwdx.Z,
		duvwdy.X, duvwdy.Y, duvwdy.Z,
	}
	var out abi.Color4f
	if l.fn.getColor(uintptr(h), &in, &out) == 0 {
		return abi.Color4f{}, false
	}
	return out, true
}

// SimulateMaterial implements native.Library.
func (l *Library) SimulateMaterial(_ context.Context, h abi.Handle) (abi.SimulatedMaterial, bool) {
	if l.closed.Load() || !h.Valid() {
		return abi.SimulatedMaterial{}, false
	}
	var out abi.SimulatedMaterial
	if l.fn.simulate(uintptr(h), &out) == 0 {
		return abi.SimulatedMaterial{}, false
	}
	return out, true
}

// SetCallbacks implements native.Library. Only the slots the C side can
// reach are handed over; nil clears all of them.
//
// The trampolines are shared by the whole process, so only one Library can
// hold callbacks at a time. Installing while another Library holds them
// fails; clearing only releases them if this Library holds them.
func (l *Library) SetCallbacks(_ context.Context, cb *abi.Callbacks) error {
	if l.closed.Load() {
		if cb == nil {
			return nil
		}
		return errors.Closed(errors.PhaseInstall, "native library")
	}

	ownerMu.Lock()
	defer ownerMu.Unlock()
	if cb == nil {
		for _, s := range bridgedSlots {
			l.fn.setCallback(int32(s), 0)
		}
		if owner == l {
			active.Store(nil)
			owner = nil
		}
		return nil
	}
	if owner != nil && owner != l {
		return errors.New(errors.PhaseInstall, errors.KindUnsupported).
			Detail("callbacks already installed by %s", owner.path).
			Build()
	}

	owner = l
	active.Store(cb)
	tr := loadTrampolines()
	for _, s := range bridgedSlots {
		var fn uintptr
		if cb.Installed(s) {
			fn = tr[s]
		}
		l.fn.setCallback(int32(s), fn)
	}
	l.logger.Debug("callbacks installed", zap.String("path", l.path), zap.Int("slots", cb.Count()))
	return nil
}

// Close clears the callbacks and releases the shared object. It is
// idempotent.
func (l *Library) Close(ctx context.Context) error {
	if l.closed.Load() {
		return nil
	}
	_ = l.SetCallbacks(ctx, nil)
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.dlclose == nil || l.handle == 0 {
		return nil
	}
	if err := l.dlclose(l.handle); err != nil {
		return errors.Wrap(errors.PhaseTeardown, errors.KindNative, err, "dlclose "+l.path)
	}
	return nil
}
