package sim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
)

var _ native.Library = (*Library)(nil)

type object struct {
	strings   map[abi.StringID]string
	typeID    uuid.UUID
	material  abi.SimulatedMaterial
	color     abi.Color4f
	id        abi.StableID
	constAddr abi.Handle
	mutAddr   abi.Handle
	io        abi.IOSpec
	kind      abi.Kind
	serial    int32
}

type address struct {
	obj     *object
	mutable bool
}

// Library is the simulated native side.
type Library struct {
	objects  map[abi.StableID]*object
	addrs    map[abi.Handle]address
	serials  map[int32]abi.StableID
	cb       atomic.Pointer[abi.Callbacks]
	logger   *zap.Logger
	events   [abi.EventCount]abi.EventFunc
	mu       sync.Mutex
	nextID   abi.StableID
	nextAddr abi.Handle
	closed   bool
}

// Config configures a simulated library.
type Config struct {
	Logger *zap.Logger
}

// New creates an empty object graph.
func New(cfg Config) *Library {
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	return &Library{
		objects:  make(map[abi.StableID]*object),
		addrs:    make(map[abi.Handle]address),
		serials:  make(map[int32]abi.StableID),
		logger:   l,
		nextAddr: 0x10000,
	}
}

// allocAddr returns a fresh address. Addresses are never reused. Caller
// holds mu.
func (l *Library) allocAddr(o *object, mutable bool) abi.Handle {
	l.nextAddr += 0x40
	h := l.nextAddr
	l.addrs[h] = address{obj: o, mutable: mutable}
	return h
}

func (l *Library) insert(kind abi.Kind, typeID uuid.UUID, serial int32) *object {
	l.nextID++
	o := &object{
		id:      l.nextID,
		kind:    kind,
		typeID:  typeID,
		serial:  serial,
		strings: make(map[abi.StringID]string),
	}
	o.constAddr = l.allocAddr(o, false)
	o.mutAddr = l.allocAddr(o, true)
	l.objects[o.id] = o
	if serial > 0 {
		l.serials[serial] = o.id
	}
	return o
}

// NewTwin implements native.Library.
func (l *Library) NewTwin(_ context.Context, spec abi.TwinSpec) (abi.StableID, error) {
	if spec.Serial <= 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Serial(spec.Serial).
			TypeID(spec.TypeID).
			Detail("twin requires a positive serial").
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, errors.Closed(errors.PhaseNative, "sim library")
	}
	if _, taken := l.serials[spec.Serial]; taken {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Serial(spec.Serial).
			Detail("serial already has a twin").
			Build()
	}
	o := l.insert(spec.Kind, spec.TypeID, spec.Serial)
	if spec.Kind == abi.KindContentIO {
		o.io = spec.IO
	}
	l.logger.Debug("twin created",
		zap.Uint64("id", uint64(o.id)),
		zap.Int32("serial", spec.Serial),
		zap.Stringer("kind", spec.Kind))
	return o.id, nil
}

// Adopt creates an object that exists only on the native side, the way a
// document loaded from disk carries content no Go code created.
func (l *Library) Adopt(kind abi.Kind, typeID uuid.UUID, name string) abi.StableID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0
	}
	o := l.insert(kind, typeID, 0)
	if name != "" {
		o.strings[abi.StringName] = name
	}
	return o.id
}

// SetNativeMaterial sets what SimulateMaterial reports for a native-only material.
func (l *Library) SetNativeMaterial(id abi.StableID, m abi.SimulatedMaterial) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[id]
	if !ok {
		return false
	}
	o.material = m
	return true
}

// SetNativeColor sets what GetColor reports for a native-only evaluator.
func (l *Library) SetNativeColor(id abi.StableID, c abi.Color4f) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[id]
	if !ok {
		return false
	}
	o.color = c
	return true
}

// DeleteTwin implements native.Library. Content is announced as deleting
// while it still resolves; the object is gone before the delete slot runs.
func (l *Library) DeleteTwin(ctx context.Context, id abi.StableID) error {
	l.mu.Lock()
	o, ok := l.objects[id]
	if ok && o.kind.IsContent() {
		if fn := l.events[abi.EventContentDeleting]; fn != nil {
			h := o.constAddr
			l.mu.Unlock()
			fn(ctx, abi.EventContentDeleting, h, 0)
			l.mu.Lock()
			o, ok = l.objects[id]
		}
	}
	if !ok {
		l.mu.Unlock()
		return errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("no native object with id %d", id).
			Build()
	}
	l.removeLocked(o)
	l.mu.Unlock()

	native.NotifyDeleted(ctx, l.cb.Load(), o.kind, o.serial)
	return nil
}

func (l *Library) removeLocked(o *object) {
	delete(l.objects, o.id)
	delete(l.addrs, o.constAddr)
	delete(l.addrs, o.mutAddr)
	if o.serial > 0 {
		delete(l.serials, o.serial)
	}
}

// Relocate moves an object to new addresses. Handles obtained before the
// move stop resolving.
func (l *Library) Relocate(id abi.StableID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[id]
	if !ok {
		return false
	}
	delete(l.addrs, o.constAddr)
	delete(l.addrs, o.mutAddr)
	o.constAddr = l.allocAddr(o, false)
	o.mutAddr = l.allocAddr(o, true)
	return true
}

// Find implements native.Library.
func (l *Library) Find(_ context.Context, id abi.StableID, access abi.Access) abi.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[id]
	if !ok {
		return abi.Null
	}
	if access == abi.Mutable {
		return o.mutAddr
	}
	return o.constAddr
}

func (l *Library) lookup(h abi.Handle) (address, bool) {
	if !h.Valid() {
		return address{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.addrs[h]
	return a, ok
}

// SerialOf implements native.Library.
func (l *Library) SerialOf(_ context.Context, h abi.Handle) int32 {
	a, ok := l.lookup(h)
	if !ok {
		return 0
	}
	return a.obj.serial
}

// Describe implements native.Library.
func (l *Library) Describe(_ context.Context, h abi.Handle) (abi.Description, bool) {
	a, ok := l.lookup(h)
	if !ok {
		return abi.Description{}, false
	}
	return abi.Description{
		ID:     a.obj.id,
		Kind:   a.obj.kind,
		TypeID: a.obj.typeID,
		Serial: a.obj.serial,
	}, true
}

// GetString implements native.Library. A string the native side does not
// hold is asked of the Go counterpart through the content string slot.
func (l *Library) GetString(ctx context.Context, h abi.Handle, which abi.StringID, out *abi.StringBuffer) bool {
	if out == nil {
		return false
	}
	a, ok := l.lookup(h)
	if !ok {
		return false
	}
	l.mu.Lock()
	s, have := a.obj.strings[which]
	serial := a.obj.serial
	l.mu.Unlock()

	if have {
		out.Set(s)
		return true
	}
	cb := l.cb.Load()
	if serial <= 0 || cb == nil || cb.ContentString == nil {
		return false
	}
	return cb.ContentString(ctx, serial, which, out)
}

// SetString implements native.Library. It rejects const handles and retires
// the mutable handle it was given. Renaming content raises
// EventContentRenamed; any other string raises EventContentChanged.
func (l *Library) SetString(ctx context.Context, h abi.Handle, which abi.StringID, value string) bool {
	if !h.Valid() {
		return false
	}
	l.mu.Lock()
	a, ok := l.addrs[h]
	if !ok || !a.mutable {
		l.mu.Unlock()
		return false
	}
	a.obj.strings[which] = value
	delete(l.addrs, a.obj.mutAddr)
	a.obj.mutAddr = l.allocAddr(a.obj, true)
	content, constAddr := a.obj.kind.IsContent(), a.obj.constAddr
	l.mu.Unlock()

	if content {
		if which == abi.StringName {
			l.emit(ctx, abi.EventContentRenamed, constAddr, 0)
		} else {
			l.emit(ctx, abi.EventContentChanged, constAddr, int32(abi.ChangeProgram))
		}
	}
	return true
}

// GetColor implements native.Library.
func (l *Library) GetColor(ctx context.Context, h abi.Handle, uvw, duvwdx, duvwdy abi.Vec3) (abi.Color4f, bool) {
	a, ok := l.lookup(h)
	if !ok || a.obj.kind != abi.KindTextureEvaluator {
		return abi.Color4f{}, false
	}
	if a.obj.serial == 0 {
		l.mu.Lock()
		c := a.obj.color
		l.mu.Unlock()
		return c, !c.Empty()
	}
	cb := l.cb.Load()
	if cb == nil || cb.EvaluatorGetColor == nil {
		return abi.Color4f{}, false
	}
	var out abi.Color4f
	if !cb.EvaluatorGetColor(ctx, a.obj.serial, uvw, duvwdx, duvwdy, &out) {
		return abi.Color4f{}, false
	}
	return out, true
}

// SimulateMaterial implements native.Library.
func (l *Library) SimulateMaterial(ctx context.Context, h abi.Handle) (abi.SimulatedMaterial, bool) {
	a, ok := l.lookup(h)
	if !ok || a.obj.kind != abi.KindMaterial {
		return abi.SimulatedMaterial{}, false
	}
	if a.obj.serial == 0 {
		l.mu.Lock()
		m := a.obj.material
		l.mu.Unlock()
		return m, true
	}
	cb := l.cb.Load()
	if cb == nil || cb.SimulateMaterial == nil {
		return abi.SimulatedMaterial{}, false
	}
	var out abi.SimulatedMaterial
	if !cb.SimulateMaterial(ctx, a.obj.serial, &out, false) {
		return abi.SimulatedMaterial{}, false
	}
	return out, true
}

// SetCallbacks implements native.Library.
func (l *Library) SetCallbacks(_ context.Context, cb *abi.Callbacks) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed && cb != nil {
		return errors.Closed(errors.PhaseInstall, "sim library")
	}
	l.cb.Store(cb)
	return nil
}

// Callbacks returns the installed table, nil when the bridge is offline.
func (l *Library) Callbacks() *abi.Callbacks {
	return l.cb.Load()
}

// Len returns the number of live native objects.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

// Close drops every object without notifying Go. It is idempotent.
func (l *Library) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.cb.Store(nil)
	l.events = [abi.EventCount]abi.EventFunc{}
	l.objects = make(map[abi.StableID]*object)
	l.addrs = make(map[abi.Handle]address)
	l.serials = make(map[int32]abi.StableID)
	return nil
}
