package bridge

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/dispatch"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/handle"
)

// Proxy is a Go object that stands for a native object. Implementations
// embed Base.
type Proxy interface {
	Serial() int32
	StableID() abi.StableID
	Kind() abi.Kind
	Handle(ctx context.Context) (abi.Handle, error)
	HandleMutable(ctx context.Context) (abi.Handle, error)
	Close(ctx context.Context) error
	proxyBase() *Base
}

// Closer is implemented by proxies that release their own state on Close.
// OnClose runs after the native twin is gone and before the serial leaves
// the table.
type Closer interface {
	OnClose(ctx context.Context)
}

// State is a proxy's lifecycle position.
type State uint32

const (
	StateNew State = iota
	StateLive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var _ dispatch.NativeDeleter = (*Base)(nil)

// Base carries the bridge bookkeeping of a proxy. The zero value is ready to
// be passed to Bridge.Create.
type Base struct {
	bridge *Bridge
	self   Proxy
	typeID uuid.UUID
	kind   abi.Kind
	serial atomic.Int32
	id     atomic.Uint64
	owns   atomic.Bool
	state  atomic.Uint32
}

func (b *Base) proxyBase() *Base { return b }

// Serial is the proxy's table serial, 0 for anonymous wrappers.
func (b *Base) Serial() int32 { return b.serial.Load() }

// StableID is the twin's stable id, 0 once the twin is gone.
func (b *Base) StableID() abi.StableID { return abi.StableID(b.id.Load()) }

// Kind is the native object kind.
func (b *Base) Kind() abi.Kind { return b.kind }

// TypeID is the registered type identifier, uuid.Nil when unknown.
func (b *Base) TypeID() uuid.UUID { return b.typeID }

// State reports the lifecycle position.
func (b *Base) State() State { return State(b.state.Load()) }

// OwnsTwin reports whether Close deletes the native twin.
func (b *Base) OwnsTwin() bool { return b.owns.Load() }

// Anonymous reports whether this is a wrapper with no serial.
func (b *Base) Anonymous() bool { return b.bridge != nil && b.serial.Load() == 0 }

// Bridge is the bridge the proxy belongs to, nil before Create.
func (b *Base) Bridge() *Bridge { return b.bridge }

// Handle resolves a const handle to the twin.
func (b *Base) Handle(ctx context.Context) (abi.Handle, error) {
	return b.resolve(ctx, abi.Const)
}

// HandleMutable resolves a mutable handle. Callers use it for one call and
// drop it.
func (b *Base) HandleMutable(ctx context.Context) (abi.Handle, error) {
	return b.resolve(ctx, abi.Mutable)
}

func (b *Base) resolve(ctx context.Context, access abi.Access) (abi.Handle, error) {
	if b.bridge == nil {
		return abi.Null, errors.NotInitialized(errors.PhaseResolve, "proxy")
	}
	id := abi.StableID(b.id.Load())
	if id == 0 {
		return abi.Null, errors.StaleHandle(errors.PhaseResolve, b.serial.Load(), "twin deleted")
	}
	h := b.bridge.lib.Find(ctx, id, access)
	if !h.Valid() {
		return abi.Null, errors.StaleHandle(errors.PhaseResolve, b.serial.Load(), "twin not found")
	}
	return h, nil
}

// GetString reads one of the twin's strings.
func (b *Base) GetString(ctx context.Context, which abi.StringID) (string, error) {
	h, err := b.Handle(ctx)
	if err != nil {
		return "", err
	}
	out := abi.NewStringBuffer(64)
	if !b.bridge.lib.GetString(ctx, h, which, out) {
		return "", errors.New(errors.PhaseResolve, errors.KindNotFound).
			Serial(b.serial.Load()).
			Detail("string %d not available", which).
			Build()
	}
	return out.String(), nil
}

// SetString writes one of the twin's strings through a fresh mutable handle.
func (b *Base) SetString(ctx context.Context, which abi.StringID, value string) error {
	h, err := b.HandleMutable(ctx)
	if err != nil {
		return err
	}
	if !b.bridge.lib.SetString(ctx, h, which, value) {
		return errors.New(errors.PhaseResolve, errors.KindNative).
			Serial(b.serial.Load()).
			Detail("native side rejected string %d", which).
			Build()
	}
	return nil
}

// NativeDeleted is called through the delete slots when native code destroys
// the twin. A live proxy forgets the twin and leaves the table; a later Close
// only runs the Go side of teardown.
func (b *Base) NativeDeleted(context.Context) {
	b.id.Store(0)
	b.owns.Store(false)
	if State(b.state.Load()) != StateLive || b.bridge == nil {
		return
	}
	serial := b.serial.Load()
	if serial > 0 {
		b.bridge.table.Unregister(handle.Serial(serial))
	}
	b.bridge.logger.Debug("twin deleted by native side", zap.Int32("serial", serial))
}

// Close tears the proxy down. An owned twin is deleted first, then OnClose
// runs, then the serial leaves the table. Closing twice is a no-op.
func (b *Base) Close(ctx context.Context) error {
	if !b.state.CompareAndSwap(uint32(StateLive), uint32(StateClosing)) {
		return nil
	}
	br := b.bridge
	serial := b.serial.Load()

	var err error
	if id := abi.StableID(b.id.Load()); id != 0 && b.owns.Load() {
		if derr := br.lib.DeleteTwin(ctx, id); derr != nil && !errors.Is(derr, errors.ErrNotFound) {
			err = errors.New(errors.PhaseTeardown, errors.KindNative).
				Serial(serial).
				TypeID(b.typeID).
				Cause(derr).
				Detail("delete twin").
				Build()
		}
	}
	b.id.Store(0)
	b.owns.Store(false)

	if c, ok := b.self.(Closer); ok {
		c.OnClose(ctx)
	}
	if serial > 0 {
		br.table.Unregister(handle.Serial(serial))
	}
	b.state.Store(uint32(StateClosed))
	return err
}

// Same reports whether a and b stand for the same native object.
func Same(a, b Proxy) bool {
	if a == nil || b == nil {
		return false
	}
	ida, idb := a.StableID(), b.StableID()
	return ida != 0 && ida == idb
}

// Anonymous is the default wrapper for native objects with no Go
// counterpart.
type Anonymous struct {
	Base
}

// WrapperFunc builds a stateless wrapper for a native-owned object.
type WrapperFunc func(desc abi.Description) Proxy

// DefaultWrapper returns an Anonymous.
func DefaultWrapper(abi.Description) Proxy {
	return &Anonymous{}
}
