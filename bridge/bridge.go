package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/dispatch"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/handle"
	"github.com/wippyai/objbridge/native"
	"github.com/wippyai/objbridge/registry"
)

// Config configures a Bridge.
type Config struct {
	Logger *zap.Logger

	// Registry is shared when set; otherwise the bridge creates its own.
	Registry *registry.Registry

	// Reporter receives dispatch faults. Defaults to a zap reporter on Logger.
	Reporter dispatch.Reporter

	// Wrappers build anonymous wrappers per kind. Kinds without an entry get
	// DefaultWrapper.
	Wrappers map[abi.Kind]WrapperFunc

	FaultLogSize int
}

// Bridge connects a handle table, a type registry and a dispatcher to one
// native library.
type Bridge struct {
	lib        native.Library
	table      *handle.Table[Proxy]
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	wrappers   map[abi.Kind]WrapperFunc
	logger     *zap.Logger

	events  watchers
	modMu   sync.Mutex
	modules map[uuid.UUID]int
	closed  atomic.Bool
}

var _ dispatch.Resolver = (*Bridge)(nil)

// New creates a bridge over lib. Nothing is installed until the first
// AttachModule or Attach.
func New(lib native.Library, cfg Config) *Bridge {
	b := &Bridge{
		lib:      lib,
		table:    handle.NewTable[Proxy](),
		registry: cfg.Registry,
		wrappers: make(map[abi.Kind]WrapperFunc, len(cfg.Wrappers)),
		logger:   cfg.Logger,
		modules:  make(map[uuid.UUID]int),
	}
	if b.logger == nil {
		b.logger = Logger()
	}
	if b.registry == nil {
		b.registry = registry.New()
	}
	for k, w := range cfg.Wrappers {
		if w != nil {
			b.wrappers[k] = w
		}
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = dispatch.LogReporter{Logger: b.logger}
	}
	b.dispatcher = dispatch.New(dispatch.Config{
		Resolver:     b,
		Installer:    lib,
		Factory:      b.newContent,
		Reporter:     reporter,
		FaultLogSize: cfg.FaultLogSize,
	})
	return b
}

// Library returns the native library.
func (b *Bridge) Library() native.Library { return b.lib }

// Registry returns the type registry.
func (b *Bridge) Registry() *registry.Registry { return b.registry }

// Dispatcher returns the callback dispatcher.
func (b *Bridge) Dispatcher() *dispatch.Dispatcher { return b.dispatcher }

// Table returns the handle table.
func (b *Bridge) Table() *handle.Table[Proxy] { return b.table }

// ResolveTarget implements dispatch.Resolver.
func (b *Bridge) ResolveTarget(serial int32) (any, bool) {
	p, ok := b.table.Resolve(handle.Serial(serial))
	if !ok {
		return nil, false
	}
	return p, true
}

// Lookup returns the proxy registered under serial.
func (b *Bridge) Lookup(serial int32) (Proxy, bool) {
	return b.table.Resolve(handle.Serial(serial))
}

// Create registers p and asks the native side for a twin carrying its
// serial. The twin's stable id is what p uses from then on. If the twin
// cannot be made, p leaves the table and the error is returned.
//
// Zero Owner and Kind in spec are filled from the registry entry for
// spec.TypeID.
func (b *Bridge) Create(ctx context.Context, p Proxy, spec abi.TwinSpec) error {
	if p == nil {
		return errors.InvalidInput(errors.PhaseConstruct, "nil proxy")
	}
	if b.closed.Load() {
		return errors.Closed(errors.PhaseConstruct, "bridge")
	}
	base := p.proxyBase()
	if base.bridge != nil || State(base.state.Load()) != StateNew {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			Serial(base.serial.Load()).
			Detail("proxy already bound").
			Build()
	}

	if entry, ok := b.registry.Lookup(spec.TypeID); ok {
		if spec.Owner == uuid.Nil {
			spec.Owner = entry.Owner
		}
		if spec.Kind == abi.KindUnknown {
			spec.Kind = entry.Kind
		}
	}
	if spec.Kind == abi.KindUnknown {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			TypeID(spec.TypeID).
			Detail("twin kind unknown").
			Build()
	}

	base.bridge = b
	base.self = p
	base.typeID = spec.TypeID
	base.kind = spec.Kind

	serial := b.table.Register(p)
	if !serial.Valid() {
		base.state.Store(uint32(StateClosed))
		if b.table.Closed() {
			return errors.Closed(errors.PhaseRegister, "handle table")
		}
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Detail("serial space exhausted").
			Build()
	}
	base.serial.Store(int32(serial))
	spec.Serial = int32(serial)

	id, err := b.lib.NewTwin(ctx, spec)
	if err != nil {
		b.abandon(base, serial)
		return errors.New(errors.PhaseConstruct, errors.KindNative).
			Serial(int32(serial)).
			TypeID(spec.TypeID).
			Cause(err).
			Detail("create native twin").
			Build()
	}

	if got := b.lib.SerialOf(ctx, b.lib.Find(ctx, id, abi.Const)); got != int32(serial) {
		if derr := b.lib.DeleteTwin(ctx, id); derr != nil {
			b.logger.Warn("delete mismatched twin", zap.Uint64("id", uint64(id)), zap.Error(derr))
		}
		b.abandon(base, serial)
		return errors.TwinMismatch(int32(serial), got)
	}

	base.id.Store(uint64(id))
	base.owns.Store(true)

	// Shutdown may have snapshotted the table while the twin was being made.
	// Going live first and then checking closed means either Shutdown sees
	// the live proxy or the proxy sees the closed bridge.
	live := base.state.CompareAndSwap(uint32(StateNew), uint32(StateLive))
	if !live || b.closed.Load() {
		if !live || base.state.CompareAndSwap(uint32(StateLive), uint32(StateClosing)) {
			b.discard(ctx, base, serial)
		}
		return errors.Closed(errors.PhaseConstruct, "bridge")
	}

	b.logger.Debug("proxy created",
		zap.Int32("serial", int32(serial)),
		zap.Stringer("kind", spec.Kind),
		zap.Stringer("type_id", spec.TypeID),
		zap.Uint64("id", uint64(id)))
	return nil
}

// discard deletes a twin made by a Create that lost to Shutdown.
func (b *Bridge) discard(ctx context.Context, base *Base, serial handle.Serial) {
	id := abi.StableID(base.id.Swap(0))
	base.owns.Store(false)
	if id != 0 {
		if err := b.lib.DeleteTwin(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			b.logger.Warn("delete twin of discarded proxy",
				zap.Int32("serial", int32(serial)),
				zap.Uint64("id", uint64(id)),
				zap.Error(err))
		}
	}
	b.abandon(base, serial)
}

func (b *Bridge) abandon(base *Base, serial handle.Serial) {
	b.table.Unregister(serial)
	base.state.Store(uint32(StateClosed))
}

// FromHandle returns the proxy for a native object. Twins resolve to their
// registered proxy. Anything else gets a fresh anonymous wrapper with serial
// 0; wrappers hold no state and are never registered.
func (b *Bridge) FromHandle(ctx context.Context, h abi.Handle) (Proxy, error) {
	if !h.Valid() {
		return nil, errors.InvalidInput(errors.PhaseResolve, "null handle")
	}
	if serial := b.lib.SerialOf(ctx, h); serial > 0 {
		if p, ok := b.table.Resolve(handle.Serial(serial)); ok {
			return p, nil
		}
	}

	desc, ok := b.lib.Describe(ctx, h)
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseResolve, 0, "native object not found")
	}
	wrap := b.wrappers[desc.Kind]
	if wrap == nil {
		wrap = DefaultWrapper
	}
	p := wrap(desc)
	if p == nil {
		return nil, errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			TypeID(desc.TypeID).
			Detail("wrapper for %s returned nil", desc.Kind).
			Build()
	}

	base := p.proxyBase()
	base.bridge = b
	base.self = p
	base.typeID = desc.TypeID
	base.kind = desc.Kind
	base.id.Store(uint64(desc.ID))
	base.state.Store(uint32(StateLive))
	return p, nil
}

// NewContent builds a proxy of a registered type and gives it a twin.
func (b *Bridge) NewContent(ctx context.Context, typeID uuid.UUID) (Proxy, error) {
	v, err := b.registry.CreateFromTypeID(typeID)
	if err != nil {
		return nil, err
	}
	p, ok := v.(Proxy)
	if !ok {
		return nil, errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			TypeID(typeID).
			Detail("constructor returned %T, not a proxy", v).
			Build()
	}
	if err := b.Create(ctx, p, abi.TwinSpec{TypeID: typeID}); err != nil {
		return nil, err
	}
	return p, nil
}

// newContent serves the new-content slot: native code expects a twin it
// can modify.
func (b *Bridge) newContent(ctx context.Context, typeID uuid.UUID) (abi.Handle, error) {
	p, err := b.NewContent(ctx, typeID)
	if err != nil {
		return abi.Null, err
	}
	h, err := p.HandleMutable(ctx)
	if err != nil {
		_ = p.Close(ctx)
		return abi.Null, err
	}
	return h, nil
}

// Attach takes a reference on the installed callback table.
func (b *Bridge) Attach(ctx context.Context) error {
	if b.closed.Load() {
		return errors.Closed(errors.PhaseInstall, "bridge")
	}
	return b.dispatcher.Attach(ctx)
}

// Detach drops a reference on the callback table.
func (b *Bridge) Detach(ctx context.Context) error {
	return b.dispatcher.Detach(ctx)
}

// AttachModule registers a module's types and takes a reference on the
// callback table for it. Attaching the same module again only adds a
// reference.
func (b *Bridge) AttachModule(ctx context.Context, owner uuid.UUID, types ...registry.Type) error {
	if b.closed.Load() {
		return errors.Closed(errors.PhaseInstall, "bridge")
	}
	b.modMu.Lock()
	defer b.modMu.Unlock()

	first := b.modules[owner] == 0
	if err := b.registry.Register(owner, types...); err != nil {
		return err
	}
	if err := b.dispatcher.Attach(ctx); err != nil {
		if first {
			b.registry.Unregister(owner)
		}
		return err
	}
	b.modules[owner]++
	b.logger.Info("module attached",
		zap.Stringer("owner", owner),
		zap.Int("types", len(types)),
		zap.Int("refs", b.dispatcher.Refs()))
	return nil
}

// DetachModule drops one reference of a module. The last one unregisters its
// types; the last module overall takes the bridge offline.
func (b *Bridge) DetachModule(ctx context.Context, owner uuid.UUID) error {
	b.modMu.Lock()
	defer b.modMu.Unlock()

	n, ok := b.modules[owner]
	if !ok {
		return errors.NotFound(errors.PhaseInstall, "module", owner.String())
	}
	if n <= 1 {
		delete(b.modules, owner)
		removed := b.registry.Unregister(owner)
		b.logger.Info("module detached", zap.Stringer("owner", owner), zap.Int("types", removed))
	} else {
		b.modules[owner] = n - 1
	}
	return b.dispatcher.Detach(ctx)
}

// Modules returns the attached module ids and their reference counts.
func (b *Bridge) Modules() map[uuid.UUID]int {
	b.modMu.Lock()
	defer b.modMu.Unlock()
	out := make(map[uuid.UUID]int, len(b.modules))
	for k, v := range b.modules {
		out[k] = v
	}
	return out
}

// Proxies returns the registered proxies in serial order.
func (b *Bridge) Proxies() []Proxy {
	var out []Proxy
	b.table.Each(func(_ handle.Serial, p Proxy) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Shutdown removes the event callbacks, takes the callback table offline,
// closes every registered proxy and closes the table. The native library
// stays open. Shutdown is idempotent. If either kind of callback cannot be
// removed nothing is torn down, the bridge stays open and Shutdown can be
// retried.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.goOffline(ctx); err != nil {
		b.closed.Store(false)
		b.logger.Error("shutdown aborted", zap.Error(err))
		return err
	}

	var errs []error

	proxies := b.Proxies()
	for _, p := range proxies {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.table.Close()

	b.modMu.Lock()
	for owner := range b.modules {
		b.registry.Unregister(owner)
	}
	clear(b.modules)
	b.modMu.Unlock()

	b.logger.Info("bridge shut down", zap.Int("closed", len(proxies)), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// goOffline removes the event callbacks and then the slot table. A failure
// puts back what was already removed.
func (b *Bridge) goOffline(ctx context.Context) error {
	b.events.mu.Lock()
	defer b.events.mu.Unlock()

	if err := b.setEvents(ctx, false); err != nil {
		if rerr := b.setEvents(ctx, true); rerr != nil {
			b.logger.Warn("restore event callbacks", zap.Error(rerr))
		}
		return err
	}
	if err := b.dispatcher.Uninstall(ctx); err != nil {
		if rerr := b.setEvents(ctx, true); rerr != nil {
			b.logger.Warn("restore event callbacks", zap.Error(rerr))
		}
		return err
	}
	b.events.subs = [abi.EventCount][]watch{}
	return nil
}
