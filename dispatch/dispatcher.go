package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
)

// Config configures a Dispatcher.
type Config struct {
	Resolver  Resolver
	Installer Installer
	Factory   Factory
	// Reporter receives faults in addition to the dispatcher's FaultLog.
	// Defaults to LogReporter.
	Reporter     Reporter
	FaultLogSize int
}

// Dispatcher owns the callback table and its install state.
type Dispatcher struct {
	resolver  Resolver
	installer Installer
	factory   Factory
	reporter  Reporter
	faults    *FaultLog
	callbacks *abi.Callbacks
	stats     [abi.SlotCount]slotCounters

	installMu sync.Mutex
	refs      int
	installed atomic.Bool
}

type slotCounters struct {
	calls  atomic.Uint64
	misses atomic.Uint64
	faults atomic.Uint64
}

// SlotStats are the counters of one slot.
type SlotStats struct {
	Slot   abi.Slot
	Calls  uint64
	Misses uint64
	Faults uint64
}

// New creates a dispatcher. The callback table is built once and reused for
// every install.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		resolver:  cfg.Resolver,
		installer: cfg.Installer,
		factory:   cfg.Factory,
		reporter:  cfg.Reporter,
		faults:    NewFaultLog(cfg.FaultLogSize),
	}
	if d.reporter == nil {
		d.reporter = LogReporter{}
	}
	d.callbacks = d.build()
	return d
}

// Callbacks returns the table installed on Attach.
func (d *Dispatcher) Callbacks() *abi.Callbacks {
	return d.callbacks
}

// Attach takes a reference on the installed table, installing it on the
// first reference.
func (d *Dispatcher) Attach(ctx context.Context) error {
	d.installMu.Lock()
	defer d.installMu.Unlock()

	if d.refs == 0 {
		if d.installer == nil {
			return errors.NotInitialized(errors.PhaseInstall, "installer")
		}
		if err := d.installer.SetCallbacks(ctx, d.callbacks); err != nil {
			return errors.Wrap(errors.PhaseInstall, errors.KindNative, err, "install callback table")
		}
		d.installed.Store(true)
		Logger().Debug("callback table installed", zap.Int("slots", d.callbacks.Count()))
	}
	d.refs++
	return nil
}

// Detach drops a reference. The last reference takes the bridge offline; if
// that fails the reference is kept. Detaching with no references is a no-op.
func (d *Dispatcher) Detach(ctx context.Context) error {
	d.installMu.Lock()
	defer d.installMu.Unlock()

	if d.refs == 0 {
		return nil
	}
	if d.refs > 1 {
		d.refs--
		return nil
	}
	if err := d.uninstallLocked(ctx); err != nil {
		return err
	}
	d.refs = 0
	return nil
}

// Uninstall takes the bridge offline regardless of outstanding references.
// It is idempotent. If the native side refuses, the table stays installed
// with its references and Uninstall can be retried.
func (d *Dispatcher) Uninstall(ctx context.Context) error {
	d.installMu.Lock()
	defer d.installMu.Unlock()
	if err := d.uninstallLocked(ctx); err != nil {
		return err
	}
	d.refs = 0
	return nil
}

func (d *Dispatcher) uninstallLocked(ctx context.Context) error {
	if !d.installed.Load() {
		return nil
	}
	if err := d.installer.SetCallbacks(ctx, nil); err != nil {
		return errors.Wrap(errors.PhaseInstall, errors.KindNative, err, "uninstall callback table")
	}
	d.installed.Store(false)
	Logger().Debug("callback table uninstalled")
	return nil
}

// Installed reports whether the table is currently installed.
func (d *Dispatcher) Installed() bool {
	return d.installed.Load()
}

// Refs returns the number of outstanding Attach references.
func (d *Dispatcher) Refs() int {
	d.installMu.Lock()
	defer d.installMu.Unlock()
	return d.refs
}

// Stats returns a snapshot of the per-slot counters.
func (d *Dispatcher) Stats() []SlotStats {
	out := make([]SlotStats, abi.SlotCount)
	for i := range d.stats {
		c := &d.stats[i]
		out[i] = SlotStats{
			Slot:   abi.Slot(i),
			Calls:  c.calls.Load(),
			Misses: c.misses.Load(),
			Faults: c.faults.Load(),
		}
	}
	return out
}

// Faults returns the most recent faults, oldest first.
func (d *Dispatcher) Faults() []Fault {
	return d.faults.Recent()
}

// FaultCount returns the total number of faults since creation.
func (d *Dispatcher) FaultCount() uint64 {
	return d.faults.Total()
}

func (d *Dispatcher) fault(slot abi.Slot, serial int32, recovered any) {
	d.stats[slot].faults.Add(1)
	d.report(Fault{
		Time:   time.Now(),
		Err:    errors.CallbackFault(slot.Name(), serial, recovered),
		Serial: serial,
		Slot:   slot,
	})
}

func (d *Dispatcher) report(f Fault) {
	d.faults.Report(f)

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault reporter panicked", zap.Any("recovered", r))
		}
	}()
	d.reporter.Report(f)
}

// Deliver runs fn on behalf of event ev. An error or a panic is contained
// and reported like a slot fault.
func (d *Dispatcher) Deliver(ev abi.Event, serial int32, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.eventFault(ev, serial, r)
		}
	}()
	if err := fn(); err != nil {
		d.eventFault(ev, serial, err)
	}
}

func (d *Dispatcher) eventFault(ev abi.Event, serial int32, recovered any) {
	d.report(Fault{
		Time:   time.Now(),
		Err:    errors.CallbackFault(ev.Name(), serial, recovered),
		Serial: serial,
		Event:  ev,
	})
}

// invoke runs fn against the proxy registered under serial. A miss, a proxy
// that is not a T, a panic or a returned error all produce sentinel.
func invoke[T, R any](d *Dispatcher, slot abi.Slot, serial int32, sentinel R, fn func(T) (R, error)) (result R) {
	c := &d.stats[slot]
	c.calls.Add(1)

	v, ok := d.resolver.ResolveTarget(serial)
	if !ok {
		c.misses.Add(1)
		return sentinel
	}
	target, ok := v.(T)
	if !ok {
		c.misses.Add(1)
		Logger().Debug("proxy does not serve slot",
			zap.String("slot", slot.Name()),
			zap.Int32("serial", serial))
		return sentinel
	}

	defer func() {
		if r := recover(); r != nil {
			d.fault(slot, serial, r)
			result = sentinel
		}
	}()

	res, err := fn(target)
	if err != nil {
		d.fault(slot, serial, err)
		return sentinel
	}
	return res
}

// newContent has no serial; it routes to the factory.
func (d *Dispatcher) newContent(ctx context.Context, typeID uuid.UUID) (h abi.Handle) {
	c := &d.stats[abi.SlotNewContent]
	c.calls.Add(1)
	if d.factory == nil {
		c.misses.Add(1)
		return abi.Null
	}
	defer func() {
		if r := recover(); r != nil {
			d.fault(abi.SlotNewContent, 0, r)
			h = abi.Null
		}
	}()
	h, err := d.factory(ctx, typeID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			c.misses.Add(1)
			Logger().Debug("no type for new content", zap.Stringer("type_id", typeID))
			return abi.Null
		}
		d.fault(abi.SlotNewContent, 0, err)
		return abi.Null
	}
	return h
}

func (d *Dispatcher) deleteThis(ctx context.Context, slot abi.Slot, serial int32) {
	invoke(d, slot, serial, struct{}{}, func(t NativeDeleter) (struct{}, error) {
		t.NativeDeleted(ctx)
		return struct{}{}, nil
	})
}

func (d *Dispatcher) build() *abi.Callbacks {
	return &abi.Callbacks{
		NewContent: d.newContent,
		DeleteThis: func(ctx context.Context, serial int32) {
			d.deleteThis(ctx, abi.SlotDeleteThis, serial)
		},
		BitFlags: func(ctx context.Context, serial int32, flags uint64) uint64 {
			return invoke(d, abi.SlotBitFlags, serial, flags, func(t Flagger) (uint64, error) {
				return t.BitFlags(ctx, flags), nil
			})
		},
		ContentString: func(ctx context.Context, serial int32, which abi.StringID, out *abi.StringBuffer) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotContentString, serial, false, func(t StringSource) (bool, error) {
				return t.ContentString(ctx, which, out)
			})
		},
		AcceptableChild: func(ctx context.Context, serial int32, typeID uuid.UUID, childSlot string) bool {
			return invoke(d, abi.SlotAcceptableChild, serial, false, func(t ChildAcceptor) (bool, error) {
				return t.AcceptableChild(ctx, typeID, childSlot), nil
			})
		},
		SimulateMaterial: func(ctx context.Context, serial int32, out *abi.SimulatedMaterial, forDataOnly bool) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotSimulateMaterial, serial, false, func(t MaterialSimulator) (bool, error) {
				return t.SimulateMaterial(ctx, out, forDataOnly)
			})
		},
		SimulateTexture: func(ctx context.Context, serial int32, out *abi.SimulatedTexture, forDataOnly bool) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotSimulateTexture, serial, false, func(t TextureSimulator) (bool, error) {
				return t.SimulateTexture(ctx, out, forDataOnly)
			})
		},
		SimulateEnvironment: func(ctx context.Context, serial int32, out *abi.SimulatedEnvironment, forDataOnly bool) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotSimulateEnvironment, serial, false, func(t EnvironmentSimulator) (bool, error) {
				return t.SimulateEnvironment(ctx, out, forDataOnly)
			})
		},
		IsLegacyMaterial: func(ctx context.Context, serial int32) bool {
			return invoke(d, abi.SlotIsLegacyMaterial, serial, false, func(t LegacyMaterial) (bool, error) {
				return t.IsLegacyMaterial(ctx), nil
			})
		},
		NewTextureEvaluator: func(ctx context.Context, serial int32) abi.Handle {
			return invoke(d, abi.SlotNewTextureEvaluator, serial, abi.Null, func(t EvaluatorFactory) (abi.Handle, error) {
				return t.NewTextureEvaluator(ctx)
			})
		},
		EvaluatorGetColor: func(ctx context.Context, serial int32, uvw, duvwdx, duvwdy abi.Vec3, out *abi.Color4f) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotEvaluatorGetColor, serial, false, func(t ColorEvaluator) (bool, error) {
				return t.GetColor(ctx, uvw, duvwdx, duvwdy, out)
			})
		},
		EvaluatorDeleteThis: func(ctx context.Context, serial int32) {
			d.deleteThis(ctx, abi.SlotEvaluatorDeleteThis, serial)
		},
		MeshWillBuild: func(ctx context.Context, serial int32, viewport, object abi.Handle, requester uuid.UUID, typ abi.MeshType) bool {
			req := MeshRequest{Viewport: viewport, Object: object, Requester: requester, Type: typ}
			return invoke(d, abi.SlotMeshWillBuild, serial, false, func(t MeshProvider) (bool, error) {
				return t.WillBuild(ctx, req)
			})
		},
		MeshBoundingBox: func(ctx context.Context, serial int32, viewport, object abi.Handle, requester uuid.UUID, typ abi.MeshType, out *abi.BoundingBox) bool {
			if out == nil {
				return false
			}
			req := MeshRequest{Viewport: viewport, Object: object, Requester: requester, Type: typ}
			return invoke(d, abi.SlotMeshBoundingBox, serial, false, func(t MeshProvider) (bool, error) {
				return t.BoundingBox(ctx, req, out)
			})
		},
		MeshBuild: func(ctx context.Context, serial int32, viewport, meshes abi.Handle, requester uuid.UUID, typ abi.MeshType) bool {
			req := MeshRequest{Viewport: viewport, Requester: requester, Type: typ}
			return invoke(d, abi.SlotMeshBuild, serial, false, func(t MeshProvider) (bool, error) {
				return t.Build(ctx, req, meshes)
			})
		},
		MeshProviderDeleteThis: func(ctx context.Context, serial int32) {
			d.deleteThis(ctx, abi.SlotMeshProviderDeleteThis, serial)
		},
		PipelineGeneral: func(ctx context.Context, serial int32, which abi.PipelineCall) bool {
			return invoke(d, abi.SlotPipelineGeneral, serial, false, func(t PipelineHandler) (bool, error) {
				return t.PipelineCall(ctx, which)
			})
		},
		IODeleteThis: func(ctx context.Context, serial int32) {
			d.deleteThis(ctx, abi.SlotIODeleteThis, serial)
		},
		IOLoad: func(ctx context.Context, serial int32, path string) abi.Handle {
			return invoke(d, abi.SlotIOLoad, serial, abi.Null, func(t ContentIO) (abi.Handle, error) {
				return t.Load(ctx, path)
			})
		},
		IOSave: func(ctx context.Context, serial int32, path string, content, preview abi.Handle) bool {
			if !content.Valid() {
				return false
			}
			return invoke(d, abi.SlotIOSave, serial, false, func(t ContentIO) (bool, error) {
				return t.Save(ctx, path, content, preview)
			})
		},
		IOString: func(ctx context.Context, serial int32, local bool, out *abi.StringBuffer) bool {
			if out == nil {
				return false
			}
			return invoke(d, abi.SlotIOString, serial, false, func(t ContentIO) (bool, error) {
				return t.IOString(ctx, local, out)
			})
		},
	}
}
