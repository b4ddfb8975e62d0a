package wasmhost

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
)

var _ native.Library = (*Library)(nil)

const mutableBit abi.Handle = 1 << 24

// Config holds configuration for the wasm-hosted library.
type Config struct {
	Logger *zap.Logger

	// MemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the
	// wazero default. The guest itself needs one page.
	MemoryLimitPages uint32
}

type deletion struct {
	serial int32
	kind   abi.Kind
}

// Library is a native.Library backed by a wazero guest.
type Library struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     api.Memory
	cb      atomic.Pointer[abi.Callbacks]
	logger  *zap.Logger
	scratch chan uint32

	// mu serializes twin store mutations. pending collects delete
	// notifications raised by the guest while mu is held; they are
	// delivered after it is released.
	mu      sync.Mutex
	pending []deletion
	closed  atomic.Bool
}

// New compiles the guest, registers the host module and instantiates both.
func New(ctx context.Context, cfg Config) (*Library, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	l := &Library{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  cfg.Logger,
		scratch: make(chan uint32, scratchSlots),
	}
	if l.logger == nil {
		l.logger = Logger()
	}
	for i := 0; i < scratchSlots; i++ {
		l.scratch <- uint32(scratchBase + i*scratchSize)
	}

	if err := l.instantiateHost(ctx); err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("instantiate host module "+hostModule, err)
	}

	compiled, err := l.runtime.CompileModule(ctx, guestModule())
	if err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("compile twin store guest", err)
	}
	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("twins"))
	if err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("instantiate twin store guest", err)
	}
	l.mod = mod
	l.mem = mod.Memory()
	if l.mem == nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("twin store guest has no memory", nil)
	}

	l.logger.Debug("wasm twin store ready",
		zap.Int("slots", maxSlots-1),
		zap.Int("scratch", scratchSlots))
	return l, nil
}

func (l *Library) instantiateHost(ctx context.Context) error {
	vi32 := api.ValueTypeI32
	vf64 := api.ValueTypeF64
	_, err := l.runtime.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.hostDeleteThis), []api.ValueType{vi32, vi32}, nil).
		Export(importDeleteThis).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.hostGetColor), []api.ValueType{vi32, vi32, vf64, vf64, vf64}, []api.ValueType{vi32}).
		Export(importGetColor).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.hostSimulateMaterial), []api.ValueType{vi32, vi32}, []api.ValueType{vi32}).
		Export(importSimulateMat).
		Instantiate(ctx)
	return err
}

// call invokes a guest export. A fresh function is taken for every call so
// host functions can call back into the guest.
func (l *Library) call(ctx context.Context, name string, params ...uint64) (uint64, bool) {
	if l.closed.Load() {
		return 0, false
	}
	fn := l.mod.ExportedFunction(name)
	if fn == nil {
		return 0, false
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		l.logger.Debug("guest call failed", zap.String("export", name), zap.Error(err))
		return 0, false
	}
	if len(res) == 0 {
		return 0, true
	}
	return res[0], true
}

// record validates a handle and returns its record address.
func (l *Library) record(h abi.Handle) (uint32, bool) {
	if !h.Valid() || l.closed.Load() {
		return 0, false
	}
	addr := uint32(h &^ mutableBit)
	if addr < recordBase+recordSize || addr >= recordBase+maxSlots*recordSize {
		return 0, false
	}
	if (addr-recordBase)%recordSize != 0 {
		return 0, false
	}
	alive, ok := l.mem.ReadUint32Le(addr + offAlive)
	if !ok || alive == 0 {
		return 0, false
	}
	return addr, true
}

func (l *Library) readI32(addr uint32) int32 {
	v, _ := l.mem.ReadUint32Le(addr)
	return int32(v)
}

// NewTwin implements native.Library.
func (l *Library) NewTwin(ctx context.Context, spec abi.TwinSpec) (abi.StableID, error) {
	if spec.Serial <= 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Serial(spec.Serial).
			TypeID(spec.TypeID).
			Detail("twin requires a positive serial").
			Build()
	}
	if l.closed.Load() {
		return 0, errors.Closed(errors.PhaseNative, "wasm library")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.serialTaken(spec.Serial) {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Serial(spec.Serial).
			Detail("serial already has a twin").
			Build()
	}
	res, ok := l.call(ctx, exportTwinNew, api.EncodeI32(spec.Serial), api.EncodeI32(int32(spec.Kind)))
	if !ok {
		return 0, errors.New(errors.PhaseNative, errors.KindNative).
			Serial(spec.Serial).
			Detail("guest twin_new failed").
			Build()
	}
	id := abi.StableID(res)
	if id == 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindNative).
			Serial(spec.Serial).
			Detail("twin store full").
			Build()
	}
	addr, _ := l.findAddr(ctx, id)
	l.mem.Write(addr+offTypeID, spec.TypeID[:])

	l.logger.Debug("twin created",
		zap.Uint64("id", uint64(id)),
		zap.Int32("serial", spec.Serial),
		zap.Stringer("kind", spec.Kind))
	return id, nil
}

// serialTaken scans live records. Caller holds mu.
func (l *Library) serialTaken(serial int32) bool {
	for slot := uint32(1); slot < maxSlots; slot++ {
		addr := recordBase + slot*recordSize
		if alive, _ := l.mem.ReadUint32Le(addr + offAlive); alive == 0 {
			continue
		}
		if l.readI32(addr+offSerial) == serial {
			return true
		}
	}
	return false
}

func (l *Library) findAddr(ctx context.Context, id abi.StableID) (uint32, bool) {
	if id == 0 {
		return 0, false
	}
	res, ok := l.call(ctx, exportTwinFind, uint64(id))
	if !ok || uint32(res) == 0 {
		return 0, false
	}
	return uint32(res), true
}

// DeleteTwin implements native.Library.
func (l *Library) DeleteTwin(ctx context.Context, id abi.StableID) error {
	l.mu.Lock()
	res, ok := l.call(ctx, exportTwinDelete, uint64(id))
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	if !ok || uint32(res) == 0 {
		return errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("no native object with id %d", id).
			Build()
	}
	cb := l.cb.Load()
	for _, d := range pending {
		native.NotifyDeleted(ctx, cb, d.kind, d.serial)
	}
	return nil
}

// Find implements native.Library.
func (l *Library) Find(ctx context.Context, id abi.StableID, access abi.Access) abi.Handle {
	addr, ok := l.findAddr(ctx, id)
	if !ok {
		return abi.Null
	}
	h := abi.Handle(addr)
	if access == abi.Mutable {
		h |= mutableBit
	}
	return h
}

// SerialOf implements native.Library.
func (l *Library) SerialOf(_ context.Context, h abi.Handle) int32 {
	addr, ok := l.record(h)
	if !ok {
		return 0
	}
	return l.readI32(addr + offSerial)
}

// Describe implements native.Library.
func (l *Library) Describe(_ context.Context, h abi.Handle) (abi.Description, bool) {
	addr, ok := l.record(h)
	if !ok {
		return abi.Description{}, false
	}
	gen, _ := l.mem.ReadUint32Le(addr + offGen)
	slot := (addr - recordBase) / recordSize
	raw, _ := l.mem.Read(addr+offTypeID, 16)
	typeID, err := uuid.FromBytes(raw)
	if err != nil {
		typeID = uuid.Nil
	}
	return abi.Description{
		ID:     abi.StableID(uint64(gen)<<32 | uint64(slot)),
		Kind:   abi.Kind(l.readI32(addr + offKind)),
		TypeID: typeID,
		Serial: l.readI32(addr + offSerial),
	}, true
}

// GetString implements native.Library. Only the name is stored in the guest;
// other strings are asked of the Go counterpart.
func (l *Library) GetString(ctx context.Context, h abi.Handle, which abi.StringID, out *abi.StringBuffer) bool {
	if out == nil {
		return false
	}
	addr, ok := l.record(h)
	if !ok {
		return false
	}
	if which == abi.StringName {
		if n, _ := l.mem.ReadUint32Le(addr + offNameLen); n > 0 {
			raw, ok := l.mem.Read(addr+offName, n)
			if ok {
				out.SetBytes(raw)
				return true
			}
		}
	}
	serial := l.readI32(addr + offSerial)
	cb := l.cb.Load()
	if serial <= 0 || cb == nil || cb.ContentString == nil {
		return false
	}
	return cb.ContentString(ctx, serial, which, out)
}

// SetString implements native.Library. Names longer than the record holds
// are cut at a rune boundary.
func (l *Library) SetString(_ context.Context, h abi.Handle, which abi.StringID, value string) bool {
	if h&mutableBit == 0 || which != abi.StringName {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.record(h)
	if !ok {
		return false
	}
	b := []byte(value)
	if len(b) > maxName {
		b = b[:maxName]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}
	l.mem.Write(addr+offName, b)
	l.mem.WriteUint32Le(addr+offNameLen, uint32(len(b)))
	return true
}

func (l *Library) acquireScratch() (uint32, bool) {
	select {
	case off := <-l.scratch:
		return off, true
	default:
		return 0, false
	}
}

func (l *Library) releaseScratch(off uint32) {
	l.scratch <- off
}

// GetColor implements native.Library.
func (l *Library) GetColor(ctx context.Context, h abi.Handle, uvw, duvwdx, duvwdy abi.Vec3) (abi.Color4f, bool) {
	addr, ok := l.record(h)
	if !ok || abi.Kind(l.readI32(addr+offKind)) != abi.KindTextureEvaluator {
		return abi.Color4f{}, false
	}
	out, ok := l.acquireScratch()
	if !ok {
		l.logger.Warn("scratch exhausted", zap.String("call", exportEvalColor))
		return abi.Color4f{}, false
	}
	defer l.releaseScratch(out)

	writeVec3(l.mem, out+16, duvwdx)
	writeVec3(l.mem, out+40, duvwdy)
	res, ok := l.call(ctx, exportEvalColor,
		api.EncodeU32(addr), api.EncodeU32(out),
		api.EncodeF64(uvw.X), api.EncodeF64(uvw.Y), api.EncodeF64(uvw.Z))
	if !ok || uint32(res) == 0 {
		return abi.Color4f{}, false
	}
	return readColor(l.mem, out), true
}

// SimulateMaterial implements native.Library.
func (l *Library) SimulateMaterial(ctx context.Context, h abi.Handle) (abi.SimulatedMaterial, bool) {
	addr, ok := l.record(h)
	if !ok || abi.Kind(l.readI32(addr+offKind)) != abi.KindMaterial {
		return abi.SimulatedMaterial{}, false
	}
	out, ok := l.acquireScratch()
	if !ok {
		l.logger.Warn("scratch exhausted", zap.String("call", exportSimulateMat))
		return abi.SimulatedMaterial{}, false
	}
	defer l.releaseScratch(out)

	res, ok := l.call(ctx, exportSimulateMat, api.EncodeU32(addr), api.EncodeU32(out))
	if !ok || uint32(res) == 0 {
		return abi.SimulatedMaterial{}, false
	}
	return readMaterial(l.mem, out), true
}

// SetCallbacks implements native.Library.
func (l *Library) SetCallbacks(_ context.Context, cb *abi.Callbacks) error {
	if cb != nil && l.closed.Load() {
		return errors.Closed(errors.PhaseInstall, "wasm library")
	}
	l.cb.Store(cb)
	return nil
}

// Close tears down the guest and the runtime. It is idempotent.
func (l *Library) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cb.Store(nil)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.runtime.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseTeardown, errors.KindNative, err, "close wazero runtime")
	}
	return nil
}
