package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/dispatch"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
	"github.com/wippyai/objbridge/native/cabi"
	"github.com/wippyai/objbridge/native/sim"
	"github.com/wippyai/objbridge/native/wasmhost"
	"github.com/wippyai/objbridge/registry"
	"github.com/wippyai/objbridge/render"
)

var (
	demoModule = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000000")
	checkerID  = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000001")
	brassID    = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000002")
	duskID     = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000003")
	gridID     = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000004")
	previewID  = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000005")
	presetIOID = uuid.MustParse("5b1f8e0a-2c47-4d9e-8a63-1e7c00000006")

	white = abi.Color4f{R: 1, G: 1, B: 1, A: 1}
	black = abi.Color4f{A: 1}
)

type checker struct {
	render.Texture
}

func (*checker) SimulateTexture(_ context.Context, out *abi.SimulatedTexture, _ bool) (bool, error) {
	out.Color = abi.Color4f{R: 0.5, G: 0.5, B: 0.5, A: 1}
	out.Repeat = abi.Vec3{X: 4, Y: 4, Z: 1}
	return true, nil
}

func (c *checker) NewTextureEvaluator(ctx context.Context) (abi.Handle, error) {
	return c.Evaluator(ctx, &render.Evaluator{Color: render.Checker(white, black, 4)})
}

type brass struct {
	render.Material
}

func (*brass) SimulateMaterial(_ context.Context, out *abi.SimulatedMaterial, _ bool) (bool, error) {
	out.Diffuse = abi.Color4f{R: 0.71, G: 0.65, B: 0.26, A: 1}
	out.Specular = white
	out.Shine = 0.6
	out.Reflectivity = 0.3
	return true, nil
}

type dusk struct {
	render.Environment
}

func (*dusk) SimulateEnvironment(_ context.Context, out *abi.SimulatedEnvironment, _ bool) (bool, error) {
	out.Background = abi.Color4f{R: 0.2, G: 0.1, B: 0.3, A: 1}
	out.Projection = 1
	return true, nil
}

type grid struct {
	render.MeshProvider
	builds atomic.Int32
}

func (*grid) WillBuild(context.Context, dispatch.MeshRequest) (bool, error) { return true, nil }

func (*grid) BoundingBox(_ context.Context, _ dispatch.MeshRequest, out *abi.BoundingBox) (bool, error) {
	out.Min = abi.Vec3{X: -1, Y: -1}
	out.Max = abi.Vec3{X: 1, Y: 1}
	return true, nil
}

func (g *grid) Build(_ context.Context, _ dispatch.MeshRequest, meshes abi.Handle) (bool, error) {
	if !meshes.Valid() {
		return false, nil
	}
	g.builds.Add(1)
	return true, nil
}

func demoTypes() []registry.Type {
	return []registry.Type{
		render.Type(checkerID, "Checker", func() *checker { return &checker{} }),
		render.Type(brassID, "Brass", func() *brass { return &brass{} }),
		render.Type(duskID, "Dusk", func() *dusk { return &dusk{} }),
		render.Type(gridID, "Grid", func() *grid { return &grid{} }),
		render.Type(previewID, "Preview", func() *render.Pipeline { return previewPipeline() }),
	}
}

func previewPipeline() *render.Pipeline {
	return &render.Pipeline{
		NeedGeometry: true,
		Modal:        true,
		Hooks: render.PipelineHooks{
			Pass: func(_ context.Context, pass int) (bool, error) { return pass < 3, nil },
		},
	}
}

type options struct {
	backend string
	libPath string
	pages   uint32
	logger  *zap.Logger
}

func openLibrary(ctx context.Context, opts options) (native.Library, *sim.Library, error) {
	switch opts.backend {
	case "sim":
		lib := sim.New(sim.Config{Logger: opts.logger.Named("sim")})
		return lib, lib, nil
	case "wasm":
		lib, err := wasmhost.New(ctx, wasmhost.Config{
			Logger:           opts.logger.Named("wasmhost"),
			MemoryLimitPages: opts.pages,
		})
		if err != nil {
			return nil, nil, err
		}
		return lib, nil, nil
	case "cabi":
		lib, err := cabi.Open(ctx, cabi.Config{Path: opts.libPath, Logger: opts.logger.Named("cabi")})
		if err != nil {
			return nil, nil, err
		}
		return lib, nil, nil
	default:
		return nil, nil, errors.InvalidInput(errors.PhaseLoad, "unknown backend "+opts.backend)
	}
}

type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type proxyRow struct {
	serial   int32
	kind     abi.Kind
	typeName string
	id       string
	state    bridge.State
}

// session is one demonstration run against a backend.
type session struct {
	backend string
	lib     native.Library
	sim     *sim.Library
	b       *bridge.Bridge
	types   []registry.Type

	tex  *checker
	mat  *brass
	env  *dusk
	mesh *grid
	pipe *render.Pipeline
}

func openSession(ctx context.Context, opts options) (*session, error) {
	lib, simLib, err := openLibrary(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", opts.backend, err)
	}
	s := &session{
		backend: opts.backend,
		lib:     lib,
		sim:     simLib,
		types:   demoTypes(),
		b: bridge.New(lib, bridge.Config{
			Logger:   opts.logger.Named("bridge"),
			Wrappers: render.Wrappers(),
		}),
		tex:  &checker{},
		mat:  &brass{},
		env:  &dusk{},
		mesh: &grid{},
		pipe: previewPipeline(),
	}
	if err := s.b.AttachModule(ctx, demoModule, s.types...); err != nil {
		_ = lib.Close(ctx)
		return nil, fmt.Errorf("attach module: %w", err)
	}

	for _, c := range []struct {
		p  bridge.Proxy
		id uuid.UUID
	}{
		{s.tex, checkerID},
		{s.mat, brassID},
		{s.env, duskID},
		{s.mesh, gridID},
		{s.pipe, previewID},
	} {
		if err := render.Create(ctx, s.b, c.p, c.id); err != nil {
			_ = s.close(ctx)
			return nil, fmt.Errorf("create %s: %w", c.id, err)
		}
	}
	return s, nil
}

// steps lists what the session can drive. Every backend gets the steps that
// go through the library; the simulated backend adds the native-initiated
// ones.
func (s *session) steps() []step {
	steps := []step{
		{"rename", s.rename},
		{"type name", s.typeName},
		{"evaluate", s.evaluate},
		{"simulate material", s.simulateMaterial},
		{"native delete", s.nativeDelete},
	}
	if s.sim != nil {
		steps = append(steps,
			step{"bit flags", s.bitFlags},
			step{"accepts child", s.acceptsChild},
			step{"simulate texture", s.simulateTexture},
			step{"environment", s.simulateEnvironment},
			step{"sample texture", s.sampleTexture},
			step{"build meshes", s.buildMeshes},
			step{"render", s.render},
			step{"factory", s.factory},
			step{"from handle", s.fromHandle},
			step{"content events", s.contentEvents},
			step{"content io", s.contentIO},
		)
	}
	return steps
}

func (s *session) rename(ctx context.Context) (string, error) {
	if err := s.mat.SetName(ctx, "polished brass"); err != nil {
		return "", err
	}
	name, err := s.mat.Name(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("material #%d is %q", s.mat.Serial(), name), nil
}

func (s *session) typeName(ctx context.Context) (string, error) {
	name, err := s.tex.GetString(ctx, abi.StringTypeName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("texture #%d reports type %q", s.tex.Serial(), name), nil
}

func (s *session) evaluate(ctx context.Context) (string, error) {
	h, err := s.tex.NewTextureEvaluator(ctx)
	if err != nil {
		return "", err
	}
	desc, ok := s.lib.Describe(ctx, h)
	if !ok {
		return "", errors.StaleHandle(errors.PhaseResolve, 0, "evaluator twin missing")
	}
	defer func() { _ = s.lib.DeleteTwin(ctx, desc.ID) }()

	var out []string
	for _, uv := range []abi.Vec3{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.1}} {
		c, ok := s.lib.GetColor(ctx, h, uv, abi.Vec3{}, abi.Vec3{})
		if !ok {
			return "", fmt.Errorf("evaluator #%d gave no color", desc.Serial)
		}
		out = append(out, colorString(c))
	}
	return fmt.Sprintf("evaluator #%d sampled %v", desc.Serial, out), nil
}

func (s *session) simulateMaterial(ctx context.Context) (string, error) {
	sm, err := s.mat.Simulated(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("diffuse %s shine %.2f", colorString(sm.Diffuse), sm.Shine), nil
}

func (s *session) nativeDelete(ctx context.Context) (string, error) {
	m := &brass{}
	if err := render.Create(ctx, s.b, m, brassID); err != nil {
		return "", err
	}
	serial := m.Serial()
	if err := s.lib.DeleteTwin(ctx, m.StableID()); err != nil {
		return "", err
	}
	_, registered := s.b.Lookup(serial)
	return fmt.Sprintf("twin of #%d deleted natively, registered=%v owns=%v", serial, registered, m.OwnsTwin()), nil
}

func (s *session) bitFlags(ctx context.Context) (string, error) {
	h, err := s.mat.Handle(ctx)
	if err != nil {
		return "", err
	}
	s.mat.ExtraFlags = 0x100
	return fmt.Sprintf("flags 0x1 -> %#x", s.sim.Host().BitFlags(ctx, h, 0x1)), nil
}

func (s *session) acceptsChild(ctx context.Context) (string, error) {
	h, err := s.tex.Handle(ctx)
	if err != nil {
		return "", err
	}
	ok := s.sim.Host().AcceptsChild(ctx, h, checkerID, "bitmap")
	return fmt.Sprintf("texture takes a child: %v", ok), nil
}

func (s *session) simulateTexture(ctx context.Context) (string, error) {
	h, err := s.tex.Handle(ctx)
	if err != nil {
		return "", err
	}
	st, ok := s.sim.Host().SimulateTexture(ctx, h)
	if !ok {
		return "", fmt.Errorf("texture #%d has no simulation", s.tex.Serial())
	}
	return fmt.Sprintf("color %s repeat %.0fx%.0f", colorString(st.Color), st.Repeat.X, st.Repeat.Y), nil
}

func (s *session) simulateEnvironment(ctx context.Context) (string, error) {
	h, err := s.env.Handle(ctx)
	if err != nil {
		return "", err
	}
	se, ok := s.sim.Host().SimulateEnvironment(ctx, h)
	if !ok {
		return "", fmt.Errorf("environment #%d has no simulation", s.env.Serial())
	}
	return fmt.Sprintf("background %s projection %d", colorString(se.Background), se.Projection), nil
}

func (s *session) sampleTexture(ctx context.Context) (string, error) {
	h, err := s.tex.Handle(ctx)
	if err != nil {
		return "", err
	}
	points := []abi.Vec3{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.1}, {X: 0.3, Y: 0.3}}
	colors, ok := s.sim.Host().EvaluateTexture(ctx, h, points)
	if !ok {
		return "", fmt.Errorf("texture #%d could not be evaluated", s.tex.Serial())
	}
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = colorString(c)
	}
	return fmt.Sprintf("%d points %v", len(points), out), nil
}

func (s *session) buildMeshes(ctx context.Context) (string, error) {
	h, err := s.mesh.Handle(ctx)
	if err != nil {
		return "", err
	}
	res, ok := s.sim.Host().BuildMeshes(ctx, h, abi.Null, abi.Null, demoModule, abi.MeshRender)
	if !ok {
		return "", fmt.Errorf("mesh provider #%d declined", s.mesh.Serial())
	}
	return fmt.Sprintf("built=%v box %v..%v (%d builds)", res.Built, res.Box.Min, res.Box.Max, s.mesh.builds.Load()), nil
}

func (s *session) render(ctx context.Context) (string, error) {
	h, err := s.pipe.Handle(ctx)
	if err != nil {
		return "", err
	}
	rep := s.sim.Host().Render(ctx, h)
	if !rep.Started {
		return "", fmt.Errorf("pipeline #%d did not start", s.pipe.Serial())
	}
	st := s.pipe.Status()
	return fmt.Sprintf("%d modal passes, %d renders", rep.ModalPasses, st.Renders), nil
}

func (s *session) factory(ctx context.Context) (string, error) {
	h := s.sim.Host().NewContent(ctx, duskID)
	if !h.Valid() {
		return "", fmt.Errorf("factory refused %s", duskID)
	}
	p, err := s.b.FromHandle(ctx, h)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("native created %T as #%d", p, p.Serial()), nil
}

func (s *session) fromHandle(ctx context.Context) (string, error) {
	id := s.sim.Adopt(abi.KindMaterial, uuid.Nil, "native chrome")
	defer func() { _ = s.lib.DeleteTwin(ctx, id) }()
	s.sim.SetNativeMaterial(id, abi.SimulatedMaterial{Diffuse: abi.Color4f{R: 0.8, G: 0.8, B: 0.8, A: 1}, Shine: 1})

	p, err := s.b.FromHandle(ctx, s.lib.Find(ctx, id, abi.Const))
	if err != nil {
		return "", err
	}
	m, ok := p.(*render.NativeMaterial)
	if !ok {
		return "", fmt.Errorf("wrapped as %T", p)
	}
	sm, err := m.Simulated(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("anonymous wrapper serial=%d diffuse %s", p.Serial(), colorString(sm.Diffuse)), nil
}

func (s *session) contentEvents(ctx context.Context) (string, error) {
	var seen []string
	record := func(_ context.Context, ev bridge.ContentEvent) {
		seen = append(seen, fmt.Sprintf("%s #%d", ev.Event, ev.Content.Serial()))
	}
	for _, ev := range []abi.Event{abi.EventContentAdded, abi.EventContentRenamed, abi.EventContentDeleting} {
		cancel, err := s.b.Watch(ctx, ev, record)
		if err != nil {
			return "", err
		}
		defer func() { _ = cancel(ctx) }()
	}

	id := s.sim.Host().AddContent(ctx, abi.KindTexture, uuid.Nil, "native oak")
	if err := s.env.SetName(ctx, "blue hour"); err != nil {
		return "", err
	}
	if err := s.lib.DeleteTwin(ctx, id); err != nil {
		return "", err
	}
	return strings.Join(seen, ", "), nil
}

func (s *session) contentIO(ctx context.Context) (string, error) {
	var loaded bridge.Proxy
	var saved string
	io := &render.ContentIO{
		Extension:   "brass",
		ContentKind: abi.KindMaterial,
		Description: "Brass preset",
		Hooks: render.IOHooks{
			Load: func(ctx context.Context, path string) (bridge.Proxy, error) {
				m := &brass{}
				if err := render.Create(ctx, s.b, m, brassID); err != nil {
					return nil, err
				}
				if err := m.SetName(ctx, path); err != nil {
					_ = m.Close(ctx)
					return nil, err
				}
				loaded = m
				return m, nil
			},
			Save: func(_ context.Context, path string, _, _ bridge.Proxy) (bool, error) {
				saved = path
				return true, nil
			},
		},
	}
	if err := render.Create(ctx, s.b, io, presetIOID); err != nil {
		return "", err
	}
	defer func() { _ = io.Close(ctx) }()

	host := s.sim.Host()
	if _, ok := host.Load(ctx, "shelf.brass"); !ok || loaded == nil {
		return "", fmt.Errorf("load of shelf.brass refused")
	}
	defer func() { _ = loaded.Close(ctx) }()
	if !host.Save(ctx, "copy.brass", s.mat.StableID()) {
		return "", fmt.Errorf("save of material #%d refused", s.mat.Serial())
	}
	desc, _ := host.IODescription(ctx, "brass", false)
	return fmt.Sprintf("%s: loaded #%d, saved %s", desc, loaded.Serial(), saved), nil
}

func (s *session) proxies() []proxyRow {
	var rows []proxyRow
	for _, p := range s.b.Proxies() {
		row := proxyRow{
			serial: p.Serial(),
			kind:   p.Kind(),
			id:     fmt.Sprintf("%#x", uint64(p.StableID())),
		}
		if base, ok := p.(interface {
			TypeID() uuid.UUID
			State() bridge.State
		}); ok {
			row.state = base.State()
			if e, ok := s.b.Registry().Lookup(base.TypeID()); ok {
				row.typeName = e.Name
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].serial < rows[j].serial })
	return rows
}

// stats returns the counters of the slots that have been called.
func (s *session) stats() []dispatch.SlotStats {
	var out []dispatch.SlotStats
	for _, st := range s.b.Dispatcher().Stats() {
		if st.Calls > 0 || st.Faults > 0 {
			out = append(out, st)
		}
	}
	return out
}

// close shuts the bridge down and then the library.
func (s *session) close(ctx context.Context) error {
	err := s.b.Shutdown(ctx)
	if cerr := s.lib.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func colorString(c abi.Color4f) string {
	return fmt.Sprintf("(%.2f %.2f %.2f)", c.R, c.G, c.B)
}
