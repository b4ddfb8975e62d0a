package render

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/bridge"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
	"github.com/wippyai/objbridge/native/sim"
	"github.com/wippyai/objbridge/native/wasmhost"
)

var (
	plugin     = uuid.MustParse("0f9b1c2e-7d4a-4e61-9c3b-5a8e00000001")
	marbleID   = uuid.MustParse("0f9b1c2e-7d4a-4e61-9c3b-5a8e000000a1")
	goldID     = uuid.MustParse("0f9b1c2e-7d4a-4e61-9c3b-5a8e000000a2")
	skyID      = uuid.MustParse("0f9b1c2e-7d4a-4e61-9c3b-5a8e000000a3")
	pipelineID = uuid.MustParse("0f9b1c2e-7d4a-4e61-9c3b-5a8e000000a4")

	white = abi.Color4f{R: 1, G: 1, B: 1, A: 1}
	black = abi.Color4f{A: 1}
)

type marble struct {
	Texture
	veins abi.Color4f
}

func (m *marble) SimulateTexture(_ context.Context, out *abi.SimulatedTexture, _ bool) (bool, error) {
	out.Color = m.veins
	out.Repeat = abi.Vec3{X: 1, Y: 1, Z: 1}
	return true, nil
}

func (m *marble) NewTextureEvaluator(ctx context.Context) (abi.Handle, error) {
	return m.Evaluator(ctx, &Evaluator{Color: Checker(white, black, 2)})
}

type gold struct {
	Material
}

func (*gold) SimulateMaterial(_ context.Context, out *abi.SimulatedMaterial, _ bool) (bool, error) {
	out.Diffuse = abi.Color4f{R: 1, G: 0.75, B: 0.25, A: 1}
	out.Shine = 0.875
	out.Reflectivity = 0.5
	return true, nil
}

type sky struct {
	Environment
}

func (*sky) SimulateEnvironment(_ context.Context, out *abi.SimulatedEnvironment, _ bool) (bool, error) {
	out.Background = abi.Color4f{B: 1, A: 1}
	out.Projection = 2
	return true, nil
}

func newBridge(t *testing.T, lib native.Library) *bridge.Bridge {
	t.Helper()
	ctx := context.Background()
	b := bridge.New(lib, bridge.Config{Wrappers: Wrappers()})
	require.NoError(t, b.AttachModule(ctx, plugin,
		Type(marbleID, "Marble", func() *marble { return &marble{} }),
		Type(goldID, "Gold", func() *gold { return &gold{} }),
		Type(skyID, "Sky", func() *sky { return &sky{} }),
	))
	t.Cleanup(func() {
		_ = b.Shutdown(ctx)
		_ = lib.Close(ctx)
	})
	return b
}

func TestKindOf(t *testing.T) {
	require.Equal(t, abi.KindTexture, KindOf(&marble{}))
	require.Equal(t, abi.KindMaterial, KindOf(&gold{}))
	require.Equal(t, abi.KindEnvironment, KindOf(&sky{}))
	require.Equal(t, abi.KindTextureEvaluator, KindOf(&Evaluator{}))
	require.Equal(t, abi.KindMeshProvider, KindOf(&MeshProvider{}))
	require.Equal(t, abi.KindPipeline, KindOf(&Pipeline{}))
	require.Equal(t, abi.KindContentIO, KindOf(&ContentIO{}))
	require.Equal(t, abi.KindUnknown, KindOf(&bridge.Anonymous{}))
	require.Equal(t, abi.KindUnknown, KindOf(42))
}

func TestTypeInfersKind(t *testing.T) {
	typ := Type(goldID, "Gold", func() *gold { return &gold{} })
	require.Equal(t, abi.KindMaterial, typ.Kind)
	require.Equal(t, "Gold", typ.Name)

	require.Panics(t, func() {
		Type(uuid.New(), "plain", func() *bridge.Anonymous { return &bridge.Anonymous{} })
	})
}

func TestCreateRequiresFamily(t *testing.T) {
	b := newBridge(t, sim.New(sim.Config{}))
	err := Create(context.Background(), b, &bridge.Anonymous{}, uuid.New())
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestContentDefaults(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)
	host := lib.Host()

	m := &marble{veins: white}
	m.ExtraFlags = 0x10
	require.NoError(t, Create(ctx, b, m, marbleID))
	require.NoError(t, m.SetName(ctx, "Carrara"))
	require.NoError(t, m.SetNotes(ctx, "quarried"))

	name, err := m.Name(ctx)
	require.NoError(t, err)
	require.Equal(t, "Carrara", name)
	notes, err := m.Notes(ctx)
	require.NoError(t, err)
	require.Equal(t, "quarried", notes)

	typeName, err := m.GetString(ctx, abi.StringTypeName)
	require.NoError(t, err)
	require.Equal(t, "Marble", typeName)

	h, err := m.Handle(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0x11), host.BitFlags(ctx, h, 1))
	require.False(t, host.AcceptsChild(ctx, h, goldID, "bump"))

	st, ok := host.SimulateTexture(ctx, h)
	require.True(t, ok)
	require.Equal(t, white, st.Color)
}

func TestTextureEvaluation(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	m := &marble{}
	require.NoError(t, Create(ctx, b, m, marbleID))
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	colors, ok := lib.Host().EvaluateTexture(ctx, h, []abi.Vec3{
		{X: 0.1, Y: 0.1},
		{X: 0.6, Y: 0.1},
		{X: 0.6, Y: 0.6},
	})
	require.True(t, ok)
	require.Equal(t, []abi.Color4f{white, black, white}, colors)

	// The native side deleted the evaluator when it was done with it.
	require.Equal(t, 1, b.Table().Len())
	require.Equal(t, uint64(3), b.Dispatcher().Stats()[abi.SlotEvaluatorGetColor].Calls)
	require.Equal(t, uint64(1), b.Dispatcher().Stats()[abi.SlotEvaluatorDeleteThis].Calls)
}

func TestTextureWithoutEvaluator(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	tex := &Texture{}
	require.NoError(t, Create(ctx, b, tex, uuid.New()))
	h, err := tex.Handle(ctx)
	require.NoError(t, err)
	_, ok := lib.Host().EvaluateTexture(ctx, h, []abi.Vec3{{}})
	require.False(t, ok)
	_, ok = lib.Host().SimulateTexture(ctx, h)
	require.False(t, ok)
}

func TestMaterialSimulation(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	g := &gold{}
	require.NoError(t, Create(ctx, b, g, goldID))
	sm, err := g.Simulated(ctx)
	require.NoError(t, err)
	require.Equal(t, float32(0.75), sm.Diffuse.G)
	require.Equal(t, 0.875, sm.Shine)

	h, err := g.Handle(ctx)
	require.NoError(t, err)
	require.False(t, lib.Host().IsLegacyMaterial(ctx, h))

	plain := &Material{}
	require.NoError(t, Create(ctx, b, plain, uuid.New()))
	_, err = plain.Simulated(ctx)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestEnvironmentSimulation(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	s := &sky{}
	require.NoError(t, Create(ctx, b, s, skyID))
	h, err := s.Handle(ctx)
	require.NoError(t, err)
	env, ok := lib.Host().SimulateEnvironment(ctx, h)
	require.True(t, ok)
	require.Equal(t, int32(2), env.Projection)
}

func TestNativeWrappers(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	matID := lib.Adopt(abi.KindMaterial, uuid.Nil, "Default")
	want := abi.SimulatedMaterial{Diffuse: abi.Color4f{R: 0.5, G: 0.5, B: 0.5, A: 1}, Shine: 0.25}
	require.True(t, lib.SetNativeMaterial(matID, want))

	p, err := b.FromHandle(ctx, lib.Find(ctx, matID, abi.Const))
	require.NoError(t, err)
	nm, ok := p.(*NativeMaterial)
	require.True(t, ok)
	got, err := nm.Simulated(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	evID := lib.Adopt(abi.KindTextureEvaluator, uuid.Nil, "")
	require.True(t, lib.SetNativeColor(evID, white))
	p, err = b.FromHandle(ctx, lib.Find(ctx, evID, abi.Const))
	require.NoError(t, err)
	c, err := p.(*NativeEvaluator).Sample(ctx, abi.Vec3{})
	require.NoError(t, err)
	require.Equal(t, white, c)

	texID := lib.Adopt(abi.KindTexture, uuid.Nil, "")
	p, err = b.FromHandle(ctx, lib.Find(ctx, texID, abi.Const))
	require.NoError(t, err)
	require.IsType(t, &NativeTexture{}, p)

	envID := lib.Adopt(abi.KindEnvironment, uuid.Nil, "")
	p, err = b.FromHandle(ctx, lib.Find(ctx, envID, abi.Const))
	require.NoError(t, err)
	require.IsType(t, &NativeEnvironment{}, p)

	pipeID := lib.Adopt(abi.KindPipeline, uuid.Nil, "")
	p, err = b.FromHandle(ctx, lib.Find(ctx, pipeID, abi.Const))
	require.NoError(t, err)
	require.IsType(t, &bridge.Anonymous{}, p)
}

func TestMeshProviderDefaults(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	mp := &MeshProvider{}
	require.NoError(t, Create(ctx, b, mp, uuid.New()))
	h, err := mp.Handle(ctx)
	require.NoError(t, err)
	_, ok := lib.Host().BuildMeshes(ctx, h, abi.Null, abi.Null, plugin, abi.MeshPreview)
	require.False(t, ok)
}

func TestPipelineModalRender(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	var started, stopped int
	p := &Pipeline{
		NeedGeometry: true,
		Modal:        true,
		Hooks: PipelineHooks{
			Start: func(context.Context) error { started++; return nil },
			Pass:  func(_ context.Context, pass int) (bool, error) { return pass < 2, nil },
			Stop:  func(context.Context) { stopped++ },
		},
	}
	require.NoError(t, Create(ctx, b, p, pipelineID))
	h, err := p.Handle(ctx)
	require.NoError(t, err)

	rep := lib.Host().Render(ctx, h)
	require.True(t, rep.Started)
	require.Equal(t, 2, rep.ModalPasses)
	require.True(t, rep.Answers[abi.PipelineNeedGeometryTable])
	require.False(t, rep.Answers[abi.PipelineNeedLightTable])
	require.True(t, rep.Answers[abi.PipelineStopRendering])
	require.Equal(t, 1, started)
	require.Equal(t, 1, stopped)
	require.Equal(t, PipelineStatus{Renders: 1, Passes: 3}, p.Status())
}

func TestPipelineStartFailure(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	p := &Pipeline{Hooks: PipelineHooks{
		Start: func(context.Context) error { return errors.Unsupported(errors.PhaseDispatch, "gpu") },
	}}
	require.NoError(t, Create(ctx, b, p, pipelineID))
	h, err := p.Handle(ctx)
	require.NoError(t, err)

	rep := lib.Host().Render(ctx, h)
	require.False(t, rep.Started)
	require.False(t, p.Status().Running)
	require.Equal(t, uint64(1), b.Dispatcher().FaultCount())
}

func TestPipelineStartPanicRecovers(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	lost := true
	p := &Pipeline{Hooks: PipelineHooks{
		Start: func(context.Context) error {
			if lost {
				panic("device lost")
			}
			return nil
		},
	}}
	require.NoError(t, Create(ctx, b, p, pipelineID))
	h, err := p.Handle(ctx)
	require.NoError(t, err)

	rep := lib.Host().Render(ctx, h)
	require.False(t, rep.Started)
	require.False(t, p.Status().Running)
	require.Equal(t, uint64(1), b.Dispatcher().FaultCount())

	lost = false
	rep = lib.Host().Render(ctx, h)
	require.True(t, rep.Started)
	require.Equal(t, PipelineStatus{Renders: 1}, p.Status())
}

// movedEvaluator loses its twin as soon as it has one.
type movedEvaluator struct {
	Evaluator
}

func (*movedEvaluator) Handle(context.Context) (abi.Handle, error) {
	return abi.Null, errors.StaleHandle(errors.PhaseResolve, 0, "twin moved")
}

func TestTextureEvaluatorHandleFailure(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)

	m := &marble{}
	require.NoError(t, Create(ctx, b, m, marbleID))

	ev := &movedEvaluator{Evaluator: Evaluator{Color: Checker(white, black, 2)}}
	h, err := m.Evaluator(ctx, ev)
	require.ErrorIs(t, err, errors.ErrStaleHandle)
	require.Equal(t, abi.Null, h)
	require.Equal(t, bridge.StateClosed, ev.State())
	require.False(t, ev.OwnsTwin())
	require.Equal(t, 1, b.Table().Len())
	require.Equal(t, 1, lib.Len())
}

func TestContentIO(t *testing.T) {
	ctx := context.Background()
	lib := sim.New(sim.Config{})
	b := newBridge(t, lib)
	host := lib.Host()

	var loaded *gold
	var saved []string
	gld := &ContentIO{
		Extension:        "gld",
		ContentKind:      abi.KindMaterial,
		Description:      "Gold material",
		LocalDescription: "Matériau or",
		Hooks: IOHooks{
			Load: func(ctx context.Context, path string) (bridge.Proxy, error) {
				g := &gold{}
				if err := Create(ctx, b, g, goldID); err != nil {
					return nil, err
				}
				if err := g.SetName(ctx, path); err != nil {
					return nil, err
				}
				loaded = g
				return g, nil
			},
			Save: func(ctx context.Context, path string, content, preview bridge.Proxy) (bool, error) {
				require.Nil(t, preview)
				name, err := content.(*gold).Name(ctx)
				if err != nil {
					return false, err
				}
				saved = append(saved, path+":"+name)
				return true, nil
			},
		},
	}
	require.NoError(t, Create(ctx, b, gld, uuid.New()))
	require.Equal(t, abi.IOSpec{Extension: "gld", ContentKind: abi.KindMaterial, CanLoad: true, CanSave: true}, gld.IOSpec())

	id, ok := host.Load(ctx, "/scenes/bar.GLD")
	require.True(t, ok)
	require.NotNil(t, loaded)
	require.Equal(t, loaded.StableID(), id)

	require.True(t, host.Save(ctx, "out.gld", id))
	require.Equal(t, []string{"out.gld:/scenes/bar.GLD"}, saved)
	tex := lib.Adopt(abi.KindTexture, uuid.Nil, "grain")
	require.False(t, host.Save(ctx, "out.gld", tex))

	desc, ok := host.IODescription(ctx, "gld", false)
	require.True(t, ok)
	require.Equal(t, "Gold material", desc)
	desc, ok = host.IODescription(ctx, "gld", true)
	require.True(t, ok)
	require.Equal(t, "Matériau or", desc)

	// A description-only plug-in is never asked to load.
	txt := &ContentIO{Extension: "txt", Description: "Notes"}
	require.NoError(t, Create(ctx, b, txt, uuid.New()))
	_, ok = host.Load(ctx, "readme.txt")
	require.False(t, ok)

	require.NoError(t, gld.Close(ctx))
	_, ok = host.Load(ctx, "/scenes/bar.gld")
	require.False(t, ok)
	require.Equal(t, bridge.StateClosed, gld.State())
}

func TestContentIOSaveResolvesNativeContent(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t, sim.New(sim.Config{}))
	lib := b.Library().(*sim.Library)

	var got bridge.Proxy
	bin := &ContentIO{
		Extension: "bin",
		Hooks: IOHooks{
			Save: func(_ context.Context, _ string, content, _ bridge.Proxy) (bool, error) {
				got = content
				return true, nil
			},
		},
	}
	require.NoError(t, Create(ctx, b, bin, uuid.New()))

	env := lib.Adopt(abi.KindEnvironment, uuid.Nil, "Studio")
	require.True(t, lib.Host().Save(ctx, "studio.bin", env))
	require.IsType(t, &NativeEnvironment{}, got)
	require.Zero(t, got.Serial())
	require.Equal(t, env, got.StableID())

	// Loading is not offered.
	h, err := bin.Load(ctx, "studio.bin")
	require.NoError(t, err)
	require.Equal(t, abi.Null, h)
}

func TestChecker(t *testing.T) {
	f := Checker(white, black, 2)
	require.Equal(t, white, f(abi.Vec3{X: 0.1, Y: 0.1}))
	require.Equal(t, black, f(abi.Vec3{X: 0.6, Y: 0.1}))
	require.Equal(t, black, f(abi.Vec3{X: -0.1, Y: 0.1}))
	require.Equal(t, white, f(abi.Vec3{X: -0.1, Y: -0.1}))
}

func TestOnWasmBackend(t *testing.T) {
	ctx := context.Background()
	lib, err := wasmhost.New(ctx, wasmhost.Config{})
	require.NoError(t, err)
	b := newBridge(t, lib)

	ev := &Evaluator{Color: Checker(white, black, 1)}
	require.NoError(t, Create(ctx, b, ev, marbleID))
	c, err := ev.Sample(ctx, abi.Vec3{X: 1.5, Y: 0.5})
	require.NoError(t, err)
	require.Equal(t, black, c)

	g := &gold{}
	require.NoError(t, Create(ctx, b, g, goldID))
	sm, err := g.Simulated(ctx)
	require.NoError(t, err)
	require.Equal(t, 0.5, sm.Reflectivity)

	require.NoError(t, g.SetName(ctx, "Leaf"))
	name, err := g.Name(ctx)
	require.NoError(t, err)
	require.Equal(t, "Leaf", name)
	typeName, err := g.GetString(ctx, abi.StringTypeName)
	require.NoError(t, err)
	require.Equal(t, "Gold", typeName)

	// Native-side delete reaches the proxy through the guest.
	require.NoError(t, lib.DeleteTwin(ctx, ev.StableID()))
	require.Zero(t, ev.StableID())
	_, err = ev.Sample(ctx, abi.Vec3{})
	require.ErrorIs(t, err, errors.ErrStaleHandle)

	require.NoError(t, b.Shutdown(ctx))
	require.Equal(t, bridge.StateClosed, g.State())
}
