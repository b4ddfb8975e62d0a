package sim

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objbridge/abi"
)

func twin(t *testing.T, lib *Library, serial int32, kind abi.Kind) abi.Handle {
	t.Helper()
	id, err := lib.NewTwin(context.Background(), abi.TwinSpec{Serial: serial, Kind: kind})
	require.NoError(t, err)
	return lib.Find(context.Background(), id, abi.Const)
}

func TestHostOffline(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	h := twin(t, lib, 1, abi.KindMaterial)

	require.Equal(t, abi.Null, host.NewContent(ctx, uuid.New()))
	require.Equal(t, uint64(7), host.BitFlags(ctx, h, 7))
	require.False(t, host.IsLegacyMaterial(ctx, h))
	require.False(t, host.AcceptsChild(ctx, h, uuid.New(), "bump"))
	_, ok := host.SimulateTexture(ctx, h)
	require.False(t, ok)
	_, ok = host.EvaluateTexture(ctx, h, []abi.Vec3{{}})
	require.False(t, ok)
	require.False(t, host.Render(ctx, h).Started)
}

func TestHostEvaluateTexture(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	tex := twin(t, lib, 1, abi.KindTexture)

	var deleted []int32
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		NewTextureEvaluator: func(ctx context.Context, serial int32) abi.Handle {
			id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 50 + serial, Kind: abi.KindTextureEvaluator})
			require.NoError(t, err)
			return lib.Find(ctx, id, abi.Mutable)
		},
		EvaluatorGetColor: func(_ context.Context, serial int32, uvw, _, _ abi.Vec3, out *abi.Color4f) bool {
			*out = abi.Color4f{R: float32(uvw.X), A: float32(serial)}
			return true
		},
		EvaluatorDeleteThis: func(_ context.Context, serial int32) {
			deleted = append(deleted, serial)
		},
	}))

	colors, ok := host.EvaluateTexture(ctx, tex, []abi.Vec3{{X: 0.5}, {X: 1}})
	require.True(t, ok)
	require.Equal(t, []abi.Color4f{{R: 0.5, A: 51}, {R: 1, A: 51}}, colors)
	require.Equal(t, []int32{51}, deleted)
	require.Equal(t, 1, lib.Len())
}

func TestHostBuildMeshes(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	provider := twin(t, lib, 3, abi.KindMeshProvider)
	object := lib.Find(ctx, lib.Adopt(abi.KindUnknown, uuid.Nil, "sphere"), abi.Const)
	requester := uuid.New()

	var built abi.Handle
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		MeshWillBuild: func(_ context.Context, _ int32, _, obj abi.Handle, req uuid.UUID, _ abi.MeshType) bool {
			return obj == object && req == requester
		},
		MeshBoundingBox: func(_ context.Context, _ int32, _, _ abi.Handle, _ uuid.UUID, _ abi.MeshType, out *abi.BoundingBox) bool {
			*out = abi.BoundingBox{Max: abi.Vec3{X: 1, Y: 1, Z: 1}}
			return true
		},
		MeshBuild: func(_ context.Context, _ int32, _, meshes abi.Handle, _ uuid.UUID, _ abi.MeshType) bool {
			built = meshes
			return true
		},
	}))

	res, ok := host.BuildMeshes(ctx, provider, abi.Null, object, requester, abi.MeshRender)
	require.True(t, ok)
	require.True(t, res.Built)
	require.Equal(t, abi.Vec3{X: 1, Y: 1, Z: 1}, res.Box.Max)
	require.True(t, built.Valid())
	// The mesh list is released after the build.
	require.Equal(t, int32(0), lib.SerialOf(ctx, built))
	_, ok = lib.Describe(ctx, built)
	require.False(t, ok)

	_, ok = host.BuildMeshes(ctx, provider, abi.Null, object, uuid.New(), abi.MeshRender)
	require.False(t, ok)
}

func TestHostRender(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	pipe := twin(t, lib, 9, abi.KindPipeline)

	var seen []abi.PipelineCall
	passes := 0
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		PipelineGeneral: func(_ context.Context, _ int32, which abi.PipelineCall) bool {
			seen = append(seen, which)
			if which == abi.PipelineContinueModal {
				passes++
				return passes <= 3
			}
			return which != abi.PipelineSceneWithNoMeshes
		},
	}))

	rep := host.Render(ctx, pipe)
	require.True(t, rep.Started)
	require.Equal(t, 3, rep.ModalPasses)
	require.False(t, rep.Answers[abi.PipelineSceneWithNoMeshes])
	require.True(t, rep.Answers[abi.PipelineStopRendering])
	require.Equal(t, abi.PipelineStartRendering, seen[0])
	require.Equal(t, abi.PipelineStopRendering, seen[len(seen)-1])
	require.Contains(t, seen, abi.PipelineExitModalLoop)
}

func TestHostRenderNotStarted(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	pipe := twin(t, lib, 1, abi.KindPipeline)
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		PipelineGeneral: func(context.Context, int32, abi.PipelineCall) bool { return false },
	}))
	rep := lib.Host().Render(ctx, pipe)
	require.False(t, rep.Started)
	require.Len(t, rep.Answers, 1)
}

func TestHostContentQueries(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	mat := twin(t, lib, 2, abi.KindMaterial)
	env := twin(t, lib, 5, abi.KindEnvironment)
	child := uuid.New()
	created := abi.Handle(0xbeef)

	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		NewContent:       func(context.Context, uuid.UUID) abi.Handle { return created },
		BitFlags:         func(_ context.Context, _ int32, f uint64) uint64 { return f | 0x100 },
		IsLegacyMaterial: func(_ context.Context, s int32) bool { return s == 2 },
		AcceptableChild: func(_ context.Context, _ int32, id uuid.UUID, slot string) bool {
			return id == child && slot == "bump"
		},
		SimulateEnvironment: func(_ context.Context, _ int32, out *abi.SimulatedEnvironment, _ bool) bool {
			out.Background = abi.Color4f{B: 1, A: 1}
			return true
		},
	}))

	require.Equal(t, created, host.NewContent(ctx, uuid.New()))
	require.Equal(t, uint64(0x101), host.BitFlags(ctx, mat, 1))
	require.True(t, host.IsLegacyMaterial(ctx, mat))
	require.True(t, host.AcceptsChild(ctx, mat, child, "bump"))
	require.False(t, host.AcceptsChild(ctx, mat, child, "diffuse"))
	e, ok := host.SimulateEnvironment(ctx, env)
	require.True(t, ok)
	require.Equal(t, float32(1), e.Background.B)
}
