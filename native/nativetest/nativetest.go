// Package nativetest holds the behaviour every native.Library backend must
// share. Backends call Run from their own tests.
package nativetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/native"
)

// Opener returns a fresh library. Run closes it when the subtest ends.
type Opener func(t *testing.T) native.Library

var (
	materialType  = uuid.MustParse("d9f1d2a4-5b36-4b8e-9a51-7c1e00000001")
	evaluatorType = uuid.MustParse("d9f1d2a4-5b36-4b8e-9a51-7c1e00000002")
	owner         = uuid.MustParse("d9f1d2a4-5b36-4b8e-9a51-7c1e000000ff")
)

// Run executes the shared backend tests.
func Run(t *testing.T, open Opener) {
	t.Run("TwinLifecycle", func(t *testing.T) { testTwinLifecycle(t, open) })
	t.Run("ConstAndMutable", func(t *testing.T) { testConstAndMutable(t, open) })
	t.Run("DeleteNotifies", func(t *testing.T) { testDeleteNotifies(t, open) })
	t.Run("ColorReentry", func(t *testing.T) { testColorReentry(t, open) })
	t.Run("MaterialReentry", func(t *testing.T) { testMaterialReentry(t, open) })
	t.Run("Offline", func(t *testing.T) { testOffline(t, open) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, open) })
	t.Run("Close", func(t *testing.T) { testClose(t, open) })
}

func openLib(t *testing.T, open Opener) native.Library {
	t.Helper()
	lib := open(t)
	t.Cleanup(func() { _ = lib.Close(context.Background()) })
	return lib
}

func spec(serial int32, kind abi.Kind) abi.TwinSpec {
	typ := materialType
	if kind == abi.KindTextureEvaluator {
		typ = evaluatorType
	}
	return abi.TwinSpec{Serial: serial, Kind: kind, TypeID: typ, Owner: owner}
}

func testTwinLifecycle(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	id, err := lib.NewTwin(ctx, spec(5, abi.KindMaterial))
	require.NoError(t, err)
	require.NotZero(t, id)

	h := lib.Find(ctx, id, abi.Const)
	require.True(t, h.Valid())
	require.Equal(t, int32(5), lib.SerialOf(ctx, h))

	desc, ok := lib.Describe(ctx, h)
	require.True(t, ok)
	require.Equal(t, id, desc.ID)
	require.Equal(t, abi.KindMaterial, desc.Kind)
	require.Equal(t, int32(5), desc.Serial)
	require.Equal(t, materialType, desc.TypeID)

	other, err := lib.NewTwin(ctx, spec(6, abi.KindMaterial))
	require.NoError(t, err)
	require.NotEqual(t, id, other)

	require.NoError(t, lib.DeleteTwin(ctx, id))
	require.Equal(t, abi.Null, lib.Find(ctx, id, abi.Const))
	require.Equal(t, abi.Null, lib.Find(ctx, id, abi.Mutable))
	require.Error(t, lib.DeleteTwin(ctx, id))

	require.Equal(t, int32(0), lib.SerialOf(ctx, abi.Null))
	_, ok = lib.Describe(ctx, abi.Null)
	require.False(t, ok)

	// The other twin is untouched.
	require.True(t, lib.Find(ctx, other, abi.Const).Valid())
}

func testConstAndMutable(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	id, err := lib.NewTwin(ctx, spec(1, abi.KindMaterial))
	require.NoError(t, err)

	ch := lib.Find(ctx, id, abi.Const)
	require.False(t, lib.SetString(ctx, ch, abi.StringName, "rejected"))

	mh := lib.Find(ctx, id, abi.Mutable)
	require.True(t, mh.Valid())
	require.Equal(t, int32(1), lib.SerialOf(ctx, mh))
	require.True(t, lib.SetString(ctx, mh, abi.StringName, "Brushed steel"))

	out := abi.NewStringBuffer(16)
	require.True(t, lib.GetString(ctx, lib.Find(ctx, id, abi.Const), abi.StringName, out))
	require.Equal(t, "Brushed steel", out.String())

	// A fresh mutable handle always works after a mutation.
	require.True(t, lib.SetString(ctx, lib.Find(ctx, id, abi.Mutable), abi.StringName, "Oak"))
	out.Reset()
	require.True(t, lib.GetString(ctx, lib.Find(ctx, id, abi.Const), abi.StringName, out))
	require.Equal(t, "Oak", out.String())
}

func testDeleteNotifies(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	var mu sync.Mutex
	var content, evaluators []int32
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		DeleteThis: func(_ context.Context, s int32) {
			mu.Lock()
			content = append(content, s)
			mu.Unlock()
		},
		EvaluatorDeleteThis: func(_ context.Context, s int32) {
			mu.Lock()
			evaluators = append(evaluators, s)
			mu.Unlock()
		},
	}))

	mat, err := lib.NewTwin(ctx, spec(9, abi.KindMaterial))
	require.NoError(t, err)
	ev, err := lib.NewTwin(ctx, spec(10, abi.KindTextureEvaluator))
	require.NoError(t, err)

	require.NoError(t, lib.DeleteTwin(ctx, mat))
	require.NoError(t, lib.DeleteTwin(ctx, ev))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int32{9}, content)
	require.Equal(t, []int32{10}, evaluators)
}

func testColorReentry(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	var gotSerial int32
	var gotUVW abi.Vec3
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		EvaluatorGetColor: func(_ context.Context, serial int32, uvw, _, _ abi.Vec3, out *abi.Color4f) bool {
			gotSerial = serial
			gotUVW = uvw
			*out = abi.Color4f{R: float32(uvw.X), G: float32(uvw.Y), B: 0.5, A: 1}
			return true
		},
	}))

	id, err := lib.NewTwin(ctx, spec(3, abi.KindTextureEvaluator))
	require.NoError(t, err)

	uvw := abi.Vec3{X: 0.25, Y: 0.75}
	c, ok := lib.GetColor(ctx, lib.Find(ctx, id, abi.Const), uvw, abi.Vec3{}, abi.Vec3{})
	require.True(t, ok)
	require.Equal(t, int32(3), gotSerial)
	require.Equal(t, uvw, gotUVW)
	require.Equal(t, abi.Color4f{R: 0.25, G: 0.75, B: 0.5, A: 1}, c)
}

func testMaterialReentry(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	want := abi.SimulatedMaterial{
		Diffuse:      abi.Color4f{R: 0.8, G: 0.1, B: 0.1, A: 1},
		Shine:        0.5,
		Transparency: 0.25,
	}
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		SimulateMaterial: func(_ context.Context, serial int32, out *abi.SimulatedMaterial, _ bool) bool {
			if serial != 4 {
				return false
			}
			*out = want
			return true
		},
	}))

	id, err := lib.NewTwin(ctx, spec(4, abi.KindMaterial))
	require.NoError(t, err)
	got, ok := lib.SimulateMaterial(ctx, lib.Find(ctx, id, abi.Const))
	require.True(t, ok)
	require.Equal(t, want.Diffuse, got.Diffuse)
	require.InDelta(t, want.Shine, got.Shine, 1e-9)
	require.InDelta(t, want.Transparency, got.Transparency, 1e-9)

	// A twin whose Go side declines reports no simulation.
	other, err := lib.NewTwin(ctx, spec(8, abi.KindMaterial))
	require.NoError(t, err)
	_, ok = lib.SimulateMaterial(ctx, lib.Find(ctx, other, abi.Const))
	require.False(t, ok)
}

func testOffline(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	calls := 0
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		EvaluatorGetColor: func(_ context.Context, _ int32, _, _, _ abi.Vec3, out *abi.Color4f) bool {
			calls++
			*out = abi.Color4f{A: 1}
			return true
		},
		DeleteThis: func(context.Context, int32) { calls++ },
	}))
	require.NoError(t, lib.SetCallbacks(ctx, nil))

	ev, err := lib.NewTwin(ctx, spec(2, abi.KindTextureEvaluator))
	require.NoError(t, err)
	_, ok := lib.GetColor(ctx, lib.Find(ctx, ev, abi.Const), abi.Vec3{}, abi.Vec3{}, abi.Vec3{})
	require.False(t, ok)

	mat, err := lib.NewTwin(ctx, spec(7, abi.KindMaterial))
	require.NoError(t, err)
	require.NoError(t, lib.DeleteTwin(ctx, mat))
	require.Zero(t, calls)
}

func testConcurrent(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := openLib(t, open)

	const workers = 4
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				serial := int32(w*perWorker + i + 1)
				id, err := lib.NewTwin(ctx, spec(serial, abi.KindMaterial))
				if err != nil {
					t.Errorf("NewTwin(%d): %v", serial, err)
					return
				}
				if got := lib.SerialOf(ctx, lib.Find(ctx, id, abi.Const)); got != serial {
					t.Errorf("SerialOf = %d, want %d", got, serial)
					return
				}
				if err := lib.DeleteTwin(ctx, id); err != nil {
					t.Errorf("DeleteTwin(%d): %v", serial, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func testClose(t *testing.T, open Opener) {
	ctx := context.Background()
	lib := open(t)

	id, err := lib.NewTwin(ctx, spec(1, abi.KindMaterial))
	require.NoError(t, err)
	require.NoError(t, lib.Close(ctx))
	require.NoError(t, lib.Close(ctx))

	_, err = lib.NewTwin(ctx, spec(2, abi.KindMaterial))
	require.Error(t, err)
	require.Equal(t, abi.Null, lib.Find(ctx, id, abi.Const))
}
