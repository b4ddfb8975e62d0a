package wasmhost

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/native"
	"github.com/wippyai/objbridge/native/nativetest"
)

func newLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := New(context.Background(), Config{})
	require.NoError(t, err)
	return lib
}

func TestConformance(t *testing.T) {
	nativetest.Run(t, func(t *testing.T) native.Library { return newLibrary(t) })
}

func TestStableIDGenerations(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	first, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 1, Kind: abi.KindMaterial})
	require.NoError(t, err)
	require.NoError(t, lib.DeleteTwin(ctx, first))

	// The freed slot is reused under a new generation.
	second, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 2, Kind: abi.KindMaterial})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, uint64(first)&0xffffffff, uint64(second)&0xffffffff)
	require.Equal(t, abi.Null, lib.Find(ctx, first, abi.Const))
	require.True(t, lib.Find(ctx, second, abi.Const).Valid())
}

func TestStoreFull(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	var ids []abi.StableID
	for i := int32(1); i < maxSlots; i++ {
		id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: i, Kind: abi.KindTexture})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: maxSlots, Kind: abi.KindTexture})
	require.Error(t, err)
	require.Contains(t, err.Error(), "twin store full")

	require.NoError(t, lib.DeleteTwin(ctx, ids[10]))
	_, err = lib.NewTwin(ctx, abi.TwinSpec{Serial: maxSlots, Kind: abi.KindTexture})
	require.NoError(t, err)
}

func TestDuplicateSerial(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	_, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 4, Kind: abi.KindMaterial})
	require.NoError(t, err)
	_, err = lib.NewTwin(ctx, abi.TwinSpec{Serial: 4, Kind: abi.KindMaterial})
	require.Error(t, err)
}

func TestHandleValidation(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 1, Kind: abi.KindMaterial})
	require.NoError(t, err)
	h := lib.Find(ctx, id, abi.Const)

	require.Equal(t, int32(0), lib.SerialOf(ctx, h+1))
	require.Equal(t, int32(0), lib.SerialOf(ctx, abi.Handle(scratchBase)))
	require.Equal(t, int32(0), lib.SerialOf(ctx, abi.Handle(1<<20)))
	require.Equal(t, h|mutableBit, lib.Find(ctx, id, abi.Mutable))
}

func TestNameTruncation(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 1, Kind: abi.KindMaterial})
	require.NoError(t, err)

	long := strings.Repeat("é", maxName)
	require.True(t, lib.SetString(ctx, lib.Find(ctx, id, abi.Mutable), abi.StringName, long))

	out := abi.NewStringBuffer(0)
	require.True(t, lib.GetString(ctx, lib.Find(ctx, id, abi.Const), abi.StringName, out))
	require.LessOrEqual(t, out.Len(), maxName)
	require.True(t, strings.HasPrefix(long, out.String()))
}

func TestStringFallsBackToCallback(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		ContentString: func(_ context.Context, serial int32, which abi.StringID, out *abi.StringBuffer) bool {
			if which != abi.StringNotes {
				return false
			}
			out.Set("notes for twin")
			return serial == 6
		},
	}))
	id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 6, Kind: abi.KindTexture, TypeID: uuid.New()})
	require.NoError(t, err)

	out := abi.NewStringBuffer(0)
	h := lib.Find(ctx, id, abi.Const)
	require.True(t, lib.GetString(ctx, h, abi.StringNotes, out))
	require.Equal(t, "notes for twin", out.String())
	require.False(t, lib.GetString(ctx, h, abi.StringCategory, out))
}

func TestReentrantEvaluation(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	var depth atomic.Int32
	var inner abi.Handle
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		EvaluatorGetColor: func(ctx context.Context, serial int32, uvw, _, _ abi.Vec3, out *abi.Color4f) bool {
			depth.Add(1)
			if serial == 1 {
				// The outer evaluator samples the inner one from inside the guest call.
				c, ok := lib.GetColor(ctx, inner, uvw, abi.Vec3{}, abi.Vec3{})
				if !ok {
					return false
				}
				*out = abi.Color4f{R: c.R * 0.5, G: c.G, B: c.B, A: 1}
				return true
			}
			*out = abi.Color4f{R: 1, G: 0.25, B: 0.125, A: 1}
			return true
		},
	}))

	outerID, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 1, Kind: abi.KindTextureEvaluator})
	require.NoError(t, err)
	innerID, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 2, Kind: abi.KindTextureEvaluator})
	require.NoError(t, err)
	inner = lib.Find(ctx, innerID, abi.Const)

	c, ok := lib.GetColor(ctx, lib.Find(ctx, outerID, abi.Const), abi.Vec3{}, abi.Vec3{}, abi.Vec3{})
	require.True(t, ok)
	require.Equal(t, abi.Color4f{R: 0.5, G: 0.25, B: 0.125, A: 1}, c)
	require.Equal(t, int32(2), depth.Load())
}

func TestDeleteFromCallback(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	other, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 2, Kind: abi.KindMaterial})
	require.NoError(t, err)

	var deleted []int32
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		DeleteThis: func(ctx context.Context, serial int32) {
			deleted = append(deleted, serial)
			if serial == 1 {
				// Store mutations are allowed once the notification is delivered.
				require.NoError(t, lib.DeleteTwin(ctx, other))
			}
		},
	}))

	id, err := lib.NewTwin(ctx, abi.TwinSpec{Serial: 1, Kind: abi.KindMaterial})
	require.NoError(t, err)
	require.NoError(t, lib.DeleteTwin(ctx, id))
	require.Equal(t, []int32{1, 2}, deleted)
}

func TestNativeOnlyRecordsSkipCallbacks(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	defer lib.Close(ctx)

	// The guest never calls out for a record without a serial. Such records
	// cannot be created through NewTwin, so write one directly.
	addr := uint32(recordBase + (maxSlots-1)*recordSize)
	lib.mem.WriteUint32Le(addr+offKind, uint32(abi.KindMaterial))
	lib.mem.WriteUint32Le(addr+offAlive, 1)

	calls := 0
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		SimulateMaterial: func(context.Context, int32, *abi.SimulatedMaterial, bool) bool {
			calls++
			return true
		},
	}))
	_, ok := lib.SimulateMaterial(ctx, abi.Handle(addr))
	require.False(t, ok)
	require.Zero(t, calls)
}
