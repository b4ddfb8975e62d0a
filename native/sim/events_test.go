package sim

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
)

type seenEvent struct {
	ev      abi.Event
	content abi.Handle
	arg     int32
}

type recorder struct {
	mu   sync.Mutex
	seen []seenEvent
}

func (r *recorder) record(_ context.Context, ev abi.Event, content abi.Handle, arg int32) {
	r.mu.Lock()
	r.seen = append(r.seen, seenEvent{ev: ev, content: content, arg: arg})
	r.mu.Unlock()
}

func (r *recorder) events() []abi.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]abi.Event, len(r.seen))
	for i, s := range r.seen {
		out[i] = s.ev
	}
	return out
}

func TestEventsFollowDocumentChanges(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()
	rec := &recorder{}
	for _, ev := range abi.Events() {
		require.NoError(t, lib.SetEventCallback(ctx, ev, rec.record))
	}

	id := host.AddContent(ctx, abi.KindMaterial, uuid.New(), "Brass")
	require.NotZero(t, id)
	require.Equal(t, []abi.Event{abi.EventContentAdded}, rec.events())
	require.Equal(t, lib.Find(ctx, id, abi.Const), rec.seen[0].content)

	require.True(t, lib.SetString(ctx, lib.Find(ctx, id, abi.Mutable), abi.StringName, "Bronze"))
	require.True(t, lib.SetString(ctx, lib.Find(ctx, id, abi.Mutable), abi.StringNotes, "warm"))
	require.Equal(t, int32(abi.ChangeProgram), rec.seen[2].arg)

	require.True(t, host.SetCurrent(ctx, id))
	require.Equal(t, int32(abi.KindMaterial), rec.seen[3].arg)
	require.True(t, host.Fire(ctx, abi.EventContentUpdatePreview, id, 0))

	require.NoError(t, lib.DeleteTwin(ctx, id))
	require.Equal(t, []abi.Event{
		abi.EventContentAdded,
		abi.EventContentRenamed,
		abi.EventContentChanged,
		abi.EventCurrentContentChanged,
		abi.EventContentUpdatePreview,
		abi.EventContentDeleting,
	}, rec.events())
	require.Zero(t, lib.Len())

	// Non-content objects are not announced.
	list := host.AddContent(ctx, abi.KindUnknown, uuid.Nil, "mesh list")
	require.NoError(t, lib.DeleteTwin(ctx, list))
	require.Len(t, rec.events(), 6)
	require.False(t, host.Fire(ctx, abi.EventContentChanged, list, 0))
}

func TestDeletingWatcherMayDeleteFirst(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	id := lib.Adopt(abi.KindTexture, uuid.New(), "wood")

	var inner error
	require.NoError(t, lib.SetEventCallback(ctx, abi.EventContentDeleting, func(ctx context.Context, _ abi.Event, content abi.Handle, _ int32) {
		desc, ok := lib.Describe(ctx, content)
		require.True(t, ok)
		require.Equal(t, id, desc.ID)
		require.NoError(t, lib.SetEventCallback(ctx, abi.EventContentDeleting, nil))
		inner = lib.DeleteTwin(ctx, id)
	}))

	err := lib.DeleteTwin(ctx, id)
	require.NoError(t, inner)
	require.ErrorIs(t, err, errors.ErrNotFound)
	require.Zero(t, lib.Len())
}

func TestSetEventCallbackValidation(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	rec := &recorder{}

	require.ErrorIs(t, lib.SetEventCallback(ctx, abi.EventNone, rec.record), errors.ErrInvalidInput)
	require.ErrorIs(t, lib.SetEventCallback(ctx, abi.EventCount, rec.record), errors.ErrInvalidInput)

	require.NoError(t, lib.SetEventCallback(ctx, abi.EventContentAdded, rec.record))
	require.NoError(t, lib.Close(ctx))
	require.ErrorIs(t, lib.SetEventCallback(ctx, abi.EventContentAdded, rec.record), errors.ErrClosed)
	require.NoError(t, lib.SetEventCallback(ctx, abi.EventContentAdded, nil))
	require.Zero(t, lib.Host().AddContent(ctx, abi.KindMaterial, uuid.New(), "late"))
	require.Empty(t, rec.events())
}

func TestHostContentIO(t *testing.T) {
	ctx := context.Background()
	lib := New(Config{})
	host := lib.Host()

	id, err := lib.NewTwin(ctx, abi.TwinSpec{
		Serial: 5,
		Kind:   abi.KindContentIO,
		IO:     abi.IOSpec{Extension: "mtl", ContentKind: abi.KindMaterial, CanLoad: true, CanSave: true},
	})
	require.NoError(t, err)
	_, err = lib.NewTwin(ctx, abi.TwinSpec{
		Serial: 6,
		Kind:   abi.KindContentIO,
		IO:     abi.IOSpec{Extension: "MTL", CanSave: true},
	})
	require.NoError(t, err)

	var saved []int32
	var loadedFrom string
	require.NoError(t, lib.SetCallbacks(ctx, &abi.Callbacks{
		IOLoad: func(_ context.Context, serial int32, path string) abi.Handle {
			require.Equal(t, int32(5), serial)
			loadedFrom = path
			return lib.Find(ctx, lib.Adopt(abi.KindMaterial, uuid.New(), "loaded"), abi.Mutable)
		},
		IOSave: func(_ context.Context, serial int32, _ string, content, preview abi.Handle) bool {
			require.True(t, content.Valid())
			require.Equal(t, abi.Null, preview)
			saved = append(saved, serial)
			return true
		},
		IOString: func(_ context.Context, _ int32, local bool, out *abi.StringBuffer) bool {
			out.Set("Material library")
			return !local
		},
	}))

	loaded, ok := host.Load(ctx, "/tmp/Shop.MTL")
	require.True(t, ok)
	require.Equal(t, "/tmp/Shop.MTL", loadedFrom)
	require.NotEqual(t, id, loaded)

	_, ok = host.Load(ctx, "/tmp/shop.obj")
	require.False(t, ok)
	_, ok = host.Load(ctx, "/tmp/noext")
	require.False(t, ok)

	require.True(t, host.Save(ctx, "out.mtl", loaded))
	tex := lib.Adopt(abi.KindTexture, uuid.New(), "grain")
	require.True(t, host.Save(ctx, "out.mtl", tex))
	require.Equal(t, []int32{5, 6}, saved)
	require.False(t, host.Save(ctx, "out.mtl", id))

	desc, ok := host.IODescription(ctx, ".mtl", false)
	require.True(t, ok)
	require.Equal(t, "Material library", desc)
	_, ok = host.IODescription(ctx, "mtl", true)
	require.False(t, ok)
}
