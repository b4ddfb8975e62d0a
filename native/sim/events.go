package sim

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
)

var _ native.EventSource = (*Library)(nil)

// SetEventCallback implements native.EventSource.
func (l *Library) SetEventCallback(_ context.Context, ev abi.Event, fn abi.EventFunc) error {
	if !ev.Valid() {
		return errors.New(errors.PhaseInstall, errors.KindInvalidInput).
			Detail("unknown event %d", uint8(ev)).
			Build()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed && fn != nil {
		return errors.Closed(errors.PhaseInstall, "sim library")
	}
	l.events[ev] = fn
	l.logger.Debug("event callback set", zap.Stringer("event", ev), zap.Bool("installed", fn != nil))
	return nil
}

// emit runs the callback for ev outside mu. It reports whether one was set.
func (l *Library) emit(ctx context.Context, ev abi.Event, content abi.Handle, arg int32) bool {
	l.mu.Lock()
	fn := l.events[ev]
	l.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx, ev, content, arg)
	return true
}

// plugIn returns the serial of the IO plug-in twin that handles path. The
// lowest serial wins when several claim the same extension.
func (l *Library) plugIn(path string, load bool, kind abi.Kind) int32 {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var best int32
	for _, o := range l.objects {
		if o.kind != abi.KindContentIO || o.serial <= 0 || !strings.EqualFold(o.io.Extension, ext) {
			continue
		}
		if load && !o.io.CanLoad {
			continue
		}
		if !load && (!o.io.CanSave || (o.io.ContentKind != abi.KindUnknown && o.io.ContentKind != kind)) {
			continue
		}
		if best == 0 || o.serial < best {
			best = o.serial
		}
	}
	return best
}

// AddContent adopts native-only content and announces it with
// EventContentAdded, the way opening a document does.
func (h *Host) AddContent(ctx context.Context, kind abi.Kind, typeID uuid.UUID, name string) abi.StableID {
	id := h.lib.Adopt(kind, typeID, name)
	if id != 0 && kind.IsContent() {
		h.lib.emit(ctx, abi.EventContentAdded, h.lib.Find(ctx, id, abi.Const), 0)
	}
	return id
}

// Fire raises ev for the object id. It reports whether anything was
// listening.
func (h *Host) Fire(ctx context.Context, ev abi.Event, id abi.StableID, arg int32) bool {
	obj := h.lib.Find(ctx, id, abi.Const)
	if !obj.Valid() || !ev.Valid() {
		return false
	}
	return h.lib.emit(ctx, ev, obj, arg)
}

// SetCurrent makes id the current content of its kind.
func (h *Host) SetCurrent(ctx context.Context, id abi.StableID) bool {
	desc, ok := h.lib.Describe(ctx, h.lib.Find(ctx, id, abi.Const))
	if !ok || !desc.Kind.IsContent() {
		return false
	}
	return h.Fire(ctx, abi.EventCurrentContentChanged, id, int32(desc.Kind))
}

// Load reads path through the IO plug-in registered for its extension and
// returns the id of the content it produced.
func (h *Host) Load(ctx context.Context, path string) (abi.StableID, bool) {
	cb := h.lib.cb.Load()
	if cb == nil || cb.IOLoad == nil {
		return 0, false
	}
	serial := h.lib.plugIn(path, true, abi.KindUnknown)
	if serial == 0 {
		return 0, false
	}
	desc, ok := h.lib.Describe(ctx, cb.IOLoad(ctx, serial, path))
	if !ok || !desc.Kind.IsContent() {
		return 0, false
	}
	return desc.ID, true
}

// Save writes content to path through the IO plug-in registered for its
// extension and content kind.
func (h *Host) Save(ctx context.Context, path string, content abi.StableID) bool {
	cb := h.lib.cb.Load()
	if cb == nil || cb.IOSave == nil {
		return false
	}
	obj := h.lib.Find(ctx, content, abi.Const)
	desc, ok := h.lib.Describe(ctx, obj)
	if !ok || !desc.Kind.IsContent() {
		return false
	}
	serial := h.lib.plugIn(path, false, desc.Kind)
	if serial == 0 {
		return false
	}
	return cb.IOSave(ctx, serial, path, obj, abi.Null)
}

// IODescription asks the plug-in that loads ext for its file type
// description, as shown in open dialogs.
func (h *Host) IODescription(ctx context.Context, ext string, local bool) (string, bool) {
	cb := h.lib.cb.Load()
	if cb == nil || cb.IOString == nil {
		return "", false
	}
	serial := h.lib.plugIn("file."+strings.TrimPrefix(ext, "."), true, abi.KindUnknown)
	if serial == 0 {
		return "", false
	}
	var out abi.StringBuffer
	if !cb.IOString(ctx, serial, local, &out) {
		return "", false
	}
	return out.String(), true
}
