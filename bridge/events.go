package bridge

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
	"github.com/wippyai/objbridge/native"
)

// ContentEvent is a document notification about one piece of content.
type ContentEvent struct {
	Content Proxy
	Event   abi.Event

	// Arg is the abi.ChangeContext of EventContentChanged and the abi.Kind
	// of EventCurrentContentChanged.
	Arg int32
}

// Watcher receives content events on the native caller's thread. A panic
// is contained and reported as a fault.
type Watcher func(ctx context.Context, ev ContentEvent)

type watch struct {
	fn Watcher
	id uint64
}

// watchers holds the subscribers of every event. A list is replaced, never
// mutated, so delivery can iterate a snapshot without the lock.
type watchers struct {
	subs [abi.EventCount][]watch
	mu   sync.Mutex
	next uint64
}

// Watch subscribes w to ev. The native callback for ev is installed with
// the first watcher and removed with the last one. The returned cancel is
// idempotent; if removing the native callback fails the watcher stays
// subscribed and cancel can be called again.
func (b *Bridge) Watch(ctx context.Context, ev abi.Event, w Watcher) (cancel func(context.Context) error, err error) {
	if w == nil {
		return nil, errors.InvalidInput(errors.PhaseInstall, "nil watcher")
	}
	if !ev.Valid() {
		return nil, errors.New(errors.PhaseInstall, errors.KindInvalidInput).
			Detail("unknown event %d", uint8(ev)).
			Build()
	}
	src, ok := b.lib.(native.EventSource)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseInstall, "content events")
	}

	b.events.mu.Lock()
	defer b.events.mu.Unlock()
	if b.closed.Load() {
		return nil, errors.Closed(errors.PhaseInstall, "bridge")
	}
	if len(b.events.subs[ev]) == 0 {
		if err := src.SetEventCallback(ctx, ev, b.deliver); err != nil {
			return nil, errors.Wrap(errors.PhaseInstall, errors.KindNative, err, "install "+ev.Name()+" callback")
		}
		b.logger.Debug("event callback installed", zap.Stringer("event", ev))
	}
	b.events.next++
	id := b.events.next
	b.events.subs[ev] = append(slices.Clip(b.events.subs[ev]), watch{fn: w, id: id})

	return func(ctx context.Context) error {
		return b.unwatch(ctx, src, ev, id)
	}, nil
}

func (b *Bridge) unwatch(ctx context.Context, src native.EventSource, ev abi.Event, id uint64) error {
	b.events.mu.Lock()
	defer b.events.mu.Unlock()

	subs := b.events.subs[ev]
	i := slices.IndexFunc(subs, func(w watch) bool { return w.id == id })
	if i < 0 {
		return nil
	}
	if len(subs) == 1 {
		if err := src.SetEventCallback(ctx, ev, nil); err != nil {
			return errors.Wrap(errors.PhaseInstall, errors.KindNative, err, "remove "+ev.Name()+" callback")
		}
		b.logger.Debug("event callback removed", zap.Stringer("event", ev))
	}
	b.events.subs[ev] = slices.Delete(slices.Clone(subs), i, i+1)
	return nil
}

// Watchers returns the number of watchers subscribed to ev.
func (b *Bridge) Watchers(ev abi.Event) int {
	if !ev.Valid() {
		return 0
	}
	b.events.mu.Lock()
	defer b.events.mu.Unlock()
	return len(b.events.subs[ev])
}

// deliver is the native callback for every watched event. The content
// handle is resolved the way any other handle is: a twin maps to its proxy,
// anything else to an anonymous wrapper.
func (b *Bridge) deliver(ctx context.Context, ev abi.Event, content abi.Handle, arg int32) {
	if !ev.Valid() {
		return
	}
	b.events.mu.Lock()
	subs := b.events.subs[ev]
	b.events.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	serial := b.lib.SerialOf(ctx, content)
	var p Proxy
	b.dispatcher.Deliver(ev, serial, func() error {
		var err error
		p, err = b.FromHandle(ctx, content)
		return err
	})
	if p == nil {
		return
	}
	e := ContentEvent{Content: p, Event: ev, Arg: arg}
	for _, w := range subs {
		b.dispatcher.Deliver(ev, serial, func() error {
			w.fn(ctx, e)
			return nil
		})
	}
}

// setEvents installs or removes the native callback of every event that
// has watchers. It stops at the first failure. Caller holds events.mu.
func (b *Bridge) setEvents(ctx context.Context, on bool) error {
	src, ok := b.lib.(native.EventSource)
	if !ok {
		return nil
	}
	fn := abi.EventFunc(nil)
	if on {
		fn = b.deliver
	}
	for _, ev := range abi.Events() {
		if len(b.events.subs[ev]) == 0 {
			continue
		}
		if err := src.SetEventCallback(ctx, ev, fn); err != nil {
			return errors.Wrap(errors.PhaseInstall, errors.KindNative, err, "set "+ev.Name()+" callback")
		}
	}
	return nil
}
