package abi

import (
	"context"
	"fmt"
)

// Event is a document notification about render content. Events are
// installed one at a time, separately from the slot table.
type Event uint8

const (
	EventNone Event = iota
	EventContentAdded
	EventContentRenamed
	EventContentDeleting
	EventContentReplacing
	EventContentReplaced
	// EventContentChanged carries a ChangeContext.
	EventContentChanged
	EventContentUpdatePreview
	// EventCurrentContentChanged carries the Kind that changed.
	EventCurrentContentChanged

	// EventCount is the number of events; not an event.
	EventCount
)

var eventNames = [EventCount]string{
	EventNone:                  "none",
	EventContentAdded:          "content_added",
	EventContentRenamed:        "content_renamed",
	EventContentDeleting:       "content_deleting",
	EventContentReplacing:      "content_replacing",
	EventContentReplaced:       "content_replaced",
	EventContentChanged:        "content_changed",
	EventContentUpdatePreview:  "content_update_preview",
	EventCurrentContentChanged: "current_content_changed",
}

// Name is the symbol-style name of the event.
func (e Event) Name() string {
	if e < EventCount {
		return eventNames[e]
	}
	return fmt.Sprintf("event_%d", uint8(e))
}

func (e Event) String() string {
	return e.Name()
}

// Valid reports whether e is a deliverable event.
func (e Event) Valid() bool {
	return e > EventNone && e < EventCount
}

// Events returns every deliverable event in declaration order.
func Events() []Event {
	out := make([]Event, 0, EventCount-1)
	for e := EventNone + 1; e < EventCount; e++ {
		out = append(out, e)
	}
	return out
}

// EventFunc receives one event. content is a const handle valid for the
// duration of the call; arg is event specific.
type EventFunc func(ctx context.Context, ev Event, content Handle, arg int32)

// ChangeContext says what caused a content change.
type ChangeContext int32

const (
	ChangeUI ChangeContext = iota
	ChangeDrop
	ChangeProgram
	ChangeIgnore
	ChangeTree
	ChangeUndo
	ChangeFieldInit
	ChangeSerialize
)
