package handle

import "math"

// Serial is the key a native object carries for its Go counterpart.
type Serial int32

// None is the reserved "no counterpart" serial.
const None Serial = 0

// MaxSerial is the last serial a table will issue.
const MaxSerial Serial = math.MaxInt32

// Valid reports whether s could name a table entry.
func (s Serial) Valid() bool {
	return s > None
}

// EventType distinguishes table lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventUnregistered
)

func (e EventType) String() string {
	switch e {
	case EventRegistered:
		return "registered"
	case EventUnregistered:
		return "unregistered"
	}
	return "unknown"
}

// Event is delivered to observers after the table has changed.
type Event[T any] struct {
	Value  T
	Serial Serial
	Type   EventType
}

// Observer receives table lifecycle events. Observers run without any table
// lock held and may call back into the table.
type Observer[T any] interface {
	OnHandleEvent(Event[T])
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc[T any] func(Event[T])

func (f ObserverFunc[T]) OnHandleEvent(e Event[T]) { f(e) }
