package dispatch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/objbridge/abi"
	"github.com/wippyai/objbridge/errors"
)

// Fault is a contained failure inside a slot or an event delivery. Slot is
// only meaningful when Event is abi.EventNone.
type Fault struct {
	Time   time.Time
	Err    *errors.Error
	Serial int32
	Slot   abi.Slot
	Event  abi.Event
}

// Source names the slot or event that failed.
func (f Fault) Source() string {
	if f.Event != abi.EventNone {
		return f.Event.Name()
	}
	return f.Slot.Name()
}

// Reporter is the diagnostic side channel for faults. Report must not panic
// and must not block for long; it runs on the native caller's thread.
type Reporter interface {
	Report(Fault)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Fault)

func (f ReporterFunc) Report(ft Fault) { f(ft) }

// LogReporter writes faults to a zap logger.
type LogReporter struct {
	Logger *zap.Logger
}

func (r LogReporter) Report(f Fault) {
	l := r.Logger
	if l == nil {
		l = Logger()
	}
	l.Error("callback fault",
		zap.String("source", f.Source()),
		zap.Int32("serial", f.Serial),
		zap.Error(f.Err))
}

// FaultLog keeps the most recent faults.
type FaultLog struct {
	ring  []Fault
	mu    sync.Mutex
	next  int
	total uint64
}

// DefaultFaultLogSize is used when a size of zero is requested.
const DefaultFaultLogSize = 64

// NewFaultLog creates a log that keeps up to size faults.
func NewFaultLog(size int) *FaultLog {
	if size <= 0 {
		size = DefaultFaultLogSize
	}
	return &FaultLog{ring: make([]Fault, 0, size)}
}

// Report records f, overwriting the oldest entry when full.
func (l *FaultLog) Report(f Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if len(l.ring) < cap(l.ring) {
		l.ring = append(l.ring, f)
		return
	}
	l.ring[l.next] = f
	l.next = (l.next + 1) % len(l.ring)
}

// Recent returns the kept faults, oldest first.
func (l *FaultLog) Recent() []Fault {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Fault, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	out = append(out, l.ring[:l.next]...)
	return out
}

// Total returns how many faults were ever reported.
func (l *FaultLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
