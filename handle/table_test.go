package handle

import (
	"math"
	"sync"
	"testing"
)

type testObserver struct {
	events []Event[string]
}

func (o *testObserver) OnHandleEvent(e Event[string]) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable[string]()

	// Register
	s := table.Register("checker")
	if s != 1 {
		t.Fatalf("Expected first serial 1, got %d", s)
	}

	// Resolve
	val, ok := table.Resolve(s)
	if !ok || val != "checker" {
		t.Fatalf("Resolve(%d) = %q, %v", s, val, ok)
	}

	// Unregister
	val, ok = table.Unregister(s)
	if !ok || val != "checker" {
		t.Fatalf("Unregister(%d) = %q, %v", s, val, ok)
	}
	if _, ok := table.Resolve(s); ok {
		t.Fatal("Resolve after Unregister should fail")
	}

	// Second unregister is a no-op
	if _, ok := table.Unregister(s); ok {
		t.Fatal("double Unregister should report false")
	}

	// Serial not reused
	q := table.Register("marble")
	if q == s {
		t.Fatalf("serial %d reused", q)
	}
	if table.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", table.Len())
	}
	if table.Issued() != 2 {
		t.Fatalf("Expected Issued() == 2, got %d", table.Issued())
	}
}

func TestTable_SerialsNeverReused(t *testing.T) {
	table := NewTable[int]()
	seen := make(map[Serial]bool)

	for round := 0; round < 10; round++ {
		var batch []Serial
		for i := 0; i < 50; i++ {
			s := table.Register(i)
			if !s.Valid() {
				t.Fatalf("invalid serial %d", s)
			}
			if seen[s] {
				t.Fatalf("serial %d issued twice", s)
			}
			seen[s] = true
			batch = append(batch, s)
		}
		for _, s := range batch[:25] {
			table.Unregister(s)
		}
	}
	if table.Len() != 250 {
		t.Fatalf("Expected 250 live entries, got %d", table.Len())
	}
}

func TestTable_ResolveNeverPanics(t *testing.T) {
	table := NewTable[string]()

	probe := []Serial{0, -1, math.MinInt32, 1, 2, 63, 64, 65, 1 << 20, MaxSerial}
	for _, s := range probe {
		if _, ok := table.Resolve(s); ok {
			t.Errorf("empty table resolved %d", s)
		}
		if _, ok := table.Unregister(s); ok {
			t.Errorf("empty table unregistered %d", s)
		}
	}

	for i := 0; i < 3*minSegment; i++ {
		table.Register("x")
	}
	for _, s := range []Serial{0, -5, 3*minSegment + 1, 1 << 30, MaxSerial} {
		if _, ok := table.Resolve(s); ok {
			t.Errorf("resolved unissued serial %d", s)
		}
	}
	if _, ok := table.Resolve(3 * minSegment); !ok {
		t.Error("last issued serial did not resolve")
	}
}

func TestTable_Growth(t *testing.T) {
	table := NewTable[int]()
	old := table.seg.Load()

	var serials []Serial
	for i := 0; i < minSegment*4+3; i++ {
		serials = append(serials, table.Register(i))
	}
	if table.seg.Load() == old {
		t.Fatal("segment did not grow")
	}

	// Writes made after growth are visible through cells shared with the old segment.
	table.Unregister(serials[0])
	if old.cells[0].p.Load() != nil {
		t.Fatal("old segment does not share cells")
	}

	for i, s := range serials[1:] {
		v, ok := table.Resolve(s)
		if !ok || v != i+1 {
			t.Fatalf("Resolve(%d) = %d, %v", s, v, ok)
		}
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string]()
	obs := &testObserver{}
	unsubscribe := table.Subscribe(obs)

	s := table.Register("a")
	table.Unregister(s)
	table.Unregister(s)

	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventRegistered || obs.events[0].Serial != s {
		t.Errorf("unexpected first event %+v", obs.events[0])
	}
	if obs.events[1].Type != EventUnregistered || obs.events[1].Value != "a" {
		t.Errorf("unexpected second event %+v", obs.events[1])
	}

	unsubscribe()
	unsubscribe()
	table.Register("b")
	if len(obs.events) != 2 {
		t.Fatal("observer still notified after unsubscribe")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable[string]()

	// Func observers are not comparable; removal goes through the token.
	var first, second []Serial
	stopFirst := table.Subscribe(ObserverFunc[string](func(e Event[string]) {
		first = append(first, e.Serial)
	}))
	table.Subscribe(ObserverFunc[string](func(e Event[string]) {
		second = append(second, e.Serial)
	}))

	a := table.Register("a")
	stopFirst()
	b := table.Register("b")

	if len(first) != 1 || first[0] != a {
		t.Fatalf("first observer saw %v, want [%d]", first, a)
	}
	if len(second) != 2 || second[1] != b {
		t.Fatalf("second observer saw %v, want [%d %d]", second, a, b)
	}
}

type reentrantObserver struct {
	table   *Table[string]
	nested  Serial
	visible bool
}

func (o *reentrantObserver) OnHandleEvent(e Event[string]) {
	if e.Type != EventRegistered || e.Value != "outer" {
		return
	}
	// Registering from inside a notification must not deadlock.
	o.nested = o.table.Register("inner")
	_, o.visible = o.table.Resolve(o.nested)
}

func TestTable_ReentrantRegister(t *testing.T) {
	table := NewTable[string]()
	obs := &reentrantObserver{table: table}
	table.Subscribe(obs)

	outer := table.Register("outer")
	if !obs.nested.Valid() || obs.nested == outer {
		t.Fatalf("nested serial %d, outer %d", obs.nested, outer)
	}
	if !obs.visible {
		t.Fatal("nested registration not resolvable immediately")
	}

	// Register from inside a function running against a resolved value.
	v, ok := table.Resolve(outer)
	if !ok {
		t.Fatal("outer not resolvable")
	}
	func(string) {
		s := table.Register("from-callback")
		if got, ok := table.Resolve(s); !ok || got != "from-callback" {
			t.Fatalf("Resolve(%d) = %q, %v", s, got, ok)
		}
	}(v)
}

func TestTable_Each(t *testing.T) {
	table := NewTable[int]()
	for i := 1; i <= 5; i++ {
		table.Register(i * 10)
	}
	table.Unregister(2)
	table.Unregister(4)

	var got []int
	table.Each(func(s Serial, v int) bool {
		got = append(got, v)
		return true
	})
	want := []int{10, 30, 50}
	if len(got) != len(want) {
		t.Fatalf("Each visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Each visited %v, want %v", got, want)
		}
	}

	count := 0
	table.Each(func(Serial, int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Each did not stop early, visited %d", count)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable[string]()
	s := table.Register("kept")
	table.Close()

	if !table.Closed() {
		t.Fatal("Closed() false after Close")
	}
	if got := table.Register("late"); got != None {
		t.Fatalf("Register on closed table returned %d", got)
	}
	if _, ok := table.Resolve(s); !ok {
		t.Fatal("existing entry lost on Close")
	}
	if _, ok := table.Unregister(s); !ok {
		t.Fatal("Unregister failed on closed table")
	}
}

func TestTable_Exhausted(t *testing.T) {
	table := NewTable[string]()
	table.next = MaxSerial - 1

	if s := table.Register("last"); s != MaxSerial {
		t.Fatalf("Expected %d, got %d", MaxSerial, s)
	}
	if s := table.Register("overflow"); s != None {
		t.Fatalf("Expected None after exhaustion, got %d", s)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int]()
	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	results := make([][]Serial, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s := table.Register(w*perWorker + i)
				results[w] = append(results[w], s)
				if v, ok := table.Resolve(s); !ok || v != w*perWorker+i {
					t.Errorf("Resolve(%d) = %d, %v", s, v, ok)
					return
				}
				if i%3 == 0 {
					table.Unregister(s)
				}
			}
		}(w)
	}

	// Readers probing arbitrary serials while the table grows.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func(r int) {
			defer readers.Done()
			s := Serial(r)
			for {
				select {
				case <-stop:
					return
				default:
				}
				table.Resolve(s)
				s = (s*31 + 7) % (workers * perWorker * 2)
			}
		}(r)
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	seen := make(map[Serial]bool)
	for _, rs := range results {
		for _, s := range rs {
			if seen[s] {
				t.Fatalf("serial %d issued twice", s)
			}
			seen[s] = true
		}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("Expected %d serials, got %d", workers*perWorker, len(seen))
	}
}
