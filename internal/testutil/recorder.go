// Package testutil provides deterministic fakes for pipeline tests.
package testutil

import "sync"

// Event is one call observed by a fake.
type Event struct {
	Seq       int64
	Op        string
	Container string
	Script    string
}

// Ops recorded by the fakes.
const (
	OpCompile  = "compile"
	OpCompiled = "compiled"
	OpList     = "list"
	OpCreate   = "create"
	OpReplace  = "replace"
)

// Recorder is a thread-safe, totally ordered call log shared by fakes, so
// tests can assert cross-fake ordering such as "list after every compile".
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewRecorder creates an empty recorder. The first event gets Seq 1.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event and returns its seq.
func (r *Recorder) Record(op, container, script string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.events = append(r.events, Event{Seq: r.seq, Op: op, Container: container, Script: script})
	return r.seq
}

// Events returns a copy of all events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the events matching op and container. An empty container
// matches every container.
func (r *Recorder) Filter(op, container string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Op == op && (container == "" || e.Container == container) {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = 0
	r.events = nil
}
