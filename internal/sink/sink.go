// Package sink implements the append-only event queues consumed by
// downstream tag-manager integrations.
package sink

import (
	"sync"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

// Queue is one ordered event stream (the dataLayer, or the secondary
// marketing-tag mirror). Entries are canonical events, reset markers or
// verbatim server-rendered page events. Append-only; entries are never
// mutated after the push.
type Queue struct {
	mu      sync.Mutex
	name    string
	entries []any
}

// New returns an empty queue with a name used for logging.
func New(name string) *Queue {
	return &Queue{name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	if q == nil {
		return ""
	}
	return q.name
}

// Live reports whether the queue can accept entries. A nil queue stands in
// for a sink global that another page script replaced with a non-array
// value; pushes to it are silently skipped.
func (q *Queue) Live() bool {
	return q != nil
}

// Push appends the given entries in order under a single lock, so an event
// and its preceding reset marker are observed together or not at all.
func (q *Queue) Push(entries ...any) {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.entries = append(q.entries, entries...)
	q.mu.Unlock()
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the current entries.
func (q *Queue) Entries() []any {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]any, len(q.entries))
	copy(out, q.entries)
	return out
}

// LastCurrency scans the queue backward for the most recent entry carrying
// ecommerce.currency. Returns "" when no entry recorded a currency yet.
func (q *Queue) LastCurrency() string {
	if q == nil {
		return ""
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.entries) - 1; i >= 0; i-- {
		if c := entryCurrency(q.entries[i]); c != "" {
			return c
		}
	}
	return ""
}

// LastNamed scans backward for the most recent event entry with the given
// event name. Both typed events and raw page-event maps are considered.
func (q *Queue) LastNamed(name string) (any, bool) {
	if q == nil {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.entries) - 1; i >= 0; i-- {
		switch e := q.entries[i].(type) {
		case *event.Event:
			if e.Event == name {
				return e, true
			}
		case map[string]any:
			if s, ok := e["event"].(string); ok && s == name {
				return e, true
			}
		}
	}
	return nil, false
}

func entryCurrency(entry any) string {
	switch e := entry.(type) {
	case *event.Event:
		if e.Ecommerce != nil {
			return e.Ecommerce.Currency
		}
	case map[string]any:
		if ec, ok := e["ecommerce"].(map[string]any); ok {
			if c, ok := ec["currency"].(string); ok {
				return c
			}
		}
	}
	return ""
}

// Sinks fans pushes out to every live queue.
type Sinks struct {
	queues []*Queue
}

// NewSinks groups the given queues. Nil queues are tolerated and skipped on
// every push.
func NewSinks(queues ...*Queue) *Sinks {
	return &Sinks{queues: queues}
}

// Push appends the entries to every live queue.
func (s *Sinks) Push(entries ...any) {
	for _, q := range s.queues {
		if q.Live() {
			q.Push(entries...)
		}
	}
}

// Queues returns the grouped queues, including nil placeholders.
func (s *Sinks) Queues() []*Queue {
	return s.queues
}
