// Package inflight tracks requests that were submitted to the worker pool but
// have not completed yet. Entries are keyed by correlation id, so responses
// can be matched regardless of the order in which they arrive.
//
// A Table is owned by a single goroutine and is not safe for concurrent use.
package inflight

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/viant/convflux/model/sample"
)

// ErrAdmissionExceeded is raised when an entry would push the table past its bound.
var ErrAdmissionExceeded = errors.New("inflight: admission exceeded")

// ErrDuplicateID is returned when an id is registered twice.
var ErrDuplicateID = errors.New("inflight: duplicate correlation id")

// Entry represents a single outstanding request.
type Entry struct {
	ID          string
	Sample      *sample.Sample
	SubmittedAt time.Time
	Timer       *time.Timer // nil means no timeout
	seq         uint64
}

// Elapsed returns the time since submission as of now.
func (e *Entry) Elapsed(now time.Time) time.Duration {
	return now.Sub(e.SubmittedAt)
}

// Table holds outstanding entries up to a fixed bound.
type Table struct {
	max     int
	seq     uint64
	entries map[string]*Entry
}

// New creates a table admitting at most max entries.
func New(max int) *Table {
	if max < 1 {
		max = 1
	}
	return &Table{max: max, entries: make(map[string]*Entry, max)}
}

// Max returns the bound.
func (t *Table) Max() int {
	return t.max
}

// Len returns the number of outstanding entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Full reports whether no further entry can be admitted.
func (t *Table) Full() bool {
	return len(t.entries) >= t.max
}

// Empty reports whether there are no outstanding entries.
func (t *Table) Empty() bool {
	return len(t.entries) == 0
}

// Add registers an entry. Callers must check Full first: exceeding the bound
// is a programming error and panics with ErrAdmissionExceeded.
func (t *Table) Add(entry *Entry) error {
	if _, ok := t.entries[entry.ID]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateID, entry.ID)
	}
	if t.Full() {
		panic(fmt.Errorf("%w: %d entries, max %d", ErrAdmissionExceeded, len(t.entries), t.max))
	}
	t.seq++
	entry.seq = t.seq
	t.entries[entry.ID] = entry
	return nil
}

// Get returns the entry for id.
func (t *Table) Get(id string) (*Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Take removes the entry for id and stops its timer.
func (t *Table) Take(id string) (*Entry, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	if e.Timer != nil {
		e.Timer.Stop()
	}
	return e, true
}

// IDs returns outstanding ids in submission order.
func (t *Table) IDs() []string {
	entries := t.sorted()
	ret := make([]string, len(entries))
	for i, e := range entries {
		ret[i] = e.ID
	}
	return ret
}

// Clear removes every entry, stopping their timers, and returns them in
// submission order.
func (t *Table) Clear() []*Entry {
	entries := t.sorted()
	for _, e := range entries {
		if e.Timer != nil {
			e.Timer.Stop()
		}
	}
	t.entries = make(map[string]*Entry, t.max)
	return entries
}

func (t *Table) sorted() []*Entry {
	ret := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		ret = append(ret, e)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].seq < ret[j].seq })
	return ret
}
