// Package queue keeps the per-server queue book: which queues exist, how
// they are labeled for display, and which job last ran in each of them.
package queue

import (
	"log"
	"strings"

	"github.com/gebrproject/gebr/internal/job"
)

// Queue id markers. A queue id starting with MarkerNamed is a persistent
// queue named by the user; one starting with MarkerImplicit is the "after job
// X" chain anchored on job X. The empty id means no queue.
const (
	MarkerNamed    = 'q'
	MarkerImplicit = 'j'
)

// ServerType selects the retention policy for implicit chains.
type ServerType int

const (
	TypeRegular ServerType = iota // implicit chains vanish once their anchor stops
	TypeBatch                     // implicit chains are kept for history
)

func (t ServerType) String() string {
	if t == TypeBatch {
		return "batch"
	}
	return "regular"
}

// ParseServerType maps "batch" to TypeBatch and anything else to
// TypeRegular.
func ParseServerType(s string) ServerType {
	if strings.EqualFold(s, "batch") {
		return TypeBatch
	}
	return TypeRegular
}

// Named returns the queue id of the named queue name.
func Named(name string) string {
	return string(MarkerNamed) + name
}

// Implicit returns the queue id of the chain anchored on jobID.
func Implicit(jobID string) string {
	return string(MarkerImplicit) + jobID
}

// IsNamed reports whether id denotes a named queue.
func IsNamed(id string) bool {
	return id != "" && id[0] == MarkerNamed
}

// IsImplicit reports whether id denotes an implicit chain.
func IsImplicit(id string) bool {
	return id != "" && id[0] == MarkerImplicit
}

// Name strips the marker from id.
func Name(id string) string {
	if IsNamed(id) || IsImplicit(id) {
		return id[1:]
	}
	return id
}

// Entry is one queue known for a server.
type Entry struct {
	ID          string
	Label       string
	LastRunning job.Handle

	waiting []job.Handle
}

// Waiting returns the jobs queued behind LastRunning, oldest first.
func (e *Entry) Waiting() []job.Handle {
	return append([]job.Handle(nil), e.waiting...)
}

// Outcome tells the caller what Release did to a queue.
type Outcome int

const (
	Untouched Outcome = iota // nothing to do
	Removed                  // the entry was dropped
	Idle                     // a named queue lost its running job; relabel it
)

// Book maps queue ids to entries for one server. Like the job registry it is
// owned by a single goroutine.
type Book struct {
	entries map[string]*Entry
	order   []string

	retainsEphemeral bool
}

// NewBook creates an empty book whose retention policy follows t.
func NewBook(t ServerType) *Book {
	return &Book{
		entries:          make(map[string]*Entry),
		retainsEphemeral: t == TypeBatch,
	}
}

// Find returns the entry for id.
func (b *Book) Find(id string) (*Entry, bool) {
	e, ok := b.entries[id]
	return e, ok
}

// Upsert creates or updates the entry for id. The empty id is never stored
// and yields nil.
func (b *Book) Upsert(id, label string, last job.Handle) *Entry {
	if id == "" {
		return nil
	}
	e, ok := b.entries[id]
	if !ok {
		e = &Entry{ID: id}
		b.entries[id] = e
		b.order = append(b.order, id)
		log.Printf("[QUEUE] Added queue %s (%q)", id, label)
	}
	e.Label = label
	e.LastRunning = last
	return e
}

// Remove drops the entry for id. It reports whether the entry existed.
func (b *Book) Remove(id string) bool {
	if _, ok := b.entries[id]; !ok {
		return false
	}
	delete(b.entries, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	log.Printf("[QUEUE] Removed queue %s", id)
	return true
}

// Release is called when job h stops running in queue id. It is the single
// place where the retention policy is decided: implicit chains are removed
// unless the book retains them, named queues stay and report Idle when h was
// their last running job. A queue with jobs still waiting is never touched.
func (b *Book) Release(id string, h job.Handle) Outcome {
	e, ok := b.entries[id]
	if !ok || len(e.waiting) > 0 {
		return Untouched
	}
	switch {
	case IsImplicit(id):
		if b.retainsEphemeral {
			return Untouched
		}
		b.Remove(id)
		return Removed
	case e.LastRunning == h:
		return Idle
	}
	return Untouched
}

// Enqueue appends h to the waiting list of id, creating the entry if needed.
func (b *Book) Enqueue(id string, h job.Handle) {
	e, ok := b.entries[id]
	if !ok {
		e = b.Upsert(id, "", job.Handle{})
	}
	e.waiting = append(e.waiting, h)
}

// Dequeue pops the oldest waiting job of id.
func (b *Book) Dequeue(id string) (job.Handle, bool) {
	e, ok := b.entries[id]
	if !ok || len(e.waiting) == 0 {
		return job.Handle{}, false
	}
	h := e.waiting[0]
	e.waiting = e.waiting[1:]
	return h, true
}

// Drop removes h from every waiting list. It reports whether h was waiting.
func (b *Book) Drop(h job.Handle) bool {
	for _, e := range b.entries {
		for i, w := range e.waiting {
			if w == h {
				e.waiting = append(e.waiting[:i], e.waiting[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Entries returns the entries in the order they were first added.
func (b *Book) Entries() []*Entry {
	out := make([]*Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out
}

// Len returns the number of queues.
func (b *Book) Len() int {
	return len(b.entries)
}
