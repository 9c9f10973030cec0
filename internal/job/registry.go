package job

import (
	"log"
	"strconv"
)

// Handle is a stable reference to a registry entry. A handle is invalidated
// when its job is deleted; resolving it afterwards fails even if the slot is
// reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued by a registry.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsZero() {
		return "job#-"
	}
	return "job#" + strconv.FormatUint(uint64(h.index), 10) + "." + strconv.FormatUint(uint64(h.gen), 10)
}

type slot struct {
	gen uint32
	job *Job
}

// Registry owns the jobs of one server connection. It performs no status
// checks; the close rule is applied by its callers. Not safe for concurrent
// use: it belongs to the goroutine that processes the connection.
type Registry struct {
	slots  []slot
	free   []uint32
	order  []uint32 // live slot indexes in creation order
	nextID int
}

// NewRegistry creates an empty registry. Job ids handed out by NextID start
// at 1 so that NoID never collides.
func NewRegistry() *Registry {
	return &Registry{nextID: 1}
}

// Create adds a job with status unknown and returns its handle.
func (r *Registry) Create(server, title, queue string) (Handle, *Job) {
	j := newJob(server, title, queue)

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.gen++
	s.job = j
	r.order = append(r.order, idx)

	h := Handle{index: idx, gen: s.gen}
	log.Printf("[JOB] Created %s (server=%s, title=%q, queue=%q)", h, server, title, queue)
	return h, j
}

// Get resolves a handle.
func (r *Registry) Get(h Handle) (*Job, bool) {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.index]
	if s.gen != h.gen || s.job == nil {
		return nil, false
	}
	return s.job, true
}

// Find looks a job up by server address and either its job id (byJID) or
// its run id. Both comparisons are exact.
func (r *Registry) Find(server, id string, byJID bool) (Handle, *Job, bool) {
	if id == "" {
		return Handle{}, nil, false
	}
	for _, idx := range r.order {
		j := r.slots[idx].job
		if j.Server != server {
			continue
		}
		key := j.RunID
		if byJID {
			key = j.ID
		}
		if key == id {
			return Handle{index: idx, gen: r.slots[idx].gen}, j, true
		}
	}
	return Handle{}, nil, false
}

// Delete removes a job and invalidates its handle. It reports whether the
// handle was live.
func (r *Registry) Delete(h Handle) bool {
	j, ok := r.Get(h)
	if !ok {
		return false
	}
	s := &r.slots[h.index]
	s.job = nil
	s.gen++
	r.free = append(r.free, h.index)
	for i, idx := range r.order {
		if idx == h.index {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Printf("[JOB] Removed %s (id=%s)", h, j.ID)
	return true
}

// ForEach calls fn for every job in creation order until fn returns false.
// fn must not create or delete jobs.
func (r *Registry) ForEach(fn func(Handle, *Job) bool) {
	for _, idx := range r.order {
		s := r.slots[idx]
		if !fn(Handle{index: idx, gen: s.gen}, s.job) {
			return
		}
	}
}

// Len returns the number of live jobs.
func (r *Registry) Len() int {
	return len(r.order)
}

// NextID allocates a job id not used by any live job.
func (r *Registry) NextID(server string) string {
	for {
		id := strconv.Itoa(r.nextID)
		r.nextID++
		if _, _, taken := r.Find(server, id, true); !taken {
			return id
		}
	}
}
