package job

// Event is a typed notification about a job held by a registry. Observers
// receive the handle, never a pointer that outlives the registry entry.
type Event interface {
	JobHandle() Handle
}

// Observer receives events in the order they happen.
type Observer func(Event)

type JobCreated struct {
	Handle Handle
	ID     string
	Title  string
}

type StatusChanged struct {
	Handle Handle
	Old    Status
	New    Status
	Param  string
}

type OutputAppended struct {
	Handle Handle
	Chunk  string
}

type IssueAppended struct {
	Handle Handle
	Text   string
}

type JobDeleted struct {
	Handle Handle
	ID     string
}

func (e JobCreated) JobHandle() Handle     { return e.Handle }
func (e StatusChanged) JobHandle() Handle  { return e.Handle }
func (e OutputAppended) JobHandle() Handle { return e.Handle }
func (e IssueAppended) JobHandle() Handle  { return e.Handle }
func (e JobDeleted) JobHandle() Handle     { return e.Handle }
