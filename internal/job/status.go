package job

// Status is a job's resting status, or one of the two pseudo-statuses that
// only travel on the wire.
type Status int

const (
	StatusUnknown  Status = iota // not yet reported by the daemon
	StatusQueued                 // waiting behind another job of its queue
	StatusRunning                // process started
	StatusFinished               // process exited on its own
	StatusCanceled               // process ended by END/KIL
	StatusFailed                 // could not be run
	StatusRequeued               // pseudo: parameter is the new queue id
	StatusIssued                 // pseudo: parameter is issue text
)

var statusNames = [...]string{
	StatusUnknown:  "unknown",
	StatusQueued:   "queued",
	StatusRunning:  "running",
	StatusFinished: "finished",
	StatusCanceled: "canceled",
	StatusFailed:   "failed",
	StatusRequeued: "requeued",
	StatusIssued:   "issued",
}

// transitions lists the allowed moves between resting statuses.
var transitions = map[Status][]Status{
	StatusUnknown: {StatusQueued, StatusRunning, StatusFailed},
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusFinished, StatusCanceled, StatusFailed},
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return statusNames[StatusUnknown]
}

// ParseStatus translates a wire status. Unrecognised text maps to
// StatusUnknown.
func ParseStatus(s string) Status {
	for st, name := range statusNames {
		if name == s {
			return Status(st)
		}
	}
	return StatusUnknown
}

// IsPseudo reports whether s is an event rather than a resting status.
func (s Status) IsPseudo() bool {
	return s == StatusRequeued || s == StatusIssued
}

// IsTerminal reports whether no further status transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCanceled || s == StatusFailed
}

// IsActive reports whether the job still holds, or waits for, an execution
// slot.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusQueued
}

// HasFinishDate reports whether a job in status s carries a finish date.
func (s Status) HasFinishDate() bool {
	return s == StatusFinished || s == StatusCanceled
}

// CanMove reports whether the machine allows from -> to.
func CanMove(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
