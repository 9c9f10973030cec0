package job

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned when a job id or handle does not resolve.
var ErrJobNotFound = errors.New("job not found")

// ErrNoFinishDate is returned when a job would end with neither a finish
// date nor a start date to stand in for it.
var ErrNoFinishDate = errors.New("no finish date")

// CloseError rejects a non-forced close of a job that still holds or waits
// for an execution slot.
type CloseError struct {
	ID     string
	Title  string
	Status Status
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("can't close %s job '%s' (id %s)", e.Status, e.Title, e.ID)
}

// DesyncError reports a status transition the machine does not allow. It
// means client and daemon disagree about a job.
type DesyncError struct {
	ID   string
	From Status
	To   Status
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("job %s: illegal status change %s -> %s", e.ID, e.From, e.To)
}
