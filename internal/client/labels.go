package client

import (
	"fmt"

	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
)

// Labeler formats the display labels of a server's queues. Regular servers
// hide the queue marker; batch servers name queues by their full id.
type Labeler struct {
	Type queue.ServerType
}

func (l Labeler) name(queueID string) string {
	if l.Type == queue.TypeBatch {
		return queueID
	}
	return queue.Name(queueID)
}

// Running labels a queue while j runs in it.
func (l Labeler) Running(j *job.Job) string {
	if l.Type == queue.TypeRegular && queue.IsImplicit(j.QueueID) {
		return fmt.Sprintf("After '%s'", j.Title)
	}
	return fmt.Sprintf("After '%s' at '%s'", j.Title, l.name(j.QueueID))
}

// Idle labels a named queue with nothing running.
func (l Labeler) Idle(queueID string) string {
	return fmt.Sprintf("At '%s'", l.name(queueID))
}
