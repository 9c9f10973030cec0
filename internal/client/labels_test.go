package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gebrproject/gebr/internal/job"
	"github.com/gebrproject/gebr/internal/queue"
)

func TestLabeler(t *testing.T) {
	regular := Labeler{Type: queue.TypeRegular}
	batch := Labeler{Type: queue.TypeBatch}

	chained := &job.Job{Title: "Stack", QueueID: "j4"}
	named := &job.Job{Title: "Stack", QueueID: "qnight"}

	assert.Equal(t, "After 'Stack'", regular.Running(chained))
	assert.Equal(t, "After 'Stack' at 'night'", regular.Running(named))
	assert.Equal(t, "At 'night'", regular.Idle("qnight"))

	assert.Equal(t, "After 'Stack' at 'j4'", batch.Running(chained))
	assert.Equal(t, "After 'Stack' at 'qnight'", batch.Running(named))
	assert.Equal(t, "At 'qnight'", batch.Idle("qnight"))
}
