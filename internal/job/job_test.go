package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOutput_EmptyChunkIsNoop(t *testing.T) {
	j := newJob("srv", "t", "")
	assert.False(t, j.AppendOutput(""))
	assert.Equal(t, "", j.Output())

	j.AppendOutput("abc")
	before := j.Output()
	j.AppendOutput("")
	assert.Equal(t, before, j.Output())
}

func TestAppendOutput_HeaderOnFirstChunk(t *testing.T) {
	j := newJob("srv", "t", "")
	require.True(t, j.AppendOutput("first"))
	assert.Equal(t, "Output:\nfirst", j.Output())

	j.AppendOutput(" second")
	assert.Equal(t, "Output:\nfirst second", j.Output())
	assert.Equal(t, "first second", j.RawOutput())
}

func TestApplyStatus_QueuedToRunning(t *testing.T) {
	j := newJob("srv", "t", "qmain")
	_, err := j.ApplyStatus(StatusQueued, "")
	require.NoError(t, err)

	c, err := j.ApplyStatus(StatusRunning, "2024-01-01T00:00:00")
	require.NoError(t, err)
	assert.True(t, c.Changed)
	assert.Equal(t, StatusQueued, c.Old)
	assert.Equal(t, StatusRunning, j.Status())
	assert.Equal(t, "2024-01-01T00:00:00", j.StartDate)
	assert.Empty(t, j.FinishDate)
}

func TestApplyStatus_FinishDateOnlyForFinishedAndCanceled(t *testing.T) {
	paths := [][]Status{
		{StatusRunning, StatusFinished},
		{StatusRunning, StatusCanceled},
		{StatusRunning, StatusFailed},
		{StatusFailed},
		{StatusQueued, StatusRunning},
		{StatusQueued},
	}
	for _, path := range paths {
		j := newJob("srv", "t", "")
		for _, s := range path {
			_, err := j.ApplyStatus(s, "2024-02-02")
			require.NoError(t, err)
		}
		assert.Equal(t, j.Status().HasFinishDate(), j.FinishDate != "",
			"status %s finish date %q", j.Status(), j.FinishDate)
	}
}

func TestApplyStatus_TerminalRejectsFurtherTransitions(t *testing.T) {
	j := newJob("srv", "t", "")
	j.ID = "9"
	_, _ = j.ApplyStatus(StatusRunning, "start")
	_, _ = j.ApplyStatus(StatusFinished, "end")

	_, err := j.ApplyStatus(StatusCanceled, "later")
	var desync *DesyncError
	require.ErrorAs(t, err, &desync)
	assert.Equal(t, StatusFinished, desync.From)
	assert.Equal(t, StatusCanceled, desync.To)
	assert.Equal(t, StatusFinished, j.Status())
	assert.Equal(t, "end", j.FinishDate, "rejected change leaves job untouched")

	c, err := j.ForceStatus(StatusCanceled, "later")
	require.NoError(t, err)
	assert.True(t, c.Changed)
	assert.Equal(t, StatusFinished, c.Old)
	assert.Equal(t, StatusCanceled, j.Status())
	assert.Equal(t, "later", j.FinishDate)
}

func TestForceStatus_KeepsFinishDateInvariant(t *testing.T) {
	j := newJob("srv", "t", "")
	_, _ = j.ApplyStatus(StatusRunning, "start")
	_, _ = j.ApplyStatus(StatusFinished, "end")

	_, err := j.ForceStatus(StatusRunning, "again")
	require.NoError(t, err)
	assert.Equal(t, "again", j.StartDate)
	assert.Empty(t, j.FinishDate)

	_, err = j.ForceStatus(StatusQueued, "")
	require.NoError(t, err)
	assert.Empty(t, j.FinishDate)

	_, err = j.ForceStatus(StatusUnknown, "")
	assert.ErrorAs(t, err, new(*DesyncError), "unknown is never applied")
	assert.Equal(t, StatusQueued, j.Status())
}

func TestApplyStatus_EmptyFinishDate(t *testing.T) {
	for _, s := range []Status{StatusFinished, StatusCanceled} {
		j := newJob("srv", "t", "")
		_, _ = j.ApplyStatus(StatusRunning, "start")

		c, err := j.ApplyStatus(s, "")
		require.NoError(t, err)
		assert.True(t, c.Changed)
		assert.Equal(t, s, j.Status())
		assert.Equal(t, "start", j.FinishDate)
	}

	j := newJob("srv", "t", "")
	_, _ = j.ApplyStatus(StatusRunning, "")
	_, err := j.ApplyStatus(StatusFinished, "")
	assert.ErrorIs(t, err, ErrNoFinishDate)
	assert.Equal(t, StatusRunning, j.Status())
	assert.Empty(t, j.FinishDate)
}

func TestApplyStatus_BackwardsIsDesync(t *testing.T) {
	j := newJob("srv", "t", "")
	_, _ = j.ApplyStatus(StatusRunning, "start")
	_, err := j.ApplyStatus(StatusQueued, "")
	assert.ErrorAs(t, err, new(*DesyncError))
}

func TestApplyStatus_RepeatIsIdempotent(t *testing.T) {
	j := newJob("srv", "t", "")
	_, _ = j.ApplyStatus(StatusRunning, "start")
	c, err := j.ApplyStatus(StatusRunning, "other")
	require.NoError(t, err)
	assert.False(t, c.Changed)
	assert.Equal(t, "start", j.StartDate)
}

func TestApplyStatus_PseudoStatusesKeepStatus(t *testing.T) {
	j := newJob("srv", "t", "j1")
	_, _ = j.ApplyStatus(StatusRunning, "start")
	_, _ = j.ApplyStatus(StatusFinished, "end")

	c, err := j.ApplyStatus(StatusIssued, "trailing issue\n")
	require.NoError(t, err, "issues are legal after a terminal status")
	assert.True(t, c.Changed)
	assert.Equal(t, "trailing issue\n", j.Issues())

	c, err = j.ApplyStatus(StatusRequeued, "qnight")
	require.NoError(t, err)
	assert.Equal(t, "j1", c.Prev)
	assert.Equal(t, "qnight", j.QueueID)
	assert.Equal(t, StatusFinished, j.Status())
}

func TestLoad_NormalisesFinishDate(t *testing.T) {
	j := newJob("srv", "", "")
	j.Load(Snapshot{ID: "1", Status: "finished", StartDate: "s"})
	assert.Equal(t, "s", j.FinishDate)

	j = newJob("srv", "", "")
	j.Load(Snapshot{ID: "2", Status: "running", StartDate: "s", FinishDate: "bogus"})
	assert.Empty(t, j.FinishDate)

	j = newJob("srv", "", "")
	j.Load(Snapshot{ID: "3", Status: "failed", Output: "x", Issues: "bad\n"})
	assert.Empty(t, j.FinishDate)
	assert.Equal(t, "Output:\nx", j.Output())
	assert.Equal(t, "bad\n", j.Issues())
}

func TestSnapshot_Args(t *testing.T) {
	j := newJob("srv", "title", "")
	j.ID = "4"
	j.Hostname = "h"
	_, _ = j.ApplyStatus(StatusRunning, "s")
	j.AppendOutput("out")

	s := j.Snapshot()
	back, err := SnapshotFromJobArgs(s.JobArgs())
	require.NoError(t, err)
	assert.Equal(t, s, back)
	assert.Equal(t, "out", back.Output, "wire output has no header")

	_, err = SnapshotFromRunReply(s.JobArgs())
	assert.Error(t, err)

	_, err = SnapshotFromJobArgs([]string{"5", "finished", "t", "", "", "h", "", "", ""})
	assert.ErrorIs(t, err, ErrNoFinishDate)
}

func TestParseStatus(t *testing.T) {
	for s := StatusUnknown; s <= StatusIssued; s++ {
		assert.Equal(t, s, ParseStatus(s.String()))
	}
	assert.Equal(t, StatusUnknown, ParseStatus("Running"), "status names are case-sensitive")
}

func TestCheckClose(t *testing.T) {
	j := newJob("srv", "nightly", "")
	j.ID = "12"
	_, _ = j.ApplyStatus(StatusRunning, "s")

	err := CheckClose(j, false)
	var ce *CloseError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "can't close running job")
	assert.NoError(t, CheckClose(j, true))

	_, _ = j.ApplyStatus(StatusFinished, "e")
	assert.NoError(t, CheckClose(j, false))
}
