package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gebrproject/gebr/internal/job"
)

func handles(t *testing.T, n int) []job.Handle {
	t.Helper()
	r := job.NewRegistry()
	hs := make([]job.Handle, n)
	for i := range hs {
		hs[i], _ = r.Create("srv", "t", "")
	}
	return hs
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, "qnight", Named("night"))
	assert.Equal(t, "j12", Implicit("12"))
	assert.True(t, IsNamed("qnight"))
	assert.False(t, IsNamed("j12"))
	assert.True(t, IsImplicit("j12"))
	assert.False(t, IsImplicit(""))
	assert.Equal(t, "night", Name("qnight"))
	assert.Equal(t, "12", Name("j12"))
	assert.Equal(t, "plain", Name("plain"))
}

func TestBook_UpsertFindRemove(t *testing.T) {
	hs := handles(t, 2)
	b := NewBook(TypeRegular)

	assert.Nil(t, b.Upsert("", "x", hs[0]), "empty id is never stored")
	b.Upsert("qa", "At 'a'", job.Handle{})
	b.Upsert("qa", "After 'x' at 'a'", hs[1])

	e, ok := b.Find("qa")
	require.True(t, ok)
	assert.Equal(t, "After 'x' at 'a'", e.Label)
	assert.Equal(t, hs[1], e.LastRunning)
	assert.Equal(t, 1, b.Len())

	assert.True(t, b.Remove("qa"))
	assert.False(t, b.Remove("qa"))
	_, ok = b.Find("qa")
	assert.False(t, ok)
}

func TestBook_ReleaseRegular(t *testing.T) {
	hs := handles(t, 2)
	b := NewBook(TypeRegular)
	b.Upsert("j1", "After 'a'", hs[0])
	b.Upsert("qn", "After 'a' at 'n'", hs[0])

	assert.Equal(t, Removed, b.Release("j1", hs[0]))
	_, ok := b.Find("j1")
	assert.False(t, ok)

	assert.Equal(t, Untouched, b.Release("qn", hs[1]), "another job ran last")
	assert.Equal(t, Idle, b.Release("qn", hs[0]))
	_, ok = b.Find("qn")
	assert.True(t, ok, "named queues persist")

	assert.Equal(t, Untouched, b.Release("missing", hs[0]))
}

func TestBook_ReleaseBatchRetainsImplicit(t *testing.T) {
	hs := handles(t, 1)
	b := NewBook(TypeBatch)
	b.Upsert("j1", "j1", hs[0])

	assert.Equal(t, Untouched, b.Release("j1", hs[0]))
	_, ok := b.Find("j1")
	assert.True(t, ok)
}

func TestBook_WaitingFIFO(t *testing.T) {
	hs := handles(t, 3)
	b := NewBook(TypeRegular)
	b.Upsert("qn", "", hs[0])
	b.Enqueue("qn", hs[1])
	b.Enqueue("qn", hs[2])

	assert.Equal(t, Untouched, b.Release("qn", hs[0]), "queue with waiters is left alone")

	h, ok := b.Dequeue("qn")
	require.True(t, ok)
	assert.Equal(t, hs[1], h)

	assert.True(t, b.Drop(hs[2]))
	assert.False(t, b.Drop(hs[2]))
	_, ok = b.Dequeue("qn")
	assert.False(t, ok)
}

func TestBook_EnqueueCreatesEntry(t *testing.T) {
	hs := handles(t, 1)
	b := NewBook(TypeRegular)
	b.Enqueue("j9", hs[0])
	e, ok := b.Find("j9")
	require.True(t, ok)
	assert.Equal(t, []job.Handle{hs[0]}, e.Waiting())
	assert.Len(t, b.Entries(), 1)
}

func TestParseServerType(t *testing.T) {
	assert.Equal(t, TypeBatch, ParseServerType("Batch"))
	assert.Equal(t, TypeRegular, ParseServerType("regular"))
	assert.Equal(t, TypeRegular, ParseServerType(""))
}
