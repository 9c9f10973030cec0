package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateFind(t *testing.T) {
	r := NewRegistry()
	h, j := r.Create("host:1", "flow", "")
	j.ID = "7"
	j.RunID = "run-a"

	gh, gj, ok := r.Find("host:1", "7", true)
	require.True(t, ok)
	assert.Equal(t, h, gh)
	assert.Same(t, j, gj)

	_, _, ok = r.Find("host:1", "run-a", false)
	assert.True(t, ok)

	_, _, ok = r.Find("host:1", "run-a", true)
	assert.False(t, ok, "run id is not a job id")
	_, _, ok = r.Find("host:2", "7", true)
	assert.False(t, ok, "lookup is scoped to the server address")
	_, _, ok = r.Find("host:1", "RUN-A", false)
	assert.False(t, ok, "lookup is case-sensitive")
}

func TestRegistry_DeleteInvalidatesHandle(t *testing.T) {
	r := NewRegistry()
	h, _ := r.Create("s", "a", "")
	require.True(t, r.Delete(h))
	assert.False(t, r.Delete(h), "second delete is a no-op")

	_, ok := r.Get(h)
	assert.False(t, ok)

	h2, _ := r.Create("s", "b", "")
	assert.NotEqual(t, h, h2, "reused slot gets a new generation")
	_, ok = r.Get(h)
	assert.False(t, ok, "stale handle does not resolve to the new job")
	j2, ok := r.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "b", j2.Title)
}

func TestRegistry_ForEachCreationOrder(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create("s", "a", "")
	r.Create("s", "b", "")
	r.Create("s", "c", "")
	r.Delete(a)
	r.Create("s", "d", "")

	var titles []string
	r.ForEach(func(_ Handle, j *Job) bool {
		titles = append(titles, j.Title)
		return true
	})
	assert.Equal(t, []string{"b", "c", "d"}, titles)
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_NextIDSkipsLiveIDs(t *testing.T) {
	r := NewRegistry()
	_, j := r.Create("s", "a", "")
	j.ID = "1"

	assert.Equal(t, "2", r.NextID("s"))
	assert.Equal(t, "3", r.NextID("s"))
}

func TestRegistry_ZeroHandle(t *testing.T) {
	r := NewRegistry()
	var h Handle
	assert.True(t, h.IsZero())
	_, ok := r.Get(h)
	assert.False(t, ok)
}
