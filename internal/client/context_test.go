package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gebrproject/gebr/internal/comm"
	"github.com/gebrproject/gebr/internal/queue"
)

func TestContext(t *testing.T) {
	ctx := NewContext()
	a := newHarness(t, queue.TypeRegular).s
	b := NewSession("other:2125", queue.TypeRegular, &recorder{}, nil)

	require.NoError(t, ctx.Add(a))
	require.NoError(t, ctx.Add(b))
	assert.Error(t, ctx.Add(a), "one session per address")
	assert.Equal(t, []*Session{a, b}, ctx.Sessions())

	require.NoError(t, a.Handle(comm.NewMessage(comm.OpJob, "3", "running", "T", "d", "", "ws", "", "c", "")))

	s, h, ok := ctx.FindJob("", "3")
	require.True(t, ok)
	assert.Same(t, a, s)
	snap, ok := s.Job(h)
	require.True(t, ok)
	assert.Equal(t, "T", snap.Title)

	_, _, ok = ctx.FindJob("other:2125", "3")
	assert.False(t, ok, "lookup is scoped to the given server")

	assert.True(t, ctx.Remove("srv:2125"))
	assert.False(t, ctx.Remove("srv:2125"))
	_, ok = ctx.Session("srv:2125")
	assert.False(t, ok)
	assert.Equal(t, []*Session{b}, ctx.Sessions())
}
