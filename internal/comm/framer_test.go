package comm

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "ini_login", NewMessage(OpIni, ProtocolVersion, "host1", "", "").Encode())
	g.Assert(t, "out_chunk_with_delimiters", NewMessage(OpOut, "42", "a|b c\n").Encode())
	g.Assert(t, "lst_empty", NewMessage(OpLst).Encode())
	g.Assert(t, "fin_finished", NewMessage(OpFin, "7", "finished", "2024-01-01T00:00:00").Encode())
}

func TestFramer_ByteByByte(t *testing.T) {
	stream := append(NewMessage(OpOut, "42", "partial\nline").Encode(),
		NewMessage(OpFin, "42", "finished", "now").Encode()...)

	var f Framer
	var got []Message
	for i := range stream {
		msgs, err := f.Feed(stream[i : i+1])
		require.NoError(t, err)
		got = append(got, msgs...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, OpOut, got[0].Op)
	assert.Equal(t, OpFin, got[1].Op)
	assert.Zero(t, f.Pending())

	args, err := got[0].Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "partial\nline"}, args)
}

func TestFramer_SeveralFramesInOneRead(t *testing.T) {
	var stream []byte
	for _, id := range []string{"1", "2", "3"} {
		stream = append(stream, NewMessage(OpClr, id).Encode()...)
	}

	var f Framer
	msgs, err := f.Feed(stream)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		args, err := m.Args()
		require.NoError(t, err)
		assert.Equal(t, string(rune('1'+i)), args[0], "frames keep arrival order")
	}
}

func TestFramer_ZeroArgumentFrame(t *testing.T) {
	var f Framer
	msgs, err := f.Feed([]byte("QUT 0 \n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, OpQut, msgs[0].Op)

	args, err := msgs[0].Args()
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestFramer_UnknownOpcode(t *testing.T) {
	var f Framer
	msgs, err := f.Feed(append(NewMessage(OpLst).Encode(), []byte("XYZ 0 \n")...))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Len(t, msgs, 1, "frames before the bad one are still delivered")
	assert.Zero(t, f.Pending(), "buffer discarded after a framing error")
}

func TestFramer_MissingLineBreak(t *testing.T) {
	var f Framer
	_, err := f.Feed([]byte("CLR 3 +1aX"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFramer_BadSize(t *testing.T) {
	var f Framer
	_, err := f.Feed([]byte("CLR 1x +1a\n"))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestMessage_ArgsArity(t *testing.T) {
	_, err := NewMessage(OpIni, "0.9", "host").Args()
	assert.ErrorIs(t, err, ErrMalformed)

	args, err := NewMessage(OpKil).Args()
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = NewMessage(OpJob, "1", "2", "3").Args()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseOpcode(t *testing.T) {
	for op := OpIni; op <= OpFin; op++ {
		got, ok := ParseOpcode(op.String())
		require.True(t, ok, op.String())
		assert.Equal(t, op, got)
	}
	_, ok := ParseOpcode("ERR")
	assert.False(t, ok)
}

func TestMessage_ArgsInvalidOpcode(t *testing.T) {
	_, err := Message{Op: OpInvalid}.Args()
	assert.ErrorIs(t, err, ErrUnknownOpcode)
	_, err = Message{Op: OpFin + 1}.Args()
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestOpcode_ExpectsReply(t *testing.T) {
	var replied []Opcode
	for op := OpIni; op <= OpFin; op++ {
		assert.True(t, op.Valid(), op.String())
		if op.ExpectsReply() {
			replied = append(replied, op)
		}
	}
	assert.Equal(t, []Opcode{OpIni, OpRun}, replied)
	assert.False(t, OpInvalid.Valid())
}
