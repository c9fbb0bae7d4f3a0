package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferBuffer_SingleFinalChunk(t *testing.T) {
	buffer := NewTransferBuffer()

	frame, done := buffer.AppendChunk("session-1", []byte(`{"type":"x"}`), true)

	require.True(t, done)
	assert.Equal(t, []byte(`{"type":"x"}`), frame)
	assert.False(t, buffer.Pending("session-1"))
}

func TestTransferBuffer_Reassembly(t *testing.T) {
	buffer := NewTransferBuffer()

	frame, done := buffer.AppendChunk("session-1", []byte("hel"), false)
	assert.False(t, done)
	assert.Nil(t, frame)
	assert.True(t, buffer.Pending("session-1"))

	_, done = buffer.AppendChunk("session-1", []byte("lo "), false)
	assert.False(t, done)

	frame, done = buffer.AppendChunk("session-1", []byte("world"), true)
	require.True(t, done)
	assert.Equal(t, []byte("hello world"), frame)
	assert.False(t, buffer.Pending("session-1"))
}

func TestTransferBuffer_CallerMayReuseChunk(t *testing.T) {
	buffer := NewTransferBuffer()
	chunk := []byte("abc")

	buffer.AppendChunk("session-1", chunk, false)
	copy(chunk, "xyz") // transport read loops reuse their buffer

	frame, done := buffer.AppendChunk("session-1", []byte("def"), true)
	require.True(t, done)
	assert.Equal(t, []byte("abcdef"), frame)
}

func TestTransferBuffer_SessionsAreIndependent(t *testing.T) {
	buffer := NewTransferBuffer()

	buffer.AppendChunk("session-1", []byte("one"), false)
	frame, done := buffer.AppendChunk("session-2", []byte("two"), true)

	require.True(t, done)
	assert.Equal(t, []byte("two"), frame)
	assert.True(t, buffer.Pending("session-1"))
}

func TestTransferBuffer_Discard(t *testing.T) {
	buffer := NewTransferBuffer()

	buffer.AppendChunk("session-1", []byte("partial"), false)
	buffer.Discard("session-1")

	assert.False(t, buffer.Pending("session-1"))

	// The next chunk starts a fresh accumulation.
	frame, done := buffer.AppendChunk("session-1", []byte("fresh"), true)
	require.True(t, done)
	assert.Equal(t, []byte("fresh"), frame)
}

func TestTransferBuffer_EmptyFinalChunkCompletesFrame(t *testing.T) {
	buffer := NewTransferBuffer()

	buffer.AppendChunk("session-1", []byte("payload"), false)
	frame, done := buffer.AppendChunk("session-1", nil, true)

	require.True(t, done)
	assert.Equal(t, []byte("payload"), frame)
}
