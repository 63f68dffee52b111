package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHigher(t *testing.T) {
	assert.True(t, IsHigher(101, 100, 16))
	assert.False(t, IsHigher(100, 101, 16))
	assert.False(t, IsHigher(100, 100, 16))
	// wrap around 16-bit space
	assert.True(t, IsHigher(0, 65535, 16))
	assert.False(t, IsHigher(65535, 0, 16))
}

func TestInputContiguous(t *testing.T) {
	m := New(16)
	out, ok := m.Input(100)
	require.True(t, ok)
	assert.EqualValues(t, 100, out)

	out, ok = m.Input(101)
	require.True(t, ok)
	assert.EqualValues(t, 101, out)

	out, ok = m.Input(102)
	require.True(t, ok)
	assert.EqualValues(t, 102, out)
}

func TestInputRejectsStaleAndDuplicate(t *testing.T) {
	m := New(16)
	_, _ = m.Input(100)
	_, _ = m.Input(101)

	_, ok := m.Input(101)
	assert.False(t, ok)

	_, ok = m.Input(50)
	assert.False(t, ok)
}

func TestDropShiftsSubsequentOutputs(t *testing.T) {
	m := New(16)
	out, _ := m.Input(100)
	assert.EqualValues(t, 100, out)

	m.Drop(101)

	out, ok := m.Input(102)
	require.True(t, ok)
	// 101 consumed no output slot, so 102 lands at 101.
	assert.EqualValues(t, 101, out)
}

func TestDropThenInputOfDroppedSeqRejected(t *testing.T) {
	m := New(16)
	_, _ = m.Input(100)
	m.Drop(101)

	_, ok := m.Input(101)
	assert.False(t, ok)
}

func TestSyncReanchorsBase(t *testing.T) {
	m := New(16)
	_, _ = m.Input(100)
	_, _ = m.Input(101)

	m.Sync(4999)

	out, ok := m.Input(200)
	require.True(t, ok)
	assert.EqualValues(t, 5000, out)
}

func TestSyncThenSubsequentInputsContinueFromReanchoredInput(t *testing.T) {
	m := New(16)
	_, _ = m.Input(100)
	_, _ = m.Input(101)

	m.Sync(4999)

	out, ok := m.Input(200)
	require.True(t, ok)
	assert.EqualValues(t, 5000, out)

	// the next raw input continues from 200, not from 4999/5000, even
	// though 201 is serially "behind" the old anchor.
	out, ok = m.Input(201)
	require.True(t, ok)
	assert.EqualValues(t, 5001, out)
}

func TestOutputGapFreeAcrossDrops(t *testing.T) {
	m := New(16)
	var outs []uint32
	for in := uint32(0); in < 10; in++ {
		if in == 3 || in == 7 {
			m.Drop(in)
			continue
		}
		out, ok := m.Input(in)
		require.True(t, ok)
		outs = append(outs, out)
	}
	for i := 1; i < len(outs); i++ {
		assert.EqualValues(t, 1, (outs[i]-outs[i-1])&0xFFFF)
	}
}

func TestWrapAroundOutput(t *testing.T) {
	m := New(16)
	_, _ = m.Input(65534)
	out, ok := m.Input(65535)
	require.True(t, ok)
	assert.EqualValues(t, 65535, out)

	out, ok = m.Input(0)
	require.True(t, ok)
	assert.EqualValues(t, 0, out)
}

func TestWidth8(t *testing.T) {
	m := New(8)
	out, ok := m.Input(250)
	require.True(t, ok)
	assert.EqualValues(t, 250, out)

	out, ok = m.Input(254)
	require.True(t, ok)
	assert.EqualValues(t, 254, out)
}
