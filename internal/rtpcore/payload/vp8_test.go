package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildVP8 constructs a minimal extended VP8 descriptor + header byte
// for test purposes: extended, picture-id present (one byte), tl0 index
// present, TID/Y/KEYIDX present.
func buildVP8(start bool, partitionIndex uint8, pictureID uint8, tl0 uint8, tlIndex uint8, y bool, keyFrameBit bool) []byte {
	b0 := byte(0x80) // extended=1
	if start {
		b0 |= 0x10
	}
	b0 |= partitionIndex & 0x07

	b1 := byte(0x80 | 0x40 | 0x20) // I=1, L=1, T=1

	b2 := pictureID & 0x7F // one-byte picture id (high bit 0)

	b3 := tl0

	b4 := (tlIndex&0x03)<<6 | boolBit(y, 5) | 0x01 // keyIndex arbitrary low bits

	// The low bit of the VP8 payload header must be CLEAR for a key frame.
	var payloadHeader byte
	if keyFrameBit {
		payloadHeader = 0x00
	} else {
		payloadHeader = 0x01
	}

	return []byte{b0, b1, b2, b3, b4, payloadHeader, 0xAA, 0xBB}
}

func boolBit(v bool, shift uint) byte {
	if v {
		return 1 << shift
	}
	return 0
}

func TestParseVP8KeyFrame(t *testing.T) {
	data := buildVP8(true, 0, 5, 1, 0, true, true)
	d, ok := ParseVP8(data)
	require.True(t, ok)
	assert.True(t, d.IsKeyFrame())
	assert.True(t, d.HasOneBytePictureId)
	assert.EqualValues(t, 5, d.PictureId)
}

func TestParseVP8NotExtendedReturnsNone(t *testing.T) {
	_, ok := ParseVP8([]byte{0x00})
	assert.False(t, ok)
}

func TestVP8OneByteExpandsToTwoByte(t *testing.T) {
	data := buildVP8(true, 0, 5, 1, 0, true, false)
	d, ok := ParseVP8(data)
	require.True(t, ok)

	_, grown := NewVP8Handler(d, data)
	assert.True(t, d.HasTwoBytesPictureId)
	assert.False(t, d.HasOneBytePictureId)
	assert.Equal(t, len(data)+1, len(grown))
	assert.EqualValues(t, 0x80, grown[2])
}

func TestVP8ProcessDropsAboveTargetLayer(t *testing.T) {
	// Frame 1: key frame, base layer (tl0=1). Frame 2: enhancement layer
	// sharing the same tl0 index, exceeds target, dropped. Frame 3: next
	// base-layer frame (tl0=2), kept and contiguous.
	data := buildVP8(true, 0, 1, 1, 0, true, true)
	d, _ := ParseVP8(data)
	h, grown := NewVP8Handler(d, data)

	ctx := NewVP8EncodingContext(0)
	keep := h.Process(ctx, grown)
	require.True(t, keep) // key frame at tlIndex 0, target 0: forwarded

	data2 := buildVP8(false, 0, 2, 1, 1, false, false)
	d2, _ := ParseVP8(data2)
	h2, grown2 := NewVP8Handler(d2, data2)
	keep2 := h2.Process(ctx, grown2)
	assert.False(t, keep2) // tlIndex 1 > target 0

	data3 := buildVP8(false, 0, 3, 2, 0, true, false)
	d3, _ := ParseVP8(data3)
	h3, grown3 := NewVP8Handler(d3, data3)
	keep3 := h3.Process(ctx, grown3)
	assert.True(t, keep3)
}

func TestVP8RoundTripEncodeRestore(t *testing.T) {
	data := buildVP8(true, 0, 5, 1, 0, true, false)
	d, _ := ParseVP8(data)
	_, grown := NewVP8Handler(d, data)

	originalPid := d.PictureId
	originalTl0 := d.Tl0PictureIndex

	d.Encode(grown, 999, 42)
	d.Restore(grown)

	roundTrip, ok := ParseVP8(grown)
	require.True(t, ok)
	assert.Equal(t, originalPid, roundTrip.PictureId)
	assert.Equal(t, originalTl0, roundTrip.Tl0PictureIndex)
}
