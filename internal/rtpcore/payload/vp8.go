package payload

import "sfuworker/internal/rtpcore/seq"

// VP8Descriptor is the parsed 1-6 byte VP8 payload descriptor (RFC 7741),
// ground truth taken from original_source's RTC::Codecs::VP8::Parse.
type VP8Descriptor struct {
	Extended       bool
	NonReference   bool
	Start          bool
	PartitionIndex uint8

	I, L, T, K bool // extended-field presence bits

	HasPictureId         bool
	HasOneBytePictureId  bool
	HasTwoBytesPictureId bool
	PictureId            uint16

	HasTl0PictureIndex bool
	Tl0PictureIndex    uint8

	HasTlIndex bool
	TlIndex    uint8
	Y          bool
	KeyIndex   uint8

	isKeyFrame bool
}

// IsKeyFrame implements Descriptor.
func (d *VP8Descriptor) IsKeyFrame() bool { return d.isKeyFrame }

// ParseVP8 parses the VP8 payload descriptor out of data, mirroring
// original_source/worker/src/RTC/Codecs/VP8.cpp's VP8::Parse byte for byte.
func ParseVP8(data []byte) (*VP8Descriptor, bool) {
	if len(data) < 1 {
		return nil, false
	}

	d := &VP8Descriptor{}
	offset := 0
	b := data[offset]

	d.Extended = (b>>7)&0x01 != 0
	d.NonReference = (b>>5)&0x01 != 0
	d.Start = (b>>4)&0x01 != 0
	d.PartitionIndex = b & 0x07

	if !d.Extended {
		return nil, false
	}

	offset++
	if len(data) < offset+1 {
		return nil, false
	}
	b = data[offset]
	d.I = (b>>7)&0x01 != 0
	d.L = (b>>6)&0x01 != 0
	d.T = (b>>5)&0x01 != 0
	d.K = (b>>4)&0x01 != 0

	if d.I {
		offset++
		if len(data) < offset+1 {
			return nil, false
		}
		b = data[offset]
		if (b>>7)&0x01 != 0 {
			offset++
			if len(data) < offset+1 {
				return nil, false
			}
			d.HasTwoBytesPictureId = true
			d.PictureId = uint16(b&0x7F) << 8
			d.PictureId += uint16(data[offset])
		} else {
			d.HasOneBytePictureId = true
			d.PictureId = uint16(b & 0x7F)
		}
		d.HasPictureId = true
	}

	if d.L {
		offset++
		if len(data) < offset+1 {
			return nil, false
		}
		d.HasTl0PictureIndex = true
		d.Tl0PictureIndex = data[offset]
	}

	if d.T || d.K {
		offset++
		if len(data) < offset+1 {
			return nil, false
		}
		b = data[offset]
		d.HasTlIndex = true
		d.TlIndex = (b >> 6) & 0x03
		d.Y = (b>>5)&0x01 != 0
		d.KeyIndex = b & 0x1F
	}

	offset++
	if len(data) >= offset+1 && d.Start && d.PartitionIndex == 0 && (data[offset]&0x01) == 0 {
		d.isKeyFrame = true
	}

	return d, true
}

// Encode writes pictureId/tl0PictureIndex back into data at the extended
// descriptor's field offsets, mirroring VP8::PayloadDescriptor::Encode.
func (d *VP8Descriptor) Encode(data []byte, pictureId uint16, tl0PictureIndex uint8) {
	if !d.Extended {
		return
	}
	offset := 2
	if d.I {
		if d.HasTwoBytesPictureId {
			if offset+1 >= len(data) {
				return
			}
			data[offset] = byte(pictureId>>8) | 0x80
			data[offset+1] = byte(pictureId)
			offset += 2
		} else if d.HasOneBytePictureId {
			if offset >= len(data) {
				return
			}
			data[offset] = byte(pictureId)
			offset++
		}
	}
	if d.L {
		if offset < len(data) {
			data[offset] = tl0PictureIndex
		}
	}
}

// Restore re-encodes the original (unmapped) pictureId/tl0PictureIndex.
func (d *VP8Descriptor) Restore(data []byte) {
	d.Encode(data, d.PictureId, d.Tl0PictureIndex)
}

// VP8EncodingContext is the per-consumer temporal-layer targeting state
// for a VP8 producer->consumer forwarding path.
type VP8EncodingContext struct {
	syncRequired         bool
	targetTemporalLayer  int
	currentTemporalLayer int

	PictureIdManager      *seq.Manager
	Tl0PictureIndexManager *seq.Manager
}

// NewVP8EncodingContext creates a context with fresh remapping managers.
func NewVP8EncodingContext(targetTemporalLayer int) *VP8EncodingContext {
	return &VP8EncodingContext{
		targetTemporalLayer:    targetTemporalLayer,
		PictureIdManager:       seq.New(16),
		Tl0PictureIndexManager: seq.New(8),
	}
}

func (c *VP8EncodingContext) SyncRequired() bool          { return c.syncRequired }
func (c *VP8EncodingContext) ClearSyncRequired()          { c.syncRequired = false }
func (c *VP8EncodingContext) RequestSync()                { c.syncRequired = true }
func (c *VP8EncodingContext) TargetTemporalLayer() int    { return c.targetTemporalLayer }
func (c *VP8EncodingContext) CurrentTemporalLayer() int   { return c.currentTemporalLayer }
func (c *VP8EncodingContext) SetCurrentTemporalLayer(v int) {
	c.currentTemporalLayer = v
}
func (c *VP8EncodingContext) SetTargetTemporalLayer(v int) {
	c.targetTemporalLayer = v
}

// VP8Handler implements Handler for one packet's VP8Descriptor.
type VP8Handler struct {
	Descriptor *VP8Descriptor
}

// NewVP8Handler expands a one-byte pictureId in place to the two-byte
// form (so downstream rewrite always has room), per original_source's
// VP8::ProcessRtpPacket, and returns the handler plus the (possibly
// grown) payload.
func NewVP8Handler(d *VP8Descriptor, data []byte) (*VP8Handler, []byte) {
	if d.HasOneBytePictureId {
		data = shiftPayload(data, 2, 1)
		if len(data) > 2 {
			data[2] = 0x80
		}
		d.HasOneBytePictureId = false
		d.HasTwoBytesPictureId = true
	}
	return &VP8Handler{Descriptor: d}, data
}

// shiftPayload inserts n zero bytes at offset, growing data by n bytes.
func shiftPayload(data []byte, offset, n int) []byte {
	if offset > len(data) {
		offset = len(data)
	}
	grown := make([]byte, len(data)+n)
	copy(grown, data[:offset])
	copy(grown[offset+n:], data[offset:])
	return grown
}

// Process implements Handler, mirroring original_source's
// VP8::PayloadDescriptorHandler::Process.
func (h *VP8Handler) Process(ctx EncodingContext, data []byte) bool {
	c, ok := ctx.(*VP8EncodingContext)
	if !ok {
		return false
	}
	d := h.Descriptor

	if c.SyncRequired() && d.HasPictureId && d.HasTl0PictureIndex {
		c.PictureIdManager.Sync(uint32(d.PictureId) - 1)
		c.Tl0PictureIndexManager.Sync(uint32(d.Tl0PictureIndex) - 1)
		c.ClearSyncRequired()
	}

	if d.IsKeyFrame() {
		c.SetCurrentTemporalLayer(c.TargetTemporalLayer())
	}

	if d.HasPictureId && d.HasTlIndex && d.HasTl0PictureIndex &&
		seq.IsHigher(uint32(d.PictureId), c.PictureIdManager.GetMaxInput(), 16) {

		if int(d.TlIndex) > c.TargetTemporalLayer() {
			c.PictureIdManager.Drop(uint32(d.PictureId))
			c.Tl0PictureIndexManager.Drop(uint32(d.Tl0PictureIndex))
			return false
		}
		if int(d.TlIndex) > c.CurrentTemporalLayer() && !d.Y {
			c.PictureIdManager.Drop(uint32(d.PictureId))
			c.Tl0PictureIndexManager.Drop(uint32(d.Tl0PictureIndex))
			return false
		}
	}

	var newPictureId uint16
	var newTl0 uint8

	if d.HasPictureId {
		out, ok := c.PictureIdManager.Input(uint32(d.PictureId))
		if !ok {
			return false
		}
		newPictureId = uint16(out)
	}
	if d.HasTl0PictureIndex {
		out, ok := c.Tl0PictureIndexManager.Input(uint32(d.Tl0PictureIndex))
		if !ok {
			return false
		}
		newTl0 = uint8(out)
	}

	if int(d.TlIndex) > c.CurrentTemporalLayer() {
		c.SetCurrentTemporalLayer(int(d.TlIndex))
	}
	if c.CurrentTemporalLayer() > c.TargetTemporalLayer() {
		c.SetCurrentTemporalLayer(c.TargetTemporalLayer())
	}

	if d.HasPictureId && d.HasTl0PictureIndex {
		d.Encode(data, newPictureId, newTl0)
	}

	return true
}

// Restore implements Handler.
func (h *VP8Handler) Restore(data []byte) {
	d := h.Descriptor
	if d.HasPictureId && d.HasTl0PictureIndex {
		d.Restore(data)
	}
}
