// Package payload implements codec-specific per-packet payload descriptor
// parsing and temporal/spatial layer selection (spec §4.4).
package payload

// Descriptor is a parsed codec-specific payload descriptor.
type Descriptor interface {
	// IsKeyFrame reports whether the packet carrying this descriptor
	// starts a key frame.
	IsKeyFrame() bool
}

// EncodingContext carries per-consumer temporal-layer targeting state and
// the remapping managers that keep the output picture-id/tl0-index space
// contiguous despite dropped layers.
type EncodingContext interface {
	SyncRequired() bool
	ClearSyncRequired()
	TargetTemporalLayer() int
	CurrentTemporalLayer() int
	SetCurrentTemporalLayer(int)
}

// Handler processes one packet's descriptor against an EncodingContext,
// mutating the packet's payload bytes in place, and can restore the
// original values when the same borrowed packet is routed to another
// consumer afterward (spec's mutate-then-restore design note, §9).
type Handler interface {
	// Process decides whether the packet should be forwarded to the
	// consumer owning ctx, rewriting picture-id/tl0-index fields in data
	// as a side effect when it returns true.
	Process(ctx EncodingContext, data []byte) (keep bool)
	// Restore writes the original (un-remapped) values back into data.
	Restore(data []byte)
}

// Parser parses a codec's payload descriptor out of a packet's payload.
type Parser interface {
	Parse(data []byte) (Descriptor, bool)
}
