// Package seq implements RFC 1982 serial-number-aware sequence remapping.
package seq

// Manager maintains a monotonic mapping from an input sequence space onto an
// output sequence space of the same width, with explicit drops. Width is
// expressed as the number of value bits (8 or 16); wider or narrower spaces
// are not needed by this core and are rejected by New.
type Manager struct {
	width uint

	started    bool
	justSynced bool   // true after Sync until the next accepted Input or Drop
	base       uint32 // output base: next accepted input maps to base+1 on first use after Sync
	maxInput   uint32 // highest input accepted or dropped so far (not wrap-adjusted)
	maxOutput  uint32
	dropped    map[uint32]struct{}
}

// New creates a Manager over a W-bit sequence space. W must be 8 or 16.
func New(width uint) *Manager {
	if width != 8 && width != 16 {
		panic("seq: unsupported width")
	}
	return &Manager{
		width:   width,
		dropped: make(map[uint32]struct{}),
	}
}

func (m *Manager) mask() uint32 {
	return (uint32(1) << m.width) - 1
}

// IsHigher reports whether a is "newer" than b under RFC 1982 serial number
// arithmetic for the given bit width: ((a - b) mod 2^width) lies strictly in
// the lower half of the space.
func IsHigher(a, b uint32, width uint) bool {
	mod := uint32(1) << width
	half := mod / 2
	diff := (a - b) & (mod - 1)
	return diff != 0 && diff < half
}

func (m *Manager) isHigher(a, b uint32) bool {
	return IsHigher(a, b, m.width)
}

// Sync re-anchors the mapping: the next accepted Input produces base+1 (mod
// 2^width) regardless of any prior state, and re-anchors maxInput to that
// input's own value so subsequent inputs continue from there rather than
// from base.
func (m *Manager) Sync(base uint32) {
	m.started = true
	m.justSynced = true
	m.base = base & m.mask()
	m.maxOutput = m.base
	m.dropped = make(map[uint32]struct{})
}

// Drop marks input as dropped: the output sequence continues without
// allocating a slot for it. A later Input for a sequence at or above a
// dropped one is shifted down by the number of dropped slots preceding it.
func (m *Manager) Drop(input uint32) {
	input &= m.mask()
	m.dropped[input] = struct{}{}
	if m.justSynced {
		m.maxInput = input
		m.started = true
		m.justSynced = false
		return
	}
	if !m.started || m.isHigher(input, m.maxInput) {
		m.maxInput = input
		m.started = true
	}
}

// Input maps an input sequence number to an output one. accepted is false
// when the input is stale (older than, or equal to, the most recently
// accepted input) or was previously dropped, in which case output is
// meaningless.
func (m *Manager) Input(input uint32) (output uint32, accepted bool) {
	input &= m.mask()

	if !m.started {
		m.started = true
		m.maxInput = input
		m.maxOutput = input
		m.base = input
		return input, true
	}

	if _, wasDropped := m.dropped[input]; wasDropped {
		return 0, false
	}

	if m.justSynced {
		output = (m.base + 1) & m.mask()
		m.maxInput = input
		m.maxOutput = output
		m.justSynced = false
		return output, true
	}

	if !m.isHigher(input, m.maxInput) {
		return 0, false
	}

	gap := (input - m.maxInput) & m.mask()
	// Each dropped slot strictly between maxInput (exclusive) and input
	// (inclusive) shrinks the output gap by one.
	skipped := uint32(0)
	for i := uint32(1); i <= gap; i++ {
		candidate := (m.maxInput + i) & m.mask()
		if _, ok := m.dropped[candidate]; ok {
			skipped++
		}
	}

	output = (m.maxOutput + gap - skipped) & m.mask()

	m.maxInput = input
	m.maxOutput = output

	return output, true
}

// GetMaxInput returns the highest input value accepted or dropped so far.
func (m *Manager) GetMaxInput() uint32 {
	return m.maxInput
}

// GetMaxOutput returns the most recently produced output value.
func (m *Manager) GetMaxOutput() uint32 {
	return m.maxOutput
}
