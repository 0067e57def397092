package global

import "github.com/KevinKickass/OpenControllerCore/internal/midi"

// OverflowPolicy decides what happens when a step crosses the 7-bit range.
type OverflowPolicy int

const (
	// OverflowWrap restarts from zero when the maximum is crossed.
	OverflowWrap OverflowPolicy = iota
	// OverflowClamp stops at the range edges.
	OverflowClamp
)

// Increment advances value by step within [0, 127].
func Increment(value, step uint8, policy OverflowPolicy) uint8 {
	next := int(value) + int(step)
	if next > midi.MaxValue7Bit {
		if policy == OverflowWrap {
			return 0
		}
		return midi.MaxValue7Bit
	}
	return uint8(next)
}

// Decrement lowers value by step within [0, 127].
func Decrement(value, step uint8, policy OverflowPolicy) uint8 {
	next := int(value) - int(step)
	if next < 0 {
		if policy == OverflowWrap {
			return midi.MaxValue7Bit
		}
		return 0
	}
	return uint8(next)
}
