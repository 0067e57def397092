package global

import "github.com/KevinKickass/OpenControllerCore/internal/midi"

// Program tracks the running program number per channel and the offset
// added to indexed program changes.
type Program struct {
	programs [midi.MaxChannel]uint8
	offset   uint8
}

func NewProgram() *Program {
	return &Program{}
}

func channelSlot(channel uint8) (int, bool) {
	if channel < midi.MinChannel || channel > midi.MaxChannel {
		return 0, false
	}
	return int(channel - midi.MinChannel), true
}

// Program returns the current program of channel (1-based).
func (p *Program) Program(channel uint8) uint8 {
	slot, ok := channelSlot(channel)
	if !ok {
		return 0
	}
	return p.programs[slot]
}

// SetProgram stores program for channel and reports whether it changed.
func (p *Program) SetProgram(channel, program uint8) bool {
	slot, ok := channelSlot(channel)
	if !ok || program > midi.MaxValue7Bit {
		return false
	}
	if p.programs[slot] == program {
		return false
	}
	p.programs[slot] = program
	return true
}

// IncrementProgram steps the program of channel up, stopping at 127.
func (p *Program) IncrementProgram(channel, steps uint8) bool {
	return p.SetProgram(channel, Increment(p.Program(channel), steps, OverflowClamp))
}

// DecrementProgram steps the program of channel down, stopping at 0.
func (p *Program) DecrementProgram(channel, steps uint8) bool {
	return p.SetProgram(channel, Decrement(p.Program(channel), steps, OverflowClamp))
}

func (p *Program) Offset() uint8 {
	return p.offset
}

func (p *Program) SetOffset(offset uint8) bool {
	if offset > midi.MaxValue7Bit || offset == p.offset {
		return false
	}
	p.offset = offset
	return true
}

func (p *Program) IncrementOffset(steps uint8) bool {
	return p.SetOffset(Increment(p.offset, steps, OverflowClamp))
}

func (p *Program) DecrementOffset(steps uint8) bool {
	return p.SetOffset(Decrement(p.offset, steps, OverflowClamp))
}

// Reset clears programs and offset.
func (p *Program) Reset() {
	p.programs = [midi.MaxChannel]uint8{}
	p.offset = 0
}
