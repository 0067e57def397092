package midi

// MessageType is the outbound message kind carried by bus events.
// The protocol encoder turns it into wire bytes.
type MessageType uint8

const (
	MessageInvalid MessageType = iota
	MessageNoteOn
	MessageNoteOff
	MessageControlChange
	MessageProgramChange
	MessagePitchBend
	MessageControlChange14
	MessageNRPN7
	MessageNRPN14
	MessageSysEx
	MessageClock
	MessageStart
	MessageContinue
	MessageStop
	MessageActiveSensing
	MessageSystemReset
	MessageMMCPlay
	MessageMMCStop
	MessageMMCPause
	MessageMMCRecordStart
	MessageMMCRecordStop
)

func (m MessageType) String() string {
	switch m {
	case MessageNoteOn:
		return "NOTE_ON"
	case MessageNoteOff:
		return "NOTE_OFF"
	case MessageControlChange:
		return "CONTROL_CHANGE"
	case MessageProgramChange:
		return "PROGRAM_CHANGE"
	case MessagePitchBend:
		return "PITCH_BEND"
	case MessageControlChange14:
		return "CONTROL_CHANGE_14BIT"
	case MessageNRPN7:
		return "NRPN_7BIT"
	case MessageNRPN14:
		return "NRPN_14BIT"
	case MessageSysEx:
		return "SYS_EX"
	case MessageClock:
		return "CLOCK"
	case MessageStart:
		return "START"
	case MessageContinue:
		return "CONTINUE"
	case MessageStop:
		return "STOP"
	case MessageActiveSensing:
		return "ACTIVE_SENSING"
	case MessageSystemReset:
		return "SYSTEM_RESET"
	case MessageMMCPlay:
		return "MMC_PLAY"
	case MessageMMCStop:
		return "MMC_STOP"
	case MessageMMCPause:
		return "MMC_PAUSE"
	case MessageMMCRecordStart:
		return "MMC_RECORD_START"
	case MessageMMCRecordStop:
		return "MMC_RECORD_STOP"
	default:
		return "INVALID"
	}
}

// Is14Bit reports whether the message carries a 14-bit value.
func (m MessageType) Is14Bit() bool {
	switch m {
	case MessagePitchBend, MessageControlChange14, MessageNRPN14:
		return true
	default:
		return false
	}
}

const (
	MaxValue7Bit  = 127
	MaxValue14Bit = 16383

	// PitchBendCenter is the neutral 14-bit bend position.
	PitchBendCenter = 8192

	// Channels are 1-based on the bus.
	MinChannel = 1
	MaxChannel = 16
)

// Split14Bit splits a 14-bit value into its high and low 7-bit parts.
func Split14Bit(value uint16) (high, low uint8) {
	return uint8((value >> 7) & 0x7F), uint8(value & 0x7F)
}

// Merge14Bit joins two 7-bit parts into a 14-bit value.
func Merge14Bit(high, low uint8) uint16 {
	return uint16(high&0x7F)<<7 | uint16(low&0x7F)
}
