package analog

import "github.com/KevinKickass/OpenControllerCore/internal/midi"

// Type selects how an analog channel is interpreted. The numbering is
// persisted and must stay stable.
type Type uint8

const (
	TypePotentiometerCC Type = iota
	TypePotentiometerNote
	TypeFSR
	TypeButton
	TypeNRPN7
	TypeNRPN14
	TypePitchBend
	TypeControlChange14
	TypeReserved

	typeCount
)

func (t Type) String() string {
	switch t {
	case TypePotentiometerCC:
		return "POTENTIOMETER_CONTROL_CHANGE"
	case TypePotentiometerNote:
		return "POTENTIOMETER_NOTE"
	case TypeFSR:
		return "FSR"
	case TypeButton:
		return "BUTTON"
	case TypeNRPN7:
		return "NRPN_7BIT"
	case TypeNRPN14:
		return "NRPN_14BIT"
	case TypePitchBend:
		return "PITCH_BEND"
	case TypeControlChange14:
		return "CONTROL_CHANGE_14BIT"
	case TypeReserved:
		return "RESERVED"
	default:
		return "UNKNOWN"
	}
}

// Message returns the outbound message kind of the type.
func (t Type) Message() midi.MessageType {
	switch t {
	case TypePotentiometerCC:
		return midi.MessageControlChange
	case TypePotentiometerNote, TypeFSR:
		return midi.MessageNoteOn
	case TypeNRPN7:
		return midi.MessageNRPN7
	case TypeNRPN14:
		return midi.MessageNRPN14
	case TypePitchBend:
		return midi.MessagePitchBend
	case TypeControlChange14:
		return midi.MessageControlChange14
	default:
		return midi.MessageInvalid
	}
}

// MaxValue returns the upper bound of the type's output domain.
func (t Type) MaxValue() uint16 {
	switch t {
	case TypeNRPN14, TypePitchBend, TypeControlChange14:
		return midi.MaxValue14Bit
	default:
		return midi.MaxValue7Bit
	}
}

// is14Bit reports whether MIDI ID and limits use all 14 bits.
func (t Type) is14Bit() bool {
	return t.MaxValue() == midi.MaxValue14Bit
}
