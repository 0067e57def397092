package buttons

import "github.com/KevinKickass/OpenControllerCore/internal/midi"

// Type selects when a button reports.
type Type uint8

const (
	// TypeMomentary reports on press and release.
	TypeMomentary Type = iota
	// TypeLatching reports on presses only, alternating on and off.
	TypeLatching

	typeCount
)

func (t Type) String() string {
	switch t {
	case TypeMomentary:
		return "momentary"
	case TypeLatching:
		return "latching"
	default:
		return "unknown"
	}
}

// MessageType is the configured action of a button. The numbering is part
// of the persisted configuration.
type MessageType uint8

const (
	MessageNote MessageType = iota
	MessageProgramChange
	MessageControlChange
	MessageControlChangeReset
	MessageMMCStop
	MessageMMCPlay
	MessageMMCRecord
	MessageMMCPause
	MessageRealTimeClock
	MessageRealTimeStart
	MessageRealTimeContinue
	MessageRealTimeStop
	MessageRealTimeActiveSensing
	MessageRealTimeSystemReset
	MessageProgramChangeInc
	MessageProgramChangeDec
	MessageNone
	MessagePresetChange
	MessageMultiValIncResetNote
	MessageMultiValIncDecNote
	MessageMultiValIncResetCC
	MessageMultiValIncDecCC
	MessageNoteOffOnly
	MessageControlChange0Only
	MessageReserved
	MessageProgramChangeOffsetInc
	MessageProgramChangeOffsetDec
	MessageBPMInc
	MessageBPMDec
	MessageMMCPlayStop
	MessageSysExMacro
	MessagePitchBendCenterCapture

	messageTypeCount
)

var messageTypeNames = [messageTypeCount]string{
	"note",
	"program_change",
	"control_change",
	"control_change_reset",
	"mmc_stop",
	"mmc_play",
	"mmc_record",
	"mmc_pause",
	"real_time_clock",
	"real_time_start",
	"real_time_continue",
	"real_time_stop",
	"real_time_active_sensing",
	"real_time_system_reset",
	"program_change_inc",
	"program_change_dec",
	"none",
	"preset_change",
	"multi_val_inc_reset_note",
	"multi_val_inc_dec_note",
	"multi_val_inc_reset_cc",
	"multi_val_inc_dec_cc",
	"note_off_only",
	"control_change0_only",
	"reserved",
	"program_change_offset_inc",
	"program_change_offset_dec",
	"bpm_inc",
	"bpm_dec",
	"mmc_play_stop",
	"sysex_macro",
	"pitch_bend_center_capture",
}

func (m MessageType) String() string {
	if m >= messageTypeCount {
		return "unknown"
	}
	return messageTypeNames[m]
}

// action describes how a MessageType maps onto the bus.
type action struct {
	message midi.MessageType
	// forced overrides the configured Type when set.
	forced *Type
}

var (
	momentary = TypeMomentary
	latching  = TypeLatching
)

var actions = [messageTypeCount]action{
	MessageNote:                   {message: midi.MessageNoteOn},
	MessageProgramChange:          {message: midi.MessageProgramChange, forced: &momentary},
	MessageControlChange:          {message: midi.MessageControlChange, forced: &momentary},
	MessageControlChangeReset:     {message: midi.MessageControlChange},
	MessageMMCStop:                {message: midi.MessageMMCStop, forced: &momentary},
	MessageMMCPlay:                {message: midi.MessageMMCPlay, forced: &momentary},
	MessageMMCRecord:              {message: midi.MessageMMCRecordStart, forced: &latching},
	MessageMMCPause:               {message: midi.MessageMMCPause, forced: &momentary},
	MessageRealTimeClock:          {message: midi.MessageClock, forced: &momentary},
	MessageRealTimeStart:          {message: midi.MessageStart, forced: &momentary},
	MessageRealTimeContinue:       {message: midi.MessageContinue, forced: &momentary},
	MessageRealTimeStop:           {message: midi.MessageStop, forced: &momentary},
	MessageRealTimeActiveSensing:  {message: midi.MessageActiveSensing, forced: &momentary},
	MessageRealTimeSystemReset:    {message: midi.MessageSystemReset, forced: &momentary},
	MessageProgramChangeInc:       {message: midi.MessageProgramChange, forced: &momentary},
	MessageProgramChangeDec:       {message: midi.MessageProgramChange, forced: &momentary},
	MessageNone:                   {message: midi.MessageInvalid},
	MessagePresetChange:           {message: midi.MessageInvalid, forced: &momentary},
	MessageMultiValIncResetNote:   {message: midi.MessageNoteOn, forced: &momentary},
	MessageMultiValIncDecNote:     {message: midi.MessageNoteOn, forced: &momentary},
	MessageMultiValIncResetCC:     {message: midi.MessageControlChange, forced: &momentary},
	MessageMultiValIncDecCC:       {message: midi.MessageControlChange, forced: &momentary},
	MessageNoteOffOnly:            {message: midi.MessageNoteOn, forced: &momentary},
	MessageControlChange0Only:     {message: midi.MessageControlChange, forced: &momentary},
	MessageReserved:               {message: midi.MessageInvalid},
	MessageProgramChangeOffsetInc: {message: midi.MessageInvalid, forced: &momentary},
	MessageProgramChangeOffsetDec: {message: midi.MessageInvalid, forced: &momentary},
	MessageBPMInc:                 {message: midi.MessageInvalid, forced: &momentary},
	MessageBPMDec:                 {message: midi.MessageInvalid, forced: &momentary},
	MessageMMCPlayStop:            {message: midi.MessageMMCPlay, forced: &latching},
	MessageSysExMacro:             {message: midi.MessageSysEx, forced: &momentary},
	MessagePitchBendCenterCapture: {message: midi.MessageInvalid, forced: &momentary},
}
