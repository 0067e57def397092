package messaging

import "github.com/KevinKickass/OpenControllerCore/internal/midi"

// EventType is the category an event is published under.
type EventType uint8

const (
	EventTypeAnalog EventType = iota
	EventTypeAnalogButton
	EventTypeButton
	EventTypeTouchscreenButton
	EventTypeProgram
	EventTypeMIDIIn
	EventTypeSystem

	eventTypeCount
)

func (t EventType) String() string {
	switch t {
	case EventTypeAnalog:
		return "ANALOG"
	case EventTypeAnalogButton:
		return "ANALOG_BUTTON"
	case EventTypeButton:
		return "BUTTON"
	case EventTypeTouchscreenButton:
		return "TOUCHSCREEN_BUTTON"
	case EventTypeProgram:
		return "PROGRAM"
	case EventTypeMIDIIn:
		return "MIDI_IN"
	case EventTypeSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// SystemMessage qualifies events published under EventTypeSystem.
type SystemMessage uint8

const (
	SystemMessageNone SystemMessage = iota
	SystemMessageForceIORefresh
	SystemMessageSysExResponse
	SystemMessagePresetChanged
	SystemMessagePresetChangeIncReq
	SystemMessagePresetChangeDecReq
	SystemMessagePresetChangeDirectReq
	SystemMessageBackup
	SystemMessageRestoreStart
	SystemMessageRestoreEnd
	SystemMessageFactoryResetStart
	SystemMessageFactoryResetEnd
	SystemMessagePitchBendCenterCaptureReq
	SystemMessageConfigurationChanged
)

func (m SystemMessage) String() string {
	switch m {
	case SystemMessageForceIORefresh:
		return "FORCE_IO_REFRESH"
	case SystemMessageSysExResponse:
		return "SYS_EX_RESPONSE"
	case SystemMessagePresetChanged:
		return "PRESET_CHANGED"
	case SystemMessagePresetChangeIncReq:
		return "PRESET_CHANGE_INC_REQ"
	case SystemMessagePresetChangeDecReq:
		return "PRESET_CHANGE_DEC_REQ"
	case SystemMessagePresetChangeDirectReq:
		return "PRESET_CHANGE_DIRECT_REQ"
	case SystemMessageBackup:
		return "BACKUP"
	case SystemMessageRestoreStart:
		return "RESTORE_START"
	case SystemMessageRestoreEnd:
		return "RESTORE_END"
	case SystemMessageFactoryResetStart:
		return "FACTORY_RESET_START"
	case SystemMessageFactoryResetEnd:
		return "FACTORY_RESET_END"
	case SystemMessagePitchBendCenterCaptureReq:
		return "PITCH_BEND_CENTER_CAPTURE_REQ"
	case SystemMessageConfigurationChanged:
		return "CONFIGURATION_CHANGED"
	default:
		return "NONE"
	}
}

// Event is a value record routed through the Dispatcher.
// SysEx is borrowed: it is only valid until Notify returns.
type Event struct {
	ComponentIndex uint16
	Channel        uint8
	Index          uint16
	Value          uint16
	Message        midi.MessageType
	SystemMessage  SystemMessage
	SysEx          []byte
	ForcedRefresh  bool
}
