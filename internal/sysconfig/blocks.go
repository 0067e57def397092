package sysconfig

// Block identifiers. The numbering is part of the persisted backup format
// and must never be reordered.
type Block uint8

const (
	BlockGlobal Block = iota
	BlockButtons
	BlockEncoders
	BlockAnalog
	BlockLEDs
	BlockI2C
	BlockTouchscreen

	BlockCount
)

func (b Block) String() string {
	switch b {
	case BlockGlobal:
		return "global"
	case BlockButtons:
		return "buttons"
	case BlockEncoders:
		return "encoders"
	case BlockAnalog:
		return "analog"
	case BlockLEDs:
		return "leds"
	case BlockI2C:
		return "i2c"
	case BlockTouchscreen:
		return "touchscreen"
	default:
		return "unknown"
	}
}

// ParseBlock maps a block name back to its identifier.
func ParseBlock(name string) (Block, bool) {
	for b := BlockGlobal; b < BlockCount; b++ {
		if b.String() == name {
			return b, true
		}
	}
	return BlockCount, false
}

// Global block sections.
const (
	GlobalSystemSettings uint8 = iota
	GlobalMIDISettings
	GlobalCalibration
)

// Indices within GlobalSystemSettings.
const (
	SystemSettingActivePreset = iota
	SystemSettingPresetPreserve
	SystemSettingDisableForcedRefresh
	SystemSettingPresetChangeWithProgramChange
	SystemSettingPitchBendDeadzone
	SystemSettingPitchBendCenter

	SystemSettingCount
)

// Indices within GlobalMIDISettings.
const (
	MIDISettingUseGlobalChannel = iota
	MIDISettingGlobalChannel
	MIDISettingStandardNoteOff

	MIDISettingCount
)

// Indices within GlobalCalibration. Writes are one-shot triggers.
const (
	CalibrationPitchBendCenterCapture = iota

	CalibrationCount
)

// Buttons block sections.
const (
	ButtonType uint8 = iota
	ButtonMessageType
	ButtonMIDIID
	ButtonValue
	ButtonChannel
	ButtonReserved
	ButtonSysExMacroLength
	ButtonSysExMacroData
)

// Analog block sections.
const (
	AnalogEnable uint8 = iota
	AnalogInvert
	AnalogType
	AnalogMIDIID
	AnalogLowerLimit
	AnalogUpperLimit
	AnalogChannel
	AnalogReserved1
	AnalogLowerOffset
	AnalogUpperOffset
	AnalogReserved2
)

const (
	// SysExMacroMaxLength is the payload capacity of one macro slot.
	SysExMacroMaxLength = 32

	// SysExMacroMaxCount bounds the number of macro slots.
	SysExMacroMaxCount = 128
)
