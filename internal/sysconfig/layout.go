package sysconfig

import (
	"strconv"

	"github.com/KevinKickass/OpenControllerCore/internal/midi"
)

// Section describes one addressable section of a block.
type Section struct {
	Name     string
	Count    int
	MaxValue uint16

	// Reserved sections are addressable but every access fails with ErrNotSupported.
	Reserved bool

	// Transient sections hold no persisted state and are skipped during backup.
	Transient bool

	// PresetIndependent sections share one value set across all presets.
	PresetIndependent bool
}

// Sizes holds the component counts of a hardware target.
type Sizes struct {
	DigitalInputs int
	AnalogInputs  int
	Touchscreen   int
	SysExMacros   int
}

// Buttons returns the number of logical button indices. Indices past the
// digital inputs alias analog inputs, then touchscreen components.
func (s Sizes) Buttons() int {
	return s.DigitalInputs + s.AnalogInputs + s.Touchscreen
}

// Macros returns the clamped macro slot count.
func (s Sizes) Macros() int {
	if s.SysExMacros < 0 {
		return 0
	}
	if s.SysExMacros > SysExMacroMaxCount {
		return SysExMacroMaxCount
	}
	return s.SysExMacros
}

// Layout is the ordered section table of every block. Reordering entries
// breaks backups captured by external tooling.
type Layout [BlockCount][]Section

// ButtonMessageTypeMax is the highest message action value a button accepts.
const ButtonMessageTypeMax = 31

// AnalogTypeMax is the highest analog type value.
const AnalogTypeMax = 8

func NewLayout(sizes Sizes) Layout {
	var layout Layout

	layout[BlockGlobal] = []Section{
		GlobalSystemSettings: {Name: "system_settings", Count: SystemSettingCount, MaxValue: midi.MaxValue14Bit, PresetIndependent: true},
		GlobalMIDISettings:   {Name: "midi_settings", Count: MIDISettingCount, MaxValue: midi.MaxChannel, PresetIndependent: true},
		GlobalCalibration:    {Name: "calibration", Count: CalibrationCount, MaxValue: 1, Transient: true},
	}

	buttons := sizes.Buttons()
	macros := sizes.Macros()
	layout[BlockButtons] = []Section{
		ButtonType:             {Name: "type", Count: buttons, MaxValue: 1},
		ButtonMessageType:      {Name: "message_type", Count: buttons, MaxValue: ButtonMessageTypeMax},
		ButtonMIDIID:           {Name: "midi_id", Count: buttons, MaxValue: midi.MaxValue7Bit},
		ButtonValue:            {Name: "value", Count: buttons, MaxValue: midi.MaxValue7Bit},
		ButtonChannel:          {Name: "channel", Count: buttons, MaxValue: midi.MaxChannel},
		ButtonReserved:         {Name: "reserved", Count: buttons, Reserved: true},
		ButtonSysExMacroLength: {Name: "sysex_macro_length", Count: macros, MaxValue: SysExMacroMaxLength},
		ButtonSysExMacroData:   {Name: "sysex_macro_data", Count: macros * SysExMacroMaxLength, MaxValue: midi.MaxValue7Bit},
	}

	analog := sizes.AnalogInputs
	layout[BlockAnalog] = []Section{
		AnalogEnable:      {Name: "enable", Count: analog, MaxValue: 1},
		AnalogInvert:      {Name: "invert", Count: analog, MaxValue: 1},
		AnalogType:        {Name: "type", Count: analog, MaxValue: AnalogTypeMax},
		AnalogMIDIID:      {Name: "midi_id", Count: analog, MaxValue: midi.MaxValue14Bit},
		AnalogLowerLimit:  {Name: "lower_limit", Count: analog, MaxValue: midi.MaxValue14Bit},
		AnalogUpperLimit:  {Name: "upper_limit", Count: analog, MaxValue: midi.MaxValue14Bit},
		AnalogChannel:     {Name: "channel", Count: analog, MaxValue: midi.MaxChannel},
		AnalogReserved1:   {Name: "reserved_1", Count: analog, Reserved: true},
		AnalogLowerOffset: {Name: "lower_offset", Count: analog, MaxValue: 100},
		AnalogUpperOffset: {Name: "upper_offset", Count: analog, MaxValue: 100},
		AnalogReserved2:   {Name: "reserved_2", Count: analog, Reserved: true},
	}

	// Encoders, LEDs, I2C and touchscreen blocks keep their ids but expose
	// no sections in this core.
	layout[BlockEncoders] = []Section{}
	layout[BlockLEDs] = []Section{}
	layout[BlockI2C] = []Section{}
	layout[BlockTouchscreen] = []Section{}

	return layout
}

// Section returns the section descriptor, if the address exists.
func (l Layout) Section(block Block, section uint8) (Section, bool) {
	if block >= BlockCount || int(section) >= len(l[block]) {
		return Section{}, false
	}
	return l[block][section], true
}

// Blocks returns the number of blocks.
func (l Layout) Blocks() int {
	return int(BlockCount)
}

// Sections returns the number of sections in block.
func (l Layout) Sections(block Block) int {
	if block >= BlockCount {
		return 0
	}
	return len(l[block])
}

// SectionByName resolves a section by its name or its decimal number.
func (l Layout) SectionByName(block Block, name string) (uint8, bool) {
	if block >= BlockCount {
		return 0, false
	}
	for i, s := range l[block] {
		if s.Name == name {
			return uint8(i), true
		}
	}

	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n >= len(l[block]) {
		return 0, false
	}
	return uint8(n), true
}

// BlockByName resolves a block by its name or its decimal number.
func BlockByName(name string) (Block, bool) {
	if b, ok := ParseBlock(name); ok {
		return b, true
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n >= int(BlockCount) {
		return BlockCount, false
	}
	return Block(n), true
}
