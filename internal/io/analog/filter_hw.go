package analog

import (
	"github.com/KevinKickass/OpenControllerCore/internal/bitset"
	"github.com/KevinKickass/OpenControllerCore/internal/timing"
)

// ADCConfig describes the usable window of an ADC resolution.
type ADCConfig struct {
	Min             uint16
	Max             uint16
	FSRMin          uint16
	FSRMax          uint16
	ButtonThreshOn  uint16
	ButtonThreshOff uint16
}

var (
	ADC10Bit = ADCConfig{Min: 10, Max: 1000, FSRMin: 40, FSRMax: 340, ButtonThreshOn: 800, ButtonThreshOff: 200}
	ADC12Bit = ADCConfig{Min: 64, Max: 3950, FSRMin: 160, FSRMax: 1360, ButtonThreshOn: 3000, ButtonThreshOff: 1000}
)

// ADCConfigForBits picks the profile of an ADC resolution; anything but 12
// falls back to 10-bit.
func ADCConfigForBits(bits int) ADCConfig {
	if bits == 12 {
		return ADC12Bit
	}
	return ADC10Bit
}

const (
	// FastFilterWindowMs keeps hysteresis low while an input keeps moving
	// in one direction.
	FastFilterWindowMs = 50

	// ButtonDebounceMs is the settle time of analog inputs used as buttons.
	ButtonDebounceMs = 8

	emaPercentage = 50
	medianSamples = 3
)

// HwFilterOptions enables the optional smoothing stages.
type HwFilterOptions struct {
	Median bool
	EMA    bool
}

type medianFilter struct {
	samples [medianSamples]uint16
	count   int
}

func (m *medianFilter) value(sample uint16) (uint16, bool) {
	m.samples[m.count%medianSamples] = sample
	m.count++

	if m.count < medianSamples {
		return 0, false
	}

	a, b, c := m.samples[0], m.samples[1], m.samples[2]
	switch {
	case (a >= b && a <= c) || (a <= b && a >= c):
		return a, true
	case (b >= a && b <= c) || (b <= a && b >= c):
		return b, true
	default:
		return c, true
	}
}

func (m *medianFilter) reset() {
	m.count = 0
}

type emaFilter struct {
	value  uint16
	primed bool
}

func (e *emaFilter) next(sample uint16) uint16 {
	if !e.primed {
		e.value = sample
		e.primed = true
		return sample
	}
	e.value = uint16((uint32(sample)*emaPercentage + uint32(e.value)*(100-emaPercentage)) / 100)
	return e.value
}

// HwFilter filters raw ADC readings: offset window clamping, direction
// aware hysteresis, optional median/EMA smoothing, FSR sub-range remapping
// and time-debounced thresholds for button-type inputs.
type HwFilter struct {
	cfg          ADCConfig
	opts         HwFilterOptions
	clock        timing.Clock
	stepDiff7Bit uint16

	lastValue     []uint16
	lastMovement  []uint32
	moving        *bitset.Bitset
	lastDirection *bitset.Bitset
	median        []medianFilter
	ema           []emaFilter

	buttonKnown     *bitset.Bitset
	buttonState     *bitset.Bitset
	buttonDebounced *bitset.Bitset
}

func NewHwFilter(cfg ADCConfig, size int, clock timing.Clock, opts HwFilterOptions) *HwFilter {
	f := &HwFilter{
		cfg:             cfg,
		opts:            opts,
		clock:           clock,
		stepDiff7Bit:    (cfg.Max - cfg.Min) / 128,
		lastValue:       make([]uint16, size),
		lastMovement:    make([]uint32, size),
		moving:          bitset.New(size),
		lastDirection:   bitset.New(size),
		median:          make([]medianFilter, size),
		ema:             make([]emaFilter, size),
		buttonKnown:     bitset.New(size),
		buttonState:     bitset.New(size),
		buttonDebounced: bitset.New(size),
	}

	for i := range f.lastValue {
		f.lastValue[i] = ValueUnknown
	}

	return f
}

func (f *HwFilter) lowerOffsetRaw(percentage uint8) uint32 {
	if percentage == 0 {
		return uint32(f.cfg.Min)
	}
	return uint32(f.cfg.Max) * uint32(percentage) / 100
}

func (f *HwFilter) upperOffsetRaw(percentage uint8) uint32 {
	if percentage == 0 {
		return uint32(f.cfg.Max)
	}
	return uint32(f.cfg.Max) - uint32(f.cfg.Max)*uint32(percentage)/100
}

func (f *HwFilter) IsFiltered(index int, d *FilterDescriptor) bool {
	if index < 0 || index >= len(f.lastValue) {
		return false
	}

	lo := f.lowerOffsetRaw(d.LowerOffset)
	hi := f.upperOffsetRaw(d.UpperOffset)
	if lo >= hi {
		lo, hi = uint32(f.cfg.Min), uint32(f.cfg.Max)
	}

	value := clamp(uint32(d.Value), lo, hi)

	if d.Type == TypeButton {
		return f.isButtonFiltered(index, uint16(value), d)
	}

	now := f.clock.Millis()
	maxValue := uint32(d.MaxValue)
	last := f.lastValue[index]

	if last == ValueUnknown {
		if f.opts.EMA {
			value = uint32(f.ema[index].next(uint16(value)))
		}
		f.accept(index, uint16(value), true, mapRange(value, lo, hi, 0, maxValue), maxValue, now)
		d.Value = f.output(d.Type, value, lo, hi, maxValue)
		return true
	}

	fast := f.moving.Get(index) && timing.Elapsed(now, f.lastMovement[index]) < FastFilterWindowMs
	direction := value >= uint32(last)
	oldMIDIValue := mapRange(uint32(last), lo, hi, 0, maxValue)

	stepDiff := uint32(1)
	if (direction != f.lastDirection.Get(index) || !fast) && oldMIDIValue != 0 && oldMIDIValue != maxValue {
		stepDiff = uint32(f.stepDiff7Bit) * 2
	}

	diff := value - uint32(last)
	if uint32(last) > value {
		diff = uint32(last) - value
	}

	if diff < stepDiff {
		f.median[index].reset()
		return false
	}

	if f.opts.Median && !fast {
		median, ok := f.median[index].value(uint16(value))
		if !ok {
			return false
		}
		value = uint32(median)
	}

	if f.opts.EMA {
		value = uint32(f.ema[index].next(uint16(value)))
	}

	midiValue := mapRange(value, lo, hi, 0, maxValue)
	if midiValue == oldMIDIValue {
		return false
	}

	f.accept(index, uint16(value), direction, midiValue, maxValue, now)
	d.Value = f.output(d.Type, value, lo, hi, maxValue)

	return true
}

func (f *HwFilter) accept(index int, value uint16, direction bool, midiValue, maxValue uint32, now uint32) {
	f.lastDirection.Set(index, direction)
	f.lastValue[index] = value

	// Am Rand wird der Fast-Filter deaktiviert
	if midiValue == 0 || midiValue == maxValue {
		f.moving.Set(index, false)
	} else {
		f.moving.Set(index, true)
		f.lastMovement[index] = now
	}
}

func (f *HwFilter) output(t Type, value, lo, hi, maxValue uint32) uint16 {
	if t == TypeFSR {
		fsrMin, fsrMax := uint32(f.cfg.FSRMin), uint32(f.cfg.FSRMax)
		return uint16(mapRange(clamp(value, fsrMin, fsrMax), fsrMin, fsrMax, 0, maxValue))
	}
	return uint16(mapRange(value, lo, hi, 0, maxValue))
}

func (f *HwFilter) isButtonFiltered(index int, value uint16, d *FilterDescriptor) bool {
	var pressed bool

	switch {
	case value < f.cfg.ButtonThreshOff:
		pressed = false
	case value > f.cfg.ButtonThreshOn:
		pressed = true
	default:
		return false
	}

	now := f.clock.Millis()

	if !f.buttonKnown.Get(index) || f.buttonState.Get(index) != pressed {
		f.buttonKnown.Set(index, true)
		f.buttonState.Set(index, pressed)
		f.buttonDebounced.Set(index, false)
		f.lastMovement[index] = now
		return false
	}

	if timing.Elapsed(now, f.lastMovement[index]) < ButtonDebounceMs {
		return false
	}

	if f.buttonDebounced.Get(index) {
		return false
	}

	f.buttonDebounced.Set(index, true)
	d.Value = 0
	if pressed {
		d.Value = 1
	}

	return true
}

func (f *HwFilter) Reset(index int) {
	if index < 0 || index >= len(f.lastValue) {
		return
	}

	f.lastValue[index] = ValueUnknown
	f.lastMovement[index] = 0
	f.moving.Set(index, false)
	f.median[index].reset()
	f.ema[index] = emaFilter{}
	f.buttonKnown.Set(index, false)
	f.buttonDebounced.Set(index, false)
}
