package analog

import (
	"fmt"

	"github.com/KevinKickass/OpenControllerCore/internal/bitset"
	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"go.uber.org/zap"
)

// Hwa delivers raw analog samples. ok is false when no new sample is
// available this tick.
type Hwa interface {
	Value(index int) (value uint16, ok bool)
}

const (
	// ValueUnknown marks a channel that has not reported yet.
	ValueUnknown = 0xFFFF

	// PitchBendAmountIndex is the analog input whose last value scales the
	// bend range of every other pitch-bend input.
	PitchBendAmountIndex = 2

	// MaxPitchBendDeadzone is half the 14-bit range.
	MaxPitchBendDeadzone = 8192

	// controlChange14MaxIndex is the first CC number without a LSB partner.
	controlChange14MaxIndex = 96
)

type descriptor struct {
	typ         Type
	inverted    bool
	lowerLimit  uint16
	upperLimit  uint16
	lowerOffset uint8
	upperOffset uint8
	maxValue    uint16
	newValue    uint16
	oldValue    uint16
	event       messaging.Event
}

// Analog turns raw analog samples into bus events.
//
// Per-channel configuration is read from the Database on every pass; only
// derived runtime state lives here.
type Analog struct {
	hwa        Hwa
	filter     Filter
	db         *database.Database
	dispatcher *messaging.Dispatcher
	logger     *zap.Logger
	size       int

	lastValue         []uint16
	lastBend          []uint16
	fsrPressed        *bitset.Bitset
	pitchBendCenter   []uint16
	pitchBendDeadzone uint16
	restoring         bool
}

func New(
	hwa Hwa,
	filter Filter,
	db *database.Database,
	dispatcher *messaging.Dispatcher,
	registry *sysconfig.Registry,
	size int,
	logger *zap.Logger,
) *Analog {
	a := &Analog{
		hwa:               hwa,
		filter:            filter,
		db:                db,
		dispatcher:        dispatcher,
		logger:            logger,
		size:              size,
		lastValue:         make([]uint16, size),
		lastBend:          make([]uint16, size),
		fsrPressed:        bitset.New(size),
		pitchBendCenter:   make([]uint16, size),
		pitchBendDeadzone: database.DefaultPitchBendDeadzone,
	}

	for i := 0; i < size; i++ {
		a.Reset(i)
	}

	dispatcher.Listen(messaging.EventTypeSystem, func(event messaging.Event) {
		switch event.SystemMessage {
		case messaging.SystemMessageForceIORefresh:
			a.UpdateAll(true)

		case messaging.SystemMessageRestoreStart:
			a.restoring = true

		case messaging.SystemMessageRestoreEnd:
			a.restoring = false
			a.Init()
		}
	})

	registry.Register(sysconfig.BlockAnalog, a.configGet, a.configSet)

	return a
}

// Init resets every channel and applies the stored pitch-bend settings.
func (a *Analog) Init() bool {
	for i := 0; i < a.size; i++ {
		a.Reset(i)
	}

	a.SetPitchBendDeadzone(a.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendDeadzone))
	a.ApplyStoredPitchBendCenter()

	return true
}

// MaxComponentUpdateIndex returns the number of analog inputs.
func (a *Analog) MaxComponentUpdateIndex() int {
	return a.size
}

// UpdateSingle processes one channel. With forceRefresh the last value of
// an enabled channel is re-emitted instead of sampling the hardware.
func (a *Analog) UpdateSingle(index int, forceRefresh bool) {
	if index < 0 || index >= a.size {
		return
	}

	if !forceRefresh {
		value, ok := a.hwa.Value(index)
		if !ok {
			return
		}

		a.processReading(index, value)
		return
	}

	if a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogEnable, index) == 0 {
		return
	}

	if a.lastValue[index] == ValueUnknown {
		return
	}

	d, ok := a.fillDescriptor(index)
	if !ok || d.typ == TypeReserved {
		return
	}

	if d.typ != TypeFSR && d.typ != TypeButton {
		d.mask7Bit()
	}

	d.newValue = a.lastValue[index]
	d.oldValue = a.lastValue[index]
	d.event.ForcedRefresh = true

	if d.typ == TypePitchBend {
		a.lastBend[index] = a.shapePitchBend(index, d.newValue, d.lowerLimit, d.upperLimit)
		d.event.Value = a.lastBend[index]
		a.dispatcher.Notify(messaging.EventTypeAnalog, d.event)
		return
	}

	a.emit(index, &d)
}

// UpdateAll processes every channel once.
func (a *Analog) UpdateAll(forceRefresh bool) {
	for i := 0; i < a.size; i++ {
		a.UpdateSingle(i, forceRefresh)
	}
}

func (a *Analog) processReading(index int, raw uint16) {
	if a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogEnable, index) == 0 {
		return
	}

	d, ok := a.fillDescriptor(index)
	if !ok {
		return
	}

	fd := FilterDescriptor{
		Type:        d.typ,
		Value:       raw,
		LowerOffset: d.lowerOffset,
		UpperOffset: d.upperOffset,
		MaxValue:    d.maxValue,
	}

	if !a.filter.IsFiltered(index, &fd) {
		return
	}

	d.newValue = fd.Value
	d.oldValue = a.lastValue[index]

	switch d.typ {
	case TypePotentiometerCC, TypePotentiometerNote, TypeNRPN7, TypeNRPN14, TypeControlChange14:
		if a.checkPotentiometerValue(&d) {
			a.emit(index, &d)
		}

	case TypePitchBend:
		if a.checkPotentiometerValue(&d) {
			a.emitPitchBend(index, &d)
		}

	case TypeFSR:
		if a.checkFSRValue(index, &d) {
			a.emit(index, &d)
		}

	case TypeButton:
		a.emit(index, &d)

	case TypeReserved:
		// Kein MIDI-Output, nur der skalierte Wert wird nachgeführt
		if a.checkPotentiometerValue(&d) {
			a.lastValue[index] = d.newValue
		}
	}
}

// checkPotentiometerValue scales d.newValue into the configured limits and
// reports whether it differs from the last value.
func (a *Analog) checkPotentiometerValue(d *descriptor) bool {
	d.mask7Bit()

	if d.newValue > d.maxValue {
		return false
	}

	scaled := scale(d.newValue, d.maxValue, d.lowerLimit, d.upperLimit, d.inverted)
	if scaled == d.oldValue {
		return false
	}

	d.newValue = scaled
	return true
}

// mask7Bit narrows MIDI ID and limits of 7-bit types to their low byte.
func (d *descriptor) mask7Bit() {
	if d.typ.is14Bit() {
		return
	}
	_, d.event.Index = splitLow(d.event.Index)
	_, d.lowerLimit = splitLow(d.lowerLimit)
	_, d.upperLimit = splitLow(d.upperLimit)
}

func splitLow(value uint16) (uint16, uint16) {
	high, low := midi.Split14Bit(value)
	return uint16(high), uint16(low)
}

// scale maps value from [0, maxValue] onto [lower, upper]. When lower is
// above upper the range is reversed; inverted flips the result again.
func scale(value, maxValue, lower, upper uint16, inverted bool) uint16 {
	var scaled uint32

	if lower > upper {
		scaled = mapRange(uint32(value), 0, uint32(maxValue), uint32(upper), uint32(lower))
		if !inverted {
			scaled = uint32(upper) + uint32(lower) - scaled
		}
	} else {
		scaled = mapRange(uint32(value), 0, uint32(maxValue), uint32(lower), uint32(upper))
		if inverted {
			scaled = uint32(upper) + uint32(lower) - scaled
		}
	}

	return uint16(scaled)
}

func (a *Analog) checkFSRValue(index int, d *descriptor) bool {
	if d.newValue > 0 {
		if !a.fsrPressed.Get(index) {
			a.fsrPressed.Set(index, true)
			return true
		}
		return false
	}

	if a.fsrPressed.Get(index) {
		a.fsrPressed.Set(index, false)
		return true
	}

	return false
}

// emit records the new value and publishes it. The value is stored before
// Notify so handlers observe the value they are being told about.
func (a *Analog) emit(index int, d *descriptor) {
	a.lastValue[index] = d.newValue
	d.event.Value = d.newValue

	eventType := messaging.EventTypeAnalog

	switch d.typ {
	case TypeFSR:
		if d.newValue == 0 {
			d.event.Message = midi.MessageNoteOff
		}

	case TypeButton:
		eventType = messaging.EventTypeAnalogButton

	case TypeControlChange14:
		if d.event.Index >= controlChange14MaxIndex {
			return
		}
	}

	a.dispatcher.Notify(eventType, d.event)
}

// emitPitchBend publishes the shaped bend unless it equals the last
// reported bend. A channel that never reported counts as centered.
func (a *Analog) emitPitchBend(index int, d *descriptor) {
	a.lastValue[index] = d.newValue

	shaped := a.shapePitchBend(index, d.newValue, d.lowerLimit, d.upperLimit)

	baseline := a.lastBend[index]
	if baseline == ValueUnknown {
		baseline = midi.PitchBendCenter
	}
	if shaped == baseline {
		return
	}

	a.lastBend[index] = shaped
	d.event.Value = shaped
	a.dispatcher.Notify(messaging.EventTypeAnalog, d.event)
}

const (
	q15     = 32767
	q15Cube = uint64(q15) * q15 * q15
)

// shapePitchBend applies amount scaling, deadzone and the cubic response
// curve. Each side of the captured center is normalised against its own
// input span within [lower, upper] and mapped onto the matching output
// half, so both input extremes reach 0 and 16383.
func (a *Analog) shapePitchBend(index int, value, lower, upper uint16) uint16 {
	if lower > upper {
		lower, upper = upper, lower
	}

	center := int32(midi.PitchBendCenter)
	if a.pitchBendCenter[index] <= midi.MaxValue14Bit {
		center = int32(a.pitchBendCenter[index])
	}
	if center < int32(lower) {
		center = int32(lower)
	}
	if center > int32(upper) {
		center = int32(upper)
	}

	v := int32(value)

	if index != PitchBendAmountIndex && PitchBendAmountIndex < a.size {
		amount := a.lastValue[PitchBendAmountIndex]
		if amount != ValueUnknown && amount < midi.MaxValue7Bit {
			v = center + (v-center)*int32(amount)/midi.MaxValue7Bit
		}
	}

	delta := v - center
	if delta == 0 {
		return midi.PitchBendCenter
	}

	sign := int32(1)
	span := int32(upper) - center
	outHalf := int32(midi.MaxValue14Bit - midi.PitchBendCenter)
	if delta < 0 {
		sign = -1
		span = center - int32(lower)
		outHalf = midi.PitchBendCenter
		delta = -delta
	}

	deadzone := int32(a.pitchBendDeadzone)
	if deadzone > span {
		deadzone = span
	}

	var outAbs int32

	switch {
	case delta >= span:
		// Endanschlag immer voll ausgeben, unabhängig von der Deadzone
		outAbs = outHalf

	case delta > deadzone:
		absNoDZ := uint64(delta - deadzone)
		denom := uint64(span - deadzone)

		n := (absNoDZ*q15 + denom/2) / denom
		if n > q15 {
			n = q15
		}

		outAbs = int32((n*n*n*uint64(outHalf) + q15Cube/2) / q15Cube)
		if outAbs == 0 {
			outAbs = 1
		}
	}

	out := int32(midi.PitchBendCenter) + sign*outAbs
	if out < 0 {
		out = 0
	}
	if out > midi.MaxValue14Bit {
		out = midi.MaxValue14Bit
	}

	return uint16(out)
}

func (a *Analog) fillDescriptor(index int) (descriptor, bool) {
	typ := Type(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogType, index))
	if typ >= typeCount {
		return descriptor{}, false
	}

	return descriptor{
		typ:         typ,
		inverted:    a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogInvert, index) != 0,
		lowerLimit:  a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogLowerLimit, index),
		upperLimit:  a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogUpperLimit, index),
		lowerOffset: uint8(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogLowerOffset, index)),
		upperOffset: uint8(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogUpperOffset, index)),
		maxValue:    typ.MaxValue(),
		event: messaging.Event{
			ComponentIndex: uint16(index),
			Channel:        uint8(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogChannel, index)),
			Index:          a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogMIDIID, index),
			Message:        typ.Message(),
		},
	}, true
}

// Value returns the last scaled value of a channel, or ValueUnknown.
func (a *Analog) Value(index int) uint16 {
	if index < 0 || index >= a.size {
		return ValueUnknown
	}
	return a.lastValue[index]
}

// Reset forgets all runtime state of a channel.
func (a *Analog) Reset(index int) {
	if index < 0 || index >= a.size {
		return
	}

	a.fsrPressed.Set(index, false)
	a.filter.Reset(index)
	a.lastValue[index] = ValueUnknown
	a.lastBend[index] = ValueUnknown
	a.pitchBendCenter[index] = midi.PitchBendCenter
}

// SetPitchBendCenter sets the neutral raw position of a pitch-bend input.
func (a *Analog) SetPitchBendCenter(index int, center uint16) {
	if index < 0 || index >= a.size {
		return
	}
	if center > midi.MaxValue14Bit {
		center = midi.MaxValue14Bit
	}
	a.pitchBendCenter[index] = center
}

// SetPitchBendDeadzone sets the band around center that reads as no bend.
func (a *Analog) SetPitchBendDeadzone(deadzone uint16) {
	if deadzone > MaxPitchBendDeadzone {
		deadzone = MaxPitchBendDeadzone
	}
	a.pitchBendDeadzone = deadzone
}

// ApplyStoredPitchBendCenter copies the persisted center to every
// pitch-bend input.
func (a *Analog) ApplyStoredPitchBendCenter() {
	center := a.storedPitchBendCenter()

	for i := 0; i < a.size; i++ {
		if Type(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogType, i)) == TypePitchBend {
			a.SetPitchBendCenter(i, center)
		}
	}
}

func (a *Analog) storedPitchBendCenter() uint16 {
	center, err := a.db.Read(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendCenter)
	if err != nil || center > midi.MaxValue14Bit {
		return midi.PitchBendCenter
	}
	return uint16(center)
}

// FirstOfType returns the lowest index configured as t.
func (a *Analog) FirstOfType(t Type) (int, bool) {
	for i := 0; i < a.size; i++ {
		if Type(a.db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogType, i)) == t {
			return i, true
		}
	}
	return 0, false
}

func (a *Analog) configGet(section uint8, index int) (uint16, error) {
	switch section {
	case sysconfig.AnalogReserved1, sysconfig.AnalogReserved2:
		return 0, sysconfig.ErrNotSupported
	}

	value, err := a.db.Read(sysconfig.BlockAnalog, section, index)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", sysconfig.ErrRead, err)
	}
	return uint16(value), nil
}

func (a *Analog) configSet(section uint8, index int, value uint16) error {
	switch section {
	case sysconfig.AnalogReserved1, sysconfig.AnalogReserved2:
		return sysconfig.ErrNotSupported

	case sysconfig.AnalogType:
		if Type(value) >= typeCount {
			return sysconfig.ErrInvalidValue
		}
	}

	if err := a.db.Update(sysconfig.BlockAnalog, section, index, uint32(value)); err != nil {
		return fmt.Errorf("%w: %v", sysconfig.ErrWrite, err)
	}

	if section == sysconfig.AnalogType && !a.restoring {
		a.Reset(index)

		if Type(value) == TypePitchBend {
			a.SetPitchBendCenter(index, a.storedPitchBendCenter())
		}

		a.logger.Debug("Analog input retyped",
			zap.Int("index", index),
			zap.Stringer("type", Type(value)))
	}

	return nil
}
