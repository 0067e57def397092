package buttons

import (
	"fmt"

	"github.com/KevinKickass/OpenControllerCore/internal/bitset"
	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/global"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"go.uber.org/zap"
)

// Hwa delivers batched digital readings. states holds count readings with
// the newest one in bit 0.
type Hwa interface {
	State(index int) (count uint8, states uint16, ok bool)
}

type descriptor struct {
	typ         Type
	messageType MessageType
	event       messaging.Event
}

// Buttons turns debounced switch transitions into bus events.
//
// Index space: digital inputs first, then analog inputs used as buttons,
// then touchscreen buttons.
type Buttons struct {
	hwa        Hwa
	filter     Filter
	db         *database.Database
	dispatcher *messaging.Dispatcher
	program    *global.Program
	bpm        *global.BPM
	logger     *zap.Logger

	digital     int
	analog      int
	size        int
	macroCount  int
	pressed     *bitset.Bitset
	latched     *bitset.Bitset
	incDecValue []uint8
	handlers    [messageTypeCount]handler
	sysEx       [sysconfig.SysExMacroMaxLength + 2]byte
	restoring   bool
}

func New(
	hwa Hwa,
	filter Filter,
	db *database.Database,
	dispatcher *messaging.Dispatcher,
	registry *sysconfig.Registry,
	program *global.Program,
	bpm *global.BPM,
	sizes sysconfig.Sizes,
	logger *zap.Logger,
) *Buttons {
	size := sizes.Buttons()

	b := &Buttons{
		hwa:         hwa,
		filter:      filter,
		db:          db,
		dispatcher:  dispatcher,
		program:     program,
		bpm:         bpm,
		logger:      logger,
		digital:     sizes.DigitalInputs,
		analog:      sizes.AnalogInputs,
		size:        size,
		macroCount:  sizes.Macros(),
		pressed:     bitset.New(size),
		latched:     bitset.New(size),
		incDecValue: make([]uint8, size),
	}

	b.buildHandlers()

	dispatcher.Listen(messaging.EventTypeAnalogButton, func(event messaging.Event) {
		index := b.digital + int(event.ComponentIndex)
		if index >= b.size {
			return
		}

		d := b.fillDescriptor(index)

		if event.ForcedRefresh {
			b.refresh(index, &d)
			return
		}

		b.processButton(index, event.Value != 0, &d)
	})

	dispatcher.Listen(messaging.EventTypeTouchscreenButton, func(event messaging.Event) {
		index := b.digital + b.analog + int(event.ComponentIndex)
		if index >= b.size {
			return
		}

		d := b.fillDescriptor(index)
		b.processButton(index, event.Value != 0, &d)
	})

	dispatcher.Listen(messaging.EventTypeSystem, func(event messaging.Event) {
		switch event.SystemMessage {
		case messaging.SystemMessageForceIORefresh:
			b.UpdateAll(true)

		case messaging.SystemMessageRestoreStart:
			b.restoring = true

		case messaging.SystemMessageRestoreEnd:
			b.restoring = false
			b.Init()
		}
	})

	registry.Register(sysconfig.BlockButtons, b.configGet, b.configSet)

	return b
}

func (b *Buttons) Init() bool {
	for i := 0; i < b.size; i++ {
		b.Reset(i)
	}
	return true
}

// MaxComponentUpdateIndex returns the number of polled digital inputs.
// Analog and touchscreen buttons arrive through the bus instead.
func (b *Buttons) MaxComponentUpdateIndex() int {
	return b.digital
}

// UpdateSingle drains the pending readings of a digital input, oldest
// first. With forceRefresh the current state is re-sent instead.
func (b *Buttons) UpdateSingle(index int, forceRefresh bool) {
	if index < 0 || index >= b.digital {
		return
	}

	if forceRefresh {
		d := b.fillDescriptor(index)
		b.refresh(index, &d)
		return
	}

	count, states, ok := b.hwa.State(index)
	if !ok {
		return
	}

	d := b.fillDescriptor(index)

	for reading := int(count) - 1; reading >= 0; reading-- {
		state := (states>>uint(reading))&0x01 != 0

		if !b.filter.IsFiltered(index, &state) {
			continue
		}

		// The action handlers modify the event, start every reading from
		// the stored configuration.
		current := d
		b.processButton(index, state, &current)
	}
}

func (b *Buttons) UpdateAll(forceRefresh bool) {
	for i := 0; i < b.digital; i++ {
		b.UpdateSingle(i, forceRefresh)
	}
}

func (b *Buttons) refresh(index int, d *descriptor) {
	if d.typ == TypeLatching {
		b.sendMessage(index, b.latched.Get(index), d)
		return
	}
	b.sendMessage(index, b.pressed.Get(index), d)
}

// processButton acts on state changes only. Latching buttons toggle on
// press and ignore the release.
func (b *Buttons) processButton(index int, reading bool, d *descriptor) {
	if reading == b.pressed.Get(index) {
		return
	}

	b.pressed.Set(index, reading)

	if d.messageType == MessageNone {
		return
	}

	if d.typ == TypeLatching {
		if !reading {
			return
		}
		reading = b.latched.Toggle(index)
	}

	b.sendMessage(index, reading, d)
}

func (b *Buttons) sendMessage(index int, state bool, d *descriptor) {
	h := b.handlers[d.messageType]

	fn := h.release
	if state {
		fn = h.press
	}
	if fn == nil {
		return
	}

	eventType, send := fn(index, d)
	if !send {
		return
	}

	b.dispatcher.Notify(eventType, d.event)
}

// actionFunc rewrites the descriptor event for one phase of an action and
// reports the category to publish under and whether to publish at all.
type actionFunc func(index int, d *descriptor) (messaging.EventType, bool)

type handler struct {
	press   actionFunc
	release actionFunc
}

func (b *Buttons) buildHandlers() {
	send := func(int, *descriptor) (messaging.EventType, bool) {
		return messaging.EventTypeButton, true
	}

	noteOff := func(_ int, d *descriptor) (messaging.EventType, bool) {
		d.event.Value = 0
		d.event.Message = midi.MessageNoteOff
		return messaging.EventTypeButton, true
	}

	zeroValue := func(_ int, d *descriptor) (messaging.EventType, bool) {
		d.event.Value = 0
		return messaging.EventTypeButton, true
	}

	releaseAs := func(m midi.MessageType) actionFunc {
		return func(_ int, d *descriptor) (messaging.EventType, bool) {
			d.event.Message = m
			return messaging.EventTypeButton, true
		}
	}

	h := &b.handlers

	h[MessageNote] = handler{press: send, release: noteOff}
	h[MessageControlChange] = handler{press: send}
	h[MessageControlChangeReset] = handler{press: send, release: zeroValue}
	h[MessageMMCStop] = handler{press: send}
	h[MessageMMCPlay] = handler{press: send}
	h[MessageMMCPause] = handler{press: send}
	h[MessageMMCRecord] = handler{press: send, release: releaseAs(midi.MessageMMCRecordStop)}
	h[MessageMMCPlayStop] = handler{press: send, release: releaseAs(midi.MessageMMCStop)}
	h[MessageRealTimeClock] = handler{press: send}
	h[MessageRealTimeStart] = handler{press: send}
	h[MessageRealTimeContinue] = handler{press: send}
	h[MessageRealTimeStop] = handler{press: send}
	h[MessageRealTimeActiveSensing] = handler{press: send}
	h[MessageRealTimeSystemReset] = handler{press: send}
	h[MessageSysExMacro] = handler{press: b.sysExMacro}
	h[MessageProgramChange] = handler{press: b.programChange}
	h[MessageProgramChangeInc] = handler{press: b.programStep(true)}
	h[MessageProgramChangeDec] = handler{press: b.programStep(false)}
	h[MessageMultiValIncResetNote] = handler{press: b.multiValueNote}
	h[MessageMultiValIncDecNote] = handler{press: b.multiValueNote}
	h[MessageMultiValIncResetCC] = handler{press: b.multiValueCC}
	h[MessageMultiValIncDecCC] = handler{press: b.multiValueCC}
	h[MessageNoteOffOnly] = handler{press: noteOff}
	h[MessageControlChange0Only] = handler{press: zeroValue}
	h[MessageProgramChangeOffsetInc] = handler{press: b.offsetStep(true)}
	h[MessageProgramChangeOffsetDec] = handler{press: b.offsetStep(false)}
	h[MessageBPMInc] = handler{press: b.bpmStep(true)}
	h[MessageBPMDec] = handler{press: b.bpmStep(false)}
	h[MessagePresetChange] = handler{press: b.systemRequest(messaging.SystemMessagePresetChangeDirectReq, false)}
	h[MessagePitchBendCenterCapture] = handler{press: b.systemRequest(messaging.SystemMessagePitchBendCenterCaptureReq, true)}
}

func (b *Buttons) sysExMacro(_ int, d *descriptor) (messaging.EventType, bool) {
	return messaging.EventTypeButton, b.fillSysExMacro(&d.event)
}

func (b *Buttons) programChange(_ int, d *descriptor) (messaging.EventType, bool) {
	d.event.Value = 0
	d.event.Index = (d.event.Index + uint16(b.program.Offset())) & midi.MaxValue7Bit
	return messaging.EventTypeButton, true
}

func (b *Buttons) programStep(up bool) actionFunc {
	return func(_ int, d *descriptor) (messaging.EventType, bool) {
		var changed bool
		if up {
			changed = b.program.IncrementProgram(d.event.Channel, 1)
		} else {
			changed = b.program.DecrementProgram(d.event.Channel, 1)
		}

		d.event.Value = 0
		d.event.Index = uint16(b.program.Program(d.event.Channel))
		return messaging.EventTypeButton, changed
	}
}

func (b *Buttons) offsetStep(up bool) actionFunc {
	return func(_ int, d *descriptor) (messaging.EventType, bool) {
		if up {
			b.program.IncrementOffset(uint8(d.event.Value))
		} else {
			b.program.DecrementOffset(uint8(d.event.Value))
		}
		return messaging.EventTypeButton, true
	}
}

func (b *Buttons) bpmStep(up bool) actionFunc {
	return func(_ int, d *descriptor) (messaging.EventType, bool) {
		var changed bool
		if up {
			changed = b.bpm.Increment(1)
		} else {
			changed = b.bpm.Decrement(1)
		}

		d.event.Value = 0
		d.event.Index = uint16(b.bpm.Value())
		return messaging.EventTypeButton, changed
	}
}

func (b *Buttons) multiValueNote(index int, d *descriptor) (messaging.EventType, bool) {
	if !b.stepMultiValue(index, d) {
		return messaging.EventTypeButton, false
	}

	if d.event.Value == 0 {
		d.event.Message = midi.MessageNoteOff
	} else {
		d.event.Message = midi.MessageNoteOn
	}
	return messaging.EventTypeButton, true
}

func (b *Buttons) multiValueCC(index int, d *descriptor) (messaging.EventType, bool) {
	return messaging.EventTypeButton, b.stepMultiValue(index, d)
}

// systemRequest publishes a coordination request instead of a MIDI
// message. The event keeps index and value unless clear is set.
func (b *Buttons) systemRequest(msg messaging.SystemMessage, clear bool) actionFunc {
	return func(_ int, d *descriptor) (messaging.EventType, bool) {
		d.event.Message = midi.MessageInvalid
		d.event.SystemMessage = msg
		if clear {
			d.event.Index = 0
			d.event.Value = 0
		}
		return messaging.EventTypeSystem, true
	}
}

// stepMultiValue advances the per-button accumulator by the configured
// value. Reset variants wrap to zero past 127, inc/dec variants stop at 127
// and further presses send nothing.
func (b *Buttons) stepMultiValue(index int, d *descriptor) bool {
	step := uint8(d.event.Value)
	current := b.incDecValue[index]

	policy := global.OverflowClamp
	switch d.messageType {
	case MessageMultiValIncResetNote, MessageMultiValIncResetCC:
		policy = global.OverflowWrap
	}

	next := global.Increment(current, step, policy)

	if next == current {
		return false
	}

	b.incDecValue[index] = next
	d.event.Value = uint16(next)

	return true
}

// fillSysExMacro frames the macro selected by the button value into the
// scratch buffer. The slice is only valid during Notify.
func (b *Buttons) fillSysExMacro(e *messaging.Event) bool {
	macro := int(e.Value)
	if macro >= b.macroCount {
		return false
	}

	length := int(b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonSysExMacroLength, macro))
	if length == 0 {
		return false
	}
	if length > sysconfig.SysExMacroMaxLength {
		length = sysconfig.SysExMacroMaxLength
	}

	b.sysEx[0] = 0xF0
	for i := 0; i < length; i++ {
		b.sysEx[1+i] = uint8(b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonSysExMacroData, macro*sysconfig.SysExMacroMaxLength+i))
	}
	b.sysEx[1+length] = 0xF7

	e.Index = 0
	e.Value = 0
	e.SysEx = b.sysEx[:length+2]

	return true
}

func (b *Buttons) fillDescriptor(index int) descriptor {
	d := descriptor{
		typ:         Type(b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonType, index)),
		messageType: MessageType(b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonMessageType, index)),
		event: messaging.Event{
			ComponentIndex: uint16(index),
			Channel:        uint8(b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonChannel, index)),
			Index:          b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonMIDIID, index),
			Value:          b.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonValue, index),
		},
	}

	if d.messageType >= messageTypeCount {
		d.messageType = MessageNone
	}

	a := actions[d.messageType]
	if a.forced != nil {
		d.typ = *a.forced
	}
	d.event.Message = a.message

	return d
}

// State returns the last debounced state of a button.
func (b *Buttons) State(index int) bool {
	return b.pressed.Get(index)
}

// LatchingState returns the toggled output state of a latching button.
func (b *Buttons) LatchingState(index int) bool {
	return b.latched.Get(index)
}

// Reset forgets the runtime state of a button.
func (b *Buttons) Reset(index int) {
	b.pressed.Set(index, false)
	b.latched.Set(index, false)
	if index >= 0 && index < len(b.incDecValue) {
		b.incDecValue[index] = 0
	}
}

func (b *Buttons) configGet(section uint8, index int) (uint16, error) {
	if section == sysconfig.ButtonReserved {
		return 0, sysconfig.ErrNotSupported
	}

	value, err := b.db.Read(sysconfig.BlockButtons, section, index)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", sysconfig.ErrRead, err)
	}
	return uint16(value), nil
}

func (b *Buttons) configSet(section uint8, index int, value uint16) error {
	switch section {
	case sysconfig.ButtonReserved:
		return sysconfig.ErrNotSupported

	case sysconfig.ButtonType:
		if Type(value) >= typeCount {
			return sysconfig.ErrInvalidValue
		}
	}

	if err := b.db.Update(sysconfig.BlockButtons, section, index, uint32(value)); err != nil {
		return fmt.Errorf("%w: %v", sysconfig.ErrWrite, err)
	}

	if (section == sysconfig.ButtonType || section == sysconfig.ButtonMessageType) && !b.restoring {
		b.Reset(index)

		b.logger.Debug("Button reconfigured",
			zap.Int("index", index),
			zap.Uint8("section", section),
			zap.Uint16("value", value))
	}

	return nil
}
