package protocol

import (
	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// MaxReadsPerRun bounds the inbound messages handled per tick.
const MaxReadsPerRun = 16

// MMC command bytes.
const (
	mmcStop        = 0x01
	mmcPlay        = 0x02
	mmcRecordStart = 0x06
	mmcRecordStop  = 0x07
	mmcPause       = 0x09

	// mmcAllCall addresses every device.
	mmcAllCall = 0x7F
)

// CC numbers used by the 14-bit and NRPN encodings.
const (
	ccDataEntryMSB = 6
	ccDataEntryLSB = 38
	ccNRPNLSB      = 98
	ccNRPNMSB      = 99
	ccLSBOffset    = 32
)

// MIDI bridges the event bus and a byte Transport.
//
// Outbound: Analog and Button events plus SysEx responses are encoded and
// written. Inbound: every message read from the transport is published
// under EventTypeMIDIIn with a 1-based channel.
type MIDI struct {
	transport  Transport
	db         *database.Database
	dispatcher *messaging.Dispatcher
	logger     *zap.Logger
	enabled    bool
}

func NewMIDI(transport Transport, db *database.Database, dispatcher *messaging.Dispatcher, logger *zap.Logger) *MIDI {
	m := &MIDI{
		transport:  transport,
		db:         db,
		dispatcher: dispatcher,
		logger:     logger,
	}

	dispatcher.Listen(messaging.EventTypeAnalog, m.send)
	dispatcher.Listen(messaging.EventTypeButton, m.send)

	dispatcher.Listen(messaging.EventTypeSystem, func(event messaging.Event) {
		if event.SystemMessage == messaging.SystemMessageSysExResponse {
			m.send(event)
		}
	})

	return m
}

func (m *MIDI) Init() bool {
	m.enabled = true
	return true
}

// Read publishes pending inbound messages.
func (m *MIDI) Read() {
	if !m.enabled {
		return
	}

	for i := 0; i < MaxReadsPerRun; i++ {
		raw, ok := m.transport.Read()
		if !ok {
			return
		}

		event, ok := Decode(raw)
		if !ok {
			m.logger.Debug("Dropping unsupported MIDI message", zap.Binary("raw", raw))
			continue
		}

		m.dispatcher.Notify(messaging.EventTypeMIDIIn, event)
	}
}

func (m *MIDI) send(event messaging.Event) {
	if !m.enabled {
		return
	}

	event.Channel = m.channel(event.Channel)

	for _, msg := range Encode(event, m.standardNoteOff()) {
		if err := m.transport.Write(msg); err != nil {
			m.logger.Warn("Failed to write MIDI message",
				zap.Stringer("message", event.Message),
				zap.Error(err))
			return
		}
	}
}

// channel applies the global channel override and falls back to channel 1
// for values outside 1..16.
func (m *MIDI) channel(channel uint8) uint8 {
	if m.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingUseGlobalChannel) != 0 {
		channel = uint8(m.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingGlobalChannel))
	}

	if channel < midi.MinChannel || channel > midi.MaxChannel {
		return midi.MinChannel
	}
	return channel
}

func (m *MIDI) standardNoteOff() bool {
	return m.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingStandardNoteOff) != 0
}

// Encode turns an event into wire messages. event.Channel is 1-based.
// Events without a wire form yield nil.
func Encode(event messaging.Event, standardNoteOff bool) []gomidi.Message {
	ch := event.Channel - 1
	if event.Channel < midi.MinChannel || event.Channel > midi.MaxChannel {
		ch = 0
	}
	index := uint8(event.Index & midi.MaxValue7Bit)
	value := uint8(event.Value & midi.MaxValue7Bit)

	switch event.Message {
	case midi.MessageNoteOn:
		if value == 0 {
			return Encode(messaging.Event{Channel: event.Channel, Index: event.Index, Message: midi.MessageNoteOff}, standardNoteOff)
		}
		return []gomidi.Message{gomidi.NoteOn(ch, index, value)}

	case midi.MessageNoteOff:
		if standardNoteOff {
			return []gomidi.Message{gomidi.NoteOff(ch, index)}
		}
		return []gomidi.Message{gomidi.NoteOn(ch, index, 0)}

	case midi.MessageControlChange:
		return []gomidi.Message{gomidi.ControlChange(ch, index, value)}

	case midi.MessageProgramChange:
		return []gomidi.Message{gomidi.ProgramChange(ch, index)}

	case midi.MessagePitchBend:
		bend := int16(event.Value&midi.MaxValue14Bit) - midi.PitchBendCenter
		return []gomidi.Message{gomidi.Pitchbend(ch, bend)}

	case midi.MessageControlChange14:
		high, low := midi.Split14Bit(event.Value)
		return []gomidi.Message{
			gomidi.ControlChange(ch, index, high),
			gomidi.ControlChange(ch, index+ccLSBOffset, low),
		}

	case midi.MessageNRPN7, midi.MessageNRPN14:
		paramHigh, paramLow := midi.Split14Bit(event.Index)
		msgs := []gomidi.Message{
			gomidi.ControlChange(ch, ccNRPNMSB, paramHigh),
			gomidi.ControlChange(ch, ccNRPNLSB, paramLow),
		}
		if event.Message == midi.MessageNRPN7 {
			return append(msgs, gomidi.ControlChange(ch, ccDataEntryMSB, value))
		}
		high, low := midi.Split14Bit(event.Value)
		return append(msgs,
			gomidi.ControlChange(ch, ccDataEntryMSB, high),
			gomidi.ControlChange(ch, ccDataEntryLSB, low))

	case midi.MessageSysEx:
		if len(event.SysEx) < 2 {
			return nil
		}
		return []gomidi.Message{gomidi.SysEx(event.SysEx[1 : len(event.SysEx)-1])}

	case midi.MessageClock:
		return []gomidi.Message{gomidi.TimingClock()}
	case midi.MessageStart:
		return []gomidi.Message{gomidi.Start()}
	case midi.MessageContinue:
		return []gomidi.Message{gomidi.Continue()}
	case midi.MessageStop:
		return []gomidi.Message{gomidi.Stop()}
	case midi.MessageActiveSensing:
		return []gomidi.Message{gomidi.Activesense()}
	case midi.MessageSystemReset:
		return []gomidi.Message{gomidi.Reset()}

	case midi.MessageMMCPlay:
		return mmc(mmcPlay)
	case midi.MessageMMCStop:
		return mmc(mmcStop)
	case midi.MessageMMCPause:
		return mmc(mmcPause)
	case midi.MessageMMCRecordStart:
		return mmc(mmcRecordStart)
	case midi.MessageMMCRecordStop:
		return mmc(mmcRecordStop)
	}

	return nil
}

func mmc(command byte) []gomidi.Message {
	return []gomidi.Message{gomidi.SysEx([]byte{0x7F, mmcAllCall, 0x06, command})}
}

// Decode parses one inbound message into a MIDIIn event with a 1-based
// channel. SysEx keeps the complete frame including F0 and F7.
func Decode(raw []byte) (messaging.Event, bool) {
	msg := gomidi.Message(raw)

	var (
		ch, key, vel, cc, program uint8
		relative                  int16
		absolute                  uint16
		data                      []byte
	)

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return channelEvent(midi.MessageNoteOn, ch, uint16(key), uint16(vel)), true

	case msg.GetNoteEnd(&ch, &key):
		return channelEvent(midi.MessageNoteOff, ch, uint16(key), 0), true

	case msg.GetControlChange(&ch, &cc, &vel):
		return channelEvent(midi.MessageControlChange, ch, uint16(cc), uint16(vel)), true

	case msg.GetProgramChange(&ch, &program):
		return channelEvent(midi.MessageProgramChange, ch, uint16(program), 0), true

	case msg.GetPitchBend(&ch, &relative, &absolute):
		return channelEvent(midi.MessagePitchBend, ch, 0, absolute), true

	case msg.GetSysEx(&data):
		return messaging.Event{Message: midi.MessageSysEx, SysEx: raw}, true
	}

	switch msg.Type() {
	case gomidi.TimingClockMsg:
		return messaging.Event{Message: midi.MessageClock}, true
	case gomidi.StartMsg:
		return messaging.Event{Message: midi.MessageStart}, true
	case gomidi.ContinueMsg:
		return messaging.Event{Message: midi.MessageContinue}, true
	case gomidi.StopMsg:
		return messaging.Event{Message: midi.MessageStop}, true
	case gomidi.ActiveSenseMsg:
		return messaging.Event{Message: midi.MessageActiveSensing}, true
	case gomidi.ResetMsg:
		return messaging.Event{Message: midi.MessageSystemReset}, true
	}

	return messaging.Event{}, false
}

func channelEvent(message midi.MessageType, ch uint8, index, value uint16) messaging.Event {
	return messaging.Event{
		Channel: ch + 1,
		Index:   index,
		Value:   value,
		Message: message,
	}
}
