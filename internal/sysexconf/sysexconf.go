package sysexconf

import (
	"bytes"
	"errors"

	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"go.uber.org/zap"
)

// ErrNoResponse is returned by DataHandler.CustomRequest when the request
// is acknowledged later by the handler itself.
var ErrNoResponse = errors.New("no response")

// DataHandler connects the protocol to the configuration surface and the
// outbound transport.
type DataHandler interface {
	Get(block sysconfig.Block, section uint8, index int) (uint16, error)
	Set(block sysconfig.Block, section uint8, index int, value uint16) error
	CustomRequest(code uint8) ([]uint16, error)
	// SendResponse receives every outbound frame. The slice is reused
	// after the call returns.
	SendResponse(frame []byte)
}

// Protocol implements the section-addressed SysEx configuration protocol.
type Protocol struct {
	handler DataHandler
	id      ManufacturerID
	layout  sysconfig.Layout
	logger  *zap.Logger
	custom  map[uint8]CustomRequest

	connected        bool
	silent           bool
	ignoreUserErrors bool

	out []byte
}

func New(handler DataHandler, id ManufacturerID, layout sysconfig.Layout, logger *zap.Logger) *Protocol {
	return &Protocol{
		handler: handler,
		id:      id,
		layout:  layout,
		logger:  logger,
		custom:  make(map[uint8]CustomRequest),
		out:     make([]byte, 0, headerSize+ValuesPerPart*BytesPerValue+1),
	}
}

// SetupCustomRequests replaces the set of accepted custom request codes.
// Codes colliding with special requests are ignored.
func (p *Protocol) SetupCustomRequests(requests []CustomRequest) {
	p.custom = make(map[uint8]CustomRequest, len(requests))

	for _, r := range requests {
		if r.Code <= SpecialConnSilentDisable {
			p.logger.Warn("Custom request collides with special request", zap.Uint8("code", r.Code))
			continue
		}
		p.custom[r.Code] = r
	}
}

// IsConfigurationEnabled reports whether a host has opened a connection.
func (p *Protocol) IsConfigurationEnabled() bool {
	return p.connected
}

// SetUserErrorIgnoreMode suppresses responses for cell-level errors.
func (p *Protocol) SetUserErrorIgnoreMode(enabled bool) {
	p.ignoreUserErrors = enabled
}

func (p *Protocol) Blocks() int {
	return p.layout.Blocks()
}

func (p *Protocol) Sections(block sysconfig.Block) int {
	return p.layout.Sections(block)
}

// HandleMessage processes one inbound frame. It returns false when the
// frame is not a SysEx frame addressed to this device.
func (p *Protocol) HandleMessage(frame []byte) bool {
	if len(frame) < specialRequestSize || frame[0] != frameStart || frame[len(frame)-1] != frameEnd {
		return false
	}
	if !bytes.Equal(frame[1:4], p.id[:]) {
		return false
	}

	if Status(frame[posStatus]) != StatusRequest {
		p.respondError(frame, StatusErrorStatus)
		return true
	}

	if len(frame) == specialRequestSize {
		p.handleSpecial(frame)
		return true
	}

	if !p.connected {
		p.respondError(frame, StatusErrorConnection)
		return true
	}

	p.handleStandard(frame)
	return true
}

// SendCustomMessage emits F0 ID STATUS 00 values F7. Values must already
// be 7-bit bytes.
func (p *Protocol) SendCustomMessage(values []byte, ack bool) {
	status := StatusRequest
	if ack {
		status = StatusAck
	}

	p.out = append(p.out[:0], frameStart, p.id[0], p.id[1], p.id[2], byte(status), 0x00)
	p.out = append(p.out, values...)
	p.out = append(p.out, frameEnd)

	p.handler.SendResponse(p.out)
}

func (p *Protocol) handleSpecial(frame []byte) {
	code := frame[posWish]

	switch code {
	case SpecialConnOpen, SpecialConnOpenSilent:
		p.connected = true
		p.silent = code == SpecialConnOpenSilent
		p.respondSpecial(frame)

	case SpecialConnClose:
		if !p.connected {
			p.respondError(frame, StatusErrorConnection)
			return
		}
		p.connected = false
		p.silent = false
		p.respondSpecial(frame)

	case SpecialConnSilentDisable:
		if !p.connected {
			p.respondError(frame, StatusErrorConnection)
			return
		}
		p.silent = false
		p.respondSpecial(frame)

	case SpecialBytesPerValue:
		if !p.connected {
			p.respondError(frame, StatusErrorConnection)
			return
		}
		p.respondSpecial(frame, BytesPerValue)

	case SpecialParamsPerMessage:
		if !p.connected {
			p.respondError(frame, StatusErrorConnection)
			return
		}
		p.respondSpecial(frame, ValuesPerPart)

	default:
		p.handleCustom(frame, code)
	}
}

func (p *Protocol) handleCustom(frame []byte, code uint8) {
	request, ok := p.custom[code]
	if !ok {
		p.respondError(frame, StatusErrorWish)
		return
	}

	if request.RequiresConnection && !p.connected {
		p.respondError(frame, StatusErrorConnection)
		return
	}

	values, err := p.handler.CustomRequest(code)
	if errors.Is(err, ErrNoResponse) {
		return
	}
	if err != nil {
		p.logger.Debug("Custom request failed", zap.Uint8("code", code), zap.Error(err))
		p.respondError(frame, statusFor(err, StatusErrorNotSupported))
		return
	}

	p.respondSpecial(frame, values...)
}

func (p *Protocol) handleStandard(frame []byte) {
	if len(frame) < minRequestSize {
		p.respondError(frame, StatusErrorMessageLength)
		return
	}

	wish := Wish(frame[posWish])
	if wish > WishBackup {
		p.respondError(frame, StatusErrorWish)
		return
	}

	amount := Amount(frame[posAmount])
	if amount > AmountAll {
		p.respondError(frame, StatusErrorAmount)
		return
	}

	block := sysconfig.Block(frame[posBlock])
	if int(block) >= p.layout.Blocks() {
		p.respondError(frame, StatusErrorBlock)
		return
	}

	section := frame[posSection]
	desc, ok := p.layout.Section(block, section)
	if !ok {
		p.respondError(frame, StatusErrorSection)
		return
	}

	if amount == AmountSingle {
		p.handleSingle(frame, wish, block, section, desc)
		return
	}

	p.handleAll(frame, wish, block, section, desc)
}

func (p *Protocol) handleSingle(frame []byte, wish Wish, block sysconfig.Block, section uint8, desc sysconfig.Section) {
	index := int(midi.Merge14Bit(frame[posIndexH], frame[posIndexL]))
	if index >= desc.Count {
		p.respondError(frame, StatusErrorIndex)
		return
	}

	switch wish {
	case WishGet, WishBackup:
		value, err := p.handler.Get(block, section, index)
		if err != nil {
			p.respondError(frame, statusFor(err, StatusErrorRead))
			return
		}
		p.respondValues(frame, wish, frame[posPart], []uint16{value})

	case WishSet:
		if len(frame) != singleSetSize {
			p.respondError(frame, StatusErrorMessageLength)
			return
		}

		value := midi.Merge14Bit(frame[posValue], frame[posValue+1])
		if value > desc.MaxValue {
			p.respondError(frame, StatusErrorNewValue)
			return
		}

		if err := p.handler.Set(block, section, index, value); err != nil {
			p.respondError(frame, statusFor(err, StatusErrorWrite))
			return
		}
		p.respondSet(frame)
	}
}

func (p *Protocol) handleAll(frame []byte, wish Wish, block sysconfig.Block, section uint8, desc sysconfig.Section) {
	parts := partCount(desc.Count)
	part := frame[posPart]

	if wish == WishSet {
		if part == AllParts || int(part) >= parts {
			p.respondError(frame, StatusErrorPart)
			return
		}
		p.setPart(frame, block, section, desc, int(part))
		return
	}

	if part != AllParts {
		if int(part) >= parts {
			p.respondError(frame, StatusErrorPart)
			return
		}
		p.getPart(frame, wish, block, section, desc, int(part))
		return
	}

	for i := 0; i < parts; i++ {
		if !p.getPart(frame, wish, block, section, desc, i) {
			return
		}
	}
}

// getPart responds with every value of one part. A failed read answers
// with its status instead and stops further parts.
func (p *Protocol) getPart(frame []byte, wish Wish, block sysconfig.Block, section uint8, desc sysconfig.Section, part int) bool {
	first, last := partBounds(desc.Count, part)

	var values [ValuesPerPart]uint16
	for index := first; index < last; index++ {
		value, err := p.handler.Get(block, section, index)
		if err != nil {
			p.respondError(frame, statusFor(err, StatusErrorRead))
			return false
		}
		values[index-first] = value
	}

	p.respondValues(frame, wish, byte(part), values[:last-first])
	return true
}

// setPart applies every value of one part. Failing cells do not stop the
// remaining ones; the first failure is reported.
func (p *Protocol) setPart(frame []byte, block sysconfig.Block, section uint8, desc sysconfig.Section, part int) {
	first, last := partBounds(desc.Count, part)

	if len(frame) != headerSize+(last-first)*BytesPerValue+1 {
		p.respondError(frame, StatusErrorMessageLength)
		return
	}

	result := StatusAck

	for index := first; index < last; index++ {
		pos := posValue + (index-first)*BytesPerValue
		value := midi.Merge14Bit(frame[pos], frame[pos+1])

		status := StatusAck
		if value > desc.MaxValue {
			status = StatusErrorNewValue
		} else if err := p.handler.Set(block, section, index, value); err != nil {
			status = statusFor(err, StatusErrorWrite)
		}

		if status != StatusAck && result == StatusAck {
			result = status
		}
	}

	if result != StatusAck {
		p.respondError(frame, result)
		return
	}
	p.respondSet(frame)
}

func (p *Protocol) respondSet(frame []byte) {
	if p.silent {
		return
	}
	p.respondValues(frame, WishSet, frame[posPart], nil)
}

// respondValues answers a standard request. Backup answers are written as
// SET requests so a captured stream can be replayed as a restore.
func (p *Protocol) respondValues(frame []byte, wish Wish, part byte, values []uint16) {
	status := StatusAck
	if wish == WishBackup {
		status = StatusRequest
		wish = WishSet
	}

	p.out = append(p.out[:0], frame[:headerSize]...)
	p.out[posStatus] = byte(status)
	p.out[posPart] = part
	p.out[posWish] = byte(wish)

	for _, v := range values {
		high, low := midi.Split14Bit(v)
		p.out = append(p.out, high, low)
	}
	p.out = append(p.out, frameEnd)

	p.handler.SendResponse(p.out)
}

func (p *Protocol) respondSpecial(frame []byte, values ...uint16) {
	p.out = append(p.out[:0], frame[:posWish+1]...)
	p.out[posStatus] = byte(StatusAck)

	for _, v := range values {
		high, low := midi.Split14Bit(v)
		p.out = append(p.out, high, low)
	}
	p.out = append(p.out, frameEnd)

	p.handler.SendResponse(p.out)
}

func (p *Protocol) respondError(frame []byte, status Status) {
	if p.ignoreUserErrors && status.userError() {
		return
	}

	n := len(frame) - 1
	if n > headerSize {
		n = headerSize
	}

	p.out = append(p.out[:0], frame[:n]...)
	p.out[posStatus] = byte(status)
	p.out = append(p.out, frameEnd)

	p.handler.SendResponse(p.out)
}

func statusFor(err error, fallback Status) Status {
	switch {
	case errors.Is(err, sysconfig.ErrNotSupported):
		return StatusErrorNotSupported
	case errors.Is(err, sysconfig.ErrInvalidIndex):
		return StatusErrorIndex
	case errors.Is(err, sysconfig.ErrInvalidValue):
		return StatusErrorNewValue
	case errors.Is(err, sysconfig.ErrRead):
		return StatusErrorRead
	case errors.Is(err, sysconfig.ErrWrite):
		return StatusErrorWrite
	default:
		return fallback
	}
}

func partCount(count int) int {
	return (count + ValuesPerPart - 1) / ValuesPerPart
}

func partBounds(count, part int) (int, int) {
	first := part * ValuesPerPart
	last := first + ValuesPerPart
	if last > count {
		last = count
	}
	return first, last
}
