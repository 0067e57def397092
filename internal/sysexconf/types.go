package sysexconf

// Status is the fifth byte of every frame.
type Status uint8

const (
	StatusRequest Status = iota
	StatusAck
	StatusErrorStatus
	StatusErrorConnection
	StatusErrorWish
	StatusErrorAmount
	StatusErrorBlock
	StatusErrorSection
	StatusErrorPart
	StatusErrorIndex
	StatusErrorNewValue
	StatusErrorMessageLength
	StatusErrorWrite
	StatusErrorNotSupported
	StatusErrorRead
)

func (s Status) String() string {
	switch s {
	case StatusRequest:
		return "request"
	case StatusAck:
		return "ack"
	case StatusErrorStatus:
		return "error_status"
	case StatusErrorConnection:
		return "error_connection"
	case StatusErrorWish:
		return "error_wish"
	case StatusErrorAmount:
		return "error_amount"
	case StatusErrorBlock:
		return "error_block"
	case StatusErrorSection:
		return "error_section"
	case StatusErrorPart:
		return "error_part"
	case StatusErrorIndex:
		return "error_index"
	case StatusErrorNewValue:
		return "error_new_value"
	case StatusErrorMessageLength:
		return "error_message_length"
	case StatusErrorWrite:
		return "error_write"
	case StatusErrorNotSupported:
		return "error_not_supported"
	case StatusErrorRead:
		return "error_read"
	default:
		return "unknown"
	}
}

// userError reports whether s is caused by the addressed cell rather than
// the frame. These are suppressed in user-error ignore mode.
func (s Status) userError() bool {
	switch s {
	case StatusErrorIndex,
		StatusErrorPart,
		StatusErrorNewValue,
		StatusErrorWrite,
		StatusErrorNotSupported,
		StatusErrorRead:
		return true
	default:
		return false
	}
}

// Wish selects the operation of a standard request.
type Wish uint8

const (
	WishGet Wish = iota
	WishSet
	WishBackup
)

// Amount selects a single value or a whole part.
type Amount uint8

const (
	AmountSingle Amount = iota
	AmountAll
)

// Special request codes. They share the frame layout of custom requests.
const (
	SpecialConnClose         uint8 = 0x00
	SpecialConnOpen          uint8 = 0x01
	SpecialBytesPerValue     uint8 = 0x02
	SpecialParamsPerMessage  uint8 = 0x03
	SpecialConnOpenSilent    uint8 = 0x04
	SpecialConnSilentDisable uint8 = 0x05
)

const (
	// ValuesPerPart is the number of values carried by one ALL frame.
	ValuesPerPart = 32

	// AllParts requests every part of a section in one go.
	AllParts = 0x7F

	// BytesPerValue is the width of every value on the wire.
	BytesPerValue = 2

	frameStart = 0xF0
	frameEnd   = 0xF7
)

// Byte offsets within a frame.
const (
	posStatus  = 4
	posPart    = 5
	posWish    = 6
	posAmount  = 7
	posBlock   = 8
	posSection = 9
	posIndexH  = 10
	posIndexL  = 11
	posValue   = 12

	specialRequestSize = 8
	headerSize         = posValue
	minRequestSize     = headerSize + 1
	singleSetSize      = headerSize + BytesPerValue + 1
)

// ManufacturerID is the three byte SysEx id every frame carries.
type ManufacturerID [3]byte

// CustomRequest registers a custom request code.
type CustomRequest struct {
	Code               uint8
	RequiresConnection bool
}
