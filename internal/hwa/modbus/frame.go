package modbus

import (
	"encoding/binary"
	"fmt"
)

// MBAP Header (7 Bytes) + Function Code + Data
type Frame struct {
	TransactionID uint16 // Request/Response Korrelation
	ProtocolID    uint16 // Immer 0x0000 für Modbus
	Length        uint16 // Anzahl folgender Bytes
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

// Modbus Function Codes
const (
	FuncCodeReadDiscreteInputs = 0x02
	FuncCodeReadInputRegisters = 0x04

	// exceptionFlag is set on the function code of an error response.
	exceptionFlag = 0x80
)

const (
	mbapHeaderSize = 7

	// MaxFrameSize is the largest Modbus TCP ADU.
	MaxFrameSize = 260

	// MaxInputRegisters and MaxDiscreteInputs are the per-request limits.
	MaxInputRegisters = 125
	MaxDiscreteInputs = 2000
)

// Encode erstellt das komplette TCP Frame
func (f *Frame) Encode() []byte {
	// UnitID + FunctionCode + Data
	f.Length = uint16(len(f.Data) + 2)

	frame := make([]byte, mbapHeaderSize+1+len(f.Data))

	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parst ein empfangenes Frame
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < mbapHeaderSize+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if int(frame.Length) != len(data)-6 {
		return nil, fmt.Errorf("length mismatch: header %d, payload %d", frame.Length, len(data)-6)
	}

	if len(data) > mbapHeaderSize+1 {
		frame.Data = data[mbapHeaderSize+1:]
	}

	return frame, nil
}

// ExceptionError is a Modbus exception response.
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Code, e.FunctionCode)
}

// Err returns the exception carried by an error response, if any.
func (f *Frame) Err() error {
	if f.FunctionCode&exceptionFlag == 0 {
		return nil
	}
	code := uint8(0)
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &ExceptionError{FunctionCode: f.FunctionCode &^ exceptionFlag, Code: code}
}

func readRequest(function uint8, unitID uint8, startAddr, quantity uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &Frame{
		UnitID:       unitID,
		FunctionCode: function,
		Data:         data,
	}
}

// ReadInputRegistersRequest erstellt Request für Function Code 0x04
func ReadInputRegistersRequest(unitID uint8, startAddr, quantity uint16) *Frame {
	return readRequest(FuncCodeReadInputRegisters, unitID, startAddr, quantity)
}

// ReadDiscreteInputsRequest erstellt Request für Function Code 0x02
func ReadDiscreteInputsRequest(unitID uint8, startAddr, quantity uint16) *Frame {
	return readRequest(FuncCodeReadDiscreteInputs, unitID, startAddr, quantity)
}

// ParseRegisterResponse parst eine Input Register Response
func (f *Frame) ParseRegisterResponse(quantity uint16) ([]uint16, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if byteCount != int(quantity)*2 || len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data: %d bytes for %d registers", byteCount, quantity)
	}

	registers := make([]uint16, quantity)
	for i := range registers {
		offset := 1 + i*2
		registers[i] = binary.BigEndian.Uint16(f.Data[offset : offset+2])
	}

	return registers, nil
}

// ParseBitResponse parst eine Discrete Input Response (LSB zuerst)
func (f *Frame) ParseBitResponse(quantity uint16) ([]bool, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if byteCount != (int(quantity)+7)/8 || len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data: %d bytes for %d inputs", byteCount, quantity)
	}

	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = f.Data[1+i/8]&(1<<uint(i%8)) != 0
	}

	return bits, nil
}
