package modbus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestFrameEncode(t *testing.T) {
	f := ReadInputRegistersRequest(1, 0x0010, 4)
	f.TransactionID = 0x0102

	want := []byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x04, 0x00, 0x10, 0x00, 0x04}
	if got := f.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode = % X, want % X", got, want)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x00, 0x01, 0x00}},
		{"protocol id", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x04}},
		{"length", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseResponses(t *testing.T) {
	registers := &Frame{FunctionCode: FuncCodeReadInputRegisters, Data: []byte{0x04, 0x01, 0xFF, 0x0F, 0xFF}}
	values, err := registers.ParseRegisterResponse(2)
	if err != nil || len(values) != 2 || values[0] != 0x01FF || values[1] != 0x0FFF {
		t.Errorf("registers = %v, %v", values, err)
	}
	if _, err := registers.ParseRegisterResponse(3); err == nil {
		t.Error("short register response accepted")
	}

	inputs := &Frame{FunctionCode: FuncCodeReadDiscreteInputs, Data: []byte{0x02, 0x05, 0x01}}
	bits, err := inputs.ParseBitResponse(9)
	want := []bool{true, false, true, false, false, false, false, false, true}
	if err != nil || len(bits) != len(want) {
		t.Fatalf("bits = %v, %v", bits, err)
	}
	for i := range want {
		if bits[i] != want[i] {
			t.Errorf("bit %d = %v", i, bits[i])
		}
	}

	exception := &Frame{FunctionCode: FuncCodeReadInputRegisters | exceptionFlag, Data: []byte{0x02}}
	_, err = exception.ParseRegisterResponse(1)
	var exc *ExceptionError
	if !errors.As(err, &exc) || exc.Code != 0x02 || exc.FunctionCode != FuncCodeReadInputRegisters {
		t.Errorf("exception = %v", err)
	}
}

// fakeCoupler answers input register and discrete input reads.
type fakeCoupler struct {
	listener  net.Listener
	registers []uint16
	inputs    []bool
}

func startCoupler(t *testing.T, registers []uint16, inputs []bool) *fakeCoupler {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := &fakeCoupler{listener: l, registers: registers, inputs: inputs}
	t.Cleanup(func() { l.Close() })

	go c.serve()
	return c
}

func (c *fakeCoupler) serve() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		go c.handle(conn)
	}
}

func (c *fakeCoupler) handle(conn net.Conn) {
	defer conn.Close()

	for {
		req := make([]byte, 12)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}

		start := int(binary.BigEndian.Uint16(req[8:10]))
		quantity := int(binary.BigEndian.Uint16(req[10:12]))

		var data []byte
		switch req[7] {
		case FuncCodeReadInputRegisters:
			data = []byte{byte(quantity * 2)}
			for i := 0; i < quantity; i++ {
				data = binary.BigEndian.AppendUint16(data, c.registers[start+i])
			}
		case FuncCodeReadDiscreteInputs:
			packed := make([]byte, (quantity+7)/8)
			for i := 0; i < quantity; i++ {
				if c.inputs[start+i] {
					packed[i/8] |= 1 << uint(i%8)
				}
			}
			data = append([]byte{byte(len(packed))}, packed...)
		}

		resp := &Frame{
			TransactionID: binary.BigEndian.Uint16(req[0:2]),
			UnitID:        req[6],
			FunctionCode:  req[7],
			Data:          data,
		}
		if _, err := conn.Write(resp.Encode()); err != nil {
			return
		}
	}
}

func TestClientReads(t *testing.T) {
	coupler := startCoupler(t, []uint16{10, 20, 30}, []bool{false, true, true})

	client := NewClient(coupler.listener.Addr().String(), time.Second)
	if err := client.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	values, err := client.ReadInputRegisters(t.Context(), 1, 1, 2)
	if err != nil || len(values) != 2 || values[0] != 20 || values[1] != 30 {
		t.Errorf("ReadInputRegisters = %v, %v", values, err)
	}

	states, err := client.ReadDiscreteInputs(t.Context(), 1, 0, 3)
	if err != nil || len(states) != 3 || states[0] || !states[1] || !states[2] {
		t.Errorf("ReadDiscreteInputs = %v, %v", states, err)
	}

	if _, err := client.ReadInputRegisters(t.Context(), 1, 0, 0); err == nil {
		t.Error("zero quantity accepted")
	}
}

func TestBoardPoll(t *testing.T) {
	coupler := startCoupler(t, []uint16{0, 0, 512, 1023}, []bool{true, false})

	board := NewBoard(BoardConfig{
		Address:      coupler.listener.Addr().String(),
		UnitID:       1,
		AnalogStart:  2,
		AnalogCount:  2,
		DigitalStart: 0,
		DigitalCount: 2,
		Timeout:      time.Second,
		PollInterval: time.Hour,
	}, zaptest.NewLogger(t))

	if err := board.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer board.Close()

	if err := board.poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	board.Update()

	if v, ok := board.Value(0); !ok || v != 512 {
		t.Errorf("analog 0 = %d, %v", v, ok)
	}
	if v, ok := board.Value(1); !ok || v != 1023 {
		t.Errorf("analog 1 = %d, %v", v, ok)
	}
	if count, states, ok := board.State(0); !ok || count != 1 || states != 1 {
		t.Errorf("digital 0 = %d, %d, %v", count, states, ok)
	}
	if count, states, ok := board.State(1); !ok || count != 1 || states != 0 {
		t.Errorf("digital 1 = %d, %d, %v", count, states, ok)
	}
}

func TestBoardInitFailsWithoutCoupler(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	board := NewBoard(BoardConfig{Address: addr, Timeout: 200 * time.Millisecond, PollInterval: time.Hour}, zaptest.NewLogger(t))
	if err := board.Init(); err == nil {
		board.Close()
		t.Fatal("Init succeeded without coupler")
	}
}
