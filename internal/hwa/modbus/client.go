package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sendet ein Frame und wartet auf Response. Nach einem I/O Fehler
// wird die Verbindung geschlossen.
func (c *Client) SendFrame(ctx context.Context, request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("set deadline failed: %w", err)
	}

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// Header zuerst, dann der Rest laut Length Feld
	buf := make([]byte, MaxFrameSize)
	if _, err := io.ReadFull(c.conn, buf[:mbapHeaderSize]); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	length := int(binary.BigEndian.Uint16(buf[4:6]))
	if length < 2 || mbapHeaderSize-1+length > MaxFrameSize {
		c.closeLocked()
		return nil, fmt.Errorf("invalid frame length %d", length)
	}

	total := mbapHeaderSize - 1 + length
	if _, err := io.ReadFull(c.conn, buf[mbapHeaderSize:total]); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(buf[:total])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// Transaction ID prüfen
	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// ReadInputRegisters liest Input Registers (analoge Eingänge)
func (c *Client) ReadInputRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxInputRegisters {
		return nil, fmt.Errorf("invalid register quantity %d", quantity)
	}

	response, err := c.SendFrame(ctx, ReadInputRegistersRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}

	return response.ParseRegisterResponse(quantity)
}

// ReadDiscreteInputs liest digitale Eingänge
func (c *Client) ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error) {
	if quantity == 0 || quantity > MaxDiscreteInputs {
		return nil, fmt.Errorf("invalid input quantity %d", quantity)
	}

	response, err := c.SendFrame(ctx, ReadDiscreteInputsRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}

	return response.ParseBitResponse(quantity)
}
