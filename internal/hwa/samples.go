// Package hwa holds the sample buffers shared by the hardware backends.
package hwa

import (
	"errors"
	"sync"
)

// ErrInputRange is returned for an input index the board does not have.
var ErrInputRange = errors.New("input index out of range")

// MaxDigitalReadings is the depth of one digital reading batch.
const MaxDigitalReadings = 16

type analogSample struct {
	value uint16
	fresh bool
}

type digitalBatch struct {
	count  uint8
	states uint16
}

// Samples buffers readings between a producer (poller or API call) and the
// loop goroutine. Analog channels keep the newest sample; digital channels
// keep up to MaxDigitalReadings readings with the newest in bit 0.
//
// Samples is safe for concurrent use.
type Samples struct {
	mu      sync.Mutex
	analog  []analogSample
	digital []digitalBatch
}

func NewSamples(analog, digital int) *Samples {
	return &Samples{
		analog:  make([]analogSample, analog),
		digital: make([]digitalBatch, digital),
	}
}

func (s *Samples) AnalogCount() int {
	return len(s.analog)
}

func (s *Samples) DigitalCount() int {
	return len(s.digital)
}

// PutAnalog stores a new sample. It returns false for an unknown channel.
func (s *Samples) PutAnalog(index int, value uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.analog) {
		return false
	}
	s.analog[index] = analogSample{value: value, fresh: true}
	return true
}

// PutDigital appends one reading. The oldest reading is dropped once the
// batch is full.
func (s *Samples) PutDigital(index int, state bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.digital) {
		return false
	}

	b := &s.digital[index]
	b.states <<= 1
	if state {
		b.states |= 0x01
	}
	if b.count < MaxDigitalReadings {
		b.count++
	}
	return true
}

// Value returns the newest analog sample once. ok is false when nothing
// arrived since the last call.
func (s *Samples) Value(index int) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.analog) || !s.analog[index].fresh {
		return 0, false
	}
	s.analog[index].fresh = false
	return s.analog[index].value, true
}

// State drains the pending digital readings of a channel.
func (s *Samples) State(index int) (uint8, uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.digital) || s.digital[index].count == 0 {
		return 0, 0, false
	}
	b := s.digital[index]
	s.digital[index] = digitalBatch{}

	if b.count < MaxDigitalReadings {
		b.states &= 1<<b.count - 1
	}
	return b.count, b.states, true
}
