// Package virtual provides a hardware board driven entirely by API calls.
package virtual

import (
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenControllerCore/internal/hwa"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"go.uber.org/zap"
)

// Board is an in-memory board. Inputs are injected with SetAnalog and
// SetDigital from any goroutine and picked up on the next loop tick.
type Board struct {
	*hwa.Samples

	logger   *zap.Logger
	mu       sync.Mutex
	updates  uint64
	onReboot func(system.RebootTarget)
}

func NewBoard(analog, digital int, logger *zap.Logger) *Board {
	return &Board{
		Samples: hwa.NewSamples(analog, digital),
		logger:  logger,
	}
}

// OnReboot installs a callback invoked for reboot requests.
func (b *Board) OnReboot(fn func(system.RebootTarget)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReboot = fn
}

func (b *Board) Init() error {
	b.logger.Info("Virtual board initialized",
		zap.Int("analog", b.AnalogCount()),
		zap.Int("digital", b.DigitalCount()))
	return nil
}

func (b *Board) Update() {
	b.mu.Lock()
	b.updates++
	b.mu.Unlock()
}

// Updates returns the number of loop ticks seen.
func (b *Board) Updates() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updates
}

func (b *Board) Reboot(target system.RebootTarget) {
	b.mu.Lock()
	fn := b.onReboot
	b.mu.Unlock()

	b.logger.Info("Reboot requested", zap.Stringer("target", target))
	if fn != nil {
		fn(target)
	}
}

// SetAnalog injects a raw ADC sample.
func (b *Board) SetAnalog(index int, value uint16) error {
	if !b.PutAnalog(index, value) {
		return fmt.Errorf("%w: analog %d (0..%d)", hwa.ErrInputRange, index, b.AnalogCount()-1)
	}
	return nil
}

// SetDigital injects one digital reading.
func (b *Board) SetDigital(index int, pressed bool) error {
	if !b.PutDigital(index, pressed) {
		return fmt.Errorf("%w: digital %d (0..%d)", hwa.ErrInputRange, index, b.DigitalCount()-1)
	}
	return nil
}
