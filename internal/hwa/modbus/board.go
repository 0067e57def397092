package modbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/hwa"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"go.uber.org/zap"
)

// BoardConfig maps the controller inputs onto a Modbus/TCP I/O coupler.
type BoardConfig struct {
	Address      string
	UnitID       uint8
	AnalogStart  uint16
	AnalogCount  int
	DigitalStart uint16
	DigitalCount int
	Timeout      time.Duration
	PollInterval time.Duration
}

// Board samples analog inputs from input registers and digital inputs from
// discrete inputs. A background poller feeds the sample buffers; the loop
// goroutine drains them through Value and State.
type Board struct {
	*hwa.Samples

	cfg    BoardConfig
	client *Client
	logger *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	onReboot func(system.RebootTarget)

	// polled by the poller, reported by Update on the loop goroutine
	online       atomic.Bool
	reportOnline bool
	failures     atomic.Uint64
}

func NewBoard(cfg BoardConfig, logger *zap.Logger) *Board {
	return &Board{
		Samples:  hwa.NewSamples(cfg.AnalogCount, cfg.DigitalCount),
		cfg:      cfg,
		client:   NewClient(cfg.Address, cfg.Timeout),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// OnReboot installs a callback invoked for reboot requests. The coupler
// itself cannot reboot the controller.
func (b *Board) OnReboot(fn func(system.RebootTarget)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReboot = fn
}

// Init connects to the coupler and starts polling.
func (b *Board) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	if err := b.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to coupler %s: %w", b.cfg.Address, err)
	}
	b.online.Store(true)
	b.reportOnline = true

	b.running = true
	b.wg.Add(1)
	go b.pollLoop()

	b.logger.Info("Modbus board started",
		zap.String("address", b.cfg.Address),
		zap.Uint8("unit_id", b.cfg.UnitID),
		zap.Int("analog", b.cfg.AnalogCount),
		zap.Int("digital", b.cfg.DigitalCount),
		zap.Duration("interval", b.cfg.PollInterval))

	return nil
}

// Update reports connection changes seen by the poller.
func (b *Board) Update() {
	online := b.online.Load()
	if online == b.reportOnline {
		return
	}
	b.reportOnline = online

	if online {
		b.logger.Info("Modbus coupler reconnected", zap.String("address", b.cfg.Address))
	} else {
		b.logger.Warn("Modbus coupler offline",
			zap.String("address", b.cfg.Address),
			zap.Uint64("failures", b.failures.Load()))
	}
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

// Close stoppt das Polling und schließt die Verbindung
func (b *Board) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	b.logger.Info("Modbus board stopped", zap.String("address", b.cfg.Address))
	return b.client.Close()
}

func (b *Board) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.poll(); err != nil {
				b.failures.Add(1)
				b.online.Store(false)
				b.logger.Debug("Poll failed", zap.Error(err))
				continue
			}
			b.online.Store(true)
		}
	}
}

func (b *Board) poll() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	if !b.client.Connected() {
		if err := b.client.Connect(ctx); err != nil {
			return err
		}
	}

	for offset := 0; offset < b.cfg.AnalogCount; offset += MaxInputRegisters {
		quantity := min(b.cfg.AnalogCount-offset, MaxInputRegisters)

		values, err := b.client.ReadInputRegisters(ctx, b.cfg.UnitID, b.cfg.AnalogStart+uint16(offset), uint16(quantity))
		if err != nil {
			return fmt.Errorf("read input registers at %d: %w", offset, err)
		}
		for i, v := range values {
			b.PutAnalog(offset+i, v)
		}
	}

	for offset := 0; offset < b.cfg.DigitalCount; offset += MaxDiscreteInputs {
		quantity := min(b.cfg.DigitalCount-offset, MaxDiscreteInputs)

		states, err := b.client.ReadDiscreteInputs(ctx, b.cfg.UnitID, b.cfg.DigitalStart+uint16(offset), uint16(quantity))
		if err != nil {
			return fmt.Errorf("read discrete inputs at %d: %w", offset, err)
		}
		for i, s := range states {
			b.PutDigital(offset+i, s)
		}
	}

	return nil
}
