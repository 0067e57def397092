package lifecycle

import (
	"context"

	"github.com/KevinKickass/OpenControllerCore/internal/interfaces"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
)

var _ interfaces.Controller = (*Manager)(nil)

func (m *Manager) Status(ctx context.Context) (system.Status, error) {
	var status system.Status
	err := m.Do(ctx, func() {
		status = m.system.Status()
	})
	return status, err
}

func (m *Manager) Layout() sysconfig.Layout {
	return m.registry.Layout()
}

func (m *Manager) GetConfig(ctx context.Context, block sysconfig.Block, section uint8, index int) (uint16, error) {
	var (
		value  uint16
		getErr error
	)
	if err := m.Do(ctx, func() {
		value, getErr = m.system.GetConfig(block, section, index)
	}); err != nil {
		return 0, err
	}
	return value, getErr
}

func (m *Manager) SetConfig(ctx context.Context, block sysconfig.Block, section uint8, index int, value uint16) error {
	var setErr error
	if err := m.Do(ctx, func() {
		setErr = m.system.SetConfig(block, section, index, value)
	}); err != nil {
		return err
	}
	return setErr
}

// Backup captures the full stream in one loop call, so no tick can
// interleave component updates with the stream.
func (m *Manager) Backup(ctx context.Context) ([][]byte, error) {
	var (
		frames    [][]byte
		backupErr error
	)
	if err := m.Do(ctx, func() {
		backupErr = m.system.Backup(func(frame []byte) {
			frames = append(frames, frame)
		})
	}); err != nil {
		return nil, err
	}
	if backupErr != nil {
		return nil, backupErr
	}
	return frames, nil
}

func (m *Manager) Restore(ctx context.Context, frames [][]byte) (int, error) {
	var (
		applied    int
		restoreErr error
	)
	if err := m.Do(ctx, func() {
		applied, restoreErr = m.system.Restore(frames)
	}); err != nil {
		return 0, err
	}
	return applied, restoreErr
}

func (m *Manager) SysEx(ctx context.Context, frame []byte) ([][]byte, error) {
	var (
		responses [][]byte
		handled   bool
	)
	if err := m.Do(ctx, func() {
		m.capture = &responses
		defer func() { m.capture = nil }()
		handled = m.system.HandleSysEx(frame)
	}); err != nil {
		return nil, err
	}
	if !handled && len(responses) == 0 {
		return nil, ErrFrameIgnored
	}
	return responses, nil
}

// SetAnalogInput injects a sample. It is safe without the loop: the board
// buffers it until the next tick.
func (m *Manager) SetAnalogInput(index int, value uint16) error {
	if m.virtual == nil {
		return ErrNoVirtualInputs
	}
	return m.virtual.SetAnalog(index, value)
}

func (m *Manager) SetDigitalInput(index int, pressed bool) error {
	if m.virtual == nil {
		return ErrNoVirtualInputs
	}
	return m.virtual.SetDigital(index, pressed)
}
