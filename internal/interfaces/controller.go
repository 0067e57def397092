package interfaces

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
)

// Errors a Controller reports besides configuration errors.
var (
	ErrStopped         = errors.New("control loop not running")
	ErrNoVirtualInputs = errors.New("hardware backend has no virtual inputs")
	ErrFrameIgnored    = errors.New("sysex frame not addressed to this device")
)

// Controller is the surface the API layers drive. Every call is executed on
// the control loop goroutine; implementations block until it completed or
// ctx is done.
type Controller interface {
	Status(ctx context.Context) (system.Status, error)
	Layout() sysconfig.Layout

	GetConfig(ctx context.Context, block sysconfig.Block, section uint8, index int) (uint16, error)
	SetConfig(ctx context.Context, block sysconfig.Block, section uint8, index int, value uint16) error

	// Backup returns a replayable stream of SysEx frames.
	Backup(ctx context.Context) ([][]byte, error)
	// Restore replays a backup stream and returns the number of applied frames.
	Restore(ctx context.Context, frames [][]byte) (int, error)
	// SysEx handles one configuration frame and returns every response it caused.
	SysEx(ctx context.Context, frame []byte) ([][]byte, error)

	// Virtual inputs. They fail when the hardware backend is not virtual.
	SetAnalogInput(index int, value uint16) error
	SetDigitalInput(index int, pressed bool) error
}
