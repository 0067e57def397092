package database

import (
	"context"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
)

// Key addresses one persisted cell.
type Key struct {
	Preset  uint8
	Block   sysconfig.Block
	Section uint8
	Index   uint16
}

// Cell is a persisted value together with its address.
type Cell struct {
	Key
	Value uint32
}

// metaBlock holds bookkeeping cells outside the protocol-visible blocks.
const metaBlock sysconfig.Block = 0xFF

var layoutUIDKey = Key{Block: metaBlock}

// Storage is the persisted-value medium behind the Database. Store and
// Clear must not block the caller for I/O; implementations that talk to a
// remote medium queue the operation and apply it in order.
type Storage interface {
	Load(ctx context.Context) ([]Cell, error)
	Store(cell Cell) error
	Clear(ctx context.Context) error
	Close() error
}
