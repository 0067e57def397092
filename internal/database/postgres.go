package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/config"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	writeQueueSize = 8192
	writeBatchSize = 256
	flushInterval  = 50 * time.Millisecond
)

type writeOp struct {
	clear bool
	cell  Cell
}

// PostgresStorage persists cells in the config_cells table. Writes are
// queued and applied by a background goroutine so the control loop never
// waits on the database.
type PostgresStorage struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	queue    chan writeOp
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS config_cells (
			preset     SMALLINT    NOT NULL,
			block      SMALLINT    NOT NULL,
			section    SMALLINT    NOT NULL,
			idx        INTEGER     NOT NULL,
			value      BIGINT      NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (preset, block, section, idx)
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create config_cells table: %w", err)
	}

	s := &PostgresStorage{
		pool:     pool,
		logger:   logger,
		queue:    make(chan writeOp, writeQueueSize),
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *PostgresStorage) Load(ctx context.Context) ([]Cell, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT preset, block, section, idx, value
		FROM config_cells
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	cells := make([]Cell, 0)
	for rows.Next() {
		var preset, block, section int16
		var index int32
		var value int64

		if err := rows.Scan(&preset, &block, &section, &index, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}

		cells = append(cells, Cell{
			Key: Key{
				Preset:  uint8(preset),
				Block:   sysconfig.Block(block),
				Section: uint8(section),
				Index:   uint16(index),
			},
			Value: uint32(value),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cells: %w", err)
	}

	return cells, nil
}

func (s *PostgresStorage) Store(cell Cell) error {
	return s.enqueue(writeOp{cell: cell})
}

func (s *PostgresStorage) Clear(ctx context.Context) error {
	return s.enqueue(writeOp{clear: true})
}

func (s *PostgresStorage) enqueue(op writeOp) error {
	select {
	case s.queue <- op:
		return nil
	default:
		return fmt.Errorf("write queue full (%d pending)", len(s.queue))
	}
}

// Close flushes pending writes and closes the pool.
func (s *PostgresStorage) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.pool.Close()
	})
	return nil
}

func (s *PostgresStorage) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := make([]writeOp, 0, writeBatchSize)

	for {
		select {
		case op := <-s.queue:
			pending = append(pending, op)
			if len(pending) >= writeBatchSize {
				pending = s.flush(pending)
			}

		case <-ticker.C:
			if len(pending) > 0 {
				pending = s.flush(pending)
			}

		case <-s.stopChan:
			// Restliche Queue leeren
			for {
				select {
				case op := <-s.queue:
					pending = append(pending, op)
				default:
					s.flush(pending)
					return
				}
			}
		}
	}
}

func (s *PostgresStorage) flush(ops []writeOp) []writeOp {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, op := range ops {
		if op.clear {
			batch.Queue(`DELETE FROM config_cells`)
			continue
		}

		batch.Queue(`
			INSERT INTO config_cells (preset, block, section, idx, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (preset, block, section, idx)
			DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, int16(op.cell.Preset), int16(op.cell.Block), int16(op.cell.Section), int32(op.cell.Index), int64(op.cell.Value))
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		s.logger.Error("Failed to persist config cells",
			zap.Int("operations", len(ops)),
			zap.Error(err))
	}

	return ops[:0]
}
