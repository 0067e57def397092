package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"go.uber.org/zap"
)

// Handlers receives lifecycle callbacks from the Database.
type Handlers interface {
	PresetChange(preset uint8)
	FactoryResetStart()
	FactoryResetDone()
	Initialized()
}

var (
	ErrInvalidPreset = errors.New("invalid preset")
	ErrInvalidCell   = errors.New("invalid cell address")
)

const (
	DefaultPitchBendDeadzone = 100
	DefaultChannel           = 1
)

type section struct {
	desc sysconfig.Section

	// values[preset][index]; preset-independent sections use only values[0].
	values [][]uint32
}

// Database is the Config Store: the single source of truth for every
// persisted setting, addressed by (block, section, index) within the active
// preset. Values live in memory and are written through to Storage.
type Database struct {
	storage  Storage
	layout   sysconfig.Layout
	presets  int
	active   uint8
	sections [sysconfig.BlockCount][]section
	handlers Handlers
	uid      uint32
	logger   *zap.Logger
}

func New(storage Storage, layout sysconfig.Layout, presets int, logger *zap.Logger) *Database {
	if presets < 1 {
		presets = 1
	}

	d := &Database{
		storage: storage,
		layout:  layout,
		presets: presets,
		logger:  logger,
	}

	for block := sysconfig.BlockGlobal; block < sysconfig.BlockCount; block++ {
		descs := layout[block]
		d.sections[block] = make([]section, len(descs))

		for i, desc := range descs {
			s := section{desc: desc}

			if !desc.Reserved && !desc.Transient {
				copies := presets
				if desc.PresetIndependent {
					copies = 1
				}

				s.values = make([][]uint32, copies)
				for p := range s.values {
					s.values[p] = make([]uint32, desc.Count)
				}
			}

			d.sections[block][i] = s
		}
	}

	d.uid = layoutUID(layout, presets)

	return d
}

// layoutUID fingerprints the persisted layout. A stored fingerprint that
// differs means the medium holds data of another layout.
func layoutUID(layout sysconfig.Layout, presets int) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "presets=%d;", presets)
	for block := range layout {
		for i, s := range layout[block] {
			fmt.Fprintf(h, "%d.%d:%d:%t:%t:%t;", block, i, s.Count, s.Reserved, s.Transient, s.PresetIndependent)
		}
	}
	return h.Sum32()
}

// Init loads persisted cells. An empty or foreign medium is factory reset.
func (d *Database) Init(ctx context.Context, handlers Handlers) error {
	d.handlers = handlers

	cells, err := d.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}

	initialized := false
	for _, cell := range cells {
		if cell.Key == layoutUIDKey && cell.Value == d.uid {
			initialized = true
			break
		}
	}

	if !initialized {
		d.logger.Info("Config store not initialized for this layout, applying factory defaults",
			zap.Uint32("layout_uid", d.uid))

		if err := d.FactoryReset(ctx); err != nil {
			return err
		}
	} else {
		d.applyDefaults()

		applied := 0
		for _, cell := range cells {
			if cell.Block == metaBlock {
				continue
			}
			if d.put(cell.Preset, cell.Block, cell.Section, int(cell.Index), cell.Value) == nil {
				applied++
			}
		}

		d.logger.Info("Config store loaded",
			zap.Int("cells", applied),
			zap.Int("presets", d.presets))
	}

	d.active = 0
	if d.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPresetPreserve) != 0 {
		preset := d.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingActivePreset)
		if int(preset) < d.presets {
			d.active = uint8(preset)
		}
	}

	if d.handlers != nil {
		d.handlers.Initialized()
	}

	return nil
}

// FactoryReset restores every cell of every preset to its default.
func (d *Database) FactoryReset(ctx context.Context) error {
	if d.handlers != nil {
		d.handlers.FactoryResetStart()
	}

	if err := d.storage.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}

	d.applyDefaults()
	d.active = 0

	if err := d.storage.Store(Cell{Key: layoutUIDKey, Value: d.uid}); err != nil {
		return fmt.Errorf("failed to store layout uid: %w", err)
	}

	if d.handlers != nil {
		d.handlers.FactoryResetDone()
	}

	return nil
}

func (d *Database) applyDefaults() {
	for block := range d.sections {
		for sec := range d.sections[block] {
			s := &d.sections[block][sec]
			for p := range s.values {
				for i := range s.values[p] {
					s.values[p][i] = defaultValue(sysconfig.Block(block), uint8(sec), i)
				}
			}
		}
	}
}

func defaultValue(block sysconfig.Block, sec uint8, index int) uint32 {
	switch block {
	case sysconfig.BlockGlobal:
		switch {
		case sec == sysconfig.GlobalSystemSettings && index == sysconfig.SystemSettingPitchBendDeadzone:
			return DefaultPitchBendDeadzone
		case sec == sysconfig.GlobalSystemSettings && index == sysconfig.SystemSettingPitchBendCenter:
			return midi.PitchBendCenter
		case sec == sysconfig.GlobalMIDISettings && index == sysconfig.MIDISettingGlobalChannel:
			return DefaultChannel
		}

	case sysconfig.BlockButtons:
		switch sec {
		case sysconfig.ButtonMIDIID:
			return uint32(index & midi.MaxValue7Bit)
		case sysconfig.ButtonValue:
			return midi.MaxValue7Bit
		case sysconfig.ButtonChannel:
			return DefaultChannel
		}

	case sysconfig.BlockAnalog:
		switch sec {
		case sysconfig.AnalogMIDIID:
			return uint32(index & midi.MaxValue7Bit)
		case sysconfig.AnalogUpperLimit:
			return midi.MaxValue14Bit
		case sysconfig.AnalogChannel:
			return DefaultChannel
		}
	}

	return 0
}

func (d *Database) cell(preset uint8, block sysconfig.Block, sec uint8, index int) (*section, int, error) {
	if block >= sysconfig.BlockCount || int(sec) >= len(d.sections[block]) {
		return nil, 0, ErrInvalidCell
	}

	s := &d.sections[block][sec]
	if s.values == nil || index < 0 || index >= s.desc.Count {
		return nil, 0, ErrInvalidCell
	}

	p := int(preset)
	if s.desc.PresetIndependent {
		p = 0
	}
	if p >= len(s.values) {
		return nil, 0, ErrInvalidPreset
	}

	return s, p, nil
}

func (d *Database) put(preset uint8, block sysconfig.Block, sec uint8, index int, value uint32) error {
	s, p, err := d.cell(preset, block, sec, index)
	if err != nil {
		return err
	}
	s.values[p][index] = value
	return nil
}

// Read returns a cell of the active preset.
func (d *Database) Read(block sysconfig.Block, sec uint8, index int) (uint32, error) {
	return d.ReadPreset(d.active, block, sec, index)
}

// ReadPreset returns a cell of an arbitrary preset.
func (d *Database) ReadPreset(preset uint8, block sysconfig.Block, sec uint8, index int) (uint32, error) {
	s, p, err := d.cell(preset, block, sec, index)
	if err != nil {
		return 0, fmt.Errorf("%s/%d[%d]: %w", block, sec, index, err)
	}
	return s.values[p][index], nil
}

// ReadValue narrows a cell of the active preset to 16 bits; invalid
// addresses read as zero.
func (d *Database) ReadValue(block sysconfig.Block, sec uint8, index int) uint16 {
	value, err := d.Read(block, sec, index)
	if err != nil {
		return 0
	}
	return uint16(value)
}

// Update writes a cell of the active preset and persists it.
func (d *Database) Update(block sysconfig.Block, sec uint8, index int, value uint32) error {
	return d.UpdatePreset(d.active, block, sec, index, value)
}

// UpdatePreset writes a cell of an arbitrary preset and persists it.
func (d *Database) UpdatePreset(preset uint8, block sysconfig.Block, sec uint8, index int, value uint32) error {
	s, p, err := d.cell(preset, block, sec, index)
	if err != nil {
		return fmt.Errorf("%s/%d[%d]: %w", block, sec, index, err)
	}

	s.values[p][index] = value

	err = d.storage.Store(Cell{
		Key: Key{
			Preset:  uint8(p),
			Block:   block,
			Section: sec,
			Index:   uint16(index),
		},
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to persist %s/%d[%d]: %w", block, sec, index, err)
	}

	return nil
}

// SetPreset activates preset and notifies the handlers.
func (d *Database) SetPreset(preset uint8) error {
	if int(preset) >= d.presets {
		return fmt.Errorf("preset %d of %d: %w", preset, d.presets, ErrInvalidPreset)
	}

	d.active = preset

	if d.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPresetPreserve) != 0 {
		if err := d.Update(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingActivePreset, uint32(preset)); err != nil {
			d.logger.Warn("Failed to persist active preset", zap.Error(err))
		}
	}

	if d.handlers != nil {
		d.handlers.PresetChange(preset)
	}

	return nil
}

// Preset returns the active preset.
func (d *Database) Preset() uint8 {
	return d.active
}

// SupportedPresets returns the number of presets.
func (d *Database) SupportedPresets() int {
	return d.presets
}

// Layout returns the section table the store was built for.
func (d *Database) Layout() sysconfig.Layout {
	return d.layout
}
