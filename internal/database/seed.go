package database

import (
	"fmt"
	"io"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"gopkg.in/yaml.v3"
)

// SeedFile is a YAML list of cells applied on top of the factory defaults.
//
//	cells:
//	  - preset: 0
//	    block: analog
//	    section: type
//	    index: 0
//	    value: 6
type SeedFile struct {
	Cells []SeedCell `yaml:"cells"`
}

type SeedCell struct {
	Preset  uint8  `yaml:"preset"`
	Block   string `yaml:"block"`
	Section string `yaml:"section"`
	Index   int    `yaml:"index"`
	Value   uint32 `yaml:"value"`
}

// LoadSeed decodes a seed file and writes every cell it names. Sections may
// be given by name or by number.
func (d *Database) LoadSeed(r io.Reader) (int, error) {
	var seed SeedFile
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to decode seed: %w", err)
	}

	for i, c := range seed.Cells {
		block, ok := sysconfig.ParseBlock(c.Block)
		if !ok {
			return i, fmt.Errorf("seed cell %d: unknown block %q", i, c.Block)
		}

		sec, ok := d.layout.SectionByName(block, c.Section)
		if !ok {
			return i, fmt.Errorf("seed cell %d: unknown section %q in block %s", i, c.Section, block)
		}

		if err := d.UpdatePreset(c.Preset, block, sec, c.Index, c.Value); err != nil {
			return i, fmt.Errorf("seed cell %d: %w", i, err)
		}
	}

	return len(seed.Cells), nil
}
