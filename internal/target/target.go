// Package target loads hardware target definitions: component counts,
// firmware identity and the input filter profile of a controller build.
package target

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/target-v1.json
var targetSchemaJSON string

// Analog filter profiles
const (
	FilterHardware    = "hardware"
	FilterPassthrough = "passthrough"
)

type Definition struct {
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	FirmwareVersion  [3]uint8   `json:"firmware_version"`
	HardwareUID      uint32     `json:"hardware_uid"`
	SupportedPresets int        `json:"supported_presets"`
	Components       Components `json:"components"`
	Analog           Analog     `json:"analog"`
	Digital          Digital    `json:"digital"`
	Modbus           Modbus     `json:"modbus"`
}

type Components struct {
	DigitalInputs int `json:"digital_inputs"`
	AnalogInputs  int `json:"analog_inputs"`
	Touchscreen   int `json:"touchscreen,omitempty"`
	SysExMacros   int `json:"sysex_macros,omitempty"`
}

type Analog struct {
	Filter  string `json:"filter,omitempty"`
	ADCBits int    `json:"adc_bits,omitempty"`
	Median  bool   `json:"median,omitempty"`
	EMA     bool   `json:"ema,omitempty"`
}

type Digital struct {
	Debounce *bool `json:"debounce,omitempty"`
}

// Modbus maps inputs onto coupler addresses for the modbus hardware backend.
type Modbus struct {
	UnitID       uint8  `json:"unit_id"`
	AnalogStart  uint16 `json:"analog_start"`
	DigitalStart uint16 `json:"digital_start"`
}

// Sizes returns the component counts as used by the config layout.
func (d *Definition) Sizes() sysconfig.Sizes {
	return sysconfig.Sizes{
		DigitalInputs: d.Components.DigitalInputs,
		AnalogInputs:  d.Components.AnalogInputs,
		Touchscreen:   d.Components.Touchscreen,
		SysExMacros:   d.Components.SysExMacros,
	}
}

// Debounce reports whether digital inputs are debounced. Defaults to true.
func (d *Definition) Debounce() bool {
	return d.Digital.Debounce == nil || *d.Digital.Debounce
}

func (d *Definition) applyDefaults() {
	if d.Analog.Filter == "" {
		d.Analog.Filter = FilterHardware
	}
	if d.Analog.ADCBits == 0 {
		d.Analog.ADCBits = 12
	}
	if d.Modbus.UnitID == 0 {
		d.Modbus.UnitID = 1
	}
}

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("target-v1.json", strings.NewReader(targetSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("target-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// Parse validates and decodes one definition.
func (v *Validator) Parse(data []byte) (*Definition, error) {
	if err := v.Validate(data); err != nil {
		return nil, err
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	def.applyDefaults()

	return &def, nil
}

type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load reads a target by file path or by name. Names are looked up as
// <name>.json in every search path.
func (l *Loader) Load(ref string) (*Definition, error) {
	if cached, ok := l.cache.Load(ref); ok {
		return cached.(*Definition), nil
	}

	var (
		data      []byte
		foundPath string
	)

	candidates := []string{ref}
	if filepath.Ext(ref) == "" {
		candidates = candidates[:0]
		for _, searchPath := range l.searchPaths {
			candidates = append(candidates, filepath.Join(searchPath, ref+".json"))
		}
	}

	for _, path := range candidates {
		b, err := os.ReadFile(path)
		if err == nil {
			data, foundPath = b, path
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("target not found: %s (searched in: %v)", ref, l.searchPaths)
	}

	def, err := l.validator.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	l.cache.Store(ref, def)

	return def, nil
}
