package target

import (
	"os"
	"path/filepath"
	"testing"
)

const benchTarget = `{
  "name": "bench-12",
  "firmware_version": [1, 4, 2],
  "hardware_uid": 305419896,
  "supported_presets": 4,
  "components": {"digital_inputs": 16, "analog_inputs": 8, "sysex_macros": 4},
  "analog": {"adc_bits": 10, "median": true},
  "digital": {"debounce": false}
}`

func writeTarget(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadByName(t *testing.T) {
	dir := t.TempDir()
	writeTarget(t, dir, "bench-12.json", benchTarget)

	loader, err := NewLoader([]string{t.TempDir(), dir})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	def, err := loader.Load("bench-12")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if def.FirmwareVersion != [3]uint8{1, 4, 2} || def.HardwareUID != 0x12345678 {
		t.Errorf("identity = %v / %#x", def.FirmwareVersion, def.HardwareUID)
	}
	sizes := def.Sizes()
	if sizes.DigitalInputs != 16 || sizes.AnalogInputs != 8 || sizes.SysExMacros != 4 || sizes.Buttons() != 24 {
		t.Errorf("sizes = %+v", sizes)
	}
	if def.Analog.Filter != FilterHardware || def.Analog.ADCBits != 10 || !def.Analog.Median {
		t.Errorf("analog = %+v", def.Analog)
	}
	if def.Debounce() {
		t.Error("debounce not disabled")
	}
	if def.Modbus.UnitID != 1 {
		t.Errorf("default unit id = %d", def.Modbus.UnitID)
	}

	again, err := loader.Load("bench-12")
	if err != nil || again != def {
		t.Error("second load not served from cache")
	}
}

func TestLoadByPath(t *testing.T) {
	path := writeTarget(t, t.TempDir(), "custom.json", benchTarget)

	loader, err := NewLoader(nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := loader.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := loader.Load("missing"); err == nil {
		t.Error("missing target loaded")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing components", `{"name": "x", "firmware_version": [1, 0, 0], "hardware_uid": 1, "supported_presets": 1}`},
		{"presets", `{"name": "x", "firmware_version": [1, 0, 0], "hardware_uid": 1, "supported_presets": 0,
			"components": {"digital_inputs": 1, "analog_inputs": 1}}`},
		{"version length", `{"name": "x", "firmware_version": [1, 0], "hardware_uid": 1, "supported_presets": 1,
			"components": {"digital_inputs": 1, "analog_inputs": 1}}`},
		{"adc bits", `{"name": "x", "firmware_version": [1, 0, 0], "hardware_uid": 1, "supported_presets": 1,
			"components": {"digital_inputs": 1, "analog_inputs": 1}, "analog": {"adc_bits": 16}}`},
		{"unknown field", `{"name": "x", "firmware_version": [1, 0, 0], "hardware_uid": 1, "supported_presets": 1,
			"components": {"digital_inputs": 1, "analog_inputs": 1}, "leds": 4}`},
	}

	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Parse([]byte(tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
