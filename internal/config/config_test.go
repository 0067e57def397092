package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 50051 {
		t.Errorf("ports = %d/%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.Runtime.TickInterval != time.Millisecond {
		t.Errorf("tick interval = %v", cfg.Runtime.TickInterval)
	}
	if cfg.Storage.Backend != StorageMemory || cfg.Hardware.Backend != HardwareVirtual {
		t.Errorf("backends = %q/%q", cfg.Storage.Backend, cfg.Hardware.Backend)
	}
	if got := cfg.MIDI.ManufacturerBytes(); got != [3]uint8{0x00, 0x53, 0x43} {
		t.Errorf("manufacturer id = % X", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
runtime:
  tick_interval: 2ms
  max_updates_per_run: 8
hardware:
  backend: modbus
  modbus_address: 10.0.0.5:502
midi:
  manufacturer_id: [1, 2, 3]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Runtime.TickInterval != 2*time.Millisecond || cfg.Runtime.MaxUpdatesPerRun != 8 {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Hardware.Backend != HardwareModbus || cfg.Hardware.ModbusAddress != "10.0.0.5:502" {
		t.Errorf("hardware = %+v", cfg.Hardware)
	}
	if cfg.Hardware.ModbusTimeout != time.Second {
		t.Errorf("default modbus timeout lost: %v", cfg.Hardware.ModbusTimeout)
	}
	if got := cfg.MIDI.ManufacturerBytes(); got != [3]uint8{1, 2, 3} {
		t.Errorf("manufacturer id = % X", got)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OCC_SERVER_HTTP_PORT", "7070")
	t.Setenv("OCC_STORAGE_BACKEND", StoragePostgres)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("http port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Storage.Backend != StoragePostgres {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"storage backend", "storage:\n  backend: sqlite\n"},
		{"hardware backend", "hardware:\n  backend: serial\n"},
		{"manufacturer length", "midi:\n  manufacturer_id: [1, 2]\n"},
		{"manufacturer range", "midi:\n  manufacturer_id: [1, 2, 200]\n"},
		{"tick interval", "runtime:\n  tick_interval: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Database: "occ", User: "u", Password: "p"}
	if got, want := db.DSN(), "postgres://u:p@db:5433/occ?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestJWTSecret(t *testing.T) {
	auth := AuthConfig{JWTSecretEnv: "OCC_TEST_SECRET"}

	t.Setenv("OCC_TEST_SECRET", "")
	if auth.IsProductionReady() {
		t.Error("development fallback reported production ready")
	}

	t.Setenv("OCC_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	if !auth.IsProductionReady() {
		t.Error("32 byte secret not production ready")
	}
}
