package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"go.uber.org/zap/zaptest"
)

type recordingHandlers struct {
	presets      []uint8
	resetStarted int
	resetDone    int
	initialized  int
}

func (h *recordingHandlers) PresetChange(preset uint8) { h.presets = append(h.presets, preset) }
func (h *recordingHandlers) FactoryResetStart()        { h.resetStarted++ }
func (h *recordingHandlers) FactoryResetDone()         { h.resetDone++ }
func (h *recordingHandlers) Initialized()              { h.initialized++ }

func newTestDatabase(t *testing.T, storage Storage, presets int) (*Database, *recordingHandlers) {
	t.Helper()

	layout := sysconfig.NewLayout(sysconfig.Sizes{DigitalInputs: 4, AnalogInputs: 3, SysExMacros: 2})
	db := New(storage, layout, presets, zaptest.NewLogger(t))
	handlers := &recordingHandlers{}

	if err := db.Init(context.Background(), handlers); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return db, handlers
}

func TestInitAppliesFactoryDefaults(t *testing.T) {
	db, handlers := newTestDatabase(t, NewMemoryStorage(), 2)

	if handlers.resetStarted != 1 || handlers.resetDone != 1 || handlers.initialized != 1 {
		t.Fatalf("handlers = %+v, want one reset and one init", handlers)
	}

	tests := []struct {
		block   sysconfig.Block
		section uint8
		index   int
		want    uint32
	}{
		{sysconfig.BlockButtons, sysconfig.ButtonMIDIID, 3, 3},
		{sysconfig.BlockButtons, sysconfig.ButtonValue, 0, 127},
		{sysconfig.BlockButtons, sysconfig.ButtonChannel, 1, 1},
		{sysconfig.BlockAnalog, sysconfig.AnalogUpperLimit, 2, 16383},
		{sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendDeadzone, DefaultPitchBendDeadzone},
		{sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendCenter, 8192},
	}

	for _, tt := range tests {
		got, err := db.Read(tt.block, tt.section, tt.index)
		if err != nil {
			t.Fatalf("Read(%s, %d, %d): %v", tt.block, tt.section, tt.index, err)
		}
		if got != tt.want {
			t.Errorf("Read(%s, %d, %d) = %d, want %d", tt.block, tt.section, tt.index, got, tt.want)
		}
	}
}

func TestPresetsAreIsolated(t *testing.T) {
	db, handlers := newTestDatabase(t, NewMemoryStorage(), 3)

	if err := db.Update(sysconfig.BlockAnalog, sysconfig.AnalogMIDIID, 0, 42); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.SetPreset(2); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}
	if got := db.ReadValue(sysconfig.BlockAnalog, sysconfig.AnalogMIDIID, 0); got != 0 {
		t.Errorf("preset 2 MIDI ID = %d, want default 0", got)
	}

	// Preset-independent sections are shared.
	if err := db.Update(sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingGlobalChannel, 5); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := db.ReadPreset(0, sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingGlobalChannel); got != 5 {
		t.Errorf("global channel seen from preset 0 = %d, want 5", got)
	}

	if got, _ := db.ReadPreset(0, sysconfig.BlockAnalog, sysconfig.AnalogMIDIID, 0); got != 42 {
		t.Errorf("preset 0 MIDI ID = %d, want 42", got)
	}

	if err := db.SetPreset(3); !errors.Is(err, ErrInvalidPreset) {
		t.Errorf("SetPreset(3) error = %v, want ErrInvalidPreset", err)
	}
	if len(handlers.presets) != 1 || handlers.presets[0] != 2 {
		t.Errorf("preset notifications = %v, want [2]", handlers.presets)
	}
}

func TestReloadFromStorage(t *testing.T) {
	storage := NewMemoryStorage()
	db, _ := newTestDatabase(t, storage, 2)

	if err := db.Update(sysconfig.BlockButtons, sysconfig.ButtonMessageType, 1, 17); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.Update(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPresetPreserve, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.SetPreset(1); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}

	reloaded, handlers := newTestDatabase(t, storage, 2)

	if handlers.resetStarted != 0 {
		t.Errorf("reload must not factory reset")
	}
	if reloaded.Preset() != 1 {
		t.Errorf("preserved preset = %d, want 1", reloaded.Preset())
	}
	if got, _ := reloaded.ReadPreset(0, sysconfig.BlockButtons, sysconfig.ButtonMessageType, 1); got != 17 {
		t.Errorf("reloaded message type = %d, want 17", got)
	}
}

func TestLayoutChangeTriggersReset(t *testing.T) {
	storage := NewMemoryStorage()
	db, _ := newTestDatabase(t, storage, 2)
	if err := db.Update(sysconfig.BlockAnalog, sysconfig.AnalogMIDIID, 0, 99); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, handlers := newTestDatabase(t, storage, 4)
	if handlers.resetStarted != 1 {
		t.Errorf("changed preset count should factory reset")
	}
}

func TestInvalidCells(t *testing.T) {
	db, _ := newTestDatabase(t, NewMemoryStorage(), 1)

	tests := []struct {
		name    string
		block   sysconfig.Block
		section uint8
		index   int
	}{
		{"reserved", sysconfig.BlockAnalog, sysconfig.AnalogReserved1, 0},
		{"transient", sysconfig.BlockGlobal, sysconfig.GlobalCalibration, 0},
		{"index", sysconfig.BlockAnalog, sysconfig.AnalogType, 3},
		{"section", sysconfig.BlockAnalog, 42, 0},
		{"block", sysconfig.BlockCount, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Read(tt.block, tt.section, tt.index); !errors.Is(err, ErrInvalidCell) {
				t.Errorf("Read error = %v, want ErrInvalidCell", err)
			}
		})
	}
}

func TestLoadSeed(t *testing.T) {
	db, _ := newTestDatabase(t, NewMemoryStorage(), 2)

	seed := `
cells:
  - preset: 1
    block: analog
    section: type
    index: 0
    value: 6
  - preset: 0
    block: buttons
    section: "1"
    index: 2
    value: 30
`
	n, err := db.LoadSeed(strings.NewReader(seed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}

	if got, _ := db.ReadPreset(1, sysconfig.BlockAnalog, sysconfig.AnalogType, 0); got != 6 {
		t.Errorf("seeded analog type = %d, want 6", got)
	}
	if got, _ := db.ReadPreset(0, sysconfig.BlockButtons, sysconfig.ButtonMessageType, 2); got != 30 {
		t.Errorf("seeded message type = %d, want 30", got)
	}

	bad := "cells:\n  - block: nope\n    section: type\n"
	if _, err := db.LoadSeed(strings.NewReader(bad)); err == nil {
		t.Error("unknown block should fail")
	}
}
