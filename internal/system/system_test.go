package system

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/global"
	"github.com/KevinKickass/OpenControllerCore/internal/io/analog"
	"github.com/KevinKickass/OpenControllerCore/internal/io/buttons"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/sysexconf"
	"github.com/KevinKickass/OpenControllerCore/internal/timing"
	"go.uber.org/zap/zaptest"
)

var testID = sysexconf.ManufacturerID{0x00, 0x53, 0x43}

const testPresets = 4

var testSizes = sysconfig.Sizes{DigitalInputs: 2, AnalogInputs: 3, SysExMacros: 1}

type fakeBoard struct {
	initErr error
	updates int
	reboots []RebootTarget
}

func (b *fakeBoard) Init() error                { return b.initErr }
func (b *fakeBoard) Update()                    { b.updates++ }
func (b *fakeBoard) Reboot(target RebootTarget) { b.reboots = append(b.reboots, target) }

type fakeAnalogHwa struct {
	samples map[int][]uint16
}

func (h *fakeAnalogHwa) Value(index int) (uint16, bool) {
	queue := h.samples[index]
	if len(queue) == 0 {
		return 0, false
	}
	h.samples[index] = queue[1:]
	return queue[0], true
}

type idleButtonHwa struct{}

func (idleButtonHwa) State(index int) (uint8, uint16, bool) { return 0, 0, false }

type fixture struct {
	system *System
	db     *database.Database
	bus    *messaging.Dispatcher
	board  *fakeBoard
	analog *fakeAnalogHwa
	clock  *timing.ManualClock
	events []messaging.Event
	progs  []messaging.Event
}

func newFixture(t *testing.T, board *fakeBoard) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	layout := sysconfig.NewLayout(testSizes)
	registry := sysconfig.NewRegistry(layout)
	bus := messaging.NewDispatcher()
	db := database.New(database.NewMemoryStorage(), layout, testPresets, logger)
	program := global.NewProgram()
	bpm := global.NewBPM()

	f := &fixture{
		db:     db,
		bus:    bus,
		board:  board,
		analog: &fakeAnalogHwa{samples: map[int][]uint16{}},
		clock:  &timing.ManualClock{},
	}

	a := analog.New(f.analog, analog.PassthroughFilter{}, db, bus, registry, testSizes.AnalogInputs, logger)
	b := buttons.New(idleButtonHwa{}, buttons.PassthroughFilter{}, db, bus, registry, program, bpm, testSizes, logger)

	f.system = New(board, Components{
		Database:   db,
		Registry:   registry,
		Dispatcher: bus,
		Analog:     a,
		Buttons:    b,
		Program:    program,
		BPM:        bpm,
	}, Info{
		ManufacturerID:  testID,
		FirmwareVersion: [3]uint8{1, 4, 2},
		HardwareUID:     0x12345678,
		Sizes:           testSizes,
	}, f.clock, logger)

	bus.Listen(messaging.EventTypeSystem, func(e messaging.Event) {
		e.SysEx = append([]byte(nil), e.SysEx...)
		f.events = append(f.events, e)
	})
	bus.Listen(messaging.EventTypeProgram, func(e messaging.Event) {
		f.progs = append(f.progs, e)
	})

	return f
}

func newInitializedFixture(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t, &fakeBoard{})
	if !f.system.Init(context.Background()) {
		t.Fatal("Init failed")
	}
	f.events = nil
	return f
}

func (f *fixture) sysex(frame []byte) {
	f.bus.Notify(messaging.EventTypeMIDIIn, messaging.Event{Message: midi.MessageSysEx, SysEx: frame})
}

func (f *fixture) responses() [][]byte {
	var out [][]byte
	for _, e := range f.events {
		if e.SystemMessage == messaging.SystemMessageSysExResponse {
			out = append(out, e.SysEx)
		}
	}
	return out
}

func (f *fixture) count(msg messaging.SystemMessage) int {
	n := 0
	for _, e := range f.events {
		if e.SystemMessage == msg {
			n++
		}
	}
	return n
}

func special(code uint8) []byte {
	return []byte{0xF0, testID[0], testID[1], testID[2], 0x00, 0x00, code, 0xF7}
}

func TestInitFailsWithoutHardware(t *testing.T) {
	f := newFixture(t, &fakeBoard{initErr: errors.New("no coupler")})

	if f.system.Init(context.Background()) {
		t.Fatal("Init succeeded without hardware")
	}
}

func TestInitAnnouncesProgramPerChannel(t *testing.T) {
	f := newInitializedFixture(t)

	if len(f.progs) != midi.MaxChannel {
		t.Fatalf("program announcements = %d, want %d", len(f.progs), midi.MaxChannel)
	}
	for i, e := range f.progs {
		if e.Channel != uint8(i+1) || e.Message != midi.MessageProgramChange {
			t.Errorf("announcement %d = %+v", i, e)
		}
	}
}

func TestRunTicksHardwareAndTasks(t *testing.T) {
	f := newInitializedFixture(t)

	f.system.ConnectionChanged()

	f.clock.Advance(ConnectionRefreshDelay - 1)
	f.system.Run()
	if f.count(messaging.SystemMessageForceIORefresh) != 0 {
		t.Fatal("refresh before delay")
	}

	f.clock.Advance(1)
	f.system.Run()
	if f.count(messaging.SystemMessageForceIORefresh) != 1 {
		t.Fatal("refresh not run after delay")
	}
	if f.board.updates != 2 {
		t.Errorf("hardware updates = %d, want 2", f.board.updates)
	}
}

func TestPresetChangeNotifiesAfterDelay(t *testing.T) {
	f := newInitializedFixture(t)

	f.bus.Notify(messaging.EventTypeSystem, messaging.Event{
		SystemMessage: messaging.SystemMessagePresetChangeDirectReq,
		Index:         1,
	})
	if f.db.Preset() != 1 {
		t.Fatalf("preset = %d, want 1", f.db.Preset())
	}

	f.clock.Advance(PresetChangeNotifyDelay - 1)
	f.system.Run()
	if f.count(messaging.SystemMessagePresetChanged) != 0 {
		t.Fatal("preset change announced early")
	}

	f.clock.Advance(1)
	f.system.Run()

	var changed *messaging.Event
	for i := range f.events {
		if f.events[i].SystemMessage == messaging.SystemMessagePresetChanged {
			changed = &f.events[i]
		}
	}
	if changed == nil || changed.Index != 1 {
		t.Fatalf("PresetChanged = %+v", changed)
	}
	if f.count(messaging.SystemMessageForceIORefresh) != 1 {
		t.Error("no forced refresh after preset change")
	}
}

func TestForcedRefreshCanBeDisabled(t *testing.T) {
	f := newInitializedFixture(t)

	if err := f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingDisableForcedRefresh, 1); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := f.db.SetPreset(2); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}

	f.clock.Advance(PresetChangeNotifyDelay)
	f.system.Run()

	if f.count(messaging.SystemMessagePresetChanged) != 1 {
		t.Error("preset change not announced")
	}
	if f.count(messaging.SystemMessageForceIORefresh) != 0 {
		t.Error("forced refresh despite setting")
	}
}

func TestPresetStepsStayInRange(t *testing.T) {
	f := newInitializedFixture(t)

	f.bus.Notify(messaging.EventTypeSystem, messaging.Event{SystemMessage: messaging.SystemMessagePresetChangeDecReq})
	if f.db.Preset() != 0 {
		t.Fatalf("preset = %d after dec at 0", f.db.Preset())
	}

	for i := 0; i < testPresets+2; i++ {
		f.bus.Notify(messaging.EventTypeSystem, messaging.Event{SystemMessage: messaging.SystemMessagePresetChangeIncReq})
	}
	if f.db.Preset() != testPresets-1 {
		t.Fatalf("preset = %d, want %d", f.db.Preset(), testPresets-1)
	}
}

func TestProgramChangeSwitchesPreset(t *testing.T) {
	f := newInitializedFixture(t)
	programChange := messaging.Event{Message: midi.MessageProgramChange, Channel: 1, Index: 2}

	f.bus.Notify(messaging.EventTypeMIDIIn, programChange)
	if f.db.Preset() != 0 {
		t.Fatal("program change switched preset while disabled")
	}

	if err := f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPresetChangeWithProgramChange, 1); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	f.bus.Notify(messaging.EventTypeMIDIIn, programChange)
	if f.db.Preset() != 2 {
		t.Fatalf("preset = %d, want 2", f.db.Preset())
	}
}

func TestGlobalConfig(t *testing.T) {
	f := newInitializedFixture(t)

	if err := f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingActivePreset, 3); err != nil {
		t.Fatalf("set active preset: %v", err)
	}
	if got, _ := f.system.GetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingActivePreset); got != 3 {
		t.Errorf("active preset = %d, want 3", got)
	}

	err := f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingActivePreset, testPresets)
	if !errors.Is(err, sysconfig.ErrInvalidValue) {
		t.Errorf("out of range preset error = %v", err)
	}

	if _, err := f.system.GetConfig(sysconfig.BlockGlobal, sysconfig.GlobalCalibration, sysconfig.CalibrationPitchBendCenterCapture); !errors.Is(err, sysconfig.ErrNotSupported) {
		t.Errorf("calibration get error = %v", err)
	}

	f.events = nil
	if err := f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendDeadzone, 500); err != nil {
		t.Fatalf("set deadzone: %v", err)
	}

	if len(f.events) != 1 || f.events[0].SystemMessage != messaging.SystemMessageConfigurationChanged {
		t.Fatalf("events = %+v", f.events)
	}
	if e := f.events[0]; e.Index != sysconfig.SystemSettingPitchBendDeadzone || e.Value != 500 {
		t.Errorf("ConfigurationChanged = %+v", e)
	}
}

func TestPitchBendCenterCapture(t *testing.T) {
	f := newInitializedFixture(t)

	capture := func() error {
		return f.system.SetConfig(sysconfig.BlockGlobal, sysconfig.GlobalCalibration, sysconfig.CalibrationPitchBendCenterCapture, 1)
	}

	if err := capture(); !errors.Is(err, sysconfig.ErrNotSupported) {
		t.Fatalf("capture without pitch bend input = %v", err)
	}

	settings := map[uint8]uint32{
		sysconfig.AnalogEnable:     1,
		sysconfig.AnalogType:       uint32(analog.TypePitchBend),
		sysconfig.AnalogUpperLimit: midi.MaxValue14Bit,
	}
	for section, value := range settings {
		if err := f.db.Update(sysconfig.BlockAnalog, section, 1, value); err != nil {
			t.Fatalf("configure: %v", err)
		}
	}

	if err := capture(); !errors.Is(err, sysconfig.ErrNotSupported) {
		t.Fatalf("capture before first reading = %v", err)
	}

	f.analog.samples[1] = []uint16{9000}
	f.system.Run() // buttons
	f.system.Run() // analog

	if err := capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}

	got := f.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendCenter)
	if got != 9000 {
		t.Errorf("stored center = %d, want 9000", got)
	}
}

func TestCustomRequests(t *testing.T) {
	f := newInitializedFixture(t)

	f.sysex(special(RequestMaxComponents))
	resp := f.responses()
	if len(resp) != 1 || sysexconf.Status(resp[0][4]) != sysexconf.StatusErrorConnection {
		t.Fatalf("unconnected MaxComponents = % X", resp)
	}

	f.sysex(special(sysexconf.SpecialConnOpen))

	tests := []struct {
		name   string
		code   uint8
		values []byte
	}{
		{"firmware version", RequestFirmwareVersion, []byte{0, 1, 0, 4, 0, 2}},
		{"hardware uid", RequestHardwareUID, []byte{0, 0x12, 0, 0x34, 0, 0x56, 0, 0x78}},
		{"max components", RequestMaxComponents, []byte{0, 5, 0, 0, 0, 3, 0, 0, 0, 0}},
		{"supported presets", RequestSupportedPresets, []byte{0, testPresets}},
		{"bootloader support", RequestBootloaderSupport, []byte{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.events = nil
			f.sysex(special(tt.code))

			want := []byte{0xF0, testID[0], testID[1], testID[2], byte(sysexconf.StatusAck), 0x00, tt.code}
			want = append(want, tt.values...)
			want = append(want, 0xF7)

			resp := f.responses()
			if len(resp) != 1 || !bytes.Equal(resp[0], want) {
				t.Errorf("response = % X, want % X", resp, want)
			}
		})
	}
}

func TestRebootRequests(t *testing.T) {
	f := newInitializedFixture(t)
	f.sysex(special(sysexconf.SpecialConnOpen))

	f.sysex(special(RequestRebootBootloader))
	f.sysex(special(RequestRebootApp))

	if len(f.board.reboots) != 2 || f.board.reboots[0] != RebootBootloader || f.board.reboots[1] != RebootApplication {
		t.Errorf("reboots = %v", f.board.reboots)
	}
}

func TestFactoryResetRequest(t *testing.T) {
	f := newInitializedFixture(t)
	f.sysex(special(sysexconf.SpecialConnOpen))

	if err := f.system.SetConfig(sysconfig.BlockButtons, sysconfig.ButtonMIDIID, 1, 42); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	f.events = nil
	f.sysex(special(RequestFactoryReset))

	if got := f.db.ReadValue(sysconfig.BlockButtons, sysconfig.ButtonMIDIID, 1); got != 1 {
		t.Errorf("MIDI ID after reset = %d, want 1", got)
	}
	if f.count(messaging.SystemMessageFactoryResetStart) != 1 || f.count(messaging.SystemMessageFactoryResetEnd) != 1 {
		t.Errorf("factory reset events missing: %+v", f.events)
	}

	resp := f.responses()
	if len(resp) != 1 || sysexconf.Status(resp[0][4]) != sysexconf.StatusAck {
		t.Errorf("response = % X", resp)
	}
}

func TestRestoreMarkers(t *testing.T) {
	f := newInitializedFixture(t)
	f.sysex(special(sysexconf.SpecialConnOpen))

	f.sysex(special(RequestRestoreStart))
	if f.system.State() != StateRestore {
		t.Fatalf("state = %s, want RESTORE", f.system.State())
	}
	if f.count(messaging.SystemMessageRestoreStart) != 1 {
		t.Error("RestoreStart not published")
	}

	// Preset changes during restore are not announced
	if err := f.db.SetPreset(1); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}
	f.clock.Advance(PresetChangeNotifyDelay)
	f.system.Run()
	if f.count(messaging.SystemMessagePresetChanged) != 0 {
		t.Error("preset change announced during restore")
	}

	f.sysex(special(RequestFullBackup))
	if f.system.State() != StateRestore {
		t.Error("backup started during restore")
	}

	f.sysex(special(RequestRestoreEnd))
	if f.system.State() != StateNone {
		t.Fatalf("state = %s, want NONE", f.system.State())
	}
	if f.count(messaging.SystemMessageRestoreEnd) != 1 || f.count(messaging.SystemMessageForceIORefresh) != 1 {
		t.Errorf("restore end events: %+v", f.events)
	}
}

func TestBackupOverSysEx(t *testing.T) {
	f := newInitializedFixture(t)
	f.sysex(special(sysexconf.SpecialConnOpen))
	f.events = nil

	f.sysex(special(RequestFullBackup))

	if f.system.State() != StateNone {
		t.Fatalf("state = %s after backup", f.system.State())
	}
	if f.count(messaging.SystemMessageBackup) != 1 {
		t.Error("Backup not published")
	}

	resp := f.responses()
	if len(resp) < 3 {
		t.Fatalf("responses = %d", len(resp))
	}

	first := []byte{0xF0, testID[0], testID[1], testID[2], 0x00, 0x00, RequestRestoreStart, 0xF7}
	if !bytes.Equal(resp[0], first) {
		t.Errorf("first frame = % X, want % X", resp[0], first)
	}

	last := []byte{0xF0, testID[0], testID[1], testID[2], 0x01, 0x00, RequestFullBackup, 0xF7}
	if !bytes.Equal(resp[len(resp)-1], last) {
		t.Errorf("last frame = % X, want % X", resp[len(resp)-1], last)
	}

	for _, frame := range resp[1 : len(resp)-1] {
		if sysexconf.Status(frame[4]) != sysexconf.StatusRequest {
			t.Errorf("frame % X is not a replayable request", frame)
		}
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := newInitializedFixture(t)

	set := func(block sysconfig.Block, section uint8, index int, value uint16) {
		t.Helper()
		if err := src.system.SetConfig(block, section, index, value); err != nil {
			t.Fatalf("SetConfig %s/%d[%d]: %v", block, section, index, err)
		}
	}

	set(sysconfig.BlockButtons, sysconfig.ButtonMIDIID, 1, 42)
	set(sysconfig.BlockButtons, sysconfig.ButtonType, 4, 1)
	set(sysconfig.BlockAnalog, sysconfig.AnalogUpperLimit, 2, 1000)
	set(sysconfig.BlockAnalog, sysconfig.AnalogType, 0, uint16(analog.TypePitchBend))
	set(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendDeadzone, 300)
	set(sysconfig.BlockGlobal, sysconfig.GlobalMIDISettings, sysconfig.MIDISettingGlobalChannel, 5)

	for _, cell := range []struct {
		preset  uint8
		block   sysconfig.Block
		section uint8
		index   int
		value   uint32
	}{
		{1, sysconfig.BlockButtons, sysconfig.ButtonValue, 0, 12},
		{1, sysconfig.BlockButtons, sysconfig.ButtonSysExMacroData, 3, 0x55},
		{3, sysconfig.BlockAnalog, sysconfig.AnalogLowerOffset, 1, 7},
	} {
		if err := src.db.UpdatePreset(cell.preset, cell.block, cell.section, cell.index, cell.value); err != nil {
			t.Fatalf("UpdatePreset: %v", err)
		}
	}

	if err := src.db.SetPreset(2); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}

	var frames [][]byte
	if err := src.system.Backup(func(frame []byte) { frames = append(frames, frame) }); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if src.db.Preset() != 2 {
		t.Errorf("source preset after backup = %d, want 2", src.db.Preset())
	}

	dst := newInitializedFixture(t)
	zeroStore(t, dst.db)

	applied, err := dst.system.Restore(frames)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if applied != len(frames)-1 {
		t.Errorf("applied = %d, want %d", applied, len(frames)-1)
	}
	if dst.system.State() != StateNone {
		t.Errorf("state after restore = %s", dst.system.State())
	}
	if dst.db.Preset() != 2 {
		t.Errorf("restored preset = %d, want 2", dst.db.Preset())
	}

	layout := sysconfig.NewLayout(testSizes)
	for preset := uint8(0); preset < testPresets; preset++ {
		for block := sysconfig.Block(0); block < sysconfig.BlockCount; block++ {
			for section := 0; section < layout.Sections(block); section++ {
				desc, _ := layout.Section(block, uint8(section))
				if desc.Reserved || desc.Transient {
					continue
				}

				for index := 0; index < desc.Count; index++ {
					want, _ := src.db.ReadPreset(preset, block, uint8(section), index)
					got, _ := dst.db.ReadPreset(preset, block, uint8(section), index)
					if got != want {
						t.Errorf("preset %d %s/%s[%d] = %d, want %d", preset, block, desc.Name, index, got, want)
					}
				}
			}
		}
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateNone, StateBackup, true},
		{StateNone, StateRestore, true},
		{StateRestore, StateNone, true},
		{StateBackup, StateNone, true},
		{StateBackup, StateRestore, false},
		{StateRestore, StateBackup, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v", tt.from, tt.to, err)
		}
	}
}

// zeroStore clears every persisted cell so restored values cannot pass as
// factory defaults.
func zeroStore(t *testing.T, db *database.Database) {
	t.Helper()

	layout := sysconfig.NewLayout(testSizes)
	for preset := uint8(0); preset < testPresets; preset++ {
		for block := sysconfig.Block(0); block < sysconfig.BlockCount; block++ {
			for section := 0; section < layout.Sections(block); section++ {
				desc, _ := layout.Section(block, uint8(section))
				if desc.Reserved || desc.Transient {
					continue
				}
				for index := 0; index < desc.Count; index++ {
					if err := db.UpdatePreset(preset, block, uint8(section), index, 0); err != nil {
						t.Fatalf("zero %s/%s[%d]: %v", block, desc.Name, index, err)
					}
				}
			}
		}
	}
}
