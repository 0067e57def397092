package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/global"
	"github.com/KevinKickass/OpenControllerCore/internal/io/analog"
	"github.com/KevinKickass/OpenControllerCore/internal/io/buttons"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
	"github.com/KevinKickass/OpenControllerCore/internal/scheduler"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/sysexconf"
	"github.com/KevinKickass/OpenControllerCore/internal/timing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RebootTarget selects the firmware image a reboot request starts.
type RebootTarget int

const (
	RebootApplication RebootTarget = iota
	RebootBootloader
)

func (t RebootTarget) String() string {
	if t == RebootBootloader {
		return "bootloader"
	}
	return "application"
}

// Hwa is the board-level hardware collaborator.
type Hwa interface {
	Init() error
	Update()
	Reboot(target RebootTarget)
}

// Protocol is an outbound/inbound message transport polled once per tick.
type Protocol interface {
	Init() bool
	Read()
}

// Custom request codes understood on top of the special requests.
const (
	RequestFullBackup                 uint8 = 0x1B
	RequestRestoreStart               uint8 = 0x1C
	RequestRestoreEnd                 uint8 = 0x1D
	RequestPitchBendCenterCapture     uint8 = 0x1E
	RequestHardwareUID                uint8 = 0x42
	RequestFirmwareVersionHardwareUID uint8 = 0x43
	RequestFactoryReset               uint8 = 0x44
	RequestMaxComponents              uint8 = 0x4D
	RequestSupportedPresets           uint8 = 0x50
	RequestBootloaderSupport          uint8 = 0x51
	RequestRebootBootloader           uint8 = 0x55
	RequestFirmwareVersion            uint8 = 0x56
	RequestRebootApp                  uint8 = 0x7F
)

var customRequests = []sysexconf.CustomRequest{
	{Code: RequestFirmwareVersion, RequiresConnection: false},
	{Code: RequestHardwareUID, RequiresConnection: false},
	{Code: RequestFirmwareVersionHardwareUID, RequiresConnection: false},
	{Code: RequestBootloaderSupport, RequiresConnection: false},
	{Code: RequestFactoryReset, RequiresConnection: true},
	{Code: RequestRebootApp, RequiresConnection: true},
	{Code: RequestRebootBootloader, RequiresConnection: true},
	{Code: RequestMaxComponents, RequiresConnection: true},
	{Code: RequestSupportedPresets, RequiresConnection: true},
	{Code: RequestFullBackup, RequiresConnection: true},
	{Code: RequestRestoreStart, RequiresConnection: true},
	{Code: RequestRestoreEnd, RequiresConnection: true},
	{Code: RequestPitchBendCenterCapture, RequiresConnection: true},
}

const (
	taskPreset = iota
	taskForcedRefresh
)

const (
	// PresetChangeNotifyDelay defers the preset notification so rapid
	// preset steps collapse into one refresh.
	PresetChangeNotifyDelay = 50

	// ConnectionRefreshDelay is the wait after a transport (re)connects
	// before every component re-announces its state.
	ConnectionRefreshDelay = 1500
)

// Info describes the firmware and target the orchestrator reports.
type Info struct {
	ManufacturerID   sysexconf.ManufacturerID
	FirmwareVersion  [3]uint8
	HardwareUID      uint32
	Sizes            sysconfig.Sizes
	MaxUpdatesPerRun int
}

// Components are the collaborators the orchestrator drives.
type Components struct {
	Database   *database.Database
	Registry   *sysconfig.Registry
	Dispatcher *messaging.Dispatcher
	Analog     *analog.Analog
	Buttons    *buttons.Buttons
	Program    *global.Program
	BPM        *global.BPM
	Protocols  []Protocol
}

// System wires the pipelines, the config store and the configuration
// protocol together and runs one cooperative tick at a time.
//
// System is not safe for concurrent use; every call must happen on the
// loop goroutine.
type System struct {
	hwa        Hwa
	db         *database.Database
	registry   *sysconfig.Registry
	dispatcher *messaging.Dispatcher
	analog     *analog.Analog
	buttons    *buttons.Buttons
	program    *global.Program
	bpm        *global.BPM
	protocols  []Protocol
	info       Info
	logger     *zap.Logger

	sysEx *sysexconf.Protocol
	rr    *scheduler.RoundRobin
	tasks *scheduler.TaskQueue

	state State

	// tap receives a copy of every outbound SysEx frame while set.
	tap func(frame []byte)
}

func New(hwa Hwa, components Components, info Info, clock timing.Clock, logger *zap.Logger) *System {
	s := &System{
		hwa:        hwa,
		db:         components.Database,
		registry:   components.Registry,
		dispatcher: components.Dispatcher,
		analog:     components.Analog,
		buttons:    components.Buttons,
		program:    components.Program,
		bpm:        components.BPM,
		protocols:  components.Protocols,
		info:       info,
		logger:     logger,
		tasks:      scheduler.NewTaskQueue(clock),
	}

	s.sysEx = sysexconf.New(dataHandler{s}, info.ManufacturerID, components.Registry.Layout(), logger)
	s.rr = scheduler.NewRoundRobin(info.MaxUpdatesPerRun, s.buttons, s.analog)

	s.dispatcher.Listen(messaging.EventTypeMIDIIn, s.handleMIDIIn)
	s.dispatcher.Listen(messaging.EventTypeSystem, s.handleSystem)

	s.registry.Register(sysconfig.BlockGlobal, s.configGet, s.configSet)

	return s
}

// AddProtocol registers a transport polled on every tick.
func (s *System) AddProtocol(p Protocol) {
	s.protocols = append(s.protocols, p)
}

// Init brings up hardware, the config store and every component. It
// returns false when hardware or storage could not be initialized.
func (s *System) Init(ctx context.Context) bool {
	if err := s.hwa.Init(); err != nil {
		s.logger.Error("Failed to initialize hardware", zap.Error(err))
		return false
	}

	if err := s.db.Init(ctx, databaseHandlers{s}); err != nil {
		s.logger.Error("Failed to initialize config store", zap.Error(err))
		return false
	}

	s.initComponents()
	s.sysEx.SetupCustomRequests(customRequests)

	for _, p := range s.protocols {
		if !p.Init() {
			s.logger.Warn("Protocol failed to initialize")
		}
	}

	for channel := uint8(midi.MinChannel); channel <= midi.MaxChannel; channel++ {
		s.dispatcher.Notify(messaging.EventTypeProgram, messaging.Event{
			Channel: channel,
			Index:   uint16(s.program.Program(channel)),
			Message: midi.MessageProgramChange,
		})
	}

	s.logger.Info("System initialized",
		zap.Uint8("preset", s.db.Preset()),
		zap.Int("supported_presets", s.db.SupportedPresets()),
		zap.Int("buttons", s.info.Sizes.Buttons()),
		zap.Int("analog", s.info.Sizes.AnalogInputs))

	return true
}

func (s *System) initComponents() {
	s.buttons.Init()
	s.analog.Init()
}

// Run performs one cooperative tick.
func (s *System) Run() {
	s.hwa.Update()
	s.rr.Tick()

	for _, p := range s.protocols {
		p.Read()
	}

	s.tasks.Update()
}

// HandleSysEx feeds one inbound SysEx frame to the configuration protocol.
// It returns false when the frame is not addressed to this device.
func (s *System) HandleSysEx(frame []byte) bool {
	handled := s.sysEx.HandleMessage(frame)

	if s.state == StateBackup {
		s.backup()
	}

	return handled
}

// ConnectionChanged schedules a forced refresh once the host side settled.
func (s *System) ConnectionChanged() {
	s.tasks.RegisterTask(scheduler.Task{
		ID:    taskForcedRefresh,
		Delay: ConnectionRefreshDelay,
		Fn:    s.forceComponentRefresh,
	})
}

// State returns the backup/restore state.
func (s *System) State() State {
	return s.state
}

func (s *System) Status() Status {
	return Status{
		State:            s.state.String(),
		Preset:           s.db.Preset(),
		SupportedPresets: s.db.SupportedPresets(),
		Connected:        s.sysEx.IsConfigurationEnabled(),
		BPM:              s.bpm.Value(),
		PendingTasks:     s.tasks.Pending(),
	}
}

// GetConfig reads one configuration value.
func (s *System) GetConfig(block sysconfig.Block, section uint8, index int) (uint16, error) {
	return s.registry.Get(block, section, index)
}

// SetConfig writes one configuration value and announces the change.
func (s *System) SetConfig(block sysconfig.Block, section uint8, index int, value uint16) error {
	if err := s.registry.Set(block, section, index, value); err != nil {
		return err
	}

	if s.state == StateNone {
		s.dispatcher.Notify(messaging.EventTypeSystem, messaging.Event{
			SystemMessage:  messaging.SystemMessageConfigurationChanged,
			ComponentIndex: uint16(block)<<8 | uint16(section),
			Index:          uint16(index),
			Value:          value,
		})
	}

	return nil
}

// Backup captures a full backup stream. sink receives a copy of every
// frame in the order a host would receive it.
func (s *System) Backup(sink func(frame []byte)) error {
	if err := s.setState(StateBackup); err != nil {
		return err
	}

	release := s.ensureConnection()
	defer release()

	s.tap = func(frame []byte) {
		sink(append([]byte(nil), frame...))
	}
	defer func() { s.tap = nil }()

	s.notifySystem(messaging.SystemMessageBackup, 0)
	s.backup()

	return nil
}

// Restore replays a captured backup stream. Frames that are not requests
// are skipped. It returns the number of frames the protocol accepted and
// the first error a frame was answered with.
func (s *System) Restore(frames [][]byte) (int, error) {
	release := s.ensureConnection()
	defer release()

	var failed error
	s.tap = func(frame []byte) {
		if failed == nil && len(frame) > 4 && sysexconf.Status(frame[4]) > sysexconf.StatusAck {
			failed = fmt.Errorf("restore rejected: %s", sysexconf.Status(frame[4]))
		}
	}
	defer func() { s.tap = nil }()

	applied := 0
	for _, frame := range frames {
		if len(frame) < 5 || sysexconf.Status(frame[4]) != sysexconf.StatusRequest {
			continue
		}
		if s.sysEx.HandleMessage(frame) {
			applied++
		}
	}

	// Streams cut before their end marker still leave restore mode
	if s.state == StateRestore {
		s.finishRestore()
	}

	return applied, failed
}

// ensureConnection opens a silent configuration connection when the host
// has none. The returned func closes it again.
func (s *System) ensureConnection() func() {
	if s.sysEx.IsConfigurationEnabled() {
		return func() {}
	}

	s.sysEx.HandleMessage(s.specialFrame(sysexconf.SpecialConnOpenSilent))

	return func() {
		s.sysEx.HandleMessage(s.specialFrame(sysexconf.SpecialConnClose))
	}
}

func (s *System) specialFrame(code uint8) []byte {
	id := s.info.ManufacturerID
	return []byte{0xF0, id[0], id[1], id[2], byte(sysexconf.StatusRequest), 0x00, code, 0xF7}
}

func (s *System) setState(to State) error {
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}

	if s.state != to {
		s.logger.Info("Backup/restore state changed",
			zap.Stringer("from", s.state),
			zap.Stringer("to", to))
	}

	s.state = to
	return nil
}

func (s *System) handleMIDIIn(event messaging.Event) {
	switch event.Message {
	case midi.MessageProgramChange:
		if s.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPresetChangeWithProgramChange) == 0 {
			return
		}
		if err := s.db.SetPreset(uint8(event.Index)); err != nil {
			s.logger.Debug("Program change does not map to a preset", zap.Error(err))
		}

	case midi.MessageSysEx:
		s.HandleSysEx(event.SysEx)
	}
}

func (s *System) handleSystem(event messaging.Event) {
	switch event.SystemMessage {
	case messaging.SystemMessagePitchBendCenterCaptureReq:
		s.capturePitchBendCenter()

	case messaging.SystemMessagePresetChangeIncReq:
		s.stepPreset(int(s.db.Preset()) + 1)

	case messaging.SystemMessagePresetChangeDecReq:
		s.stepPreset(int(s.db.Preset()) - 1)

	case messaging.SystemMessagePresetChangeDirectReq:
		s.stepPreset(int(event.Index))
	}
}

func (s *System) stepPreset(preset int) {
	if preset < 0 || preset >= s.db.SupportedPresets() {
		s.logger.Debug("Preset change out of range", zap.Int("preset", preset))
		return
	}

	if err := s.db.SetPreset(uint8(preset)); err != nil {
		s.logger.Warn("Failed to change preset", zap.Int("preset", preset), zap.Error(err))
	}
}

// capturePitchBendCenter stores the current position of the first
// pitch-bend input as the neutral center of every pitch-bend input.
func (s *System) capturePitchBendCenter() bool {
	index, ok := s.analog.FirstOfType(analog.TypePitchBend)
	if !ok {
		return false
	}

	center := s.analog.Value(index)
	if center == analog.ValueUnknown {
		return false
	}
	if center > midi.MaxValue14Bit {
		center = midi.PitchBendCenter
	}

	if err := s.db.Update(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingPitchBendCenter, uint32(center)); err != nil {
		s.logger.Warn("Failed to store pitch bend center", zap.Error(err))
		return false
	}

	s.analog.ApplyStoredPitchBendCenter()

	s.logger.Info("Pitch bend center captured",
		zap.Int("index", index),
		zap.Uint16("center", center))

	return true
}

func (s *System) forceComponentRefresh() {
	if s.db.ReadValue(sysconfig.BlockGlobal, sysconfig.GlobalSystemSettings, sysconfig.SystemSettingDisableForcedRefresh) != 0 {
		return
	}

	// Ein Preset-Wechsel kann noch vor einem Backup/Restore eingeplant worden sein
	if s.state != StateNone {
		return
	}

	s.notifySystem(messaging.SystemMessageForceIORefresh, 0)
}

func (s *System) notifySystem(message messaging.SystemMessage, index uint16) {
	s.dispatcher.Notify(messaging.EventTypeSystem, messaging.Event{
		SystemMessage: message,
		Index:         index,
	})
}

// backup streams every persisted section of every preset as replayable
// SET requests, bracketed by restore markers.
func (s *System) backup() {
	session := uuid.New()
	s.logger.Info("Backup started", zap.String("session", session.String()))

	id := s.info.ManufacturerID
	request := []byte{
		0xF0, id[0], id[1], id[2],
		byte(sysexconf.StatusRequest),
		sysexconf.AllParts,
		byte(sysexconf.WishBackup),
		byte(sysexconf.AmountAll),
		0x00, // block
		0x00, // section
		0x00, 0x00,
		0x00, 0x00,
		0xF7,
	}

	const (
		requestBlock   = 8
		requestSection = 9
	)

	current := s.db.Preset()
	layout := s.registry.Layout()

	s.sysEx.SetUserErrorIgnoreMode(true)
	s.sysEx.SendCustomMessage([]byte{RequestRestoreStart}, false)

	for preset := 0; preset < s.db.SupportedPresets(); preset++ {
		if err := s.db.SetPreset(uint8(preset)); err != nil {
			s.logger.Warn("Backup failed to switch preset", zap.Int("preset", preset), zap.Error(err))
			continue
		}
		s.sysEx.SendCustomMessage(presetChangeRequest(uint8(preset)), false)

		for block := sysconfig.Block(0); int(block) < s.sysEx.Blocks(); block++ {
			request[requestBlock] = byte(block)

			for section := 0; section < s.sysEx.Sections(block); section++ {
				desc, _ := layout.Section(block, uint8(section))
				if desc.Reserved || desc.Transient {
					continue
				}

				request[requestSection] = byte(section)
				s.sysEx.HandleMessage(request)
			}
		}
	}

	if err := s.db.SetPreset(current); err != nil {
		s.logger.Warn("Backup failed to restore active preset", zap.Error(err))
	}
	s.sysEx.SendCustomMessage(presetChangeRequest(current), false)

	s.sysEx.SendCustomMessage([]byte{RequestRestoreEnd}, false)
	s.sysEx.SendCustomMessage([]byte{RequestFullBackup}, true)

	s.sysEx.SetUserErrorIgnoreMode(false)
	s.state = StateNone

	s.logger.Info("Backup finished", zap.String("session", session.String()))
}

// presetChangeRequest is the body of a SET request activating preset.
func presetChangeRequest(preset uint8) []byte {
	return []byte{
		byte(sysexconf.WishSet),
		byte(sysexconf.AmountSingle),
		byte(sysconfig.BlockGlobal),
		sysconfig.GlobalSystemSettings,
		0x00, byte(sysconfig.SystemSettingActivePreset),
		0x00, preset & midi.MaxValue7Bit,
	}
}

func (s *System) finishRestore() {
	_ = s.setState(StateNone)
	s.sysEx.SetUserErrorIgnoreMode(false)
	s.notifySystem(messaging.SystemMessageRestoreEnd, 0)
	s.forceComponentRefresh()
}

func (s *System) customRequest(code uint8) ([]uint16, error) {
	switch code {
	case RequestFirmwareVersion:
		return s.firmwareVersion(), nil

	case RequestHardwareUID:
		return s.hardwareUID(), nil

	case RequestFirmwareVersionHardwareUID:
		return append(s.firmwareVersion(), s.hardwareUID()...), nil

	case RequestFactoryReset:
		if err := s.db.FactoryReset(context.Background()); err != nil {
			s.logger.Error("Factory reset failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", sysconfig.ErrWrite, err)
		}
		s.initComponents()
		return nil, nil

	case RequestRebootApp:
		s.hwa.Reboot(RebootApplication)
		return nil, nil

	case RequestRebootBootloader:
		s.hwa.Reboot(RebootBootloader)
		return nil, nil

	case RequestMaxComponents:
		sizes := s.info.Sizes
		return []uint16{
			uint16(sizes.Buttons()),
			0,
			uint16(sizes.AnalogInputs),
			0,
			uint16(sizes.Touchscreen),
		}, nil

	case RequestSupportedPresets:
		return []uint16{uint16(s.db.SupportedPresets())}, nil

	case RequestBootloaderSupport:
		return []uint16{1}, nil

	case RequestPitchBendCenterCapture:
		s.notifySystem(messaging.SystemMessagePitchBendCenterCaptureReq, 0)
		return nil, nil

	case RequestFullBackup:
		if err := s.setState(StateBackup); err != nil {
			return nil, fmt.Errorf("%w: %v", sysconfig.ErrNotSupported, err)
		}
		s.notifySystem(messaging.SystemMessageBackup, 0)
		return nil, sysexconf.ErrNoResponse

	case RequestRestoreStart:
		if err := s.setState(StateRestore); err != nil {
			return nil, fmt.Errorf("%w: %v", sysconfig.ErrNotSupported, err)
		}
		s.sysEx.SetUserErrorIgnoreMode(true)
		s.notifySystem(messaging.SystemMessageRestoreStart, 0)
		return nil, nil

	case RequestRestoreEnd:
		if s.state == StateBackup {
			return nil, sysconfig.ErrNotSupported
		}
		s.finishRestore()
		return nil, nil
	}

	return nil, sysconfig.ErrNotSupported
}

func (s *System) firmwareVersion() []uint16 {
	v := s.info.FirmwareVersion
	return []uint16{uint16(v[0]), uint16(v[1]), uint16(v[2])}
}

func (s *System) hardwareUID() []uint16 {
	uid := s.info.HardwareUID
	return []uint16{
		uint16(uid >> 24 & 0xFF),
		uint16(uid >> 16 & 0xFF),
		uint16(uid >> 8 & 0xFF),
		uint16(uid & 0xFF),
	}
}

func (s *System) configGet(section uint8, index int) (uint16, error) {
	switch section {
	case sysconfig.GlobalSystemSettings:
		if index == sysconfig.SystemSettingActivePreset {
			return uint16(s.db.Preset()), nil
		}

	case sysconfig.GlobalCalibration:
		return 0, sysconfig.ErrNotSupported
	}

	value, err := s.db.Read(sysconfig.BlockGlobal, section, index)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", sysconfig.ErrRead, err)
	}
	return uint16(value), nil
}

func (s *System) configSet(section uint8, index int, value uint16) error {
	switch section {
	case sysconfig.GlobalSystemSettings:
		if index == sysconfig.SystemSettingActivePreset {
			if err := s.db.SetPreset(uint8(value)); err != nil {
				if errors.Is(err, database.ErrInvalidPreset) {
					return fmt.Errorf("%w: %v", sysconfig.ErrInvalidValue, err)
				}
				return fmt.Errorf("%w: %v", sysconfig.ErrWrite, err)
			}
			return nil
		}

	case sysconfig.GlobalCalibration:
		if index != sysconfig.CalibrationPitchBendCenterCapture || value != 1 {
			return sysconfig.ErrNotSupported
		}
		if !s.capturePitchBendCenter() {
			return sysconfig.ErrNotSupported
		}
		return nil
	}

	if err := s.db.Update(sysconfig.BlockGlobal, section, index, uint32(value)); err != nil {
		return fmt.Errorf("%w: %v", sysconfig.ErrWrite, err)
	}

	if section == sysconfig.GlobalSystemSettings {
		switch index {
		case sysconfig.SystemSettingPitchBendDeadzone:
			s.analog.SetPitchBendDeadzone(value)

		case sysconfig.SystemSettingPitchBendCenter:
			s.analog.ApplyStoredPitchBendCenter()
		}
	}

	return nil
}

// dataHandler adapts System to the configuration protocol.
type dataHandler struct {
	s *System
}

func (h dataHandler) Get(block sysconfig.Block, section uint8, index int) (uint16, error) {
	return h.s.GetConfig(block, section, index)
}

func (h dataHandler) Set(block sysconfig.Block, section uint8, index int, value uint16) error {
	return h.s.SetConfig(block, section, index, value)
}

func (h dataHandler) CustomRequest(code uint8) ([]uint16, error) {
	return h.s.customRequest(code)
}

func (h dataHandler) SendResponse(frame []byte) {
	if h.s.tap != nil {
		h.s.tap(frame)
	}

	h.s.dispatcher.Notify(messaging.EventTypeSystem, messaging.Event{
		SystemMessage: messaging.SystemMessageSysExResponse,
		Message:       midi.MessageSysEx,
		SysEx:         frame,
	})
}

// databaseHandlers forwards config store callbacks.
type databaseHandlers struct {
	s *System
}

func (h databaseHandlers) PresetChange(preset uint8) {
	s := h.s
	if s.state != StateNone {
		return
	}

	s.tasks.RegisterTask(scheduler.Task{
		ID:    taskPreset,
		Delay: PresetChangeNotifyDelay,
		Fn: func() {
			s.notifySystem(messaging.SystemMessagePresetChanged, uint16(s.db.Preset()))
			s.forceComponentRefresh()
		},
	})

	s.logger.Info("Preset changed", zap.Uint8("preset", preset))
}

func (h databaseHandlers) FactoryResetStart() {
	h.s.notifySystem(messaging.SystemMessageFactoryResetStart, 0)
}

func (h databaseHandlers) FactoryResetDone() {
	h.s.notifySystem(messaging.SystemMessageFactoryResetEnd, 0)
}

func (h databaseHandlers) Initialized() {}
