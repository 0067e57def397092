// Package lifecycle is the composition root: it builds the controller core
// from configuration, owns the control loop goroutine and serves the APIs.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	grpcapi "github.com/KevinKickass/OpenControllerCore/internal/api/grpc"
	"github.com/KevinKickass/OpenControllerCore/internal/api/rest"
	"github.com/KevinKickass/OpenControllerCore/internal/api/websocket"
	"github.com/KevinKickass/OpenControllerCore/internal/auth"
	"github.com/KevinKickass/OpenControllerCore/internal/config"
	"github.com/KevinKickass/OpenControllerCore/internal/database"
	"github.com/KevinKickass/OpenControllerCore/internal/global"
	"github.com/KevinKickass/OpenControllerCore/internal/hwa/modbus"
	"github.com/KevinKickass/OpenControllerCore/internal/hwa/virtual"
	"github.com/KevinKickass/OpenControllerCore/internal/interfaces"
	"github.com/KevinKickass/OpenControllerCore/internal/io/analog"
	"github.com/KevinKickass/OpenControllerCore/internal/io/buttons"
	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/protocol"
	"github.com/KevinKickass/OpenControllerCore/internal/sysconfig"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"github.com/KevinKickass/OpenControllerCore/internal/target"
	"github.com/KevinKickass/OpenControllerCore/internal/timing"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var (
	ErrStopped         = interfaces.ErrStopped
	ErrNoVirtualInputs = interfaces.ErrNoVirtualInputs
	ErrFrameIgnored    = interfaces.ErrFrameIgnored
	ErrInitFailed      = errors.New("controller core failed to initialize")
)

// board is what every hardware backend provides.
type board interface {
	system.Hwa
	analog.Hwa
	buttons.Hwa
	OnReboot(fn func(system.RebootTarget))
}

// Manager owns the controller core. The core is single threaded: every
// access from API goroutines goes through Do, which runs the call on the
// loop goroutine between ticks.
type Manager struct {
	config *config.Config
	target *target.Definition
	logger *zap.Logger

	storage    database.Storage
	db         *database.Database
	registry   *sysconfig.Registry
	dispatcher *messaging.Dispatcher
	system     *system.System
	board      board
	virtual    *virtual.Board
	modbus     *modbus.Board
	transport  *protocol.QueueTransport

	hub        *websocket.Hub
	restServer *rest.Server
	grpcServer *grpc.Server

	calls     chan func()
	stopChan  chan struct{}
	loopDone  chan struct{}
	hubCancel context.CancelFunc

	runningMu sync.Mutex
	running   bool

	shutdownOnce sync.Once

	// loop goroutine only
	capture   *[][]byte
	reboot    func(system.RebootTarget)
	seedFile  string
	seedError error
}

// New builds the core for a target. Storage connections are opened here;
// hardware is brought up by Start.
func New(ctx context.Context, cfg *config.Config, def *target.Definition, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		config:   cfg,
		target:   def,
		logger:   logger,
		calls:    make(chan func(), 64),
		stopChan: make(chan struct{}),
		loopDone: make(chan struct{}),
		seedFile: cfg.Storage.SeedFile,
	}

	storage, err := m.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	m.storage = storage

	sizes := def.Sizes()
	layout := sysconfig.NewLayout(sizes)

	m.db = database.New(storage, layout, def.SupportedPresets, logger.Named("database"))
	m.registry = sysconfig.NewRegistry(layout)
	m.dispatcher = messaging.NewDispatcher()

	m.newBoard(sizes)

	clock := timing.NewMonotonicClock()
	program := global.NewProgram()
	bpm := global.NewBPM()

	// Virtual inputs arrive as single settled readings: smoothing would hold
	// them back and they would never fill the debounce history.
	smoothing := analog.HwFilterOptions{}
	if m.virtual == nil {
		smoothing = analog.HwFilterOptions{Median: def.Analog.Median, EMA: def.Analog.EMA}
	}

	var analogFilter analog.Filter = analog.PassthroughFilter{}
	if def.Analog.Filter == target.FilterHardware {
		analogFilter = analog.NewHwFilter(analog.ADCConfigForBits(def.Analog.ADCBits), sizes.AnalogInputs, clock, smoothing)
	}

	var buttonFilter buttons.Filter = buttons.PassthroughFilter{}
	if def.Debounce() && m.virtual == nil {
		buttonFilter = buttons.NewDebounceFilter(sizes.DigitalInputs)
	}

	analogs := analog.New(m.board, analogFilter, m.db, m.dispatcher, m.registry, sizes.AnalogInputs, logger.Named("analog"))
	btns := buttons.New(m.board, buttonFilter, m.db, m.dispatcher, m.registry, program, bpm, sizes, logger.Named("buttons"))

	m.transport = protocol.NewQueueTransport(m.midiOut)
	midiBridge := protocol.NewMIDI(m.transport, m.db, m.dispatcher, logger.Named("midi"))

	m.system = system.New(m.board, system.Components{
		Database:   m.db,
		Registry:   m.registry,
		Dispatcher: m.dispatcher,
		Analog:     analogs,
		Buttons:    btns,
		Program:    program,
		BPM:        bpm,
		Protocols:  []system.Protocol{midiBridge},
	}, system.Info{
		ManufacturerID:   cfg.MIDI.ManufacturerBytes(),
		FirmwareVersion:  def.FirmwareVersion,
		HardwareUID:      def.HardwareUID,
		Sizes:            sizes,
		MaxUpdatesPerRun: cfg.Runtime.MaxUpdatesPerRun,
	}, clock, logger.Named("system"))

	m.board.OnReboot(m.handleReboot)

	if cfg.Auth.Required && !cfg.Auth.IsProductionReady() {
		logger.Warn("Authentication required but JWT secret is the development fallback",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}
	authenticator := auth.NewAuthenticator(auth.NewJWTHandler(cfg.Auth.GetJWTSecret()), cfg.Auth.Required)

	m.hub = websocket.NewHub(logger.Named("websocket"), authenticator)
	m.hub.OnConnect(m.clientConnected)
	m.hub.OnMIDIIn(m.transport.Push)
	m.subscribeMonitor()

	m.restServer = rest.NewServer(cfg, m, authenticator, m.hub, logger.Named("rest"))

	return m, nil
}

func (m *Manager) openStorage(ctx context.Context) (database.Storage, error) {
	switch m.config.Storage.Backend {
	case config.StoragePostgres:
		storage, err := database.NewPostgresStorage(ctx, m.config.Database, m.logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return storage, nil
	default:
		return database.NewMemoryStorage(), nil
	}
}

func (m *Manager) newBoard(sizes sysconfig.Sizes) {
	if m.config.Hardware.Backend == config.HardwareModbus {
		m.modbus = modbus.NewBoard(modbus.BoardConfig{
			Address:      m.config.Hardware.ModbusAddress,
			UnitID:       m.target.Modbus.UnitID,
			AnalogStart:  m.target.Modbus.AnalogStart,
			AnalogCount:  sizes.AnalogInputs,
			DigitalStart: m.target.Modbus.DigitalStart,
			DigitalCount: sizes.DigitalInputs,
			Timeout:      m.config.Hardware.ModbusTimeout,
			PollInterval: m.config.Hardware.PollInterval,
		}, m.logger.Named("modbus"))
		m.board = m.modbus
		return
	}

	m.virtual = virtual.NewBoard(sizes.AnalogInputs, sizes.DigitalInputs, m.logger.Named("virtual"))
	m.board = m.virtual
}

// OnReboot installs the process-level reboot handler. Must be called
// before Start.
func (m *Manager) OnReboot(fn func(system.RebootTarget)) {
	m.reboot = fn
}

// Start initializes the core, starts the control loop and the API servers.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting OpenControllerCore",
		zap.String("target", m.target.Name),
		zap.String("hardware", m.config.Hardware.Backend),
		zap.String("storage", m.config.Storage.Backend))

	if err := m.startLoop(ctx); err != nil {
		return err
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	m.hubCancel = cancel
	go m.hub.Run(hubCtx)

	if err := m.startGRPCServer(); err != nil {
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	if err := m.restServer.Start(); err != nil {
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	m.logger.Info("System started successfully",
		zap.Int("grpc_port", m.config.Server.GRPCPort),
		zap.Int("http_port", m.config.Server.HTTPPort),
		zap.Duration("tick_interval", m.config.Runtime.TickInterval))

	return nil
}

// startLoop runs System.Init and hands the core over to the loop goroutine.
func (m *Manager) startLoop(ctx context.Context) error {
	m.dispatcher.Listen(messaging.EventTypeSystem, func(e messaging.Event) {
		if e.SystemMessage == messaging.SystemMessageFactoryResetEnd {
			m.applySeed()
		}
	})

	if !m.system.Init(ctx) {
		return ErrInitFailed
	}
	if m.seedError != nil {
		return m.seedError
	}

	m.runningMu.Lock()
	m.running = true
	m.runningMu.Unlock()

	go m.loop()
	return nil
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.config.Runtime.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case fn := <-m.calls:
			fn()
		case <-ticker.C:
			m.system.Run()
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (m *Manager) Do(ctx context.Context, fn func()) error {
	m.runningMu.Lock()
	running := m.running
	m.runningMu.Unlock()
	if !running {
		return ErrStopped
	}

	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn()
	}

	select {
	case m.calls <- call:
	case <-m.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-m.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applySeed writes the configured seed cells after a factory reset.
func (m *Manager) applySeed() {
	if m.seedFile == "" {
		return
	}

	f, err := os.Open(m.seedFile)
	if err != nil {
		m.seedError = fmt.Errorf("failed to open seed file: %w", err)
		m.logger.Error("Failed to open seed file", zap.String("path", m.seedFile), zap.Error(err))
		return
	}
	defer f.Close()

	n, err := m.db.LoadSeed(f)
	if err != nil {
		m.seedError = fmt.Errorf("failed to apply seed file: %w", err)
		m.logger.Error("Failed to apply seed file", zap.String("path", m.seedFile), zap.Error(err))
		return
	}

	m.logger.Info("Seed applied", zap.String("path", m.seedFile), zap.Int("cells", n))
}

func (m *Manager) handleReboot(t system.RebootTarget) {
	if m.reboot != nil {
		m.reboot(t)
	}
}

func (m *Manager) clientConnected() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := m.Do(ctx, m.system.ConnectionChanged); err != nil {
			m.logger.Debug("Connection change not delivered", zap.Error(err))
		}
	}()
}

// midiOut runs on the loop goroutine for every message the MIDI bridge writes.
func (m *Manager) midiOut(raw []byte) {
	m.hub.Broadcast(websocket.NewMIDIOutMessage(raw))
}

// subscribeMonitor forwards bus traffic to the live monitor.
func (m *Manager) subscribeMonitor() {
	for _, category := range []messaging.EventType{
		messaging.EventTypeAnalog,
		messaging.EventTypeButton,
		messaging.EventTypeProgram,
		messaging.EventTypeMIDIIn,
		messaging.EventTypeSystem,
	} {
		m.dispatcher.Listen(category, func(e messaging.Event) {
			if category == messaging.EventTypeSystem && e.SystemMessage == messaging.SystemMessageSysExResponse {
				if m.capture != nil {
					*m.capture = append(*m.capture, append([]byte(nil), e.SysEx...))
				}
				return
			}
			m.hub.Broadcast(websocket.NewEventMessage(category, e))
		})
	}
}

func (m *Manager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", m.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	m.grpcServer = grpc.NewServer()
	grpcapi.RegisterConfigServiceServer(m.grpcServer, grpcapi.NewConfigService(m, m.logger.Named("grpc")))

	go func() {
		m.logger.Info("gRPC server listening",
			zap.Int("port", m.config.Server.GRPCPort),
			zap.String("services", grpcapi.ConfigServiceName))
		if err := m.grpcServer.Serve(lis); err != nil {
			m.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the system
func (m *Manager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	m.shutdownOnce.Do(func() {
		m.logger.Info("Shutting down system")
		shutdownErr = m.gracefulShutdown(ctx)
	})

	return shutdownErr
}

func (m *Manager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 4)

	// 1. REST API Server graceful shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.restServer.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
		}
	}()

	// 2. gRPC Server graceful stop
	if m.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.logger.Info("Stopping gRPC server")
			m.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout, forcing stop")
		if m.grpcServer != nil {
			m.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case e := <-errChan:
		err = errors.Join(err, e)
	default:
	}

	// 3. Control loop, then hardware and storage
	m.stopLoop()

	if m.hubCancel != nil {
		m.hubCancel()
	}

	if m.modbus != nil {
		if e := m.modbus.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("modbus close failed: %w", e))
		}
	}

	if e := m.storage.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("storage close failed: %w", e))
	}

	if err == nil {
		m.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (m *Manager) stopLoop() {
	m.runningMu.Lock()
	wasRunning := m.running
	m.running = false
	m.runningMu.Unlock()

	if !wasRunning {
		return
	}
	close(m.stopChan)
	<-m.loopDone
}
