package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Target   TargetConfig   `mapstructure:"target"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Hardware HardwareConfig `mapstructure:"hardware"`
	MIDI     MIDIConfig     `mapstructure:"midi"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv string `mapstructure:"jwt_secret_env"`
	// Required rejects unauthenticated writes. Reads stay open.
	Required bool `mapstructure:"required"`
}

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	SeedFile string `mapstructure:"seed_file"`
}

type TargetConfig struct {
	Path        string   `mapstructure:"path"`
	SearchPaths []string `mapstructure:"search_paths"`
}

type RuntimeConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	MaxUpdatesPerRun int           `mapstructure:"max_updates_per_run"`
}

// Hardware backends
const (
	HardwareVirtual = "virtual"
	HardwareModbus  = "modbus"
)

type HardwareConfig struct {
	Backend       string        `mapstructure:"backend"`
	ModbusAddress string        `mapstructure:"modbus_address"`
	ModbusTimeout time.Duration `mapstructure:"modbus_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type MIDIConfig struct {
	// ManufacturerID holds the three SysEx manufacturer bytes.
	ManufacturerID []int `mapstructure:"manufacturer_id"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.required", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "opencontroller")
	v.SetDefault("database.user", "opencontroller")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.seed_file", "")

	v.SetDefault("target.path", "targets/default.json")
	v.SetDefault("target.search_paths", []string{"./targets", "/etc/opencontroller/targets"})

	v.SetDefault("runtime.tick_interval", "1ms")
	v.SetDefault("runtime.max_updates_per_run", 16)

	v.SetDefault("hardware.backend", HardwareVirtual)
	v.SetDefault("hardware.modbus_address", "127.0.0.1:502")
	v.SetDefault("hardware.modbus_timeout", "1s")
	v.SetDefault("hardware.poll_interval", "5ms")

	v.SetDefault("midi.manufacturer_id", []int{0x00, 0x53, 0x43})

	v.SetDefault("log.development", false)
}

// Load reads the YAML file at path. An empty path uses defaults and
// environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults setzen
	setDefaults(v)

	// Environment Variables mit Prefix OCC_, z.B. OCC_SERVER_HTTP_PORT
	v.SetEnvPrefix("OCC")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Hardware.Backend {
	case HardwareVirtual, HardwareModbus:
	default:
		return fmt.Errorf("unknown hardware backend %q", c.Hardware.Backend)
	}

	if len(c.MIDI.ManufacturerID) != 3 {
		return fmt.Errorf("midi.manufacturer_id needs 3 bytes, got %d", len(c.MIDI.ManufacturerID))
	}
	for _, b := range c.MIDI.ManufacturerID {
		if b < 0 || b > 0x7F {
			return fmt.Errorf("midi.manufacturer_id byte %d out of range", b)
		}
	}

	if c.Runtime.TickInterval <= 0 {
		return fmt.Errorf("runtime.tick_interval must be positive")
	}

	return nil
}

// ManufacturerBytes returns the validated manufacturer id.
func (m MIDIConfig) ManufacturerBytes() [3]uint8 {
	var id [3]uint8
	for i := 0; i < len(id) && i < len(m.ManufacturerID); i++ {
		id[i] = uint8(m.ManufacturerID[i])
	}
	return id
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback
		return devSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}

const devSecret = "dev-secret-change-in-production-min-32-chars"
