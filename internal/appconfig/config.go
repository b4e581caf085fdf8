package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/surveyforge/internal/genclient"
	"pkt.systems/surveyforge/internal/mockgen"
	"pkt.systems/surveyforge/internal/persist"
	"pkt.systems/surveyforge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Storage       StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Backend       BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Generation    GenerationConfig `mapstructure:"generation" yaml:"generation"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	Mock          MockConfig       `mapstructure:"mock" yaml:"mock"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// StorageConfig selects the project snapshot store.
type StorageConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// BackendConfig points at the generation service.
type BackendConfig struct {
	BaseURL        string            `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
}

// GenerationConfig tunes the session controller and project state limits.
type GenerationConfig struct {
	MinPublishGrowth int `mapstructure:"min_publish_growth" yaml:"min_publish_growth"`
	HistoryMax       int `mapstructure:"history_max" yaml:"history_max"`
	MessageMax       int `mapstructure:"message_max" yaml:"message_max"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// MockConfig configures the built-in mock generation backend. An empty Addr
// keeps it disabled in serve.
type MockConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	DelayMS  int    `mapstructure:"delay_ms" yaml:"delay_ms"`
	Seed     uint64 `mapstructure:"seed" yaml:"seed"`
	Scenario string `mapstructure:"scenario" yaml:"scenario"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".surveyforge", "state"),
		Storage: StorageConfig{
			Driver:     persist.DriverFile,
			SQLitePath: "",
		},
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:27491",
			TimeoutSeconds: 300,
			Headers:        map[string]string{},
		},
		Generation: GenerationConfig{
			MinPublishGrowth: schema.DefaultMinPublishGrowth,
			HistoryMax:       schema.DefaultHistoryMax,
			MessageMax:       schema.DefaultMessageMax,
		},
		HTTP: HTTPConfig{
			Addr:       ":27490",
			BasePath:   "",
			HubHistory: 512,
		},
		Mock: MockConfig{
			Addr:     "",
			DelayMS:  int(mockgen.DefaultDelay / time.Millisecond),
			Seed:     0,
			Scenario: "",
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".surveyforge", "config.yaml"), nil
}

// ServiceConfig maps the config onto the core service settings.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir:            c.StateDir,
		MinPublishGrowth:    c.Generation.MinPublishGrowth,
		HistoryMax:          c.Generation.HistoryMax,
		MessageMax:          c.Generation.MessageMax,
		DisableAuditLogging: c.Logging.DisableAuditTrails,
	}
}

// StoreOptions maps the config onto the persistence settings.
func (c Config) StoreOptions() persist.Options {
	return persist.Options{
		Driver:     c.Storage.Driver,
		StateDir:   c.StateDir,
		SQLitePath: c.Storage.SQLitePath,
	}
}

// ClientOptions maps the config onto the generation client settings.
func (c Config) ClientOptions() genclient.Options {
	return genclient.Options{
		BaseURL: c.Backend.BaseURL,
		Timeout: time.Duration(c.Backend.TimeoutSeconds) * time.Second,
		Headers: c.Backend.Headers,
	}
}

// MockOptions maps the config onto the mock backend settings. A zero seed
// hashes the seed from each request.
func (c Config) MockOptions() (mockgen.Options, error) {
	scenario, err := mockgen.ParseScenario(c.Mock.Scenario)
	if err != nil {
		return mockgen.Options{}, err
	}
	return mockgen.Options{
		Scenario: scenario,
		Seed:     c.Mock.Seed,
		SeedSet:  c.Mock.Seed != 0,
		Delay:    time.Duration(c.Mock.DelayMS) * time.Millisecond,
	}, nil
}
