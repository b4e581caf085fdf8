package schema

import (
	"errors"
	"os"
	"path/filepath"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	StateDir string
	// MinPublishGrowth is the byte growth required between live document snapshots.
	MinPublishGrowth int
	HistoryMax       int
	MessageMax       int
	// DisableAuditLogging disables audit trail debug logs for generation requests.
	DisableAuditLogging bool
}

// Service defaults.
const (
	DefaultMinPublishGrowth = 256
	DefaultHistoryMax       = 200
	DefaultMessageMax       = 500
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".surveyforge", "state")
	}
	if cfg.MinPublishGrowth == 0 {
		cfg.MinPublishGrowth = DefaultMinPublishGrowth
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	if cfg.MessageMax <= 0 {
		cfg.MessageMax = DefaultMessageMax
	}
	if cfg.MinPublishGrowth < 0 {
		return ServiceConfig{}, errors.New("min publish growth must not be negative")
	}
	return cfg, nil
}
