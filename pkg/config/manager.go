package config

import (
	"log/slog"
	"sync/atomic"
)

type snapshot struct {
	cfg  Config
	opts Options
}

// Manager holds the live Config and Options. Get and Options are safe to call
// while Reload runs.
type Manager struct {
	current atomic.Pointer[snapshot]
}

// NewManager loads the environment and the options file.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager returns a manager that always serves cfg and opts.
func NewStaticManager(cfg Config, opts Options) *Manager {
	m := &Manager{}
	m.current.Store(&snapshot{cfg: cfg, opts: opts})
	return m
}

func (m *Manager) Get() Config {
	return m.current.Load().cfg
}

func (m *Manager) Options() Options {
	return m.current.Load().opts
}

// Reload rereads the environment and the options file. On error the previous
// values stay in place.
func (m *Manager) Reload() error {
	cfg := LoadConfig()
	opts, err := LoadOptions(cfg.OptionsPath)
	if err != nil {
		return err
	}
	m.current.Store(&snapshot{cfg: cfg, opts: opts})
	slog.Debug("Configuration loaded", "options_path", cfg.OptionsPath)
	return nil
}
