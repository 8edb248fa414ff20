// Package config loads the YAML file that configures one host stack
// instance: discovery defaults, protocol timeouts, the key store
// directory, and logging, per spec §6.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nimbusvale/directble/codec"
)

// Discovery mirrors the scan/connection defaults from spec §6.
type Discovery struct {
	ScanIntervalMS      int  `yaml:"scan_interval_ms"`
	ScanWindowMS        int  `yaml:"scan_window_ms"`
	ActiveScan          bool `yaml:"active_scan"`
	DuplicateFilter     bool `yaml:"duplicate_filter"`
	ConnIntervalMinMS   int  `yaml:"conn_interval_min_ms"`
	ConnIntervalMaxMS   int  `yaml:"conn_interval_max_ms"`
	ConnLatency         int  `yaml:"conn_latency"`
	SupervisionTimeoutMS int `yaml:"supervision_timeout_ms"`
}

// Timeouts mirrors the cancellation/timeout defaults from spec §5.
type Timeouts struct {
	HCICommand time.Duration `yaml:"hci_command"`
	ATT        time.Duration `yaml:"att"`
	SMPPhase   time.Duration `yaml:"smp_phase"`
}

// Logging configures where and how the stack logs, per §4.9: logrus plus
// optional lumberjack rotation when a file path is given.
type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the top-level adapter/stack configuration, per §4.8.
type Config struct {
	Discovery    Discovery `yaml:"discovery"`
	Timeouts     Timeouts  `yaml:"timeouts"`
	KeyStoreDir  string    `yaml:"key_store_dir"`
	Logging      Logging   `yaml:"logging"`
}

// Default returns the configuration spec §6 names when a file is absent or
// a given field is left zero.
func Default() *Config {
	return &Config{
		Discovery: Discovery{
			ScanIntervalMS:       15,
			ScanWindowMS:         15,
			ActiveScan:           true,
			DuplicateFilter:      true,
			ConnIntervalMinMS:    10,
			ConnIntervalMaxMS:    15,
			ConnLatency:          0,
			SupervisionTimeoutMS: 500,
		},
		Timeouts: Timeouts{
			HCICommand: 10 * time.Second,
			ATT:        30 * time.Second,
			SMPPhase:   30 * time.Second,
		},
		KeyStoreDir: "./keys",
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads path and overlays it onto Default(), leaving zero-valued
// fields at their default per §4.8. A missing file returns the defaults
// unchanged, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, codec.NewError(codec.KindState, "config.Load", "read config file", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, codec.NewError(codec.KindProtocol, "config.Load", "parse config YAML", err)
	}
	applyOverlay(cfg, &overlay)
	return cfg, nil
}

func applyOverlay(dst, src *Config) {
	if src.Discovery.ScanIntervalMS != 0 {
		dst.Discovery.ScanIntervalMS = src.Discovery.ScanIntervalMS
	}
	if src.Discovery.ScanWindowMS != 0 {
		dst.Discovery.ScanWindowMS = src.Discovery.ScanWindowMS
	}
	if src.Discovery.ConnIntervalMinMS != 0 {
		dst.Discovery.ConnIntervalMinMS = src.Discovery.ConnIntervalMinMS
	}
	if src.Discovery.ConnIntervalMaxMS != 0 {
		dst.Discovery.ConnIntervalMaxMS = src.Discovery.ConnIntervalMaxMS
	}
	if src.Discovery.SupervisionTimeoutMS != 0 {
		dst.Discovery.SupervisionTimeoutMS = src.Discovery.SupervisionTimeoutMS
	}
	dst.Discovery.ConnLatency = src.Discovery.ConnLatency
	dst.Discovery.ActiveScan = src.Discovery.ActiveScan || dst.Discovery.ActiveScan
	dst.Discovery.DuplicateFilter = src.Discovery.DuplicateFilter || dst.Discovery.DuplicateFilter

	if src.Timeouts.HCICommand != 0 {
		dst.Timeouts.HCICommand = src.Timeouts.HCICommand
	}
	if src.Timeouts.ATT != 0 {
		dst.Timeouts.ATT = src.Timeouts.ATT
	}
	if src.Timeouts.SMPPhase != 0 {
		dst.Timeouts.SMPPhase = src.Timeouts.SMPPhase
	}
	if src.KeyStoreDir != "" {
		dst.KeyStoreDir = src.KeyStoreDir
	}
	if src.Logging.File != "" {
		level := dst.Logging.Level
		dst.Logging = src.Logging
		dst.Logging.Level = level
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
}

// Save writes cfg to path atomically (write-temp, rename), matching the
// write path omar251990-omar251990's config manager uses.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return codec.NewError(codec.KindProtocol, "config.Save", "marshal config", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return codec.NewError(codec.KindState, "config.Save", "write temp config file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return codec.NewError(codec.KindState, "config.Save", "rename temp config file", err)
	}
	return nil
}
