package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Timeouts.ATT != want.Timeouts.ATT || cfg.Discovery.ScanIntervalMS != want.Discovery.ScanIntervalMS {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := Save(path, &Config{Timeouts: Timeouts{ATT: 5 * time.Second}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeouts.ATT != 5*time.Second {
		t.Fatalf("expected overlay to win for ATT timeout, got %v", cfg.Timeouts.ATT)
	}
	if cfg.Timeouts.HCICommand != Default().Timeouts.HCICommand {
		t.Fatalf("expected default HCI command timeout to survive overlay, got %v", cfg.Timeouts.HCICommand)
	}
}

func TestSaveThenLoadRoundTripsKeyStoreDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := Default()
	cfg.KeyStoreDir = "/tmp/keys"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.KeyStoreDir != "/tmp/keys" {
		t.Fatalf("expected KeyStoreDir to round-trip, got %q", got.KeyStoreDir)
	}
}
