package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MaxStrategies != 10 {
		t.Errorf("maxStrategies = %d, want 10", cfg.MaxStrategies)
	}
	if cfg.MaxPositionSize != 0.10 {
		t.Errorf("maxPositionSize = %f, want 0.10", cfg.MaxPositionSize)
	}
	if cfg.MemoryCapacity != 10000 {
		t.Errorf("memoryCapacity = %d, want 10000", cfg.MemoryCapacity)
	}
	if !cfg.LearningEnabled {
		t.Error("learning should default on")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("maxStrategies: 5\nmaxDrawdown: 0.2\nserver:\n  port: 9000\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxStrategies != 5 {
		t.Errorf("maxStrategies = %d, want 5", cfg.MaxStrategies)
	}
	if cfg.MaxDrawdown != 0.2 {
		t.Errorf("maxDrawdown = %f, want 0.2", cfg.MaxDrawdown)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxCorrelation != 0.7 {
		t.Errorf("maxCorrelation = %f, want default 0.7", cfg.MaxCorrelation)
	}
}

func TestEngineConfigMapping(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ec := cfg.EngineConfig()
	if ec.RiskLimits.MaxDailyLoss != 0.05 {
		t.Errorf("maxDailyLoss = %f, want 0.05", ec.RiskLimits.MaxDailyLoss)
	}
	if ec.ExecutionSeed != 1 {
		t.Errorf("executionSeed = %d, want 1", ec.ExecutionSeed)
	}
}

func TestMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("missing explicit config file should error")
	}
}
