package config

import (
	"testing"

	"canmotor/protocol"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`{"control_hz": 2000, "deadband": 32, "heartbeat": {"enabled": true}}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ControlHz != 2000 {
		t.Errorf("Expected control_hz 2000, got %d", cfg.ControlHz)
	}
	if cfg.Deadband != 32 {
		t.Errorf("Expected deadband 32, got %d", cfg.Deadband)
	}
	if cfg.ClockHz != 1000000 {
		t.Errorf("Expected default clock_hz, got %d", cfg.ClockHz)
	}
	if !cfg.Heartbeat.Enabled || cfg.Heartbeat.TimeoutMs != 250 {
		t.Errorf("Expected heartbeat enabled with default timeout, got %+v", cfg.Heartbeat)
	}
	if cfg.Analog.SamplesPerHalf != 8 {
		t.Errorf("Expected default samples_per_half, got %d", cfg.Analog.SamplesPerHalf)
	}
}

func TestLoadKeepsDefaultDeadband(t *testing.T) {
	cfg, err := Load([]byte(`{"default_idle_mode": "brake"}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deadband != Default().Deadband {
		t.Errorf("Expected default deadband %d, got %d", Default().Deadband, cfg.Deadband)
	}
	if cfg.DefaultIdleMode != "brake" {
		t.Errorf("Expected brake, got %s", cfg.DefaultIdleMode)
	}

	cfg, err = Load([]byte(`{"deadband": 0}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deadband != 0 {
		t.Errorf("Expected explicit deadband 0 to be kept, got %d", cfg.Deadband)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	inputs := []string{
		`{"default_idle_mode": "spin"}`,
		`{"deadband": -1}`,
		`{"status_hz": 5000}`,
		`{not json`,
	}
	for _, in := range inputs {
		if _, err := Load([]byte(in)); err == nil {
			t.Errorf("Expected error for %s", in)
		}
	}
}

func TestTickConversions(t *testing.T) {
	cfg := Default()
	if got := cfg.ControlPeriod(); got != 1000 {
		t.Errorf("Expected control period 1000 ticks, got %d", got)
	}
	if got := cfg.StatusPeriod(); got != 50000 {
		t.Errorf("Expected status period 50000 ticks, got %d", got)
	}
	if got := cfg.CANTimeout(); got != 500000 {
		t.Errorf("Expected CAN timeout 500000 ticks, got %d", got)
	}
}

func TestIdleModeParsing(t *testing.T) {
	cfg := Default()
	cfg.DefaultIdleMode = "brake"
	mode, err := cfg.IdleMode()
	if err != nil || mode != protocol.Brake {
		t.Errorf("Expected brake, got %v (%v)", mode, err)
	}
}
