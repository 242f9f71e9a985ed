// Package config holds the node's tunable parameters
package config

import (
	"encoding/json"
	"errors"
	"strconv"

	"canmotor/protocol"
)

// Analog describes the current-sense and current-limit transfer functions
type Analog struct {
	VOffset        float32 `json:"v_offset"`         // volts at zero current
	RSense         float32 `json:"r_sense"`          // ohms
	AmpGain        float32 `json:"amp_gain"`         // V/V
	DividerRatio   float32 `json:"divider_ratio"`    // external divider on the sense/reference path
	SupplyVolts    float32 `json:"supply_volts"`     // PWM high level used for the limit reference
	CountsPerVolt  float32 `json:"counts_per_volt"`  // ADC scale
	SamplesPerHalf int     `json:"samples_per_half"` // averaging window per buffer half
}

// Heartbeat configures optional host supervision
type Heartbeat struct {
	Enabled   bool   `json:"enabled"`
	TimeoutMs uint32 `json:"timeout_ms"`
}

// Config is the full node configuration
type Config struct {
	ClockHz             uint32    `json:"clock_hz"`
	ControlHz           uint32    `json:"control_hz"`
	StatusHz            uint32    `json:"status_hz"`
	CANTimeoutMs        uint32    `json:"can_timeout_ms"`
	Heartbeat           Heartbeat `json:"heartbeat"`
	Deadband            int16     `json:"deadband"`
	DefaultCurrentLimit uint8     `json:"default_current_limit"`
	DefaultIdleMode     string    `json:"default_idle_mode"`
	// DropMalformedFrames logs and drops undecodable frames instead of halting
	DropMalformedFrames bool `json:"drop_malformed_frames"`
	// KeepDrivingOnLinkLoss keeps the last setpoint applied while the bus is
	// silent. By default a stale link idles the drive.
	KeepDrivingOnLinkLoss bool   `json:"keep_driving_on_link_loss"`
	Analog                Analog `json:"analog"`
}

// Default returns the stock configuration for the RP2040 board
func Default() Config {
	return Config{
		ClockHz:             1000000, // RP2040 timer runs at 1MHz
		ControlHz:           1000,
		StatusHz:            20,
		CANTimeoutMs:        500,
		Heartbeat:           Heartbeat{Enabled: false, TimeoutMs: 250},
		Deadband:            10,
		DefaultCurrentLimit: 10,
		DefaultIdleMode:     "coast",
		Analog: Analog{
			VOffset:        0.050,
			RSense:         0.004,
			AmpGain:        20.0,
			DividerRatio:   10000.0 / 22000.0,
			SupplyVolts:    3.3,
			CountsPerVolt:  4095.0 / 3.3,
			SamplesPerHalf: 8,
		},
	}
}

// Load parses a JSON configuration over Default, so omitted fields keep
// their stock values. Zero values that would break the timing or analog
// math are replaced with defaults as well.
func Load(jsonData []byte) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with the stock configuration
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.ClockHz == 0 {
		cfg.ClockHz = def.ClockHz
	}
	if cfg.ControlHz == 0 {
		cfg.ControlHz = def.ControlHz
	}
	if cfg.StatusHz == 0 {
		cfg.StatusHz = def.StatusHz
	}
	if cfg.CANTimeoutMs == 0 {
		cfg.CANTimeoutMs = def.CANTimeoutMs
	}
	if cfg.Heartbeat.TimeoutMs == 0 {
		cfg.Heartbeat.TimeoutMs = def.Heartbeat.TimeoutMs
	}
	if cfg.DefaultCurrentLimit == 0 {
		cfg.DefaultCurrentLimit = def.DefaultCurrentLimit
	}
	if cfg.DefaultIdleMode == "" {
		cfg.DefaultIdleMode = def.DefaultIdleMode
	}

	a := &cfg.Analog
	if a.RSense == 0 {
		a.RSense = def.Analog.RSense
	}
	if a.AmpGain == 0 {
		a.AmpGain = def.Analog.AmpGain
	}
	if a.DividerRatio == 0 {
		a.DividerRatio = def.Analog.DividerRatio
	}
	if a.SupplyVolts == 0 {
		a.SupplyVolts = def.Analog.SupplyVolts
	}
	if a.CountsPerVolt == 0 {
		a.CountsPerVolt = def.Analog.CountsPerVolt
	}
	if a.SamplesPerHalf == 0 {
		a.SamplesPerHalf = def.Analog.SamplesPerHalf
	}
}

// Validate checks ranges that would break the control or timing math
func (c Config) Validate() error {
	if c.ClockHz == 0 {
		return errors.New("clock_hz must be positive")
	}
	if c.ControlHz == 0 || c.ControlHz > c.ClockHz {
		return errors.New("invalid control_hz: " + strconv.Itoa(int(c.ControlHz)))
	}
	if c.StatusHz == 0 || c.StatusHz > c.ControlHz {
		return errors.New("invalid status_hz: " + strconv.Itoa(int(c.StatusHz)))
	}
	if c.CANTimeoutMs == 0 {
		return errors.New("can_timeout_ms must be positive")
	}
	if c.Heartbeat.Enabled && c.Heartbeat.TimeoutMs == 0 {
		return errors.New("heartbeat.timeout_ms must be positive when enabled")
	}
	if c.Deadband < 0 {
		return errors.New("invalid deadband: " + strconv.Itoa(int(c.Deadband)))
	}
	if _, err := c.IdleMode(); err != nil {
		return err
	}
	a := c.Analog
	if a.RSense <= 0 || a.AmpGain <= 0 || a.DividerRatio <= 0 {
		return errors.New("analog r_sense, amp_gain and divider_ratio must be positive")
	}
	if a.SupplyVolts <= 0 || a.CountsPerVolt <= 0 {
		return errors.New("analog supply_volts and counts_per_volt must be positive")
	}
	if a.SamplesPerHalf <= 0 || a.SamplesPerHalf > 256 {
		return errors.New("invalid analog samples_per_half: " + strconv.Itoa(a.SamplesPerHalf))
	}
	return nil
}

// IdleMode parses DefaultIdleMode
func (c Config) IdleMode() (protocol.IdleMode, error) {
	switch c.DefaultIdleMode {
	case "coast":
		return protocol.Coast, nil
	case "brake":
		return protocol.Brake, nil
	}
	return 0, errors.New("invalid default_idle_mode: " + c.DefaultIdleMode)
}

// Ticks converts milliseconds to clock ticks
func (c Config) Ticks(ms uint32) uint32 {
	return uint32(uint64(ms) * uint64(c.ClockHz) / 1000)
}

// ControlPeriod is the control loop period in ticks
func (c Config) ControlPeriod() uint32 {
	return c.ClockHz / c.ControlHz
}

// StatusPeriod is the status report period in ticks
func (c Config) StatusPeriod() uint32 {
	return c.ClockHz / c.StatusHz
}

// CANTimeout is the bus link timeout in ticks
func (c Config) CANTimeout() uint32 {
	return c.Ticks(c.CANTimeoutMs)
}

// HeartbeatTimeout is the host supervision timeout in ticks
func (c Config) HeartbeatTimeout() uint32 {
	return c.Ticks(c.Heartbeat.TimeoutMs)
}
