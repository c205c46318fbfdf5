package config

import (
	"errors"
	"time"
)

// Config holds server configuration values.
type Config struct {
	// Addr is the chat listener address.
	Addr string `mapstructure:"addr" yaml:"addr"`
	// AdminAddr serves /metrics, /healthz and /readyz. Empty disables it.
	AdminAddr string `mapstructure:"admin_addr" yaml:"admin_addr"`

	// Password is the shared connection secret. PasswordHash, when set,
	// takes precedence and holds a bcrypt hash of the secret instead.
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`

	// MaxFrameBytes caps a single payload on the wire.
	MaxFrameBytes uint32 `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
	// MaxNameLen caps usernames and room names, in bytes.
	MaxNameLen int `mapstructure:"max_name_len" yaml:"max_name_len"`
	// RoomCapacity bounds members per room; zero means unbounded.
	RoomCapacity int `mapstructure:"room_capacity" yaml:"room_capacity"`

	// CommandRate and CommandBurst bound post-auth commands per
	// connection. A zero rate disables limiting.
	CommandRate  float64 `mapstructure:"command_rate" yaml:"command_rate"`
	CommandBurst int     `mapstructure:"command_burst" yaml:"command_burst"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
}

// ErrNoSecret means neither password nor password_hash is configured.
var ErrNoSecret = errors.New("config: password or password_hash is required")

// Default returns configuration with reasonable starter defaults. The wire
// limits match the protocol constants: 64 KiB frames, 31-byte names, 128
// members per room.
func Default() Config {
	return Config{
		Addr:            ":5555",
		AdminAddr:       ":9090",
		MaxFrameBytes:   64 * 1024,
		MaxNameLen:      31,
		RoomCapacity:    128,
		CommandRate:     10,
		CommandBurst:    20,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks that the configuration can actually run a server.
func (c *Config) Validate() error {
	if c.Password == "" && c.PasswordHash == "" {
		return ErrNoSecret
	}
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.MaxFrameBytes == 0 {
		return errors.New("config: max_frame_bytes must be positive")
	}
	if c.MaxNameLen <= 0 {
		return errors.New("config: max_name_len must be positive")
	}
	return nil
}
