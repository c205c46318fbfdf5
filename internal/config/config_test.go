package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}

	cfg.Password = "hunter2"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.Password = ""
	cfg.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("hash-only config rejected: %v", err)
	}
}

func TestValidateRejectsBrokenLimits(t *testing.T) {
	cfg := Default()
	cfg.Password = "hunter2"

	cfg.MaxFrameBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero max_frame_bytes")
	}

	cfg = Default()
	cfg.Password = "hunter2"
	cfg.MaxNameLen = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero max_name_len")
	}
}

func TestLoadWritesDefaultAndReadsItBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, gotPath, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotPath != path {
		t.Fatalf("expected path %q, got %q", path, gotPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	defaults := Default()
	if cfg.Addr != defaults.Addr || cfg.MaxFrameBytes != defaults.MaxFrameBytes {
		t.Fatalf("loaded defaults differ: %+v", cfg)
	}
	// Secrets never land in the written file.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	for _, forbidden := range []string{"password:", "password_hash:"} {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, forbidden) {
				t.Fatalf("written config leaks %q", forbidden)
			}
		}
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: \":7777\"\nmax_name_len: 15\nshutdown_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.MaxNameLen != 15 {
		t.Fatalf("expected max_name_len from file, got %d", cfg.MaxNameLen)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected shutdown_timeout from file, got %v", cfg.ShutdownTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.RoomCapacity != Default().RoomCapacity {
		t.Fatalf("expected default room_capacity, got %d", cfg.RoomCapacity)
	}
}
