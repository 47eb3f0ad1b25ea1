// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Endpoints:      []string{"http://127.0.0.1:5000", "http://127.0.0.1:5001"},
		ReceiptTimeout: Duration(30 * time.Second),
		PollInterval:   Duration(250 * time.Millisecond),
		RequestTimeout: Duration(15 * time.Second),
		Scenarios:      []string{"all"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"no endpoints", func(c *Config) { c.Endpoints = nil }, "at least one endpoint is required"},
		{"empty endpoint", func(c *Config) { c.Endpoints[1] = "" }, "endpoint must not be empty"},
		{"secret count", func(c *Config) { c.JWTSecrets = []string{"00"} }, "jwt-secret given 1 times for 2 endpoints"},
		{"zero receipt timeout", func(c *Config) { c.ReceiptTimeout = 0 }, "receipt-timeout must be > 0"},
		{"negative poll interval", func(c *Config) { c.PollInterval = -1 }, "poll-interval must be > 0"},
		{"poll beyond timeout", func(c *Config) { c.PollInterval = c.ReceiptTimeout }, "must be shorter than receipt-timeout"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "request-timeout must be > 0"},
		{"unknown scenario", func(c *Config) { c.Scenarios = []string{"ballot", "lottery"} }, `unknown scenario "lottery"`},
		{"one endpoint for ballot", func(c *Config) { c.Endpoints = c.Endpoints[:1] }, "scenario ballot needs 2 endpoints"},
		{"duplicate endpoint for ballot", func(c *Config) { c.Endpoints[1] = c.Endpoints[0] }, "is listed twice"},
		{"duplicate endpoint for single-session scenarios", func(c *Config) {
			c.Endpoints[1] = c.Endpoints[0]
			c.Scenarios = []string{"deploy-details"}
		}, ""},
		{"one endpoint for single-session scenarios", func(c *Config) {
			c.Endpoints = c.Endpoints[:1]
			c.Scenarios = []string{"deploy-details", "log-filter"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("unexpected error message: %v", err)
			}
		})
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "proxycheck.yaml")
	data := `
endpoints:
  - http://proxy-a:5000
  - http://proxy-b:5000
receipt-timeout: 1m
poll-interval: 500ms
scenarios: [ballot]
`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := validConfig()
	if err := loadConfigFile(file, cfg); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1] != "http://proxy-b:5000" {
		t.Errorf("endpoints: %v", cfg.Endpoints)
	}
	if time.Duration(cfg.ReceiptTimeout) != time.Minute {
		t.Errorf("receipt timeout: %v", cfg.ReceiptTimeout)
	}
	if time.Duration(cfg.PollInterval) != 500*time.Millisecond {
		t.Errorf("poll interval: %v", cfg.PollInterval)
	}
	if time.Duration(cfg.RequestTimeout) != 15*time.Second {
		t.Errorf("request timeout should keep its default, have %v", cfg.RequestTimeout)
	}
	if len(cfg.Scenarios) != 1 || cfg.Scenarios[0] != "ballot" {
		t.Errorf("scenarios: %v", cfg.Scenarios)
	}
}

func TestLoadConfigFileYAMLUnknownKey(t *testing.T) {
	file := filepath.Join(t.TempDir(), "proxycheck.yml")
	if err := os.WriteFile(file, []byte("endpoint: http://x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadConfigFile(file, validConfig()); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadConfigFileTOML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "proxycheck.toml")
	data := `Endpoints = ["http://proxy-a:5000"]
ReceiptTimeout = "45s"
Gas = 3000000
Scenarios = ["log-filter"]
`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := validConfig()
	if err := loadConfigFile(file, cfg); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Endpoints) != 1 {
		t.Errorf("endpoints: %v", cfg.Endpoints)
	}
	if time.Duration(cfg.ReceiptTimeout) != 45*time.Second {
		t.Errorf("receipt timeout: %v", cfg.ReceiptTimeout)
	}
	if cfg.Gas != 3000000 {
		t.Errorf("gas: %d", cfg.Gas)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigFileTOMLUnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "proxycheck.toml")
	if err := os.WriteFile(file, []byte("Endpoint = \"http://x\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := loadConfigFile(file, validConfig())
	if err == nil || !strings.Contains(err.Error(), "field 'Endpoint' is not defined") {
		t.Fatalf("expected missing field error, got %v", err)
	}
}

func TestLoadJWTSecret(t *testing.T) {
	const hexKey = "0x7365637265747365637265747365637265747365637265747365637265747365"
	secret, err := loadJWTSecret(hexKey)
	if err != nil {
		t.Fatalf("hex secret: %v", err)
	}
	if len(secret) != 32 {
		t.Fatalf("secret length %d", len(secret))
	}

	file := filepath.Join(t.TempDir(), "jwt.hex")
	if err := os.WriteFile(file, []byte(hexKey[2:]+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	fromFile, err := loadJWTSecret(file)
	if err != nil {
		t.Fatalf("file secret: %v", err)
	}
	if string(fromFile) != string(secret) {
		t.Errorf("file secret differs")
	}

	if _, err := loadJWTSecret("0x1234"); err == nil {
		t.Error("short secret accepted")
	}
	if _, err := loadJWTSecret("not-hex"); err == nil {
		t.Error("non-hex secret accepted")
	}
}
