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
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naoina/toml"
	"github.com/tkmct/proxycheck/scenario"
	"github.com/tkmct/proxycheck/session"
	"gopkg.in/yaml.v3"
)

// Config is the resolved harness configuration.
type Config struct {
	Endpoints      []string
	JWTSecrets     []string `toml:",omitempty"`
	ReceiptTimeout Duration
	PollInterval   Duration
	RequestTimeout Duration
	Gas            uint64 `toml:",omitempty"`
	Scenarios      []string
	Verbose        bool `toml:",omitempty"`
}

// Duration is a time.Duration read from config files in its string form.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// yamlConfig maps the kebab-case keys of YAML config files.
type yamlConfig struct {
	Endpoints      []string  `yaml:"endpoints"`
	JWTSecrets     []string  `yaml:"jwt-secrets"`
	ReceiptTimeout *Duration `yaml:"receipt-timeout"`
	PollInterval   *Duration `yaml:"poll-interval"`
	RequestTimeout *Duration `yaml:"request-timeout"`
	Gas            *uint64   `yaml:"gas"`
	Scenarios      []string  `yaml:"scenarios"`
	Verbose        *bool     `yaml:"verbose"`
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, id, link)
	},
}

// loadConfigFile merges a YAML (.yaml, .yml) or TOML (anything else) file
// into cfg. Keys absent from the file leave cfg untouched.
func loadConfigFile(file string, cfg *Config) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	lower := strings.ToLower(file)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return decodeYAML(data, cfg)
	}
	err = tomlSettings.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func decodeYAML(data []byte, cfg *Config) error {
	var yc yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if yc.Endpoints != nil {
		cfg.Endpoints = yc.Endpoints
	}
	if yc.JWTSecrets != nil {
		cfg.JWTSecrets = yc.JWTSecrets
	}
	if yc.ReceiptTimeout != nil {
		cfg.ReceiptTimeout = *yc.ReceiptTimeout
	}
	if yc.PollInterval != nil {
		cfg.PollInterval = *yc.PollInterval
	}
	if yc.RequestTimeout != nil {
		cfg.RequestTimeout = *yc.RequestTimeout
	}
	if yc.Gas != nil {
		cfg.Gas = *yc.Gas
	}
	if yc.Scenarios != nil {
		cfg.Scenarios = yc.Scenarios
	}
	if yc.Verbose != nil {
		cfg.Verbose = *yc.Verbose
	}
	return nil
}

// dumpConfig writes cfg as TOML.
func dumpConfig(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// selectedScenarios resolves the scenario names; "all" or none selects
// every built-in scenario.
func (c *Config) selectedScenarios() ([]*scenario.Scenario, error) {
	for _, name := range c.Scenarios {
		if name == "all" {
			return scenario.All(), nil
		}
	}
	return scenario.ByName(c.Scenarios...)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for _, ep := range c.Endpoints {
		if ep == "" {
			return fmt.Errorf("endpoint must not be empty")
		}
	}
	if n := len(c.JWTSecrets); n != 0 && n != len(c.Endpoints) {
		return fmt.Errorf("jwt-secret given %d times for %d endpoints", n, len(c.Endpoints))
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt-timeout must be > 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if c.PollInterval >= c.ReceiptTimeout {
		return fmt.Errorf("poll-interval (%v) must be shorter than receipt-timeout (%v)", c.PollInterval, c.ReceiptTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}
	scenarios, err := c.selectedScenarios()
	if err != nil {
		return err
	}
	for _, sc := range scenarios {
		if sc.MinSessions > len(c.Endpoints) {
			return fmt.Errorf("scenario %s needs %d endpoints, %d configured", sc.Name, sc.MinSessions, len(c.Endpoints))
		}
		if sc.MinSessions < 2 {
			continue
		}
		seen := make(map[string]bool, sc.MinSessions)
		for _, ep := range c.Endpoints[:sc.MinSessions] {
			if seen[ep] {
				return fmt.Errorf("scenario %s needs %d distinct endpoints, %s is listed twice", sc.Name, sc.MinSessions, ep)
			}
			seen[ep] = true
		}
	}
	return nil
}

// sessionOptions converts the timing settings.
func (c *Config) sessionOptions() session.Options {
	return session.Options{
		ReceiptTimeout: time.Duration(c.ReceiptTimeout),
		PollInterval:   time.Duration(c.PollInterval),
		RequestTimeout: time.Duration(c.RequestTimeout),
		Gas:            c.Gas,
	}
}

// sessionEndpoints pairs every endpoint with its JWT secret.
func (c *Config) sessionEndpoints() ([]session.Endpoint, error) {
	endpoints := make([]session.Endpoint, len(c.Endpoints))
	for i, url := range c.Endpoints {
		endpoints[i].URL = url
		if i < len(c.JWTSecrets) && c.JWTSecrets[i] != "" {
			secret, err := loadJWTSecret(c.JWTSecrets[i])
			if err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", url, err)
			}
			endpoints[i].JWTSecret = secret
		}
	}
	return endpoints, nil
}

// loadJWTSecret accepts a hex encoded 32 byte secret or the path of a file
// containing one.
func loadJWTSecret(value string) ([]byte, error) {
	text := strings.TrimSpace(value)
	if data, err := os.ReadFile(text); err == nil {
		text = strings.TrimSpace(string(data))
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid jwt secret: %w", err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("invalid jwt secret: want 32 bytes, have %d", len(secret))
	}
	return secret, nil
}

// hexSecret is the form loadJWTSecret accepts.
func hexSecret(secret []byte) string {
	return common.Bytes2Hex(secret)
}
