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

package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

func runSetup(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.App{
		Name:   "test",
		Flags:  Flags,
		Action: Setup,
	}
	return app.Run(append([]string{"test"}, args...))
}

func TestSetupLogFile(t *testing.T) {
	defer log.SetDefault(log.Root())
	defer Exit()

	file := filepath.Join(t.TempDir(), "logs", "proxycheck.log")
	if err := runSetup(t, "--log.format", "logfmt", "--log.file", file, "--verbosity", "4"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	log.Debug("Debug line", "key", "value")
	log.Trace("Trace line")
	Exit()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "msg=\"Debug line\"") || !strings.Contains(out, "key=value") {
		t.Errorf("debug line missing from log file:\n%s", out)
	}
	if strings.Contains(out, "Trace line") {
		t.Errorf("trace line logged at verbosity 4:\n%s", out)
	}
}

func TestSetupRotation(t *testing.T) {
	defer log.SetDefault(log.Root())
	defer Exit()

	file := filepath.Join(t.TempDir(), "rotating.log")
	if err := runSetup(t, "--log.format", "json", "--log.file", file, "--log.rotate"); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	log.Info("Rotated line")
	Exit()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"Rotated line"`) {
		t.Errorf("json line missing:\n%s", data)
	}
}

func TestSetupUnknownFormat(t *testing.T) {
	defer log.SetDefault(log.Root())

	err := runSetup(t, "--log.format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown log format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}
