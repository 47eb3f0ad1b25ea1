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

// proxycheck checks that an Ethereum JSON-RPC proxy exposes consistent,
// EVM-faithful state to the clients connected through it.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/tkmct/proxycheck/internal/debug"
	"github.com/tkmct/proxycheck/session"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML or TOML configuration file",
	}
	endpointFlag = &cli.StringSliceFlag{
		Name:    "endpoint",
		Usage:   "Proxy JSON-RPC endpoint, one per identity (repeatable)",
		EnvVars: []string{"PROXYCHECK_ENDPOINT"},
	}
	jwtSecretFlag = &cli.StringSliceFlag{
		Name:  "jwt-secret",
		Usage: "Hex JWT secret or secret file per endpoint, in endpoint order",
	}
	receiptTimeoutFlag = &cli.DurationFlag{
		Name:  "receipt-timeout",
		Usage: "Maximum time to wait for a transaction receipt",
		Value: session.DefaultOptions.ReceiptTimeout,
	}
	pollIntervalFlag = &cli.DurationFlag{
		Name:  "poll-interval",
		Usage: "Receipt polling interval",
		Value: session.DefaultOptions.PollInterval,
	}
	requestTimeoutFlag = &cli.DurationFlag{
		Name:  "request-timeout",
		Usage: "Timeout of a single JSON-RPC request",
		Value: session.DefaultOptions.RequestTimeout,
	}
	gasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas limit sent with transactions (0 = let the proxy decide)",
	}
	scenarioFlag = &cli.StringSliceFlag{
		Name:  "scenario",
		Usage: "Scenario to run (repeatable; all, " + strings.Join(scenarioNames(), ", ") + ")",
		Value: cli.NewStringSlice("all"),
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Print passing steps and the metrics summary",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable coloured report output",
	}

	// Self-test flags
	usersFlag = &cli.StringSliceFlag{
		Name:  "users",
		Usage: "Reference proxy users, one endpoint each",
		Value: cli.NewStringSlice("alice", "bob"),
	}
	receiptDelayFlag = &cli.DurationFlag{
		Name:  "receipt-delay",
		Usage: "Hide receipts of the reference proxy for this long",
	}
	selftestJWTFlag = &cli.BoolFlag{
		Name:  "auth",
		Usage: "Protect the reference endpoints with a generated JWT secret",
	}

	harnessFlags = []cli.Flag{
		configFileFlag,
		endpointFlag,
		jwtSecretFlag,
		receiptTimeoutFlag,
		pollIntervalFlag,
		requestTimeoutFlag,
		gasFlag,
		scenarioFlag,
		verboseFlag,
		noColorFlag,
	}
)

var app = newApp()

func newApp() *cli.App {
	return &cli.App{
		Name:  "proxycheck",
		Usage: "Conformance harness for Ethereum JSON-RPC proxies",
		Flags: append(append([]cli.Flag{}, harnessFlags...), debug.Flags...),
		Before: func(ctx *cli.Context) error {
			metrics.Enable()
			return debug.Setup(ctx)
		},
		After: func(ctx *cli.Context) error {
			debug.Exit()
			return nil
		},
		Action: runCommand,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run scenarios against proxy endpoints",
				Flags:  harnessFlags,
				Action: runCommand,
			},
			{
				Name:   "selftest",
				Usage:  "Run scenarios against an in-process reference proxy",
				Flags:  append(append([]cli.Flag{}, harnessFlags...), usersFlag, receiptDelayFlag, selftestJWTFlag),
				Action: selftestCommand,
			},
			{
				Name:   "fixtures",
				Usage:  "Print the embedded contract fixtures",
				Action: fixturesCommand,
			},
			{
				Name:   "dumpconfig",
				Usage:  "Print the effective configuration as TOML",
				Flags:  harnessFlags,
				Action: dumpConfigCommand,
			},
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Crit("Conformance check failed", "err", err)
	}
}

// buildConfigFromCLI reads the config file, if any, and applies the flags
// set on the command line on top of it.
func buildConfigFromCLI(ctx *cli.Context) (*Config, error) {
	cfg := &Config{
		ReceiptTimeout: Duration(ctx.Duration(receiptTimeoutFlag.Name)),
		PollInterval:   Duration(ctx.Duration(pollIntervalFlag.Name)),
		RequestTimeout: Duration(ctx.Duration(requestTimeoutFlag.Name)),
		Gas:            ctx.Uint64(gasFlag.Name),
		Scenarios:      ctx.StringSlice(scenarioFlag.Name),
		Verbose:        ctx.Bool(verboseFlag.Name),
	}
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfigFile(file, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	if ctx.IsSet(endpointFlag.Name) {
		cfg.Endpoints = ctx.StringSlice(endpointFlag.Name)
	}
	if ctx.IsSet(jwtSecretFlag.Name) {
		cfg.JWTSecrets = ctx.StringSlice(jwtSecretFlag.Name)
	}
	if ctx.IsSet(receiptTimeoutFlag.Name) {
		cfg.ReceiptTimeout = Duration(ctx.Duration(receiptTimeoutFlag.Name))
	}
	if ctx.IsSet(pollIntervalFlag.Name) {
		cfg.PollInterval = Duration(ctx.Duration(pollIntervalFlag.Name))
	}
	if ctx.IsSet(requestTimeoutFlag.Name) {
		cfg.RequestTimeout = Duration(ctx.Duration(requestTimeoutFlag.Name))
	}
	if ctx.IsSet(gasFlag.Name) {
		cfg.Gas = ctx.Uint64(gasFlag.Name)
	}
	if ctx.IsSet(scenarioFlag.Name) {
		cfg.Scenarios = ctx.StringSlice(scenarioFlag.Name)
	}
	if ctx.IsSet(verboseFlag.Name) {
		cfg.Verbose = ctx.Bool(verboseFlag.Name)
	}
	return cfg, nil
}

func dumpConfigCommand(ctx *cli.Context) error {
	cfg, err := buildConfigFromCLI(ctx)
	if err != nil {
		return err
	}
	return dumpConfig(ctx.App.Writer, cfg)
}

func elapsedSince(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
