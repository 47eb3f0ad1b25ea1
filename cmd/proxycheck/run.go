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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/tkmct/proxycheck/report"
	"github.com/tkmct/proxycheck/scenario"
	"github.com/tkmct/proxycheck/session"
	"github.com/urfave/cli/v2"
)

func runCommand(ctx *cli.Context) error {
	cfg, err := buildConfigFromCLI(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	out, colour := reportOutput(ctx)
	sctx, stop := signalContext()
	defer stop()
	return runConformance(sctx, cfg, out, colour)
}

// reportOutput selects the report writer. Colour is used on terminals only.
func reportOutput(ctx *cli.Context) (io.Writer, bool) {
	if ctx.App.Writer != os.Stdout {
		return ctx.App.Writer, false
	}
	if ctx.Bool(noColorFlag.Name) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return os.Stdout, false
	}
	return colorable.NewColorableStdout(), true
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runConformance connects to every endpoint, prechecks them and runs the
// selected scenarios. Sessions are closed on every path.
func runConformance(ctx context.Context, cfg *Config, out io.Writer, colour bool) error {
	runID := uuid.New()
	logger := log.New("run", runID)
	start := time.Now()

	scenarios, err := cfg.selectedScenarios()
	if err != nil {
		return err
	}
	endpoints, err := cfg.sessionEndpoints()
	if err != nil {
		return err
	}
	logger.Info("Starting conformance run", "endpoints", len(endpoints), "scenarios", len(scenarios))

	sessions, err := session.ConnectAll(ctx, endpoints, cfg.sessionOptions())
	if err != nil {
		return err
	}
	defer session.CloseAll(sessions)

	rep := report.New(out, colour, cfg.Verbose)
	fmt.Fprintf(out, "proxycheck run %s\n", runID)
	if err := precheck(ctx, sessions, rep); err != nil {
		return err
	}
	fmt.Fprintln(out)

	o := scenario.New(sessions, rep)
	results, err := o.RunAll(ctx, scenarios)
	rep.Summary(len(scenarios))
	if err != nil {
		return err
	}
	logger.Info("Conformance run passed", "scenarios", len(results), "elapsed", elapsedSince(start))
	return nil
}

// precheck queries the optional endpoint metadata. Only an unreachable
// endpoint is fatal.
func precheck(ctx context.Context, sessions []session.Session, rep *report.Report) error {
	for _, s := range sessions {
		info, err := session.Describe(ctx, s)
		if err != nil {
			return err
		}
		log.Debug("Endpoint ready", "endpoint", s.Endpoint(), "identity", s.Identity(), "client", info.ClientVersion, "chain", info.ChainID, "head", info.BlockNumber)
		rep.Endpoint(s.Endpoint(), s.Identity().Hex(), info.String())
	}
	return nil
}
