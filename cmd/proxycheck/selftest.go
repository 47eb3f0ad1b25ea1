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
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/refproxy"
	"github.com/urfave/cli/v2"
)

// selftestCommand starts a reference proxy cluster and runs the scenarios
// against it. Configured endpoints are replaced by the cluster's.
func selftestCommand(ctx *cli.Context) error {
	cfg, err := buildConfigFromCLI(ctx)
	if err != nil {
		return err
	}
	users := ctx.StringSlice(usersFlag.Name)
	pcfg := refproxy.Config{
		Users:        users,
		ChainID:      1337,
		ReceiptDelay: ctx.Duration(receiptDelayFlag.Name),
	}
	if ctx.Bool(selftestJWTFlag.Name) {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		pcfg.JWTSecret = secret
		cfg.JWTSecrets = make([]string, len(users))
		for i := range users {
			cfg.JWTSecrets[i] = hexSecret(secret)
		}
	} else {
		cfg.JWTSecrets = nil
	}
	cluster, err := refproxy.NewCluster(pcfg)
	if err != nil {
		return fmt.Errorf("reference proxy: %w", err)
	}
	stop := cluster.Start()
	defer stop()

	cfg.Endpoints = cluster.URLs()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log.Info("Started reference proxy", "endpoints", len(cfg.Endpoints), "auth", pcfg.JWTSecret != nil, "receipt-delay", pcfg.ReceiptDelay)

	out, colour := reportOutput(ctx)
	sctx, cancel := signalContext()
	defer cancel()
	return runConformance(sctx, cfg, out, colour)
}
