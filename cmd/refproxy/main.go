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

// refproxy serves the in-memory reference proxy, one JSON-RPC endpoint per
// user, all backed by the same ledger.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/internal/debug"
	"github.com/tkmct/proxycheck/refproxy"
	"github.com/urfave/cli/v2"
)

var (
	usersFlag = &cli.StringSliceFlag{
		Name:  "users",
		Usage: "Users to serve, one endpoint each",
		Value: cli.NewStringSlice("alice", "bob"),
	}
	listenFlag = &cli.StringSliceFlag{
		Name:  "listen",
		Usage: "Listen address per user, in user order (default: random local port)",
		Value: cli.NewStringSlice("127.0.0.1:5000", "127.0.0.1:5001"),
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "Chain id reported by eth_chainId and net_version",
		Value: 1337,
	}
	receiptDelayFlag = &cli.DurationFlag{
		Name:  "receipt-delay",
		Usage: "Hide receipts for this long after submission",
	}
	corsDomainFlag = &cli.StringFlag{
		Name:  "http.corsdomain",
		Usage: "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
	}
	jwtSecretFlag = &cli.StringFlag{
		Name:  "jwt-secret",
		Usage: "Hex encoded HS256 secret required from every client",
	}
)

var app = &cli.App{
	Name:  "refproxy",
	Usage: "In-memory reference Ethereum JSON-RPC proxy",
	Flags: append([]cli.Flag{
		usersFlag,
		listenFlag,
		chainIDFlag,
		receiptDelayFlag,
		corsDomainFlag,
		jwtSecretFlag,
	}, debug.Flags...),
	Before: debug.Setup,
	After: func(*cli.Context) error {
		debug.Exit()
		return nil
	},
	Action: serve,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx *cli.Context) error {
	cfg := refproxy.Config{
		Users:        ctx.StringSlice(usersFlag.Name),
		ListenAddrs:  ctx.StringSlice(listenFlag.Name),
		ChainID:      ctx.Uint64(chainIDFlag.Name),
		ReceiptDelay: ctx.Duration(receiptDelayFlag.Name),
		CORSOrigins:  splitAndTrim(ctx.String(corsDomainFlag.Name)),
	}
	if s := ctx.String(jwtSecretFlag.Name); s != "" {
		secret, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return fmt.Errorf("invalid jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
	}
	cluster, err := refproxy.NewCluster(cfg)
	if err != nil {
		return err
	}
	log.Info("Starting reference proxy", "users", len(cfg.Users), "chain", cfg.ChainID, "auth", cfg.JWTSecret != nil)

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cluster.Serve(sctx)
}

// splitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func splitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}
