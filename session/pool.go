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

package session

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/failure"
	"golang.org/x/sync/errgroup"
)

// Endpoint is one proxy instance to open a session against.
type Endpoint struct {
	URL       string
	JWTSecret []byte
}

// ConnectAll opens one session per endpoint concurrently. Either every
// session is returned or none is: on failure the ones already opened are
// closed. Sessions on different endpoints must act as different identities.
func ConnectAll(ctx context.Context, endpoints []Endpoint, opts Options) ([]Session, error) {
	sessions := make([]Session, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		g.Go(func() error {
			o := opts
			if len(ep.JWTSecret) > 0 {
				o.JWTSecret = ep.JWTSecret
			}
			s, err := Connect(gctx, ep.URL, o)
			if err != nil {
				return err
			}
			sessions[i] = s
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = checkDistinct(sessions)
	}
	if err != nil {
		CloseAll(sessions)
		return nil, err
	}
	for i, s := range sessions {
		log.Info("Connected session", "index", i, "endpoint", s.Endpoint(), "identity", s.Identity())
	}
	return sessions, nil
}

func checkDistinct(sessions []Session) error {
	for i := range sessions {
		for j := i + 1; j < len(sessions); j++ {
			a, b := sessions[i], sessions[j]
			if a.Endpoint() != b.Endpoint() && a.Identity() == b.Identity() {
				return failure.New(failure.NoAccount, "%s and %s both act as %s", a.Endpoint(), b.Endpoint(), a.Identity().Hex())
			}
		}
	}
	return nil
}

// CloseAll closes every non-nil session.
func CloseAll(sessions []Session) {
	for _, s := range sessions {
		if s != nil {
			s.Close()
		}
	}
}

// Info describes an endpoint beyond what the Session contract requires.
// Fields stay empty when the proxy does not implement the method.
type Info struct {
	ClientVersion string
	ChainID       uint64
	BlockNumber   uint64
}

func (i Info) String() string {
	return fmt.Sprintf("client=%q chain=%d head=%d", i.ClientVersion, i.ChainID, i.BlockNumber)
}

// Describe queries optional endpoint metadata. Only a failing
// eth_blockNumber is reported as an error.
func Describe(ctx context.Context, s Session) (Info, error) {
	var info Info
	if rs, ok := s.(*rpcSession); ok {
		var version string
		if err := rs.call(ctx, &version, "web3_clientVersion"); err != nil {
			rs.log.Debug("web3_clientVersion unavailable", "err", err)
		}
		info.ClientVersion = version
		if id, err := rs.eth.ChainID(ctx); err == nil {
			info.ChainID = id.Uint64()
		} else {
			rs.log.Debug("eth_chainId unavailable", "err", err)
		}
	}
	n, err := s.BlockNumber(ctx)
	if err != nil {
		return info, err
	}
	info.BlockNumber = n
	return info, nil
}
