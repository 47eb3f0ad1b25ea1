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
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tkmct/proxycheck/failure"
)

func (s *rpcSession) WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	start := time.Now()
	defer receiptWaitTimer.UpdateSince(start)

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		r, err := s.GetTransactionReceipt(waitCtx, hash)
		switch {
		case err == nil:
			s.log.Trace("Receipt available", "tx", hash, "polls", polls, "elapsed", time.Since(start))
			return r, nil
		case !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			return nil, err
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			receiptTimeoutCounter.Inc(1)
			return nil, failure.New(failure.Timeout, "no receipt for %s after %v (%d polls)", hash.Hex(), s.opts.ReceiptTimeout, polls)
		case <-ticker.C:
		}
	}
}
