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

package ledger

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FilterLogs returns the logs matching q in block order. A query with a
// BlockHash ignores the range; a nil FromBlock starts at genesis and a nil
// ToBlock ends at the head.
func (l *Ledger) FilterLogs(q ethereum.FilterQuery) ([]*types.Log, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var blocks []*Block
	if q.BlockHash != nil {
		b, ok := l.byHash[*q.BlockHash]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, q.BlockHash.Hex())
		}
		blocks = []*Block{b}
	} else {
		head := uint64(len(l.blocks) - 1)
		from, to := uint64(0), head
		if q.FromBlock != nil {
			if q.FromBlock.Sign() < 0 {
				from = head
			} else {
				from = q.FromBlock.Uint64()
			}
		}
		if q.ToBlock != nil && q.ToBlock.Sign() >= 0 {
			to = q.ToBlock.Uint64()
		}
		if to > head {
			to = head
		}
		if from > to {
			return []*types.Log{}, nil
		}
		blocks = l.blocks[from : to+1]
	}
	crit := newCriteria(q.Addresses, q.Topics)
	out := []*types.Log{}
	for _, b := range blocks {
		for _, h := range b.Transactions {
			r := l.receipts[h]
			if r == nil {
				continue
			}
			for _, lg := range r.Logs {
				if crit.match(lg) {
					out = append(out, lg)
				}
			}
		}
	}
	return out, nil
}

// criteria holds the address and positional topic sets of a log query.
// An empty address set matches every address; a nil topic position matches
// every topic.
type criteria struct {
	addresses mapset.Set[common.Address]
	topics    []mapset.Set[common.Hash]
}

func newCriteria(addresses []common.Address, topics [][]common.Hash) *criteria {
	c := &criteria{
		addresses: mapset.NewThreadUnsafeSet(addresses...),
		topics:    make([]mapset.Set[common.Hash], len(topics)),
	}
	for i, sub := range topics {
		if len(sub) > 0 {
			c.topics[i] = mapset.NewThreadUnsafeSet(sub...)
		}
	}
	return c
}

// match applies the criteria the way eth_getLogs defines them.
func (c *criteria) match(lg *types.Log) bool {
	if c.addresses.Cardinality() > 0 && !c.addresses.Contains(lg.Address) {
		return false
	}
	if len(c.topics) > len(lg.Topics) {
		return false
	}
	for i, set := range c.topics {
		if set != nil && !set.Contains(lg.Topics[i]) {
			return false
		}
	}
	return true
}
