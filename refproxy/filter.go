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

package refproxy

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/eth/filters"
	"github.com/ethereum/go-ethereum/rpc"
)

// resolveBlockNumber resolves block tags against the head. The ledger seals
// every block immediately, so latest, safe, finalized and pending coincide.
func resolveBlockNumber(n rpc.BlockNumber, head uint64) uint64 {
	if n == rpc.EarliestBlockNumber {
		return 0
	}
	if n < 0 {
		return head
	}
	return uint64(n)
}

// logQuery turns decoded eth_getLogs criteria into a ledger query. The
// criteria carry block tags as negative numbers; they are resolved here.
func logQuery(crit filters.FilterCriteria, head uint64) ethereum.FilterQuery {
	q := ethereum.FilterQuery(crit)
	if q.FromBlock != nil {
		q.FromBlock = resolveTag(q.FromBlock, head)
	}
	if q.ToBlock != nil {
		q.ToBlock = resolveTag(q.ToBlock, head)
	}
	return q
}

func resolveTag(n *big.Int, head uint64) *big.Int {
	return new(big.Int).SetUint64(resolveBlockNumber(rpc.BlockNumber(n.Int64()), head))
}
