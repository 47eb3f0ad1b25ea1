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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogQuery is an eth_getLogs filter. BlockHash is exclusive with the block
// range. Topics are positional; a nil position matches anything and a
// position with several hashes matches any of them.
type LogQuery struct {
	BlockHash *common.Hash
	FromBlock *uint64
	ToBlock   *uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (q LogQuery) toArg() map[string]any {
	arg := map[string]any{}
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = hexutil.Uint64(*q.FromBlock)
		}
		if q.ToBlock != nil {
			arg["toBlock"] = hexutil.Uint64(*q.ToBlock)
		}
	}
	if len(q.Addresses) == 1 {
		arg["address"] = q.Addresses[0]
	} else if len(q.Addresses) > 1 {
		arg["address"] = q.Addresses
	}
	if len(q.Topics) > 0 {
		topics := make([]any, len(q.Topics))
		for i, pos := range q.Topics {
			switch len(pos) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = pos[0]
			default:
				topics[i] = pos
			}
		}
		arg["topics"] = topics
	}
	return arg
}

func (s *rpcSession) GetLogs(ctx context.Context, q LogQuery) ([]*Log, error) {
	var logs []*Log
	if err := s.call(ctx, &logs, "eth_getLogs", q.toArg()); err != nil {
		return nil, err
	}
	return logs, nil
}
