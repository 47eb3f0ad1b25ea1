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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tkmct/proxycheck/events"
)

// The wire types below decode only the fields the harness inspects. Proxies
// in front of non-Ethereum ledgers routinely omit or zero the rest (bloom,
// gas accounting), so the strict go-ethereum core types are not used here.

// Receipt is the subset of eth_getTransactionReceipt the harness checks.
type Receipt struct {
	TxHash          common.Hash     `json:"transactionHash"`
	TxIndex         hexutil.Uint64  `json:"transactionIndex"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	From            OptionalAddress `json:"from"`
	To              OptionalAddress `json:"to"`
	ContractAddress OptionalAddress `json:"contractAddress"`
	Status          *hexutil.Uint64 `json:"status"`
	Logs            []*Log          `json:"logs"`
}

// Succeeded reports whether the receipt does not carry a failure status.
// Receipts without a status field count as successful.
func (r *Receipt) Succeeded() bool {
	return r.Status == nil || *r.Status == 1
}

// EventLogs converts the receipt logs for the event decoder.
func (r *Receipt) EventLogs() []events.Log {
	out := make([]events.Log, 0, len(r.Logs))
	for _, l := range r.Logs {
		out = append(out, l.EventLog())
	}
	return out
}

// Log is a receipt or eth_getLogs entry.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     hexutil.Uint64 `json:"transactionIndex"`
	BlockHash   common.Hash    `json:"blockHash"`
	Index       hexutil.Uint64 `json:"logIndex"`
}

// EventLog strips the positional fields.
func (l *Log) EventLog() events.Log {
	return events.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
}

// Transaction is the subset of eth_getTransactionByHash the harness checks.
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockHash   *common.Hash    `json:"blockHash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	TxIndex     *hexutil.Uint64 `json:"transactionIndex"`
	From        OptionalAddress `json:"from"`
	To          OptionalAddress `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
}

// Block is an eth_getBlockByNumber result. Transactions are reduced to their
// hashes whether the proxy returned hashes or full objects.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Transactions []common.Hash  `json:"-"`
}

func (b *Block) UnmarshalJSON(input []byte) error {
	type block Block
	var dec struct {
		block
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	*b = Block(dec.block)
	b.Transactions = make([]common.Hash, 0, len(dec.Transactions))
	for i, raw := range dec.Transactions {
		var h common.Hash
		if len(raw) > 0 && raw[0] == '{' {
			var tx struct {
				Hash common.Hash `json:"hash"`
			}
			if err := json.Unmarshal(raw, &tx); err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			h = tx.Hash
		} else if err := json.Unmarshal(raw, &h); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		b.Transactions = append(b.Transactions, h)
	}
	return nil
}

// OptionalAddress decodes an address that a proxy may report as null, an
// empty string or the zero address.
type OptionalAddress struct {
	Addr  common.Address
	Valid bool
}

// Ptr returns the address or nil when absent.
func (a OptionalAddress) Ptr() *common.Address {
	if !a.Valid {
		return nil
	}
	addr := a.Addr
	return &addr
}

func (a OptionalAddress) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Addr)
}

func (a *OptionalAddress) UnmarshalJSON(input []byte) error {
	*a = OptionalAddress{}
	if bytes.Equal(input, []byte("null")) || bytes.Equal(input, []byte(`""`)) || bytes.Equal(input, []byte(`"0x"`)) {
		return nil
	}
	if err := a.Addr.UnmarshalJSON(input); err != nil {
		return err
	}
	a.Valid = a.Addr != (common.Address{})
	return nil
}
