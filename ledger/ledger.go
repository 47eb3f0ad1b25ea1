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

// Package ledger is a single-node, in-memory EVM ledger. Every submitted
// transaction is executed immediately and sealed into its own block, which is
// enough to stand in for the backend of a JSON-RPC proxy in tests.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownBlock = errors.New("unknown block")
	ErrEmptyInput   = errors.New("contract creation without code")
)

// Config configures a ledger.
type Config struct {
	ChainID uint64
	// GasLimit caps each transaction. Zero selects DefaultGasLimit.
	GasLimit uint64
	// Alloc funds accounts in the genesis state.
	Alloc map[common.Address]*uint256.Int
	// Clock supplies block timestamps; defaults to time.Now.
	Clock func() time.Time
}

// DefaultGasLimit is the per-transaction gas cap when none is configured.
const DefaultGasLimit = 30_000_000

// Block is a sealed block.
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Time         uint64
	Transactions []common.Hash
}

// Transaction is an executed transaction.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Input       []byte
	Nonce       uint64
	Gas         uint64
	BlockNumber uint64
	BlockHash   common.Hash
	Index       uint64
}

// Receipt is the outcome of a transaction.
type Receipt struct {
	TxHash          common.Hash
	TxIndex         uint64
	BlockHash       common.Hash
	BlockNumber     uint64
	From            common.Address
	To              *common.Address
	ContractAddress *common.Address
	Status          uint64
	GasUsed         uint64
	Logs            []*types.Log
	// Err is the execution error of a failed transaction.
	Err error
}

// Ledger is safe for concurrent use. StateDB caches objects on read, so every
// state access holds mu exclusively; block and receipt lookups share it.
type Ledger struct {
	mu       sync.RWMutex
	cfg      Config
	state    *state.StateDB
	blocks   []*Block
	byHash   map[common.Hash]*Block
	txs      map[common.Hash]*Transaction
	receipts map[common.Hash]*Receipt
	nonces   map[common.Address]uint64
}

// New creates a ledger holding only the genesis block.
func New(cfg Config) (*Ledger, error) {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}
	for addr, balance := range cfg.Alloc {
		statedb.SetBalance(addr, balance, tracing.BalanceChangeUnspecified)
	}
	statedb.Finalise(true)

	l := &Ledger{
		cfg:      cfg,
		state:    statedb,
		byHash:   make(map[common.Hash]*Block),
		txs:      make(map[common.Hash]*Transaction),
		receipts: make(map[common.Hash]*Receipt),
		nonces:   make(map[common.Address]uint64),
	}
	l.seal(nil)
	return l, nil
}

// ChainID returns the configured chain id.
func (l *Ledger) ChainID() uint64 { return l.cfg.ChainID }

// seal appends a block holding txs. Callers hold the write lock.
func (l *Ledger) seal(txs []common.Hash) *Block {
	var parent common.Hash
	number := uint64(len(l.blocks))
	if number > 0 {
		parent = l.blocks[number-1].Hash
	}
	b := &Block{
		Number:       number,
		ParentHash:   parent,
		Time:         uint64(l.cfg.Clock().Unix()),
		Transactions: txs,
	}
	var enc [16]byte
	binary.BigEndian.PutUint64(enc[:8], b.Number)
	binary.BigEndian.PutUint64(enc[8:], b.Time)
	parts := [][]byte{parent.Bytes(), enc[:]}
	for _, h := range txs {
		parts = append(parts, h.Bytes())
	}
	b.Hash = crypto.Keccak256Hash(parts...)
	l.blocks = append(l.blocks, b)
	l.byHash[b.Hash] = b
	return b
}

func (l *Ledger) runtimeConfig(from common.Address, number, timestamp, gas uint64) *runtime.Config {
	return &runtime.Config{
		Origin:      from,
		BlockNumber: new(big.Int).SetUint64(number),
		Time:        timestamp,
		GasLimit:    gas,
		Value:       new(big.Int),
		State:       l.state,
	}
}

func txHash(from common.Address, nonce uint64, to *common.Address, input []byte) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	var dest []byte
	if to != nil {
		dest = to.Bytes()
	}
	return crypto.Keccak256Hash(from.Bytes(), n[:], dest, input)
}

// Submit executes a transaction from the given account and seals it into a
// new block. A nil to creates a contract. Execution failures do not return an
// error; they are recorded in the receipt status.
func (l *Ledger) Submit(from common.Address, to *common.Address, input []byte, gas uint64) (common.Hash, error) {
	if to == nil && len(input) == 0 {
		return common.Hash{}, ErrEmptyInput
	}
	if gas == 0 || gas > l.cfg.GasLimit {
		gas = l.cfg.GasLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce := l.nonces[from]
	l.nonces[from] = nonce + 1
	hash := txHash(from, nonce, to, input)

	number := uint64(len(l.blocks))
	now := l.cfg.Clock()
	cfg := l.runtimeConfig(from, number, uint64(now.Unix()), gas)
	l.state.SetTxContext(hash, 0)

	receipt := &Receipt{TxHash: hash, BlockNumber: number, From: from, To: to}
	var (
		leftover uint64
		err      error
	)
	if to == nil {
		var addr common.Address
		_, addr, leftover, err = runtime.Create(input, cfg)
		if err == nil {
			receipt.ContractAddress = &addr
		}
		receipt.GasUsed = params.TxGasContractCreation + gas - leftover
	} else {
		_, leftover, err = runtime.Call(*to, input, cfg)
		receipt.GasUsed = params.TxGas + gas - leftover
	}
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Err = err
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	for _, lg := range l.state.Logs() {
		if lg.TxHash == hash {
			receipt.Logs = append(receipt.Logs, lg)
		}
	}
	l.state.Finalise(true)

	block := l.seal([]common.Hash{hash})
	receipt.BlockHash = block.Hash
	for i, lg := range receipt.Logs {
		lg.BlockNumber = block.Number
		lg.BlockHash = block.Hash
		lg.TxIndex = 0
		lg.Index = uint(i)
	}
	l.receipts[hash] = receipt
	l.txs[hash] = &Transaction{
		Hash:        hash,
		From:        from,
		To:          to,
		Input:       common.CopyBytes(input),
		Nonce:       nonce,
		Gas:         gas,
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
	}
	log.Debug("Executed transaction", "tx", hash, "from", from, "block", block.Number, "status", receipt.Status, "logs", len(receipt.Logs), "err", err)
	return hash, nil
}

// Call executes input against a copy of the latest state and discards every
// change.
func (l *Ledger) Call(from common.Address, to common.Address, input []byte, gas uint64) ([]byte, error) {
	if gas == 0 || gas > l.cfg.GasLimit {
		gas = l.cfg.GasLimit
	}
	l.mu.Lock()
	head := l.blocks[len(l.blocks)-1]
	cfg := l.runtimeConfig(from, head.Number, head.Time, gas)
	cfg.State = l.state.Copy()
	l.mu.Unlock()

	ret, _, err := runtime.Call(to, input, cfg)
	return ret, err
}

// Code returns the code stored at addr.
func (l *Ledger) Code(addr common.Address) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return common.CopyBytes(l.state.GetCode(addr))
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetBalance(addr).Clone()
}

// Head returns the latest block number.
func (l *Ledger) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks) - 1)
}

func (l *Ledger) BlockByNumber(number uint64) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if number >= uint64(len(l.blocks)) {
		return nil, false
	}
	return l.blocks[number], true
}

func (l *Ledger) BlockByHash(hash common.Hash) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.byHash[hash]
	return b, ok
}

func (l *Ledger) Transaction(hash common.Hash) (*Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.txs[hash]
	return tx, ok
}

func (l *Ledger) Receipt(hash common.Hash) (*Receipt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.receipts[hash]
	return r, ok
}
