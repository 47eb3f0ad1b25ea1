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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/eth/filters"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tkmct/proxycheck/ledger"
)

// TransactionArgs are the eth_sendTransaction and eth_call arguments. The
// zero address in To is treated as contract creation.
type TransactionArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (args *TransactionArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

func (args *TransactionArgs) gas() uint64 {
	if args.Gas != nil {
		return uint64(*args.Gas)
	}
	return 0
}

func (args *TransactionArgs) to() *common.Address {
	if args.To == nil || *args.To == (common.Address{}) {
		return nil
	}
	return args.To
}

// revertError carries the revert payload of a failed eth_call.
type revertError struct {
	msg  string
	data string
}

func (e *revertError) Error() string          { return e.msg }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }

func newRevertError(ret []byte) *revertError {
	msg := "execution reverted"
	if reason, err := abi.UnpackRevert(ret); err == nil {
		msg += ": " + reason
	}
	return &revertError{msg: msg, data: hexutil.Encode(ret)}
}

// EthAPI serves the eth namespace for one identity.
type EthAPI struct {
	ledger   *ledger.Ledger
	identity common.Address
	delay    time.Duration

	mu      sync.Mutex
	visible map[common.Hash]time.Time
}

func newEthAPI(l *ledger.Ledger, identity common.Address, receiptDelay time.Duration) *EthAPI {
	return &EthAPI{
		ledger:   l,
		identity: identity,
		delay:    receiptDelay,
		visible:  make(map[common.Hash]time.Time),
	}
}

// Accounts returns the single identity this endpoint signs for.
func (api *EthAPI) Accounts() []common.Address {
	return []common.Address{api.identity}
}

func (api *EthAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(api.ledger.ChainID())
}

func (api *EthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.ledger.Head())
}

// SendTransaction executes the transaction as the endpoint identity. A from
// field naming any other account is rejected.
func (api *EthAPI) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From != nil && *args.From != api.identity {
		return common.Hash{}, fmt.Errorf("unknown account %s", args.From.Hex())
	}
	if args.Value != nil && args.Value.ToInt().Sign() != 0 {
		return common.Hash{}, errors.New("value transfers are not supported")
	}
	hash, err := api.ledger.Submit(api.identity, args.to(), args.data(), args.gas())
	if err != nil {
		return common.Hash{}, err
	}
	if api.delay > 0 {
		api.mu.Lock()
		api.visible[hash] = time.Now().Add(api.delay)
		api.mu.Unlock()
	}
	requestCounter.Inc(1)
	log.Debug("Accepted transaction", "tx", hash, "from", api.identity)
	return hash, nil
}

// Call runs a read-only call. Only the latest state is available, so the
// block argument is accepted and ignored.
func (api *EthAPI) Call(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	to := args.to()
	if to == nil {
		return nil, errors.New("missing call target")
	}
	from := api.identity
	if args.From != nil {
		from = *args.From
	}
	ret, err := api.ledger.Call(from, *to, args.data(), args.gas())
	if errors.Is(err, vm.ErrExecutionReverted) {
		return nil, newRevertError(ret)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (api *EthAPI) GetCode(ctx context.Context, address common.Address, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	return api.ledger.Code(address), nil
}

// pending reports whether hash was submitted here and is still inside the
// configured processing delay.
func (api *EthAPI) pending(hash common.Hash) bool {
	api.mu.Lock()
	defer api.mu.Unlock()
	at, ok := api.visible[hash]
	if !ok {
		return false
	}
	if time.Now().Before(at) {
		return true
	}
	delete(api.visible, hash)
	return false
}

// GetTransactionReceipt returns null while the transaction is unknown or
// still being processed.
func (api *EthAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]interface{}, error) {
	if api.pending(hash) {
		return nil, nil
	}
	r, ok := api.ledger.Receipt(hash)
	if !ok {
		return nil, nil
	}
	fields := map[string]interface{}{
		"transactionHash":   r.TxHash,
		"transactionIndex":  hexutil.Uint64(r.TxIndex),
		"blockHash":         r.BlockHash,
		"blockNumber":       hexutil.Uint64(r.BlockNumber),
		"from":              r.From,
		"to":                r.To,
		"contractAddress":   nil,
		"gasUsed":           hexutil.Uint64(r.GasUsed),
		"cumulativeGasUsed": hexutil.Uint64(r.GasUsed),
		"status":            hexutil.Uint64(r.Status),
		"logs":              r.Logs,
	}
	if r.ContractAddress != nil {
		fields["contractAddress"] = r.ContractAddress
	}
	if r.Logs == nil {
		fields["logs"] = []*types.Log{}
	}
	return fields, nil
}

func (api *EthAPI) GetTransactionByHash(ctx context.Context, hash common.Hash) (map[string]interface{}, error) {
	tx, ok := api.ledger.Transaction(hash)
	if !ok {
		return nil, nil
	}
	return marshalTransaction(tx), nil
}

func marshalTransaction(tx *ledger.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"hash":             tx.Hash,
		"from":             tx.From,
		"to":               tx.To,
		"input":            hexutil.Bytes(tx.Input),
		"nonce":            hexutil.Uint64(tx.Nonce),
		"gas":              hexutil.Uint64(tx.Gas),
		"gasPrice":         hexutil.Uint64(0),
		"value":            hexutil.Uint64(0),
		"blockHash":        tx.BlockHash,
		"blockNumber":      hexutil.Uint64(tx.BlockNumber),
		"transactionIndex": hexutil.Uint64(tx.Index),
	}
}

func (api *EthAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	b, ok := api.ledger.BlockByNumber(resolveBlockNumber(number, api.ledger.Head()))
	if !ok {
		return nil, nil
	}
	return api.marshalBlock(b, fullTx), nil
}

func (api *EthAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	b, ok := api.ledger.BlockByHash(hash)
	if !ok {
		return nil, nil
	}
	return api.marshalBlock(b, fullTx), nil
}

func (api *EthAPI) marshalBlock(b *ledger.Block, fullTx bool) map[string]interface{} {
	txs := make([]interface{}, 0, len(b.Transactions))
	for _, h := range b.Transactions {
		if !fullTx {
			txs = append(txs, h)
			continue
		}
		if tx, ok := api.ledger.Transaction(h); ok {
			txs = append(txs, marshalTransaction(tx))
		}
	}
	return map[string]interface{}{
		"number":       hexutil.Uint64(b.Number),
		"hash":         b.Hash,
		"parentHash":   b.ParentHash,
		"timestamp":    hexutil.Uint64(b.Time),
		"gasLimit":     hexutil.Uint64(ledger.DefaultGasLimit),
		"transactions": txs,
	}
}

// GetLogs filters logs by block hash or range, address and topics.
func (api *EthAPI) GetLogs(ctx context.Context, crit filters.FilterCriteria) ([]*types.Log, error) {
	return api.ledger.FilterLogs(logQuery(crit, api.ledger.Head()))
}

// Web3API serves the web3 namespace.
type Web3API struct {
	version string
}

func (api *Web3API) ClientVersion() string { return api.version }

// NetAPI serves the net namespace.
type NetAPI struct {
	chainID uint64
}

func (api *NetAPI) Version() string { return fmt.Sprintf("%d", api.chainID) }
