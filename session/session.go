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

// Package session implements authenticated JSON-RPC sessions against an
// Ethereum-compatible proxy. A session acts as exactly one identity: the first
// account the endpoint reports. Transactions are submitted unsigned through
// eth_sendTransaction and signed by the proxy on behalf of that identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
)

// ErrTransactionFailed is returned when the proxy rejects a transaction or
// its receipt reports a failure status. It is an observable outcome, not a
// harness failure: scenarios decide whether it was expected.
var ErrTransactionFailed = errors.New("transaction failed")

// ErrCallReverted is returned when the proxy answers an eth_call with an
// execution error such as a revert or an invalid opcode.
var ErrCallReverted = errors.New("call reverted")

// Session is one authenticated connection to one proxy endpoint, bound to a
// single identity for its whole lifetime.
type Session interface {
	// Endpoint is the URL the session is connected to.
	Endpoint() string
	// Identity is the account every transaction of this session is sent from.
	Identity() common.Address

	// Deploy submits a contract creation and waits until its receipt is
	// available. The returned hash identifies the deployment transaction.
	Deploy(ctx context.Context, c *fixtures.Contract, args ...any) (common.Hash, error)
	// Send submits a state changing call and waits for its receipt.
	Send(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) (common.Hash, error)
	// Call executes a read-only call against the latest state.
	Call(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error)
	// Bind returns a handle for repeated interaction with one contract.
	Bind(address common.Address, contractABI *abi.ABI) *BoundContract

	GetCode(ctx context.Context, address common.Address) ([]byte, error)
	// GetTransactionReceipt looks the receipt up once, returning
	// ethereum.NotFound while the transaction is unprocessed.
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	// WaitReceipt polls for a receipt until it exists or the receipt timeout
	// expires.
	WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error)
	GetBlockByNumber(ctx context.Context, number uint64) (*Block, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, q LogQuery) ([]*Log, error)

	Close()
}

// Options tunes a session.
type Options struct {
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	// RequestTimeout bounds each individual JSON-RPC request; zero disables it.
	RequestTimeout time.Duration
	// Gas is passed with every transaction when non-zero. Proxies that do not
	// meter gas ignore it.
	Gas uint64
	// JWTSecret enables HS256 bearer authentication when non-empty.
	JWTSecret []byte
}

// DefaultOptions are used for zero fields of the supplied options.
var DefaultOptions = Options{
	ReceiptTimeout: 30 * time.Second,
	PollInterval:   250 * time.Millisecond,
	RequestTimeout: 15 * time.Second,
}

func (o Options) withDefaults() Options {
	if o.ReceiptTimeout <= 0 {
		o.ReceiptTimeout = DefaultOptions.ReceiptTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOptions.PollInterval
	}
	return o
}

// rpcSession is the JSON-RPC backed Session.
type rpcSession struct {
	endpoint string
	identity common.Address
	opts     Options

	client *rpc.Client
	eth    *ethclient.Client
	log    log.Logger
}

// Connect dials endpoint and resolves the session identity. It fails with a
// Connection failure when the endpoint is unreachable and a NoAccount failure
// when it exposes no usable account.
func Connect(ctx context.Context, endpoint string, opts Options) (Session, error) {
	opts = opts.withDefaults()
	var dialOpts []rpc.ClientOption
	if len(opts.JWTSecret) > 0 {
		dialOpts = append(dialOpts, rpc.WithHTTPAuth(newJWTAuth(opts.JWTSecret)))
	}
	client, err := rpc.DialOptions(ctx, endpoint, dialOpts...)
	if err != nil {
		return nil, failure.Wrap(failure.Connection, err, "dial %s", endpoint)
	}
	s := &rpcSession{
		endpoint: endpoint,
		opts:     opts,
		client:   client,
		eth:      ethclient.NewClient(client),
	}
	identity, err := s.resolveIdentity(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.identity = identity
	s.log = log.New("endpoint", endpoint, "identity", identity)
	s.log.Debug("Session established")
	return s, nil
}

func (s *rpcSession) resolveIdentity(ctx context.Context) (common.Address, error) {
	var accounts []common.Address
	if err := s.call(ctx, &accounts, "eth_accounts"); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return common.Address{}, failure.Wrap(failure.NoAccount, err, "%s refuses eth_accounts", s.endpoint)
		}
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, failure.New(failure.NoAccount, "%s reports no accounts", s.endpoint)
	}
	if accounts[0] == (common.Address{}) {
		return common.Address{}, failure.New(failure.NoAccount, "%s reports the zero address as its account", s.endpoint)
	}
	return accounts[0], nil
}

func (s *rpcSession) Endpoint() string         { return s.endpoint }
func (s *rpcSession) Identity() common.Address { return s.identity }

func (s *rpcSession) Close() {
	s.client.Close()
}

// call performs a single request, classifying transport errors as Connection
// failures and an expired request deadline as a Timeout failure. Error
// responses from the endpoint are returned unclassified, wrapping rpc.Error.
func (s *rpcSession) call(ctx context.Context, result any, method string, args ...any) error {
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	err := s.client.CallContext(ctx, result, method, args...)
	rpcRequestTimer.UpdateSince(start)
	if err != nil {
		return classify(err, method, s.endpoint)
	}
	return nil
}

func classify(err error, method, endpoint string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.Timeout, err, "%s on %s", method, endpoint)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s on %s: %w", method, endpoint, err)
	}
	return failure.Wrap(failure.Connection, err, "%s on %s", method, endpoint)
}

// txArgs is the eth_sendTransaction / eth_call argument object.
type txArgs struct {
	From *common.Address `json:"from,omitempty"`
	To   *common.Address `json:"to,omitempty"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

func (s *rpcSession) newTxArgs(to *common.Address, data []byte) txArgs {
	from := s.identity
	args := txArgs{From: &from, To: to, Data: data}
	if s.opts.Gas > 0 {
		gas := hexutil.Uint64(s.opts.Gas)
		args.Gas = &gas
	}
	return args
}

func (s *rpcSession) Deploy(ctx context.Context, c *fixtures.Contract, args ...any) (common.Hash, error) {
	input, err := c.DeployInput(args...)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := s.transact(ctx, s.newTxArgs(nil, input))
	if err != nil {
		return hash, err
	}
	s.log.Info("Submitted deployment", "contract", c.Name, "tx", hash)
	return hash, nil
}

func (s *rpcSession) Send(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) (common.Hash, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	hash, err := s.transact(ctx, s.newTxArgs(&to, input))
	if err != nil {
		return hash, err
	}
	s.log.Debug("Sent transaction", "to", to, "method", method, "tx", hash)
	return hash, nil
}

// transact submits args and blocks until the receipt is available. A JSON-RPC
// error response or a failed status yields ErrTransactionFailed.
func (s *rpcSession) transact(ctx context.Context, args txArgs) (common.Hash, error) {
	var hash common.Hash
	if err := s.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			txFailedCounter.Inc(1)
			return common.Hash{}, fmt.Errorf("%w: rejected by proxy: %v", ErrTransactionFailed, rpcErr)
		}
		return common.Hash{}, err
	}
	txSentCounter.Inc(1)
	receipt, err := s.WaitReceipt(ctx, hash)
	if err != nil {
		return hash, err
	}
	if !receipt.Succeeded() {
		txFailedCounter.Inc(1)
		return hash, fmt.Errorf("%w: tx %s has status %d", ErrTransactionFailed, hash.Hex(), uint64(*receipt.Status))
	}
	return hash, nil
}

func (s *rpcSession) Call(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	var out hexutil.Bytes
	if err := s.call(ctx, &out, "eth_call", s.newTxArgs(&to, input), "latest"); err != nil {
		var rpcErr rpc.Error
		if !errors.As(err, &rpcErr) {
			return nil, err
		}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
			return nil, fmt.Errorf("%w: %s: %v (data %v)", ErrCallReverted, method, rpcErr, dataErr.ErrorData())
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCallReverted, method, rpcErr)
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s result 0x%x: %w", method, []byte(out), err)
	}
	return values, nil
}

func (s *rpcSession) Bind(address common.Address, contractABI *abi.ABI) *BoundContract {
	return NewBoundContract(s, address, contractABI)
}

func (s *rpcSession) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := s.call(ctx, &code, "eth_getCode", address, "latest"); err != nil {
		return nil, err
	}
	return code, nil
}

func (s *rpcSession) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *Receipt
	if err := s.call(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (s *rpcSession) GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var tx *Transaction
	if err := s.call(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ethereum.NotFound
	}
	return tx, nil
}

func (s *rpcSession) GetBlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var b *Block
	if err := s.call(ctx, &b, "eth_getBlockByNumber", hexutil.Uint64(number), false); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ethereum.NotFound
	}
	return b, nil
}

func (s *rpcSession) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := s.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classify(err, "eth_blockNumber", s.endpoint)
	}
	return n, nil
}
