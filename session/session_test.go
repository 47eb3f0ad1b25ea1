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
	"math/big"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/refproxy"
)

var testOptions = Options{
	ReceiptTimeout: 5 * time.Second,
	PollInterval:   20 * time.Millisecond,
	RequestTimeout: 5 * time.Second,
}

func startCluster(t *testing.T, cfg refproxy.Config) *refproxy.Cluster {
	t.Helper()
	c, err := refproxy.NewCluster(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Start())
	return c
}

func connect(t *testing.T, url string, opts Options) Session {
	t.Helper()
	s, err := Connect(context.Background(), url, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// mockEthAPI serves a scripted eth namespace for failure paths the reference
// proxy never produces.
type mockEthAPI struct {
	mu       sync.Mutex
	accounts []common.Address
	sendErr  error
	receipt  map[string]interface{}
}

func (m *mockEthAPI) Accounts() []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts
}

func (m *mockEthAPI) SendTransaction(args map[string]interface{}) (common.Hash, error) {
	if m.sendErr != nil {
		return common.Hash{}, m.sendErr
	}
	return common.HexToHash("0x01"), nil
}

func (m *mockEthAPI) GetTransactionReceipt(hash common.Hash) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipt
}

func startMock(t *testing.T, api *mockEthAPI) string {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", api); err != nil {
		t.Fatalf("register mock eth API: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen mock RPC: %v", err)
	}
	httpSrv := &http.Server{Handler: server}
	go func() {
		_ = httpSrv.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = httpSrv.Close()
		server.Stop()
	})
	return "http://" + listener.Addr().String()
}

func TestConnectResolvesIdentity(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"user1", "user2"}})
	s1 := connect(t, c.URLs()[0], testOptions)
	s2 := connect(t, c.URLs()[1], testOptions)

	assert.Equal(t, refproxy.Identity("user1"), s1.Identity())
	assert.Equal(t, refproxy.Identity("user2"), s2.Identity())
	assert.NotEqual(t, s1.Identity(), s2.Identity())
	assert.Equal(t, c.URLs()[0], s1.Endpoint())
}

func TestConnectFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := "http://" + ln.Addr().String()
	ln.Close()

	_, err = Connect(context.Background(), deadURL, testOptions)
	require.ErrorIs(t, err, failure.ErrConnection)

	_, err = Connect(context.Background(), "ftp://example.com", testOptions)
	require.ErrorIs(t, err, failure.ErrConnection)

	_, err = Connect(context.Background(), startMock(t, &mockEthAPI{}), testOptions)
	require.ErrorIs(t, err, failure.ErrNoAccount)

	_, err = Connect(context.Background(), startMock(t, &mockEthAPI{accounts: []common.Address{{}}}), testOptions)
	require.ErrorIs(t, err, failure.ErrNoAccount)
}

func TestConnectAll(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"user1", "user2"}})
	sessions, err := ConnectAll(context.Background(), []Endpoint{{URL: c.URLs()[0]}, {URL: c.URLs()[1]}}, testOptions)
	require.NoError(t, err)
	defer CloseAll(sessions)
	require.Len(t, sessions, 2)
	assert.Equal(t, refproxy.Identity("user1"), sessions[0].Identity())
	assert.Equal(t, refproxy.Identity("user2"), sessions[1].Identity())

	shared := &mockEthAPI{accounts: []common.Address{common.HexToAddress("0xabc")}}
	_, err = ConnectAll(context.Background(), []Endpoint{{URL: startMock(t, shared)}, {URL: startMock(t, shared)}}, testOptions)
	require.ErrorIs(t, err, failure.ErrNoAccount)

	_, err = ConnectAll(context.Background(), []Endpoint{{URL: c.URLs()[0]}, {URL: startMock(t, &mockEthAPI{})}}, testOptions)
	require.ErrorIs(t, err, failure.ErrNoAccount)
}

func TestDeployCallSend(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"user1", "user2"}})
	s1 := connect(t, c.URLs()[0], testOptions)
	s2 := connect(t, c.URLs()[1], testOptions)
	ctx := context.Background()

	hash, err := s1.Deploy(ctx, fixtures.Instructor)
	require.NoError(t, err)
	receipt, err := s2.GetTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	addr := receipt.ContractAddress.Ptr()
	require.NotNil(t, addr)

	code, err := s2.GetCode(ctx, *addr)
	require.NoError(t, err)
	require.Equal(t, fixtures.Instructor.RuntimeBytecode, code)

	tx, err := s2.GetTransaction(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, fixtures.Instructor.DeployBytecode, []byte(tx.Input))
	require.Nil(t, tx.To.Ptr())
	require.Equal(t, s1.Identity(), tx.From.Addr)

	block, err := s1.GetBlockByNumber(ctx, uint64(receipt.BlockNumber))
	require.NoError(t, err)
	require.Equal(t, receipt.BlockHash, block.Hash)
	require.Contains(t, block.Transactions, hash)

	instructor := s1.Bind(*addr, &fixtures.Instructor.ABI)
	r, err := instructor.Transact(ctx, "setInstructor", fixtures.MustBytes32("Sam"), big.NewInt(25), big.NewInt(30000))
	require.NoError(t, err)
	require.Len(t, r.Logs, 1)
	require.Len(t, r.EventLogs(), 1)

	logs, err := s2.GetLogs(ctx, LogQuery{BlockHash: &r.BlockHash, Addresses: []common.Address{*addr}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, r.Logs[0].Topics, logs[0].Topics)

	out, err := s2.Bind(*addr, &fixtures.Instructor.ABI).Call(ctx, "getInstructor")
	require.NoError(t, err)
	require.Equal(t, fixtures.MustBytes32("Sam"), out[0])
	require.Equal(t, 0, big.NewInt(30000).Cmp(out[2].(*big.Int)))

	head, err := s2.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(r.BlockNumber), head)

	info, err := Describe(ctx, s1)
	require.NoError(t, err)
	require.Equal(t, head, info.BlockNumber)
	require.NotEmpty(t, info.ClientVersion)
}

func TestSendFailures(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"chair", "voter"}})
	chair := connect(t, c.URLs()[0], testOptions)
	voter := connect(t, c.URLs()[1], testOptions)
	ctx := context.Background()

	names, err := fixtures.Bytes32Slice("a", "b")
	require.NoError(t, err)
	hash, err := chair.Deploy(ctx, fixtures.Ballot, names)
	require.NoError(t, err)
	receipt, err := chair.GetTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	ballot := *receipt.ContractAddress.Ptr()

	hash, err = voter.Send(ctx, ballot, &fixtures.Ballot.ABI, "giveRightToVote", voter.Identity())
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.NotEqual(t, common.Hash{}, hash)

	_, err = voter.Send(ctx, ballot, &fixtures.Ballot.ABI, "noSuchMethod")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTransactionFailed)

	api := &mockEthAPI{accounts: []common.Address{common.HexToAddress("0xabc")}, sendErr: errors.New("endorsement failed")}
	mock := connect(t, startMock(t, api), testOptions)
	_, err = mock.Deploy(ctx, fixtures.Instructor)
	require.ErrorIs(t, err, ErrTransactionFailed)
}

func TestCallExecutionError(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"chair"}})
	s := connect(t, c.URLs()[0], testOptions)
	ctx := context.Background()

	names, err := fixtures.Bytes32Slice("a", "b")
	require.NoError(t, err)
	hash, err := s.Deploy(ctx, fixtures.Ballot, names)
	require.NoError(t, err)
	receipt, err := s.GetTransactionReceipt(ctx, hash)
	require.NoError(t, err)
	ballot := *receipt.ContractAddress.Ptr()

	_, err = s.Call(ctx, ballot, &fixtures.Ballot.ABI, "proposals", big.NewInt(5))
	require.ErrorIs(t, err, ErrCallReverted)
	require.NotErrorIs(t, err, failure.ErrConnection)
	_, classified := failure.KindOf(err)
	require.False(t, classified)

	out, err := s.Call(ctx, ballot, &fixtures.Ballot.ABI, "proposals", big.NewInt(1))
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestReceiptTimeout(t *testing.T) {
	api := &mockEthAPI{accounts: []common.Address{common.HexToAddress("0xabc")}}
	opts := testOptions
	opts.ReceiptTimeout = 150 * time.Millisecond
	s := connect(t, startMock(t, api), opts)

	start := time.Now()
	_, err := s.Deploy(context.Background(), fixtures.Instructor)
	require.ErrorIs(t, err, failure.ErrTimeout)
	require.Less(t, time.Since(start), 3*time.Second)

	_, err = s.GetTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, ethereum.NotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.WaitReceipt(ctx, common.HexToHash("0x01"))
	require.Error(t, err)
	require.NotErrorIs(t, err, failure.ErrTimeout)
}

func TestReceiptPolling(t *testing.T) {
	c := startCluster(t, refproxy.Config{Users: []string{"user1"}, ReceiptDelay: 200 * time.Millisecond})
	s := connect(t, c.URLs()[0], testOptions)

	start := time.Now()
	hash, err := s.Deploy(context.Background(), fixtures.Instructor)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	r, err := s.GetTransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, hash, r.TxHash)
}

func TestFailedStatusReceipt(t *testing.T) {
	api := &mockEthAPI{
		accounts: []common.Address{common.HexToAddress("0xabc")},
		receipt: map[string]interface{}{
			"transactionHash": common.HexToHash("0x01"),
			"blockNumber":     "0x5",
			"status":          "0x0",
			"contractAddress": "",
			"to":              "",
			"gasUsed":         21000,
			"logs":            []interface{}{},
		},
	}
	s := connect(t, startMock(t, api), testOptions)
	_, err := s.Deploy(context.Background(), fixtures.Instructor)
	require.ErrorIs(t, err, ErrTransactionFailed)

	r, err := s.GetTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.False(t, r.Succeeded())
	require.Nil(t, r.ContractAddress.Ptr())
	require.Equal(t, uint64(5), uint64(r.BlockNumber))
}

func TestJWTSession(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	c := startCluster(t, refproxy.Config{Users: []string{"user1"}, JWTSecret: secret})

	_, err := Connect(context.Background(), c.URLs()[0], testOptions)
	require.ErrorIs(t, err, failure.ErrConnection)

	opts := testOptions
	opts.JWTSecret = secret
	s := connect(t, c.URLs()[0], opts)
	require.Equal(t, refproxy.Identity("user1"), s.Identity())
}
