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

package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/refproxy"
	"github.com/tkmct/proxycheck/session"
)

// fakeSession returns canned deployment artifacts.
type fakeSession struct {
	session.Session // unimplemented methods panic

	deployErr error
	receipt   *session.Receipt
	code      []byte
}

func (f *fakeSession) Endpoint() string         { return "fake" }
func (f *fakeSession) Identity() common.Address { return common.HexToAddress("0xabc") }

func (f *fakeSession) Deploy(ctx context.Context, c *fixtures.Contract, args ...any) (common.Hash, error) {
	return common.HexToHash("0x01"), f.deployErr
}

func (f *fakeSession) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*session.Receipt, error) {
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeSession) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return f.code, nil
}

func (f *fakeSession) Bind(addr common.Address, contractABI *abi.ABI) *session.BoundContract {
	return session.NewBoundContract(f, addr, contractABI)
}

func receiptWithAddress(addr common.Address) *session.Receipt {
	status := hexutil.Uint64(1)
	return &session.Receipt{
		TxHash:          common.HexToHash("0x01"),
		BlockNumber:     7,
		ContractAddress: session.OptionalAddress{Addr: addr, Valid: true},
		Status:          &status,
	}
}

func TestDeployMismatches(t *testing.T) {
	runtime := fixtures.Instructor.RuntimeBytecode
	flipped := append([]byte(nil), runtime...)
	flipped[10] ^= 0xff
	addr := common.HexToAddress("0xc0ffee")

	tests := []struct {
		name    string
		session *fakeSession
		want    error
		msg     string
	}{
		{
			name:    "exact",
			session: &fakeSession{receipt: receiptWithAddress(addr), code: runtime},
		},
		{
			name:    "missing contract address",
			session: &fakeSession{receipt: &session.Receipt{}, code: runtime},
			want:    failure.ErrDeploymentMismatch,
			msg:     "no contract address",
		},
		{
			name:    "empty code",
			session: &fakeSession{receipt: receiptWithAddress(addr)},
			want:    failure.ErrDeploymentMismatch,
			msg:     "length mismatch",
		},
		{
			name:    "deploy code instead of runtime code",
			session: &fakeSession{receipt: receiptWithAddress(addr), code: fixtures.Instructor.DeployBytecode},
			want:    failure.ErrDeploymentMismatch,
		},
		{
			name:    "one byte differs",
			session: &fakeSession{receipt: receiptWithAddress(addr), code: flipped},
			want:    failure.ErrDeploymentMismatch,
			msg:     "offset 10",
		},
		{
			name:    "trailing byte",
			session: &fakeSession{receipt: receiptWithAddress(addr), code: append(append([]byte(nil), runtime...), 0)},
			want:    failure.ErrDeploymentMismatch,
		},
		{
			name:    "rejected deployment",
			session: &fakeSession{deployErr: session.ErrTransactionFailed},
			want:    failure.ErrDeploymentMismatch,
		},
		{
			name:    "timeout passes through",
			session: &fakeSession{deployErr: failure.New(failure.Timeout, "no receipt")},
			want:    failure.ErrTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Deploy(context.Background(), tt.session, fixtures.Instructor)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if d.Address != addr || d.BlockNumber != 7 {
					t.Fatalf("unexpected contract %+v", d)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestCompareBytes(t *testing.T) {
	tests := []struct {
		want, got []byte
		err       string
	}{
		{[]byte{1, 2, 3}, []byte{1, 2, 3}, ""},
		{nil, []byte{}, ""},
		{[]byte{1, 2, 3}, []byte{1, 9, 3}, "offset 1"},
		{[]byte{1, 2, 3}, []byte{1, 2}, "length mismatch: want 3, got 2"},
		{[]byte{1, 2}, []byte{1, 2, 3}, "length mismatch: want 2, got 3"},
	}
	for _, tt := range tests {
		err := CompareBytes(tt.want, tt.got)
		switch {
		case tt.err == "" && err != nil:
			t.Errorf("CompareBytes(%x, %x) = %v", tt.want, tt.got, err)
		case tt.err != "" && (err == nil || !strings.Contains(err.Error(), tt.err)):
			t.Errorf("CompareBytes(%x, %x) = %v, want %q", tt.want, tt.got, err, tt.err)
		}
	}
}

func TestDeployAgainstReferenceProxy(t *testing.T) {
	c, err := refproxy.NewCluster(refproxy.Config{Users: []string{"user1", "user2"}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Start())

	opts := session.Options{ReceiptTimeout: 5 * time.Second, PollInterval: 20 * time.Millisecond}
	sessions, err := session.ConnectAll(context.Background(), []session.Endpoint{{URL: c.URLs()[0]}, {URL: c.URLs()[1]}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer session.CloseAll(sessions)

	names, _ := fixtures.Bytes32Slice("a", "b")
	d, err := Deploy(context.Background(), sessions[0], fixtures.Ballot, names)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if err := Code(context.Background(), sessions[1], d); err != nil {
		t.Fatalf("code from second session: %v", err)
	}
	out, err := d.Bind(sessions[1]).Call(context.Background(), "chairperson")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != sessions[0].Identity() {
		t.Errorf("chairperson = %v, want %v", out[0], sessions[0].Identity())
	}
}
