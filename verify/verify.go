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

// Package verify deploys fixtures and checks that the proxy materialised them
// exactly.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/session"
)

// DeployedContract is a fixture instance whose runtime code has been checked.
type DeployedContract struct {
	Fixture      *fixtures.Contract
	Address      common.Address
	DeployTxHash common.Hash
	BlockNumber  uint64
	TxIndex      uint64
}

// Bind attaches the contract to a session.
func (d *DeployedContract) Bind(s session.Session) *session.BoundContract {
	return s.Bind(d.Address, &d.Fixture.ABI)
}

// Deploy submits fixture through s and verifies the outcome: the receipt must
// name the contract address and the code stored there must equal the
// fixture's runtime bytecode byte for byte. Nothing is retried.
func Deploy(ctx context.Context, s session.Session, fixture *fixtures.Contract, args ...any) (*DeployedContract, error) {
	hash, err := s.Deploy(ctx, fixture, args...)
	if errors.Is(err, session.ErrTransactionFailed) {
		return nil, failure.Wrap(failure.DeploymentMismatch, err, "deploy %s", fixture.Name)
	}
	if err != nil {
		return nil, err
	}
	receipt, err := s.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	addr := receipt.ContractAddress.Ptr()
	if addr == nil {
		return nil, &failure.Error{
			Kind:     failure.DeploymentMismatch,
			Msg:      fmt.Sprintf("receipt of %s has no contract address", hash.Hex()),
			Expected: "contract address",
			Actual:   "none",
		}
	}
	d := &DeployedContract{
		Fixture:      fixture,
		Address:      *addr,
		DeployTxHash: hash,
		BlockNumber:  uint64(receipt.BlockNumber),
		TxIndex:      uint64(receipt.TxIndex),
	}
	if err := Code(ctx, s, d); err != nil {
		return nil, err
	}
	log.Info("Verified deployment", "contract", fixture.Name, "address", d.Address, "tx", hash, "block", d.BlockNumber, "session", s.Identity())
	return d, nil
}

// Code fetches the code at d through s and compares it with the fixture's
// runtime bytecode. Any session may be used, not only the deployer.
func Code(ctx context.Context, s session.Session, d *DeployedContract) error {
	code, err := s.GetCode(ctx, d.Address)
	if err != nil {
		return err
	}
	if err := CompareBytes(d.Fixture.RuntimeBytecode, code); err != nil {
		return &failure.Error{
			Kind:     failure.DeploymentMismatch,
			Msg:      fmt.Sprintf("code at %s via %s: %v", d.Address.Hex(), s.Endpoint(), err),
			Expected: fmt.Sprintf("%d bytes runtime code", len(d.Fixture.RuntimeBytecode)),
			Actual:   fmt.Sprintf("%d bytes", len(code)),
		}
	}
	return nil
}

// CompareBytes reports the first difference between want and got.
func CompareBytes(want, got []byte) error {
	if bytes.Equal(want, got) {
		return nil
	}
	n := min(len(want), len(got))
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			return fmt.Errorf("byte mismatch at offset %d: want 0x%02x, got 0x%02x", i, want[i], got[i])
		}
	}
	return fmt.Errorf("length mismatch: want %d, got %d", len(want), len(got))
}
