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

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// BoundContract ties a deployed contract to the session that talks to it.
type BoundContract struct {
	address common.Address
	abi     *abi.ABI
	session Session
}

// NewBoundContract binds address on s. Sessions return the same from Bind.
func NewBoundContract(s Session, address common.Address, contractABI *abi.ABI) *BoundContract {
	return &BoundContract{address: address, abi: contractABI, session: s}
}

func (c *BoundContract) Address() common.Address { return c.address }
func (c *BoundContract) ABI() *abi.ABI           { return c.abi }
func (c *BoundContract) Session() Session        { return c.session }

// Call invokes a read-only method.
func (c *BoundContract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	return c.session.Call(ctx, c.address, c.abi, method, args...)
}

// Send invokes a state changing method and waits for its receipt.
func (c *BoundContract) Send(ctx context.Context, method string, args ...any) (common.Hash, error) {
	return c.session.Send(ctx, c.address, c.abi, method, args...)
}

// Transact sends and returns the receipt of the transaction.
func (c *BoundContract) Transact(ctx context.Context, method string, args ...any) (*Receipt, error) {
	hash, err := c.Send(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return c.session.GetTransactionReceipt(ctx, hash)
}
