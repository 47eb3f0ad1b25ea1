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

package scenario

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/events"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/session"
	"github.com/tkmct/proxycheck/verify"
)

// Run is the mutable context of one scenario execution. Steps exchange data
// through it by key; nothing in it outlives the scenario.
type Run struct {
	scenario string
	sessions []session.Session
	state    State
	log      log.Logger

	contracts map[string]*verify.DeployedContract
	values    map[string][]any
	txs       map[string]common.Hash

	decoder func(*fixtures.Contract) *events.Decoder
}

func newRun(name string, sessions []session.Session) *Run {
	return &Run{
		scenario:  name,
		sessions:  sessions,
		state:     NotStarted,
		log:       log.New("scenario", name),
		contracts: make(map[string]*verify.DeployedContract),
		values:    make(map[string][]any),
		txs:       make(map[string]common.Hash),
		decoder: func(c *fixtures.Contract) *events.Decoder {
			return events.NewDecoder(c.ABI, c.KnownEventSignatures)
		},
	}
}

// State returns the current lifecycle state.
func (r *Run) State() State { return r.state }

func (r *Run) transition(to State) error {
	if r.state == to && (to == Reading || to == Mutating) {
		return nil
	}
	if !canTransition(r.state, to) {
		return fmt.Errorf("illegal transition %v -> %v", r.state, to)
	}
	r.log.Trace("State transition", "from", r.state, "to", to)
	r.state = to
	return nil
}

// Session returns the i-th session. Negative indexes count from the end, so
// -1 is the last session.
func (r *Run) Session(i int) (session.Session, error) {
	if i < 0 {
		i += len(r.sessions)
	}
	if i < 0 || i >= len(r.sessions) {
		return nil, fmt.Errorf("session %d out of range (have %d)", i, len(r.sessions))
	}
	return r.sessions[i], nil
}

// Contract returns a contract deployed earlier in the run.
func (r *Run) Contract(key string) (*verify.DeployedContract, error) {
	c, ok := r.contracts[key]
	if !ok {
		return nil, fmt.Errorf("no contract deployed as %q", key)
	}
	return c, nil
}

// Values returns the results stored under key.
func (r *Run) Values(key string) ([]any, error) {
	v, ok := r.values[key]
	if !ok {
		return nil, fmt.Errorf("no value stored as %q", key)
	}
	return v, nil
}

// Store records results under key, replacing earlier ones.
func (r *Run) Store(key string, values ...any) {
	r.values[key] = values
}

// Tx returns a transaction hash recorded by an earlier step.
func (r *Run) Tx(key string) (common.Hash, error) {
	h, ok := r.txs[key]
	if !ok {
		return common.Hash{}, fmt.Errorf("no transaction recorded as %q", key)
	}
	return h, nil
}

// Receipt fetches the receipt of a recorded transaction through session i.
func (r *Run) Receipt(ctx context.Context, i int, key string) (*session.Receipt, error) {
	s, err := r.Session(i)
	if err != nil {
		return nil, err
	}
	hash, err := r.Tx(key)
	if err != nil {
		return nil, err
	}
	return s.GetTransactionReceipt(ctx, hash)
}

// Value produces an operand for an assertion.
type Value func(ctx context.Context, r *Run) (any, error)

// Const is a fixed operand.
func Const(v any) Value {
	return func(context.Context, *Run) (any, error) { return v, nil }
}

// Stored selects result index of the values stored under key.
func Stored(key string, index int) Value {
	return func(_ context.Context, r *Run) (any, error) {
		values, err := r.Values(key)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(values) {
			return nil, fmt.Errorf("%q has %d values, index %d requested", key, len(values), index)
		}
		return values[index], nil
	}
}

// StoredAll is the complete result list stored under key.
func StoredAll(key string) Value {
	return func(_ context.Context, r *Run) (any, error) {
		values, err := r.Values(key)
		if err != nil {
			return nil, err
		}
		return values, nil
	}
}

// IdentityOf is the identity of session i.
func IdentityOf(i int) Value {
	return func(_ context.Context, r *Run) (any, error) {
		s, err := r.Session(i)
		if err != nil {
			return nil, err
		}
		return s.Identity(), nil
	}
}

// Equal compares assertion operands. Big integers compare by value and may
// be matched against native integers; slices compare element-wise.
func Equal(want, got any) bool {
	switch w := want.(type) {
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !Equal(w[i], g[i]) {
				return false
			}
		}
		return true
	case *big.Int:
		g, ok := toBig(got)
		return ok && w != nil && w.Cmp(g) == 0
	case []byte:
		g, ok := got.([]byte)
		return ok && string(w) == string(g)
	}
	if wb, ok := toBig(want); ok {
		if gb, ok := toBig(got); ok {
			return wb.Cmp(gb) == 0
		}
	}
	return reflect.DeepEqual(want, got)
}

// toBig widens every integer kind an ABI unpack or a scenario literal yields.
func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, n != nil
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	}
	return nil, false
}

// mismatch builds the failure for an assertion.
func mismatch(what string, want, got any) error {
	return failure.Mismatch(failure.AssertionMismatch, what, want, got)
}
