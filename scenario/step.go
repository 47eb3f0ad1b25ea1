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
	"errors"
	"fmt"
	"sort"

	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/session"
	"github.com/tkmct/proxycheck/verify"
)

// StepKind classifies a step and decides the state transition it causes.
type StepKind int

const (
	KindDeploy StepKind = iota + 1
	KindCall
	KindSend
	KindAssertEqual
	KindAssertLogDecoded
)

func (k StepKind) String() string {
	switch k {
	case KindDeploy:
		return "deploy"
	case KindCall:
		return "call"
	case KindSend:
		return "send"
	case KindAssertEqual:
		return "assert-equal"
	case KindAssertLogDecoded:
		return "assert-log-decoded"
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// entryState is the state a step of kind k moves the run into before it
// executes. Assertions do not move the run.
func (k StepKind) entryState() (State, bool) {
	switch k {
	case KindDeploy:
		return Deploying, true
	case KindCall:
		return Reading, true
	case KindSend:
		return Mutating, true
	}
	return 0, false
}

// Step is one unit of a scenario.
type Step struct {
	Name string
	Kind StepKind
	Run  func(ctx context.Context, r *Run) error
}

// Deploy deploys fixture through session sess, verifies its code and stores
// the contract as key.
func Deploy(name string, sess int, fixture *fixtures.Contract, key string, args ...any) Step {
	return Step{Name: name, Kind: KindDeploy, Run: func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := verify.Deploy(ctx, s, fixture, args...)
		if err != nil {
			return err
		}
		r.contracts[key] = d
		r.txs[key] = d.DeployTxHash
		return nil
	}}
}

// VerifyCode fetches the code of a deployed contract through session sess.
func VerifyCode(name string, sess int, contract string) Step {
	return Step{Name: name, Kind: KindCall, Run: func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		return verify.Code(ctx, s, d)
	}}
}

// Method arguments given to Call, Send and SendRejected may be Values; they
// are evaluated when the step runs, so a step can pass an identity or an
// earlier result.

// Call invokes a read-only method and stores the results as store.
func Call(name string, sess int, contract, method, store string, args ...any) Step {
	return Step{Name: name, Kind: KindCall, Run: func(ctx context.Context, r *Run) error {
		c, err := bind(r, sess, contract)
		if err != nil {
			return err
		}
		in, err := resolveArgs(ctx, r, args)
		if err != nil {
			return err
		}
		out, err := c.Call(ctx, method, in...)
		if errors.Is(err, session.ErrCallReverted) {
			return &failure.Error{Kind: failure.AssertionMismatch, Msg: method, Expected: "return values", Actual: "execution error", Err: err}
		}
		if err != nil {
			return err
		}
		r.Store(store, out...)
		return nil
	}}
}

// BlockNumber stores the head block number seen by session sess.
func BlockNumber(name string, sess int, store string) Step {
	return Step{Name: name, Kind: KindCall, Run: func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		n, err := s.BlockNumber(ctx)
		if err != nil {
			return err
		}
		r.Store(store, n)
		return nil
	}}
}

// Send invokes a state changing method that must succeed and records the
// transaction as tx.
func Send(name string, sess int, contract, method, tx string, args ...any) Step {
	return Step{Name: name, Kind: KindSend, Run: func(ctx context.Context, r *Run) error {
		c, err := bind(r, sess, contract)
		if err != nil {
			return err
		}
		in, err := resolveArgs(ctx, r, args)
		if err != nil {
			return err
		}
		hash, err := c.Send(ctx, method, in...)
		if errors.Is(err, session.ErrTransactionFailed) {
			return &failure.Error{Kind: failure.AssertionMismatch, Msg: method, Expected: "success", Actual: "failure", Err: err}
		}
		if err != nil {
			return err
		}
		r.txs[tx] = hash
		return nil
	}}
}

// SendRejected invokes a state changing method that must fail, either by
// being refused by the proxy or by a failed receipt status.
func SendRejected(name string, sess int, contract, method string, args ...any) Step {
	return Step{Name: name, Kind: KindSend, Run: func(ctx context.Context, r *Run) error {
		c, err := bind(r, sess, contract)
		if err != nil {
			return err
		}
		in, err := resolveArgs(ctx, r, args)
		if err != nil {
			return err
		}
		hash, err := c.Send(ctx, method, in...)
		switch {
		case errors.Is(err, session.ErrTransactionFailed):
			r.log.Debug("Transaction rejected as expected", "method", method, "err", err)
			return nil
		case err != nil:
			return err
		}
		return mismatch(method+" by "+c.Session().Identity().Hex(), "failure", "success tx "+hash.Hex())
	}}
}

// AssertEqual compares two operands.
func AssertEqual(name string, want, got Value) Step {
	return Step{Name: name, Kind: KindAssertEqual, Run: func(ctx context.Context, r *Run) error {
		w, err := want(ctx, r)
		if err != nil {
			return err
		}
		g, err := got(ctx, r)
		if err != nil {
			return err
		}
		if !Equal(w, g) {
			return mismatch(name, w, g)
		}
		return nil
	}}
}

// AssertLogDecoded decodes every log of a recorded transaction, fetched
// through session sess, and checks that exactly one event of the given name
// was emitted by the contract with the expected arguments.
func AssertLogDecoded(name string, sess int, tx, contract, event string, want map[string]any) Step {
	return Step{Name: name, Kind: KindAssertLogDecoded, Run: func(ctx context.Context, r *Run) error {
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		receipt, err := r.Receipt(ctx, sess, tx)
		if err != nil {
			return err
		}
		decoded, err := r.decoder(d.Fixture).Decode(receipt.EventLogs())
		if err != nil {
			return err
		}
		var matches []map[string]any
		for _, ev := range decoded {
			if ev.Name == event && ev.Address == d.Address {
				matches = append(matches, ev.Args)
			}
		}
		if len(matches) != 1 {
			return mismatch(fmt.Sprintf("%s events from %s", event, d.Address.Hex()), 1, len(matches))
		}
		got := matches[0]
		for _, key := range sortedKeys(want) {
			if !Equal(want[key], got[key]) {
				return mismatch(fmt.Sprintf("%s.%s", event, key), want[key], got[key])
			}
		}
		return nil
	}}
}

func bind(r *Run, sess int, contract string) (*session.BoundContract, error) {
	s, err := r.Session(sess)
	if err != nil {
		return nil, err
	}
	d, err := r.Contract(contract)
	if err != nil {
		return nil, err
	}
	return d.Bind(s), nil
}

func resolveArgs(ctx context.Context, r *Run, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, ok := arg.(Value)
		if !ok {
			out[i] = arg
			continue
		}
		resolved, err := v(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
