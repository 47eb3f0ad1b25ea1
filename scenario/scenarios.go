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
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/session"
)

// Session roles used by the built-in scenarios. The deployer is also the
// ballot chairperson.
const (
	sessA = 0
	sessB = 1
)

var (
	bytes32A   = fixtures.MustBytes32("a")
	bytes32B   = fixtures.MustBytes32("b")
	bytes32Sam = fixtures.MustBytes32("Sam")
)

func proposal(name [32]byte, votes int64) Value {
	return Const([]any{name, big.NewInt(votes)})
}

// Ballot exercises deployment, cross-session reads, mutation consistency and
// the chairperson authorization boundary.
func Ballot() *Scenario {
	return &Scenario{
		Name:        "ballot",
		Description: "two-proposal ballot voted on from two identities",
		MinSessions: 2,
		Steps: []Step{
			Deploy("deploy ballot", sessA, fixtures.Ballot, "ballot", [][32]byte{bytes32A, bytes32B}),
			VerifyCode("code visible to second session", sessB, "ballot"),

			Call("read chairperson", sessB, "ballot", "chairperson", "chair"),
			AssertEqual("chairperson is deployer", IdentityOf(sessA), Stored("chair", 0)),
			Call("read proposal 0", sessA, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("proposal 0 initial", proposal(bytes32A, 0), StoredAll("p0")),
			Call("read proposal 1", sessA, "ballot", "proposals", "p1", big.NewInt(1)),
			AssertEqual("proposal 1 initial", proposal(bytes32B, 0), StoredAll("p1")),

			BlockNumber("head before repeated read", sessA, "head0"),
			Call("re-read proposal 0", sessA, "ballot", "proposals", "p0-again", big.NewInt(0)),
			BlockNumber("head after repeated read", sessA, "head1"),
			AssertEqual("repeated read identical", StoredAll("p0"), StoredAll("p0-again")),
			AssertEqual("reads do not advance head", Stored("head0", 0), Stored("head1", 0)),

			Send("A votes proposal 0", sessA, "ballot", "vote", "vote-a", big.NewInt(0)),
			Call("A reads proposal 0", sessA, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("A sees one vote", proposal(bytes32A, 1), StoredAll("p0")),
			Call("B reads proposal 0", sessB, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("B sees one vote", proposal(bytes32A, 1), StoredAll("p0")),

			Call("voter B before", sessA, "ballot", "voters", "voter-b-before", IdentityOf(sessB)),
			SendRejected("B grants itself", sessB, "ballot", "giveRightToVote", IdentityOf(sessB)),
			Call("voter B after", sessA, "ballot", "voters", "voter-b-after", IdentityOf(sessB)),
			AssertEqual("rejected grant leaves voter unchanged", StoredAll("voter-b-before"), StoredAll("voter-b-after")),
			Call("proposal 0 after rejected grant", sessB, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("rejected grant leaves tally unchanged", proposal(bytes32A, 1), StoredAll("p0")),

			Send("chairperson grants B", sessA, "ballot", "giveRightToVote", "grant-b", IdentityOf(sessB)),
			Call("voter B granted", sessB, "ballot", "voters", "voter-b", IdentityOf(sessB)),
			AssertEqual("B has weight 1", Const(big.NewInt(1)), Stored("voter-b", 0)),

			Send("B votes proposal 0", sessB, "ballot", "vote", "vote-b", big.NewInt(0)),
			Call("A reads proposal 0 after B", sessA, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("A sees two votes", proposal(bytes32A, 2), StoredAll("p0")),
			Call("B reads proposal 0 after B", sessB, "ballot", "proposals", "p0", big.NewInt(0)),
			AssertEqual("B sees two votes", proposal(bytes32A, 2), StoredAll("p0")),
			Call("B reads proposal 1", sessB, "ballot", "proposals", "p1", big.NewInt(1)),
			AssertEqual("proposal 1 unchanged", proposal(bytes32B, 0), StoredAll("p1")),

			Call("winning proposal", sessB, "ballot", "winningProposal", "winner"),
			AssertEqual("proposal 0 wins", Const(big.NewInt(0)), Stored("winner", 0)),
			Call("winner name", sessA, "ballot", "winnerName", "winner-name"),
			AssertEqual("winner is a", Const(bytes32A), Stored("winner-name", 0)),
		},
	}
}

// InstructorEvents checks event decoding of a log with one indexed and two
// non-indexed parameters.
func InstructorEvents() *Scenario {
	return &Scenario{
		Name:        "instructor-events",
		Description: "Setter event emitted by setInstructor decodes to the call arguments",
		MinSessions: 2,
		Steps: []Step{
			Deploy("deploy instructor", sessA, fixtures.Instructor, "instructor"),
			VerifyCode("code visible to second session", sessB, "instructor"),
			Send("set instructor", sessA, "instructor", "setInstructor", "set", bytes32Sam, big.NewInt(25), big.NewInt(30000)),
			AssertLogDecoded("Setter event", sessB, "set", "instructor", "Setter", map[string]any{
				"name":   bytes32Sam,
				"age":    big.NewInt(25),
				"salary": big.NewInt(30000),
			}),
			Call("read instructor", sessB, "instructor", "getInstructor", "instructor"),
			AssertEqual("instructor stored", Const([]any{bytes32Sam, big.NewInt(25), big.NewInt(30000)}), StoredAll("instructor")),
			Call("re-read instructor", sessB, "instructor", "getInstructor", "instructor-again"),
			AssertEqual("repeated read identical", StoredAll("instructor"), StoredAll("instructor-again")),
		},
	}
}

// DeployDetails checks the transaction and block records of a deployment.
func DeployDetails() *Scenario {
	return &Scenario{
		Name:        "deploy-details",
		Description: "deploy transaction input and block listing roundtrip",
		MinSessions: 1,
		Steps: []Step{
			Deploy("deploy instructor", sessA, fixtures.Instructor, "instructor"),
			{Name: "deploy transaction detail", Kind: KindCall, Run: checkDeployTransaction(sessA, "instructor")},
			{Name: "block lists deploy transaction", Kind: KindCall, Run: checkBlockListing(sessA, "instructor")},
			{Name: "head at or past deploy block", Kind: KindCall, Run: checkHeadPast(sessA, "instructor")},
		},
	}
}

// LogFilter checks that eth_getLogs returns the same log as the receipt.
func LogFilter() *Scenario {
	return &Scenario{
		Name:        "log-filter",
		Description: "eth_getLogs by block hash, address and topic returns the receipt log",
		MinSessions: 1,
		Steps: []Step{
			Deploy("deploy instructor", sessA, fixtures.Instructor, "instructor"),
			Send("set instructor", sessA, "instructor", "setInstructor", "set", bytes32Sam, big.NewInt(25), big.NewInt(30000)),
			{Name: "logs by block hash and address", Kind: KindCall, Run: checkLogFilter(sessA, "set", "instructor", false)},
			{Name: "logs by block hash and topic", Kind: KindCall, Run: checkLogFilter(sessA, "set", "instructor", true)},
			AssertLogDecoded("filtered log decodes", sessA, "set", "instructor", "Setter", map[string]any{
				"name": bytes32Sam, "age": big.NewInt(25), "salary": big.NewInt(30000),
			}),
		},
	}
}

func checkDeployTransaction(sess int, contract string) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		tx, err := s.GetTransaction(ctx, d.DeployTxHash)
		if err != nil {
			return err
		}
		if !bytes.Contains(tx.Input, d.Fixture.DeployBytecode) {
			return mismatch("deploy transaction input", fmt.Sprintf("contains %d bytes deploy code", len(d.Fixture.DeployBytecode)), fmt.Sprintf("%d bytes input", len(tx.Input)))
		}
		if from := tx.From.Ptr(); from == nil || *from != s.Identity() {
			return mismatch("deploy transaction sender", s.Identity(), tx.From.Addr)
		}
		if tx.BlockNumber == nil || uint64(*tx.BlockNumber) != d.BlockNumber {
			var got any = "pending"
			if tx.BlockNumber != nil {
				got = uint64(*tx.BlockNumber)
			}
			return mismatch("deploy transaction block", d.BlockNumber, got)
		}
		return nil
	}
}

func checkBlockListing(sess int, contract string) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		block, err := s.GetBlockByNumber(ctx, d.BlockNumber)
		if err != nil {
			return err
		}
		if uint64(block.Number) != d.BlockNumber {
			return mismatch("block number", d.BlockNumber, uint64(block.Number))
		}
		if d.TxIndex >= uint64(len(block.Transactions)) {
			return mismatch(fmt.Sprintf("block %d transaction count", d.BlockNumber), fmt.Sprintf("> %d", d.TxIndex), len(block.Transactions))
		}
		if got := block.Transactions[d.TxIndex]; got != d.DeployTxHash {
			return mismatch(fmt.Sprintf("block %d transaction %d", d.BlockNumber, d.TxIndex), d.DeployTxHash, got)
		}
		return nil
	}
}

func checkHeadPast(sess int, contract string) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		head, err := s.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head < d.BlockNumber {
			return mismatch("head block", fmt.Sprintf(">= %d", d.BlockNumber), head)
		}
		return nil
	}
}

func checkLogFilter(sess int, tx, contract string, byTopic bool) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		s, err := r.Session(sess)
		if err != nil {
			return err
		}
		d, err := r.Contract(contract)
		if err != nil {
			return err
		}
		receipt, err := r.Receipt(ctx, sess, tx)
		if err != nil {
			return err
		}
		if len(receipt.Logs) != 1 {
			return mismatch("receipt log count", 1, len(receipt.Logs))
		}
		want := receipt.Logs[0]
		q := session.LogQuery{BlockHash: &receipt.BlockHash}
		if byTopic {
			sig, ok := d.Fixture.EventSignature("Setter")
			if !ok {
				return failure.New(failure.UndecodableLog, "%s has no Setter event", d.Fixture.Name)
			}
			q.Topics = [][]common.Hash{{sig}}
		} else {
			q.Addresses = []common.Address{d.Address}
		}
		logs, err := s.GetLogs(ctx, q)
		if err != nil {
			return err
		}
		if len(logs) != 1 {
			return mismatch("filtered log count", 1, len(logs))
		}
		got := logs[0]
		if got.Address != want.Address || got.TxHash != want.TxHash || !bytes.Equal(got.Data, want.Data) || !equalTopics(got.Topics, want.Topics) {
			return mismatch("filtered log", want, got)
		}
		return nil
	}
}

func equalTopics(a, b []common.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// All returns the built-in scenarios in execution order.
func All() []*Scenario {
	return []*Scenario{Ballot(), InstructorEvents(), DeployDetails(), LogFilter()}
}

// ByName selects built-in scenarios. An empty list selects all of them.
func ByName(names ...string) ([]*Scenario, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}
	index := make(map[string]*Scenario, len(all))
	for _, sc := range all {
		index[sc.Name] = sc
	}
	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, sc)
	}
	return out, nil
}
