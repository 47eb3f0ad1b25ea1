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

// Package fixtures carries the compiled contracts exercised by the conformance
// scenarios. Fixtures are parsed once at package initialisation and never
// mutated afterwards.
package fixtures

import (
	"bytes"
	"embed"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed contracts
var contractFS embed.FS

// Contract is an immutable compiled contract: the bytecode submitted at
// deployment, the code expected to live at the contract address afterwards and
// the interface used to encode calls and decode logs.
type Contract struct {
	Name            string
	DeployBytecode  []byte
	RuntimeBytecode []byte
	ABI             abi.ABI

	// KnownEventSignatures maps event names to the topic hash the compiler
	// emitted for them. Entries are checked against the ABI when loaded.
	KnownEventSignatures map[string]common.Hash
}

var (
	// Ballot is the delegated voting contract. Its constructor takes the
	// proposal names as bytes32[] and makes the deployer the chairperson.
	Ballot = mustLoad("ballot", nil)

	// Instructor stores a (name, age, salary) record and emits
	// Setter(bytes32 indexed name, uint256 age, uint256 salary) on update.
	Instructor = mustLoad("instructor", map[string]common.Hash{
		"Setter": common.HexToHash("0xe920a6ca2d94687457e136223552305dbabca6f28cf9c65d18efc2193a2369b0"),
	})
)

// All returns every fixture, ordered by name.
func All() []*Contract {
	return []*Contract{Ballot, Instructor}
}

// ByName looks a fixture up by its lower-case name.
func ByName(name string) (*Contract, bool) {
	for _, c := range All() {
		if c.Name == strings.ToLower(name) {
			return c, true
		}
	}
	return nil, false
}

func mustLoad(name string, known map[string]common.Hash) *Contract {
	c, err := load(name, known)
	if err != nil {
		panic(fmt.Sprintf("fixtures: %v", err))
	}
	return c
}

func load(name string, known map[string]common.Hash) (*Contract, error) {
	deploy, err := readHex("contracts/" + name + ".bin")
	if err != nil {
		return nil, err
	}
	runtime, err := readHex("contracts/" + name + ".runtime.bin")
	if err != nil {
		return nil, err
	}
	blob, err := contractFS.ReadFile("contracts/" + name + ".abi.json")
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid abi: %w", name, err)
	}
	c := &Contract{
		Name:                 name,
		DeployBytecode:       deploy,
		RuntimeBytecode:      runtime,
		ABI:                  parsed,
		KnownEventSignatures: known,
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

func readHex(path string) ([]byte, error) {
	raw, err := contractFS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

// validate enforces the relationships that hold for any solc output: the
// runtime code is embedded in the deploy code and every precomputed event
// hash matches the hash derived from the ABI.
func (c *Contract) validate() error {
	if len(c.DeployBytecode) == 0 || len(c.RuntimeBytecode) == 0 {
		return fmt.Errorf("empty bytecode")
	}
	if !bytes.Contains(c.DeployBytecode, c.RuntimeBytecode) {
		return fmt.Errorf("runtime bytecode is not part of the deploy bytecode")
	}
	for name, hash := range c.KnownEventSignatures {
		ev, ok := c.ABI.Events[name]
		if !ok {
			return fmt.Errorf("known signature for undeclared event %q", name)
		}
		if ev.ID != hash {
			return fmt.Errorf("event %s signature mismatch: known %s, derived %s", ev.Sig, hash.Hex(), ev.ID.Hex())
		}
	}
	return nil
}

// DeployInput returns the deployment payload: the deploy bytecode followed by
// the ABI-encoded constructor arguments.
func (c *Contract) DeployInput(args ...interface{}) ([]byte, error) {
	packed, err := c.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack constructor arguments: %w", c.Name, err)
	}
	input := make([]byte, 0, len(c.DeployBytecode)+len(packed))
	input = append(input, c.DeployBytecode...)
	return append(input, packed...), nil
}

// EventSignature returns the topic hash of the named event, preferring the
// precomputed value when the fixture carries one.
func (c *Contract) EventSignature(name string) (common.Hash, bool) {
	if h, ok := c.KnownEventSignatures[name]; ok {
		return h, true
	}
	ev, ok := c.ABI.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

func (c *Contract) String() string {
	return fmt.Sprintf("%s(deploy=%dB runtime=%dB methods=%d events=%d)",
		c.Name, len(c.DeployBytecode), len(c.RuntimeBytecode), len(c.ABI.Methods), len(c.ABI.Events))
}
