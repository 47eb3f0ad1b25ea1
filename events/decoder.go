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

// Package events decodes raw EVM logs against a contract ABI.
package events

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tkmct/proxycheck/failure"
)

// Log is the part of a receipt log needed for decoding.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Param is one decoded event parameter.
type Param struct {
	Name    string
	Type    string
	Indexed bool
	// Word is the raw 32-byte slot the value was read from: the topic for
	// indexed parameters, the head word in data otherwise.
	Word  common.Hash
	Value any
}

// Event is a decoded log. Params follow declaration order; Args holds the
// same values keyed by parameter name.
type Event struct {
	Name    string
	Address common.Address
	Params  []Param
	Args    map[string]any
}

// Decoder matches logs to the events of one ABI. It is immutable once built
// and safe for concurrent use.
type Decoder struct {
	bySig map[common.Hash]*abi.Event
}

// NewDecoder indexes the events of contractABI by signature hash. known
// supplies precomputed hashes by event name, replacing the derived ones.
func NewDecoder(contractABI abi.ABI, known map[string]common.Hash) *Decoder {
	d := &Decoder{bySig: make(map[common.Hash]*abi.Event, len(contractABI.Events))}
	for name := range contractABI.Events {
		ev := contractABI.Events[name]
		if ev.Anonymous {
			continue
		}
		sig := ev.ID
		if h, ok := known[name]; ok {
			sig = h
		}
		d.bySig[sig] = &ev
	}
	return d
}

// Signatures lists the topic hashes the decoder recognises, sorted.
func (d *Decoder) Signatures() []common.Hash {
	out := make([]common.Hash, 0, len(d.bySig))
	for h := range d.bySig {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Decode decodes every log in order. The first log that cannot be decoded
// aborts with an UndecodableLog failure.
func (d *Decoder) Decode(logs []Log) ([]Event, error) {
	out := make([]Event, 0, len(logs))
	for i, l := range logs {
		ev, err := d.DecodeLog(l)
		if err != nil {
			var fe *failure.Error
			if errors.As(err, &fe) {
				annotated := *fe
				annotated.Msg = fmt.Sprintf("log %d: %s", i, fe.Msg)
				return nil, &annotated
			}
			return nil, failure.Wrap(failure.UndecodableLog, err, "log %d", i)
		}
		out = append(out, *ev)
	}
	return out, nil
}

// DecodeLog decodes a single log.
func (d *Decoder) DecodeLog(l Log) (*Event, error) {
	if len(l.Topics) == 0 {
		return nil, failure.New(failure.UndecodableLog, "log from %s has no topics", l.Address.Hex())
	}
	ev, ok := d.bySig[l.Topics[0]]
	if !ok {
		return nil, failure.New(failure.UndecodableLog, "no event with signature %s", l.Topics[0].Hex())
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if got := len(l.Topics) - 1; got != len(indexed) {
		return nil, failure.New(failure.UndecodableLog, "event %s: %d indexed parameters, log has %d topics after the signature", ev.Sig, len(indexed), got)
	}
	topicValues := make(map[string]any, len(indexed))
	if err := abi.ParseTopicsIntoMap(topicValues, indexed, l.Topics[1:]); err != nil {
		return nil, failure.Wrap(failure.UndecodableLog, err, "event %s: topics", ev.Sig)
	}
	nonIndexed := ev.Inputs.NonIndexed()
	if len(l.Data) < 32*len(nonIndexed) {
		return nil, failure.New(failure.UndecodableLog, "event %s: data is %d bytes, need at least %d", ev.Sig, len(l.Data), 32*len(nonIndexed))
	}
	dataValues, err := nonIndexed.Unpack(l.Data)
	if err != nil {
		return nil, failure.Wrap(failure.UndecodableLog, err, "event %s: data", ev.Sig)
	}

	out := &Event{
		Name:    ev.Name,
		Address: l.Address,
		Params:  make([]Param, 0, len(ev.Inputs)),
		Args:    make(map[string]any, len(ev.Inputs)),
	}
	var topic, value, word int
	for i, arg := range ev.Inputs {
		p := Param{Name: paramName(arg, i), Type: arg.Type.String(), Indexed: arg.Indexed}
		if arg.Indexed {
			p.Word = l.Topics[1+topic]
			p.Value = topicValues[arg.Name]
			topic++
		} else {
			p.Word = common.BytesToHash(l.Data[32*word : 32*word+32])
			p.Value = dataValues[value]
			value++
			word += headWords(arg.Type)
		}
		out.Params = append(out.Params, p)
		out.Args[p.Name] = p.Value
	}
	return out, nil
}

// headWords is the number of 32-byte head slots a non-indexed value takes.
func headWords(t abi.Type) int {
	if t.T == abi.ArrayTy && t.Elem != nil {
		return t.Size * headWords(*t.Elem)
	}
	return 1
}

// paramName keys unnamed parameters by position.
func paramName(arg abi.Argument, i int) string {
	if arg.Name != "" {
		return arg.Name
	}
	return fmt.Sprintf("arg%d", i)
}
