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

package events

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var instructorAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func setterLog(name string, age, salary *big.Int) Log {
	sig, _ := fixtures.Instructor.EventSignature("Setter")
	nameWord := fixtures.MustBytes32(name)
	data := append(math.U256Bytes(new(big.Int).Set(age)), math.U256Bytes(new(big.Int).Set(salary))...)
	return Log{
		Address: instructorAddr,
		Topics:  []common.Hash{sig, common.Hash(nameWord)},
		Data:    data,
	}
}

func newInstructorDecoder() *Decoder {
	return NewDecoder(fixtures.Instructor.ABI, fixtures.Instructor.KnownEventSignatures)
}

func TestDecodeSetter(t *testing.T) {
	d := newInstructorDecoder()
	evs, err := d.Decode([]Log{setterLog("Sam", big.NewInt(25), big.NewInt(30000))})
	require.NoError(t, err)
	require.Len(t, evs, 1)

	ev := evs[0]
	assert.Equal(t, "Setter", ev.Name)
	assert.Equal(t, instructorAddr, ev.Address)
	require.Len(t, ev.Params, 3)
	assert.Equal(t, []string{"name", "age", "salary"}, []string{ev.Params[0].Name, ev.Params[1].Name, ev.Params[2].Name})
	assert.True(t, ev.Params[0].Indexed)
	assert.False(t, ev.Params[1].Indexed)

	assert.Equal(t, fixtures.MustBytes32("Sam"), ev.Args["name"])
	assert.Equal(t, "Sam", fixtures.TrimBytes32(ev.Args["name"].([32]byte)))
	assert.Equal(t, 0, big.NewInt(25).Cmp(ev.Args["age"].(*big.Int)))
	assert.Equal(t, 0, big.NewInt(30000).Cmp(ev.Args["salary"].(*big.Int)))
	assert.Equal(t, common.BigToHash(big.NewInt(30000)), ev.Params[2].Word)
}

func TestDecodeWideIntegers(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	huge.Add(huge, big.NewInt(7))
	evs, err := newInstructorDecoder().Decode([]Log{setterLog("x", huge, math.MaxBig256)})
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(evs[0].Args["age"].(*big.Int)))
	assert.Equal(t, 0, math.MaxBig256.Cmp(evs[0].Args["salary"].(*big.Int)))
}

func TestDecodeOrder(t *testing.T) {
	logs := []Log{
		setterLog("a", big.NewInt(1), big.NewInt(10)),
		setterLog("b", big.NewInt(2), big.NewInt(20)),
	}
	evs, err := newInstructorDecoder().Decode(logs)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "a", fixtures.TrimBytes32(evs[0].Args["name"].([32]byte)))
	assert.Equal(t, "b", fixtures.TrimBytes32(evs[1].Args["name"].([32]byte)))
}

func TestDecodeFailures(t *testing.T) {
	good := setterLog("Sam", big.NewInt(25), big.NewInt(30000))

	tests := []struct {
		name string
		log  func() Log
	}{
		{"no topics", func() Log { l := good; l.Topics = nil; return l }},
		{"unknown signature", func() Log {
			l := good
			l.Topics = []common.Hash{common.HexToHash("0xdead"), good.Topics[1]}
			return l
		}},
		{"missing indexed topic", func() Log { l := good; l.Topics = good.Topics[:1]; return l }},
		{"extra topic", func() Log {
			l := good
			l.Topics = append(append([]common.Hash{}, good.Topics...), common.Hash{})
			return l
		}},
		{"short data", func() Log { l := good; l.Data = good.Data[:40]; return l }},
		{"empty data", func() Log { l := good; l.Data = nil; return l }},
	}
	d := newInstructorDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode([]Log{good, tt.log()})
			if !errors.Is(err, failure.ErrUndecodableLog) {
				t.Fatalf("expected undecodable log error, got %v", err)
			}
			if !strings.Contains(err.Error(), "log 1: ") {
				t.Errorf("error does not name the failing log: %v", err)
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	evs, err := newInstructorDecoder().Decode(nil)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestSignatures(t *testing.T) {
	sig, _ := fixtures.Instructor.EventSignature("Setter")
	require.Equal(t, []common.Hash{sig}, newInstructorDecoder().Signatures())
	require.Empty(t, NewDecoder(fixtures.Ballot.ABI, nil).Signatures())
}
