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

package fixtures

import "fmt"

// Bytes32 right-pads the UTF-8 bytes of s with zeroes to a 32-byte word, the
// encoding the fixtures use for short names.
func Bytes32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > len(out) {
		return out, fmt.Errorf("%q is %d bytes, exceeds 32", s, len(s))
	}
	copy(out[:], s)
	return out, nil
}

// MustBytes32 is like Bytes32 but panics on oversized input. It is meant for
// literals.
func MustBytes32(s string) [32]byte {
	out, err := Bytes32(s)
	if err != nil {
		panic(err)
	}
	return out
}

// Bytes32Slice encodes a list of names as the bytes32[] argument the Ballot
// constructor expects.
func Bytes32Slice(names ...string) ([][32]byte, error) {
	out := make([][32]byte, len(names))
	for i, name := range names {
		w, err := Bytes32(name)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// TrimBytes32 strips the trailing zero padding of a bytes32 value.
func TrimBytes32(w [32]byte) string {
	n := len(w)
	for n > 0 && w[n-1] == 0 {
		n--
	}
	return string(w[:n])
}
