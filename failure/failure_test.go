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

package failure

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
)

func TestErrorIs(t *testing.T) {
	kinds := []Kind{Connection, NoAccount, DeploymentMismatch, UndecodableLog, AssertionMismatch, Timeout}
	for _, kind := range kinds {
		err := fmt.Errorf("outer: %w", New(kind, "boom"))
		if !errors.Is(err, kind.Sentinel()) {
			t.Errorf("%v: errors.Is(sentinel) = false", kind)
		}
		for _, other := range kinds {
			if other != kind && errors.Is(err, other.Sentinel()) {
				t.Errorf("%v unexpectedly matches %v", kind, other)
			}
		}
		got, ok := KindOf(err)
		if !ok || got != kind {
			t.Errorf("KindOf = %v, %v; want %v", got, ok, kind)
		}
	}
}

func TestWrapKeepsKind(t *testing.T) {
	inner := New(Timeout, "receipt")
	outer := Wrap(Connection, fmt.Errorf("ctx: %w", inner), "dial")
	if outer.Kind != Timeout {
		t.Fatalf("kind = %v, want %v", outer.Kind, Timeout)
	}
	cause := errors.New("refused")
	wrapped := Wrap(Connection, cause, "dial %s", "http://x")
	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if !strings.Contains(wrapped.Error(), "dial http://x: refused") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestWithStep(t *testing.T) {
	err := WithStep(Mismatch(AssertionMismatch, "votes", big.NewInt(2), big.NewInt(1)), "read proposals")
	msg := err.Error()
	for _, want := range []string{"AssertionMismatchError", "[read proposals]", "votes", "expected 2", "actual 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	plain := errors.New("plain")
	if WithStep(plain, "x") != plain {
		t.Error("unclassified error was modified")
	}
	if _, ok := KindOf(plain); ok {
		t.Error("KindOf classified a plain error")
	}
}

func TestDiff(t *testing.T) {
	e := Mismatch(AssertionMismatch, "proposal", map[string]string{"name": "a"}, map[string]string{"name": "b"})
	if d := e.Diff(); !strings.Contains(d, "-") || !strings.Contains(d, "+") {
		t.Errorf("diff lacks markers: %q", d)
	}
	if New(Timeout, "x").Diff() != "" {
		t.Error("diff without values should be empty")
	}
}

func TestRender(t *testing.T) {
	var w [32]byte
	w[0] = 0xab
	tests := []struct {
		in   any
		want string
	}{
		{nil, "<nil>"},
		{"a", `"a"`},
		{big.NewInt(30000), "30000"},
		{[]byte{1, 2}, "0x0102"},
		{w, "0xab" + strings.Repeat("00", 31)},
	}
	for _, tt := range tests {
		if got := Render(tt.in); got != tt.want {
			t.Errorf("Render(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
