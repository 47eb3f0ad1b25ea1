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

// Package failure defines the fatal error kinds a conformance run can end with.
// Every kind aborts the scenario it occurs in; none is retried.
package failure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kylelemons/godebug/pretty"
)

// Kind classifies a fatal conformance failure.
type Kind int

const (
	// Connection means an endpoint was unreachable or rejected the request.
	Connection Kind = iota + 1
	// NoAccount means an endpoint exposes no identity to act as.
	NoAccount
	// DeploymentMismatch means the deployed code differs from the fixture or
	// the receipt lacks a contract address.
	DeploymentMismatch
	// UndecodableLog means a log matches no event of the supplied ABI or is
	// malformed for the event it matches.
	UndecodableLog
	// AssertionMismatch means an observed value differs from the expected one.
	AssertionMismatch
	// Timeout means a bounded wait expired.
	Timeout
)

var (
	ErrConnection         = errors.New("connection error")
	ErrNoAccount          = errors.New("no account")
	ErrDeploymentMismatch = errors.New("deployment mismatch")
	ErrUndecodableLog     = errors.New("undecodable log")
	ErrAssertionMismatch  = errors.New("assertion mismatch")
	ErrTimeout            = errors.New("timeout")
)

var kindNames = map[Kind]string{
	Connection:         "ConnectionError",
	NoAccount:          "NoAccountError",
	DeploymentMismatch: "DeploymentMismatchError",
	UndecodableLog:     "UndecodableLogError",
	AssertionMismatch:  "AssertionMismatchError",
	Timeout:            "TimeoutError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel returns the error value errors.Is matches for the kind.
func (k Kind) Sentinel() error {
	switch k {
	case Connection:
		return ErrConnection
	case NoAccount:
		return ErrNoAccount
	case DeploymentMismatch:
		return ErrDeploymentMismatch
	case UndecodableLog:
		return ErrUndecodableLog
	case AssertionMismatch:
		return ErrAssertionMismatch
	case Timeout:
		return ErrTimeout
	}
	return nil
}

// Error is a classified failure. Step is filled in by the orchestrator when
// the failure surfaces from a scenario step; Expected and Actual are optional.
type Error struct {
	Kind     Kind
	Step     string
	Msg      string
	Expected any
	Actual   any
	Err      error
}

// New creates a failure of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. Wrapping an already classified error keeps its kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Mismatch builds an assertion failure carrying both values.
func Mismatch(kind Kind, what string, expected, actual any) *Error {
	return &Error{Kind: kind, Msg: what, Expected: expected, Actual: actual}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Step != "" {
		fmt.Fprintf(&b, " [%s]", e.Step)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Expected != nil || e.Actual != nil {
		fmt.Fprintf(&b, " (expected %s, actual %s)", Render(e.Expected), Render(e.Actual))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// Diff renders a line diff between expected and actual, or "" when the values
// print identically.
func (e *Error) Diff() string {
	if e.Expected == nil && e.Actual == nil {
		return ""
	}
	return pretty.Compare(e.Expected, e.Actual)
}

// KindOf extracts the failure kind of err, if any.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// WithStep attaches a step name to a classified error. Unclassified errors are
// returned unchanged.
func WithStep(err error, step string) error {
	var fe *Error
	if errors.As(err, &fe) && fe.Step == "" {
		fe.Step = step
	}
	return err
}

// Render formats a value for diagnostics.
func Render(v any) string {
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return fmt.Sprintf("%q", v)
	case fmt.Stringer:
		return v.String()
	case []byte:
		return fmt.Sprintf("0x%x", v)
	case [32]byte:
		return fmt.Sprintf("0x%x", v[:])
	}
	return strings.TrimSpace(pretty.Sprint(v))
}
