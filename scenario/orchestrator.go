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

// Package scenario sequences deployment, call, send and assertion steps
// across sessions and checks the state a proxy exposes after each of them.
// Steps run strictly in order and the first failure ends the scenario.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/tkmct/proxycheck/events"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/session"
)

// Scenario is a fixed sequence of steps.
type Scenario struct {
	Name        string
	Description string
	// MinSessions is the number of sessions the steps address.
	MinSessions int
	Steps       []Step
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Index    int
	Name     string
	Kind     StepKind
	Duration time.Duration
	Err      error
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario string
	State    State
	Steps    []StepResult
	Duration time.Duration
	// Err is the failure that ended the scenario; nil when Completed.
	Err error
}

// Passed reports whether the scenario completed.
func (r *Result) Passed() bool { return r.State == Completed }

// Observer is notified as steps and scenarios finish.
type Observer interface {
	StepDone(scenario string, step StepResult)
	ScenarioDone(result *Result)
}

// Orchestrator runs scenarios against a fixed set of sessions. It owns
// neither the sessions nor the fixtures; both outlive every scenario.
type Orchestrator struct {
	sessions  []session.Session
	observers []Observer

	mu       sync.Mutex
	decoders map[*fixtures.Contract]*events.Decoder
}

// New creates an orchestrator over sessions.
func New(sessions []session.Session, observers ...Observer) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		observers: observers,
		decoders:  make(map[*fixtures.Contract]*events.Decoder),
	}
}

// decoder returns the event decoder of a fixture, building it on first use.
func (o *Orchestrator) decoder(c *fixtures.Contract) *events.Decoder {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.decoders[c]
	if !ok {
		d = events.NewDecoder(c.ABI, c.KnownEventSignatures)
		o.decoders[c] = d
	}
	return d
}

// Run executes one scenario to completion or to its first failure.
func (o *Orchestrator) Run(ctx context.Context, sc *Scenario) *Result {
	start := time.Now()
	r := newRun(sc.Name, o.sessions)
	r.decoder = o.decoder
	res := &Result{Scenario: sc.Name}

	finish := func(err error) *Result {
		res.Duration = time.Since(start)
		res.Err = err
		if err != nil {
			r.state = Failed
			scenarioFailedCounter.Inc(1)
		} else {
			scenarioPassedCounter.Inc(1)
		}
		res.State = r.state
		for _, obs := range o.observers {
			obs.ScenarioDone(res)
		}
		return res
	}

	if len(o.sessions) < sc.MinSessions {
		return finish(failure.New(failure.NoAccount, "scenario %s needs %d sessions, have %d", sc.Name, sc.MinSessions, len(o.sessions)))
	}
	if err := distinctIdentities(o.sessions[:sc.MinSessions]); err != nil {
		return finish(err)
	}
	r.log.Info("Starting scenario", "steps", len(sc.Steps), "sessions", len(o.sessions))

	for i, step := range sc.Steps {
		stepStart := time.Now()
		err := o.runStep(ctx, r, step)
		sr := StepResult{Index: i, Name: step.Name, Kind: step.Kind, Duration: time.Since(stepStart), Err: err}
		res.Steps = append(res.Steps, sr)
		stepCounter.Inc(1)
		stepTimer.UpdateSince(stepStart)
		for _, obs := range o.observers {
			obs.StepDone(sc.Name, sr)
		}
		if err != nil {
			r.log.Error("Step failed", "step", i, "name", step.Name, "kind", step.Kind, "state", r.state, "err", err)
			return finish(err)
		}
		r.log.Debug("Step passed", "step", i, "name", step.Name, "kind", step.Kind, "elapsed", sr.Duration)
	}
	if err := r.transition(Completed); err != nil {
		return finish(failure.Wrap(failure.AssertionMismatch, err, "scenario %s", sc.Name))
	}
	r.log.Info("Scenario completed", "elapsed", time.Since(start))
	return finish(nil)
}

func (o *Orchestrator) runStep(ctx context.Context, r *Run, step Step) error {
	label := fmt.Sprintf("%s: %s", r.scenario, step.Name)
	if next, ok := step.Kind.entryState(); ok {
		if err := r.transition(next); err != nil {
			return failure.WithStep(failure.Wrap(failure.AssertionMismatch, err, "%s step", step.Kind), label)
		}
	} else if r.state.Terminal() {
		return failure.WithStep(failure.New(failure.AssertionMismatch, "step after %v", r.state), label)
	}
	err := step.Run(ctx, r)
	if err == nil && step.Kind == KindDeploy {
		err = r.transition(Deployed)
	}
	if err == nil {
		return nil
	}
	if _, ok := failure.KindOf(err); !ok {
		if errors.Is(err, context.Canceled) {
			return err
		}
		err = failure.Wrap(failure.AssertionMismatch, err, "%s step", step.Kind)
	}
	return failure.WithStep(err, label)
}

// RunAll executes scenarios in order and stops at the first failure, whose
// error it returns alongside every result produced so far.
func (o *Orchestrator) RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, sc := range scenarios {
		res := o.Run(ctx, sc)
		results = append(results, res)
		if res.Err != nil {
			return results, fmt.Errorf("scenario %s: %w", sc.Name, res.Err)
		}
	}
	log.Info("All scenarios passed", "count", len(results))
	return results, nil
}

// distinctIdentities reports a NoAccount failure when two of the sessions a
// scenario addresses act as the same account.
func distinctIdentities(sessions []session.Session) error {
	seen := make(map[common.Address]int, len(sessions))
	for i, s := range sessions {
		if j, ok := seen[s.Identity()]; ok {
			return failure.New(failure.NoAccount, "sessions %d and %d both act as %s", j, i, s.Identity().Hex())
		}
		seen[s.Identity()] = i
	}
	return nil
}
