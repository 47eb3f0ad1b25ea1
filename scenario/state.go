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

import "fmt"

// State is the lifecycle position of a running scenario.
type State int

const (
	NotStarted State = iota
	Deploying
	Deployed
	Reading
	Mutating
	Completed
	Failed
)

var stateNames = [...]string{
	NotStarted: "NotStarted",
	Deploying:  "Deploying",
	Deployed:   "Deployed",
	Reading:    "Reading",
	Mutating:   "Mutating",
	Completed:  "Completed",
	Failed:     "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// transitions lists the legal successors of every non-terminal state. Failed
// is reachable from all of them and handled separately.
var transitions = map[State][]State{
	NotStarted: {Deploying},
	Deploying:  {Deployed},
	Deployed:   {Reading, Mutating, Completed},
	Reading:    {Reading, Mutating, Completed},
	Mutating:   {Reading, Mutating, Completed},
}

// canTransition reports whether from may move to to.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
