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

import "github.com/ethereum/go-ethereum/metrics"

var (
	scenarioPassedCounter = metrics.NewRegisteredCounter("proxycheck/scenario/passed", nil)
	scenarioFailedCounter = metrics.NewRegisteredCounter("proxycheck/scenario/failed", nil)
	stepCounter           = metrics.NewRegisteredCounter("proxycheck/scenario/steps", nil)
	stepTimer             = metrics.NewRegisteredTimer("proxycheck/scenario/step/latency", nil)
)
