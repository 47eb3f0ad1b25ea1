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

package main

import (
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/tkmct/proxycheck/fixtures"
	"github.com/tkmct/proxycheck/scenario"
	"github.com/urfave/cli/v2"
)

func fixturesCommand(ctx *cli.Context) error {
	out := ctx.App.Writer
	for _, c := range fixtures.All() {
		fmt.Fprintf(out, "%s: deploy %d bytes, runtime %d bytes\n", c.Name, len(c.DeployBytecode), len(c.RuntimeBytecode))

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Kind", "Selector / Topic", "Signature"})
		table.SetAutoWrapText(false)

		methods := make([]string, 0, len(c.ABI.Methods))
		for name := range c.ABI.Methods {
			methods = append(methods, name)
		}
		sort.Strings(methods)
		for _, name := range methods {
			m := c.ABI.Methods[name]
			table.Append([]string{"method", fmt.Sprintf("0x%x", m.ID), m.Sig})
		}

		events := make([]string, 0, len(c.ABI.Events))
		for name := range c.ABI.Events {
			events = append(events, name)
		}
		sort.Strings(events)
		for _, name := range events {
			sig, _ := c.EventSignature(name)
			table.Append([]string{"event", sig.Hex(), c.ABI.Events[name].Sig})
		}
		table.Render()
		fmt.Fprintln(out)
	}
	for _, sc := range scenario.All() {
		fmt.Fprintf(out, "scenario %-18s %2d steps, %d sessions: %s\n", sc.Name, len(sc.Steps), sc.MinSessions, sc.Description)
	}
	return nil
}

func scenarioNames() []string {
	all := scenario.All()
	names := make([]string, len(all))
	for i, sc := range all {
		names[i] = sc.Name
	}
	return names
}
