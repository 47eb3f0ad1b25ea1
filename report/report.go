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

// Package report prints scenario progress and the final summary.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/fatih/color"
	"github.com/tkmct/proxycheck/failure"
	"github.com/tkmct/proxycheck/scenario"
)

// Report collects scenario outcomes and renders them to a writer. It
// implements scenario.Observer.
type Report struct {
	out     io.Writer
	verbose bool

	pass, fail, warn, info *color.Color

	mu        sync.Mutex
	current   string
	results   []*scenario.Result
	steps     int
	failedRun int
}

// New creates a report writing to out. Colour is used only when enabled.
func New(out io.Writer, colour, verbose bool) *Report {
	r := &Report{
		out:     out,
		verbose: verbose,
		pass:    color.New(color.FgGreen),
		fail:    color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{r.pass, r.fail, r.warn, r.info} {
		if colour {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Endpoint prints one endpoint precheck line.
func (r *Report) Endpoint(url, identity, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "  %s %s as %s: %s\n", r.info.Sprint("@"), url, identity, detail)
}

// StepDone prints a step line. Passing steps are printed only when verbose.
func (r *Report) StepDone(name string, s scenario.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header(name)
	r.steps++
	if s.Err != nil {
		fmt.Fprintf(r.out, "  %s %s (%s): %v\n", r.fail.Sprint("✗"), s.Name, s.Kind, s.Err)
		return
	}
	if r.verbose {
		fmt.Fprintf(r.out, "  %s %s (%s, %v)\n", r.pass.Sprint("✓"), s.Name, s.Kind, s.Duration.Round(time.Millisecond))
	}
}

// ScenarioDone prints the scenario verdict and, on failure, the diagnostic.
func (r *Report) ScenarioDone(res *scenario.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header(res.Scenario)
	r.results = append(r.results, res)
	elapsed := res.Duration.Round(time.Millisecond)
	if res.Passed() {
		fmt.Fprintf(r.out, "%s %s (%d steps, %v)\n\n", r.pass.Sprint("PASS"), res.Scenario, len(res.Steps), elapsed)
		return
	}
	r.failedRun++
	fmt.Fprintf(r.out, "%s %s in state %v after %d steps (%v)\n", r.fail.Sprint("FAIL"), res.Scenario, res.State, len(res.Steps), elapsed)
	r.diagnose(res.Err)
	fmt.Fprintln(r.out)
}

func (r *Report) header(name string) {
	if r.current == name {
		return
	}
	r.current = name
	fmt.Fprintf(r.out, "%s %s\n", r.info.Sprint("==>"), name)
}

func (r *Report) diagnose(err error) {
	if err == nil {
		return
	}
	var fe *failure.Error
	if !errors.As(err, &fe) {
		fmt.Fprintf(r.out, "    error:    %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "    kind:     %s\n", fe.Kind)
	if fe.Step != "" {
		fmt.Fprintf(r.out, "    step:     %s\n", fe.Step)
	}
	if fe.Msg != "" {
		fmt.Fprintf(r.out, "    detail:   %s\n", fe.Msg)
	}
	if fe.Expected != nil || fe.Actual != nil {
		fmt.Fprintf(r.out, "    expected: %s\n", failure.Render(fe.Expected))
		fmt.Fprintf(r.out, "    actual:   %s\n", failure.Render(fe.Actual))
		if diff := fe.Diff(); strings.Contains(diff, "\n") {
			fmt.Fprintf(r.out, "    diff:\n%s\n", indent(diff, "      "))
		}
	}
	if fe.Err != nil {
		fmt.Fprintf(r.out, "    cause:    %v\n", fe.Err)
	}
}

// Failed reports whether any scenario failed.
func (r *Report) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedRun > 0
}

// Summary prints the totals, and the harness metrics when verbose.
func (r *Report) Summary(requested int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	passed := len(r.results) - r.failedRun
	skipped := requested - len(r.results)
	fmt.Fprintln(r.out, "==========================================")
	fmt.Fprintln(r.out, "Conformance Summary")
	fmt.Fprintln(r.out, "==========================================")
	fmt.Fprintf(r.out, "  %s  %d\n", r.pass.Sprint("Passed:"), passed)
	fmt.Fprintf(r.out, "  %s  %d\n", r.fail.Sprint("Failed:"), r.failedRun)
	if skipped > 0 {
		fmt.Fprintf(r.out, "  %s %d\n", r.warn.Sprint("Skipped:"), skipped)
	}
	fmt.Fprintf(r.out, "  Steps:   %d\n", r.steps)
	if r.verbose {
		r.printMetrics()
	}
	fmt.Fprintln(r.out)
	switch {
	case r.failedRun > 0:
		fmt.Fprintln(r.out, r.fail.Sprint("Proxy is NOT conformant. See the failure above."))
	case skipped > 0:
		fmt.Fprintln(r.out, r.warn.Sprint("Run incomplete."))
	default:
		fmt.Fprintln(r.out, r.pass.Sprint("All scenarios passed."))
	}
}

// printMetrics dumps the proxycheck metrics of the default registry.
func (r *Report) printMetrics() {
	all := metrics.DefaultRegistry.GetAll()
	names := make([]string, 0, len(all))
	for name := range all {
		if strings.HasPrefix(name, "proxycheck/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)
	fmt.Fprintln(r.out, "  Metrics:")
	for _, name := range names {
		values := all[name]
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			switch k {
			case "count", "mean", "max", "median", "95%":
				parts = append(parts, fmt.Sprintf("%s=%v", k, formatMetric(k, values[k])))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(r.out, "    %-40s %s\n", strings.TrimPrefix(name, "proxycheck/"), strings.Join(parts, " "))
		}
	}
}

func formatMetric(key string, v interface{}) interface{} {
	if key == "count" {
		return v
	}
	switch n := v.(type) {
	case float64:
		return time.Duration(n).Round(time.Microsecond)
	case int64:
		return time.Duration(n).Round(time.Microsecond)
	}
	return v
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
