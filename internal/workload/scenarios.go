package workload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vnykmshr/uthread/internal/config"
)

// Built-in scenarios. The timer is off in the deterministic ones: their
// threads charge ticks to themselves.
var scenarios = map[string]string{
	// Three Low threads share the CPU two ticks at a time.
	"a": `
name: round-robin
scheduler:
  policy: rr
  capacity: 4
  quantum: 2
  timer_interval: 0s
threads:
  - name: t1
    steps: [{op: tick, count: 6}, {op: print, message: t1 done}]
  - name: t2
    steps: [{op: tick, count: 6}, {op: print, message: t2 done}]
  - name: t3
    steps: [{op: tick, count: 6}, {op: print, message: t3 done}]
`,
	// A High thread is never preempted by the timer; L runs only after H exits.
	"b": `
name: high-priority
scheduler:
  policy: rrf
  capacity: 3
  quantum: 2
  timer_interval: 0s
threads:
  - name: low
    steps: [{op: print, message: low runs}]
  - name: high
    priority: high
    steps: [{op: tick, count: 10}, {op: print, message: high done}]
`,
	// A reader blocks on the disk while another thread keeps the CPU.
	"c": `
name: blocking-read
scheduler:
  policy: rrfd
  capacity: 3
  quantum: 2
  timer_interval: 2ms
disk:
  latency: 5ms
  seed:
    7: block seven
threads:
  - name: reader
    steps: [{op: read, block: 7}, {op: print, message: read returned}]
  - name: worker
    steps: [{op: spin, duration: 20ms}, {op: print, message: worker done}]
`,
	// The last thread exits and nothing is left to run.
	"d": `
name: last-exit
scheduler:
  policy: rrf
  capacity: 2
  timer_interval: 0s
threads:
  - name: last
    steps: [{op: print, message: last thread exiting}, {op: exit}]
`,
}

// Scenario returns the built-in workload called name.
func Scenario(name string) (config.Workload, error) {
	doc, ok := scenarios[strings.ToLower(name)]
	if !ok {
		return config.Workload{}, fmt.Errorf("unknown scenario %q (have %s)", name, strings.Join(Scenarios(), ", "))
	}
	return config.Parse([]byte(doc))
}

// Scenarios lists the built-in scenario names.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
