// Package config loads uthread workload files.
//
// A workload file is YAML. It configures the scheduler, its disk and the
// ambient services, and lists the threads to run:
//
//	scheduler:
//	  policy: rrfd
//	  capacity: 10
//	  quantum: 2
//	  timer_interval: 10ms
//	disk:
//	  latency: 2ms
//	  cache_size: 8
//	threads:
//	  - name: reader
//	    priority: high
//	    steps:
//	      - op: read
//	        block: 3
//	      - op: print
//	        message: done
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/common/validation"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/machine"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

// Step operations.
const (
	OpTick     = "tick"     // charge Count timer ticks to the thread
	OpSpin     = "spin"     // loop on safe points for Duration, or forever
	OpRead     = "read"     // blocking read of Block
	OpCreate   = "create"   // create the deferred thread named Target
	OpPriority = "priority" // change the thread's priority to Priority
	OpPrint    = "print"    // write Message to the workload output
	OpExit     = "exit"     // exit the thread
)

var ops = []string{OpTick, OpSpin, OpRead, OpCreate, OpPriority, OpPrint, OpExit}

// Workload is the top-level document of a workload file.
type Workload struct {
	Name      string          `yaml:"name"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Disk      DiskConfig      `yaml:"disk"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
	Report    ReportConfig    `yaml:"report"`
	Log       LogConfig       `yaml:"log"`
	Main      []Step          `yaml:"main"`
	Threads   []Thread        `yaml:"threads"`
}

// SchedulerConfig mirrors the tunables of sched.Config.
type SchedulerConfig struct {
	Policy        string        `yaml:"policy"`
	Capacity      int           `yaml:"capacity"`
	Quantum       int           `yaml:"quantum"`
	StackSize     int           `yaml:"stack_size"`
	StackLimit    int           `yaml:"stack_limit"`
	TimerInterval time.Duration `yaml:"timer_interval"`
}

// DiskConfig configures the simulated disk. With an empty RedisAddr blocks
// are served from memory.
type DiskConfig struct {
	Workers     int           `yaml:"workers"`
	Latency     time.Duration `yaml:"latency"`
	BlockSize   int           `yaml:"block_size"`
	CacheSize   int           `yaml:"cache_size"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`

	// Seed maps block numbers to initial contents.
	Seed map[uint64]string `yaml:"seed"`
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ServerConfig configures the debug HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig configures the periodic snapshot report. An empty Schedule
// disables it.
type ReportConfig struct {
	Schedule string `yaml:"schedule"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Thread is one user thread of the workload. Threads that are not Deferred
// are created by thread 0 in file order; deferred ones only by a create step.
type Thread struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority"`
	Deferred bool   `yaml:"deferred"`
	Steps    []Step `yaml:"steps"`
}

// Step is one operation of a thread script.
type Step struct {
	Op       string        `yaml:"op"`
	Count    int           `yaml:"count"`
	Duration time.Duration `yaml:"duration"`
	Block    uint64        `yaml:"block"`
	Target   string        `yaml:"target"`
	Priority string        `yaml:"priority"`
	Message  string        `yaml:"message"`
}

// Default returns a workload with the library defaults and no threads.
func Default() Workload {
	return Workload{
		Name: "workload",
		Scheduler: SchedulerConfig{
			Policy:        sched.PolicyRRFD.String(),
			Capacity:      sched.DefaultCapacity,
			Quantum:       sched.DefaultQuantum,
			StackSize:     0,
			TimerInterval: sched.DefaultTimerInterval,
		},
		Disk: DiskConfig{
			Workers:   1,
			Latency:   time.Millisecond,
			BlockSize: disk.DefaultBlockSize,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads and validates the workload file at path.
func Load(path string) (Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("read workload: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return Workload{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes a workload over Default and validates it. Unknown keys are
// rejected.
func Parse(data []byte) (Workload, error) {
	w := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return Workload{}, fmt.Errorf("parse workload: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Workload{}, err
	}
	return w, nil
}

// Validate checks the workload for consistency.
func (w Workload) Validate() error {
	if _, err := sched.ParsePolicy(w.Scheduler.Policy); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "scheduler.capacity", w.Scheduler.Capacity); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "scheduler.quantum", w.Scheduler.Quantum); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "scheduler.stack_size", w.Scheduler.StackSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "scheduler.stack_limit", w.Scheduler.StackLimit); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("config", "scheduler.timer_interval", w.Scheduler.TimerInterval); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "disk.cache_size", w.Disk.CacheSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("config", "disk.latency", w.Disk.Latency); err != nil {
		return err
	}
	if w.Log.Format != "" {
		if err := validation.ValidateOneOf("config", "log.format", w.Log.Format, "text", "json"); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(w.Threads))
	for i, t := range w.Threads {
		field := fmt.Sprintf("threads[%d].name", i)
		if err := validation.ValidateNotEmpty("config", field, t.Name); err != nil {
			return err
		}
		if names[t.Name] {
			return uterrors.NewValidationError("config", field, t.Name, "duplicate thread name")
		}
		names[t.Name] = true
		if _, err := t.ParsePriority(); err != nil {
			return err
		}
	}

	if err := validateSteps("main", w.Main, names); err != nil {
		return err
	}
	for _, t := range w.Threads {
		if err := validateSteps(t.Name, t.Steps, names); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(owner string, steps []Step, names map[string]bool) error {
	for i, s := range steps {
		field := fmt.Sprintf("%s.steps[%d]", owner, i)
		if err := validation.ValidateOneOf("config", field+".op", s.Op, ops...); err != nil {
			return err
		}
		switch s.Op {
		case OpTick:
			if err := validation.ValidatePositive("config", field+".count", s.Count); err != nil {
				return err
			}
		case OpSpin:
			if err := validation.ValidateNonNegativeDuration("config", field+".duration", s.Duration); err != nil {
				return err
			}
		case OpCreate:
			if !names[s.Target] {
				return uterrors.NewValidationError("config", field+".target", s.Target, "unknown thread").
					WithHint("name a thread listed under threads")
			}
		case OpPriority:
			if _, err := sched.ParsePriority(s.Priority); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParsePriority returns the thread priority, Low when unset.
func (t Thread) ParsePriority() (sched.Priority, error) {
	if t.Priority == "" {
		return sched.Low, nil
	}
	return sched.ParsePriority(t.Priority)
}

// Lookup returns the thread named name.
func (w Workload) Lookup(name string) (Thread, bool) {
	for _, t := range w.Threads {
		if t.Name == name {
			return t, true
		}
	}
	return Thread{}, false
}

// SchedConfig builds the scheduler configuration. The disk device, cache and
// logger are left for the caller to wire.
func (w Workload) SchedConfig() (sched.Config, error) {
	policy, err := sched.ParsePolicy(w.Scheduler.Policy)
	if err != nil {
		return sched.Config{}, err
	}
	cfg := sched.DefaultConfig()
	cfg.Policy = policy
	cfg.Capacity = w.Scheduler.Capacity
	cfg.Quantum = w.Scheduler.Quantum
	cfg.StackSize = w.Scheduler.StackSize
	cfg.TimerInterval = w.Scheduler.TimerInterval
	if w.Scheduler.StackLimit > 0 {
		cfg.Allocator = machine.NewHeapAllocator(w.Scheduler.StackLimit)
	}
	return cfg, nil
}

// DeviceConfig builds the disk device configuration.
func (w Workload) DeviceConfig() disk.Config {
	cfg := disk.DefaultConfig()
	if w.Disk.Workers > 0 {
		cfg.Workers = w.Disk.Workers
	}
	cfg.Latency = w.Disk.Latency
	return cfg
}
