// Package metrics provides Prometheus instrumentation for uthread schedulers.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metric instances for a scheduler.
type Registry struct {
	// Thread lifecycle
	ThreadsCreated  *prometheus.CounterVec
	ThreadsFinished *prometheus.CounterVec
	ThreadsLive     *prometheus.GaugeVec

	// Dispatching
	ContextSwitches *prometheus.CounterVec
	Exhaustions     *prometheus.CounterVec
	QueueLength     *prometheus.GaugeVec

	// Disk path
	DiskReads       *prometheus.CounterVec
	DiskCompletions *prometheus.CounterVec
}

// DefaultRegistry is the registry on prometheus.DefaultRegisterer with the
// default namespace and no constant labels.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a metrics registry on reg with the default namespace.
// A nil reg leaves the collectors unregistered. It panics if reg already
// holds a conflicting collector.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r, err := NewRegistryWithConfig(Config{Registry: reg})
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistryWithConfig creates a registry honoring the namespace and constant
// labels of config. Collectors that config.Registry already holds with the
// same description are reused, so any number of schedulers may share one
// registerer.
func NewRegistryWithConfig(config Config) (*Registry, error) {
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	b := &builder{reg: config.Registry, ns: ns, labels: config.Labels}

	r := &Registry{
		ThreadsCreated: b.counter("threads", "created_total",
			"Total number of threads created", "scheduler_name", "priority"),
		ThreadsFinished: b.counter("threads", "finished_total",
			"Total number of threads that exited", "scheduler_name"),
		ThreadsLive: b.gauge("threads", "live",
			"Number of thread control blocks in use", "scheduler_name"),

		ContextSwitches: b.counter("scheduler", "context_switches_total",
			"Total number of context switches by kind", "scheduler_name", "kind"),
		Exhaustions: b.counter("scheduler", "exhaustions_total",
			"Number of times no runnable thread was left", "scheduler_name", "reason"),
		QueueLength: b.gauge("scheduler", "queue_length",
			"Number of threads in each queue", "scheduler_name", "queue"),

		DiskReads: b.counter("disk", "reads_total",
			"Total number of reads by the path that served them", "scheduler_name", "path"),
		DiskCompletions: b.counter("disk", "completions_total",
			"Total number of disk completions that readied a thread", "scheduler_name"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return r, nil
}

// builder creates collectors and keeps the first registration error.
type builder struct {
	reg    prometheus.Registerer
	ns     string
	labels prometheus.Labels
	err    error
}

func (b *builder) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   b.ns,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: b.labels,
	}, labels)
	return register(b, c)
}

func (b *builder) gauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   b.ns,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: b.labels,
	}, labels)
	return register(b, g)
}

// register adds c to the builder's registerer and returns the collector
// already registered under the same description, if any.
func register[C prometheus.Collector](b *builder, c C) C {
	if b.reg == nil || b.err != nil {
		return c
	}
	err := b.reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	b.err = err
	return c
}
