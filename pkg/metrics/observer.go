package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// Read paths.
const (
	PathCache  = "cache"
	PathDevice = "device"
)

// Observer turns trace events of one scheduler into metric updates.
type Observer struct {
	registry *Registry
	name     string
	live     prometheus.Gauge
}

// NewObserver creates an observer labelling every metric with name.
func NewObserver(registry *Registry, name string) *Observer {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Observer{
		registry: registry,
		name:     name,
		live:     registry.ThreadsLive.WithLabelValues(name),
	}
}

// NewObserverWithConfig builds the registry config describes and an observer
// on it. It returns nil when config is disabled. Schedulers sharing a
// registerer share its collectors and differ only by name.
func NewObserverWithConfig(config Config, name string) (*Observer, error) {
	if !config.Enabled {
		return nil, nil
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	registry, err := NewRegistryWithConfig(config)
	if err != nil {
		return nil, fmt.Errorf("metrics: register %s: %w", name, err)
	}
	return NewObserver(registry, name), nil
}

// Registry returns the registry the observer writes to.
func (o *Observer) Registry() *Registry {
	return o.registry
}

// Observe is a trace.Log subscriber.
func (o *Observer) Observe(e trace.Event) {
	r := o.registry
	switch e.Kind {
	case trace.Created:
		r.ThreadsCreated.WithLabelValues(o.name, e.Reason).Inc()
		o.live.Inc()
	case trace.Finished:
		r.ThreadsFinished.WithLabelValues(o.name).Inc()
		o.live.Dec()
	case trace.Terminated, trace.Swap, trace.Preempted, trace.Idle:
		r.ContextSwitches.WithLabelValues(o.name, e.Kind.String()).Inc()
	case trace.Blocked:
		r.DiskReads.WithLabelValues(o.name, PathDevice).Inc()
	case trace.Ready:
		r.DiskCompletions.WithLabelValues(o.name).Inc()
	case trace.Exhausted:
		r.Exhaustions.WithLabelValues(o.name, e.Reason).Inc()
	}
}

// CacheHit counts a read served by the page cache.
func (o *Observer) CacheHit() {
	o.registry.DiskReads.WithLabelValues(o.name, PathCache).Inc()
}

// SetLive sets the number of live threads.
func (o *Observer) SetLive(n int) {
	o.live.Set(float64(n))
}

// SetQueues records the current queue lengths.
func (o *Observer) SetQueues(high, low, waiting int) {
	o.registry.QueueLength.WithLabelValues(o.name, "high").Set(float64(high))
	o.registry.QueueLength.WithLabelValues(o.name, "low").Set(float64(low))
	o.registry.QueueLength.WithLabelValues(o.name, "waiting").Set(float64(waiting))
}
