package sched

import (
	"github.com/vnykmshr/uthread/pkg/metrics"
)

// NewWithMetrics creates a System whose lifecycle events, queue lengths and
// read paths are exported as Prometheus metrics labelled with name.
func NewWithMetrics(config Config, name string, metricsConfig metrics.Config) (*System, error) {
	s, err := New(config)
	if err != nil {
		return nil, err
	}

	observer, err := metrics.NewObserverWithConfig(metricsConfig, name)
	if err != nil {
		return nil, err
	}
	if observer == nil {
		return s, nil
	}
	s.observer = observer
	s.trace.Subscribe(observer.Observe)
	return s, nil
}

// Observer returns the metrics observer, or nil when metrics are disabled.
func (s *System) Observer() *metrics.Observer {
	return s.observer
}
