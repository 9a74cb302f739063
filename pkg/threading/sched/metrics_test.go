package sched

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnykmshr/uthread/internal/testutil"
	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/metrics"
)

// metricValue sums the samples of family name whose labels include want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	testutil.AssertNoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNewWithMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.TimerInterval = 0
	cfg.Logger = logger
	s, err := NewWithMetrics(cfg, "unit", metrics.Config{Enabled: true, Registry: reg})
	testutil.AssertNoError(t, err)
	if s.Observer() == nil {
		t.Fatal("observer not installed")
	}

	r := start(t, s, func() {
		for i := 0; i < 2; i++ {
			if _, err := s.Create(func() {}, Low); err != nil {
				t.Error(err)
			}
		}
	})
	testutil.AssertErrorIs(t, r.wait(t), uterrors.ErrSchedulerExhausted)

	scheduler := map[string]string{"scheduler_name": "unit"}
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_threads_created_total", map[string]string{"priority": "low"}), 2.0)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_threads_finished_total", scheduler), 3.0)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_threads_live", scheduler), 0.0)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_scheduler_context_switches_total", map[string]string{"kind": "terminated"}), 2.0)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_scheduler_exhaustions_total", map[string]string{"reason": "complete"}), 1.0)
}

func TestNewWithMetricsDisabled(t *testing.T) {
	s, err := NewWithMetrics(Config{Policy: PolicyRRF}, "off", metrics.Config{Enabled: false})
	testutil.AssertNoError(t, err)
	if s.Observer() != nil {
		t.Error("observer installed while metrics are disabled")
	}
}

func TestNewWithMetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := metrics.Config{Enabled: true, Registry: reg}

	a, err := NewWithMetrics(Config{Policy: PolicyRRF}, "a", mc)
	testutil.AssertNoError(t, err)
	b, err := NewWithMetrics(Config{Policy: PolicyRRF}, "b", mc)
	testutil.AssertNoError(t, err)

	a.Observer().SetLive(1)
	b.Observer().SetLive(2)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_threads_live", map[string]string{"scheduler_name": "a"}), 1.0)
	testutil.AssertEqual(t, metricValue(t, reg, "uthread_threads_live", map[string]string{"scheduler_name": "b"}), 2.0)
}
