package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue reads one series from the default registry: the counter or
// gauge value, or the sample count of a histogram. Missing series read as 0.
func GetMetricValue(t testing.TB, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricDelta asserts the series grew by exactly delta while fn ran.
func AssertMetricDelta(t testing.TB, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, name, labels)
	fn()
	assert.Equal(t, delta, GetMetricValue(t, name, labels)-before, "metric %s%v delta mismatch", name, labels)
}

// AssertMetricDeltaEventually is AssertMetricDelta for side effects that land
// after fn returns, such as dispatched tasks.
func AssertMetricDeltaEventually(t testing.TB, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, name, labels)
	fn()
	require.Eventually(t, func() bool {
		return GetMetricValue(t, name, labels)-before == delta
	}, 3*time.Second, 25*time.Millisecond, "metric %s%v never reached delta %+.0f", name, labels, delta)
}

// AssertHistogramRecorded asserts the histogram series has at least one sample.
func AssertHistogramRecorded(t testing.TB, name string, labels map[string]string) {
	t.Helper()
	assert.Positive(t, GetMetricValue(t, name, labels), "histogram %s%v has no samples", name, labels)
}
