package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.GhostLoaded()
	m.DatasetMutated("add")
	m.SoftWarning("removed")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PlanInserted()
	m.PlanDeduped()
	m.PlanDeduped()
	m.DatasetMutated("remove")

	require.Equal(t, 1.0, testutil.ToFloat64(m.PlansInserted))
	require.Equal(t, 2.0, testutil.ToFloat64(m.PlansDeduped))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DatasetMutations.WithLabelValues("remove")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// eight plain counters plus the one populated vector child
	require.Equal(t, 9, n)
}
