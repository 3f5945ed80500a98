package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSolve(t *testing.T) {
	before := testutil.CollectAndCount(SolveDuration)

	ObserveSolve("metrics_test_solver", 0, 0.002)
	ObserveSolve("metrics_test_solver", 1, 0.003)

	assert.Equal(t, before+1, testutil.CollectAndCount(SolveDuration))
}

func TestRunsTotal(t *testing.T) {
	counter := RunsTotal.WithLabelValues("metrics_test")
	start := testutil.ToFloat64(counter)

	counter.Inc()
	assert.Equal(t, start+1, testutil.ToFloat64(counter))
}
