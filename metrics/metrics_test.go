package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/goleak"

	"github.com/zoobzio/edgez/graph"
	"github.com/zoobzio/edgez/internal/testutil"
	"github.com/zoobzio/edgez/logging"
	"github.com/zoobzio/edgez/oplet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTupleCounters(t *testing.T) {
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	src, err := graph.Source(g, oplet.NewValues(1, 2, 3, 4))
	require.NoError(t, err)
	even, err := graph.Pipe(src.Connectors()[0], oplet.NewFilter(func(i int) bool { return i%2 == 0 }))
	require.NoError(t, err)
	out := testutil.NewCollector[int]()
	_, err = graph.Sink(even, oplet.NewSink(out.Add))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	counters, err := NewTupleCounters(reg, "edgez")
	require.NoError(t, err)
	require.NoError(t, counters.Install(g, "JOB_test", nil))

	_, err = NewTupleCounters(reg, "edgez")
	assert.Error(t, err)

	exec := testutil.NewExecutor(t, clockz.RealClock)
	require.NoError(t, g.Initialize(graph.Runtime{JobName: "JOB_test", Executor: exec, Logger: logging.NewNopLogger()}))
	require.NoError(t, g.Start(context.Background()))
	require.NoError(t, exec.Wait(context.Background()))
	require.NoError(t, g.Close())

	assert.Equal(t, []int{2, 4}, out.Items())
	vec := counters.Collector()
	assert.Equal(t, 4.0, promtest.ToFloat64(vec.WithLabelValues("JOB_test", "OP_0", "oplet.Generator", "0")))
	assert.Equal(t, 2.0, promtest.ToFloat64(vec.WithLabelValues("JOB_test", "OP_1", "oplet.Filter", "0")))
}
