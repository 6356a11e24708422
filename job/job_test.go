package job

import (
	"context"
	"errors"
	"testing"
	"time"

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

func newJob(t *testing.T, g *graph.Graph) *Job {
	t.Helper()
	return New(g,
		WithLogger(logging.NewNopLogger()),
		WithExecutor(testutil.NewExecutor(t, clockz.RealClock)),
	)
}

func TestJob_RunToCompletion(t *testing.T) {
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	src, err := graph.Source(g, oplet.NewValues(1, 2, 3))
	require.NoError(t, err)
	out := testutil.NewCollector[int]()
	_, err = graph.Sink(src.Connectors()[0], oplet.NewSink(out.Add))
	require.NoError(t, err)

	j := newJob(t, g)
	assert.Equal(t, Constructed, j.State())
	assert.NotEqual(t, j.ID().String(), "")

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, Running, j.State())

	require.NoError(t, j.Complete(context.Background()))
	assert.Equal(t, Closed, j.State())
	assert.Equal(t, []int{1, 2, 3}, out.Items())
}

func TestJob_CompleteReturnsTaskFailure(t *testing.T) {
	boom := errors.New("boom")
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	_, err := graph.Source(g, oplet.NewGenerator(func(context.Context, func(int) error) error {
		return boom
	}))
	require.NoError(t, err)

	j := newJob(t, g)
	require.NoError(t, j.Run(context.Background()))
	assert.ErrorIs(t, j.Complete(context.Background()), boom)
	assert.ErrorIs(t, j.Err(), boom)
	assert.Equal(t, Closed, j.State())
}

func TestJob_EventSourceKeepsJobAlive(t *testing.T) {
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	_, err := graph.Source(g, oplet.NewEvents(func(func(int) error) error { return nil }))
	require.NoError(t, err)

	j := newJob(t, g)
	require.NoError(t, j.Run(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, j.Complete(ctx), context.DeadlineExceeded)
	assert.Equal(t, Closed, j.State())
	assert.False(t, j.Executor().HasActiveTasks())
}

func TestJob_InvalidTransitions(t *testing.T) {
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	j := newJob(t, g)

	assert.ErrorIs(t, j.Start(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, j.Complete(context.Background()), ErrInvalidTransition)
	require.NoError(t, j.Initialize())
	assert.ErrorIs(t, j.Initialize(), ErrInvalidTransition)

	require.NoError(t, j.Close(context.Background()))
	require.NoError(t, j.Close(context.Background()))
	assert.Equal(t, "CLOSED", j.State().String())
}

func TestJob_Names(t *testing.T) {
	g := graph.New(graph.WithLogger(logging.NewNopLogger()))
	a := newJob(t, g)
	b := newJob(t, g)
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Regexp(t, `^JOB_\d+$`, a.Name())

	named := New(g, WithName("sensors"), WithLogger(logging.NewNopLogger()),
		WithExecutor(testutil.NewExecutor(t, clockz.RealClock)))
	assert.Equal(t, "sensors", named.Name())
}
