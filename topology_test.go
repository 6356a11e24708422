package edgez

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/goleak"

	"github.com/zoobzio/edgez/graph"
	"github.com/zoobzio/edgez/internal/testutil"
	"github.com/zoobzio/edgez/job"
	"github.com/zoobzio/edgez/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reading struct {
	sensor string
	value  float64
}

func (r reading) Value() float64 { return r.value }

func parse(s string) (reading, error) {
	v, err := strconv.ParseFloat(s[1:], 64)
	return reading{sensor: s[:1], value: v}, err
}

func bySensor(r reading) string { return r.sensor }

func newTopology(t *testing.T, opts ...Option) *Topology {
	t.Helper()
	return NewTopology(t.Name(), append([]Option{WithLogger(logging.NewNopLogger())}, opts...)...)
}

func submit(t *testing.T, top *Topology) *job.Job {
	t.Helper()
	j, err := top.Submit(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = j.Close(context.Background())
	})
	return j
}

func runToCompletion(t *testing.T, top *Topology) {
	t.Helper()
	j := submit(t, top)
	require.NoError(t, j.Complete(context.Background()))
}

func TestMinOverLastTwo(t *testing.T) {
	top := newTopology(t)
	readings := Map(Of(top, "A1", "B7", "C4", "A4", "B3", "C99", "A102", "B43", "B13", "A0", "C700"), parse)
	last2, err := Last(readings, 2, bySensor)
	require.NoError(t, err)
	out := testutil.NewCollector[Measure[string]]()
	Aggregate(last2, Min[reading, string](reading.Value)).Sink(out.Add)

	runToCompletion(t, top)

	assert.Equal(t, []Measure[string]{
		{"A", 1}, {"B", 7}, {"C", 4}, {"A", 1}, {"B", 3}, {"C", 4},
		{"A", 4}, {"B", 3}, {"B", 13}, {"A", 0}, {"C", 99},
	}, out.Items())
}

func TestStreamConnectedTwiceFansOut(t *testing.T) {
	top := newTopology(t)
	s := Of(top, 1, 2, 3)
	a := testutil.NewCollector[int]()
	b := testutil.NewCollector[int]()
	s.Sink(a.Add)
	s.Sink(b.Add)

	runToCompletion(t, top)

	assert.Equal(t, []int{1, 2, 3}, a.Items())
	assert.Equal(t, []int{1, 2, 3}, b.Items())
	// source, fan-out and two sinks
	assert.Equal(t, 4, top.Graph().Len())
}

func TestPeekRunsBeforeDownstream(t *testing.T) {
	top := newTopology(t)
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	s := Of(top, 1, 2).Tag("raw")
	s.Sink(func(i int) error {
		record("sink" + strconv.Itoa(i))
		return nil
	})
	s.Peek(func(i int) { record("peek" + strconv.Itoa(i)) })

	runToCompletion(t, top)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"peek1", "sink1", "peek2", "sink2"}, events)
	assert.Equal(t, []string{"raw"}, s.Tags())
}

func TestBatchDropsIncompleteBatch(t *testing.T) {
	top := newTopology(t)
	w, err := Last(Of[float64](top, 1, 2, 3, 4, 5, 6, 7), 3, Unpartitioned[float64])
	require.NoError(t, err)
	out := testutil.NewCollector[Measure[int]]()
	Batch(w, Sum[float64, int](func(f float64) float64 { return f })).Sink(out.Add)

	runToCompletion(t, top)

	assert.Equal(t, []Measure[int]{{0, 6}, {0, 15}}, out.Items())
}

func TestTimeBatch(t *testing.T) {
	clock := clockz.NewFakeClock()
	top := newTopology(t, WithClock(clock))

	var emit func(string) error
	events := Events(top, func(submit func(string) error) error {
		emit = submit
		return nil
	})
	w, err := LastTime(Map(events, parse), time.Second, bySensor)
	require.NoError(t, err)
	out := testutil.NewCollector[Summary[string]]()
	Batch(w, Stats[reading, string](reading.Value)).Sink(out.Add)

	submit(t, top)
	for _, s := range []string{"A1", "A3", "B10"} {
		require.NoError(t, emit(s))
	}
	assert.Equal(t, 0, out.Len())

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	got := out.WaitForCount(t, 2, time.Second)

	byKey := map[string]Summary[string]{}
	for _, s := range got {
		byKey[s.Key] = s
	}
	assert.Equal(t, 2, byKey["A"].Count)
	assert.Equal(t, 2.0, byKey["A"].Mean)
	assert.Equal(t, 1, byKey["B"].Count)
	assert.Equal(t, 10.0, byKey["B"].Max)
}

func TestSlidingTimeWindow(t *testing.T) {
	clock := clockz.NewFakeClock()
	top := newTopology(t, WithClock(clock))

	var emit func(string) error
	events := Events(top, func(submit func(string) error) error {
		emit = submit
		return nil
	})
	w, err := LastTime(Map(events, parse), time.Second, bySensor)
	require.NoError(t, err)
	out := testutil.NewCollector[Measure[string]]()
	Aggregate(w, Count[reading, string]()).Sink(out.Add)

	submit(t, top)
	require.NoError(t, emit("A1"))
	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()
	require.NoError(t, emit("A2"))
	assert.Equal(t, []Measure[string]{{"A", 1}, {"A", 2}}, out.Items())

	// The first tuple expires; the count drops.
	clock.Advance(500 * time.Millisecond)
	clock.BlockUntilReady()
	got := out.WaitForCount(t, 3, time.Second)
	assert.Equal(t, Measure[string]{"A", 1}, got[2])
}

func TestPoll(t *testing.T) {
	clock := clockz.NewFakeClock()
	top := newTopology(t, WithClock(clock))

	var n int
	s, err := Poll(top, 100*time.Millisecond, func() (int, bool, error) {
		n++
		return n, n%2 == 1, nil
	})
	require.NoError(t, err)
	out := testutil.NewCollector[int]()
	s.Sink(out.Add)

	submit(t, top)
	for i := 0; i < 4; i++ {
		clock.Advance(100 * time.Millisecond)
		clock.BlockUntilReady()
	}
	assert.Equal(t, []int{1, 3, 5}, out.WaitForCount(t, 3, time.Second)[:3])
}

func TestSplitAndUnion(t *testing.T) {
	top := newTopology(t)
	parts, err := Of(top, 1, 2, 3, 4, 5, 6, -1).Split(2, func(i int) int {
		if i < 0 {
			return -1
		}
		return i % 2
	})
	require.NoError(t, err)
	require.Len(t, parts, 2)

	tens := Map(parts[1], func(i int) (int, error) { return i * 10, nil })
	merged, err := Union(parts[0], tens)
	require.NoError(t, err)
	out := testutil.NewCollector[int]()
	merged.Sink(out.Add)

	runToCompletion(t, top)

	assert.ElementsMatch(t, []int{2, 4, 6, 10, 30, 50}, out.Items())
}

func TestPressureRelieveDeliversInOrder(t *testing.T) {
	top := newTopology(t)
	relieved, err := PressureRelieve(Of(top, 1, 2, 3, 4, 5), 10, Unpartitioned[int])
	require.NoError(t, err)
	out := testutil.NewCollector[int]()
	relieved.Sink(out.Add)

	runToCompletion(t, top)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, out.Items())
}

func TestIsolate(t *testing.T) {
	top := newTopology(t)
	out := testutil.NewCollector[int]()
	Of(top, 1, 2, 3).Isolate().Sink(out.Add)

	runToCompletion(t, top)

	assert.Equal(t, []int{1, 2, 3}, out.Items())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	top := newTopology(t, WithMetrics(reg))
	Of(top, 1, 2, 3).Filter(func(i int) bool { return i != 2 }).Sink(func(int) error { return nil })

	runToCompletion(t, top)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "edgez_vertex_output_tuples_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "vertex" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"OP_0": 3, "OP_1": 2}, counts)
}

func TestInvalidArguments(t *testing.T) {
	top := newTopology(t)
	s := Of(top, 1)

	_, err := Last(s, 0, Unpartitioned[int])
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Last[int, int](s, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = LastTime(s, 0, Unpartitioned[int])
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Poll(top, 0, func() (int, bool, error) { return 0, false, nil })
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Split(0, func(int) int { return 0 })
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = PressureRelieve(s, 0, Unpartitioned[int])
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Union[int]()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Union(s, Of(newTopology(t), 2))
	assert.ErrorIs(t, err, graph.ErrForeignVertex)

	assert.NoError(t, top.Err())
}

func TestSubmitTwice(t *testing.T) {
	top := newTopology(t)
	Of(top, 1).Sink(func(int) error { return nil })
	submit(t, top)

	_, err := top.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitted)
}

func TestStreamsAddedAfterCloseAreRecorded(t *testing.T) {
	top := newTopology(t)
	Of(top, 1).Sink(func(int) error { return nil })
	j := submit(t, top)
	require.NoError(t, j.Complete(context.Background()))

	s := Of(top, 2)
	assert.Nil(t, s.Connector())
	s.Filter(func(int) bool { return true }).Sink(func(int) error { return nil })
	assert.ErrorIs(t, top.Err(), graph.ErrClosed)
}
