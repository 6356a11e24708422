// Package job runs a graph: it initializes and starts the vertices, waits
// for the graph to run out of work and closes it.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/graph"
	"github.com/zoobzio/edgez/logging"
)

// ErrInvalidTransition is returned for lifecycle calls made in the wrong state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// State is the lifecycle state of a job.
type State int

const (
	Constructed State = iota
	Initialized
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "CONSTRUCTED"
	case Initialized:
		return "INITIALIZED"
	case Running:
		return "RUNNING"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var jobCount atomic.Int64

// Job executes one graph.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Job struct {
	name   string
	id     uuid.UUID
	graph  *graph.Graph
	exec   *executor.Executor
	logger *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	closeErr error
}

// Option configures a Job.
type Option func(*Job)

// WithName overrides the generated "JOB_<n>" name.
func WithName(name string) Option {
	return func(j *Job) {
		j.name = name
	}
}

// WithExecutor sets the executor the job's vertices run on.
func WithExecutor(e *executor.Executor) Option {
	return func(j *Job) {
		j.exec = e
	}
}

// WithLogger sets the job logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

// New creates a job for g.
func New(g *graph.Graph, opts ...Option) *Job {
	j := &Job{
		name:  fmt.Sprintf("JOB_%d", jobCount.Inc()-1),
		id:    uuid.New(),
		graph: g,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logging.NewLogger()
	}
	j.logger = j.logger.With("job", j.name, "run", j.id.String())
	if j.exec == nil {
		j.exec = executor.New(executor.WithLogger(j.logger))
	}
	return j
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// ID returns the unique run identifier.
func (j *Job) ID() uuid.UUID { return j.id }

// Graph returns the job's graph.
func (j *Job) Graph() *graph.Graph { return j.graph }

// Executor returns the job's executor.
func (j *Job) Executor() *executor.Executor { return j.exec }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Initialize initializes every vertex of the graph.
func (j *Job) Initialize() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Constructed {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, j.state)
	}
	err := j.graph.Initialize(graph.Runtime{
		JobName:  j.name,
		Executor: j.exec,
		Logger:   j.logger,
	})
	if err != nil {
		return err
	}
	j.transitionLocked(Initialized)
	return nil
}

// Start starts every vertex of the graph.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Initialized {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, j.state)
	}
	if err := j.graph.Start(ctx); err != nil {
		return err
	}
	j.transitionLocked(Running)
	return nil
}

// Run initializes and starts the job.
func (j *Job) Run(ctx context.Context) error {
	if err := j.Initialize(); err != nil {
		return err
	}
	return j.Start(ctx)
}

// Complete waits until the graph has no pending work, a task fails or ctx
// is done, then closes the job. The first task failure is returned.
func (j *Job) Complete(ctx context.Context) error {
	if s := j.State(); s != Running {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, s)
	}
	waitErr := j.exec.Wait(ctx)
	closeCtx := ctx
	if ctx.Err() != nil {
		closeCtx = context.Background()
	}
	return multierr.Append(waitErr, j.Close(closeCtx))
}

// Err returns the first asynchronous failure of the job, if any.
func (j *Job) Err() error {
	return j.exec.Err()
}

// Close closes the graph and shuts the executor down. It may be called in
// any state and only the first call has an effect.
func (j *Job) Close(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == Closed {
		return j.closeErr
	}
	j.closeErr = multierr.Append(j.graph.Close(), j.exec.Shutdown(ctx))
	j.transitionLocked(Closed)
	return j.closeErr
}

func (j *Job) transitionLocked(to State) {
	j.logger.Infow("Job state changed", "from", j.state.String(), "to", to.String())
	j.state = to
}
