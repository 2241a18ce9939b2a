// Package evaluator runs a compiled Program against a task graph with a
// fixed worker pool, supporting pause/resume/reprogram so a driver can
// safely swap in a freshly scheduled program while workers are quiescent.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/digraph/scheduler"
	"github.com/soren-n/tickle/internal/logger"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// DequeueTimeout bounds how long a worker blocks waiting for a sequence
// before re-checking whether it should stop.
var DequeueTimeout = 200 * time.Millisecond

// idleSleep is how long the control loop sleeps between checks when the
// program is empty.
var idleSleep = 50 * time.Millisecond

var (
	errAlreadyRunning = errors.New("evaluator: already running")
	errNotRunning     = errors.New("evaluator: not running")
	errAlreadyPaused  = errors.New("evaluator: already paused")
	errNotPaused      = errors.New("evaluator: not paused")
)

// Evaluator executes a scheduler.Program's batches of sequences with a
// fixed pool of workers.
type Evaluator struct {
	workerCount int
	log         logger.Logger
	onTaskError func(*tickleerrors.TaskError)

	stateMu sync.Mutex
	running bool
	paused  bool

	graphMu sync.RWMutex
	graph   *digraph.Graph
	program scheduler.Program

	pause *pauseLock

	queue      chan scheduler.Sequence
	inFlight   sync.WaitGroup
	exceptions chan *tickleerrors.TaskError

	stop chan struct{}
}

// New constructs an Evaluator with workerCount workers. onTaskError is
// invoked from the control loop whenever a worker reports a TaskError; if
// nil, a TaskError panics (matching the default behavior of surfacing
// unhandled task failures to the caller).
func New(workerCount int, log logger.Logger, onTaskError func(*tickleerrors.TaskError)) *Evaluator {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Evaluator{
		workerCount: workerCount,
		log:         log,
		onTaskError: onTaskError,
		pause:       newPauseLock(),
		queue:       make(chan scheduler.Sequence, 64),
		exceptions:  make(chan *tickleerrors.TaskError, 64),
		stop:        make(chan struct{}),
	}
}

// Start launches the worker pool and runs the control loop until Stop is
// called. It blocks until every worker has exited.
func (e *Evaluator) Start() error {
	e.stateMu.Lock()
	if e.running {
		e.stateMu.Unlock()
		return errAlreadyRunning
	}
	e.running = true
	e.stateMu.Unlock()

	group, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < e.workerCount; i++ {
		index := i
		group.Go(func() error {
			e.workerLoop(ctx, index)
			return nil
		})
	}

	for e.isRunning() {
		select {
		case taskErr := <-e.exceptions:
			if e.hasProgram() {
				if err := e.Pause(); err == nil {
					e.Deprogram()
					_ = e.Resume()
				}
			}
			if e.onTaskError != nil {
				e.onTaskError(taskErr)
			} else {
				panic(taskErr)
			}
			continue
		default:
		}

		batch, ok := e.popBatch()
		if !ok {
			time.Sleep(idleSleep)
			continue
		}
		for _, seq := range batch {
			e.inFlight.Add(1)
			e.queue <- seq
		}
		e.inFlight.Wait()
	}

	close(e.stop)
	_ = group.Wait()

	e.stateMu.Lock()
	e.running = false
	e.stop = make(chan struct{})
	e.stateMu.Unlock()
	return nil
}

func (e *Evaluator) isRunning() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.running
}

func (e *Evaluator) hasProgram() bool {
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	return len(e.program) > 0
}

func (e *Evaluator) popBatch() (scheduler.Batch, bool) {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if len(e.program) == 0 {
		return nil, false
	}
	batch := e.program[0]
	e.program = e.program[1:]
	return batch, true
}

// Pause blocks new workers from entering their dequeue region until
// Resume is called. Illegal if already paused.
func (e *Evaluator) Pause() error {
	e.stateMu.Lock()
	if e.paused {
		e.stateMu.Unlock()
		return errAlreadyPaused
	}
	e.paused = true
	e.stateMu.Unlock()

	e.pause.acquireWrite()
	return nil
}

// Resume releases the pause acquired by Pause. Illegal unless paused.
func (e *Evaluator) Resume() error {
	e.stateMu.Lock()
	if !e.paused {
		e.stateMu.Unlock()
		return errNotPaused
	}
	e.paused = false
	e.stateMu.Unlock()

	e.pause.releaseWrite()
	return nil
}

// Reprogram replaces the current program and graph, discarding any queued
// but not-yet-started sequences. Illegal unless the evaluator is paused or
// not yet running.
func (e *Evaluator) Reprogram(g *digraph.Graph, program scheduler.Program) error {
	if err := e.checkPausedOrStopped(); err != nil {
		return err
	}
	e.drainQueue()
	e.graphMu.Lock()
	e.graph = g
	e.program = program
	e.graphMu.Unlock()
	return nil
}

// Deprogram is equivalent to Reprogram(g, nil): it discards the current
// program without installing a new one.
func (e *Evaluator) Deprogram() error {
	if err := e.checkPausedOrStopped(); err != nil {
		return err
	}
	e.drainQueue()
	e.graphMu.Lock()
	e.program = nil
	e.graphMu.Unlock()
	return nil
}

func (e *Evaluator) checkPausedOrStopped() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.running && !e.paused {
		return fmt.Errorf("evaluator: must be paused before reprogramming")
	}
	return nil
}

func (e *Evaluator) drainQueue() {
	for {
		select {
		case <-e.queue:
			e.inFlight.Done()
		default:
			return
		}
	}
}

// Stop signals the control loop and every worker to exit. Start returns
// once they have.
func (e *Evaluator) Stop() error {
	e.stateMu.Lock()
	if !e.running {
		e.stateMu.Unlock()
		return errNotRunning
	}
	e.running = false
	e.stateMu.Unlock()
	return nil
}

func (e *Evaluator) workerLoop(ctx context.Context, index int) {
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		e.pause.acquireRead()
		select {
		case seq := <-e.queue:
			e.runSequence(index, seq)
			e.inFlight.Done()
		case <-time.After(DequeueTimeout):
		case <-e.stop:
			e.pause.releaseRead()
			return
		}
		e.pause.releaseRead()
	}
}

func (e *Evaluator) runSequence(workerIndex int, seq scheduler.Sequence) {
	e.graphMu.RLock()
	g := e.graph
	e.graphMu.RUnlock()
	if g == nil {
		return
	}

	for _, idx := range seq {
		node := g.Nodes[idx]
		if node.Work == nil {
			continue
		}
		out, err := node.Work()
		if err != nil {
			var taskErr *tickleerrors.TaskError
			if errors.As(err, &taskErr) {
				e.exceptions <- taskErr
				return
			}
			panic(err)
		}
		if out != "" {
			e.log.Debug(fmt.Sprintf("worker %d", workerIndex), "output", out)
		}
	}
}
