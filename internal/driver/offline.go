package driver

import (
	"fmt"

	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/digraph/scheduler"
	"github.com/soren-n/tickle/internal/evaluator"
	"github.com/soren-n/tickle/internal/logger"
	"github.com/soren-n/tickle/internal/tickleerrors"
	"github.com/soren-n/tickle/internal/watcher"
)

// OfflineDriver runs one complete evaluation pass and returns: it appends
// a sentinel terminator task (force = true, depending on every user task)
// whose work stops the evaluator, so Start returns once all feasible work
// has finished. It still subscribes to the depend file so a concurrent
// edit is picked up for the closure+schedule pass, consistent with the
// online driver's handling of the same event.
type OfflineDriver struct {
	cfg Config
	log logger.Logger

	cache *cache.Cache
	watch *watcher.Watcher
	eval  *evaluator.Evaluator

	st      *state
	taskErr *tickleerrors.TaskError
}

// NewOffline constructs an OfflineDriver. The caller owns closing the
// returned driver's cache via Close once Start returns.
func NewOffline(cfg Config, log logger.Logger) (*OfflineDriver, error) {
	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	w, err := watcher.New(log)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("starting watcher: %w", err)
	}

	d := &OfflineDriver{cfg: cfg, log: log.With("run", newRunID()), cache: c, watch: w}
	d.eval = evaluator.New(cfg.Workers, d.log, d.onTaskError)
	return d, nil
}

// Close releases the cache and watcher held by the driver.
func (d *OfflineDriver) Close() error {
	_ = d.watch.Stop()
	return d.cache.Close()
}

func (d *OfflineDriver) onTaskError(e *tickleerrors.TaskError) {
	d.log.Error("task failed, terminating offline run", "description", e.Description, "stderr", e.Stderr)
	d.taskErr = e
	_ = d.eval.Stop()
}

// Start builds the graph, appends the terminator task, programs the
// evaluator and blocks until the terminator fires or a task fails.
func (d *OfflineDriver) Start() error {
	d.log.Info("beginning offline evaluation")
	defer d.log.Info("end of offline evaluation")

	st, err := fullBuild(d.cfg, d.cache, d.log)
	if err != nil {
		return err
	}
	d.st = st

	appendTerminator(st.graph, d.eval)

	program, err := scheduler.Compile(st.graph)
	if err != nil {
		return err
	}
	if err := d.eval.Reprogram(st.graph, program); err != nil {
		return err
	}

	if err := d.watch.Subscribe(d.cfg.DependPath, func(watcher.Event) {
		if err := d.eval.Pause(); err != nil {
			return
		}
		defer func() { _ = d.eval.Resume() }()

		if err := rebuildClosures(d.cfg, d.cache, d.log, d.st); err != nil {
			d.log.Error("depend reload failed", "error", err)
			return
		}
		program, err := scheduler.Compile(d.st.graph)
		if err != nil {
			d.log.Error("schedule compile failed", "error", err)
			return
		}
		_ = d.eval.Reprogram(d.st.graph, program)
	}); err != nil {
		return fmt.Errorf("subscribing depend file: %w", err)
	}
	d.watch.Start()

	if err := d.eval.Start(); err != nil {
		return err
	}
	if d.taskErr != nil {
		return d.taskErr
	}
	return nil
}

// appendTerminator adds a force-active, force-invalid sentinel node
// depending on every existing node, whose work stops the evaluator. It is
// always included in the alive set (Force implies IsValid()==false,
// IsActive()==true) and, depending on every other task, always lands in
// the program's final batch.
func appendTerminator(g *digraph.Graph, eval *evaluator.Evaluator) {
	count := len(g.Nodes)
	term := &digraph.Node{
		Name:        "terminator",
		Description: "stop the offline evaluator once all feasible work has completed",
		Force:       true,
		Work: func() (string, error) {
			_ = eval.Stop()
			return "", nil
		},
	}
	g.Nodes = append(g.Nodes, term)
	termIdx := len(g.Nodes) - 1
	for i := 0; i < count; i++ {
		g.AddEdge(termIdx, i)
	}
}
