package driver

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/digraph/scheduler"
	"github.com/soren-n/tickle/internal/evaluator"
	"github.com/soren-n/tickle/internal/fileutil"
	"github.com/soren-n/tickle/internal/logger"
	"github.com/soren-n/tickle/internal/tickleerrors"
	"github.com/soren-n/tickle/internal/watcher"
)

// OnlineDriver subscribes to the agenda, the depend file and every
// explicit/implicit source file, rebuilding and reprogramming the
// evaluator as they change. It never returns from Start on its own; the
// caller stops it via Stop.
type OnlineDriver struct {
	cfg Config
	log logger.Logger

	cache *cache.Cache
	watch *watcher.Watcher
	eval  *evaluator.Evaluator
	cron  *cron.Cron

	mu         sync.Mutex
	st         *state
	hashes     map[string]string
	subscribed map[string]struct{}
}

// NewOnline constructs an OnlineDriver. The caller owns closing the
// returned driver's cache via Close.
func NewOnline(cfg Config, log logger.Logger) (*OnlineDriver, error) {
	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	w, err := watcher.New(log)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("starting watcher: %w", err)
	}

	d := &OnlineDriver{
		cfg:        cfg,
		log:        log.With("run", newRunID()),
		cache:      c,
		watch:      w,
		hashes:     make(map[string]string),
		subscribed: make(map[string]struct{}),
	}
	d.eval = evaluator.New(cfg.Workers, d.log, d.onTaskError)
	return d, nil
}

// Close releases the cache, watcher and cron scheduler held by the driver.
func (d *OnlineDriver) Close() error {
	if d.cron != nil {
		d.cron.Stop()
	}
	_ = d.watch.Stop()
	return d.cache.Close()
}

func (d *OnlineDriver) onTaskError(e *tickleerrors.TaskError) {
	d.log.Error("task failed; it remains invalid and will retry on the next relevant change",
		"description", e.Description, "stderr", e.Stderr)
}

// Start builds the initial graph and schedule, subscribes to every
// watched file, starts the optional reconciliation cron, then runs the
// evaluator until Stop is called.
func (d *OnlineDriver) Start() error {
	d.log.Info("beginning online evaluation")
	defer d.log.Info("end of online evaluation")

	st, err := fullBuild(d.cfg, d.cache, d.log)
	if err != nil {
		return err
	}
	d.st = st

	program, err := scheduler.Compile(st.graph)
	if err != nil {
		return err
	}
	if err := d.eval.Reprogram(st.graph, program); err != nil {
		return err
	}

	if err := d.subscribeAgendaAndDepend(); err != nil {
		return err
	}
	if err := d.resyncSourceSubscriptions(); err != nil {
		return err
	}
	d.watch.Start()

	if d.cfg.ReconcileCron != "" {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(d.cfg.ReconcileCron, d.onReconcileTick); err != nil {
			return fmt.Errorf("parsing reconcile-cron: %w", err)
		}
		d.cron.Start()
	}

	return d.eval.Start()
}

// Stop halts the evaluator; Start then returns.
func (d *OnlineDriver) Stop() error {
	return d.eval.Stop()
}

func (d *OnlineDriver) subscribeAgendaAndDepend() error {
	if err := d.watch.Subscribe(d.cfg.AgendaPath, func(watcher.Event) { d.onFileEvent(d.cfg.AgendaPath, d.onAgendaChanged) }); err != nil {
		return fmt.Errorf("subscribing agenda: %w", err)
	}
	if err := d.watch.Subscribe(d.cfg.DependPath, func(watcher.Event) { d.onFileEvent(d.cfg.DependPath, d.onDependChanged) }); err != nil {
		return fmt.Errorf("subscribing depend: %w", err)
	}
	return nil
}

// onFileEvent applies hash-suppression: a callback fires for every
// fsnotify event, but a rebuild is only warranted when the file's content
// actually changed, since editors and coalesced storms can produce
// multiple events for a single logical write.
func (d *OnlineDriver) onFileEvent(path string, onChanged func()) {
	digest, err := fileutil.Hash(path)
	if err != nil {
		d.log.Warn("hashing watched file failed", "path", path, "error", err)
		return
	}

	d.mu.Lock()
	prev, seen := d.hashes[path]
	d.hashes[path] = digest
	d.mu.Unlock()

	if seen && prev == digest {
		return
	}
	onChanged()
}

func (d *OnlineDriver) withPause(fn func() error) {
	if err := d.eval.Pause(); err != nil {
		d.log.Warn("pause failed during rebuild", "error", err)
		return
	}
	defer func() { _ = d.eval.Resume() }()

	if err := fn(); err != nil {
		d.log.Error("rebuild failed", "error", err)
	}
}

func (d *OnlineDriver) onAgendaChanged() {
	d.withPause(func() error {
		st, err := fullBuild(d.cfg, d.cache, d.log)
		if err != nil {
			return err
		}
		d.st = st
		if err := d.resyncSourceSubscriptions(); err != nil {
			return err
		}
		return d.reschedule()
	})
}

func (d *OnlineDriver) onDependChanged() {
	d.withPause(func() error {
		if err := rebuildClosures(d.cfg, d.cache, d.log, d.st); err != nil {
			return err
		}
		if err := d.resyncSourceSubscriptions(); err != nil {
			return err
		}
		return d.reschedule()
	})
}

func (d *OnlineDriver) onReconcileTick() {
	d.withPause(func() error {
		if err := rerunInvalidation(d.cache, d.log, d.st); err != nil {
			return err
		}
		return d.reschedule()
	})
}

func (d *OnlineDriver) reschedule() error {
	program, err := scheduler.Compile(d.st.graph)
	if err != nil {
		return err
	}
	return d.eval.Reprogram(d.st.graph, program)
}

// resyncSourceSubscriptions diffs the current explicit/implicit file set
// against what is already subscribed, subscribing newly-referenced files
// and unsubscribing ones no longer referenced.
func (d *OnlineDriver) resyncSourceSubscriptions() error {
	want := watchSet(d.st)

	for path := range want {
		if _, ok := d.subscribed[path]; ok {
			continue
		}
		p := path
		if err := d.watch.Subscribe(p, func(watcher.Event) {
			d.onFileEvent(p, d.onSourceChanged)
		}); err != nil {
			return fmt.Errorf("subscribing source %s: %w", p, err)
		}
		d.subscribed[p] = struct{}{}
	}

	for path := range d.subscribed {
		if _, ok := want[path]; ok {
			continue
		}
		if err := d.watch.Unsubscribe(path); err != nil {
			return fmt.Errorf("unsubscribing source %s: %w", path, err)
		}
		delete(d.subscribed, path)
		delete(d.hashes, path)
	}
	return nil
}

func (d *OnlineDriver) onSourceChanged() {
	d.withPause(func() error {
		if err := rerunInvalidation(d.cache, d.log, d.st); err != nil {
			return err
		}
		return d.reschedule()
	})
}
