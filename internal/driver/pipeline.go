package driver

import (
	"github.com/soren-n/tickle/internal/agenda"
	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/depend"
	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/digraph/scheduler"
	"github.com/soren-n/tickle/internal/logger"
)

// state is the full set of artifacts a rebuild pass may touch. Which
// fields a given event replaces depends on what changed: an agenda edit
// replaces everything; a depend edit replaces closures/implicits and
// reruns invalidation+scheduling against the existing graph; a plain
// source edit only reruns invalidation+scheduling.
type state struct {
	source    *agenda.Source
	compiled  agenda.CompiledAgenda
	dependSrc depend.Source
	graph     *digraph.Graph
	closures  digraph.Closures
	implicits map[string]struct{}
}

// loadAgenda reads and compiles the agenda file.
func loadAgenda(cfg Config) (*agenda.Source, agenda.CompiledAgenda, error) {
	src, err := agenda.Load(cfg.AgendaPath)
	if err != nil {
		return nil, nil, err
	}
	compiled, err := agenda.Compile(src, cfg.TargetDir)
	if err != nil {
		return nil, nil, err
	}
	return src, compiled, nil
}

// loadDepend reads and compiles the (optional) depend file.
func loadDepend(cfg Config) (depend.Source, depend.Compiled, error) {
	src, err := depend.Load(cfg.DependPath)
	if err != nil {
		return nil, nil, err
	}
	return src, depend.Compile(cfg.TargetDir, src), nil
}

// fullBuild reloads the agenda and the depend file, rebuilds the task
// graph from scratch, recomputes the depend closures, and runs
// invalidation. Used on startup and whenever the agenda file changes.
func fullBuild(cfg Config, c *cache.Cache, log logger.Logger) (*state, error) {
	src, compiled, err := loadAgenda(cfg)
	if err != nil {
		return nil, err
	}
	dependSrc, dependCompiled, err := loadDepend(cfg)
	if err != nil {
		return nil, err
	}
	implicits, closures, err := digraph.ComputeClosures(compiled, dependCompiled)
	if err != nil {
		return nil, err
	}
	graph, err := digraph.Build(cfg.TargetDir, compiled, c, log)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Invalidate(graph, closures, c, log); err != nil {
		return nil, err
	}
	return &state{
		source:    src,
		compiled:  compiled,
		dependSrc: dependSrc,
		graph:     graph,
		closures:  closures,
		implicits: implicits,
	}, nil
}

// rebuildClosures reloads the depend file only, keeping the existing task
// graph and compiled agenda, and reruns invalidation against the new
// closures. Used when the depend file changes.
func rebuildClosures(cfg Config, c *cache.Cache, log logger.Logger, st *state) error {
	dependSrc, dependCompiled, err := loadDepend(cfg)
	if err != nil {
		return err
	}
	implicits, closures, err := digraph.ComputeClosures(st.compiled, dependCompiled)
	if err != nil {
		return err
	}
	if err := scheduler.Invalidate(st.graph, closures, c, log); err != nil {
		return err
	}
	st.dependSrc = dependSrc
	st.closures = closures
	st.implicits = implicits
	return nil
}

// rerunInvalidation reruns invalidation against the existing graph and
// closures, without reloading anything; the caller compiles the schedule
// afterwards. Used on a source file event or a periodic reconciliation
// tick.
func rerunInvalidation(c *cache.Cache, log logger.Logger, st *state) error {
	return scheduler.Invalidate(st.graph, st.closures, c, log)
}

// watchSet returns every path that should be subscribed for source-change
// notification: every task input/output plus every implicit closure file.
func watchSet(st *state) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range st.compiled {
		for p := range t.Inputs {
			set[p] = struct{}{}
		}
		for p := range t.Outputs {
			set[p] = struct{}{}
		}
	}
	for p := range st.implicits {
		set[p] = struct{}{}
	}
	return set
}
