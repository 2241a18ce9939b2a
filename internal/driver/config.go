// Package driver glues the agenda compiler, the task graph, the schedule
// compiler and the evaluator into the two run modes: a one-shot offline
// evaluation and a persistent, file-watching online evaluation.
package driver

// Config holds the paths and tunables shared by both run modes. The
// drivers use the paths as given; cmd/tickle resolves them against
// TargetDir before building a Config.
type Config struct {
	AgendaPath string
	DependPath string
	CachePath  string
	TargetDir  string
	Workers    int

	// ReconcileCron is a robfig/cron expression for the online driver's
	// periodic full-reconciliation safety net. Empty disables it.
	ReconcileCron string
}
