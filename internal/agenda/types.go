// Package agenda compiles a declarative source agenda (procs, flows and
// tasks) into a CompiledAgenda of argv-ready, path-resolved tasks, each
// carrying a stable content hash used for task-identity recovery across
// agenda edits.
package agenda

// Source is the on-disk agenda shape, decoded from YAML.
type Source struct {
	Procs map[string][]string `mapstructure:"procs" yaml:"procs"`
	Flows map[string][][]string `mapstructure:"flows" yaml:"flows"`
	Tasks []SourceTask           `mapstructure:"tasks" yaml:"tasks"`
}

// SourceTask is one task definition in the source agenda.
type SourceTask struct {
	Desc    string              `mapstructure:"desc" yaml:"desc"`
	Proc    string              `mapstructure:"proc" yaml:"proc"`
	Flows   []string            `mapstructure:"flows" yaml:"flows"`
	Args    map[string][]string `mapstructure:"args" yaml:"args"`
	Inputs  []string            `mapstructure:"inputs" yaml:"inputs"`
	Outputs []string            `mapstructure:"outputs" yaml:"outputs"`
}

// CompiledTask is one entry of a CompiledAgenda: a task whose proc template
// has been applied, whose paths have been resolved against the target
// directory, and whose identity hash has been computed.
type CompiledTask struct {
	Hash        string
	Description string
	// Flows maps a flow name to this task's stage index within that flow.
	Flows   map[string]int
	Command []string
	Inputs  map[string]struct{}
	Outputs map[string]struct{}
}

// CompiledAgenda is the ordered result of compiling a Source agenda; order
// matches the source tasks list and is preserved so that task nodes built
// from it have a stable, deterministic index.
type CompiledAgenda []CompiledTask
