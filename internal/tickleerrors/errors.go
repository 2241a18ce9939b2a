// Package tickleerrors defines the typed error kinds raised across the
// agenda compiler, the task graph builder, the depend-closure pass and the
// evaluator, per the error handling design: every kind carries a
// human-readable description and participates in errors.As/errors.Is
// chains via %w wrapping.
package tickleerrors

import "fmt"

// SchemaError reports a malformed agenda or depend document: a missing or
// mistyped field that the reflective codec could not decode.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.Path, e.Reason)
}

// UnknownProc reports a task or flow stage referencing an undefined proc.
type UnknownProc struct {
	Proc string
}

func (e *UnknownProc) Error() string {
	return fmt.Sprintf("unknown proc %q", e.Proc)
}

// DuplicateInFlow reports a proc listed in more than one stage of the same
// flow.
type DuplicateInFlow struct {
	Flow string
	Proc string
}

func (e *DuplicateInFlow) Error() string {
	return fmt.Sprintf("proc %q appears in more than one stage of flow %q", e.Proc, e.Flow)
}

// UnknownFlow reports a task referencing a flow not defined in the agenda.
type UnknownFlow struct {
	Flow string
}

func (e *UnknownFlow) Error() string {
	return fmt.Sprintf("unknown flow %q", e.Flow)
}

// MissingArgument reports a template interpolation that was missing a
// required positional parameter.
type MissingArgument struct {
	Param string
}

func (e *MissingArgument) Error() string {
	return fmt.Sprintf("missing argument %q", e.Param)
}

// MultipleOutputProducers reports an output path declared by more than one
// task.
type MultipleOutputProducers struct {
	Path string
}

func (e *MultipleOutputProducers) Error() string {
	return fmt.Sprintf("multiple tasks declare output %q", e.Path)
}

// StageOrderViolation reports a data edge that would make a task depend on
// a task at the same or a later stage of a flow they share.
type StageOrderViolation struct {
	Flow     string
	Consumer string
	Producer string
}

func (e *StageOrderViolation) Error() string {
	return fmt.Sprintf(
		"%q cannot depend on %q: both are in flow %q but %q is not at a later stage than %q",
		e.Consumer, e.Producer, e.Flow, e.Consumer, e.Producer,
	)
}

// DependCycle reports a cycle discovered in the depend-closure file graph.
type DependCycle struct {
	Nodes []string
}

func (e *DependCycle) Error() string {
	return fmt.Sprintf("cycle detected among dependency files: %v", e.Nodes)
}

// TaskError reports a task's command exiting with a non-zero status.
type TaskError struct {
	Description string
	Stderr      string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %s", e.Description, e.Stderr)
}

// ImpossibleTask reports a task whose input exists neither on disk nor as
// the output of any currently-active task. This is a warning, not a fatal
// error: the task is simply marked inactive.
type ImpossibleTask struct {
	Description string
	Input       string
}

func (e *ImpossibleTask) Error() string {
	return fmt.Sprintf("task %q is impossible: input %q will never be produced", e.Description, e.Input)
}
