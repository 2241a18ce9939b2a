package agenda

import (
	"github.com/soren-n/tickle/internal/fileutil"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// flowStages maps, for one flow, a proc name to its stage index.
type flowStages map[string]int

// Compile produces a CompiledAgenda from a source agenda, resolving every
// task's input/output paths against targetDir.
func Compile(src *Source, targetDir string) (CompiledAgenda, error) {
	templates := make(map[string]*Template, len(src.Procs))
	for name, parts := range src.Procs {
		templates[name] = CompileTemplate(parts)
	}

	flowProcStage := make(map[string]flowStages, len(src.Flows))
	for flow, stages := range src.Flows {
		stageMap := make(flowStages)
		for stageIdx, procs := range stages {
			for _, proc := range procs {
				if _, ok := templates[proc]; !ok {
					return nil, &tickleerrors.UnknownProc{Proc: proc}
				}
				if _, dup := stageMap[proc]; dup {
					return nil, &tickleerrors.DuplicateInFlow{Flow: flow, Proc: proc}
				}
				stageMap[proc] = stageIdx
			}
		}
		flowProcStage[flow] = stageMap
	}

	out := make(CompiledAgenda, 0, len(src.Tasks))
	for _, task := range src.Tasks {
		tmpl, ok := templates[task.Proc]
		if !ok {
			return nil, &tickleerrors.UnknownProc{Proc: task.Proc}
		}

		stages := make(map[string]int, len(task.Flows))
		for _, flow := range task.Flows {
			stageMap, ok := flowProcStage[flow]
			if !ok {
				return nil, &tickleerrors.UnknownFlow{Flow: flow}
			}
			stage, ok := stageMap[task.Proc]
			if !ok {
				return nil, &tickleerrors.UnknownProc{Proc: task.Proc}
			}
			stages[flow] = stage
		}

		command, err := tmpl.Apply(task.Args)
		if err != nil {
			return nil, err
		}

		inputs := resolveSet(targetDir, task.Inputs)
		outputs := resolveSet(targetDir, task.Outputs)

		hash := taskHash(task.Proc, task.Args, task.Flows, task.Inputs, task.Outputs)

		out = append(out, CompiledTask{
			Hash:        hash,
			Description: task.Desc,
			Flows:       stages,
			Command:     command,
			Inputs:      inputs,
			Outputs:     outputs,
		})
	}

	if err := checkUniqueOutputs(out); err != nil {
		return nil, err
	}

	return out, nil
}

func resolveSet(targetDir string, paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[fileutil.Resolve(targetDir, p)] = struct{}{}
	}
	return set
}

func checkUniqueOutputs(agenda CompiledAgenda) error {
	seen := make(map[string]struct{})
	for _, task := range agenda {
		for out := range task.Outputs {
			if _, dup := seen[out]; dup {
				return &tickleerrors.MultipleOutputProducers{Path: out}
			}
			seen[out] = struct{}{}
		}
	}
	return nil
}
