package digraph

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/soren-n/tickle/internal/agenda"
	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/fileutil"
	"github.com/soren-n/tickle/internal/logger"
	"github.com/soren-n/tickle/internal/tickleerrors"
)

// HashWaitInterval is the polling interval Build's work closures use while
// waiting for a sibling task to finish flushing an output file to disk.
var HashWaitInterval = 50 * time.Millisecond

// Build constructs a Graph from a CompiledAgenda: one node per compiled
// task, in order, plus dependency edges derived from output/input path
// matches. The work closure of each node creates missing output
// directories, runs the task's command, and re-hashes its tracked inputs
// on success, exactly as described for the task graph builder.
func Build(targetDir string, compiled agenda.CompiledAgenda, c *cache.Cache, log logger.Logger) (*Graph, error) {
	g := &Graph{Nodes: make([]*Node, 0, len(compiled))}

	outputOwner := make(map[string]int, len(compiled))
	for i, task := range compiled {
		name := fmt.Sprintf("task%d", i)
		node := &Node{
			Name:        name,
			Hash:        task.Hash,
			Description: task.Description,
			Flows:       task.Flows,
			Inputs:      task.Inputs,
			Outputs:     task.Outputs,
			Valid:       true,
			Active:      true,
		}
		node.Work = makeWork(targetDir, name, task, c, log)
		g.Nodes = append(g.Nodes, node)

		for out := range task.Outputs {
			if _, dup := outputOwner[out]; dup {
				return nil, &tickleerrors.MultipleOutputProducers{Path: out}
			}
			outputOwner[out] = i
		}
	}

	for consumerIdx, task := range compiled {
		for in := range task.Inputs {
			producerIdx, ok := outputOwner[in]
			if !ok || producerIdx == consumerIdx {
				continue
			}
			if err := checkStageOrder(g.Nodes[consumerIdx], g.Nodes[producerIdx]); err != nil {
				return nil, err
			}
			g.AddEdge(consumerIdx, producerIdx)
		}
	}

	return g, nil
}

// checkStageOrder enforces that a consumer cannot depend on a producer at
// the same or a later stage of a flow they both belong to.
func checkStageOrder(consumer, producer *Node) error {
	for flow, consumerStage := range consumer.Flows {
		producerStage, shared := producer.Flows[flow]
		if !shared {
			continue
		}
		if consumerStage <= producerStage {
			return &tickleerrors.StageOrderViolation{
				Flow:     flow,
				Consumer: consumer.Description,
				Producer: producer.Description,
			}
		}
	}
	return nil
}

func makeWork(targetDir, name string, task agenda.CompiledTask, c *cache.Cache, log logger.Logger) WorkFunc {
	return func() (string, error) {
		log.Debug(task.Description, "command", strings.Join(task.Command, " "))
		log.Info(task.Description)

		outputs := sortedKeys(task.Outputs)
		for _, out := range outputs {
			if err := makeParentDirs(filepath.Dir(out), c); err != nil {
				return "", fmt.Errorf("preparing output directory for %s: %w", out, err)
			}
			if err := c.AddFile(out); err != nil {
				return "", fmt.Errorf("recording output %s: %w", out, err)
			}
		}
		if err := c.Flush(); err != nil {
			return "", err
		}

		var stdout, stderr strings.Builder
		if len(task.Command) > 0 {
			cmd := exec.Command(task.Command[0], task.Command[1:]...)
			cmd.Dir = targetDir
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			if err := cmd.Run(); err != nil {
				_ = c.Flush()
				return "", &tickleerrors.TaskError{Description: task.Description, Stderr: stderr.String()}
			}
		}

		tracked, err := c.Hashes(name)
		if err != nil {
			return "", err
		}
		for input := range tracked {
			digest, err := fileutil.WaitForHash(context.Background(), input, HashWaitInterval)
			if err != nil {
				return "", err
			}
			tracked[input] = digest
		}
		if err := c.SetHashes(name, tracked); err != nil {
			return "", err
		}
		if err := c.Flush(); err != nil {
			return "", err
		}

		if stdout.Len() == 0 {
			return "", nil
		}
		return stdout.String(), nil
	}
}

func makeParentDirs(dir string, c *cache.Cache) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if fileutil.Exists(d) {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil && !os.IsExist(err) {
			return err
		}
		if err := c.AddFolder(missing[i]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
