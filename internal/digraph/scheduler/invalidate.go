// Package scheduler implements the invalidation pass and the schedule
// compiler that together turn a built task graph into an executable
// Program ahead of each reprogramming.
package scheduler

import (
	"sort"

	"github.com/soren-n/tickle/internal/cache"
	"github.com/soren-n/tickle/internal/digraph"
	"github.com/soren-n/tickle/internal/fileutil"
	"github.com/soren-n/tickle/internal/logger"
)

// Invalidate runs the full invalidation pass over g ahead of scheduling:
// task-identity recovery from the previous run's recover map, the activity
// pass, the input-closure pass, the output pass, and propagation of
// invalidity/inactivity. It mutates every node's Valid/Active fields and
// persists the updated recover/hashes cache entries.
func Invalidate(g *digraph.Graph, closures digraph.Closures, c *cache.Cache, log logger.Logger) error {
	for _, n := range g.Nodes {
		n.Valid = true
		n.Active = true
		if _, err := ensureHashesEntry(c, n.Name); err != nil {
			return err
		}
	}

	if err := recoverHashes(g, c); err != nil {
		return err
	}

	disableImpossibleTasks(g, log)

	if err := checkInputClosures(g, closures, c); err != nil {
		return err
	}

	if err := c.Flush(); err != nil {
		return err
	}

	checkOutputs(g)

	propagate(g)

	return nil
}

func ensureHashesEntry(c *cache.Cache, name string) (map[string]string, error) {
	hashes, err := c.Hashes(name)
	if err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = map[string]string{}
		if err := c.SetHashes(name, hashes); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// recoverHashes rebuilds the cache's recover map keyed by each current
// node's content hash, copying forward the previous run's hash closure for
// any node whose hash survived the edit (see Data Model / task recovery).
func recoverHashes(g *digraph.Graph, c *cache.Cache) error {
	prevRecover, err := c.Recover()
	if err != nil {
		return err
	}

	nextRecover := make(map[string]string, len(g.Nodes))
	nextHashes := make(map[string]map[string]string, len(g.Nodes))

	for _, n := range g.Nodes {
		nextRecover[n.Hash] = n.Name
		if oldName, ok := prevRecover[n.Hash]; ok {
			hashes, err := c.Hashes(oldName)
			if err != nil {
				return err
			}
			nextHashes[n.Name] = hashes
		} else {
			hashes, err := c.Hashes(n.Name)
			if err != nil {
				return err
			}
			if hashes == nil {
				hashes = map[string]string{}
			}
			nextHashes[n.Name] = hashes
		}
	}

	if err := c.SetRecover(nextRecover); err != nil {
		return err
	}
	for name, hashes := range nextHashes {
		if err := c.SetHashes(name, hashes); err != nil {
			return err
		}
	}
	return nil
}

// disableImpossibleTasks marks a node inactive, in topological order, when
// one of its inputs exists neither on disk nor as an output any
// currently-active node produces.
func disableImpossibleTasks(g *digraph.Graph, log logger.Logger) {
	order := topologicalByDeps(g)
	producedOutputs := make(map[string]struct{})

	for _, idx := range order {
		n := g.Nodes[idx]
		possible := true
		for in := range n.Inputs {
			if fileutil.Exists(in) {
				continue
			}
			if _, produced := producedOutputs[in]; produced {
				continue
			}
			possible = false
			log.Warn("skipping task", "description", n.Description, "missing_input", in)
			break
		}
		if !possible {
			n.Active = false
			continue
		}
		for out := range n.Outputs {
			producedOutputs[out] = struct{}{}
		}
	}
}

// checkInputClosures compares each node's current input closure and file
// digests against the cache; mismatches mark the node invalid and update
// the stored digests.
func checkInputClosures(g *digraph.Graph, closures digraph.Closures, c *cache.Cache) error {
	for _, n := range g.Nodes {
		prevHashes, err := c.Hashes(n.Name)
		if err != nil {
			return err
		}
		if prevHashes == nil {
			prevHashes = map[string]string{}
		}

		currClosure := make(map[string]struct{}, len(n.Inputs))
		for in := range n.Inputs {
			currClosure[in] = struct{}{}
			for f := range closures[in] {
				currClosure[f] = struct{}{}
			}
		}

		prevClosure := make(map[string]struct{}, len(prevHashes))
		for f := range prevHashes {
			prevClosure[f] = struct{}{}
		}

		if !sameSet(currClosure, prevClosure) {
			n.Valid = false
			for f := range prevHashes {
				if _, stillPresent := currClosure[f]; !stillPresent {
					delete(prevHashes, f)
				}
			}
			for f := range currClosure {
				if _, already := prevHashes[f]; !already {
					digest, err := fileutil.Hash(f)
					if err != nil {
						return err
					}
					prevHashes[f] = digest
				}
			}
			if err := c.SetHashes(n.Name, prevHashes); err != nil {
				return err
			}
			continue
		}

		changed := false
		currHashes := make(map[string]string, len(currClosure))
		for f := range currClosure {
			digest, err := fileutil.Hash(f)
			if err != nil {
				return err
			}
			currHashes[f] = digest
			if digest != prevHashes[f] {
				changed = true
			}
		}
		if changed {
			n.Valid = false
			if err := c.SetHashes(n.Name, currHashes); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkOutputs marks a node invalid if any of its declared outputs is
// missing on disk.
func checkOutputs(g *digraph.Graph) {
	for _, n := range g.Nodes {
		for out := range n.Outputs {
			if !fileutil.Exists(out) {
				n.Valid = false
				break
			}
		}
	}
}

// propagate walks the graph in topological order: a node with an invalid
// dependency becomes invalid, a node with an inactive dependency becomes
// inactive.
func propagate(g *digraph.Graph) {
	for _, idx := range topologicalByDeps(g) {
		n := g.Nodes[idx]
		for _, depIdx := range n.Deps {
			d := g.Nodes[depIdx]
			if !d.IsValid() {
				n.Valid = false
			}
			if !d.IsActive() {
				n.Active = false
			}
		}
	}
}

// topologicalByDeps returns node indices ordered so that every node
// appears after all of its Deps.
func topologicalByDeps(g *digraph.Graph) []int {
	var leaves []int
	for i, n := range g.Nodes {
		if len(n.Deps) == 0 {
			leaves = append(leaves, i)
		}
	}
	sort.Ints(leaves)

	done := make(map[int]bool, len(g.Nodes))
	var result []int
	worklist := leaves
	for len(worklist) > 0 {
		idx := worklist[0]
		worklist = worklist[1:]
		if done[idx] {
			continue
		}
		ready := true
		for _, depIdx := range g.Nodes[idx].Deps {
			if !done[depIdx] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		done[idx] = true
		result = append(result, idx)
		refs := append([]int(nil), g.Nodes[idx].Refs...)
		sort.Ints(refs)
		worklist = append(worklist, refs...)
	}
	return result
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
