// Package dag computes deterministic execution orderings for a pipeline's
// declared child dependencies.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Order returns indexes into ids in a stable topological order: a child never
// precedes a declared dependency, and ties are broken by declaration order.
// deps maps a child id to the ids it depends on. An unknown reference or a
// dependency cycle is an error.
func Order(ids []string, deps map[string][]string) ([]int, error) {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("duplicate node id %q", id)
		}
		index[id] = i
	}

	indegree := make([]int, len(ids))
	dependents := make([][]int, len(ids))
	for id, ds := range deps {
		to, ok := index[id]
		if !ok {
			continue
		}
		for _, dep := range ds {
			from, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("node %q depends on unknown node %q", id, dep)
			}
			if from == to {
				return nil, fmt.Errorf("self-referential dependency not allowed: %q", id)
			}
			indegree[to]++
			dependents[from] = append(dependents[from], to)
		}
	}

	// Kahn's algorithm, always picking the first ready node in declaration
	// order so the result is reproducible run to run.
	order := make([]int, 0, len(ids))
	done := make([]bool, len(ids))
	for len(order) < len(ids) {
		picked := -1
		for i := range ids {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, fmt.Errorf("dependency cycle involving %s", strings.Join(remaining(ids, done), ", "))
		}
		done[picked] = true
		order = append(order, picked)
		for _, d := range dependents[picked] {
			indegree[d]--
		}
	}
	return order, nil
}

// Stages groups indexes into dependency levels: every node in a stage depends
// only on nodes in earlier stages, so nodes within one stage are independent
// of each other and safe to execute concurrently. Within a stage, indexes are
// in declaration order.
func Stages(ids []string, deps map[string][]string) ([][]int, error) {
	order, err := Order(ids, deps)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	level := make([]int, len(ids))
	for _, i := range order {
		for _, dep := range deps[ids[i]] {
			if l := level[index[dep]] + 1; l > level[i] {
				level[i] = l
			}
		}
	}

	maxLevel := 0
	for _, l := range level {
		if l > maxLevel {
			maxLevel = l
		}
	}
	stages := make([][]int, maxLevel+1)
	for i := range ids {
		stages[level[i]] = append(stages[level[i]], i)
	}
	for _, stage := range stages {
		sort.Ints(stage)
	}
	return stages, nil
}

func remaining(ids []string, done []bool) []string {
	var out []string
	for i, id := range ids {
		if !done[i] {
			out = append(out, id)
		}
	}
	return out
}
