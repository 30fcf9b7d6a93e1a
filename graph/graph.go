// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph implements the Task Graph (spec.md §4.5, C5): builds a DAG
// from task/group dependencies, detects cycles, and computes the ready
// frontier and execution levels.
package graph

import (
	"fmt"
	"sort"

	"github.com/kadirpekel/hector/workflow"
)

// NodeKind distinguishes a task node from a group node in the combined
// dependency graph.
type NodeKind int

const (
	NodeTask NodeKind = iota
	NodeGroup
)

// Node is one addressable unit in the graph.
type Node struct {
	ID   string
	Kind NodeKind
}

// Graph is the built, cycle-free dependency graph over a Model's tasks and
// groups.
type Graph struct {
	model *workflow.Model
	// edges[n] = set of node ids that n directly depends on.
	edges map[string][]string
	kind  map[string]NodeKind
	order []string // task ids sorted, then group ids sorted; used for tie-breaking
}

// CycleError reports a dependency cycle, naming the full cycle path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// Build constructs a Graph from m, combining task depends_on, group
// depends_on, and group parent->child containment: a group node completes
// only once every child task/group it contains is terminal. Cycle
// detection walks the combined edge set using a temporary-mark DFS per
// spec.md §4.5.
func Build(m *workflow.Model) (*Graph, error) {
	g := &Graph{
		model: m,
		edges: make(map[string][]string),
		kind:  make(map[string]NodeKind),
	}

	for _, id := range m.TaskIDs() {
		t, _ := m.Task(id)
		g.kind[id] = NodeTask
		g.edges[id] = append([]string{}, t.DependsOn...)
		g.order = append(g.order, id)
	}
	for _, id := range m.GroupIDs() {
		gr, _ := m.Group(id)
		g.kind[id] = NodeGroup
		// A group completes only after all of its children do (parent->child
		// containment edge), in addition to any explicit depends_on.
		edges := append([]string{}, gr.DependsOn...)
		edges = append(edges, gr.Tasks...)
		edges = append(edges, gr.Groups...)
		g.edges[id] = edges
		g.order = append(g.order, id)
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) detectCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.edges))
	var path []string

	ids := append([]string{}, g.order...)
	sort.Strings(ids)

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			cyclePath := append(append([]string{}, path...), id)
			return &CycleError{Path: cyclePath}
		case black:
			return nil
		}
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Dependencies returns the direct dependency ids of node id.
func (g *Graph) Dependencies(id string) []string { return g.edges[id] }

// NodeIDs returns every node id (tasks sorted by id, then groups sorted by
// id), for components that
// need the full node set (e.g. the Context Engine's cleanup strategies).
func (g *Graph) NodeIDs() []string { return append([]string{}, g.order...) }

// Kind reports whether id names a task or a group node.
func (g *Graph) Kind(id string) (NodeKind, bool) {
	k, ok := g.kind[id]
	return k, ok
}

// NodeStatusReader is the minimal status surface the graph needs to
// compute readiness and levels, satisfied by state.Store.
type NodeStatusReader interface {
	TaskTerminal(id string) bool
	GroupTerminal(id string) bool
	GroupRunning(id string) bool
	TaskGroup(id string) (string, bool)
}

// ReadySet returns all node ids whose dependencies are terminal and — for
// task nodes — whose owning group (if any) is running. Results list tasks
// sorted by id, then groups sorted by id, for deterministic tie-breaking
// (spec.md §4.5).
func (g *Graph) ReadySet(status NodeStatusReader) []string {
	var ready []string
	for _, id := range g.order {
		if g.isReady(id, status) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *Graph) isReady(id string, status NodeStatusReader) bool {
	for _, dep := range g.edges[id] {
		switch g.kind[dep] {
		case NodeTask:
			if !status.TaskTerminal(dep) {
				return false
			}
		case NodeGroup:
			if !status.GroupTerminal(dep) {
				return false
			}
		}
	}
	if g.kind[id] == NodeTask {
		if gid, ok := status.TaskGroup(id); ok && gid != "" {
			if !status.GroupRunning(gid) {
				return false
			}
		}
	}
	return true
}

// Levels computes the execution levels of the full graph: level i contains
// every node whose dependencies lie entirely in levels < i. Used for
// scheduling tests (spec.md scenarios S1/S2) and diagnostics; the live
// scheduler uses ReadySet incrementally instead of precomputed levels,
// since group activation can change readiness mid-run.
func (g *Graph) Levels() [][]string {
	remaining := make(map[string][]string, len(g.edges))
	for id, deps := range g.edges {
		remaining[id] = append([]string{}, deps...)
	}
	done := make(map[string]bool, len(g.edges))

	var levels [][]string
	for len(done) < len(g.order) {
		var level []string
		for _, id := range g.order {
			if done[id] {
				continue
			}
			allDone := true
			for _, dep := range remaining[id] {
				if !done[dep] {
					allDone = false
					break
				}
			}
			if allDone {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			// Should be unreachable post-Build (cycle-free), defensive only.
			break
		}
		for _, id := range level {
			done[id] = true
		}
		levels = append(levels, level)
	}
	return levels
}

// ValidationErrorFromCycle adapts a CycleError into a workflow-level
// ValidationError, matching the *ValidationError surface the rest of the
// engine reports pre-execution errors with.
func ValidationErrorFromCycle(err *CycleError) *workflow.ValidationError {
	return &workflow.ValidationError{
		Kind:        "cycle",
		OffendingID: err.Path[len(err.Path)-1],
		Message:     err.Error(),
	}
}
