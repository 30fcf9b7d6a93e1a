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

package context

// DependencyReader is the minimal read surface the relevance scorer needs
// from the Task Graph (C5): the direct dependency ids of a node. Declared
// structurally here (rather than imported from graph) so this package has
// no import-cycle risk with graph, which does not depend on context.
type DependencyReader interface {
	Dependencies(id string) []string
}

// AgentLookup resolves the agent id assigned to a task, for the "share an
// agent id" relevance rule.
type AgentLookup interface {
	AgentID(taskID string) (string, bool)
}

// Relevance scores how useful P's output is as context for T, per spec.md
// §4.6:
//   - T directly depends on P: 1.0
//   - T transitively depends on P at shortest depth d: 0.8 / d
//   - P and T share an agent id: 0.5
//   - otherwise: 0.0
func Relevance(deps DependencyReader, agents AgentLookup, t, p string) float64 {
	if t == p {
		return 0.0
	}

	if d, ok := shortestDepth(deps, t, p); ok {
		if d == 1 {
			return 1.0
		}
		return 0.8 / float64(d)
	}

	if agents != nil {
		ta, tok := agents.AgentID(t)
		pa, pok := agents.AgentID(p)
		if tok && pok && ta != "" && ta == pa {
			return 0.5
		}
	}

	return 0.0
}

// shortestDepth runs a BFS over T's dependency edges (T -> its
// dependencies -> their dependencies, ...) to find the shortest number of
// hops to reach P. Depth 1 means P is a direct dependency of T.
func shortestDepth(deps DependencyReader, t, p string) (int, bool) {
	visited := map[string]bool{t: true}
	frontier := []string{t}
	depth := 0

	for len(frontier) > 0 {
		depth++
		var next []string
		for _, id := range frontier {
			for _, dep := range deps.Dependencies(id) {
				if dep == p {
					return depth, true
				}
				if !visited[dep] {
					visited[dep] = true
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}
	return 0, false
}
