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

import "sort"

// CompletionReader reports whether a task has already reached a terminal
// status, used by the highest_relevance and direct_dependencies cleanup
// strategies to reason about "not-yet-completed" tasks (spec.md §4.6).
type CompletionReader interface {
	TaskTerminal(id string) bool
}

// Cleanup evicts retained outputs down to keepCount entries per strategy,
// called by the Executor after each task completes (spec.md §4.6). It is
// a no-op when fewer than keepCount outputs are retained.
func (e *Engine) Cleanup(strategy string, keepCount int, allTaskIDs []string, completion CompletionReader) {
	retained := e.store.RetainedTaskIDs()
	if keepCount <= 0 || len(retained) <= keepCount {
		return
	}

	var keep map[string]bool
	switch strategy {
	case "highest_relevance":
		keep = e.keepHighestRelevance(retained, allTaskIDs, completion, keepCount)
	case "lru":
		keep = e.keepLRU(retained, keepCount)
	case "direct_dependencies":
		keep = e.keepDirectDependencies(retained, allTaskIDs, completion)
	case "most_recent", "":
		keep = e.keepMostRecent(retained, keepCount)
	default:
		keep = e.keepMostRecent(retained, keepCount)
	}

	for _, id := range retained {
		if !keep[id] {
			e.store.EvictOutput(id)
		}
	}
}

func (e *Engine) keepMostRecent(retained []string, keepCount int) map[string]bool {
	type stamped struct {
		id string
		ts int64
	}
	entries := make([]stamped, 0, len(retained))
	for _, id := range retained {
		var latest int64
		for _, kind := range outputKinds {
			if o, ok := e.store.GetOutput(id, kind); ok {
				if t := o.CapturedAt.UnixNano(); t > latest {
					latest = t
				}
			}
		}
		entries = append(entries, stamped{id: id, ts: latest})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	return topN(entries, keepCount, func(s stamped) string { return s.id })
}

func (e *Engine) keepLRU(retained []string, keepCount int) map[string]bool {
	type stamped struct {
		id string
		ts int64
	}
	entries := make([]stamped, 0, len(retained))
	for _, id := range retained {
		var ts int64
		if e.lruCache != nil {
			if t, ok := e.lruCache.Get(id); ok {
				ts = t.UnixNano()
			}
		}
		if ts == 0 {
			if t, ok := e.store.LastRead(id); ok {
				ts = t.UnixNano()
			}
		}
		entries = append(entries, stamped{id: id, ts: ts})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	return topN(entries, keepCount, func(s stamped) string { return s.id })
}

func (e *Engine) keepHighestRelevance(retained, allTaskIDs []string, completion CompletionReader, keepCount int) map[string]bool {
	type scored struct {
		id  string
		rel float64
	}
	entries := make([]scored, 0, len(retained))
	for _, id := range retained {
		var max float64
		for _, other := range allTaskIDs {
			if other == id || (completion != nil && completion.TaskTerminal(other)) {
				continue
			}
			if r := Relevance(e.deps, e.agents, other, id); r > max {
				max = r
			}
		}
		entries = append(entries, scored{id: id, rel: max})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel > entries[j].rel })
	return topN(entries, keepCount, func(s scored) string { return s.id })
}

func (e *Engine) keepDirectDependencies(retained, allTaskIDs []string, completion CompletionReader) map[string]bool {
	// Keep every retained output that is a direct dependency of a
	// not-yet-completed task.
	keep := make(map[string]bool, len(retained))
	retainedSet := make(map[string]bool, len(retained))
	for _, id := range retained {
		retainedSet[id] = true
	}
	for _, dependent := range allTaskIDs {
		if completion != nil && completion.TaskTerminal(dependent) {
			continue // only not-yet-completed dependents count
		}
		for _, dep := range e.deps.Dependencies(dependent) {
			if retainedSet[dep] {
				keep[dep] = true
			}
		}
	}
	return keep
}

func topN[T any](entries []T, n int, idOf func(T) string) map[string]bool {
	if n > len(entries) {
		n = len(entries)
	}
	keep := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		keep[idOf(entries[i])] = true
	}
	return keep
}
