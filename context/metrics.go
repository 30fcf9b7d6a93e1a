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

import "sync"

// Metrics is the spec.md §3.1 "Context metrics" snapshot: aggregate
// figures about what the engine is currently retaining and what it has
// assembled so far in this run.
type Metrics struct {
	TotalBytesRetained int64
	TaskCountRetained   int
	TruncatedCount      int
	AverageRelevance    float64
}

// relevanceTracker folds each Assemble() call's ranked relevance scores into
// the running average-relevance figure (spec.md's FinalReport surfaces
// this as part of "context usage metrics").
type relevanceTracker struct {
	mu  sync.Mutex
	sum float64
	n   int
}

func (t *relevanceTracker) record(rel float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sum += rel
	t.n++
}

func (t *relevanceTracker) average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		return 0
	}
	return t.sum / float64(t.n)
}

// Metrics computes the current Context metrics snapshot (spec.md §3.1),
// scanning retained outputs in the State Store plus this Engine's running
// relevance tracker.
func (e *Engine) Metrics() Metrics {
	retained := e.store.RetainedTaskIDs()
	m := Metrics{TaskCountRetained: len(retained), AverageRelevance: e.relevance.average()}
	for _, id := range retained {
		for _, kind := range outputKinds {
			o, ok := e.store.GetOutput(id, kind)
			if !ok {
				continue
			}
			m.TotalBytesRetained += int64(len(o.Bytes))
			if o.Truncated {
				m.TruncatedCount++
			}
		}
	}
	return m
}
