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

import (
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/state"
)

// OutputStore is the read/write surface the Context Engine needs from the
// State Store (C2). Declared structurally so this package and state have
// no compile-time cycle.
type OutputStore interface {
	RetainedTaskIDs() []string
	GetOutput(taskID, kind string) (*state.CapturedOutput, bool)
	EvictOutput(taskID string)
	LastRead(taskID string) (time.Time, bool)
}

// outputKinds is the set of capture kinds assembled into a task's context
// blob, in the order they are concatenated.
var outputKinds = []string{"combined", "stdout", "stderr"}

// Engine is the Context Engine. One Engine is shared for the lifetime of a
// run; it is safe for concurrent use to the extent OutputStore is (the
// state.Store it is normally constructed over already is).
type Engine struct {
	store  OutputStore
	deps   DependencyReader
	agents AgentLookup

	// lruCache tracks read recency independent of OutputStore.LastRead, to
	// back the "lru" cleanup strategy the way SPEC_FULL's domain-stack
	// ledger wires github.com/hashicorp/golang-lru/v2: a real bounded LRU
	// rather than a hand-rolled recency map.
	lruCache  *lru.Cache[string, time.Time]
	relevance relevanceTracker
}

// New creates an Engine bound to store, with deps/agents supplying the
// relevance scorer's dependency graph and agent-sharing lookups.
func New(store OutputStore, deps DependencyReader, agents AgentLookup) *Engine {
	cache, _ := lru.New[string, time.Time](4096)
	return &Engine{store: store, deps: deps, agents: agents, lruCache: cache}
}

// Assembled is the bounded context blob built for one downstream task.
type Assembled struct {
	Bytes    []byte
	Included []string // task ids whose output made it into Bytes, highest relevance first
}

// Assemble builds the context blob for task taskID per spec.md §4.6 step
// 4: select candidates by cfg.Mode, rank by relevance, and greedily append
// whole outputs until limits.MaxContextBytes/MaxContextTasks is reached.
func (e *Engine) Assemble(taskID string, cfg *config.ContextConfig, limits config.Limits) Assembled {
	if cfg == nil || cfg.Mode == "" || cfg.Mode == "none" {
		return Assembled{}
	}

	candidates := e.candidateSet(taskID, cfg)
	type scored struct {
		id  string
		rel float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		ranked = append(ranked, scored{id: id, rel: Relevance(e.deps, e.agents, taskID, id)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].rel != ranked[j].rel {
			return ranked[i].rel > ranked[j].rel
		}
		return ranked[i].id < ranked[j].id // deterministic tie-break
	})

	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = len(ranked)
	}
	if limits.MaxContextTasks > 0 && maxTasks > limits.MaxContextTasks {
		maxTasks = limits.MaxContextTasks
	}
	maxBytes := limits.MaxContextBytes
	if cfg.MaxBytes > 0 {
		maxBytes = cfg.MaxBytes
	}

	var out Assembled
	var used int64
	for i, c := range ranked {
		e.relevance.record(c.rel)
		if i >= maxTasks {
			break
		}
		blob := e.readTaskBlob(c.id)
		if len(blob) == 0 {
			continue
		}
		header := []byte(fmt.Sprintf("--- [task:%s relevance:%.2f] ---\n", c.id, c.rel))
		entry := append(header, blob...)
		if maxBytes > 0 && used+int64(len(entry)) > maxBytes {
			break // preserve higher-relevance entries whole; never split this one in
		}
		out.Bytes = append(out.Bytes, entry...)
		out.Included = append(out.Included, c.id)
		used += int64(len(entry))
	}
	return out
}

// candidateSet resolves the mode-dependent candidate id list (spec.md
// §4.6 steps 2-3), before ranking.
func (e *Engine) candidateSet(taskID string, cfg *config.ContextConfig) []string {
	retained := e.store.RetainedTaskIDs()
	retainedSet := make(map[string]bool, len(retained))
	for _, id := range retained {
		retainedSet[id] = true
	}

	switch cfg.Mode {
	case "manual":
		exclude := make(map[string]bool, len(cfg.ExcludeTasks))
		for _, id := range cfg.ExcludeTasks {
			exclude[id] = true
		}
		var out []string
		for _, id := range cfg.IncludeTasks {
			if id != taskID && !exclude[id] && retainedSet[id] {
				out = append(out, id)
			}
		}
		return out

	case "automatic", "":
		var out []string
		for _, id := range retained {
			if id == taskID {
				continue
			}
			if Relevance(e.deps, e.agents, taskID, id) >= cfg.MinRelevance {
				out = append(out, id)
			}
		}
		return out

	default:
		return nil
	}
}

// readTaskBlob concatenates the retained kinds for id into one blob and
// records the read for the lru cleanup strategy.
func (e *Engine) readTaskBlob(id string) []byte {
	var blob []byte
	for _, kind := range outputKinds {
		o, ok := e.store.GetOutput(id, kind)
		if !ok {
			continue
		}
		blob = append(blob, o.Bytes...)
	}
	if e.lruCache != nil {
		e.lruCache.Add(id, time.Now())
	}
	return blob
}
