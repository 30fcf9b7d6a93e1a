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

// Package executor implements the Executor (spec.md §4.9, C9): the
// top-level drive loop that walks the Task Graph's ready frontier,
// dispatching root-level group nodes to the Group Orchestrator (C8) and
// root-level task nodes to its own leaf-task runner, under a total
// concurrency budget, until every root node is terminal.
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/hector/agentrunner"
	"github.com/kadirpekel/hector/checkpoint"
	"github.com/kadirpekel/hector/config"
	hctx "github.com/kadirpekel/hector/context"
	"github.com/kadirpekel/hector/executor/metrics"
	"github.com/kadirpekel/hector/graph"
	"github.com/kadirpekel/hector/group"
	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
	"github.com/kadirpekel/hector/workflow"
)

// Executor drives one workflow run to completion.
type Executor struct {
	model        *workflow.Model
	graph        *graph.Graph
	store        *state.Store
	ctxEngine    *hctx.Engine
	orchestrator *group.Orchestrator
	runner       *TaskRunner
	bus          *EventBus
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	limiter      *rate.Limiter
	concurrency  int
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithConcurrency bounds the number of root-level nodes in flight at once.
// Zero or unset means unbounded (one goroutine per root node).
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithRateLimiter stores l on the Executor. The limiter is not consulted
// when tasks dispatch to the AgentRunner, so it does not throttle dispatch.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// New builds an Executor for a fresh run: validates cfg into a Model,
// builds the Task Graph, and registers every task/group into a new State
// Store seeded with inputs (spec.md §4.9 step 1, fresh case).
func New(cfg *config.Workflow, inputs map[string]variables.Value, agents agentrunner.Runner, opts ...Option) (*Executor, error) {
	m, g, err := buildModelAndGraph(cfg)
	if err != nil {
		return nil, err
	}
	store := state.New(inputs)
	registerAll(m, store)
	return newExecutor(m, g, store, agents, opts...)
}

// Resume builds an Executor from a prior checkpoint.Blob: the Store is
// restored from the blob's Snapshot (after a model-hash check) rather
// than freshly registered, and non-terminal statuses are reset to
// pending per spec.md §4.10's resume rules.
func Resume(ctx context.Context, cfg *config.Workflow, blob checkpoint.Blob, agents agentrunner.Runner, opts ...Option) (*Executor, error) {
	m, g, err := buildModelAndGraph(cfg)
	if err != nil {
		return nil, err
	}
	store := state.New(nil)
	if err := checkpoint.Resume(ctx, blob, m.Hash(), store); err != nil {
		return nil, err
	}
	return newExecutor(m, g, store, agents, opts...)
}

func buildModelAndGraph(cfg *config.Workflow) (*workflow.Model, *graph.Graph, error) {
	m, err := workflow.NewModel(cfg)
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.Build(m)
	if err != nil {
		return nil, nil, graph.ValidationErrorFromCycle(err.(*graph.CycleError))
	}
	return m, g, nil
}

func registerAll(m *workflow.Model, store *state.Store) {
	for _, id := range m.TaskIDs() {
		t, _ := m.Task(id)
		store.RegisterTask(id, t.Group)
	}
	for _, id := range m.GroupIDs() {
		store.RegisterGroup(id)
	}
}

func newExecutor(m *workflow.Model, g *graph.Graph, store *state.Store, agents agentrunner.Runner, opts ...Option) (*Executor, error) {
	bus := NewEventBus(256)
	mx := metrics.New()
	ctxEngine := hctx.New(store, g, modelAgentLookup{m: m})

	defaultLimits := m.Raw().Limits
	defaultLimits.SetDefaults()

	runner := NewTaskRunner(m, store, ctxEngine, agents, bus, mx, defaultLimits)
	orch := group.New(m, g, store, rollbackAdapter{bus: bus})

	e := &Executor{
		model:        m,
		graph:        g,
		store:        store,
		ctxEngine:    ctxEngine,
		orchestrator: orch,
		runner:       runner,
		bus:          bus,
		metrics:      mx,
		tracer:       otel.Tracer("workflow/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Events returns the Executor's notification stream (spec.md §6).
func (e *Executor) Events() <-chan Event { return e.bus.Events() }

// Metrics returns the Executor's prometheus collector bundle, for a host
// process to register with its own registry.
func (e *Executor) Metrics() *metrics.Metrics { return e.metrics }

// Checkpoint takes a snapshot of the current State Store, suitable for
// persisting via a checkpoint.Store (spec.md §4.10).
func (e *Executor) Checkpoint(runID string) checkpoint.Blob {
	return checkpoint.New(runID, e.model.Hash(), e.store)
}

// Run drives the workflow to completion (spec.md §4.9 step 3): repeatedly
// draw the ready frontier among root-level nodes (a root task has no
// owning group; a root group has no parent — nested nodes are driven
// entirely by the Group Orchestrator once their owning group activates),
// launch each ready root subject to the configured concurrency budget,
// and await termination.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Run")
	defer span.End()

	roots := e.rootIDs()
	if len(roots) == 0 {
		return e.buildReport(), nil
	}

	maxConcurrency := e.concurrency
	if maxConcurrency <= 0 {
		maxConcurrency = len(roots)
	}

	terminal := make(map[string]bool, len(roots))
	launched := make(map[string]bool, len(roots))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	eg, egCtx := errgroup.WithContext(ctx)
	wake := make(chan struct{}, len(roots)+1)

	launchReady := func() {
		mu.Lock()
		defer mu.Unlock()
		readySet := make(map[string]bool)
		for _, id := range e.graph.ReadySet(e.store) {
			readySet[id] = true
		}
		for _, id := range roots {
			if terminal[id] || launched[id] || !readySet[id] {
				continue
			}
			if !sem.TryAcquire(1) {
				continue
			}
			launched[id] = true
			id := id
			eg.Go(func() error {
				defer sem.Release(1)
				e.runRoot(egCtx, id)
				mu.Lock()
				terminal[id] = true
				mu.Unlock()
				select {
				case wake <- struct{}{}:
				default:
				}
				return nil
			})
		}
	}

	for {
		launchReady()
		mu.Lock()
		done := len(terminal) == len(roots)
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-wake:
		case <-time.After(50 * time.Millisecond):
		}
	}
	_ = eg.Wait()

	report := e.buildReport()
	var err error
	if report.OverallStatus == "failed" {
		err = errWorkflowFailed
	}
	evKind := EventWorkflowCompleted
	if err != nil {
		evKind = EventWorkflowFailed
	}
	e.bus.Publish(Event{Kind: evKind, Message: report.OverallStatus, At: time.Now()})
	return report, err
}

var errWorkflowFailed = errorString("workflow completed with one or more failed tasks or groups")

type errorString string

func (e errorString) Error() string { return string(e) }

func (e *Executor) runRoot(ctx context.Context, id string) {
	kind, _ := e.graph.Kind(id)
	if kind == graph.NodeGroup {
		_ = e.orchestrator.Activate(ctx, id, group.EffectiveConfig{}, variables.Scope{}, e.runner)
		rec, _ := e.store.GroupRecord(id)
		e.bus.Publish(Event{Kind: EventGroupCompleted, ID: id, Message: string(rec.Status), At: time.Now()})
		return
	}
	_ = e.runner.RunTask(ctx, id, variables.Scope{})
}

func (e *Executor) rootIDs() []string {
	var out []string
	for _, id := range e.graph.NodeIDs() {
		if e.isRoot(id) {
			out = append(out, id)
		}
	}
	return out
}

func (e *Executor) isRoot(id string) bool {
	kind, ok := e.graph.Kind(id)
	if !ok {
		return false
	}
	if kind == graph.NodeTask {
		t, ok := e.model.Task(id)
		return ok && t.Group == ""
	}
	g, ok := e.model.Group(id)
	return ok && g.Parent == ""
}
