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

// Package group implements the Group Orchestrator (spec.md §4.8, C8): it
// activates a group, inherits configuration from its parent, evaluates the
// group condition, runs children sequentially/in parallel/auto respecting
// max_concurrency, applies the stop/continue/rollback error policy, and
// captures group outputs once every child is terminal.
package group

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/hector/condition"
	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/graph"
	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
	"github.com/kadirpekel/hector/workflow"
)

// TaskRunner executes one leaf task. The Executor supplies the
// implementation (condition gating, interpolation, AgentRunner dispatch,
// DoD, retries); the Group Orchestrator only needs to invoke it and observe
// whether it errored.
type TaskRunner interface {
	RunTask(ctx context.Context, taskID string, scope variables.Scope) error
}

// RollbackEvent is the opaque signal a `rollback`-policy group's failure
// dispatches (spec.md §9 Open Question resolution: no rollback-task
// execution scheme is defined in the core, so this carries only enough to
// let a host process act on it).
type RollbackEvent struct {
	GroupID string
	Reason  string
}

// RollbackSink receives RollbackEvents; delivery is fire-and-forget,
// matching the notification subsystem's contract (spec.md §6).
type RollbackSink interface {
	Rollback(event RollbackEvent)
}

// EffectiveConfig is the deterministic merge of a group's own configuration
// with whatever it inherits from its parent, computed once at activation
// (spec.md §4.8 "Configuration inheritance" and §9's redesign note:
// "never as lazy lookup up the tree").
type EffectiveConfig struct {
	Timeout        time.Duration
	OnError        config.ErrorPolicy
	MaxConcurrency int
}

// mergeConfig resolves g's effective configuration against parent, applying
// g's own value wherever it is explicitly set.
func mergeConfig(g *config.Group, parent EffectiveConfig) EffectiveConfig {
	eff := parent
	if g.Timeout > 0 {
		eff.Timeout = g.Timeout
	}
	if g.OnError != "" {
		eff.OnError = g.OnError
	}
	if g.MaxConcurrency > 0 {
		eff.MaxConcurrency = g.MaxConcurrency
	}
	if eff.OnError == "" {
		eff.OnError = config.PolicyStop
	}
	return eff
}

// Orchestrator drives group activation against a shared Model/Graph/Store.
type Orchestrator struct {
	model      *workflow.Model
	g          *graph.Graph
	store      *state.Store
	resolver   *variables.Resolver
	conditions *condition.Evaluator
	rollback   RollbackSink
}

// New creates an Orchestrator. rollback may be nil, in which case rollback
// events are silently dropped (no handler configured).
func New(m *workflow.Model, g *graph.Graph, store *state.Store, rollback RollbackSink) *Orchestrator {
	return &Orchestrator{
		model:      m,
		g:          g,
		store:      store,
		resolver:   variables.NewResolver(store),
		conditions: condition.NewEvaluator(store),
		rollback:   rollback,
	}
}

// Activate runs groupID to terminal status per spec.md §4.8's five steps.
// parentEff is the inherited configuration (zero value at the root); runner
// executes leaf tasks. groupID, and every task/subgroup it (transitively)
// owns, must already be registered in the Store (state.Store.RegisterTask /
// RegisterGroup) before Activate is called — the Executor registers the
// whole Model once at run initialization.
func (o *Orchestrator) Activate(ctx context.Context, groupID string, parentEff EffectiveConfig, parentScope variables.Scope, runner TaskRunner) error {
	g, ok := o.model.Group(groupID)
	if !ok {
		return enginerr.New(enginerr.KindValidation, "Activate", "unknown group "+groupID, nil)
	}
	eff := mergeConfig(g, parentEff)
	scope := variables.Scope{GroupID: groupID}

	if g.Condition != nil {
		ok, err := o.conditions.Eval(g.Condition, scope)
		if err != nil {
			return err
		}
		if !ok {
			o.store.SetGroupStatus(groupID, state.GroupSkipped)
			o.markDescendantsSkipped(g)
			return nil
		}
	}

	if err := o.store.SetGroupStatus(groupID, state.GroupRunningStatus); err != nil {
		return err
	}

	if err := o.resolveInputs(g, parentScope, groupID); err != nil {
		return err
	}

	if eff.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eff.Timeout)
		defer cancel()
	}

	err := o.runChildren(ctx, g, eff, scope, runner)

	if ctx.Err() == context.DeadlineExceeded {
		o.store.SetGroupStatus(groupID, state.GroupTimeout)
		return enginerr.New(enginerr.KindGroupTimeout, "Activate", "group "+groupID+" exceeded timeout", err)
	}

	finalStatus := o.finalizeStatus(g, eff, err)
	o.store.SetGroupStatus(groupID, finalStatus)

	if cerr := captureOutputs(g.Outputs, o.store, func(name string, v variables.Value) {
		o.store.PutGroupOutput(groupID, name, v)
	}); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// resolveInputs materializes g.Inputs against parentScope and publishes them
// under groupID's output slot, so a child task scoped to this group resolves
// a bare reference to an input via the same GroupOutput lookup its scope
// already falls through to (variables.Resolver.resolveBare).
func (o *Orchestrator) resolveInputs(g *config.Group, parentScope variables.Scope, groupID string) error {
	for name, expr := range g.Inputs {
		v, err := o.resolver.Resolve(strings.Trim(strings.TrimSpace(expr), "${}"), parentScope)
		if err != nil {
			return err
		}
		o.store.PutGroupOutput(groupID, name, v)
	}
	return nil
}

// childIDs gives the orchestrator an ordered list of this group's direct
// children, tasks before subgroups (spec.md doesn't define a cross-list
// order; declaration order within each list is what scheduling needs to be
// deterministic for, per §4.5's tie-breaking rule).
func childIDs(g *config.Group) []string {
	out := make([]string, 0, len(g.Tasks)+len(g.Groups))
	out = append(out, g.Tasks...)
	out = append(out, g.Groups...)
	return out
}

type childOutcome struct {
	id     string
	kind   graph.NodeKind
	status state.TaskStatus // for group children, mapped onto the closest TaskStatus-shaped bucket for counting
	err    error
}

// runChildren drives the ready-frontier loop over g's own children: compute
// which direct children have all their dependencies terminal, launch up to
// eff.MaxConcurrency of them (1 if g.Mode is sequential), wait for at least
// one to finish, apply the error policy, and repeat until every child is
// terminal or the policy has stopped further scheduling.
func (o *Orchestrator) runChildren(ctx context.Context, g *config.Group, eff EffectiveConfig, scope variables.Scope, runner TaskRunner) error {
	children := childIDs(g)
	if len(children) == 0 {
		return nil
	}

	maxConcurrency := eff.MaxConcurrency
	if g.Mode == config.ModeSequential {
		maxConcurrency = 1
	}
	if maxConcurrency <= 0 {
		maxConcurrency = len(children)
	}

	terminal := make(map[string]bool, len(children))
	launched := make(map[string]bool, len(children))
	var (
		mu       sync.Mutex
		stopped  bool
		outcomes []childOutcome
	)

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)
	wake := make(chan struct{}, len(children)+1)

	launchReady := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range children {
			if terminal[id] || launched[id] || stopped {
				continue
			}
			if !o.childReady(id) {
				continue
			}
			if !sem.TryAcquire(1) {
				continue
			}
			launched[id] = true
			id := id
			eg.Go(func() error {
				defer sem.Release(1)
				outcome := o.runOneChild(egCtx, id, eff, scope, runner)
				mu.Lock()
				terminal[id] = true
				outcomes = append(outcomes, outcome)
				if outcome.err != nil && (eff.OnError == config.PolicyStop || eff.OnError == config.PolicyRollback) {
					stopped = true
					if eff.OnError == config.PolicyRollback && o.rollback != nil {
						o.rollback.Rollback(RollbackEvent{GroupID: g.ID, Reason: outcome.err.Error()})
					}
					cancel()
				}
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
		allDone := len(terminal) == len(children)
		noMoreWork := stopped && len(launched) == len(terminal)
		mu.Unlock()
		if allDone || noMoreWork {
			break
		}
		select {
		case <-wake:
		case <-time.After(50 * time.Millisecond):
		}
	}

	_ = eg.Wait()

	for _, oc := range outcomes {
		o.store.RecordChildTerminal(g.ID, oc.status)
	}

	var combined error
	for _, oc := range outcomes {
		if oc.err != nil {
			combined = oc.err
			break
		}
	}
	return combined
}

// childReady reports whether id's own explicit dependencies (not the
// containment edges graph.Graph folds into a group node's edge set) are all
// terminal. Group activation-readiness must only ever look at depends_on,
// never at a group's own children — those run *after* activation, not
// before it — so this intentionally consults the Model directly instead of
// graph.Graph.Dependencies.
func (o *Orchestrator) childReady(id string) bool {
	var deps []string
	if t, ok := o.model.Task(id); ok {
		deps = t.DependsOn
	} else if g, ok := o.model.Group(id); ok {
		deps = g.DependsOn
	}
	for _, dep := range deps {
		if _, ok := o.model.Task(dep); ok {
			if !o.store.TaskTerminal(dep) {
				return false
			}
			continue
		}
		if !o.store.GroupTerminal(dep) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) kindOf(id string) graph.NodeKind {
	if _, ok := o.model.Task(id); ok {
		return graph.NodeTask
	}
	return graph.NodeGroup
}

func (o *Orchestrator) runOneChild(ctx context.Context, id string, parentEff EffectiveConfig, scope variables.Scope, runner TaskRunner) childOutcome {
	kind := o.kindOf(id)
	if kind == graph.NodeGroup {
		err := o.Activate(ctx, id, parentEff, scope, runner)
		rec, _ := o.store.GroupRecord(id)
		return childOutcome{id: id, kind: kind, status: groupStatusToTaskStatus(rec.Status), err: err}
	}

	taskScope := scope
	taskScope.TaskID = id
	err := runner.RunTask(ctx, id, taskScope)
	rec, _ := o.store.TaskRecord(id)
	status := rec.Status
	if !state.IsTaskTerminal(status) {
		// The runner did not record a terminal status; fall back to its error.
		if err != nil {
			status = state.TaskFailed
		} else {
			status = state.TaskCompleted
		}
	}
	return childOutcome{id: id, kind: kind, status: status, err: err}
}

func groupStatusToTaskStatus(s state.GroupStatus) state.TaskStatus {
	switch s {
	case state.GroupCompleted:
		return state.TaskCompleted
	case state.GroupSkipped:
		return state.TaskSkipped
	case state.GroupTimeout:
		return state.TaskTimeout
	default:
		return state.TaskFailed
	}
}

// finalizeStatus computes the group's terminal status from its error policy
// and how its children came out (spec.md §4.8 step 4).
func (o *Orchestrator) finalizeStatus(g *config.Group, eff EffectiveConfig, runErr error) state.GroupStatus {
	rec, _ := o.store.GroupRecord(g.ID)
	total := rec.Completed + rec.Failed + rec.Skipped + rec.Cancelled
	switch eff.OnError {
	case config.PolicyContinue:
		if rec.Failed == 0 {
			return state.GroupCompleted
		}
		if rec.Failed == total {
			return state.GroupFailed
		}
		return state.GroupPartialFailure
	default: // stop, rollback
		if runErr != nil || rec.Failed > 0 {
			return state.GroupFailed
		}
		return state.GroupCompleted
	}
}

// markDescendantsSkipped recursively marks every task/subgroup owned by g as
// skipped, so a condition-skipped group still reports complete coverage in
// the final report instead of leaving descendants stuck at pending.
func (o *Orchestrator) markDescendantsSkipped(g *config.Group) {
	for _, tid := range g.Tasks {
		o.store.RegisterTask(tid, g.ID)
		o.store.SetTaskStatus(tid, state.TaskSkipped, nil)
	}
	for _, gid := range g.Groups {
		o.store.RegisterGroup(gid)
		o.store.SetGroupStatus(gid, state.GroupSkipped)
		if child, ok := o.model.Group(gid); ok {
			o.markDescendantsSkipped(child)
		}
	}
}
