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

package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kadirpekel/hector/agentrunner"
	"github.com/kadirpekel/hector/condition"
	"github.com/kadirpekel/hector/config"
	hctx "github.com/kadirpekel/hector/context"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/executor/dod"
	"github.com/kadirpekel/hector/executor/metrics"
	"github.com/kadirpekel/hector/group"
	"github.com/kadirpekel/hector/loop"
	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
	"github.com/kadirpekel/hector/workflow"
)

// TaskRunner executes one leaf task to terminal status (spec.md §4.9's
// six-step "for a leaf task" sequence). It satisfies group.TaskRunner, so
// the Group Orchestrator dispatches a group's child tasks through the
// same path the Executor's own root-level loop uses for root tasks.
type TaskRunner struct {
	model         *workflow.Model
	store         *state.Store
	resolver      *variables.Resolver
	conditions    *condition.Evaluator
	ctxEngine     *hctx.Engine
	agents        agentrunner.Runner
	bus           *EventBus
	metrics       *metrics.Metrics
	httpClient    loop.HTTPDoer
	defaultLimits config.Limits
}

var _ group.TaskRunner = (*TaskRunner)(nil)

// NewTaskRunner wires a TaskRunner. agents may be nil only for workflows
// whose every task is loop-only (no agent field); defaultLimits should
// already have SetDefaults applied (the Executor does this once from the
// workflow's top-level Limits).
func NewTaskRunner(m *workflow.Model, store *state.Store, ctxEngine *hctx.Engine, agents agentrunner.Runner, bus *EventBus, mx *metrics.Metrics, defaultLimits config.Limits) *TaskRunner {
	return &TaskRunner{
		model:         m,
		store:         store,
		resolver:      variables.NewResolver(store),
		conditions:    condition.NewEvaluator(store),
		ctxEngine:     ctxEngine,
		agents:        agents,
		bus:           bus,
		metrics:       mx,
		httpClient:    http.DefaultClient,
		defaultLimits: defaultLimits,
	}
}

// RunTask runs taskID to a terminal status: condition gate, loop or single
// attempt, status transition, hook dispatch, and event notification.
func (r *TaskRunner) RunTask(ctx context.Context, taskID string, scope variables.Scope) error {
	task, ok := r.model.Task(taskID)
	if !ok {
		return enginerr.New(enginerr.KindValidation, "RunTask", "unknown task "+taskID, nil)
	}

	ready, cerr := r.conditions.Eval(task.Condition, scope)
	if cerr != nil {
		r.store.SetTaskStatus(taskID, state.TaskFailed, cerr)
		return cerr
	}
	if !ready {
		return r.store.SetTaskStatus(taskID, state.TaskSkipped, nil)
	}

	if err := r.store.SetTaskStatus(taskID, state.TaskRunning, nil); err != nil {
		return err
	}
	r.bus.Publish(Event{Kind: EventTaskStarted, ID: taskID, At: time.Now()})

	start := time.Now()
	var runErr error
	if task.Loop != nil {
		runErr = r.runLoop(ctx, taskID, task, scope)
	} else {
		_, runErr = r.runAttempt(ctx, taskID, task, scope)
	}
	if r.metrics != nil {
		r.metrics.TaskDurationSeconds.WithLabelValues(taskID).Observe(time.Since(start).Seconds())
	}

	status := classifyStatus(ctx, runErr)
	r.store.SetTaskStatus(taskID, status, runErr)
	if r.metrics != nil {
		r.metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	}

	r.dispatchHooks(task, status)

	evKind := EventTaskCompleted
	if status != state.TaskCompleted && status != state.TaskSkipped {
		evKind = EventTaskFailed
	}
	r.bus.Publish(Event{Kind: evKind, ID: taskID, Message: errString(runErr), At: time.Now()})

	return runErr
}

// runLoop drives task.Loop via the Loop Runtime, with each iteration's
// body executing one leaf-task attempt scoped to that iteration.
func (r *TaskRunner) runLoop(ctx context.Context, taskID string, task *config.Task, scope variables.Scope) error {
	deps := loop.Deps{
		Collected:   r.store,
		Conditions:  r.conditions,
		HTTPClient:  r.httpClient,
		StateReader: r.store,
	}
	body := func(ctx context.Context, iterScope variables.Scope) (variables.Value, error) {
		return r.runAttempt(ctx, taskID, task, iterScope)
	}
	result, err := loop.Run(ctx, taskID, task.Loop, body, scope, deps)
	if r.metrics != nil {
		r.metrics.LoopIterationsTotal.Add(float64(result.IterationsRun))
	}
	return err
}

// unmetCriterion pairs a failed DoD criterion with its feedback message.
type unmetCriterion struct {
	c        config.DoDCriterion
	feedback string
}

// runAttempt performs spec.md §4.9 steps 2-5 for one execution of task: a
// loop-only task (no Agent) skips straight to Output publishing; an
// agent-bound task interpolates its description, assembles context,
// invokes AgentRunner, truncates and publishes outputs, and evaluates
// DoD criteria, retrying with feedback for up to one more attempt than the
// largest max_retries among the criteria. Returns the task's "result" output, if it declared one,
// for a loop body to collect.
func (r *TaskRunner) runAttempt(ctx context.Context, taskID string, task *config.Task, scope variables.Scope) (variables.Value, error) {
	limits := r.effectiveLimits(task)
	ctxCfg := r.effectiveContextConfig(task)

	maxAttempts := 1
	for _, c := range task.DoD {
		if c.MaxRetries+1 > maxAttempts {
			maxAttempts = c.MaxRetries + 1
		}
	}

	var feedback string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		desc, err := r.resolver.Interpolate(task.Description, scope)
		if err != nil {
			return variables.Null(), err
		}
		if feedback != "" {
			desc = desc + "\n\nPrevious attempt did not satisfy requirements:\n" + feedback
		}

		var stdout, stderr []byte
		if task.Agent != "" {
			if r.agents == nil {
				return variables.Null(), enginerr.New(enginerr.KindValidation, "runAttempt",
					"task "+taskID+" declares an agent but no AgentRunner is configured", nil)
			}
			assembled := r.ctxEngine.Assemble(taskID, ctxCfg, limits)

			tok := agentrunner.NewCancelToken()
			runCtx, cancel := agentrunner.WithTimeout(ctx, task.Timeout, tok)
			res, rerr := r.agents.Run(runCtx, desc, assembled.Bytes, task.Agent, task.Timeout, tok)
			timedOut := runCtx.Err() == context.DeadlineExceeded
			cancel()
			if rerr != nil {
				if timedOut {
					return variables.Null(), enginerr.New(enginerr.KindTaskTimeout, "runAttempt",
						"task "+taskID+" timed out", rerr)
				}
				return variables.Null(), classifyAgentErr(rerr)
			}
			stdout, stderr = res.Stdout, res.Stderr
			if res.Exit != 0 {
				return variables.Null(), enginerr.New(enginerr.KindAgentNonZeroExit, "runAttempt",
					fmt.Sprintf("task %s agent exited %d", taskID, res.Exit), nil)
			}
		}

		truncOut, wasTruncOut := hctx.Truncate(stdout, limits.MaxStdoutBytes, hctx.Strategy(limits.TruncationStrategy))
		truncErr, wasTruncErr := hctx.Truncate(stderr, limits.MaxStderrBytes, hctx.Strategy(limits.TruncationStrategy))
		r.store.PutOutput(taskID, "stdout", truncOut, wasTruncOut)
		r.store.PutOutput(taskID, "stderr", truncErr, wasTruncErr)
		combined := append(append([]byte{}, truncOut...), truncErr...)
		r.store.PutOutput(taskID, "combined", combined, wasTruncOut || wasTruncErr)

		unmet, derr := r.evaluateDoD(ctx, task.DoD, truncOut, truncErr)
		if derr != nil {
			return variables.Null(), derr
		}
		if len(unmet) == 0 {
			break
		}
		if attempt == maxAttempts-1 {
			if hasFailOnUnmet(unmet) {
				return variables.Null(), enginerr.New(enginerr.KindDoDUnmet, "runAttempt",
					"task "+taskID+" failed definition-of-done: "+strings.Join(feedbackStrings(unmet), "; "), nil)
			}
			break
		}
		feedback = strings.Join(feedbackStrings(unmet), "; ")
	}

	if err := r.publishOutputs(task, taskID); err != nil {
		return variables.Null(), err
	}
	if v, ok := r.store.TaskOutput(taskID, "result"); ok {
		return v, nil
	}
	return variables.Null(), nil
}

func (r *TaskRunner) evaluateDoD(ctx context.Context, criteria []config.DoDCriterion, stdout, stderr []byte) ([]unmetCriterion, error) {
	var unmet []unmetCriterion
	for _, c := range criteria {
		outcome, err := dod.Check(ctx, c, stdout, stderr)
		if err != nil {
			return nil, err
		}
		if !outcome.Met {
			unmet = append(unmet, unmetCriterion{c: c, feedback: outcome.Feedback})
		}
	}
	return unmet, nil
}

func hasFailOnUnmet(unmet []unmetCriterion) bool {
	for _, u := range unmet {
		if u.c.FailOnUnmet {
			return true
		}
	}
	return false
}

func feedbackStrings(unmet []unmetCriterion) []string {
	out := make([]string, len(unmet))
	for i, u := range unmet {
		out[i] = u.feedback
	}
	return out
}

// publishOutputs materializes task's simple Output (single-file
// declaration) and structured Outputs against the State Store.
func (r *TaskRunner) publishOutputs(task *config.Task, taskID string) error {
	var firstErr error
	if task.Output != "" {
		r.store.PutTaskOutput(taskID, "output_path", variables.String(task.Output))
		if data, ferr := os.ReadFile(task.Output); ferr == nil {
			r.store.PutTaskOutput(taskID, "output", variables.String(string(data)))
		}
	}
	for name, spec := range task.Outputs {
		v, everr := group.EvalOutput(spec, r.store)
		if everr != nil {
			if firstErr == nil {
				firstErr = everr
			}
			continue
		}
		r.store.PutTaskOutput(taskID, name, v)
	}
	return firstErr
}

func (r *TaskRunner) effectiveLimits(task *config.Task) config.Limits {
	if task.Limits == nil {
		return r.defaultLimits
	}
	l := *task.Limits
	l.SetDefaults()
	return l
}

func (r *TaskRunner) effectiveContextConfig(task *config.Task) *config.ContextConfig {
	if task.Context == nil {
		cfg := &config.ContextConfig{}
		cfg.SetDefaults()
		return cfg
	}
	cfg := *task.Context
	cfg.SetDefaults()
	return &cfg
}

// dispatchHooks fires task.OnComplete or task.OnError as bus events,
// depending on how status came out (spec.md §3.1's "opaque event
// payloads"; the core does not interpret a hook's Type beyond routing it
// complete-vs-error, leaving notify/retry/rollback handling to the host).
func (r *TaskRunner) dispatchHooks(task *config.Task, status state.TaskStatus) {
	var hooks []config.HookAction
	switch status {
	case state.TaskCompleted:
		hooks = task.OnComplete
	case state.TaskFailed, state.TaskTimeout, state.TaskCancelled:
		hooks = task.OnError
	}
	for _, h := range hooks {
		r.bus.Publish(Event{Kind: EventKind("hook_" + h.Type), ID: task.ID, Message: h.Type, At: time.Now()})
	}
}

func classifyAgentErr(err error) error {
	var ae *agentrunner.AgentError
	if errors.As(err, &ae) {
		return enginerr.New(ae.Kind(), "runAttempt", ae.Error(), ae)
	}
	return enginerr.Wrap(enginerr.KindAgentError, "runAttempt", err)
}

func classifyStatus(ctx context.Context, err error) state.TaskStatus {
	if err == nil {
		return state.TaskCompleted
	}
	var ee *enginerr.Error
	if errors.As(err, &ee) {
		switch ee.Kind {
		case enginerr.KindTaskTimeout:
			return state.TaskTimeout
		case enginerr.KindCancelRequested:
			return state.TaskCancelled
		}
	}
	switch ctx.Err() {
	case context.Canceled:
		return state.TaskCancelled
	case context.DeadlineExceeded:
		return state.TaskTimeout
	}
	return state.TaskFailed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
