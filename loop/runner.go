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

package loop

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/variables"
)

// Body executes one loop iteration's task body and returns its collected
// value (only consulted when collect_results is set).
type Body func(ctx context.Context, scope variables.Scope) (variables.Value, error)

// ConditionEvaluator is the minimal surface the Loop Runtime needs from
// the Condition Evaluator (C4) to gate continue/break/while/repeat_until.
type ConditionEvaluator interface {
	Eval(cond *config.Condition, scope variables.Scope) (bool, error)
}

// CollectedStore is the append-only-by-index surface the Loop Runtime
// needs from the State Store (C2), satisfied structurally by *state.Store.
type CollectedStore interface {
	CollectedIndex(resultKey string, index int) bool
	PutCollected(resultKey string, index int, v variables.Value)
	Collected(resultKey string) ([]variables.Value, bool)
}

// Deps bundles the Loop Runtime's external collaborators.
type Deps struct {
	Collected   CollectedStore
	Conditions  ConditionEvaluator
	Checkpoint  func(ctx context.Context) error // called every checkpoint_interval iterations; may be nil
	HTTPClient  HTTPDoer
	StateReader StateReader
}

// Result is the outcome of running one LoopSpec to completion, timeout, or
// break.
type Result struct {
	Status          string // completed | timeout | cancelled
	IterationsRun   int
	Results         []variables.Value
}

// Run executes spec against body, using baseScope as the scope each
// iteration's binding is layered onto (spec.md §4.7).
func Run(ctx context.Context, taskID string, spec *config.LoopSpec, body Body, baseScope variables.Scope, deps Deps) (Result, error) {
	if spec == nil {
		return Result{}, enginerr.New(enginerr.KindValidation, "Run", "loop spec is nil", nil)
	}

	if spec.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(spec.TimeoutSecs*float64(time.Second)))
		defer cancel()
	}

	var (
		res Result
		err error
	)
	switch spec.Type {
	case config.LoopForEach:
		res, err = runForEach(ctx, spec, body, baseScope, deps)
	case config.LoopRepeat:
		res, err = runRepeat(ctx, spec, body, baseScope, deps)
	case config.LoopWhile:
		res, err = runWhile(ctx, spec, body, baseScope, deps)
	case config.LoopRepeatUntil:
		res, err = runRepeatUntil(ctx, spec, body, baseScope, deps)
	default:
		return Result{}, enginerr.New(enginerr.KindValidation, "Run", "unknown loop type "+string(spec.Type), nil)
	}

	if err != nil && ctx.Err() == context.DeadlineExceeded {
		res.Status = "timeout"
		return res, enginerr.New(enginerr.KindLoopTimeout, "Run", "loop "+taskID+" exceeded timeout_secs", err)
	}
	if err != nil {
		return res, err
	}
	if res.Status == "" {
		res.Status = "completed"
	}
	if spec.CollectResults && spec.ResultKey != "" {
		if vals, ok := deps.Collected.Collected(spec.ResultKey); ok {
			res.Results = vals
		}
	}
	return res, nil
}

func bindIterator(base variables.Scope, name string, value variables.Value, index, total int) variables.Scope {
	s := base
	s.Iterator = map[string]variables.Value{}
	for k, v := range base.Iterator {
		s.Iterator[k] = v
	}
	if name != "" {
		s.Iterator[name] = value
	}
	s.LoopIndex = index
	s.LoopTotal = total
	s.HasLoop = true
	return s
}

func runForEach(ctx context.Context, spec *config.LoopSpec, body Body, base variables.Scope, deps Deps) (Result, error) {
	fe := spec.ForEach
	items, err := Materialize(ctx, fe.Collection, deps.StateReader, deps.HTTPClient)
	if err != nil {
		return Result{}, err
	}
	return runIndexed(ctx, spec, len(items), fe.Parallel, fe.MaxParallel, func(i int) variables.Scope {
		return bindIterator(base, fe.IteratorName, items[i], i, len(items))
	}, body, deps)
}

func runRepeat(ctx context.Context, spec *config.LoopSpec, body Body, base variables.Scope, deps Deps) (Result, error) {
	rp := spec.Repeat
	if rp.Count > config.MaxLoopIterations {
		return Result{}, enginerr.New(enginerr.KindLoopBoundsExceeded, "runRepeat",
			"repeat count exceeds hard limit", nil)
	}
	return runIndexed(ctx, spec, rp.Count, rp.Parallel, rp.MaxParallel, func(i int) variables.Scope {
		return bindIterator(base, rp.IteratorName, variables.Number(float64(i)), i, rp.Count)
	}, body, deps)
}

// runIndexed drives the shared ForEach/Repeat iteration shape: produce
// indices 0..n-1, evaluate continue_condition before running (skip if
// true), run the body, evaluate break_condition after running (exit if
// true), checkpoint every checkpoint_interval iterations.
func runIndexed(ctx context.Context, spec *config.LoopSpec, n int, parallel bool, maxParallel int, scopeFor func(int) variables.Scope, body Body, deps Deps) (Result, error) {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if maxParallel > config.MaxLoopParallelism {
		maxParallel = config.MaxLoopParallelism
	}
	interval := spec.CheckpointInterval
	if interval <= 0 {
		interval = 1
	}

	var (
		mu        sync.Mutex
		completed int
		brokeAt   = -1
	)

	checkpointIfDue := func(ctx context.Context) error {
		mu.Lock()
		completed++
		due := completed%interval == 0
		mu.Unlock()
		if due && deps.Checkpoint != nil {
			return deps.Checkpoint(ctx)
		}
		return nil
	}

	runOne := func(ctx context.Context, i int) error {
		if spec.ResultKey != "" && deps.Collected.CollectedIndex(spec.ResultKey, i) {
			return nil // already collected on a prior run; skip on resume
		}
		scope := scopeFor(i)

		if spec.ContinueCondition != nil {
			skip, err := deps.Conditions.Eval(spec.ContinueCondition, scope)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		val, err := body(ctx, scope)
		if err != nil {
			return err
		}
		if spec.CollectResults && spec.ResultKey != "" {
			deps.Collected.PutCollected(spec.ResultKey, i, val)
		}

		if spec.BreakCondition != nil {
			brk, err := deps.Conditions.Eval(spec.BreakCondition, scope)
			if err != nil {
				return err
			}
			if brk {
				mu.Lock()
				if brokeAt < 0 || i < brokeAt {
					brokeAt = i
				}
				mu.Unlock()
			}
		}
		return checkpointIfDue(ctx)
	}

	if !parallel {
		for i := 0; i < n; i++ {
			mu.Lock()
			stop := brokeAt >= 0 && i > brokeAt
			mu.Unlock()
			if stop {
				break
			}
			if err := runOne(ctx, i); err != nil {
				return Result{IterationsRun: i}, err
			}
		}
		return Result{IterationsRun: n}, nil
	}

	sem := semaphore.NewWeighted(int64(maxParallel))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		mu.Lock()
		stop := brokeAt >= 0
		mu.Unlock()
		if stop {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return runOne(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return Result{IterationsRun: n}, err
	}
	return Result{IterationsRun: n}, nil
}

func runWhile(ctx context.Context, spec *config.LoopSpec, body Body, base variables.Scope, deps Deps) (Result, error) {
	w := spec.While
	i := 0
	for {
		if i >= w.MaxIterations {
			return Result{IterationsRun: i}, enginerr.New(enginerr.KindLoopBoundsExceeded, "runWhile",
				"while loop exceeded max_iterations", nil)
		}
		if ctx.Err() != nil {
			return Result{IterationsRun: i}, ctx.Err()
		}
		scope := bindIterator(base, w.IterationVar, variables.Number(float64(i)), i, 0)
		ok, err := deps.Conditions.Eval(w.Condition, scope)
		if err != nil {
			return Result{IterationsRun: i}, err
		}
		if !ok {
			return Result{IterationsRun: i}, nil
		}
		if _, err := body(ctx, scope); err != nil {
			return Result{IterationsRun: i}, err
		}
		i++
		if deps.Checkpoint != nil && spec.CheckpointInterval > 0 && i%spec.CheckpointInterval == 0 {
			if err := deps.Checkpoint(ctx); err != nil {
				return Result{IterationsRun: i}, err
			}
		}
		if w.DelayBetween > 0 {
			if err := sleep(ctx, w.DelayBetween); err != nil {
				return Result{IterationsRun: i}, err
			}
		}
	}
}

func runRepeatUntil(ctx context.Context, spec *config.LoopSpec, body Body, base variables.Scope, deps Deps) (Result, error) {
	ru := spec.RepeatUntil
	i := 0
	for {
		if i >= ru.MaxIterations {
			return Result{IterationsRun: i}, enginerr.New(enginerr.KindLoopBoundsExceeded, "runRepeatUntil",
				"repeat_until loop exceeded max_iterations", nil)
		}
		if ctx.Err() != nil {
			return Result{IterationsRun: i}, ctx.Err()
		}
		scope := bindIterator(base, ru.IterationVar, variables.Number(float64(i)), i, 0)
		if _, err := body(ctx, scope); err != nil {
			return Result{IterationsRun: i}, err
		}
		i++
		if deps.Checkpoint != nil && spec.CheckpointInterval > 0 && i%spec.CheckpointInterval == 0 {
			if err := deps.Checkpoint(ctx); err != nil {
				return Result{IterationsRun: i}, err
			}
		}
		if i >= ru.MinIterations {
			ok, err := deps.Conditions.Eval(ru.Condition, scope)
			if err != nil {
				return Result{IterationsRun: i}, err
			}
			if ok {
				return Result{IterationsRun: i}, nil
			}
		}
		if ru.DelayBetween > 0 {
			if err := sleep(ctx, ru.DelayBetween); err != nil {
				return Result{IterationsRun: i}, err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
