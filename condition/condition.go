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

// Package condition implements the Condition Evaluator (spec.md §4.4, C4):
// pure, total evaluation of condition trees over a State Store snapshot and
// an iterator binding.
package condition

import (
	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/variables"
)

// Evaluator evaluates config.Condition trees against a StateReader.
type Evaluator struct {
	store variables.StateReader
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(store variables.StateReader) *Evaluator {
	return &Evaluator{store: store}
}

// Eval evaluates cond in the given scope. A nil cond is treated as Always,
// matching "optional condition tree" in spec.md §3.1.
func (e *Evaluator) Eval(cond *config.Condition, scope variables.Scope) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Type {
	case config.CondAlways:
		return true, nil
	case config.CondNever:
		return false, nil

	case config.CondTaskStatus:
		status, ok := e.store.TaskStatus(cond.Task)
		if !ok {
			return false, enginerr.New(enginerr.KindCondition, "Eval",
				"task_status references unknown task "+cond.Task, nil)
		}
		return status == cond.Status, nil

	case config.CondStateEquals:
		v, ok := e.store.State(cond.Key)
		if !ok {
			return false, nil
		}
		return variables.Equal(v, variables.FromNative(cond.Value)), nil

	case config.CondStateExists:
		_, ok := e.store.State(cond.Key)
		return ok, nil

	case config.CondAnd:
		for _, c := range cond.Children {
			ok, err := e.Eval(c, scope)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil // short-circuit
			}
		}
		return true, nil

	case config.CondOr:
		for _, c := range cond.Children {
			ok, err := e.Eval(c, scope)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil // short-circuit
			}
		}
		return false, nil

	case config.CondNot:
		ok, err := e.Eval(cond.Child, scope)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, enginerr.New(enginerr.KindCondition, "Eval", "unknown condition type "+cond.Type, nil)
	}
}
