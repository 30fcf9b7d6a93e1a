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

package config

import (
	"fmt"
)

// SetDefaults implements ConfigInterface for Workflow.
func (w *Workflow) SetDefaults() {
	w.Limits.SetDefaults()
	for id, t := range w.Tasks {
		if t.Limits != nil {
			t.Limits.SetDefaults()
		}
		if t.Context != nil {
			t.Context.SetDefaults()
		}
		w.Tasks[id] = t
	}
	for id, g := range w.Groups {
		if g.Mode == "" {
			g.Mode = ModeParallel
		}
		if g.OnError == "" {
			g.OnError = PolicyStop
		}
		w.Groups[id] = g
	}
}

// Validate implements ConfigInterface for Workflow. It performs the
// structural checks spec.md §4.1 assigns to the Model constructor; deeper
// graph/cycle/reference validation lives in workflow.NewModel because it
// needs the fully-indexed Id arena.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow: name is required")
	}
	if len(w.Tasks) == 0 {
		return fmt.Errorf("workflow: at least one task is required")
	}
	for id, t := range w.Tasks {
		if t.ID != "" && t.ID != id {
			return fmt.Errorf("task %q: id field %q does not match map key", id, t.ID)
		}
		for _, d := range t.DoD {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("task %q: %w", id, err)
			}
		}
		if t.Loop != nil {
			if err := validateLoopBounds(t.Loop); err != nil {
				return fmt.Errorf("task %q: %w", id, err)
			}
		}
	}
	for id, g := range w.Groups {
		if g.ID != "" && g.ID != id {
			return fmt.Errorf("group %q: id field %q does not match map key", id, g.ID)
		}
		switch g.Mode {
		case "", ModeSequential, ModeParallel, ModeAuto:
		default:
			return fmt.Errorf("group %q: unknown mode %q", id, g.Mode)
		}
		switch g.OnError {
		case "", PolicyStop, PolicyContinue, PolicyRollback:
		default:
			return fmt.Errorf("group %q: unknown on_error policy %q", id, g.OnError)
		}
	}
	return nil
}

func validateLoopBounds(l *LoopSpec) error {
	switch l.Type {
	case LoopForEach:
		if l.ForEach == nil {
			return fmt.Errorf("for_each loop missing for_each spec")
		}
		if l.ForEach.MaxParallel > MaxLoopParallelism {
			return fmt.Errorf("max_parallel %d exceeds hard limit %d", l.ForEach.MaxParallel, MaxLoopParallelism)
		}
		if len(l.ForEach.Collection.Inline) > MaxCollectionSize {
			return fmt.Errorf("inline collection size %d exceeds hard limit %d", len(l.ForEach.Collection.Inline), MaxCollectionSize)
		}
	case LoopWhile:
		if l.While == nil {
			return fmt.Errorf("while loop missing while spec")
		}
		if l.While.MaxIterations <= 0 {
			return fmt.Errorf("while loop requires max_iterations > 0")
		}
		if l.While.MaxIterations > MaxLoopIterations {
			return fmt.Errorf("max_iterations %d exceeds hard limit %d", l.While.MaxIterations, MaxLoopIterations)
		}
	case LoopRepeatUntil:
		if l.RepeatUntil == nil {
			return fmt.Errorf("repeat_until loop missing repeat_until spec")
		}
		if l.RepeatUntil.MaxIterations <= 0 {
			return fmt.Errorf("repeat_until loop requires max_iterations > 0")
		}
		if l.RepeatUntil.MaxIterations > MaxLoopIterations {
			return fmt.Errorf("max_iterations %d exceeds hard limit %d", l.RepeatUntil.MaxIterations, MaxLoopIterations)
		}
		if l.RepeatUntil.MinIterations > l.RepeatUntil.MaxIterations {
			return fmt.Errorf("min_iterations %d exceeds max_iterations %d", l.RepeatUntil.MinIterations, l.RepeatUntil.MaxIterations)
		}
	case LoopRepeat:
		if l.Repeat == nil {
			return fmt.Errorf("repeat loop missing repeat spec")
		}
		if l.Repeat.Count > MaxLoopIterations {
			return fmt.Errorf("count %d exceeds hard limit %d", l.Repeat.Count, MaxLoopIterations)
		}
		if l.Repeat.MaxParallel > MaxLoopParallelism {
			return fmt.Errorf("max_parallel %d exceeds hard limit %d", l.Repeat.MaxParallel, MaxLoopParallelism)
		}
	default:
		return fmt.Errorf("unknown loop type %q", l.Type)
	}
	return nil
}
