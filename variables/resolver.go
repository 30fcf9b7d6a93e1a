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

package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kadirpekel/hector/enginerr"
)

// StateReader is the read surface the Variable Resolver needs from the
// State Store (C2). It is satisfied structurally by state.Store so this
// package never imports it, avoiding a dependency cycle.
type StateReader interface {
	WorkflowInput(name string) (Value, bool)
	TaskStatus(taskID string) (string, bool)
	TaskOutput(taskID, name string) (Value, bool)
	GroupOutput(groupID, name string) (Value, bool)
	State(key string) (Value, bool)
	Metadata(key string) (Value, bool)
	Collected(resultKey string) ([]Value, bool)
}

// Scope carries the per-resolution-call bindings that make Resolve a pure
// function of (StateReader snapshot, Scope): the current task/group a
// bare reference should be interpreted relative to, and the current
// iterator/loop bindings. A Scope is cheap to construct per loop
// iteration, which keeps concurrent iterations from racing on shared
// mutable binding state.
type Scope struct {
	TaskID    string
	GroupID   string
	Iterator  map[string]Value
	LoopIndex int
	LoopTotal int
	HasLoop   bool
}

// Resolver interpolates "${scope.path}" references against a StateReader.
type Resolver struct {
	store StateReader
}

// NewResolver creates a Resolver bound to a StateReader.
func NewResolver(store StateReader) *Resolver {
	return &Resolver{store: store}
}

var tokenPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate scans s for "${...}" tokens and substitutes their stringified
// values. A token whose resolved value is an Array or Object is rejected
// with an enginerr.KindValidation error; no separate type-mismatch error
// kind is returned. Escaping is not supported.
func (r *Resolver) Interpolate(s string, scope Scope) (string, error) {
	var firstErr error
	out := tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		if firstErr != nil {
			return tok
		}
		expr := tok[2 : len(tok)-1]
		val, err := r.Resolve(expr, scope)
		if err != nil {
			firstErr = err
			return tok
		}
		if val.Kind() == KindArray || val.Kind() == KindObject {
			firstErr = enginerr.New(enginerr.KindValidation, "Interpolate",
				fmt.Sprintf("cannot interpolate compound value %q into a string template", expr), nil)
			return tok
		}
		return val.Stringify()
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Resolve evaluates a single "scope.path" expression (without the
// surrounding "${" "}") and returns its Value. Resolution is lazy and pure:
// identical (store snapshot, scope, expr) always yields the same result.
func (r *Resolver) Resolve(expr string, scope Scope) (Value, error) {
	segments := strings.Split(expr, ".")
	if len(segments) == 0 || segments[0] == "" {
		return Null(), enginerr.New(enginerr.KindValidation, "Resolve", "empty variable expression", nil)
	}

	head := segments[0]
	rest := segments[1:]

	switch head {
	case "workflow":
		if len(rest) == 0 {
			return Null(), unknownPath(expr)
		}
		v, ok := r.store.WorkflowInput(rest[0])
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[1:], expr)

	case "task":
		if len(rest) < 2 {
			return Null(), unknownPath(expr)
		}
		taskID, name := rest[0], rest[1]
		if name == "status" {
			st, ok := r.store.TaskStatus(taskID)
			if !ok {
				return Null(), unknownPath(expr)
			}
			return String(st), nil
		}
		v, ok := r.store.TaskOutput(taskID, name)
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[2:], expr)

	case "group":
		if len(rest) < 2 {
			return Null(), unknownPath(expr)
		}
		groupID, name := rest[0], rest[1]
		v, ok := r.store.GroupOutput(groupID, name)
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[2:], expr)

	case "state":
		if len(rest) == 0 {
			return Null(), unknownPath(expr)
		}
		v, ok := r.store.State(rest[0])
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[1:], expr)

	case "metadata":
		if len(rest) == 0 {
			return Null(), unknownPath(expr)
		}
		v, ok := r.store.Metadata(rest[0])
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[1:], expr)

	case "secret":
		// Secrets are never readable from the state store; a real build
		// wires a SecretProvider here. The core has none to consult.
		return Null(), enginerr.New(enginerr.KindValidation, "Resolve", "secret scope has no provider configured", nil)

	case "iterator":
		if len(rest) == 0 {
			return Null(), unknownPath(expr)
		}
		if rest[0] == "index" && scope.HasLoop {
			return Number(float64(scope.LoopIndex)), nil
		}
		v, ok := scope.Iterator[rest[0]]
		if !ok {
			return Null(), unknownPath(expr)
		}
		return index(v, rest[1:], expr)

	case "loop":
		if len(rest) == 0 || !scope.HasLoop {
			return Null(), unknownPath(expr)
		}
		switch rest[0] {
		case "index":
			return Number(float64(scope.LoopIndex)), nil
		case "total":
			return Number(float64(scope.LoopTotal)), nil
		}
		return Null(), unknownPath(expr)

	default:
		return r.resolveBare(expr, scope)
	}
}

// resolveBare handles an un-scoped reference. Resolution order: current
// iterator binding -> current task scope -> current group scope ->
// workflow scope; first hit wins (spec.md §4.3).
func (r *Resolver) resolveBare(expr string, scope Scope) (Value, error) {
	segments := strings.Split(expr, ".")
	name := segments[0]
	rest := segments[1:]

	if v, ok := scope.Iterator[name]; ok {
		return index(v, rest, expr)
	}
	if scope.TaskID != "" {
		if v, ok := r.store.TaskOutput(scope.TaskID, name); ok {
			return index(v, rest, expr)
		}
	}
	if scope.GroupID != "" {
		if v, ok := r.store.GroupOutput(scope.GroupID, name); ok {
			return index(v, rest, expr)
		}
	}
	if v, ok := r.store.WorkflowInput(name); ok {
		return index(v, rest, expr)
	}
	return Null(), enginerr.New(enginerr.KindValidation, "Resolve", fmt.Sprintf("unknown scope or unresolvable bare reference %q", expr), nil)
}

// index walks the remaining dotted/integer path segments into v.
func index(v Value, segments []string, expr string) (Value, error) {
	cur := v
	for _, seg := range segments {
		if i, err := strconv.Atoi(seg); err == nil {
			arr, ok := cur.AsArray()
			if !ok || i < 0 || i >= len(arr) {
				return Null(), unknownPath(expr)
			}
			cur = arr[i]
			continue
		}
		obj, ok := cur.AsObject()
		if !ok {
			return Null(), enginerr.New(enginerr.KindValidation, "Resolve",
				fmt.Sprintf("cannot index non-object value with field %q in %q", seg, expr), nil)
		}
		next, ok := obj[seg]
		if !ok {
			return Null(), unknownPath(expr)
		}
		cur = next
	}
	return cur, nil
}

func unknownPath(expr string) error {
	return enginerr.New(enginerr.KindValidation, "Resolve", fmt.Sprintf("unknown path %q", expr), nil)
}
