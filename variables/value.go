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

// Package variables implements the Variable Resolver (spec.md §4.3, C3): a
// pure, lazy interpreter for "${scope.path}" references over workflow
// inputs, group/task outputs, state, metadata, secrets, and iterator
// bindings.
package variables

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the tags of the Value sum type (spec.md §9 design note:
// "define a single Value sum type... restrict type coercions explicitly").
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is the dynamically-typed but statically-tagged value the resolver
// produces and consumes.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string
	arr    []Value
	obj    map[string]Value
}

func Null() Value                    { return Value{kind: KindNull} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Number(n float64) Value         { return Value{kind: KindNumber, n: n} }
func String(s string) Value          { return Value{kind: KindString, s: s} }
func Array(items []Value) Value      { return Value{kind: KindArray, arr: items} }
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool, AsNumber, AsString, AsArray, AsObject return the underlying value
// and whether v actually holds that kind.
func (v Value) AsBool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)        { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) AsArray() ([]Value, bool)         { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// FromNative converts a Go native value (as produced by encoding/json or
// gopkg.in/yaml.v3 decode into interface{}) into a Value.
func FromNative(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromNative(it)
		}
		return Array(items)
	case []Value:
		return Array(t)
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, it := range t {
			fields[k] = FromNative(it)
		}
		return Object(fields)
	case map[interface{}]interface{}:
		fields := make(map[string]Value, len(t))
		for k, it := range t {
			fields[fmt.Sprintf("%v", k)] = FromNative(it)
		}
		return Object(fields)
	case map[string]Value:
		return Object(t)
	case Value:
		return t
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToNative converts a Value back into a plain Go value (for JSON
// marshaling, checkpoint snapshots, etc).
func (v Value) ToNative() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, it := range v.arr {
			out[i] = it.ToNative()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.obj))
		for k, it := range v.obj {
			out[k] = it.ToNative()
		}
		return out
	}
	return nil
}

// Stringify renders a Value as it should appear inside an interpolated
// string template. Compound kinds (Array/Object) are rejected by the
// caller (string interpolation only stringifies primitives); Stringify is
// still defined for all kinds so callers that DO want object rendering
// (e.g. debug logging) can opt in explicitly.
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		if v.n == float64(int64(v.n)) {
			return strconv.FormatInt(int64(v.n), 10)
		}
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, it := range v.arr {
			parts[i] = it.Stringify()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.obj[k].Stringify()
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return ""
}

// Equal reports deep equality between two Values, used by condition
// evaluation's state_equals.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Allow number/string coercion-free strict comparison only; a
		// string "1" never equals number 1.
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
