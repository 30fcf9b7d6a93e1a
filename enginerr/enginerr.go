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

// Package enginerr is the shared typed-error taxonomy for the workflow
// engine (spec.md §7). Every component wraps its failures in *Error so
// callers across package boundaries can use errors.Is/errors.As against a
// stable set of Kind values instead of string-matching messages.
package enginerr

import "fmt"

// Kind enumerates the error taxonomy of spec.md §7.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindDependencyViolation Kind = "dependency_violation"
	KindCondition          Kind = "condition_error"
	KindLoopBoundsExceeded Kind = "loop_bounds_exceeded"
	KindCollectionTooLarge Kind = "collection_too_large"
	KindLoopTimeout        Kind = "loop_timeout"
	KindTaskTimeout        Kind = "task_timeout"
	KindGroupTimeout       Kind = "group_timeout"
	KindAgentError         Kind = "agent_error"
	KindAgentNonZeroExit   Kind = "agent_non_zero_exit"
	KindDoDUnmet           Kind = "dod_unmet"
	KindCancelRequested    Kind = "cancel_requested"
	KindCheckpointError    Kind = "checkpoint_error"
	KindModelMismatch      Kind = "model_mismatch"
	KindIO                 Kind = "io_error"
	KindHTTP               Kind = "http_error"
)

// Error is the engine-wide typed error wrapper.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, enginerr.New(kind, "", "", nil)) style checks
// by comparing Kind, matching the sentinel-comparison idiom used elsewhere
// in this corpus's typed errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error.
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Wrap is a convenience for wrapping an existing error under a Kind/Op.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}
