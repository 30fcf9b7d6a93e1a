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

// Package agentrunner defines the external capability contract of spec.md
// §6: the boundary between the core engine and whatever actually invokes an
// agent/tool to carry out a task. The engine depends only on the Runner
// interface; it never assumes a process model, an LLM SDK, or a transport.
package agentrunner

import (
	"context"
	"sync"
	"time"

	"github.com/kadirpekel/hector/enginerr"
)

// Descriptor is the opaque per-task agent reference the workflow author
// configured (spec.md calls this `agent_descriptor`); the core never
// inspects its contents, only passes it through to Runner.Run.
type Descriptor = interface{}

// Result is what a successful Run returns.
type Result struct {
	Stdout            []byte
	Stderr            []byte
	Exit              int
	StructuredOutputs map[string]interface{}
}

// AgentError is returned by Run for a failure the external agent itself
// reported (as opposed to a transport/context error), matching spec.md
// §7's AgentError/AgentNonZeroExit taxonomy.
type AgentError struct {
	Op      string
	Message string
	Exit    int
	NonZero bool
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *AgentError) Unwrap() error { return e.Err }

// Kind reports the enginerr.Kind this AgentError should be surfaced as.
func (e *AgentError) Kind() enginerr.Kind {
	if e.NonZero {
		return enginerr.KindAgentNonZeroExit
	}
	return enginerr.KindAgentError
}

// CancelToken lets a Runner implementation observe a cancellation request
// and honor it within a bounded grace period (spec.md §6's contract:
// "must honor cancellation within a bounded grace period; must not mutate
// workflow state directly").
type CancelToken struct {
	mu       sync.Mutex
	ch       chan struct{}
	canceled bool
}

// NewCancelToken returns a token in the not-yet-canceled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel requests cancellation. Idempotent (spec.md §5: "Cancellation is
// idempotent").
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	t.canceled = true
	close(t.ch)
}

// Done returns a channel closed once Cancel has been called.
func (t *CancelToken) Done() <-chan struct{} { return t.ch }

// Canceled reports whether Cancel has been called.
func (t *CancelToken) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Runner is the external capability the Executor dispatches leaf-task
// execution to. Implementations live entirely outside the core (a local
// process, an RPC call, an in-process SDK invocation); the core only ever
// sees this interface.
type Runner interface {
	Run(ctx context.Context, prompt string, taskContext []byte, agent Descriptor, timeout time.Duration, cancel *CancelToken) (Result, error)
}

// Func adapts a plain function to Runner, for tests and simple host
// integrations that don't need a struct.
type Func func(ctx context.Context, prompt string, taskContext []byte, agent Descriptor, timeout time.Duration, cancel *CancelToken) (Result, error)

func (f Func) Run(ctx context.Context, prompt string, taskContext []byte, agent Descriptor, timeout time.Duration, cancel *CancelToken) (Result, error) {
	return f(ctx, prompt, taskContext, agent, timeout, cancel)
}

// WithTimeout wraps ctx with timeout (if positive) and arranges for
// cancel.Cancel to be observed as context cancellation too, so a Runner
// implementation written against context.Context alone still honors an
// externally-requested CancelToken.
func WithTimeout(ctx context.Context, timeout time.Duration, cancel *CancelToken) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		ctx, cancelFn := context.WithTimeout(ctx, timeout)
		if cancel != nil {
			go func() {
				select {
				case <-cancel.Done():
					cancelFn()
				case <-ctx.Done():
				}
			}()
		}
		return ctx, cancelFn
	}
	ctx, cancelFn := context.WithCancel(ctx)
	if cancel != nil {
		go func() {
			select {
			case <-cancel.Done():
				cancelFn()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, cancelFn
}
