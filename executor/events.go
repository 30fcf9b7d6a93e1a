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
	"time"

	"github.com/kadirpekel/hector/group"
)

// EventKind enumerates the Executor's notification surface (spec.md §6):
// TaskStarted, TaskCompleted, TaskFailed, GroupCompleted, WorkflowCompleted,
// WorkflowFailed.
type EventKind string

const (
	EventTaskStarted       EventKind = "task_started"
	EventTaskCompleted     EventKind = "task_completed"
	EventTaskFailed        EventKind = "task_failed"
	EventGroupCompleted    EventKind = "group_completed"
	EventWorkflowCompleted EventKind = "workflow_completed"
	EventWorkflowFailed    EventKind = "workflow_failed"
	EventRollback          EventKind = "rollback"
)

// Event is one notification-subsystem record. Message carries whatever
// minimal detail the kind calls for; delivery is fire-and-forget from the
// engine's perspective (spec.md §6).
type Event struct {
	Kind    EventKind
	ID      string
	Message string
	At      time.Time
}

// EventBus is a buffered, drop-oldest-never, fire-and-forget broadcast of
// Executor events to whatever host process is listening. When the buffer
// is full, a newly published event is dropped; the engine never blocks.
type EventBus struct {
	ch chan Event
}

// NewEventBus creates a bus with the given buffer size.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventBus{ch: make(chan Event, buffer)}
}

// Publish delivers e without blocking; a full channel drops the event
// rather than stall the control plane, matching spec.md §6's "fire and
// forget" delivery contract.
func (b *EventBus) Publish(e Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- e:
	default:
	}
}

// Events returns the read side of the bus for a host process to consume.
func (b *EventBus) Events() <-chan Event { return b.ch }

// rollbackAdapter forwards group.RollbackEvents onto the Executor's event
// bus, per DESIGN.md's note that the Executor is the natural place to
// adapt a group.RollbackSink onto the engine's one notification channel.
type rollbackAdapter struct {
	bus *EventBus
}

func (r rollbackAdapter) Rollback(event group.RollbackEvent) {
	r.bus.Publish(Event{Kind: EventRollback, ID: event.GroupID, Message: event.Reason, At: time.Now()})
}
