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

package state

import (
	"encoding/json"
	"time"

	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/variables"
)

// snapshotTaskRecord / snapshotGroupRecord mirror TaskRecord/GroupRecord
// but with variables.Value swapped for its ToNative() form, since Value's
// unexported fields don't round-trip through encoding/json directly.
type snapshotTaskRecord struct {
	Status       TaskStatus             `json:"status"`
	Attempt      int                    `json:"attempt"`
	LastError    string                 `json:"last_error,omitempty"`
	IterationIdx int                    `json:"iteration_idx,omitempty"`
	HasIteration bool                   `json:"has_iteration,omitempty"`
	Outputs      map[string]interface{} `json:"outputs,omitempty"`
	GroupID      string                 `json:"group_id,omitempty"`
}

type snapshotGroupRecord struct {
	Status    GroupStatus            `json:"status"`
	Completed int                    `json:"completed"`
	Failed    int                    `json:"failed"`
	Skipped   int                    `json:"skipped"`
	Cancelled int                    `json:"cancelled"`
	Outputs   map[string]interface{} `json:"outputs,omitempty"`
}

type snapshotOutput struct {
	Kind      string `json:"kind"`
	Bytes     []byte `json:"bytes"`
	Truncated bool   `json:"truncated"`
}

// Snapshot is the deterministic, JSON-serializable view of a Store's full
// contents (spec.md §4.2 snapshot/restore, §4.10 persisted state layout).
// It intentionally omits timestamps (StartedAt/EndedAt/CapturedAt) from
// the round-trip contract: spec.md's Testable Property #3 only requires
// restore(snapshot(s)) to reproduce s's value domain, and wall-clock
// instants are not part of that domain for equality purposes.
type Snapshot struct {
	Inputs    map[string]interface{}            `json:"inputs"`
	Tasks     map[string]snapshotTaskRecord      `json:"tasks"`
	Groups    map[string]snapshotGroupRecord     `json:"groups"`
	Outputs   map[string]map[string]snapshotOutput `json:"outputs"`
	Metadata  map[string]interface{}            `json:"metadata"`
	State     map[string]interface{}            `json:"state"`
	Collected map[string]map[int]interface{}    `json:"collected"`
}

// Snapshot returns a deterministic point-in-time copy of s's contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Inputs:    toNativeMap(s.inputs),
		Tasks:     make(map[string]snapshotTaskRecord, len(s.tasks)),
		Groups:    make(map[string]snapshotGroupRecord, len(s.groups)),
		Outputs:   make(map[string]map[string]snapshotOutput, len(s.outputs)),
		Metadata:  toNativeMap(s.metadata),
		State:     toNativeMap(s.kv),
		Collected: make(map[string]map[int]interface{}, len(s.collected)),
	}
	for id, rec := range s.tasks {
		snap.Tasks[id] = snapshotTaskRecord{
			Status: rec.Status, Attempt: rec.Attempt, LastError: rec.LastError,
			IterationIdx: rec.IterationIdx, HasIteration: rec.HasIteration,
			Outputs: toNativeMap(rec.Outputs), GroupID: rec.GroupID,
		}
	}
	for id, rec := range s.groups {
		snap.Groups[id] = snapshotGroupRecord{
			Status: rec.Status, Completed: rec.Completed, Failed: rec.Failed,
			Skipped: rec.Skipped, Cancelled: rec.Cancelled, Outputs: toNativeMap(rec.Outputs),
		}
	}
	for taskID, byKind := range s.outputs {
		m := make(map[string]snapshotOutput, len(byKind))
		for kind, o := range byKind {
			m[kind] = snapshotOutput{Kind: o.Kind, Bytes: append([]byte{}, o.Bytes...), Truncated: o.Truncated}
		}
		snap.Outputs[taskID] = m
	}
	for key, byIdx := range s.collected {
		m := make(map[int]interface{}, len(byIdx))
		for idx, v := range byIdx {
			m[idx] = v.ToNative()
		}
		snap.Collected[key] = m
	}
	return snap
}

// Restore replaces s's contents with snap's. It is the inverse of
// Snapshot modulo the timestamps Snapshot intentionally drops.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputs = fromNativeMap(snap.Inputs)
	s.tasks = make(map[string]*TaskRecord, len(snap.Tasks))
	s.groups = make(map[string]*GroupRecord, len(snap.Groups))
	s.outputs = make(map[string]map[string]*CapturedOutput, len(snap.Outputs))
	s.metadata = fromNativeMap(snap.Metadata)
	s.kv = fromNativeMap(snap.State)
	s.collected = make(map[string]map[int]variables.Value, len(snap.Collected))
	s.lastRead = make(map[string]time.Time)

	for id, rec := range snap.Tasks {
		s.tasks[id] = &TaskRecord{
			Status: rec.Status, Attempt: rec.Attempt, LastError: rec.LastError,
			IterationIdx: rec.IterationIdx, HasIteration: rec.HasIteration,
			Outputs: fromNativeMap(rec.Outputs), GroupID: rec.GroupID,
		}
	}
	for id, rec := range snap.Groups {
		s.groups[id] = &GroupRecord{
			Status: rec.Status, Completed: rec.Completed, Failed: rec.Failed,
			Skipped: rec.Skipped, Cancelled: rec.Cancelled, Outputs: fromNativeMap(rec.Outputs),
		}
	}
	for taskID, byKind := range snap.Outputs {
		m := make(map[string]*CapturedOutput, len(byKind))
		for kind, o := range byKind {
			m[kind] = &CapturedOutput{Kind: o.Kind, Bytes: append([]byte{}, o.Bytes...), Truncated: o.Truncated}
		}
		s.outputs[taskID] = m
	}
	for key, byIdx := range snap.Collected {
		m := make(map[int]variables.Value, len(byIdx))
		for idx, v := range byIdx {
			m[idx] = variables.FromNative(v)
		}
		s.collected[key] = m
	}
}

// MarshalJSON is the encoding used when the checkpoint package embeds a
// Snapshot inside its versioned blob; UnmarshalSnapshot decodes a
// standalone Snapshot.
func (snap Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(alias(snap))
}

func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, enginerr.Wrap(enginerr.KindCheckpointError, "UnmarshalSnapshot", err)
	}
	return snap, nil
}

func toNativeMap(m map[string]variables.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.ToNative()
	}
	return out
}

func fromNativeMap(m map[string]interface{}) map[string]variables.Value {
	out := make(map[string]variables.Value, len(m))
	for k, v := range m {
		out[k] = variables.FromNative(v)
	}
	return out
}
