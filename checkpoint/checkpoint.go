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

// Package checkpoint implements Checkpoint & Resume (spec.md §4.10, C10): a
// versioned snapshot of the State Store keyed to the Model it was taken
// against, and the resume rules that decide which tasks replay from the
// snapshot versus re-execute.
package checkpoint

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/logger"
	"github.com/kadirpekel/hector/state"
)

// FormatVersion is bumped whenever Blob's JSON shape changes incompatibly.
const FormatVersion = 1

// Blob is the self-describing, version-tagged serialization of a run's
// State Store (spec.md §6 "Persisted state layout"). Ownership of the blob
// transfers to whatever Store persists it; the engine itself never assumes
// a storage medium.
type Blob struct {
	Version   int            `json:"version"`
	RunID     string         `json:"run_id"`
	ModelHash string         `json:"model_hash"`
	CreatedAt time.Time      `json:"created_at"`
	Snapshot  state.Snapshot `json:"snapshot"`
}

// New captures s's current contents into a Blob stamped against modelHash.
func New(runID, modelHash string, s *state.Store) Blob {
	if runID == "" {
		runID = uuid.NewString()
	}
	return Blob{
		Version:   FormatVersion,
		RunID:     runID,
		ModelHash: modelHash,
		CreatedAt: time.Now(),
		Snapshot:  s.Snapshot(),
	}
}

// Marshal serializes b to its wire form.
func (b Blob) Marshal() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindCheckpointError, "Blob.Marshal", err)
	}
	return data, nil
}

// Unmarshal parses a Blob previously produced by Marshal.
func Unmarshal(data []byte) (Blob, error) {
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return Blob{}, enginerr.Wrap(enginerr.KindCheckpointError, "Unmarshal", err)
	}
	if b.Version > FormatVersion {
		return Blob{}, enginerr.New(enginerr.KindCheckpointError, "Unmarshal",
			"checkpoint format version is newer than this build supports", nil)
	}
	return b, nil
}

// Resume rehydrates s from b, first verifying b was taken against the exact
// workflow identified by currentModelHash. A hash mismatch fails with
// ModelMismatch rather than silently restoring state the running Model
// disagrees with (spec.md §4.10).
func Resume(ctx context.Context, b Blob, currentModelHash string, s *state.Store) error {
	if b.ModelHash != currentModelHash {
		return enginerr.New(enginerr.KindModelMismatch, "Resume",
			"checkpoint model hash "+b.ModelHash+" does not match current workflow hash "+currentModelHash, nil)
	}
	s.Restore(b.Snapshot)
	ApplyResumeRules(s)
	logger.FromContext(ctx).Info("resumed from checkpoint", slog.String("run_id", b.RunID), slog.Time("captured_at", b.CreatedAt))
	return nil
}

// ApplyResumeRules implements spec.md §4.10's resume rules: completed and
// skipped tasks/groups are left alone (their outputs replay as-is); every
// other non-terminal status — most importantly `running`, which can only
// mean the process died mid-task — resets to pending so the Executor's
// ready-set computation picks it up again. Loop progress survives this
// untouched: CollectedIndex is keyed by result_key/index and is not part of
// TaskRecord's status field.
func ApplyResumeRules(s *state.Store) {
	s.ResetNonTerminal()
}
