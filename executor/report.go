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
	hctx "github.com/kadirpekel/hector/context"
	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
)

// Report is the Executor's terminal result (spec.md §6's FinalReport):
// overall status, per-status task counts, per-failed-task messages,
// collected loop results, and Context Engine usage metrics.
type Report struct {
	OverallStatus string
	Completed     int
	Failed        int
	Skipped       int
	Cancelled     int
	TaskErrors    map[string]string
	Collected     map[string][]variables.Value
	Context       hctx.Metrics
}

func (e *Executor) buildReport() *Report {
	rep := &Report{
		TaskErrors: map[string]string{},
		Collected:  map[string][]variables.Value{},
	}

	for _, id := range e.model.TaskIDs() {
		rec, ok := e.store.TaskRecord(id)
		if !ok {
			continue
		}
		switch rec.Status {
		case state.TaskCompleted:
			rep.Completed++
		case state.TaskFailed, state.TaskTimeout:
			rep.Failed++
			rep.TaskErrors[id] = rec.LastError
		case state.TaskSkipped:
			rep.Skipped++
		case state.TaskCancelled:
			rep.Cancelled++
		}

		t, ok := e.model.Task(id)
		if ok && t.Loop != nil && t.Loop.ResultKey != "" {
			if vals, ok := e.store.Collected(t.Loop.ResultKey); ok {
				rep.Collected[t.Loop.ResultKey] = vals
			}
		}
	}

	var anyGroupFailed bool
	for _, id := range e.model.GroupIDs() {
		rec, ok := e.store.GroupRecord(id)
		if !ok {
			continue
		}
		if rec.Status == state.GroupFailed || rec.Status == state.GroupPartialFailure || rec.Status == state.GroupTimeout {
			anyGroupFailed = true
		}
	}

	if rep.Failed > 0 || anyGroupFailed {
		rep.OverallStatus = "failed"
	} else {
		rep.OverallStatus = "completed"
	}
	rep.Context = e.ctxEngine.Metrics()
	return rep
}
