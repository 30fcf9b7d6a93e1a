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

package group

import (
	"os"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/variables"
)

// OutputReader is the read surface EvalOutput needs from the State Store.
type OutputReader interface {
	TaskOutput(taskID, name string) (variables.Value, bool)
	State(key string) (variables.Value, bool)
}

// EvalOutput materializes one named output entry (spec.md §3.2's Output
// {file|state|task_output} source spec) against the final state of a run.
// Shared between task-level `outputs` and group-level `outputs`, since both
// use the identical config.Output shape.
func EvalOutput(o config.Output, store OutputReader) (variables.Value, error) {
	switch o.Source {
	case "task_output":
		v, ok := store.TaskOutput(o.Task, o.Key)
		if !ok {
			return variables.Null(), enginerr.New(enginerr.KindValidation, "EvalOutput",
				"task_output source references unknown task/key "+o.Task+"/"+o.Key, nil)
		}
		return v, nil

	case "state":
		v, ok := store.State(o.Key)
		if !ok {
			return variables.Null(), enginerr.New(enginerr.KindValidation, "EvalOutput",
				"state source references unknown key "+o.Key, nil)
		}
		return v, nil

	case "file":
		data, err := os.ReadFile(o.Path)
		if err != nil {
			return variables.Null(), enginerr.Wrap(enginerr.KindIO, "EvalOutput", err)
		}
		return variables.String(string(data)), nil

	default:
		return variables.Null(), enginerr.New(enginerr.KindValidation, "EvalOutput", "unknown output source "+o.Source, nil)
	}
}

// captureOutputs evaluates every entry in outputs and writes it back through
// put. A failing entry is recorded but does not stop the remaining ones from
// being attempted, so partial output capture survives one bad reference.
func captureOutputs(outputs map[string]config.Output, store OutputReader, put func(name string, v variables.Value)) error {
	var firstErr error
	for name, spec := range outputs {
		v, err := EvalOutput(spec, store)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		put(name, v)
	}
	return firstErr
}
