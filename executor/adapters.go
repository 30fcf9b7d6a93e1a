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

import "github.com/kadirpekel/hector/workflow"

// modelAgentLookup adapts *workflow.Model to context.AgentLookup, reading
// each task's configured agent id for the Context Engine's "shared agent
// id" relevance rule (spec.md §4.6).
type modelAgentLookup struct {
	m *workflow.Model
}

func (a modelAgentLookup) AgentID(taskID string) (string, bool) {
	t, ok := a.m.Task(taskID)
	if !ok || t.Agent == "" {
		return "", false
	}
	return t.Agent, true
}
