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

// Package config provides the raw, YAML-shaped representation of a workflow
// document. It is the pre-pass input format the DSL parser is assumed to
// already have validated at the syntax level (spec.md treats the parser as
// an external collaborator); config.Validate still runs structural checks
// because nothing downstream should trust unvalidated input, even input a
// prior stage claims is already validated.
package config

import (
	"fmt"
	"time"
)

// ============================================================================
// TOP-LEVEL WORKFLOW DOCUMENT
// ============================================================================

// Workflow is the raw representation of a workflow document as decoded from
// YAML. It becomes immutable once handed to workflow.NewModel.
type Workflow struct {
	Name         string                 `yaml:"name" mapstructure:"name"`
	Version      string                 `yaml:"version" mapstructure:"version"`
	Inputs       map[string]InputSpec   `yaml:"inputs,omitempty" mapstructure:"inputs"`
	Agents       map[string]AgentSpec   `yaml:"agents,omitempty" mapstructure:"agents"`
	Tasks        map[string]Task        `yaml:"tasks" mapstructure:"tasks"`
	Groups       map[string]Group       `yaml:"groups,omitempty" mapstructure:"groups"`
	Limits       Limits                 `yaml:"limits,omitempty" mapstructure:"limits"`
	Notify       map[string]interface{} `yaml:"notify,omitempty" mapstructure:"notify"`
}

// InputSpec describes a typed workflow input.
type InputSpec struct {
	Type     string      `yaml:"type" mapstructure:"type"`
	Default  interface{} `yaml:"default,omitempty" mapstructure:"default"`
	Required bool        `yaml:"required,omitempty" mapstructure:"required"`
}

// AgentSpec is an opaque agent capability descriptor. The core never
// interprets its fields; it is passed through verbatim to AgentRunner.
type AgentSpec map[string]interface{}

// ============================================================================
// TASK
// ============================================================================

// Task is a single agent-invoking (or loop-only) unit of work.
type Task struct {
	ID          string            `yaml:"id" mapstructure:"id"`
	Description string            `yaml:"description" mapstructure:"description"`
	Agent       string            `yaml:"agent,omitempty" mapstructure:"agent"`
	DependsOn   []string          `yaml:"depends_on,omitempty" mapstructure:"depends_on"`
	Group       string            `yaml:"group,omitempty" mapstructure:"group"`
	Condition   *Condition        `yaml:"condition,omitempty" mapstructure:"condition"`
	Loop        *LoopSpec         `yaml:"loop,omitempty" mapstructure:"loop"`
	DoD         []DoDCriterion    `yaml:"definition_of_done,omitempty" mapstructure:"definition_of_done"`
	Limits      *Limits           `yaml:"limits,omitempty" mapstructure:"limits"`
	Context     *ContextConfig    `yaml:"context,omitempty" mapstructure:"context"`
	Timeout     time.Duration     `yaml:"timeout,omitempty" mapstructure:"timeout"`
	Output      string            `yaml:"output,omitempty" mapstructure:"output"`
	Outputs     map[string]Output `yaml:"outputs,omitempty" mapstructure:"outputs"`
	OnComplete  []HookAction      `yaml:"on_complete,omitempty" mapstructure:"on_complete"`
	OnError     []HookAction      `yaml:"on_error,omitempty" mapstructure:"on_error"`
}

// Output declares one named item of a task's structured data-flow surface.
type Output struct {
	Source string `yaml:"source" mapstructure:"source"` // file | state | task_output
	Path   string `yaml:"path,omitempty" mapstructure:"path"`
	Key    string `yaml:"key,omitempty" mapstructure:"key"`
	Task   string `yaml:"task,omitempty" mapstructure:"task"`
	Kind   string `yaml:"kind,omitempty" mapstructure:"kind"` // stdout | stderr | combined
}

// HookAction is an opaque lifecycle side-effect descriptor dispatched by the
// executor on task completion/error; its handling lives outside the core.
type HookAction struct {
	Type    string                 `yaml:"type" mapstructure:"type"` // notify | retry | rollback
	Payload map[string]interface{} `yaml:"payload,omitempty" mapstructure:"payload"`
}

// DoDCriterion is a single post-execution acceptance check.
type DoDCriterion struct {
	Type        string `yaml:"type" mapstructure:"type"`
	Path        string `yaml:"path,omitempty" mapstructure:"path"`
	Pattern     string `yaml:"pattern,omitempty" mapstructure:"pattern"`
	Command     string `yaml:"command,omitempty" mapstructure:"command"`
	FailOnUnmet bool   `yaml:"fail_on_unmet,omitempty" mapstructure:"fail_on_unmet"`
	MaxRetries  int    `yaml:"max_retries,omitempty" mapstructure:"max_retries"`
}

var validDoDTypes = map[string]bool{
	"file_exists": true, "file_contains": true, "file_not_contains": true,
	"directory_exists": true, "command_succeeds": true, "tests_passed": true,
	"output_matches": true,
}

func (d DoDCriterion) Validate() error {
	if !validDoDTypes[d.Type] {
		return fmt.Errorf("unknown definition_of_done type %q", d.Type)
	}
	return nil
}

// ============================================================================
// GROUP
// ============================================================================

// ExecutionMode governs how a group draws from its children's ready set.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
	ModeAuto       ExecutionMode = "auto"
)

// ErrorPolicy governs how a group reacts to a child's terminal failure.
type ErrorPolicy string

const (
	PolicyStop     ErrorPolicy = "stop"
	PolicyContinue ErrorPolicy = "continue"
	PolicyRollback ErrorPolicy = "rollback"
)

// Group is a hierarchical container of tasks and child groups.
type Group struct {
	ID             string            `yaml:"id" mapstructure:"id"`
	Mode           ExecutionMode     `yaml:"mode,omitempty" mapstructure:"mode"`
	OnError        ErrorPolicy       `yaml:"on_error,omitempty" mapstructure:"on_error"`
	Timeout        time.Duration     `yaml:"timeout,omitempty" mapstructure:"timeout"`
	MaxConcurrency int               `yaml:"max_concurrency,omitempty" mapstructure:"max_concurrency"`
	Tasks          []string          `yaml:"tasks,omitempty" mapstructure:"tasks"`
	Groups         []string          `yaml:"groups,omitempty" mapstructure:"groups"`
	DependsOn      []string          `yaml:"depends_on,omitempty" mapstructure:"depends_on"`
	Parent         string            `yaml:"-" mapstructure:"-"` // computed, not authored
	Condition      *Condition        `yaml:"condition,omitempty" mapstructure:"condition"`
	Inputs         map[string]string `yaml:"inputs,omitempty" mapstructure:"inputs"`
	Outputs        map[string]Output `yaml:"outputs,omitempty" mapstructure:"outputs"`
}

// ============================================================================
// CONDITION (tagged union)
// ============================================================================

// Condition is a node in a condition tree (§4.4).
type Condition struct {
	Type      string       `yaml:"type" mapstructure:"type"`
	Task      string       `yaml:"task,omitempty" mapstructure:"task"`
	Status    string       `yaml:"status,omitempty" mapstructure:"status"`
	Key       string       `yaml:"key,omitempty" mapstructure:"key"`
	Value     interface{}  `yaml:"value,omitempty" mapstructure:"value"`
	Children  []*Condition `yaml:"children,omitempty" mapstructure:"children"`
	Child     *Condition   `yaml:"child,omitempty" mapstructure:"child"`
}

const (
	CondTaskStatus  = "task_status"
	CondStateEquals = "state_equals"
	CondStateExists = "state_exists"
	CondAlways      = "always"
	CondNever       = "never"
	CondAnd         = "and"
	CondOr          = "or"
	CondNot         = "not"
)

// ============================================================================
// LOOP
// ============================================================================

// LoopType selects one of the four LoopSpec variants.
type LoopType string

const (
	LoopForEach     LoopType = "for_each"
	LoopWhile       LoopType = "while"
	LoopRepeatUntil LoopType = "repeat_until"
	LoopRepeat      LoopType = "repeat"
)

// LoopSpec turns a task into a bounded iteration over a collection.
type LoopSpec struct {
	Type              LoopType     `yaml:"type" mapstructure:"type"`
	ForEach           *ForEachSpec `yaml:"for_each,omitempty" mapstructure:"for_each"`
	While             *WhileSpec   `yaml:"while,omitempty" mapstructure:"while"`
	RepeatUntil       *RepeatUntilSpec `yaml:"repeat_until,omitempty" mapstructure:"repeat_until"`
	Repeat            *RepeatSpec  `yaml:"repeat,omitempty" mapstructure:"repeat"`
	CheckpointInterval int         `yaml:"checkpoint_interval,omitempty" mapstructure:"checkpoint_interval"`
	CollectResults    bool         `yaml:"collect_results,omitempty" mapstructure:"collect_results"`
	ResultKey         string       `yaml:"result_key,omitempty" mapstructure:"result_key"`
	BreakCondition    *Condition   `yaml:"break_condition,omitempty" mapstructure:"break_condition"`
	ContinueCondition *Condition   `yaml:"continue_condition,omitempty" mapstructure:"continue_condition"`
	TimeoutSecs       float64      `yaml:"timeout_secs,omitempty" mapstructure:"timeout_secs"`
}

// ForEachSpec iterates over a materialized collection.
type ForEachSpec struct {
	Collection  CollectionSource `yaml:"collection" mapstructure:"collection"`
	IteratorName string          `yaml:"iterator_name,omitempty" mapstructure:"iterator_name"`
	Parallel    bool             `yaml:"parallel,omitempty" mapstructure:"parallel"`
	MaxParallel int              `yaml:"max_parallel,omitempty" mapstructure:"max_parallel"`
}

// WhileSpec iterates while a condition holds.
type WhileSpec struct {
	Condition     *Condition    `yaml:"condition" mapstructure:"condition"`
	MaxIterations int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	IterationVar  string        `yaml:"iteration_var,omitempty" mapstructure:"iteration_var"`
	DelayBetween  time.Duration `yaml:"delay_between,omitempty" mapstructure:"delay_between"`
}

// RepeatUntilSpec executes at least MinIterations times then stops once
// Condition holds.
type RepeatUntilSpec struct {
	Condition     *Condition    `yaml:"condition" mapstructure:"condition"`
	MinIterations int           `yaml:"min_iterations,omitempty" mapstructure:"min_iterations"`
	MaxIterations int           `yaml:"max_iterations" mapstructure:"max_iterations"`
	IterationVar  string        `yaml:"iteration_var,omitempty" mapstructure:"iteration_var"`
	DelayBetween  time.Duration `yaml:"delay_between,omitempty" mapstructure:"delay_between"`
}

// RepeatSpec executes a fixed number of times.
type RepeatSpec struct {
	Count       int    `yaml:"count" mapstructure:"count"`
	IteratorName string `yaml:"iterator_name,omitempty" mapstructure:"iterator_name"`
	Parallel    bool   `yaml:"parallel,omitempty" mapstructure:"parallel"`
	MaxParallel int    `yaml:"max_parallel,omitempty" mapstructure:"max_parallel"`
}

// CollectionSource describes where a ForEach loop's items come from.
type CollectionSource struct {
	Type   string       `yaml:"type" mapstructure:"type"` // inline | state | file | range | http
	Inline []interface{} `yaml:"inline,omitempty" mapstructure:"inline"`
	State  string       `yaml:"state,omitempty" mapstructure:"state"`
	File   *FileSource  `yaml:"file,omitempty" mapstructure:"file"`
	Range  *RangeSource `yaml:"range,omitempty" mapstructure:"range"`
	Http   *HttpSource  `yaml:"http,omitempty" mapstructure:"http"`
}

// FileSource reads a collection out of a local file.
type FileSource struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"` // json | json_lines | csv | lines
}

// RangeSource materializes a numeric range lazily.
type RangeSource struct {
	Start int `yaml:"start" mapstructure:"start"`
	End   int `yaml:"end" mapstructure:"end"`
	Step  int `yaml:"step,omitempty" mapstructure:"step"`
}

// HttpSource performs a single HTTP request to materialize a collection.
type HttpSource struct {
	URL      string            `yaml:"url" mapstructure:"url"`
	Method   string            `yaml:"method,omitempty" mapstructure:"method"`
	Headers  map[string]string `yaml:"headers,omitempty" mapstructure:"headers"`
	Body     string            `yaml:"body,omitempty" mapstructure:"body"`
	Format   string            `yaml:"format,omitempty" mapstructure:"format"` // json | json_lines
	JSONPath string            `yaml:"json_path,omitempty" mapstructure:"json_path"`
}

// ============================================================================
// LIMITS & CONTEXT
// ============================================================================

// Limits bounds per-task output size and the Context Engine's retention.
type Limits struct {
	MaxStdoutBytes     int64   `yaml:"max_stdout_bytes,omitempty" mapstructure:"max_stdout_bytes"`
	MaxStderrBytes     int64   `yaml:"max_stderr_bytes,omitempty" mapstructure:"max_stderr_bytes"`
	MaxContextBytes    int64   `yaml:"max_context_bytes,omitempty" mapstructure:"max_context_bytes"`
	MaxContextTasks    int     `yaml:"max_context_tasks,omitempty" mapstructure:"max_context_tasks"`
	TruncationStrategy string  `yaml:"truncation_strategy,omitempty" mapstructure:"truncation_strategy"` // tail|head|both|summary
	CleanupStrategy    string  `yaml:"cleanup_strategy,omitempty" mapstructure:"cleanup_strategy"`
	KeepCount          int     `yaml:"keep_count,omitempty" mapstructure:"keep_count"`
}

// SetDefaults fills unset Limits fields with the engine defaults.
func (l *Limits) SetDefaults() {
	if l.MaxStdoutBytes == 0 {
		l.MaxStdoutBytes = 64 * 1024
	}
	if l.MaxStderrBytes == 0 {
		l.MaxStderrBytes = 16 * 1024
	}
	if l.MaxContextBytes == 0 {
		l.MaxContextBytes = 100_000
	}
	if l.MaxContextTasks == 0 {
		l.MaxContextTasks = 10
	}
	if l.TruncationStrategy == "" {
		l.TruncationStrategy = "tail"
	}
	if l.CleanupStrategy == "" {
		l.CleanupStrategy = "most_recent"
	}
	if l.KeepCount == 0 {
		l.KeepCount = 20
	}
}

// ContextConfig configures how a single task assembles its inbound context.
type ContextConfig struct {
	Mode         string   `yaml:"mode,omitempty" mapstructure:"mode"` // automatic|manual|none
	IncludeTasks []string `yaml:"include_tasks,omitempty" mapstructure:"include_tasks"`
	ExcludeTasks []string `yaml:"exclude_tasks,omitempty" mapstructure:"exclude_tasks"`
	MinRelevance float64  `yaml:"min_relevance,omitempty" mapstructure:"min_relevance"`
	MaxTasks     int      `yaml:"max_tasks,omitempty" mapstructure:"max_tasks"`
	MaxBytes     int64    `yaml:"max_bytes,omitempty" mapstructure:"max_bytes"`
}

// SetDefaults fills unset ContextConfig fields.
func (c *ContextConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "automatic"
	}
	if c.MaxTasks == 0 {
		c.MaxTasks = 5
	}
}

// Hard bounds enforced at validation time (spec.md §4.1).
const (
	MaxLoopIterations  = 10_000
	MaxCollectionSize  = 100_000
	MaxLoopParallelism = 100
)
