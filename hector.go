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

// Package hector is the library's single entry point: it re-exports the
// most commonly used types and constructors from the engine's
// sub-packages, so a host process can depend on one import instead of
// wiring config, workflow, graph, state, and executor together itself.
//
// # Quick Start
//
//	import "github.com/kadirpekel/hector"
//
//	cfg, err := hector.NewLoader().LoadFile("workflow.yaml")
//	exec, err := hector.New(cfg, inputs, myAgentRunner)
//	report, err := exec.Run(ctx)
package hector

import (
	"github.com/kadirpekel/hector/agentrunner"
	"github.com/kadirpekel/hector/checkpoint"
	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/executor"
	"github.com/kadirpekel/hector/variables"
)

// Workflow document types.
type (
	Workflow = config.Workflow
	Task     = config.Task
	Group    = config.Group
	Loader   = config.Loader
)

// NewLoader creates a workflow document loader.
var NewLoader = config.NewLoader

// Execution engine types.
type (
	Executor        = executor.Executor
	Report          = executor.Report
	Event           = executor.Event
	EventKind       = executor.EventKind
	Option          = executor.Option
	AgentRunner     = agentrunner.Runner
	AgentDescriptor = agentrunner.Descriptor
	AgentResult     = agentrunner.Result
	CancelToken     = agentrunner.CancelToken
	CheckpointBlob  = checkpoint.Blob
	Value           = variables.Value
)

// New builds an Executor for a fresh run.
var New = executor.New

// Resume builds an Executor from a prior checkpoint.
var Resume = executor.Resume

// WithConcurrency bounds the number of root-level nodes in flight at once.
var WithConcurrency = executor.WithConcurrency

// WithRateLimiter stores a rate limiter on the Executor; AgentRunner
// dispatch does not consult it.
var WithRateLimiter = executor.WithRateLimiter
