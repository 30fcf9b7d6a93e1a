package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/agentrunner"
	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/variables"
)

func okRunner() agentrunner.Runner {
	return agentrunner.Func(func(ctx context.Context, prompt string, taskContext []byte, agent agentrunner.Descriptor, timeout time.Duration, cancel *agentrunner.CancelToken) (agentrunner.Result, error) {
		return agentrunner.Result{Stdout: []byte("ok")}, nil
	})
}

func TestRunLinearDAGCompletes(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a", Description: "a", Agent: "worker"},
			"b": {ID: "b", Description: "b", Agent: "worker", DependsOn: []string{"a"}},
			"c": {ID: "c", Description: "c", Agent: "worker", DependsOn: []string{"b"}},
		},
	}

	e, err := New(cfg, nil, okRunner())
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", report.OverallStatus)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 0, report.Failed)
}

func TestRunWithGroupDelegatesToOrchestrator(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a", Description: "a", Agent: "worker"},
			"b": {ID: "b", Description: "b", Agent: "worker"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, OnError: config.PolicyStop, Tasks: []string{"a", "b"}},
		},
	}

	e, err := New(cfg, nil, okRunner())
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", report.OverallStatus)
	assert.Equal(t, 2, report.Completed)
}

func TestRunFailedTaskReportsFailure(t *testing.T) {
	failing := agentrunner.Func(func(ctx context.Context, prompt string, taskContext []byte, agent agentrunner.Descriptor, timeout time.Duration, cancel *agentrunner.CancelToken) (agentrunner.Result, error) {
		return agentrunner.Result{}, &agentrunner.AgentError{Op: "Run", Message: "boom"}
	})

	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a", Description: "a", Agent: "worker"},
		},
	}

	e, err := New(cfg, nil, failing)
	require.NoError(t, err)

	report, runErr := e.Run(context.Background())
	require.Error(t, runErr)
	assert.Equal(t, "failed", report.OverallStatus)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.TaskErrors, "a")
}

func TestRunForEachLoopCollectsResults(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {
				ID:          "a",
				Description: "process {{item}}",
				Agent:       "worker",
				Loop: &config.LoopSpec{
					Type: config.LoopForEach,
					ForEach: &config.ForEachSpec{
						Collection:   config.CollectionSource{Type: "inline", Inline: []interface{}{1, 2, 3}},
						IteratorName: "item",
					},
					CollectResults: true,
					ResultKey:      "r",
				},
			},
		},
	}

	e, err := New(cfg, nil, okRunner())
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", report.OverallStatus)
	assert.Contains(t, report.Collected, "r")
	assert.Len(t, report.Collected["r"], 3)
}

func TestRunDoDRetryWithFeedbackThenSucceeds(t *testing.T) {
	var attempts int
	flaky := agentrunner.Func(func(ctx context.Context, prompt string, taskContext []byte, agent agentrunner.Descriptor, timeout time.Duration, cancel *agentrunner.CancelToken) (agentrunner.Result, error) {
		attempts++
		if attempts < 2 {
			return agentrunner.Result{Stdout: []byte("missing marker")}, nil
		}
		return agentrunner.Result{Stdout: []byte("DONE")}, nil
	})

	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {
				ID: "a", Description: "a", Agent: "worker",
				DoD: []config.DoDCriterion{
					{Type: "output_matches", Pattern: "DONE", FailOnUnmet: true, MaxRetries: 2},
				},
			},
		},
	}

	e, err := New(cfg, nil, flaky)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", report.OverallStatus)
	assert.Equal(t, 2, attempts)
}

func TestRunDoDFailsAfterRetryBudgetExhausted(t *testing.T) {
	alwaysMissing := agentrunner.Func(func(ctx context.Context, prompt string, taskContext []byte, agent agentrunner.Descriptor, timeout time.Duration, cancel *agentrunner.CancelToken) (agentrunner.Result, error) {
		return agentrunner.Result{Stdout: []byte("nope")}, nil
	})

	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {
				ID: "a", Description: "a", Agent: "worker",
				DoD: []config.DoDCriterion{
					{Type: "output_matches", Pattern: "DONE", FailOnUnmet: true, MaxRetries: 1},
				},
			},
		},
	}

	e, err := New(cfg, nil, alwaysMissing)
	require.NoError(t, err)

	report, runErr := e.Run(context.Background())
	require.Error(t, runErr)
	assert.Equal(t, "failed", report.OverallStatus)
	assert.Equal(t, 1, report.Failed)
}

func TestResumeFromCheckpointContinuesRemainingTasks(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a", Description: "a", Agent: "worker"},
			"b": {ID: "b", Description: "b", Agent: "worker", DependsOn: []string{"a"}},
		},
	}

	e1, err := New(cfg, nil, okRunner())
	require.NoError(t, err)
	require.NoError(t, e1.runner.RunTask(context.Background(), "a", variables.Scope{}))

	blob := e1.Checkpoint("run-1")

	ctx := context.Background()
	e2, err := Resume(ctx, cfg, blob, okRunner())
	require.NoError(t, err)

	report, err := e2.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "completed", report.OverallStatus)
	assert.Equal(t, 2, report.Completed)
}
