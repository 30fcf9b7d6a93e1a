package group

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/graph"
	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
	"github.com/kadirpekel/hector/workflow"
)

func buildModel(t *testing.T, cfg *config.Workflow) (*workflow.Model, *graph.Graph, *state.Store) {
	t.Helper()
	m, err := workflow.NewModel(cfg)
	require.NoError(t, err)
	g, err := graph.Build(m)
	require.NoError(t, err)
	st := state.New(nil)
	for _, id := range m.TaskIDs() {
		task, _ := m.Task(id)
		st.RegisterTask(id, task.Group)
	}
	for _, id := range m.GroupIDs() {
		st.RegisterGroup(id)
	}
	return m, g, st
}

type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	inFlight int32
	maxSeen  int32
	fail    map[string]bool
	delay   time.Duration
}

func (r *recordingRunner) RunTask(ctx context.Context, taskID string, scope variables.Scope) error {
	n := atomic.AddInt32(&r.inFlight, 1)
	for {
		old := atomic.LoadInt32(&r.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&r.maxSeen, old, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.ran = append(r.ran, taskID)
	r.mu.Unlock()
	atomic.AddInt32(&r.inFlight, -1)
	if r.fail != nil && r.fail[taskID] {
		return assertErr(taskID)
	}
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func assertErr(taskID string) error { return fakeErr("forced failure: " + taskID) }

func TestActivateSequentialGroupRunsInOrder(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a", Description: "a"},
			"b": {ID: "b", Description: "b"},
			"c": {ID: "c", Description: "c"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, OnError: config.PolicyStop, Tasks: []string{"a", "b", "c"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, runner.ran)
	assert.LessOrEqual(t, runner.maxSeen, int32(1))

	rec, ok := st.GroupRecord("g")
	require.True(t, ok)
	assert.Equal(t, state.GroupCompleted, rec.Status)
	assert.Equal(t, 3, rec.Completed)
}

func TestActivateParallelGroupRespectsMaxConcurrency(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}, "d": {ID: "d"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeParallel, OnError: config.PolicyContinue, MaxConcurrency: 2,
				Tasks: []string{"a", "b", "c", "d"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{delay: 5 * time.Millisecond}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.NoError(t, err)
	assert.LessOrEqual(t, runner.maxSeen, int32(2))

	rec, ok := st.GroupRecord("g")
	require.True(t, ok)
	assert.Equal(t, state.GroupCompleted, rec.Status)
	assert.Equal(t, 4, rec.Completed)
}

func TestActivateStopPolicyCancelsSiblings(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"ok1": {ID: "ok1"}, "fail": {ID: "fail"}, "ok2": {ID: "ok2"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, OnError: config.PolicyStop,
				Tasks: []string{"ok1", "fail", "ok2"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{fail: map[string]bool{"fail": true}}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.Error(t, err)

	rec, ok := st.GroupRecord("g")
	require.True(t, ok)
	assert.Equal(t, state.GroupFailed, rec.Status)
	assert.Equal(t, []string{"ok1", "fail"}, runner.ran, "ok2 must never run once fail stops the group")
}

func TestActivateContinuePolicyYieldsPartialFailure(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"ok1": {ID: "ok1"}, "fail": {ID: "fail"}, "ok2": {ID: "ok2"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, OnError: config.PolicyContinue,
				Tasks: []string{"ok1", "fail", "ok2"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{fail: map[string]bool{"fail": true}}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.Error(t, err)
	assert.Equal(t, []string{"ok1", "fail", "ok2"}, runner.ran, "continue keeps running past a failed sibling")

	rec, ok := st.GroupRecord("g")
	require.True(t, ok)
	assert.Equal(t, state.GroupPartialFailure, rec.Status)
}

type recordingRollback struct {
	mu       sync.Mutex
	groupIDs []string
}

func (r *recordingRollback) Rollback(event RollbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupIDs = append(r.groupIDs, event.GroupID)
}

func TestActivateRollbackPolicyEmitsEvent(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"fail": {ID: "fail"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, OnError: config.PolicyRollback, Tasks: []string{"fail"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	rb := &recordingRollback{}
	o := New(m, g, st, rb)
	runner := &recordingRunner{fail: map[string]bool{"fail": true}}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.Error(t, err)
	assert.Equal(t, []string{"g"}, rb.groupIDs)
}

func TestActivateConditionFalseSkipsGroupAndChildren(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, Tasks: []string{"a"},
				Condition: &config.Condition{Type: config.CondNever}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{}

	err := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.NoError(t, err)
	assert.Empty(t, runner.ran)

	rec, ok := st.GroupRecord("g")
	require.True(t, ok)
	assert.Equal(t, state.GroupSkipped, rec.Status)

	taskRec, ok := st.TaskRecord("a")
	require.True(t, ok)
	assert.Equal(t, state.TaskSkipped, taskRec.Status)
}

func TestActivateInheritsParentConfig(t *testing.T) {
	cfg := &config.Workflow{
		Tasks: map[string]config.Task{
			"a": {ID: "a"},
		},
		Groups: map[string]config.Group{
			"child":  {ID: "child", Mode: config.ModeSequential, Tasks: []string{"a"}},
			"parent": {ID: "parent", Mode: config.ModeSequential, OnError: config.PolicyContinue, Groups: []string{"child"}},
		},
	}
	m, g, st := buildModel(t, cfg)
	o := New(m, g, st, nil)
	runner := &recordingRunner{}

	err := o.Activate(context.Background(), "parent", EffectiveConfig{}, variables.Scope{}, runner)
	require.NoError(t, err)

	rec, ok := st.GroupRecord("child")
	require.True(t, ok)
	assert.Equal(t, state.GroupCompleted, rec.Status)
}

func TestActivateGroupInputsVisibleToChildTasks(t *testing.T) {
	cfg := &config.Workflow{
		Inputs: map[string]config.InputSpec{"greeting": {Type: "string"}},
		Tasks: map[string]config.Task{
			"a": {ID: "a"},
		},
		Groups: map[string]config.Group{
			"g": {ID: "g", Mode: config.ModeSequential, Tasks: []string{"a"},
				Inputs: map[string]string{"name": "${workflow.greeting}"}},
		},
	}
	m, g, err := buildModelWithInput(t, cfg, "greeting", variables.String("hi"))
	require.NoError(t, err)
	st := g.store
	o := New(m, g.graph, st, nil)
	runner := &recordingRunner{}

	actErr := o.Activate(context.Background(), "g", EffectiveConfig{}, variables.Scope{}, runner)
	require.NoError(t, actErr)

	v, ok := st.GroupOutput("g", "name")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "hi", s)
}

type builtModel struct {
	graph *graph.Graph
	store *state.Store
}

func buildModelWithInput(t *testing.T, cfg *config.Workflow, inputName string, v variables.Value) (*workflow.Model, builtModel, error) {
	t.Helper()
	m, err := workflow.NewModel(cfg)
	if err != nil {
		return nil, builtModel{}, err
	}
	g, err := graph.Build(m)
	if err != nil {
		return nil, builtModel{}, err
	}
	st := state.New(map[string]variables.Value{inputName: v})
	for _, id := range m.TaskIDs() {
		task, _ := m.Task(id)
		st.RegisterTask(id, task.Group)
	}
	for _, id := range m.GroupIDs() {
		st.RegisterGroup(id)
	}
	return m, builtModel{graph: g, store: st}, nil
}
