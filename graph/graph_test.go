package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/workflow"
)

func buildModel(t *testing.T, cfg *config.Workflow) *workflow.Model {
	t.Helper()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	m, err := workflow.NewModel(cfg)
	require.NoError(t, err)
	return m
}

func TestBuild_SequentialChain(t *testing.T) {
	cfg := &config.Workflow{
		Name: "chain",
		Tasks: map[string]config.Task{
			"a": {Agent: "x"},
			"b": {Agent: "x", DependsOn: []string{"a"}},
			"c": {Agent: "x", DependsOn: []string{"b"}},
		},
	}
	m := buildModel(t, cfg)
	g, err := Build(m)
	require.NoError(t, err)

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, levels[0])
	assert.Equal(t, []string{"b"}, levels[1])
	assert.Equal(t, []string{"c"}, levels[2])
}

func TestBuild_DiamondParallel(t *testing.T) {
	cfg := &config.Workflow{
		Name: "diamond",
		Tasks: map[string]config.Task{
			"a": {Agent: "x"},
			"b": {Agent: "x", DependsOn: []string{"a"}},
			"c": {Agent: "x", DependsOn: []string{"a"}},
			"d": {Agent: "x", DependsOn: []string{"b", "c"}},
		},
	}
	m := buildModel(t, cfg)
	g, err := Build(m)
	require.NoError(t, err)

	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"a"}, levels[0])
	assert.ElementsMatch(t, []string{"b", "c"}, levels[1])
	assert.Equal(t, []string{"d"}, levels[2])
}

func TestLevels_GroupCompletesAfterChildren(t *testing.T) {
	cfg := &config.Workflow{
		Name: "diamond-group",
		Tasks: map[string]config.Task{
			"pre":  {Agent: "x"},
			"x":    {Agent: "x", DependsOn: []string{"pre"}, Group: "g"},
			"y":    {Agent: "x", DependsOn: []string{"pre"}, Group: "g"},
			"post": {Agent: "x", DependsOn: []string{"g"}},
		},
		Groups: map[string]config.Group{
			"g": {Mode: config.ModeParallel, Tasks: []string{"x", "y"}},
		},
	}
	m := buildModel(t, cfg)
	g, err := Build(m)
	require.NoError(t, err)

	levels := g.Levels()
	require.Len(t, levels, 4)
	assert.Equal(t, []string{"pre"}, levels[0])
	assert.ElementsMatch(t, []string{"x", "y"}, levels[1])
	assert.Equal(t, []string{"g"}, levels[2])
	assert.Equal(t, []string{"post"}, levels[3])
}

func TestBuild_DetectsCycle(t *testing.T) {
	cfg := &config.Workflow{
		Name: "cyclic",
		Tasks: map[string]config.Task{
			"a": {Agent: "x", DependsOn: []string{"b"}},
			"b": {Agent: "x", DependsOn: []string{"a"}},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	m, err := workflow.NewModel(cfg)
	require.NoError(t, err)

	_, err = Build(m)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.GreaterOrEqual(t, len(cycleErr.Path), 2)
}

type fakeStatus struct {
	taskTerminal  map[string]bool
	groupTerminal map[string]bool
	groupRunning  map[string]bool
	taskGroup     map[string]string
}

func (f *fakeStatus) TaskTerminal(id string) bool  { return f.taskTerminal[id] }
func (f *fakeStatus) GroupTerminal(id string) bool { return f.groupTerminal[id] }
func (f *fakeStatus) GroupRunning(id string) bool  { return f.groupRunning[id] }
func (f *fakeStatus) TaskGroup(id string) (string, bool) {
	gid, ok := f.taskGroup[id]
	return gid, ok
}

func TestReadySet_GatesOnDependenciesAndGroup(t *testing.T) {
	cfg := &config.Workflow{
		Name: "gated",
		Tasks: map[string]config.Task{
			"a": {Agent: "x", Group: "g1"},
			"b": {Agent: "x", DependsOn: []string{"a"}},
		},
		Groups: map[string]config.Group{
			"g1": {Tasks: []string{"a"}},
		},
	}
	m := buildModel(t, cfg)
	g, err := Build(m)
	require.NoError(t, err)

	status := &fakeStatus{
		taskTerminal:  map[string]bool{},
		groupTerminal: map[string]bool{},
		groupRunning:  map[string]bool{"g1": false},
		taskGroup:     map[string]string{"a": "g1"},
	}
	ready := g.ReadySet(status)
	assert.NotContains(t, ready, "a", "task gated by non-running group must not be ready")

	status.groupRunning["g1"] = true
	ready = g.ReadySet(status)
	assert.Contains(t, ready, "a")
	assert.NotContains(t, ready, "b", "b depends on non-terminal a")

	status.taskTerminal["a"] = true
	ready = g.ReadySet(status)
	assert.Contains(t, ready, "b")
}
