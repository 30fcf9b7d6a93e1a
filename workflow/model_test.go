package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/config"
)

func validWorkflow() *config.Workflow {
	return &config.Workflow{
		Name: "demo",
		Tasks: map[string]config.Task{
			"fetch":   {Agent: "worker"},
			"process": {Agent: "worker", DependsOn: []string{"fetch"}},
		},
	}
}

func TestNewModel_ValidWorkflow(t *testing.T) {
	cfg := validWorkflow()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	m, err := NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "process"}, m.TaskIDs())

	t1, ok := m.Task("fetch")
	require.True(t, ok)
	assert.Equal(t, "fetch", t1.ID)
}

func TestNewModel_UnknownDependency(t *testing.T) {
	cfg := &config.Workflow{
		Name: "bad",
		Tasks: map[string]config.Task{
			"a": {Agent: "w", DependsOn: []string{"ghost"}},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reference", verr.Kind)
}

func TestNewModel_TaskInTwoGroups(t *testing.T) {
	cfg := &config.Workflow{
		Name: "bad",
		Tasks: map[string]config.Task{
			"a": {Agent: "w"},
		},
		Groups: map[string]config.Group{
			"g1": {Tasks: []string{"a"}},
			"g2": {Tasks: []string{"a"}},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.Error(t, err)
}

func TestNewModel_GroupContainmentCycle(t *testing.T) {
	cfg := &config.Workflow{
		Name: "bad",
		Tasks: map[string]config.Task{
			"a": {Agent: "w"},
		},
		Groups: map[string]config.Group{
			"g1": {Groups: []string{"g2"}},
			"g2": {Groups: []string{"g1"}},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cycle", verr.Kind)
}

func TestHash_DeterministicAndSensitiveToChange(t *testing.T) {
	cfg1 := validWorkflow()
	cfg1.SetDefaults()
	require.NoError(t, cfg1.Validate())
	m1, err := NewModel(cfg1)
	require.NoError(t, err)

	cfg2 := validWorkflow()
	cfg2.SetDefaults()
	require.NoError(t, cfg2.Validate())
	m2, err := NewModel(cfg2)
	require.NoError(t, err)

	assert.Equal(t, m1.Hash(), m2.Hash(), "identical workflows hash identically")
	assert.NotEmpty(t, m1.Hash())

	cfg3 := validWorkflow()
	t3 := cfg3.Tasks["process"]
	t3.Agent = "different-worker"
	cfg3.Tasks["process"] = t3
	cfg3.SetDefaults()
	require.NoError(t, cfg3.Validate())
	m3, err := NewModel(cfg3)
	require.NoError(t, err)

	assert.NotEqual(t, m1.Hash(), m3.Hash(), "changing a task must change the hash")
}

func TestNewModel_UnboundIteratorReferenceRejected(t *testing.T) {
	cfg := &config.Workflow{
		Name: "bad",
		Tasks: map[string]config.Task{
			"poll": {
				Agent:       "w",
				Description: "checking ${iterator.attempt} of the poll loop",
				Loop: &config.LoopSpec{
					Type: config.LoopWhile,
					While: &config.WhileSpec{
						Condition:     &config.Condition{Type: config.CondStateExists, Key: "done"},
						MaxIterations: 10,
					},
				},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scope", verr.Kind)
	assert.Equal(t, "poll", verr.OffendingID)
}

func TestNewModel_IteratorIndexAlwaysAllowed(t *testing.T) {
	cfg := &config.Workflow{
		Name: "ok",
		Tasks: map[string]config.Task{
			"poll": {
				Agent:       "w",
				Description: "checking attempt ${iterator.index}",
				Loop: &config.LoopSpec{
					Type: config.LoopWhile,
					While: &config.WhileSpec{
						Condition:     &config.Condition{Type: config.CondStateExists, Key: "done"},
						MaxIterations: 10,
					},
				},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.NoError(t, err)
}

func TestNewModel_NamedIteratorVarAllowsThatName(t *testing.T) {
	cfg := &config.Workflow{
		Name: "ok",
		Tasks: map[string]config.Task{
			"poll": {
				Agent:       "w",
				Description: "checking ${iterator.attempt} of the poll loop",
				Loop: &config.LoopSpec{
					Type: config.LoopWhile,
					While: &config.WhileSpec{
						Condition:     &config.Condition{Type: config.CondStateExists, Key: "done"},
						MaxIterations: 10,
						IterationVar:  "attempt",
					},
				},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	_, err := NewModel(cfg)
	require.NoError(t, err)
}

func TestNewModel_GroupMembershipFillsTaskGroup(t *testing.T) {
	cfg := &config.Workflow{
		Name: "grouped",
		Tasks: map[string]config.Task{
			"a": {Agent: "w"},
		},
		Groups: map[string]config.Group{
			"g1": {Tasks: []string{"a"}},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	m, err := NewModel(cfg)
	require.NoError(t, err)
	task, ok := m.Task("a")
	require.True(t, ok)
	assert.Equal(t, "g1", task.Group)
}
