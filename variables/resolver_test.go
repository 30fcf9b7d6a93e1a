package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	inputs    map[string]Value
	statuses  map[string]string
	outputs   map[string]Value // key "taskID.name"
	groupOuts map[string]Value // key "groupID.name"
	state     map[string]Value
	metadata  map[string]Value
	collected map[string][]Value
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inputs:    map[string]Value{},
		statuses:  map[string]string{},
		outputs:   map[string]Value{},
		groupOuts: map[string]Value{},
		state:     map[string]Value{},
		metadata:  map[string]Value{},
		collected: map[string][]Value{},
	}
}

func (f *fakeStore) WorkflowInput(name string) (Value, bool) { v, ok := f.inputs[name]; return v, ok }
func (f *fakeStore) TaskStatus(taskID string) (string, bool) { s, ok := f.statuses[taskID]; return s, ok }
func (f *fakeStore) TaskOutput(taskID, name string) (Value, bool) {
	v, ok := f.outputs[taskID+"."+name]
	return v, ok
}
func (f *fakeStore) GroupOutput(groupID, name string) (Value, bool) {
	v, ok := f.groupOuts[groupID+"."+name]
	return v, ok
}
func (f *fakeStore) State(key string) (Value, bool)    { v, ok := f.state[key]; return v, ok }
func (f *fakeStore) Metadata(key string) (Value, bool) { v, ok := f.metadata[key]; return v, ok }
func (f *fakeStore) Collected(resultKey string) ([]Value, bool) {
	v, ok := f.collected[resultKey]
	return v, ok
}

func TestResolve_ScopedPaths(t *testing.T) {
	store := newFakeStore()
	store.inputs["name"] = String("world")
	store.statuses["t1"] = "completed"
	store.outputs["t1.result"] = String("ok")
	store.groupOuts["g1.summary"] = String("done")
	store.state["counter"] = Number(5)
	store.metadata["run_id"] = String("abc")

	r := NewResolver(store)

	v, err := r.Resolve("workflow.name", Scope{})
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "world", s)

	v, err = r.Resolve("task.t1.status", Scope{})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "completed", s)

	v, err = r.Resolve("task.t1.result", Scope{})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "ok", s)

	v, err = r.Resolve("group.g1.summary", Scope{})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "done", s)

	v, err = r.Resolve("state.counter", Scope{})
	require.NoError(t, err)
	n, _ := v.AsNumber()
	assert.Equal(t, 5.0, n)
}

func TestResolve_SecretScopeAlwaysFails(t *testing.T) {
	r := NewResolver(newFakeStore())
	_, err := r.Resolve("secret.api_key", Scope{})
	require.Error(t, err)
}

func TestResolve_IteratorIndex(t *testing.T) {
	r := NewResolver(newFakeStore())
	scope := Scope{HasLoop: true, LoopIndex: 2, LoopTotal: 5}
	v, err := r.Resolve("iterator.index", scope)
	require.NoError(t, err)
	n, _ := v.AsNumber()
	assert.Equal(t, 2.0, n)

	v, err = r.Resolve("loop.total", scope)
	require.NoError(t, err)
	n, _ = v.AsNumber()
	assert.Equal(t, 5.0, n)
}

func TestResolveBare_ResolutionOrder(t *testing.T) {
	store := newFakeStore()
	store.inputs["x"] = String("workflow-x")
	store.outputs["t1.x"] = String("task-x")
	store.groupOuts["g1.x"] = String("group-x")
	r := NewResolver(store)

	// workflow scope wins when nothing else defines x.
	v, err := r.Resolve("x", Scope{})
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "workflow-x", s)

	// task scope shadows workflow scope.
	v, err = r.Resolve("x", Scope{TaskID: "t1"})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "task-x", s)

	// group scope used only when task scope doesn't resolve.
	v, err = r.Resolve("x", Scope{GroupID: "g1"})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "group-x", s)

	// iterator binding shadows everything.
	v, err = r.Resolve("x", Scope{TaskID: "t1", Iterator: map[string]Value{"x": String("iter-x")}})
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "iter-x", s)
}

func TestInterpolate_RejectsCompoundValues(t *testing.T) {
	store := newFakeStore()
	store.outputs["t1.items"] = Array([]Value{Number(1), Number(2)})
	r := NewResolver(store)

	_, err := r.Interpolate("values: ${task.t1.items}", Scope{})
	require.Error(t, err)
}

func TestInterpolate_SubstitutesPrimitives(t *testing.T) {
	store := newFakeStore()
	store.inputs["user"] = String("ada")
	r := NewResolver(store)

	out, err := r.Interpolate("hello ${workflow.user}!", Scope{})
	require.NoError(t, err)
	assert.Equal(t, "hello ada!", out)
}

func TestResolve_UnknownPathErrors(t *testing.T) {
	r := NewResolver(newFakeStore())
	_, err := r.Resolve("workflow.missing", Scope{})
	require.Error(t, err)
}
