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

// Package workflow implements the Model (spec.md §4.1, C1): an immutable,
// validated, in-memory representation of a workflow built from config.
// The Model owns nothing mutable; every other component holds a shared
// read-only reference to it (spec.md §3.3).
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/kadirpekel/hector/config"
)

// iteratorRefRe extracts the name segment of a "${iterator.<name>}"
// reference from an interpolatable string, without needing a full
// variables.Value-style parse (validateScopes only needs the scope/name
// pair, not the resolved value).
var iteratorRefRe = regexp.MustCompile(`\$\{iterator\.([a-zA-Z0-9_]+)`)

// ValidationError is returned by NewModel when the workflow fails the
// structural checks of spec.md §4.1.
type ValidationError struct {
	Kind        string // reference | cycle | loop_bounds | scope
	Message     string
	OffendingID string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s) on %q: %s", e.Kind, e.OffendingID, e.Message)
}

// Model is the immutable, post-validation view of a workflow. Tasks and
// groups are addressed by their string id, which is already unique and
// stable; this plays the role spec.md §9's "arena of Id handles" design
// note calls for without introducing a synthetic integer namespace.
type Model struct {
	raw    *config.Workflow
	tasks  map[string]*config.Task
	groups map[string]*config.Group
	// taskOrder/groupOrder hold ids sorted by id, used for deterministic
	// tie-breaking within a scheduling level (spec.md §4.5). The order in
	// which the config declares tasks and groups is not kept.
	taskOrder  []string
	groupOrder []string
	hash       string
}

// Raw returns the underlying config.Workflow. Callers must not mutate it.
func (m *Model) Raw() *config.Workflow { return m.raw }

// Task looks up a task by id.
func (m *Model) Task(id string) (*config.Task, bool) { t, ok := m.tasks[id]; return t, ok }

// Group looks up a group by id.
func (m *Model) Group(id string) (*config.Group, bool) { g, ok := m.groups[id]; return g, ok }

// TaskIDs returns task ids sorted by id.
func (m *Model) TaskIDs() []string { return m.taskOrder }

// GroupIDs returns group ids sorted by id.
func (m *Model) GroupIDs() []string { return m.groupOrder }

// Hash returns a deterministic content hash of the workflow, used by the
// Checkpoint & Resume component to detect a resumed snapshot that no
// longer matches the workflow it was taken against (spec.md §4.10).
func (m *Model) Hash() string { return m.hash }

// NewModel validates cfg and builds an immutable Model. cfg is assumed to
// already be structurally decoded (config.Workflow.Validate has run); this
// performs the deeper Model-level checks spec.md §4.1 assigns to "the
// Model's constructors": reference resolution, cycle rejection (handled in
// full by the graph package, but group-membership acyclicity is checked
// here since it's a property of the Model itself, not the scheduler), and
// loop/variable-scope static checks.
func NewModel(cfg *config.Workflow) (*Model, error) {
	if cfg == nil {
		return nil, &ValidationError{Kind: "reference", Message: "workflow config is nil"}
	}

	m := &Model{
		raw:    cfg,
		tasks:  make(map[string]*config.Task, len(cfg.Tasks)),
		groups: make(map[string]*config.Group, len(cfg.Groups)),
	}

	for id := range cfg.Tasks {
		t := cfg.Tasks[id]
		t.ID = id
		m.tasks[id] = &t
		m.taskOrder = append(m.taskOrder, id)
	}
	sort.Strings(m.taskOrder)

	for id := range cfg.Groups {
		g := cfg.Groups[id]
		g.ID = id
		m.groups[id] = &g
		m.groupOrder = append(m.groupOrder, id)
	}
	sort.Strings(m.groupOrder)

	if err := m.resolveGroupMembership(); err != nil {
		return nil, err
	}
	if err := m.validateReferences(); err != nil {
		return nil, err
	}
	if err := m.validateGroupAcyclicity(); err != nil {
		return nil, err
	}
	if err := m.validateScopes(); err != nil {
		return nil, err
	}

	m.hash = m.computeHash()
	return m, nil
}

// resolveGroupMembership fills in each group's Parent from child
// group/task listings and checks a task belongs to at most one group
// (spec.md §3.2).
func (m *Model) resolveGroupMembership() error {
	owner := make(map[string]string) // task id -> group id

	for _, gid := range m.groupOrder {
		g := m.groups[gid]
		for _, tid := range g.Tasks {
			if prev, ok := owner[tid]; ok && prev != gid {
				return &ValidationError{Kind: "reference", OffendingID: tid,
					Message: fmt.Sprintf("task belongs to both group %q and %q", prev, gid)}
			}
			owner[tid] = gid
		}
		for _, cid := range g.Groups {
			child, ok := m.groups[cid]
			if !ok {
				return &ValidationError{Kind: "reference", OffendingID: gid,
					Message: fmt.Sprintf("child group %q does not exist", cid)}
			}
			child.Parent = gid
			m.groups[cid] = child
		}
	}

	for tid, gid := range owner {
		t := m.tasks[tid]
		if t == nil {
			return &ValidationError{Kind: "reference", OffendingID: gid,
				Message: fmt.Sprintf("group lists unknown task %q", tid)}
		}
		if t.Group != "" && t.Group != gid {
			return &ValidationError{Kind: "reference", OffendingID: tid,
				Message: fmt.Sprintf("task declares group %q but is listed under group %q", t.Group, gid)}
		}
		t.Group = gid
		m.tasks[tid] = t
	}
	return nil
}

// validateReferences checks every depends_on and group-membership
// reference resolves to an existing entity of the same kind (spec.md §3.2).
func (m *Model) validateReferences() error {
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		for _, dep := range t.DependsOn {
			_, isTask := m.tasks[dep]
			_, isGroup := m.groups[dep]
			if !isTask && !isGroup {
				return &ValidationError{Kind: "reference", OffendingID: id,
					Message: fmt.Sprintf("depends_on references unknown task or group %q", dep)}
			}
		}
		if t.Group != "" {
			if _, ok := m.groups[t.Group]; !ok {
				return &ValidationError{Kind: "reference", OffendingID: id,
					Message: fmt.Sprintf("group references unknown group %q", t.Group)}
			}
		}
		if t.Condition != nil {
			if err := validateConditionRefs(t.Condition, m); err != nil {
				return &ValidationError{Kind: "reference", OffendingID: id, Message: err.Error()}
			}
		}
	}
	for _, id := range m.groupOrder {
		g := m.groups[id]
		for _, dep := range g.DependsOn {
			_, isTask := m.tasks[dep]
			_, isGroup := m.groups[dep]
			if !isTask && !isGroup {
				return &ValidationError{Kind: "reference", OffendingID: id,
					Message: fmt.Sprintf("depends_on references unknown task or group %q", dep)}
			}
		}
		if g.Condition != nil {
			if err := validateConditionRefs(g.Condition, m); err != nil {
				return &ValidationError{Kind: "reference", OffendingID: id, Message: err.Error()}
			}
		}
	}
	return nil
}

func validateConditionRefs(c *config.Condition, m *Model) error {
	switch c.Type {
	case config.CondTaskStatus:
		if _, ok := m.tasks[c.Task]; !ok {
			return fmt.Errorf("task_status references unknown task %q", c.Task)
		}
	case config.CondAnd, config.CondOr:
		for _, child := range c.Children {
			if err := validateConditionRefs(child, m); err != nil {
				return err
			}
		}
	case config.CondNot:
		if c.Child != nil {
			return validateConditionRefs(c.Child, m)
		}
	}
	return nil
}

// validateGroupAcyclicity rejects a group hierarchy where a group contains
// its own ancestor (spec.md §3.2).
func (m *Model) validateGroupAcyclicity() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(m.groups))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			cycle := append(append([]string{}, path...), id)
			return &ValidationError{Kind: "cycle", OffendingID: id,
				Message: fmt.Sprintf("group membership cycle: %v", cycle)}
		case black:
			return nil
		}
		color[id] = gray
		path = append(path, id)
		for _, cid := range m.groups[id].Groups {
			if err := visit(cid); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range m.groupOrder {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// validateScopes performs the static portion of "every conditional, loop,
// and variable-interpolation path references known scopes" (spec.md §4.1):
// beyond checking each loop type's sub-spec is present, it walks every
// interpolatable string reachable from a looping task (description,
// condition trees, output declarations, DoD criteria, collection sources,
// hook payloads) for "${iterator.<name>}" references and rejects any name
// the loop does not actually bind, resolved per the Open Question decision
// in SPEC_FULL.md: late binding to a named iterator is never allowed, and
// only iterator.index resolves when a loop has no iterator_var/iterator_name
// configured. This is a Model-construction-time rejection — a
// *workflow.ValidationError out of NewModel — rather than the generic
// runtime UnknownPath failure the Variable Resolver would otherwise only
// surface if and when that expression happened to be evaluated.
func (m *Model) validateScopes() error {
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Loop == nil {
			continue
		}
		switch t.Loop.Type {
		case config.LoopWhile:
			if t.Loop.While == nil {
				return &ValidationError{Kind: "loop_bounds", OffendingID: id, Message: "while loop missing spec"}
			}
		case config.LoopRepeatUntil:
			if t.Loop.RepeatUntil == nil {
				return &ValidationError{Kind: "loop_bounds", OffendingID: id, Message: "repeat_until loop missing spec"}
			}
		case config.LoopForEach:
			if t.Loop.ForEach == nil {
				return &ValidationError{Kind: "loop_bounds", OffendingID: id, Message: "for_each loop missing spec"}
			}
		case config.LoopRepeat:
			if t.Loop.Repeat == nil {
				return &ValidationError{Kind: "loop_bounds", OffendingID: id, Message: "repeat loop missing spec"}
			}
		}

		allowed := allowedIteratorNames(t.Loop)
		for _, name := range iteratorReferences(t) {
			if allowed[name] {
				continue
			}
			return &ValidationError{Kind: "scope", OffendingID: id,
				Message: fmt.Sprintf(
					"references unbound iterator %q: this loop only binds %v (add iterator_name/iterator_var to bind %q)",
					name, sortedIteratorNames(allowed), name)}
		}
	}
	return nil
}

// allowedIteratorNames returns the set of "${iterator.<name>}" names a loop
// actually binds: "index" is always available, plus whichever named
// binding (iterator_name for ForEach/Repeat, iterator_var for
// While/RepeatUntil) the loop spec configures.
func allowedIteratorNames(l *config.LoopSpec) map[string]bool {
	allowed := map[string]bool{"index": true}
	switch l.Type {
	case config.LoopForEach:
		if l.ForEach != nil && l.ForEach.IteratorName != "" {
			allowed[l.ForEach.IteratorName] = true
		}
	case config.LoopRepeat:
		if l.Repeat != nil && l.Repeat.IteratorName != "" {
			allowed[l.Repeat.IteratorName] = true
		}
	case config.LoopWhile:
		if l.While != nil && l.While.IterationVar != "" {
			allowed[l.While.IterationVar] = true
		}
	case config.LoopRepeatUntil:
		if l.RepeatUntil != nil && l.RepeatUntil.IterationVar != "" {
			allowed[l.RepeatUntil.IterationVar] = true
		}
	}
	return allowed
}

func sortedIteratorNames(allowed map[string]bool) []string {
	names := make([]string, 0, len(allowed))
	for n := range allowed {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// iteratorReferences collects every distinct "${iterator.<name>}" name
// referenced anywhere in t's interpolatable surface, in first-seen order.
func iteratorReferences(t *config.Task) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(s string) {
		for _, match := range iteratorRefRe.FindAllStringSubmatch(s, -1) {
			name := match[1]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	add(t.Description)
	add(t.Output)
	for _, o := range t.Outputs {
		add(o.Path)
		add(o.Key)
		add(o.Task)
	}
	for _, d := range t.DoD {
		add(d.Path)
		add(d.Pattern)
		add(d.Command)
	}
	addConditionStrings(t.Condition, add)
	if t.Loop != nil {
		addConditionStrings(t.Loop.BreakCondition, add)
		addConditionStrings(t.Loop.ContinueCondition, add)
		if t.Loop.ForEach != nil {
			addCollectionSourceStrings(t.Loop.ForEach.Collection, add)
		}
	}
	for _, h := range t.OnComplete {
		addValueStrings(h.Payload, add)
	}
	for _, h := range t.OnError {
		addValueStrings(h.Payload, add)
	}
	return names
}

func addConditionStrings(c *config.Condition, add func(string)) {
	if c == nil {
		return
	}
	add(c.Key)
	if s, ok := c.Value.(string); ok {
		add(s)
	}
	for _, child := range c.Children {
		addConditionStrings(child, add)
	}
	addConditionStrings(c.Child, add)
}

func addCollectionSourceStrings(src config.CollectionSource, add func(string)) {
	add(src.State)
	if src.File != nil {
		add(src.File.Path)
	}
	if src.Http != nil {
		add(src.Http.URL)
		add(src.Http.Body)
		add(src.Http.JSONPath)
		for _, v := range src.Http.Headers {
			add(v)
		}
	}
}

// addValueStrings walks an opaque hook payload (map[string]interface{}, as
// decoded from YAML) for every string leaf, since the engine cannot assume
// anything about a payload's shape beyond that.
func addValueStrings(payload map[string]interface{}, add func(string)) {
	for _, v := range payload {
		walkInterpolatableValue(v, add)
	}
}

func walkInterpolatableValue(v interface{}, add func(string)) {
	switch val := v.(type) {
	case string:
		add(val)
	case map[string]interface{}:
		for _, vv := range val {
			walkInterpolatableValue(vv, add)
		}
	case []interface{}:
		for _, vv := range val {
			walkInterpolatableValue(vv, add)
		}
	}
}

// computeHash returns a stable sha256 hash over a canonical JSON encoding
// of the raw config (map iteration order doesn't affect encoding/json's
// output for map[string]T, which it sorts by key).
func (m *Model) computeHash() string {
	b, err := json.Marshal(m.raw)
	if err != nil {
		// Unreachable for a Validate()-passed config; fall back to a
		// constant so Hash() never panics.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
