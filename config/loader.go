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

package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader reads a workflow document from YAML bytes, expands environment
// variables, decodes into typed structs and applies defaults + validation.
// It mirrors the two-pass decode (yaml -> map -> mapstructure) the rest of
// this corpus uses for its own config loading.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader { return &Loader{} }

// LoadFile loads a workflow document from a path on disk. Before reading
// path, it loads envFileCascade into the process environment so a
// "${VAR}" reference in the document can resolve from a developer's local
// .env file, not just whatever the shell already exported (spec.md treats
// this as ambient config bootstrap, outside the workflow document itself).
func (l *Loader) LoadFile(path string) (*Workflow, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return l.LoadBytes(data)
}

// LoadBytes loads a workflow document from raw YAML bytes.
func (l *Loader) LoadBytes(data []byte) (*Workflow, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)

	var wf Workflow
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &wf,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	wf.SetDefaults()
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &wf, nil
}
