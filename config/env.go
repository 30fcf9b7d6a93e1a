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
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envExpansion is one substitution rule in the cascade expandEnvVars walks,
// most-specific first: "${VAR:-default}" before "${VAR}" before bare "$VAR".
type envExpansion struct {
	pattern *regexp.Regexp
	resolve func(match []string) string
}

var envExpansions = []envExpansion{
	{
		// ${VAR:-default}
		pattern: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		resolve: func(m []string) string {
			if val, ok := os.LookupEnv(m[1]); ok && val != "" {
				return val
			}
			return m[2]
		},
	},
	{
		// ${VAR}
		pattern: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
		resolve: func(m []string) string { return os.Getenv(m[1]) },
	},
	{
		// $VAR
		pattern: regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
		resolve: func(m []string) string { return os.Getenv(m[1]) },
	},
}

// expandEnvVars substitutes "${VAR:-default}", "${VAR}", and "$VAR"
// references in s against the process environment, applying envExpansions
// in order so the most specific form is consumed before a looser one could
// misfire on the same text.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	for _, e := range envExpansions {
		s = e.pattern.ReplaceAllStringFunc(s, func(match string) string {
			parts := e.pattern.FindStringSubmatch(match)
			if parts == nil {
				return match
			}
			return e.resolve(parts)
		})
	}
	return s
}

// parseValue re-types a string produced by env expansion: workflow authors
// write `timeout: ${TASK_TIMEOUT}` expecting a number once TASK_TIMEOUT is
// substituted in, not the literal string the regexp replacement leaves
// behind, so the decode pipeline needs this before mapstructure sees it.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// ExpandEnvVarsInData walks a decoded YAML document (the
// map[string]interface{}/[]interface{}/scalar shape yaml.Unmarshal produces
// into `interface{}`) and expands env references in every string leaf,
// re-typing any leaf whose expansion changed its value so a field like
// `max_iterations: ${MAX_ITER}` decodes as a number rather than a string.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded == v {
			return v
		}
		return parseValue(expanded)

	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = ExpandEnvVarsInData(val)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = ExpandEnvVarsInData(val)
		}
		return out

	default:
		return v
	}
}

// envFileCascade lists the dotenv files Loader.LoadFile consults before
// reading a workflow document, most to least authoritative: godotenv.Load
// never overwrites a variable already present in the process environment,
// so loading ".env.local" first lets a developer's local overrides win,
// then ".env" fills in anything still unset, and the real environment (set
// before either file loads) always wins over both.
var envFileCascade = []string{".env.local", ".env"}

// LoadEnvFiles loads envFileCascade into the process environment so
// expandEnvVars has values to substitute even when a workflow is run
// outside a shell that already exports them. A missing file is not an
// error — only a file that exists but fails to parse is.
func LoadEnvFiles() error {
	for _, path := range envFileCascade {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}
