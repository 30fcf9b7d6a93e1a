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

// Package dod evaluates a task's definition-of-done criteria (spec.md
// §4.9 step 5): file_exists, file_contains, file_not_contains,
// directory_exists, command_succeeds, tests_passed, output_matches.
package dod

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
)

// Outcome reports a criterion's result plus a feedback line to fold into a
// retry prompt when it failed.
type Outcome struct {
	Met      bool
	Feedback string
}

// Check evaluates one criterion. stdout/stderr are the task's captured
// output, consulted by output_matches; command_succeeds and tests_passed
// shell out via exec.CommandContext, matching spec.md's "best-effort
// external resource" treatment of command execution.
func Check(ctx context.Context, c config.DoDCriterion, stdout, stderr []byte) (Outcome, error) {
	switch c.Type {
	case "file_exists":
		if _, err := os.Stat(c.Path); err != nil {
			return Outcome{Feedback: "expected file to exist: " + c.Path}, nil
		}
		return Outcome{Met: true}, nil

	case "directory_exists":
		info, err := os.Stat(c.Path)
		if err != nil || !info.IsDir() {
			return Outcome{Feedback: "expected directory to exist: " + c.Path}, nil
		}
		return Outcome{Met: true}, nil

	case "file_contains":
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return Outcome{Feedback: "could not read file " + c.Path + ": " + err.Error()}, nil
		}
		ok, rerr := matches(data, c.Pattern)
		if rerr != nil {
			return Outcome{}, rerr
		}
		if !ok {
			return Outcome{Feedback: "expected " + c.Path + " to contain pattern " + c.Pattern}, nil
		}
		return Outcome{Met: true}, nil

	case "file_not_contains":
		data, err := os.ReadFile(c.Path)
		if err != nil {
			// A missing file trivially does not contain the pattern.
			return Outcome{Met: true}, nil
		}
		ok, rerr := matches(data, c.Pattern)
		if rerr != nil {
			return Outcome{}, rerr
		}
		if ok {
			return Outcome{Feedback: "expected " + c.Path + " not to contain pattern " + c.Pattern}, nil
		}
		return Outcome{Met: true}, nil

	case "output_matches":
		ok, rerr := matches(stdout, c.Pattern)
		if rerr != nil {
			return Outcome{}, rerr
		}
		if !ok {
			return Outcome{Feedback: "expected task output to match pattern " + c.Pattern}, nil
		}
		return Outcome{Met: true}, nil

	case "command_succeeds", "tests_passed":
		cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return Outcome{Feedback: c.Command + " failed: " + out.String()}, nil
		}
		return Outcome{Met: true}, nil

	default:
		return Outcome{}, enginerr.New(enginerr.KindValidation, "Check", "unknown definition_of_done type "+c.Type, nil)
	}
}

func matches(data []byte, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, enginerr.Wrap(enginerr.KindValidation, "Check", err)
	}
	return re.Match(data), nil
}
