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

// Package context implements the Context Engine (spec.md §4.6, C6): it
// truncates captured stdout/stderr to byte budgets, ranks prior task
// outputs by relevance, assembles a bounded context blob for a downstream
// task, and evicts retained outputs to bound total memory.
package context

import (
	"fmt"
	"regexp"
)

// Strategy selects a truncation policy (spec.md §4.6).
type Strategy string

const (
	StrategyTail    Strategy = "tail"
	StrategyHead    Strategy = "head"
	StrategyBoth    Strategy = "both"
	StrategySummary Strategy = "summary" // falls back to tail, per SPEC_FULL Open Question resolution #2
)

func markerFor(dropped int) string {
	return fmt.Sprintf("--- [%d bytes truncated] ---", dropped)
}

// tailMarkerRe/headMarkerRe recognize a marker this package itself produced,
// anchored to the position truncateTail/truncateHead always place it at
// (start-of-data, end-of-data respectively), so a match can only be a prior
// truncation output, never coincidental payload content elsewhere.
var (
	tailMarkerRe = regexp.MustCompile(`^--- \[\d+ bytes truncated\] ---\n`)
	headMarkerRe = regexp.MustCompile(`\n--- \[\d+ bytes truncated\] ---$`)
	bothMarkerRe = regexp.MustCompile(`\n--- \[\d+ bytes truncated\] ---\n`)
)

// Truncate applies strategy to data, bounding it to at most limit bytes of
// payload plus marker overhead (spec.md Testable Property #6). Truncation
// is idempotent: truncating an already-within-budget output returns it
// unchanged with truncated=false, and re-truncating an already-truncated
// output at the same limit/strategy is a fixed point — Truncate first
// checks whether data already carries a marker this package would have
// produced for limit, and if so returns it unchanged rather than stripping
// a second, smaller slice out of the marker-plus-keep bytes.
func Truncate(data []byte, limit int64, strategy Strategy) (out []byte, truncated bool) {
	if limit <= 0 || int64(len(data)) <= limit {
		return data, false
	}

	switch strategy {
	case StrategyHead:
		if alreadyTruncatedAt(data, limit, headMarkerRe) {
			return data, true
		}
		return truncateHead(data, limit), true
	case StrategyBoth:
		if alreadyTruncatedBoth(data, limit) {
			return data, true
		}
		return truncateBoth(data, limit), true
	default: // StrategyTail, StrategySummary, "", and any unrecognized value
		if alreadyTruncatedAt(data, limit, tailMarkerRe) {
			return data, true
		}
		return truncateTail(data, limit), true
	}
}

// alreadyTruncatedAt reports whether data is exactly what Truncate would
// have produced for limit under the tail/head marker re: the marker is
// present at its anchored position and the remaining payload already fits
// within limit.
func alreadyTruncatedAt(data []byte, limit int64, re *regexp.Regexp) bool {
	loc := re.FindIndex(data)
	if loc == nil {
		return false
	}
	payload := int64(len(data)) - int64(loc[1]-loc[0])
	return payload <= limit
}

// alreadyTruncatedBoth is the "both" analogue of alreadyTruncatedAt: it
// additionally checks the marker sits exactly at the head/tail boundary
// truncateBoth always places it at, since the marker regex isn't anchored
// to start or end for this strategy.
func alreadyTruncatedBoth(data []byte, limit int64) bool {
	headLen := limit / 2
	tailLen := limit - headLen
	loc := bothMarkerRe.FindIndex(data)
	if loc == nil {
		return false
	}
	if int64(loc[0]) != headLen {
		return false
	}
	return int64(len(data)-loc[1]) == tailLen
}

func truncateTail(data []byte, limit int64) []byte {
	dropped := int64(len(data)) - limit
	marker := []byte(markerFor(int(dropped)) + "\n")
	keep := data[len(data)-int(limit):]
	out := make([]byte, 0, len(marker)+len(keep))
	out = append(out, marker...)
	out = append(out, keep...)
	return out
}

func truncateHead(data []byte, limit int64) []byte {
	dropped := int64(len(data)) - limit
	marker := []byte("\n" + markerFor(int(dropped)))
	keep := data[:limit]
	out := make([]byte, 0, len(keep)+len(marker))
	out = append(out, keep...)
	out = append(out, marker...)
	return out
}

func truncateBoth(data []byte, limit int64) []byte {
	headLen := limit / 2
	tailLen := limit - headLen
	dropped := int64(len(data)) - limit
	marker := []byte("\n" + markerFor(int(dropped)) + "\n")

	head := data[:headLen]
	tail := data[int64(len(data))-tailLen:]

	out := make([]byte, 0, len(head)+len(marker)+len(tail))
	out = append(out, head...)
	out = append(out, marker...)
	out = append(out, tail...)
	return out
}
