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

// Package loop implements the Loop Runtime (spec.md §4.7, C7): it
// materializes a collection, iterates it sequentially or with a
// concurrency cap, binds iterator variables, evaluates break/continue,
// checkpoints progress, and collects results in iteration-index order.
package loop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kadirpekel/hector/config"
	"github.com/kadirpekel/hector/enginerr"
	"github.com/kadirpekel/hector/variables"
)

// MaxCollectionSize mirrors config.MaxCollectionSize (spec.md §4.7 "a hard
// maximum is enforced").
const MaxCollectionSize = config.MaxCollectionSize

// StateReader is the minimal read surface Materialize needs for a State
// collection source.
type StateReader interface {
	State(key string) (variables.Value, bool)
}

// HTTPDoer is satisfied by *http.Client; declared as an interface so tests
// can stub network calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Materialize eagerly resolves src into a concrete slice of iteration
// values, per spec.md §4.7: "For ForEach, the collection source is
// resolved eagerly before iteration begins (so size is known and
// resumable)." Range is materialized through RangeValues, which also
// returns a concrete slice, so every source is held in memory in full.
func Materialize(ctx context.Context, src config.CollectionSource, reader StateReader, client HTTPDoer) ([]variables.Value, error) {
	switch src.Type {
	case "inline":
		return fromNative(src.Inline)

	case "state":
		v, ok := reader.State(src.State)
		if !ok {
			return nil, enginerr.New(enginerr.KindValidation, "Materialize",
				"state collection source references unknown key "+src.State, nil)
		}
		arr, ok := v.AsArray()
		if !ok {
			return nil, enginerr.New(enginerr.KindValidation, "Materialize",
				"state collection source "+src.State+" is not an array", nil)
		}
		return boundedCopy(arr)

	case "range":
		if src.Range == nil {
			return nil, enginerr.New(enginerr.KindValidation, "Materialize", "range collection source missing range spec", nil)
		}
		return RangeValues(*src.Range)

	case "file":
		if src.File == nil {
			return nil, enginerr.New(enginerr.KindValidation, "Materialize", "file collection source missing file spec", nil)
		}
		return materializeFile(*src.File)

	case "http":
		if src.Http == nil {
			return nil, enginerr.New(enginerr.KindValidation, "Materialize", "http collection source missing http spec", nil)
		}
		return materializeHTTP(ctx, *src.Http, client)

	default:
		return nil, enginerr.New(enginerr.KindValidation, "Materialize", "unknown collection source type "+src.Type, nil)
	}
}

func fromNative(items []interface{}) ([]variables.Value, error) {
	if len(items) > MaxCollectionSize {
		return nil, enginerr.New(enginerr.KindCollectionTooLarge, "Materialize",
			fmt.Sprintf("inline collection of %d items exceeds hard limit %d", len(items), MaxCollectionSize), nil)
	}
	out := make([]variables.Value, len(items))
	for i, it := range items {
		out[i] = variables.FromNative(it)
	}
	return out, nil
}

func boundedCopy(vs []variables.Value) ([]variables.Value, error) {
	if len(vs) > MaxCollectionSize {
		return nil, enginerr.New(enginerr.KindCollectionTooLarge, "Materialize",
			fmt.Sprintf("collection of %d items exceeds hard limit %d", len(vs), MaxCollectionSize), nil)
	}
	out := make([]variables.Value, len(vs))
	copy(out, vs)
	return out, nil
}

// RangeValues materializes a RangeSource. It is still a concrete slice
// (the Go representation has no cheaper lazy form that the rest of the
// engine, which indexes by position, can consume) but is computed directly
// from the arithmetic sequence rather than reading any external resource.
func RangeValues(r config.RangeSource) ([]variables.Value, error) {
	step := r.Step
	if step == 0 {
		step = 1
	}
	var count int
	if step > 0 {
		if r.End > r.Start {
			count = (r.End - r.Start + step - 1) / step
		}
	} else {
		if r.Start > r.End {
			count = (r.Start - r.End - step - 1) / (-step)
		}
	}
	if count > MaxCollectionSize {
		return nil, enginerr.New(enginerr.KindCollectionTooLarge, "RangeValues",
			fmt.Sprintf("range of %d items exceeds hard limit %d", count, MaxCollectionSize), nil)
	}
	if count <= 0 {
		return nil, nil
	}
	out := make([]variables.Value, count)
	v := r.Start
	for i := 0; i < count; i++ {
		out[i] = variables.Number(float64(v))
		v += step
	}
	return out, nil
}

func materializeFile(src config.FileSource) ([]variables.Value, error) {
	data, err := readFile(src.Path)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindIO, "materializeFile", err)
	}
	return parseCollection(data, src.Format)
}

func parseCollection(data []byte, format string) ([]variables.Value, error) {
	switch format {
	case "json":
		var items []interface{}
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, enginerr.Wrap(enginerr.KindIO, "parseCollection", err)
		}
		return fromNative(items)

	case "json_lines":
		var out []variables.Value
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var v interface{}
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return nil, enginerr.Wrap(enginerr.KindIO, "parseCollection", err)
			}
			out = append(out, variables.FromNative(v))
		}
		return boundedCopy(out)

	case "csv":
		r := csv.NewReader(bytes.NewReader(data))
		rows, err := r.ReadAll()
		if err != nil {
			return nil, enginerr.Wrap(enginerr.KindIO, "parseCollection", err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		header := rows[0]
		out := make([]variables.Value, 0, len(rows)-1)
		for _, row := range rows[1:] {
			fields := make(map[string]variables.Value, len(header))
			for i, h := range header {
				if i < len(row) {
					fields[h] = variables.String(row[i])
				}
			}
			out = append(out, variables.Object(fields))
		}
		return boundedCopy(out)

	case "lines", "":
		var out []variables.Value
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			out = append(out, variables.String(scanner.Text()))
		}
		return boundedCopy(out)

	default:
		return nil, enginerr.New(enginerr.KindValidation, "parseCollection", "unknown file format "+format, nil)
	}
}

func materializeHTTP(ctx context.Context, src config.HttpSource, client HTTPDoer) ([]variables.Value, error) {
	method := src.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if src.Body != "" {
		body = strings.NewReader(src.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, src.URL, body)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindHTTP, "materializeHTTP", err)
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindHTTP, "materializeHTTP", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindHTTP, "materializeHTTP", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, enginerr.New(enginerr.KindHTTP, "materializeHTTP",
			fmt.Sprintf("http collection source returned status %d", resp.StatusCode), nil)
	}

	if src.JSONPath != "" {
		result := gjson.GetBytes(data, src.JSONPath)
		if !result.Exists() {
			return nil, enginerr.New(enginerr.KindHTTP, "materializeHTTP",
				"json_path "+src.JSONPath+" did not match the response body", nil)
		}
		data = []byte(result.Raw)
	}

	format := src.Format
	if format == "" {
		format = "json"
	}
	return parseCollection(data, format)
}

// readFile is a var so tests can stub it without touching the real
// filesystem.
var readFile = os.ReadFile
