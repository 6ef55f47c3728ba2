// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package serializer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string            `json:"name" yaml:"name"`
	Count   int               `json:"count" yaml:"count"`
	Tags    []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Started time.Time         `json:"started" yaml:"started"`
}

func TestWriterFormats(t *testing.T) {
	t.Parallel()

	data := sample{
		Name:    "axpy",
		Count:   3,
		Tags:    []string{"native"},
		Started: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatJSON, []string{`"name": "axpy"`, `"count": 3`}},
		{FormatYAML, []string{"name: axpy", "count: 3", "- native"}},
		{FormatTable, []string{"FIELD", "name", "axpy", "tags.[0]", "started", "2025-03-01T12:00:00Z"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, NewWriter(tt.format, &buf).Serialize(context.Background(), data))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestWriterUnknownFormatDefaultsToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewWriter(Format("xml"), &buf).Serialize(context.Background(), map[string]int{"a": 1}))
	assert.Contains(t, buf.String(), `"a": 1`)
}

func TestWriterCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	assert.Error(t, NewWriter(FormatJSON, &buf).Serialize(ctx, 1))
	assert.Empty(t, buf.String())
}

type inner struct {
	Kind string `yaml:"kind"`
}

type outer struct {
	Header inner  `yaml:"header"`
	Secret string `yaml:"-"`
	Plain  string
	Took   time.Duration `yaml:"took"`
}

func TestWriterTableKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	v := outer{Header: inner{Kind: "BuildReport"}, Secret: "s3cret", Plain: "p", Took: 1500 * time.Millisecond}
	require.NoError(t, NewWriter(FormatTable, &buf).Serialize(context.Background(), v))

	out := buf.String()
	assert.Contains(t, out, "header.kind")
	assert.Contains(t, out, "Plain")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "s3cret")
}

func TestWriterEmptyTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewWriter(FormatTable, &buf).Serialize(context.Background(), struct{}{}))
	assert.Equal(t, "<empty>\n", buf.String())
}

func TestNewFileWriterOrStdout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.yaml")
	w := NewFileWriterOrStdout(FormatYAML, path)
	require.NoError(t, w.Serialize(context.Background(), sample{Name: "x"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: x")

	stdout := NewFileWriterOrStdout(FormatJSON, "  ")
	assert.Equal(t, os.Stdout, stdout.output)
	assert.NoError(t, stdout.Close())
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatJSON, FormatFromPath("a.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("a.YAML"))
	assert.Equal(t, FormatYAML, FormatFromPath("dir/a.yml"))
	assert.Equal(t, FormatTable, FormatFromPath("a.txt"))
	assert.Equal(t, FormatJSON, FormatFromPath("a"))
	assert.Equal(t, []string{"json", "yaml", "table"}, SupportedFormats())
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: gradient\ncount: 2\nlabels:\n  node: a\n"), 0600))
	got, err := FromFile[sample](yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "gradient", got.Name)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "a", got.Labels["node"])

	jsonPath := filepath.Join(dir, "s.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"mask","count":1}`), 0600))
	got, err = FromFile[sample](jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "mask", got.Name)

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0600))
	got, err = FromFile[sample](emptyPath)
	require.NoError(t, err)
	assert.Equal(t, sample{}, *got)
}

func TestFromFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := FromFile[sample](filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("name: a\ncolour: red\n"), 0600))
	_, err = FromFile[sample](unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")

	table := filepath.Join(dir, "out.table")
	require.NoError(t, os.WriteFile(table, []byte("x"), 0600))
	_, err = FromFile[sample](table)
	assert.Error(t, err)
}

func TestReaderClose(t *testing.T) {
	t.Parallel()

	r, err := NewReader(FormatJSON, strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	var nilReader *Reader
	assert.NoError(t, nilReader.Close())
	assert.Error(t, nilReader.Deserialize(&sample{}))
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusAccepted, map[string]string{"status": "ok"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"a","count":1}`},
		{name: "unknown field", body: `{"name":"a","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"a"}{"name":"b"}`, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", 100) + `"}`, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var s sample
			err := DecodeJSON(req, &s, 64)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", s.Name)
		})
	}
}
