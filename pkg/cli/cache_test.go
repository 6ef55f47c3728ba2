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

package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
)

func TestCacheStatusMissingDirectory(t *testing.T) {
	t.Parallel()

	report, err := cacheStatus(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, report.Finished)
	assert.Empty(t, report.Artifacts)
}

func TestCacheStatusAfterBuild(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	_, err := runSimulation(context.Background(), simulation{
		cfg:      cfg,
		ranks:    2,
		nodes:    1,
		manifest: writeKernels(t),
		compiler: &stubCompiler{},
	})
	require.NoError(t, err)

	report, err := cacheStatus(cfg.CacheDir)
	require.NoError(t, err)
	assert.True(t, report.Finished)
	assert.False(t, report.Stale)
	require.Len(t, report.Artifacts, 2)
	assert.Less(t, report.Artifacts[0].Path, report.Artifacts[1].Path)

	names := []string{report.Artifacts[0].Name, report.Artifacts[1].Name}
	assert.ElementsMatch(t, []string{"axpy_4", "axpy_8"}, names)
	for _, a := range report.Artifacts {
		assert.Equal(t, kernel.KindNative, a.Kind)
		assert.Equal(t, "node-0", a.Host)
		assert.True(t, strings.HasPrefix(a.Symbol, "axpy_"), a.Symbol)
	}

	entries, err := build.Inspect(cfg.CacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, len(report.Artifacts))
}

// TestCachePushCommand runs the full command tree, so it must not run in
// parallel with other tests sharing the output flags.
func TestCachePushCommand(t *testing.T) {
	cfg := testConfig(t)
	_, err := runSimulation(context.Background(), simulation{
		cfg:      cfg,
		ranks:    1,
		nodes:    1,
		manifest: writeKernels(t),
		compiler: &stubCompiler{},
	})
	require.NoError(t, err)

	layout := filepath.Join(t.TempDir(), "layout")
	out := filepath.Join(t.TempDir(), "push.json")
	err = newRootCmd().Run(context.Background(), []string{
		name, "--log-level", "error",
		"cache", "push",
		"--cache-dir", cfg.CacheDir,
		"--target", layout,
		"--tag", "v1",
		"--output", out,
		"--format", "json",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Kind string `json:"kind"`
		Data struct {
			Digest    string `json:"digest"`
			Reference string `json:"reference"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "PushResult", doc.Kind)
	assert.True(t, strings.HasPrefix(doc.Data.Digest, "sha256:"), doc.Data.Digest)
	assert.Contains(t, doc.Data.Reference, "v1")
	assert.FileExists(t, filepath.Join(layout, "index.json"))
}
