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

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/jitbuild/pkg/build"
	"github.com/NVIDIA/jitbuild/pkg/comm"
	"github.com/NVIDIA/jitbuild/pkg/config"
	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/udf"
)

const axpySource = `void FUNC(axpy)(int n, double a, const double *x, double *y) {
  for (int i = 0; i < n; ++i) y[i] += a * x[i];
}
`

// countingCompiler writes a placeholder binary and counts invocations. A
// non-nil err fails every compile.
type countingCompiler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCompiler) Compile(_ context.Context, u build.Unit) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	out := filepath.Join(u.OutputDir, u.Symbol+".so")
	return out, os.WriteFile(out, []byte("binary:"+u.Symbol), 0o600)
}

func (c *countingCompiler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	return cfg
}

func axpySpecs(t *testing.T) []kernel.Spec {
	t.Helper()
	src := filepath.Join(t.TempDir(), "axpy.c")
	require.NoError(t, os.WriteFile(src, []byte(axpySource), 0o600))

	var specs []kernel.Spec
	for _, n := range []int{4, 8} {
		specs = append(specs, kernel.Spec{
			RequestName: fmt.Sprintf("axpy_%d", n),
			SourceFile:  src,
			EntryName:   "axpy",
			Suffix:      fmt.Sprintf("_%d", n),
			Properties:  kernel.NewProperties(kernel.Property{Key: "defines/p_N", Value: n}),
		})
	}
	return specs
}

func singleRank(t *testing.T) comm.Communicator {
	t.Helper()
	world, err := comm.NewHub().Connect(0, 1)
	require.NoError(t, err)
	return world
}

func TestPlatformSingleRank(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cc := &countingCompiler{}
	p, err := New(ctx, cfg, singleRank(t), WithCompiler(cc), WithHostname("node-a"))
	require.NoError(t, err)

	assert.Equal(t, coordinator.RoleBuilder, p.Role())
	assert.Equal(t, "node-a", p.Host())
	assert.Equal(t, 0, p.Device().ID)
	assert.Equal(t, 0, p.Local().Rank())

	for _, spec := range axpySpecs(t) {
		require.NoError(t, p.Add(spec, true))
	}

	_, err = p.Kernel("axpy_4", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLookup), "lookup before compile")
	assert.False(t, p.Processed())

	report, err := p.Compile(ctx)
	require.NoError(t, err)
	assert.True(t, p.Processed())
	assert.Equal(t, 2, report.Kernels)
	assert.Equal(t, 2, cc.count())
	assert.FileExists(t, coordinator.MarkerPath(cfg.CacheDir))

	k4, err := p.Kernel("axpy_4", true)
	require.NoError(t, err)
	k8, err := p.Kernel("axpy_8", true)
	require.NoError(t, err)
	assert.Equal(t, "axpy_4", k4.Symbol)
	assert.Equal(t, "axpy_8", k8.Symbol)
	assert.NotEqual(t, k4.ArtifactDir, k8.ArtifactDir)
	assert.Len(t, p.Kernels(), 2)

	_, err = p.Kernel("doesNotExist", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLookup))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Kernel("axpy_4", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidHandle))
	_, err = p.Kernel("axpy_4", false)
	assert.NoError(t, err)

	err = p.Add(axpySpecs(t)[0], false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
	_, err = p.Compile(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
}

func TestPlatformRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Backend = "OpenMP"
	_, err := New(ctx, cfg, singleRank(t), WithCompiler(&countingCompiler{}))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	_, err = New(ctx, nil, singleRank(t))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	_, err = New(ctx, testConfig(t), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	cfg = testConfig(t)
	cfg.Plugin = filepath.Join(t.TempDir(), "missing.so")
	_, err = New(ctx, cfg, singleRank(t), WithCompiler(&countingCompiler{}))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
}

func TestPlatformHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.KernelInfo = kernel.NewProperties(kernel.Property{Key: "defines/dfloat", Value: "double"})

	hooks := udf.Noop()
	hooks.LoadKernels = func(p *kernel.Properties) {
		p.Set("defines/p_cubeNq", 12)
	}
	p, err := New(ctx, cfg, singleRank(t), WithCompiler(&countingCompiler{}), WithHooks(hooks))
	require.NoError(t, err)

	info := p.KernelInfo()
	assert.Equal(t, "double", info.Text("defines/dfloat"))
	assert.Equal(t, "12", info.Text("defines/p_cubeNq"))
	assert.Equal(t, 1, cfg.KernelInfo.Len(), "config properties must not change")

	failing := udf.Noop()
	failing.Setup = func(context.Context) error { return errors.New("usrdat failed") }
	_, err = New(ctx, testConfig(t), singleRank(t), WithCompiler(&countingCompiler{}), WithHooks(failing))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "usrdat failed")
}

type rankResult struct {
	platform *Platform
	compiler *countingCompiler
	report   *coordinator.Report
	err      error
}

func runJob(t *testing.T, hosts []string, cfg func() *config.Config, specs []kernel.Spec) []rankResult {
	t.Helper()
	return runJobWith(t, hosts, cfg, specs, func(int) *countingCompiler { return &countingCompiler{} })
}

func runJobWith(t *testing.T, hosts []string, cfg func() *config.Config, specs []kernel.Spec,
	compiler func(rank int) *countingCompiler) []rankResult {
	t.Helper()
	hub := comm.NewHub()
	size := len(hosts)
	results := make([]rankResult, size)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group
	for rank := 0; rank < size; rank++ {
		world, err := hub.Connect(rank, size)
		require.NoError(t, err)
		results[rank].compiler = compiler(rank)

		g.Go(func() error {
			res := &results[rank]
			p, err := New(ctx, cfg(), world, WithCompiler(res.compiler), WithHostname(hosts[rank]))
			if err != nil {
				res.err = err
				return nil
			}
			res.platform = p
			for _, spec := range specs {
				if err := p.Add(spec, true); err != nil {
					res.err = err
					return nil
				}
			}
			res.report, res.err = p.Compile(ctx)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return results
}

func TestPlatformNodeLocalBuild(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	specs := axpySpecs(t)
	results := runJob(t, []string{"a", "a", "b", "b"}, func() *config.Config {
		cfg := config.Default()
		cfg.CacheDir = cacheDir
		cfg.BuildNodeLocal = true
		return cfg
	}, specs)

	for rank, res := range results {
		require.NoError(t, res.err, "rank %d", rank)
		p := res.platform
		assert.Equal(t, rank%2, p.Local().Rank(), "rank %d", rank)
		assert.Equal(t, rank%2, p.Device().ID, "device selected by local rank")

		for _, spec := range specs {
			k, err := p.Kernel(spec.RequestName, true)
			require.NoError(t, err, "rank %d", rank)
			assert.Equal(t, spec.Symbol(), k.Symbol)
		}

		if p.Role() == coordinator.RoleWaiter {
			assert.Zero(t, res.compiler.count(), "waiter rank %d must not compile", rank)
			assert.Equal(t, len(specs), res.report.CacheHits)
		}
	}
	assert.Equal(t, coordinator.RoleBuilder, results[0].platform.Role())
	assert.Equal(t, coordinator.RoleBuilder, results[2].platform.Role())
	assert.LessOrEqual(t, results[0].compiler.count()+results[2].compiler.count(), 2*len(specs))
	assert.FileExists(t, coordinator.MarkerPath(cacheDir))
}

func TestPlatformBuildFailureAbortsJob(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	specs := []kernel.Spec{{
		RequestName: "missing",
		SourceFile:  filepath.Join(t.TempDir(), "missing.c"),
		EntryName:   "missing",
	}}
	results := runJob(t, []string{"a", "a", "b"}, func() *config.Config {
		cfg := config.Default()
		cfg.CacheDir = cacheDir
		return cfg
	}, specs)

	require.Error(t, results[0].err)
	assert.True(t, apperrors.HasCode(results[0].err, apperrors.ErrCodeCompile), "%v", results[0].err)
	for _, res := range results[1:] {
		require.Error(t, res.err)
		assert.True(t, apperrors.HasCode(res.err, apperrors.ErrCodeAborted), "%v", res.err)
		assert.Contains(t, res.err.Error(), "missing")
	}
	_, err := os.Stat(coordinator.MarkerPath(cacheDir))
	assert.True(t, os.IsNotExist(err))
}

func TestPlatformLookupsFailAfterJobAbort(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	specs := axpySpecs(t)
	results := runJobWith(t, []string{"a", "a", "b"}, func() *config.Config {
		cfg := config.Default()
		cfg.CacheDir = cacheDir
		cfg.BuildNodeLocal = true
		return cfg
	}, specs, func(rank int) *countingCompiler {
		if rank == 2 {
			return &countingCompiler{err: errors.New("out of registers")}
		}
		return &countingCompiler{}
	})

	require.Error(t, results[2].err)
	assert.True(t, apperrors.HasCode(results[2].err, apperrors.ErrCodeCompile), "%v", results[2].err)

	for rank, res := range results {
		require.Error(t, res.err, "rank %d", rank)
		require.NotNil(t, res.platform, "rank %d", rank)
		p := res.platform

		assert.False(t, p.Processed(), "rank %d", rank)
		assert.Empty(t, p.Kernels(), "rank %d", rank)
		for _, spec := range specs {
			_, err := p.Kernel(spec.RequestName, true)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLookup), "rank %d: %v", rank, err)
		}
	}
	assert.True(t, apperrors.HasCode(results[0].err, apperrors.ErrCodeAborted), "%v", results[0].err)

	_, err := os.Stat(coordinator.MarkerPath(cacheDir))
	assert.True(t, os.IsNotExist(err))
}
