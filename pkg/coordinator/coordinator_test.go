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

package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/jitbuild/pkg/comm"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/logging"
)

// fakeCache stands in for the shared cache directory. The first compile of
// a key is the expensive one; later ones are cache hits.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]bool
	builtBy map[int]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]bool{}, builtBy: map[int]int{}}
}

func (c *fakeCache) builders() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for rank := range c.builtBy {
		out = append(out, rank)
	}
	sort.Ints(out)
	return out
}

type fakeTarget struct {
	cache   *fakeCache
	rank    int
	node    string
	names   []string
	fail    error
	calls   int
	kernels []*kernel.Compiled
}

func (t *fakeTarget) Compile(context.Context) error {
	t.calls++
	if t.fail != nil {
		return t.fail
	}
	for _, name := range t.names {
		key := t.node + "/" + name
		t.cache.mu.Lock()
		cached := t.cache.entries[key]
		if !cached {
			t.cache.entries[key] = true
			t.cache.builtBy[t.rank]++
		}
		t.cache.mu.Unlock()
		t.kernels = append(t.kernels, &kernel.Compiled{Name: name, Cached: cached})
	}
	return nil
}

func (t *fakeTarget) Kernels() []*kernel.Compiled { return t.kernels }

type job struct {
	hosts    []string
	scope    Scope
	cacheDir string
	// cacheKey maps a host to the cache it writes to.
	cacheKey func(host string) string
	fail     map[int]error
	prebuild []Hook
}

type result struct {
	reports []*Report
	errs    []error
	targets []*fakeTarget
	cache   *fakeCache
}

func (j job) run(t *testing.T) result {
	t.Helper()
	size := len(j.hosts)
	hub := comm.NewHub()
	cache := newFakeCache()
	res := result{
		reports: make([]*Report, size),
		errs:    make([]error, size),
		targets: make([]*fakeTarget, size),
		cache:   cache,
	}
	if j.cacheKey == nil {
		j.cacheKey = func(host string) string { return host }
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group
	for rank := 0; rank < size; rank++ {
		world, err := hub.Connect(rank, size)
		require.NoError(t, err)
		target := &fakeTarget{
			cache: cache,
			rank:  rank,
			node:  j.cacheKey(j.hosts[rank]),
			names: []string{"axpy_4", "axpy_8", "gradient"},
			fail:  j.fail[rank],
		}
		res.targets[rank] = target

		g.Go(func() error {
			local, err := world.Split(ctx, j.hosts[rank])
			if err != nil {
				res.errs[rank] = err
				return nil
			}
			c, err := New(Config{
				World:    world,
				Local:    local,
				Scope:    j.scope,
				CacheDir: j.cacheDir,
				Prebuild: j.prebuild,
			})
			if err != nil {
				res.errs[rank] = err
				return nil
			}
			res.reports[rank], res.errs[rank] = c.Run(ctx, target)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return res
}

func TestRunNodeScopeElectsOneBuilderPerNode(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	res := job{
		hosts:    []string{"a", "a", "a", "b", "b"},
		scope:    ScopeNode,
		cacheDir: cacheDir,
	}.run(t)

	for rank, err := range res.errs {
		require.NoError(t, err, "rank %d", rank)
	}
	assert.Equal(t, []int{0, 3}, res.cache.builders())

	for rank, r := range res.reports {
		assert.Equal(t, 3, r.Kernels, "rank %d", rank)
		assert.Equal(t, 1, res.targets[rank].calls, "rank %d", rank)
		if rank == 0 || rank == 3 {
			assert.Equal(t, RoleBuilder, r.Role)
			assert.Zero(t, r.CacheHits)
		} else {
			assert.Equal(t, RoleWaiter, r.Role)
			assert.Equal(t, 3, r.CacheHits)
		}
	}

	assert.Equal(t, MarkerPath(cacheDir), res.reports[0].Marker)
	for _, r := range res.reports[1:] {
		assert.Empty(t, r.Marker)
	}
	_, err := os.Stat(MarkerPath(cacheDir))
	assert.NoError(t, err)
}

func TestRunGlobalScopeElectsSingleBuilder(t *testing.T) {
	t.Parallel()

	res := job{
		hosts:    []string{"a", "a", "b", "b"},
		scope:    ScopeGlobal,
		cacheKey: func(string) string { return "shared" },
	}.run(t)

	for rank, err := range res.errs {
		require.NoError(t, err, "rank %d", rank)
	}
	assert.Equal(t, []int{0}, res.cache.builders())
	assert.Equal(t, RoleBuilder, res.reports[0].Role)
	for _, r := range res.reports[1:] {
		assert.Equal(t, RoleWaiter, r.Role)
		assert.Equal(t, "global", r.Scope)
		assert.Equal(t, 3, r.CacheHits)
	}
}

func TestRunFailurePropagatesToEveryParticipant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failRank  int
		wantCause apperrors.ErrorCode
	}{
		{name: "builder", failRank: 3, wantCause: apperrors.ErrCodeCompile},
		{name: "root builder", failRank: 0, wantCause: apperrors.ErrCodeCompile},
		{name: "waiter", failRank: 1, wantCause: apperrors.ErrCodeLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cacheDir := t.TempDir()
			res := job{
				hosts:    []string{"a", "a", "a", "b", "b"},
				scope:    ScopeNode,
				cacheDir: cacheDir,
				fail: map[int]error{
					tt.failRank: apperrors.New(tt.wantCause, "injected failure"),
				},
			}.run(t)

			for rank, err := range res.errs {
				require.Error(t, err, "rank %d", rank)
				if rank == tt.failRank {
					assert.True(t, apperrors.HasCode(err, tt.wantCause), "rank %d: %v", rank, err)
					continue
				}
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAborted), "rank %d: %v", rank, err)
				assert.Contains(t, err.Error(), "injected failure")
			}

			_, err := os.Stat(MarkerPath(cacheDir))
			assert.True(t, os.IsNotExist(err), "marker must not be written after a failed build")
		})
	}
}

func TestRunPrebuildHooksOnBuildersOnly(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	res := job{
		hosts: []string{"a", "a", "b", "c", "c"},
		scope: ScopeNode,
		prebuild: []Hook{func(context.Context) error {
			calls.Add(1)
			return nil
		}},
	}.run(t)

	for rank, err := range res.errs {
		require.NoError(t, err, "rank %d", rank)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunPrebuildHookFailure(t *testing.T) {
	t.Parallel()

	res := job{
		hosts: []string{"a", "a"},
		scope: ScopeGlobal,
		prebuild: []Hook{func(context.Context) error {
			return errors.New("compiler probe failed")
		}},
	}.run(t)

	assert.True(t, apperrors.HasCode(res.errs[0], apperrors.ErrCodeCompile))
	assert.Contains(t, res.errs[0].Error(), "prebuild hook 0 failed")
	assert.Zero(t, res.targets[0].calls)
	assert.True(t, apperrors.HasCode(res.errs[1], apperrors.ErrCodeAborted))
}

func TestRunRecordsPhases(t *testing.T) {
	t.Parallel()

	world, err := comm.NewHub().Connect(0, 1)
	require.NoError(t, err)
	c, err := New(Config{World: world, CacheDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, RoleBuilder, c.Role())

	target := &fakeTarget{cache: newFakeCache(), names: []string{"k"}}
	report, err := c.Run(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, c.Phase())

	var phases []Phase
	for _, p := range report.Phases {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []Phase{PhaseBuilderPass, PhaseSyncBarrier, PhaseWaiterPass, PhaseDone}, phases)
	assert.Zero(t, report.PhaseDuration(PhaseIdle))

	_, err = c.Run(context.Background(), target)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
	assert.Equal(t, 1, target.calls)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	world, err := comm.NewHub().Connect(0, 1)
	require.NoError(t, err)
	_, err = New(Config{World: world, Scope: ScopeNode})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))

	_, err = New(Config{World: world, Scope: Scope(7)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
}

func TestScope(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ScopeNode, ScopeFor(true))
	assert.Equal(t, ScopeGlobal, ScopeFor(false))
	assert.Equal(t, "node", ScopeNode.String())
	assert.Equal(t, "global", ScopeGlobal.String())
	assert.Equal(t, "Scope(9)", Scope(9).String())
}

func TestStatus(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Status(dir)
	require.NoError(t, err)
	assert.False(t, st.Finished)

	artifact := filepath.Join(dir, "serial", "axpy_4-0123")
	require.NoError(t, os.MkdirAll(artifact, 0o755))
	lib := filepath.Join(artifact, "axpy_4.so")
	require.NoError(t, os.WriteFile(lib, []byte("x"), 0o644))

	finished := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, os.Chtimes(lib, finished.Add(-time.Hour), finished.Add(-time.Hour)))
	_, err = WriteMarker(dir, finished)
	require.NoError(t, err)

	st, err = Status(dir)
	require.NoError(t, err)
	assert.True(t, st.Finished)
	assert.True(t, st.FinishedAt.Equal(finished))
	assert.False(t, st.Stale)

	require.NoError(t, os.Chtimes(lib, time.Now(), time.Now()))
	st, err = Status(dir)
	require.NoError(t, err)
	assert.True(t, st.Stale)
	assert.Equal(t, []string{filepath.Join("serial", "axpy_4-0123", "axpy_4.so")}, st.Newer)
}

func TestRunLogsRankAttributesOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.WithRank(slog.New(slog.NewJSONHandler(&buf, nil)), 0, 0, 1)

	world, err := comm.NewHub().Connect(0, 1)
	require.NoError(t, err)
	c, err := New(Config{World: world, Scope: ScopeGlobal, Logger: logger})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), &fakeTarget{cache: newFakeCache(), names: []string{"axpy_4"}})
	require.NoError(t, err)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] != "loading kernels ..." {
			continue
		}
		found = true
		assert.Equal(t, 1, bytes.Count(line, []byte(`"size":`)), "%s", line)
		assert.Equal(t, "global", entry["scope"])
	}
	assert.True(t, found, "start of the build is logged")
}
