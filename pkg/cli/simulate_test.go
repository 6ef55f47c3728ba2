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
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/jitbuild/pkg/coordinator"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

func TestRunSimulationGlobalScope(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	compiler := &stubCompiler{}
	result, err := runSimulation(context.Background(), simulation{
		cfg:      cfg,
		ranks:    4,
		nodes:    2,
		manifest: writeKernels(t),
		compiler: compiler,
	})
	require.NoError(t, err)

	assert.Equal(t, "global", result.Scope)
	assert.Equal(t, []int{0}, result.Builders)
	assert.Equal(t, 2, compiler.count(), "waiters load from the cache")
	require.Len(t, result.Reports, 4)
	for rank, r := range result.Reports {
		require.NotNil(t, r, "rank %d", rank)
		assert.Equal(t, rank, r.Rank)
		assert.Equal(t, 2, r.Kernels, "rank %d", rank)
		if rank > 0 {
			assert.Equal(t, 2, r.CacheHits, "rank %d", rank)
		}
	}
	assert.FileExists(t, coordinator.MarkerPath(cfg.CacheDir))
}

func TestRunSimulationNodeLocal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ranks    int
		nodes    int
		builders []int
	}{
		{name: "uneven split", ranks: 5, nodes: 2, builders: []int{0, 3}},
		{name: "more nodes than ranks per node", ranks: 5, nodes: 4, builders: []int{0, 2, 3, 4}},
		{name: "six ranks on four nodes", ranks: 6, nodes: 4, builders: []int{0, 2, 3, 5}},
		{name: "one rank per node", ranks: 3, nodes: 3, builders: []int{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			cfg.BuildNodeLocal = true
			result, err := runSimulation(context.Background(), simulation{
				cfg:      cfg,
				ranks:    tt.ranks,
				nodes:    tt.nodes,
				manifest: writeKernels(t),
				compiler: &stubCompiler{},
			})
			require.NoError(t, err)

			assert.Equal(t, "node", result.Scope)
			assert.Equal(t, tt.builders, result.Builders)
			assert.Len(t, result.Builders, tt.nodes, "one builder per simulated node")

			first := 0
			for rank, r := range result.Reports {
				for _, b := range tt.builders {
					if b <= rank {
						first = b
					}
				}
				assert.Equal(t, rank-first, r.ScopeRank, "rank %d", rank)
			}
		})
	}
}

func TestSimulatedHost(t *testing.T) {
	t.Parallel()

	for ranks := 1; ranks <= 9; ranks++ {
		for nodes := 1; nodes <= ranks; nodes++ {
			hosts := map[string]bool{}
			prev := ""
			for rank := range ranks {
				h := simulatedHost(rank, ranks, nodes)
				if hosts[h] {
					assert.Equal(t, prev, h, "ranks of %s must be contiguous (%d ranks, %d nodes)", h, ranks, nodes)
				}
				hosts[h] = true
				prev = h
			}
			assert.Len(t, hosts, nodes, "%d ranks, %d nodes", ranks, nodes)
		}
	}
}

func TestRunSimulationValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		ranks, nodes int
	}{
		{"no ranks", 0, 1},
		{"no nodes", 2, 0},
		{"more nodes than ranks", 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := runSimulation(context.Background(), simulation{
				cfg:      testConfig(t),
				ranks:    tt.ranks,
				nodes:    tt.nodes,
				manifest: "unused.yaml",
			})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest), "%v", err)
		})
	}
}

func TestRunSimulationReturnsOriginatingFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	_, err := runSimulation(context.Background(), simulation{
		cfg:      cfg,
		ranks:    3,
		nodes:    1,
		manifest: writeKernels(t),
		compiler: &stubCompiler{err: errors.New("unsupported pragma")},
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCompile), "%v", err)

	_, statErr := os.Stat(coordinator.MarkerPath(cfg.CacheDir))
	assert.True(t, os.IsNotExist(statErr), "no marker after a failed build")
}
