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

package build

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	kernelBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jitbuild_kernel_builds_total",
			Help: "Total number of kernel build requests handled by the build adapter",
		},
		[]string{"mode", "kind", "result"}, // result: compiled, cached, error
	)

	kernelBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jitbuild_kernel_build_duration_seconds",
			Help:    "Time taken to compile or load one kernel",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)
)
