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

import "time"

// PhaseTiming is the time spent in one protocol phase.
type PhaseTiming struct {
	Phase    Phase         `json:"phase" yaml:"phase"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report summarizes one protocol run for a single participant.
type Report struct {
	Role      Role          `json:"role" yaml:"role"`
	Scope     string        `json:"scope" yaml:"scope"`
	Rank      int           `json:"rank" yaml:"rank"`
	Size      int           `json:"size" yaml:"size"`
	ScopeRank int           `json:"scopeRank" yaml:"scopeRank"`
	ScopeSize int           `json:"scopeSize" yaml:"scopeSize"`
	Phases    []PhaseTiming `json:"phases" yaml:"phases"`
	Kernels   int           `json:"kernels" yaml:"kernels"`
	CacheHits int           `json:"cacheHits" yaml:"cacheHits"`
	Marker    string        `json:"marker,omitempty" yaml:"marker,omitempty"`
	Total     time.Duration `json:"total" yaml:"total"`
}

// PhaseDuration returns the recorded duration of phase, or zero.
func (r *Report) PhaseDuration(phase Phase) time.Duration {
	for _, p := range r.Phases {
		if p.Phase == phase {
			return p.Duration
		}
	}
	return 0
}
