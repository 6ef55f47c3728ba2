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

package kernel

import (
	"sync/atomic"
	"time"
)

// Compiled is the handle of a built kernel. It is owned by the build
// adapter; registries only keep a name to handle association for lookup.
// Handles must not be copied after creation.
type Compiled struct {
	Name        string     `json:"name" yaml:"name"`
	Symbol      string     `json:"symbol" yaml:"symbol"`
	Kind        SourceKind `json:"kind" yaml:"kind"`
	Mode        string     `json:"mode" yaml:"mode"`
	Fingerprint string     `json:"fingerprint" yaml:"fingerprint"`
	ArtifactDir string     `json:"artifactDir" yaml:"artifactDir"`
	Binary      string     `json:"binary,omitempty" yaml:"binary,omitempty"`
	// Cached is true when the handle was loaded from an existing artifact
	// instead of invoking the compiler.
	Cached  bool      `json:"cached" yaml:"cached"`
	BuiltAt time.Time `json:"builtAt" yaml:"builtAt"`

	invalid atomic.Bool
}

// Valid reports whether the handle can still be used.
func (c *Compiled) Valid() bool {
	return c != nil && !c.invalid.Load()
}

// Invalidate marks the handle unusable, for example after the artifact
// directory was removed.
func (c *Compiled) Invalidate() {
	if c != nil {
		c.invalid.Store(true)
	}
}
