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

package manifest

import (
	"fmt"
	"path/filepath"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/serializer"
)

// Variant is one specialization of an entry.
type Variant struct {
	Suffix     string            `json:"suffix" yaml:"suffix"`
	Properties kernel.Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Entry is one kernel source unit.
type Entry struct {
	Name       string            `json:"name" yaml:"name"`
	Source     string            `json:"source" yaml:"source"`
	Entry      string            `json:"entry,omitempty" yaml:"entry,omitempty"`
	Suffix     string            `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Properties kernel.Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
	// Unique requests strict uniqueness when registering.
	Unique   bool      `json:"unique,omitempty" yaml:"unique,omitempty"`
	Variants []Variant `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// Manifest is the parsed file.
type Manifest struct {
	Kernels []Entry `json:"kernels" yaml:"kernels"`

	// BaseDir resolves relative sources when no install dir is given.
	BaseDir string `json:"-" yaml:"-"`
}

// Request is an expanded kernel request.
type Request struct {
	Spec   kernel.Spec
	Unique bool
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	m, err := serializer.FromFile[Manifest](path)
	if err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeConfiguration,
			"failed to read kernel manifest", err, map[string]any{"path": path})
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "failed to resolve manifest directory", err)
	}
	m.BaseDir = abs
	return m, nil
}

// Requests expands every entry. base is merged under the properties of
// each entry and variant; later levels win on key conflicts.
func (m *Manifest) Requests(base kernel.Properties, installDir string) ([]Request, error) {
	root := m.BaseDir
	if installDir != "" {
		root = installDir
	}

	var out []Request
	for i, e := range m.Kernels {
		if e.Name == "" {
			return nil, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
				fmt.Sprintf("manifest entry %d has no name", i), map[string]any{"source": e.Source})
		}
		source := e.Source
		if source != "" && !filepath.IsAbs(source) {
			source = filepath.Join(root, source)
		}
		entry := e.Entry
		if entry == "" {
			entry = e.Name
		}

		props := base.Clone()
		props.Merge(e.Properties)

		if len(e.Variants) == 0 {
			out = append(out, Request{
				Spec: kernel.Spec{
					RequestName: e.Name,
					SourceFile:  source,
					EntryName:   entry,
					Suffix:      e.Suffix,
					Properties:  props,
				},
				Unique: e.Unique,
			})
			continue
		}

		for _, v := range e.Variants {
			if v.Suffix == "" {
				return nil, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
					fmt.Sprintf("variant of %s has no suffix", e.Name), map[string]any{"entry": e.Name})
			}
			vp := props.Clone()
			vp.Merge(v.Properties)
			out = append(out, Request{
				Spec: kernel.Spec{
					RequestName: e.Name + v.Suffix,
					SourceFile:  source,
					EntryName:   entry,
					Suffix:      e.Suffix + v.Suffix,
					Properties:  vp,
				},
				Unique: e.Unique,
			})
		}
	}
	return out, nil
}

// Adder accepts kernel requests. *registry.Registry and
// *platform.Platform satisfy it.
type Adder interface {
	Add(spec kernel.Spec, assertUnique bool) error
}

// Register expands the manifest and adds every request to dst in order.
// It returns the number of requests handed over.
func (m *Manifest) Register(dst Adder, base kernel.Properties, installDir string) (int, error) {
	reqs, err := m.Requests(base, installDir)
	if err != nil {
		return 0, err
	}
	for i, r := range reqs {
		if err := dst.Add(r.Spec, r.Unique); err != nil {
			return i, err
		}
	}
	return len(reqs), nil
}
