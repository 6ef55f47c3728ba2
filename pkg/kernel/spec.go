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
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// SourceKind selects the build path for a kernel source.
type SourceKind string

const (
	// KindPortable sources are written in the cross-backend kernel language
	// and handed to the portable kernel compiler.
	KindPortable SourceKind = "portable"
	// KindNative sources are written in the host language and compiled by
	// the system compiler.
	KindNative SourceKind = "native"
)

// PortableExtension identifies portable kernel sources.
const PortableExtension = ".okl"

// Spec describes one requested kernel.
type Spec struct {
	// RequestName is the logical identifier, unique within a registry.
	RequestName string `json:"name" yaml:"name"`
	// SourceFile is the path to the kernel source.
	SourceFile string `json:"source" yaml:"source"`
	// EntryName is the function to build from SourceFile.
	EntryName string `json:"entry" yaml:"entry"`
	// Suffix is appended to EntryName to produce a specialized symbol.
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	// Properties are passed to the backend compiler verbatim.
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Kind reports which build path the source file takes.
func (s Spec) Kind() SourceKind {
	if strings.EqualFold(filepath.Ext(s.SourceFile), PortableExtension) {
		return KindPortable
	}
	return KindNative
}

// Symbol is the externally visible name of the specialized entry point.
func (s Spec) Symbol() string {
	return s.EntryName + s.Suffix
}

// Validate checks the fields every request must carry.
func (s Spec) Validate() error {
	var missing []string
	if s.RequestName == "" {
		missing = append(missing, "name")
	}
	if s.SourceFile == "" {
		missing = append(missing, "source")
	}
	if s.EntryName == "" {
		missing = append(missing, "entry")
	}
	if len(missing) > 0 {
		return apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("kernel request is missing %s", strings.Join(missing, ", ")),
			map[string]any{"request": s.RequestName})
	}
	return nil
}

// Clone returns a deep copy so a registered spec cannot be mutated through
// the caller's value.
func (s Spec) Clone() Spec {
	s.Properties = s.Properties.Clone()
	return s
}

// Equal reports whether both specs are structurally identical.
func (s Spec) Equal(other Spec) bool {
	return len(s.Diff(other)) == 0
}

// Diff lists the fields that differ between s and other.
func (s Spec) Diff(other Spec) []string {
	var fields []string
	if s.RequestName != other.RequestName {
		fields = append(fields, "name")
	}
	if s.SourceFile != other.SourceFile {
		fields = append(fields, "source")
	}
	if s.EntryName != other.EntryName {
		fields = append(fields, "entry")
	}
	if s.Suffix != other.Suffix {
		fields = append(fields, "suffix")
	}
	if !s.Properties.Equal(other.Properties) {
		fields = append(fields, "properties")
	}
	return fields
}

// String renders the spec for diagnostics.
func (s Spec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "requestName : %s\n", s.RequestName)
	fmt.Fprintf(&b, "fileName : %s\n", s.SourceFile)
	fmt.Fprintf(&b, "kernelName : %s\n", s.EntryName)
	fmt.Fprintf(&b, "suffix : %s\n", s.Suffix)
	fmt.Fprintf(&b, "props : %s\n", strings.ReplaceAll(s.Properties.Canonical(), "\n", ", "))
	return b.String()
}
