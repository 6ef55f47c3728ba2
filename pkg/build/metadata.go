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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
	"github.com/NVIDIA/jitbuild/pkg/kernel"
	"github.com/NVIDIA/jitbuild/pkg/version"
)

// Metadata is the content of build.yaml in an artifact directory.
type Metadata struct {
	Format      string            `yaml:"format"`
	Name        string            `yaml:"name"`
	Source      string            `yaml:"source"`
	Entry       string            `yaml:"entry"`
	Suffix      string            `yaml:"suffix,omitempty"`
	Symbol      string            `yaml:"symbol"`
	Kind        kernel.SourceKind `yaml:"kind"`
	Mode        string            `yaml:"mode"`
	Fingerprint string            `yaml:"fingerprint"`
	Binary      string            `yaml:"binary"`
	Host        string            `yaml:"host,omitempty"`
	BuiltAt     time.Time         `yaml:"builtAt"`
	Properties  kernel.Properties `yaml:"properties,omitempty"`
}

func writeMetadata(dir string, m *Metadata) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	path := filepath.Join(dir, defaults.MetadataFileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	return path, nil
}

// ReadMetadata loads build.yaml from an artifact directory and checks that
// its format can be read by this version.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, defaults.MetadataFileName))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := version.Check(m.Format, defaults.ArtifactFormat); err != nil {
		return nil, fmt.Errorf("unsupported metadata format: %w", err)
	}
	return &m, nil
}
