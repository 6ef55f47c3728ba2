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

package header

import (
	"time"
)

// APIVersion is the schema version of every document jitbuild writes.
const APIVersion = "jitbuild.nvidia.com/v1"

// Kind represents the type of a jitbuild document.
type Kind string

// Document kinds written by the CLI.
const (
	KindBuildReport      Kind = "BuildReport"
	KindSimulationResult Kind = "SimulationResult"
	KindCacheStatus      Kind = "CacheStatus"
	KindPushResult       Kind = "PushResult"
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the Kind is one of the recognized kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindBuildReport, KindSimulationResult, KindCacheStatus, KindPushResult:
		return true
	default:
		return false
	}
}

// Option is a functional option for configuring Header instances.
type Option func(*Header)

// WithMetadata returns an Option that adds a metadata key-value pair to the Header.
func WithMetadata(key, value string) Option {
	return func(h *Header) {
		if h.Metadata == nil {
			h.Metadata = make(map[string]string)
		}
		h.Metadata[key] = value
	}
}

// WithKind returns an Option that sets the Kind field of the Header.
func WithKind(kind Kind) Option {
	return func(h *Header) {
		h.Kind = kind
	}
}

// WithVersion records the jitbuild version that wrote the document.
func WithVersion(version string) Option {
	return func(h *Header) {
		if version == "" {
			return
		}
		WithMetadata("version", version)(h)
	}
}

// WithTimestamp records t as the document creation time.
func WithTimestamp(t time.Time) Option {
	return WithMetadata("timestamp", t.UTC().Format(time.RFC3339))
}

// Header identifies a jitbuild document. It follows Kubernetes-style
// conventions so reports can be consumed by the same tooling.
type Header struct {
	// Kind is the type of the document.
	Kind Kind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// APIVersion is the schema version of the document.
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`

	// Metadata contains key-value pairs such as timestamp and version.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// New creates a Header with APIVersion set and the current timestamp
// recorded, then applies opts.
func New(opts ...Option) *Header {
	h := &Header{APIVersion: APIVersion}
	WithTimestamp(time.Now())(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Document is a header followed by its payload.
type Document struct {
	Header `json:",inline" yaml:",inline"`

	// Data is the payload of the document.
	Data any `json:"data" yaml:"data"`
}

// NewDocument wraps data in a document of the given kind.
func NewDocument(kind Kind, version string, data any) *Document {
	return &Document{
		Header: *New(WithKind(kind), WithVersion(version)),
		Data:   data,
	}
}
