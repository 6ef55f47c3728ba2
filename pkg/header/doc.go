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

// Package header provides the common header of documents written by jitbuild.
//
// Build reports, simulation results and cache descriptions are wrapped in a
// Document so consumers can tell them apart and check the schema version:
//
//	kind: BuildReport
//	apiVersion: jitbuild.nvidia.com/v1
//	metadata:
//	  timestamp: "2025-06-01T12:00:00Z"
//	  version: v0.4.0
//	data:
//	  role: builder
//	  ...
//
// Usage:
//
//	doc := header.NewDocument(header.KindBuildReport, version, report)
//	err := writer.Serialize(ctx, doc)
package header
