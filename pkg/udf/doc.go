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

// Package udf loads user supplied hooks into the build.
//
// A hook library is a Go plugin exporting a versioned table of symbols:
//
//	var HooksVersion = "1.0"                    // required
//	func LoadKernels(props *kernel.Properties)  // optional
//	func Setup(ctx context.Context) error      // optional, func() error also accepted
//
// The table is resolved once at startup. A missing required symbol, an
// incompatible version or a symbol of the wrong type fails immediately.
// Optional hooks that are absent are replaced by no-ops, so callers never
// check for nil.
package udf
