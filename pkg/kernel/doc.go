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

// Package kernel defines the data model shared by every stage of a build:
// the request a physics module registers (Spec), the compiler configuration
// attached to it (Properties) and the opaque handle produced once it has
// been compiled (Compiled).
//
// A Spec is identified by its RequestName. Two specs with the same name are
// the same request; Equal decides whether a second registration is a
// harmless repeat or a conflicting definition.
//
// Properties are an ordered key/value list consumed verbatim by the backend
// compiler. Keys use slash-separated paths:
//
//	defines/p_N        compiler define
//	include_paths      list of include search paths
//	includes           list of headers force-included
//	flags/<name>       backend specific flags
//	kernelNameSuffix   set by the build adapter for portable sources
//	okl/enabled        set to false by the build adapter for native sources
//	verbose            set when running in build-only mode
package kernel
