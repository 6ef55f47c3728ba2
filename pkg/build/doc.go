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

// Package build turns a kernel request into a compiled artifact for the
// active backend.
//
// Two paths exist, selected by the source file:
//
//   - Portable sources (.okl) are handed to the portable kernel compiler
//     together with the request properties and a kernelNameSuffix property;
//     the compiler emits one specialized entry point per suffix.
//   - Native sources are specialized by an explicit code generation step:
//     every FUNC(name) occurrence is rewritten to name<suffix> and the
//     result is written next to the artifact and compiled by the system
//     compiler. The exported symbol is entry+suffix.
//
// Artifacts live in the cache directory under
// <cache>/<mode>/<symbol>-<fingerprint>/ with a build.yaml describing them
// and a checksums.txt. A valid entry is loaded instead of recompiled, which
// is how waiters reuse what the builder of their scope produced.
package build
