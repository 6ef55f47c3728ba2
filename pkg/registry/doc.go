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

// Package registry keeps the kernel requests of one process and drives
// their compilation.
//
// Requests are registered by logical name while the registry is Open.
// Registering the same name again is idempotent; with strict uniqueness a
// differing definition is a configuration error. Compile builds every
// request in insertion order, so the position of a failing kernel is stable
// across runs, and moves the registry to Compiled. Lookups are valid only
// after that.
//
// Usage:
//
//	reg := registry.New(adapter)
//	if err := reg.Add(spec, true); err != nil {
//	    return err
//	}
//	if err := reg.Compile(ctx); err != nil {
//	    return err
//	}
//	k, err := reg.Kernel("axpy_4", true)
package registry
