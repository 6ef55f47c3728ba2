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

// Package platform is the composition root of one jitbuild process.
//
// A Platform owns the kernel registry, the build adapter bound to this
// process's device, and the communicators the build protocol runs on. It
// is constructed once at process entry and passed explicitly to whatever
// registers or looks up kernels; there is no package level instance.
//
// Usage:
//
//	p, err := platform.New(ctx, cfg, world)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.Add(spec, false); err != nil {
//	    return err
//	}
//	report, err := p.Compile(ctx)
//	...
//	k, err := p.Kernel("axpy_4", true)
package platform
