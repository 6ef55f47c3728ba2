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

// Package defaults provides centralized configuration constants for jitbuild.
//
// This package defines timeout values, file names and environment variable
// names used across the codebase. Centralizing these values keeps every rank
// of a job agreeing on the same cache layout and rendezvous behavior.
//
// Usage:
//
//	marker := filepath.Join(cacheDir, defaults.MarkerFileName)
//	ctx, cancel := context.WithTimeout(ctx, defaults.RendezvousConnectTimeout)
package defaults
