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

// Package config holds the settings of one jitbuild process.
//
// Values are layered: built-in defaults, then an optional YAML or JSON file,
// then JITBUILD_* environment variables, then command line flags applied
// by the caller. Validate must be called once everything is applied; an
// unknown backend is rejected there, before any kernel is registered.
//
// Example file:
//
//	backend: CUDA
//	deviceNumber: LOCAL-RANK
//	cacheDir: /scratch/run42/.cache
//	buildNodeLocal: true
//	compiler:
//	  underlying: g++
//	  nativeFlags: -O3 -march=native
//	kernelInfo:
//	  defines:
//	    dfloat: double
//	rendezvous:
//	  address: http://login01:7077
package config
