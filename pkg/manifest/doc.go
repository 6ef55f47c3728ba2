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

// Package manifest reads the list of kernel source units a job registers.
//
// A manifest is YAML (or JSON) with one entry per source unit. An entry
// with variants expands into one request per variant, named by appending
// the variant suffix to the entry name:
//
//	kernels:
//	  - name: axpy
//	    source: kernels/axpy.c
//	    entry: axpy
//	    properties:
//	      defines:
//	        dfloat: double
//	    variants:
//	      - suffix: _4
//	        properties: {defines: {p_N: 4}}
//	      - suffix: _8
//	        properties: {defines: {p_N: 8}}
//
// Relative source paths resolve against the install directory when one is
// given, otherwise against the directory holding the manifest.
package manifest
