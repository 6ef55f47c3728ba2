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

// Package oci publishes a finished kernel cache directory as an OCI artifact.
//
// The cache is packed as a single gzipped tar layer under an OCI 1.1
// manifest with artifact type "application/vnd.nvidia.jitbuild.cache", so
// later jobs or other clusters can pull a warm cache instead of compiling.
// Only caches carrying the completion marker are published; the marker
// mtime becomes the manifest's created annotation, which keeps repeated
// pushes of the same cache reproducible.
//
// Targets are either registry references with the oci:// scheme or a local
// directory, which receives an OCI image layout:
//
//	ref, err := oci.ParseOutputTarget("oci://ghcr.io/nvidia/kernels:run42")
//	if err != nil {
//	    return err
//	}
//	res, err := oci.Push(ctx, oci.PushOptions{
//	    CacheDir: "/scratch/.cache",
//	    Target:   ref,
//	})
//
// Registry credentials come from the Docker configuration
// (~/.docker/config.json) through the ORAS credentials package.
package oci
