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

package defaults

// Cache directory layout.
const (
	// MarkerFileName is written to the cache root once a distributed build
	// has finished. Its mtime is the authoritative "build finished at" signal.
	MarkerFileName = "compile.timestamp"

	// MetadataFileName describes one compiled artifact.
	MetadataFileName = "build.yaml"

	// ChecksumFileName lists sha256 sums of every file in an artifact directory.
	ChecksumFileName = "checksums.txt"

	// PropertiesFileName holds the properties handed to the portable compiler.
	PropertiesFileName = "properties.json"

	// ArtifactFormat is the version of the artifact metadata layout.
	ArtifactFormat = "1.0"
)

// Environment variables read by the configuration layer.
const (
	EnvBackend            = "JITBUILD_BACKEND"
	EnvDeviceNumber       = "JITBUILD_DEVICE_NUMBER"
	EnvCacheDir           = "JITBUILD_CACHE_DIR"
	EnvInstallDir         = "JITBUILD_INSTALL_DIR"
	EnvBuildOnly          = "JITBUILD_BUILD_ONLY"
	EnvBuildNodeLocal     = "JITBUILD_BUILD_NODE_LOCAL"
	EnvNativeCompiler     = "JITBUILD_CC"
	EnvNativeFlags        = "JITBUILD_CFLAGS"
	EnvUnderlyingCompiler = "JITBUILD_MPI_UNDERLYING_COMPILER"
	EnvPortableCompiler   = "JITBUILD_KERNEL_COMPILER"
	EnvRendezvous         = "JITBUILD_RENDEZVOUS"
	EnvJobID              = "JITBUILD_JOB_ID"
	EnvPlugin             = "JITBUILD_PLUGIN"
	EnvRank               = "JITBUILD_RANK"
	EnvSize               = "JITBUILD_SIZE"
	EnvHostname           = "JITBUILD_HOSTNAME"
)

// Tool defaults.
const (
	// NativeCompiler is used when no compiler is configured for the native path.
	NativeCompiler = "cc"

	// PortableCompiler is the kernel translator invoked for portable sources.
	PortableCompiler = "occa"

	// CacheDir is used when no cache directory is configured.
	CacheDir = ".cache/jitbuild"

	// DeviceNumberLocalRank selects the device by node-local rank.
	DeviceNumberLocalRank = "LOCAL-RANK"

	// RendezvousListen is the default listen address of the rendezvous server.
	RendezvousListen = ":7077"

	// RendezvousMaxBodyBytes bounds one exchange request body.
	RendezvousMaxBodyBytes = 1 << 20
)
