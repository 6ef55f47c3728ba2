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

import "time"

// Rendezvous timeouts for the HTTP transport between ranks.
//
// Exchanges themselves have no deadline: a barrier blocks for as long as the
// slowest builder compiles.
const (
	// RendezvousConnectTimeout bounds how long a rank keeps retrying while
	// the rendezvous server is still starting.
	RendezvousConnectTimeout = 2 * time.Minute

	// RendezvousRetryInterval is the pause between connection attempts.
	RendezvousRetryInterval = 250 * time.Millisecond

	// RendezvousAbortTimeout bounds the best-effort abort broadcast.
	RendezvousAbortTimeout = 10 * time.Second
)

// Server timeouts for the rendezvous HTTP server.
const (
	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerReadTimeout is the maximum duration for reading a request.
	ServerReadTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// Compiler timeouts.
const (
	// CompilerVersionTimeout bounds compiler probing during prebuild.
	CompilerVersionTimeout = 30 * time.Second
)

// OCI timeouts.
const (
	// OCIPushTimeout is the default timeout for publishing a cache directory.
	OCIPushTimeout = 10 * time.Minute
)
