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

// Package coordinator runs the builder/waiter protocol that lets a whole
// job compile its kernels once per scope instead of once per process.
//
// The job is partitioned by Scope: either one builder per node (the lowest
// node-local rank) or a single global builder (world rank 0). A run walks
// the phases
//
//	Idle -> BuilderPass -> SyncBarrier -> WaiterPass -> Done
//
// Builders compile into the shared cache directory during BuilderPass while
// waiters do nothing. A barrier over the scope communicator then releases
// the waiters, which compile too, normally resolving every kernel from the
// cache the builder just filled. A final barrier over the world
// communicator ends the run, after which world rank 0 stamps the cache root
// with the completion marker.
//
// A failure in any compile aborts the world communicator, so every other
// participant observes an ABORTED error instead of blocking in a barrier.
//
// Usage:
//
//	c, err := coordinator.New(coordinator.Config{
//	    World:    world,
//	    Local:    local,
//	    Scope:    coordinator.ScopeNode,
//	    CacheDir: "/scratch/.cache",
//	})
//	if err != nil {
//	    return err
//	}
//	report, err := c.Run(ctx, reg)
package coordinator
