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

// Package comm provides the collective operations the build coordinator
// needs from a distributed job: rank and size, barriers, all-gather, split
// into sub-groups, and job-wide abort.
//
// A Comm runs over a Transport. Two transports exist:
//
//   - Hub, an in-process transport where every participant is a goroutine.
//     It backs simulations and tests.
//   - Client, an HTTP transport talking to the rendezvous server, used when
//     every participant is its own process.
//
// Collectives on one Comm must be issued in the same order by every member,
// as with MPI. Each Comm numbers its collectives so rounds of different
// groups and different steps never mix.
//
// Once any participant aborts, every pending and future collective of the
// job fails with an ABORTED error that carries the originating rank and its
// diagnostic, so no participant is left blocked in a barrier.
package comm
