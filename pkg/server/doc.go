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

// Package server implements the rendezvous server through which the
// processes of one distributed build synchronize.
//
// Every process of a job talks to one server instance (usually hosted by
// rank 0 or started next to the launcher) through the comm.Client
// transport. The server keeps no state besides an in-process comm.Hub:
// collective rounds are matched by scope and sequence number, and an abort
// from any rank is broadcast to every pending and future request.
//
// # Endpoints
//
//	POST /v1/exchange   join a collective round, blocks until it completes
//	POST /v1/abort      abort the job with a diagnostic
//	GET  /health        liveness
//	GET  /ready         readiness, not ready once the job was aborted
//	GET  /metrics       Prometheus metrics
//
// Exchange requests carry the job ID; a mismatch is rejected with
// INVALID_REQUEST so processes of different jobs sharing a host cannot
// join each other's barriers.
//
// # Timeouts
//
// There is no write timeout. An exchange stays open for as long as the
// slowest builder of the job compiles.
//
// # Usage
//
//	cfg := server.NewConfig()
//	cfg.Listen = ":7077"
//	cfg.JobID = jobID
//	srv := server.New(cfg, comm.NewHub())
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// # Middleware
//
// API endpoints run through metrics, request ID, panic recovery, rate
// limiting and logging, in that order. Rejected requests receive
// Retry-After and are retried by the client.
package server
