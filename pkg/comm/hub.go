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

package comm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NVIDIA/jitbuild/pkg/ctxsync"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

type roundKey struct {
	scope string
	seq   uint64
}

type round struct {
	size     int
	payloads [][]byte
	arrived  []bool
	count    int
	readers  int
}

func (r *round) complete() bool {
	return r.count == r.size
}

// Hub is an in-process Transport. It is also the state behind the
// rendezvous server.
type Hub struct {
	mu     sync.Mutex
	cond   *ctxsync.Cond
	rounds map[roundKey]*round
	abort  *apperrors.StructuredError
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	h := &Hub{rounds: make(map[roundKey]*round)}
	h.cond = ctxsync.NewCond(&h.mu)
	return h
}

// Connect returns the world communicator of rank in a job of size
// participants sharing this hub.
func (h *Hub) Connect(rank, size int) (*Comm, error) {
	return New(h, rank, size)
}

// Exchange implements Transport.
func (h *Hub) Exchange(ctx context.Context, r Round) ([][]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.abort != nil {
		return nil, h.abort
	}

	key := roundKey{scope: r.Scope, seq: r.Seq}
	rd, ok := h.rounds[key]
	if !ok {
		rd = &round{
			size:     r.Size,
			payloads: make([][]byte, r.Size),
			arrived:  make([]bool, r.Size),
		}
		h.rounds[key] = rd
	}
	if rd.size != r.Size {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("round %s#%d has size %d, rank %d sent %d", r.Scope, r.Seq, rd.size, r.Rank, r.Size),
			map[string]any{"scope": r.Scope, "seq": r.Seq})
	}
	if rd.arrived[r.Rank] {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("rank %d already joined round %s#%d", r.Rank, r.Scope, r.Seq),
			map[string]any{"scope": r.Scope, "seq": r.Seq})
	}

	rd.payloads[r.Rank] = append([]byte(nil), r.Payload...)
	rd.arrived[r.Rank] = true
	rd.count++
	if rd.complete() {
		h.cond.Broadcast()
	}

	for !rd.complete() && h.abort == nil {
		if err := h.cond.Wait(ctx); err != nil {
			code := apperrors.ErrCodeAborted
			if errors.Is(err, context.DeadlineExceeded) {
				code = apperrors.ErrCodeTimeout
			}
			return nil, apperrors.WrapWithContext(code,
				fmt.Sprintf("rank %d stopped waiting in %s", r.Rank, r.Scope), err,
				map[string]any{"scope": r.Scope, "seq": r.Seq, "arrived": rd.count, "size": rd.size})
		}
	}
	if !rd.complete() {
		return nil, h.abort
	}

	out := make([][]byte, len(rd.payloads))
	copy(out, rd.payloads)
	rd.readers++
	if rd.readers == rd.size {
		delete(h.rounds, key)
	}
	return out, nil
}

// Abort implements Transport. The first abort wins; later ones are logged
// and otherwise ignored.
func (h *Hub) Abort(_ context.Context, rank int, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.abort != nil {
		slog.Debug("ignoring abort after job already aborted", "rank", rank, "message", message)
		return nil
	}
	h.abort = apperrors.NewWithContext(apperrors.ErrCodeAborted,
		fmt.Sprintf("job aborted by rank %d: %s", rank, message),
		map[string]any{"rank": rank})
	h.cond.Broadcast()
	return nil
}

// Err returns the abort error once the job was aborted, or nil.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.abort == nil {
		return nil
	}
	return h.abort
}

// Pending returns the number of rounds that still have unread results or
// missing members.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rounds)
}
