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
	"fmt"
	"sync"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// WorldScope names the group of all participants.
const WorldScope = "world"

// Communicator is a group of participants that can synchronize.
type Communicator interface {
	// Rank is this participant's position in the group, from 0.
	Rank() int
	// Size is the number of participants in the group.
	Size() int
	// Barrier blocks until every member has called it.
	Barrier(ctx context.Context) error
	// AllGather contributes payload and returns every member's payload
	// indexed by rank.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)
	// Split partitions the group by color. Members with the same color form
	// a new group ranked in their order in this group.
	Split(ctx context.Context, color string) (Communicator, error)
	// Abort terminates the whole job, not just this group.
	Abort(ctx context.Context, cause error) error
}

// Round is one participant's contribution to a collective.
type Round struct {
	Scope   string `json:"scope"`
	Seq     uint64 `json:"seq"`
	Rank    int    `json:"rank"`
	Size    int    `json:"size"`
	Payload []byte `json:"payload,omitempty"`
}

// Validate checks that the round is addressable.
func (r Round) Validate() error {
	switch {
	case r.Scope == "":
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "round scope is required")
	case r.Size < 1:
		return apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			"round size must be positive", map[string]any{"size": r.Size})
	case r.Rank < 0 || r.Rank >= r.Size:
		return apperrors.NewWithContext(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("rank %d out of range for size %d", r.Rank, r.Size),
			map[string]any{"rank": r.Rank, "size": r.Size})
	}
	return nil
}

// Transport moves rounds between participants.
type Transport interface {
	// Exchange blocks until every member of the round's scope contributed
	// to the same sequence number and returns the payloads by rank.
	Exchange(ctx context.Context, r Round) ([][]byte, error)
	// Abort fails every pending and future exchange of the job.
	Abort(ctx context.Context, rank int, message string) error
}

// Comm implements Communicator over a Transport.
type Comm struct {
	transport Transport
	scope     string
	rank      int
	size      int
	worldRank int

	mu  sync.Mutex
	seq uint64
}

// New returns the world communicator of a job with size participants.
func New(t Transport, rank, size int) (*Comm, error) {
	if t == nil {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "communicator requires a transport")
	}
	if err := (Round{Scope: WorldScope, Rank: rank, Size: size}).Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfiguration, "invalid job layout", err)
	}
	return &Comm{
		transport: t,
		scope:     WorldScope,
		rank:      rank,
		size:      size,
		worldRank: rank,
	}, nil
}

// Rank implements Communicator.
func (c *Comm) Rank() int { return c.rank }

// Size implements Communicator.
func (c *Comm) Size() int { return c.size }

// Scope identifies the group within the job.
func (c *Comm) Scope() string { return c.scope }

// WorldRank is this participant's rank in the world group.
func (c *Comm) WorldRank() int { return c.worldRank }

// Barrier implements Communicator.
func (c *Comm) Barrier(ctx context.Context) error {
	_, _, err := c.exchange(ctx, nil)
	return err
}

// AllGather implements Communicator.
func (c *Comm) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	_, out, err := c.exchange(ctx, payload)
	return out, err
}

// Split implements Communicator.
func (c *Comm) Split(ctx context.Context, color string) (Communicator, error) {
	seq, all, err := c.exchange(ctx, []byte(color))
	if err != nil {
		return nil, err
	}

	rank, size := -1, 0
	for r, p := range all {
		if string(p) != color {
			continue
		}
		if r == c.rank {
			rank = size
		}
		size++
	}
	if rank < 0 {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "split result does not contain the caller")
	}

	return &Comm{
		transport: c.transport,
		scope:     fmt.Sprintf("%s/%d:%s", c.scope, seq, color),
		rank:      rank,
		size:      size,
		worldRank: c.worldRank,
	}, nil
}

// Abort implements Communicator.
func (c *Comm) Abort(ctx context.Context, cause error) error {
	msg := "aborted"
	if cause != nil {
		msg = cause.Error()
	}
	abortsTotal.Inc()
	return c.transport.Abort(ctx, c.worldRank, msg)
}

func (c *Comm) exchange(ctx context.Context, payload []byte) (uint64, [][]byte, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	timer := newExchangeTimer(c.scope == WorldScope)
	out, err := c.transport.Exchange(ctx, Round{
		Scope:   c.scope,
		Seq:     seq,
		Rank:    c.rank,
		Size:    c.size,
		Payload: payload,
	})
	timer.observe(err)
	if err != nil {
		return 0, nil, err
	}
	if len(out) != c.size {
		return 0, nil, apperrors.NewWithContext(apperrors.ErrCodeInternal,
			fmt.Sprintf("exchange returned %d payloads for %d members", len(out), c.size),
			map[string]any{"scope": c.scope, "seq": seq})
	}
	return seq, out, nil
}
