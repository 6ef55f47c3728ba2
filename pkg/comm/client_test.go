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
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// hubHandler serves a hub the way the rendezvous server does, without its
// middleware.
func hubHandler(t *testing.T, hub *Hub, jobID string) http.Handler {
	t.Helper()
	writeErr := func(w http.ResponseWriter, status int, err error) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ErrorResponse{
			Code:    string(apperrors.CodeOf(err)),
			Message: err.Error(),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ExchangePath, func(w http.ResponseWriter, r *http.Request) {
		var req ExchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "bad body", err))
			return
		}
		if req.JobID != jobID {
			writeErr(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidRequest, "job id mismatch"))
			return
		}
		out, err := hub.Exchange(r.Context(), req.Round)
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		_ = json.NewEncoder(w).Encode(ExchangeResponse{Payloads: out})
	})
	mux.HandleFunc(AbortPath, func(w http.ResponseWriter, r *http.Request) {
		var req AbortRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		_ = hub.Abort(r.Context(), req.Rank, req.Message)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestNewClientAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient("node-a:7077", "job")
	require.NoError(t, err)
	assert.Equal(t, "http://node-a:7077", c.baseURL)

	c, err = NewClient("https://rdv.example.com/", "job")
	require.NoError(t, err)
	assert.Equal(t, "https://rdv.example.com", c.baseURL)

	for _, bad := range []string{"ftp://host", "http://"} {
		_, err := NewClient(bad, "job")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration), bad)
	}
}

func TestClientCollectives(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hubHandler(t, hub, "job-1"))
	defer srv.Close()

	const size = 4
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group
	for rank := 0; rank < size; rank++ {
		g.Go(func() error {
			c, err := Dial(Identity{Rank: rank, Size: size}, srv.URL, "job-1")
			if err != nil {
				return err
			}
			local, err := c.Split(ctx, []string{"a", "b"}[rank%2])
			if err != nil {
				return err
			}
			if local.Size() != 2 {
				return errors.New("unexpected local size")
			}
			if err := local.Barrier(ctx); err != nil {
				return err
			}
			out, err := c.AllGather(ctx, []byte{byte(rank)})
			if err != nil {
				return err
			}
			for r, p := range out {
				if len(p) != 1 || int(p[0]) != r {
					return errors.New("payload out of order")
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestClientPropagatesServerErrors(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hubHandler(t, hub, "job-1"))
	defer srv.Close()

	c, err := NewClient(srv.URL, "other-job")
	require.NoError(t, err)
	_, err = c.Exchange(context.Background(), Round{Scope: WorldScope, Seq: 1, Rank: 0, Size: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	assert.Contains(t, err.Error(), "job id mismatch")
}

func TestClientAbort(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hubHandler(t, hub, "job-1"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	waiter, err := Dial(Identity{Rank: 1, Size: 2}, srv.URL, "job-1")
	require.NoError(t, err)
	builder, err := Dial(Identity{Rank: 0, Size: 2}, srv.URL, "job-1")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- waiter.Barrier(ctx) }()

	require.Eventually(t, func() bool { return hub.Pending() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, builder.Abort(ctx, errors.New("cc: error: unknown type name 'dfloat'")))

	err = <-errc
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAborted))
	assert.Contains(t, err.Error(), "rank 0")
	assert.Contains(t, err.Error(), "dfloat")
}

func TestClientRetriesUntilServerStarts(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := NewClient(addr, "job-1",
		WithRetryInterval(10*time.Millisecond),
		WithConnectTimeout(5*time.Second))
	require.NoError(t, err)

	var started atomic.Bool
	go func() {
		time.Sleep(100 * time.Millisecond)
		l2, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		started.Store(true)
		srv := &http.Server{Handler: hubHandler(t, NewHub(), "job-1"), ReadHeaderTimeout: time.Second}
		_ = srv.Serve(l2)
	}()

	out, err := c.Exchange(context.Background(), Round{Scope: WorldScope, Seq: 1, Rank: 0, Size: 1, Payload: []byte("x")})
	if !started.Load() {
		t.Skip("port was taken by another process")
	}
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x")}, out)
}

func TestClientGivesUpAfterConnectTimeout(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := NewClient(addr, "job-1",
		WithRetryInterval(5*time.Millisecond),
		WithConnectTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), Round{Scope: WorldScope, Seq: 1, Rank: 0, Size: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnavailable))
}
