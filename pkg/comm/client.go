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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/jitbuild/pkg/defaults"
	apperrors "github.com/NVIDIA/jitbuild/pkg/errors"
)

// Client is a Transport talking to a rendezvous server over HTTP.
type Client struct {
	baseURL        string
	jobID          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	connectTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. It must not set a request
// timeout shorter than the longest expected compile.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithConnectTimeout bounds how long requests are retried while the server
// is unreachable.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithRetryInterval sets the pause between connection attempts.
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewClient returns a transport for the rendezvous server at baseURL. A
// bare host:port is treated as http.
func NewClient(baseURL, jobID string, opts ...ClientOption) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeConfiguration,
			fmt.Sprintf("invalid rendezvous address %q", baseURL),
			map[string]any{"address": baseURL})
	}

	c := &Client{
		baseURL:        strings.TrimSuffix(u.String(), "/"),
		jobID:          jobID,
		httpClient:     &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		limiter:        rate.NewLimiter(rate.Every(defaults.RendezvousRetryInterval), 1),
		connectTimeout: defaults.RendezvousConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange implements Transport.
func (c *Client) Exchange(ctx context.Context, r Round) ([][]byte, error) {
	var resp ExchangeResponse
	if err := c.post(ctx, ExchangePath, ExchangeRequest{JobID: c.jobID, Round: r}, &resp); err != nil {
		return nil, err
	}
	return resp.Payloads, nil
}

// Abort implements Transport. It is best effort and bounded by
// RendezvousAbortTimeout so a dead server cannot delay termination.
func (c *Client) Abort(ctx context.Context, rank int, message string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaults.RendezvousAbortTimeout)
	defer cancel()
	return c.post(ctx, AbortPath, AbortRequest{JobID: c.jobID, Rank: rank, Message: message}, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to encode request", err)
	}

	deadline := time.Now().Add(c.connectTimeout)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeAborted, "rendezvous request cancelled", err)
			}
		}

		retry, err := c.do(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if !retry || time.Now().After(deadline) {
			return err
		}
		slog.Debug("rendezvous not reachable, retrying",
			"url", c.baseURL+path,
			"attempt", attempt+1,
			"error", err,
		)
	}
}

// do performs one request and reports whether a failure may be retried.
func (c *Client) do(ctx context.Context, path string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, apperrors.Wrap(apperrors.ErrCodeAborted, "rendezvous request cancelled", ctx.Err())
		}
		return isDialError(err), apperrors.WrapWithContext(apperrors.ErrCodeUnavailable,
			"rendezvous server unreachable", err, map[string]any{"url": c.baseURL})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to read rendezvous response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er ErrorResponse
		if jsonErr := json.Unmarshal(data, &er); jsonErr != nil || er.Code == "" {
			return false, apperrors.NewWithContext(apperrors.ErrCodeUnavailable,
				fmt.Sprintf("rendezvous returned %s", resp.Status),
				map[string]any{"status": resp.StatusCode})
		}
		details := map[string]any{"status": resp.StatusCode, "requestId": er.RequestID}
		for k, v := range er.Details {
			details[k] = v
		}
		return er.Retryable && resp.StatusCode == http.StatusTooManyRequests,
			apperrors.NewWithContext(apperrors.ErrorCode(er.Code), er.Message, details)
	}

	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to decode rendezvous response", err)
	}
	return false, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
