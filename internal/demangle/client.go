// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package demangle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/rpc/v2/json2"
)

// ServiceMethod is the JSON-RPC method answered by the bridge daemon.
const ServiceMethod = "Demangler.Demangle"

// Client asks a remote bridge daemon over JSON-RPC 2.0.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Policy     RetryPolicy
}

func NewClient(url string, policy RetryPolicy) *Client {
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Policy:     policy,
	}
}

func (c *Client) Demangle(ctx context.Context, symbol string) (string, error) {
	if symbol == "" {
		return symbol, nil
	}

	var reply Reply
	err := c.Policy.do(ctx, c.URL, func() error {
		return c.call(ctx, symbol, &reply)
	})
	if err != nil {
		return symbol, err
	}
	if reply.Name == "" {
		return symbol, nil
	}
	return reply.Name, nil
}

func (c *Client) call(ctx context.Context, symbol string, reply *Reply) error {
	body, err := json2.EncodeClientRequest(ServiceMethod, &Args{Symbol: symbol})
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}
