// Package handlers implements the two built-in task handlers the CORE
// spec names: post_data (A8, HTTP POST to the remote sink) and
// save_locally (local measurements table insert). Both are external
// collaborators per spec.md §6; this package is where their contracts
// are implemented.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/registry"
	"github.com/RUBclim/vpf-730/internal/types"
)

// TaskPostData is the registry name the producer and the registry builder
// both refer to for the remote HTTP sink.
const TaskPostData = "post_data"

// NewPostData returns a post_data handler bound to client. A nil client
// gets a default with a 10s timeout, since §5 asks network handlers to
// carry their own timeout rather than stall the worker indefinitely.
func NewPostData(client *http.Client) registry.Handler {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context, msg types.Message, cfg *config.Config) error {
		body, err := json.Marshal(msg.Blob)
		if err != nil {
			return fmt.Errorf("vpf730: marshal measurement for post_data: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("vpf730: build post_data request: %w", err)
		}
		req.Header.Set("Authorization", cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("vpf730: post_data request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("vpf730: post_data: %s returned %d: %s", cfg.Endpoint, resp.StatusCode, snippet)
		}
		return nil
	}
}
