package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/service"
)

// Client talks to a running fuzzer API server
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartRun starts a synchronous run and returns it once finished
func (c *Client) StartRun(ctx context.Context, req service.StartRunRequest) (*service.RunInfo, error) {
	req.Async = false

	var info service.RunInfo
	if err := c.do(ctx, http.MethodPost, "/api/runs", req, &info); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return &info, nil
}

// Replay fetches the step-by-step replay of a finished run
func (c *Client) Replay(ctx context.Context, runID string) (*service.ReplayResult, error) {
	var replay service.ReplayResult
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+runID+"/replay", nil, &replay); err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}
	return &replay, nil
}

// DeleteRun removes a run the sweep no longer needs
func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/runs/"+runID, nil, nil); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s - %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
