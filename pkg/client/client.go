// Package client is a Go client for the status server started by
// `grl train --metrics-addr`. It lists the training runs of a sweep, reads
// their state and stops them.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError represents an error returned by the status server (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Run mirrors the run document served under /runs.
type Run struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	Generator string     `json:"generator,omitempty"`
	Embedding string     `json:"embedding"`
	Dim       int        `json:"dim"`
	Steps     int        `json:"steps"`
	Status    string     `json:"status"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Error     string     `json:"error,omitempty"`
	Started   time.Time  `json:"started"`
	Finished  *time.Time `json:"finished,omitempty"`
}

// Done reports whether the run has left the running state.
func (r *Run) Done() bool {
	return r.Status != "running"
}

// Client talks to one status server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for addr, given as host:port or a full URL.
func New(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "localhost" + base
		}
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// jsonRequest executes a request and decodes API errors.
func (c *Client) jsonRequest(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

// Health checks /healthz.
func (c *Client) Health() error {
	_, err := c.jsonRequest(http.MethodGet, "/healthz", nil)
	return err
}

// Runs lists every tracked run, oldest first.
func (c *Client) Runs() ([]Run, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/runs", nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Runs []Run `json:"runs"`
	}
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Runs: %w", err)
	}
	return list.Runs, nil
}

// Run fetches one run.
func (c *Client) Run(id string) (*Run, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/runs/"+id, nil)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(respBody, &run); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Run: %w", err)
	}
	return &run, nil
}

// Stop asks a run to return after its current chunk.
func (c *Client) Stop(id string) error {
	_, err := c.jsonRequest(http.MethodPost, "/runs/"+id+"/stop", nil)
	return err
}

// Wait polls a run until it leaves the running state.
func (c *Client) Wait(id string, interval, timeout time.Duration) (*Run, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return nil, fmt.Errorf("timeout exceeded while waiting for run %s", id)
		case <-ticker.C:
			run, err := c.Run(id)
			if err != nil {
				return nil, err
			}
			if run.Done() {
				return run, nil
			}
		}
	}
}
