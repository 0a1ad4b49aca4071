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

	"mediaconv/internal/api"
)

const probeTimeout = 500 * time.Millisecond

// daemonClient calls the daemon's HTTP API.
type daemonClient struct {
	base string
	http *http.Client
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("daemon: %s (HTTP %d)", e.message, e.status)
}

func newDaemonClient(base string) *daemonClient {
	return &daemonClient{base: base, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *daemonClient) reachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := c.Status(probeCtx)
	return err == nil
}

func (c *daemonClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.call(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return api.DaemonStatus{}, err
	}
	return status, nil
}

// call sends body as JSON and decodes a 2xx response into out.
func (c *daemonClient) call(ctx context.Context, method, path string, body, out any) error {
	code, data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return decodeAPIError(code, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *daemonClient) raw(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func decodeAPIError(code int, data []byte) error {
	var payload api.ErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || strings.TrimSpace(payload.Error) == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	if payload.Error == "" {
		payload.Error = http.StatusText(code)
	}
	return &apiError{status: code, message: payload.Error}
}
