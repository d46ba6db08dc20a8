package coord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport sends coordination requests to remote servers. The service
// depends on this interface so tests can script remote behavior.
type Transport interface {
	// Send delivers one request to a server and returns its response.
	Send(ctx context.Context, server ServerInfo, req Request) (Response, error)
	// Ping probes a server's health endpoint.
	Ping(ctx context.Context, server ServerInfo) error
}

// HTTPTransport speaks JSON over HTTP: POST /coordinate for requests,
// GET /health for heartbeats.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given overall client
// timeout; per-request timeouts still come from each server's config.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, server ServerInfo, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding request %s: %w", req.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server.Endpoint+"/coordinate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request for %s: %w", server.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("sending to %s: %w", server.ID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, httpResp.Body)
		return Response{}, fmt.Errorf("server %s returned status %d", server.ID, httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decoding response from %s: %w", server.ID, err)
	}
	return resp, nil
}

// Ping implements Transport.
func (t *HTTPTransport) Ping(ctx context.Context, server ServerInfo) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, server.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health check for %s: %w", server.ID, err)
	}
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check for %s: %w", server.ID, err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("server %s health returned status %d", server.ID, httpResp.StatusCode)
	}
	return nil
}

var _ Transport = (*HTTPTransport)(nil)
