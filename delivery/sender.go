package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// UserAgent is sent with every outbound request.
const UserAgent = "GrowthBook-Webhooks/1.0"

// Request is one outbound HTTP call.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string

	// Signed headers are set after Headers and cannot be overridden by them.
	Signed map[string]string
}

// Result is the outcome of one outbound HTTP call.
type Result struct {
	StatusCode int
	Response   string
	Error      string
	LatencyMs  int
}

// Success reports whether the call completed with a 2xx status.
func (r Result) Success() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage describes a failed call.
func (r Result) ErrorMessage() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Response == "" {
		return fmt.Sprintf("unexpected status %d", r.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", r.StatusCode, r.Response)
}

// Sender performs outbound HTTP calls.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender. A nil client gets a default one with the
// given timeout.
func NewSender(client *http.Client, timeout time.Duration) *Sender {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Sender{client: client}
}

// Send performs req and returns the result. It never returns transport
// failures as errors; they are reported in Result.Error.
func (s *Sender) Send(ctx context.Context, req Request) Result {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Signed {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // G704: URL is a user-configured webhook destination.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
