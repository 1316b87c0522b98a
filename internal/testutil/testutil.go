// Package testutil provides small fixtures shared by the daemon's tests,
// mirroring the teacher's test-helper package (mock HTTP server, temp dirs).
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// MockHTTPServer serves canned responses keyed by request path.
type MockHTTPServer struct {
	*httptest.Server
	Responses map[string]MockResponse
}

type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

func NewMockHTTPServer() *MockHTTPServer {
	ms := &MockHTTPServer{Responses: make(map[string]MockResponse)}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		resp, ok := ms.Responses[key]
		if !ok {
			resp, ok = ms.Responses[r.URL.Path]
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, "no mock response configured for %s", key)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = fmt.Fprint(w, resp.Body)
	}))
	return ms
}

func (ms *MockHTTPServer) AddJSONResponse(path string, statusCode int, body string) {
	ms.Responses[path] = MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func (ms *MockHTTPServer) AddResponse(path string, response MockResponse) {
	ms.Responses[path] = response
}

// TempDir creates a self-cleaning temp directory.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "saberd-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := TempDir(t)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// MockRoundTripper implements http.RoundTripper for request-shape assertions.
type MockRoundTripper struct {
	Responses map[string]*http.Response
	Requests  []*http.Request
}

func NewMockRoundTripper() *MockRoundTripper {
	return &MockRoundTripper{Responses: make(map[string]*http.Response)}
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.Requests = append(m.Requests, req)
	if resp, ok := m.Responses[req.URL.String()]; ok {
		return resp, nil
	}
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader("not found")), Request: req}, nil
}

func (m *MockRoundTripper) AddStringResponse(url string, statusCode int, body string) {
	m.Responses[url] = &http.Response{StatusCode: statusCode, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}
