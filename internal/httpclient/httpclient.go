// Package httpclient builds the *http.Client the catalog client and
// installer share, and a small set of fetch helpers on top of it. The
// transport tuning and redirect-header handling are carried over from
// the teacher's downloader package; unlike the teacher, artifacts here
// are buffered into memory rather than streamed to a resumable .part
// file, since map/mod artifacts are at most a few tens of megabytes.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"saberd/internal/config"
)

// Version is set by -ldflags at build time, matching the teacher's
// linker-injected version string.
var Version = "dev"

// Client wraps an *http.Client tuned for the catalog (metadata) calls and
// artifact (zip) downloads spec'd with distinct timeouts.
type Client struct {
	metaClient     *http.Client
	artifactClient *http.Client
	userAgent      string
}

func New(cfg *config.Config) *Client {
	ua := cfg.Network.UserAgent
	if ua == "" {
		ua = fmt.Sprintf("saberd/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
	}
	metaTimeout := time.Duration(cfg.Network.TimeoutSeconds) * time.Second
	if metaTimeout <= 0 {
		metaTimeout = 5 * time.Second
	}
	artifactTimeout := time.Duration(cfg.Network.ArtifactTimeoutSeconds) * time.Second
	if artifactTimeout <= 0 {
		artifactTimeout = 30 * time.Second
	}
	tr := newTransport()
	return &Client{
		metaClient:     &http.Client{Transport: tr, Timeout: metaTimeout, CheckRedirect: carryHeaders},
		artifactClient: &http.Client{Transport: tr, Timeout: artifactTimeout, CheckRedirect: carryHeaders},
		userAgent:      ua,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// carryHeaders preserves User-Agent across redirects and only forwards
// Authorization when the redirect target host matches the original.
func carryHeaders(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	prev := via[len(via)-1]
	if ua := prev.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if prev.URL != nil && req.URL != nil && strings.EqualFold(prev.URL.Host, req.URL.Host) {
		if auth := prev.Header.Get("Authorization"); auth != "" {
			req.Header.Set("Authorization", auth)
		}
	}
	return nil
}

// StatusError records a non-2xx HTTP response, mirroring the original
// client's StatusCodeError.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// FetchJSON performs a GET against url using the metadata client and
// returns the raw response body, or a *StatusError on non-2xx.
func (c *Client) FetchJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.metaClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return body, nil
}

// FetchArtifact downloads url's full body using the longer artifact
// timeout, for zip/dll artifacts that don't fit the metadata timeout.
func (c *Client) FetchArtifact(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.artifactClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return body, nil
}

// PostEmpty issues a bodyless POST, used by --map-install to hit the
// daemon's own /queue/map/{id} endpoint.
func (c *Client) PostEmpty(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.metaClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

// PostMultipartFile uploads a single named file part to url using the
// artifact client, for the Quest BMBF HTTP install path.
func (c *Client) PostMultipartFile(ctx context.Context, url, fieldName, fileName string, data []byte, extraHeaders map[string]string) (*http.Response, error) {
	body, contentType, err := buildMultipartBody(fieldName, fileName, data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", contentType)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return c.artifactClient.Do(req)
}
