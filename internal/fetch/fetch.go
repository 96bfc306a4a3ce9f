// Package fetch reads bytes from HTTP servers or from local files.
package fetch

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"dezoomify/internal/dezoomer"
)

//go:embed default_headers.yaml
var defaultHeadersYAML []byte

// DefaultHeaders returns the headers sent with every request.
func DefaultHeaders() map[string]string {
	headers := make(map[string]string)
	if err := yaml.Unmarshal(defaultHeadersYAML, &headers); err != nil {
		panic(fmt.Sprintf("invalid embedded default headers: %v", err))
	}
	return headers
}

// NetworkError is a failed remote fetch: either no response or a non-2xx status.
type NetworkError struct {
	URI        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error fetching %s: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("network error fetching %s: status %d %s", e.URI, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IOError is a failed local file read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("input/output error reading %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

type Options struct {
	// Headers are added to DefaultHeaders, replacing those with the same name.
	Headers map[string]string
	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Client fetches remote and local resources. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	headers http.Header
	log     logrus.FieldLogger
}

func New(opts Options) *Client {
	headers := make(http.Header)
	for k, v := range DefaultHeaders() {
		headers.Set(k, v)
	}
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		headers: headers,
		log:     logger,
	}
}

// Fetch returns the bytes behind uri. headers override the client's headers
// for this request only and are ignored for local files.
func (c *Client) Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	if dezoomer.IsRemote(uri) {
		return c.fetchRemote(ctx, uri, headers)
	}
	path := strings.TrimPrefix(uri, "file://")
	c.log.Debugf("opening %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return data, nil
}

func (c *Client) fetchRemote(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}
	req.Header = c.headers.Clone()
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{URI: uri, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URI: uri, StatusCode: resp.StatusCode, Err: err}
	}

	c.log.Debugf("fetched %s, %dms, %.2f kb", uri, time.Since(start).Milliseconds(), float32(len(body))/1024.0)
	return body, nil
}
