package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// HTTPError reports a non-2xx response while downloading a dataset.
type HTTPError struct {
	URL    string
	Status string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("fetch %s: unexpected status %s: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

// IsURL reports whether name looks like an http(s) dataset location.
func IsURL(name string) bool {
	l := strings.ToLower(strings.TrimSpace(name))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// FetchCSV downloads a CSV/TSV document and reads it with ReadCSV.
func FetchCSV(ctx context.Context, rawURL string, opt Options) (*Table, error) {
	timeout := 60 * time.Second
	if opt.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opt.HTTPTimeoutSec) * time.Second
	}
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPError{URL: rawURL, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	return ReadCSV(resp.Body, urlBase(rawURL), opt)
}

func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return path.Base(u.Path)
}
