package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "price-tracker/1.0"
	maxBodyBytes     = 8 << 20
)

type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// Fetcher downloads listing pages. Every request is bounded by the
// configured timeout.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	to := opts.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout <= 0 || client.Timeout > to {
		c := *client
		c.Timeout = to
		client = &c
	}
	return &Fetcher{client: client, userAgent: ua}
}

// Fetch GETs u and returns the body. Any failure is a *NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &NetworkError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("http status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, &NetworkError{URL: u, Err: errors.New("response body too large")}
	}
	return body, nil
}
