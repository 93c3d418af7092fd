package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrBodyTooLarge     = errors.New("response body too large")
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// Fetcher returns the raw markup of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	ExtraHeaders map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Timeout:      10 * time.Second,
		UserAgent:    defaultUserAgent,
		MaxBodyBytes: 10 * 1024 * 1024,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
	}
}

type HTTPFetcher struct {
	client *http.Client
	opts   *Options
}

func NewHTTPFetcher(opts *Options) *HTTPFetcher {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if opts.ExtraHeaders == nil {
		opts.ExtraHeaders = defaults.ExtraHeaders
	}

	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Fetch GETs the page with a browser-like header set. Transport errors,
// timeouts and non-2xx responses are all returned as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range f.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d for %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.opts.MaxBodyBytes)
	}

	return string(body), nil
}
