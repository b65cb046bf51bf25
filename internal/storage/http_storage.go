package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge is returned when a payload exceeds the configured size cap.
var ErrTooLarge = errors.New("image exceeds size limit")

// ImageFetcher returns the raw bytes behind an image reference.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, ref string) ([]byte, error)
}

// FetchError describes a failed download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure came from the remote side and might
// succeed later.
func (e *FetchError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// HTTPOptions tunes the HTTP fetcher.
type HTTPOptions struct {
	Timeout   time.Duration
	MaxBytes  int64
	Attempts  int
	Backoff   time.Duration
	UserAgent string
}

// DefaultHTTPOptions matches the download behaviour of the upload API: 10s per
// request, three attempts with linear backoff.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:   10 * time.Second,
		MaxBytes:  20 << 20,
		Attempts:  3,
		Backoff:   time.Second,
		UserAgent: "Profile-Image-Analyzer/1.0",
	}
}

// HTTPImageFetcher downloads images over HTTP(S) with retries on transient errors.
type HTTPImageFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts HTTPOptions) *HTTPImageFetcher {
	def := DefaultHTTPOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 8192,
	}

	return &HTTPImageFetcher{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
	}
}

func (h *HTTPImageFetcher) FetchBytes(ctx context.Context, imageURL string) ([]byte, error) {
	var lastErr *FetchError

	for attempt := 0; attempt < h.opts.Attempts; attempt++ {
		if attempt > 0 {
			// linear backoff
			if err := sleepCtx(ctx, time.Duration(attempt)*h.opts.Backoff); err != nil {
				return nil, &FetchError{URL: imageURL, Err: err}
			}
		}

		data, ferr := h.fetchOnce(ctx, imageURL)
		if ferr == nil {
			return data, nil
		}
		lastErr = ferr

		if !ferr.Temporary() || ctx.Err() != nil || errors.Is(ferr, ErrTooLarge) {
			break
		}
	}

	return nil, &FetchError{
		URL:        imageURL,
		StatusCode: lastErr.StatusCode,
		Err:        fmt.Errorf("after %d attempts: %w", h.opts.Attempts, lastErr.Err),
	}
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: imageURL, StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid URL: %w", err)}
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/bmp, */*")
	req.Header.Set("User-Agent", h.opts.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("client error: status code %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("server error: status code %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status code %d", resp.StatusCode)}
	}

	if resp.ContentLength > h.opts.MaxBytes {
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	data, err := readLimited(resp.Body, h.opts.MaxBytes)
	if err != nil {
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// readLimited reads r fully, failing with ErrTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
