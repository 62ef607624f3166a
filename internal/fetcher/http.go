package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/hre-border/internal/config"
	"github.com/sells-group/hre-border/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond is the starting request rate for each host.
	RatePerSecond float64
	Retry         resilience.RetryConfig
}

// OptionsFromConfig builds HTTPOptions from the fetch settings.
func OptionsFromConfig(cfg config.FetchConfig) HTTPOptions {
	retry := resilience.RetryFromFetch(cfg)
	retry.OnRetry = resilience.RetryLogger("download")
	return HTTPOptions{
		UserAgent:     cfg.UserAgent,
		Timeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
		RatePerSecond: cfg.RatePerSecond,
		Retry:         retry,
	}
}

// AdaptiveLimiter is a rate.Limiter that speeds up by 20% on success (to
// at most twice its initial rate) and halves on 429 (to at least a quarter).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	max     rate.Limit
	min     rate.Limit
}

// NewAdaptiveLimiter returns an AdaptiveLimiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		current: initial,
		max:     initial * 2,
		min:     initial / 4,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(a.Limit() * 1.2)
}

// OnRateLimit lowers the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(a.Limit() * 0.5)
	zap.L().Warn("fetcher: rate limited, slowing down", zap.Float64("rate", float64(a.Limit())))
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = min(max(r, a.min), a.max)
	a.limiter.SetLimit(a.current)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPFetcher implements Fetcher over net/http with per-host adaptive
// rate limiting and retries on transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher returns an HTTPFetcher with defaults filled in.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "hre-border/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		burst := max(int(f.opts.RatePerSecond), 1)
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RatePerSecond), burst)
		f.limiters[host] = lim
	}
	return lim
}

// get performs one rate-limited GET. 429, 5xx and network failures come
// back as resilience.TransientError.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "fetcher: request")
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
	}

	if resp.StatusCode == http.StatusOK {
		lim.OnSuccess()
		return resp, nil
	}

	_ = resp.Body.Close()
	statusErr := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return nil, statusErr
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*http.Response, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into a sibling temp file and renames it
// over path once the body is complete.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
