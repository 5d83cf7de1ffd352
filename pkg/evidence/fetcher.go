package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Fetcher checks whether a piece of evidence is reachable. Implementations
// are external collaborators with their own timeout/retry policy; the
// evaluator treats any returned error as an unreachable item, never as a
// fatal failure.
type Fetcher interface {
	Check(ctx context.Context, urlOrHash string) error
}

// NopFetcher treats every item as reachable. Used when reachability checking
// is delegated entirely to the caller.
type NopFetcher struct{}

func (NopFetcher) Check(context.Context, string) error { return nil }

// ErrFetchThrottled is returned when the rate limiter denies a collaborator
// call. The item scores zero for this evaluation.
var ErrFetchThrottled = errors.New("evidence fetch throttled")

// HTTPFetcher checks reachability with a HEAD request. Anything that is not
// an http(s) URL (content hashes, signatures) is assumed reachable; only the
// platform can verify those.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Check(ctx context.Context, urlOrHash string) error {
	if !strings.HasPrefix(urlOrHash, "http://") && !strings.HasPrefix(urlOrHash, "https://") {
		return nil
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlOrHash, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

type fetchOutcome struct {
	err error
}

// CachedFetcher wraps a Fetcher with a TTL cache and a rate limiter so
// repeated evaluations of the same evidence never stampede the collaborator.
type CachedFetcher struct {
	inner   Fetcher
	cache   *gocache.Cache
	limiter *rate.Limiter
	timeout time.Duration
}

// NewCachedFetcher builds a caching, rate-limited wrapper around inner.
// Outcomes (reachable or not) are cached for ttl; at most requestsPerSecond
// collaborator calls are made, with the given burst.
func NewCachedFetcher(inner Fetcher, ttl time.Duration, requestsPerSecond float64, burst int, timeout time.Duration) *CachedFetcher {
	if burst <= 0 {
		burst = 1
	}
	return &CachedFetcher{
		inner:   inner,
		cache:   gocache.New(ttl, 2*ttl),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		timeout: timeout,
	}
}

// Check returns the cached outcome when present, otherwise consults the
// wrapped fetcher under the rate limit. A limiter denial counts as
// unreachable rather than blocking the scorer.
func (f *CachedFetcher) Check(ctx context.Context, urlOrHash string) error {
	if v, found := f.cache.Get(urlOrHash); found {
		return v.(fetchOutcome).err
	}

	if !f.limiter.Allow() {
		return ErrFetchThrottled
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	err := f.inner.Check(ctx, urlOrHash)
	if err != nil {
		err = &EvidenceUnreachableError{URL: urlOrHash, Cause: err}
	}
	f.cache.Set(urlOrHash, fetchOutcome{err: err}, gocache.DefaultExpiration)
	return err
}
