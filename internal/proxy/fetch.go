package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves manifests and segments from third-party origins,
// cycling through the identity strategy table until one attempt succeeds.
type Fetcher struct {
	direct          *http.Client
	secondary       *http.Client
	prefs           *DomainPrefs
	manifestTimeout time.Duration
	segmentTimeout  time.Duration
	logger          *slog.Logger
}

// FetchResult carries a successful upstream response. FinalURL is the URL
// after following redirects; relative manifest references must resolve
// against it, not the requested URL. Close releases the body and the
// attempt's cancellation scope.
type FetchResult struct {
	Response     *http.Response
	FinalURL     *url.URL
	ViaSecondary bool
	cancel       context.CancelFunc
}

func (r *FetchResult) Close() {
	if r.Response != nil && r.Response.Body != nil {
		r.Response.Body.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// NewFetcher builds a fetch engine. secondaryProxy may be empty; when set
// it is an HTTP proxy URL used as a fallback hop for origins that block
// direct requests.
func NewFetcher(secondaryProxy string, prefs *DomainPrefs, manifestTimeout, segmentTimeout time.Duration, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Fetcher{
		direct:          newUpstreamClient(nil),
		prefs:           prefs,
		manifestTimeout: manifestTimeout,
		segmentTimeout:  segmentTimeout,
		logger:          logger,
	}

	if secondaryProxy != "" {
		proxyURL, err := url.Parse(secondaryProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid secondary proxy url: %w", err)
		}
		f.secondary = newUpstreamClient(proxyURL)
	}

	return f, nil
}

func newUpstreamClient(proxyURL *url.URL) *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// Fetch retrieves target, forwarding rangeHeader verbatim when present.
// Attempts run strictly sequentially: parallel retries would hammer an
// origin that is already blocking or struggling. The first 200/206 wins.
func (f *Fetcher) Fetch(ctx context.Context, target, rangeHeader string) (*FetchResult, error) {
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() {
		return nil, ErrInvalidURL
	}

	budget := f.segmentTimeout
	if looksLikeManifestPath(u.Path) {
		budget = f.manifestTimeout
	}

	hops := f.hopOrder(u.Hostname())
	attempts := attemptsFor(u)

	var lastErr error
	lastStatus := 0
	tried := 0

	for _, hop := range hops {
		for _, attempt := range attempts {
			tried++
			res, status, err := f.tryOnce(ctx, hop.client, u, attempt, rangeHeader, budget)
			if err == nil {
				f.recordOutcome(u.Hostname(), hop.secondary, true)
				res.ViaSecondary = hop.secondary
				return res, nil
			}
			if status != 0 {
				lastStatus = status
			}
			lastErr = err
		}
		f.recordOutcome(u.Hostname(), hop.secondary, false)
	}

	f.logger.Warn("upstream exhausted",
		"url", target,
		"attempts", tried,
		"last_status", lastStatus,
		"error", lastErr,
	)
	return nil, &UpstreamError{URL: target, Attempts: tried, LastStatus: lastStatus, LastErr: lastErr}
}

type hop struct {
	client    *http.Client
	secondary bool
}

// hopOrder decides whether to try the direct path or the secondary hop
// first, based on what previously worked for this domain.
func (f *Fetcher) hopOrder(domain string) []hop {
	directHop := hop{client: f.direct}
	if f.secondary == nil {
		return []hop{directHop}
	}
	secondaryHop := hop{client: f.secondary, secondary: true}
	if f.prefs != nil && f.prefs.ShouldPreferSecondaryHop(domain) {
		return []hop{secondaryHop, directHop}
	}
	return []hop{directHop, secondaryHop}
}

func (f *Fetcher) recordOutcome(domain string, secondary, success bool) {
	if f.prefs == nil {
		return
	}
	switch {
	case success && secondary:
		f.prefs.RecordSecondaryHopSuccess(domain)
	case success:
		f.prefs.RecordDirectSuccess(domain)
	case secondary:
		f.prefs.RecordSecondaryHopFailure(domain)
	}
}

// tryOnce issues a single upstream GET under one identity pair. Each
// attempt gets its own cancellation scope so a hung attempt cannot eat
// into the next one. On success the scope is handed to the FetchResult
// and released by Close after the body has been consumed.
func (f *Fetcher) tryOnce(ctx context.Context, client *http.Client, u *url.URL, attempt FetchAttempt, rangeHeader string, budget time.Duration) (*FetchResult, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, budget)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	req.Header.Set("User-Agent", attempt.UserAgent)
	req.Header.Set("Accept", "*/*")
	if attempt.Referer != "" {
		req.Header.Set("Referer", attempt.Referer)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		return nil, resp.StatusCode, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &FetchResult{Response: resp, FinalURL: finalURL, cancel: cancel}, 0, nil
}
