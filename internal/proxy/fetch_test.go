package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, secondaryProxy string, prefs *DomainPrefs) *Fetcher {
	t.Helper()
	f, err := NewFetcher(secondaryProxy, prefs, 2*time.Second, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

type recordedAttempt struct {
	userAgent string
	referer   string
}

func TestFetchAttemptOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []recordedAttempt

	failUntil := 6 // succeed on the last table entry
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, recordedAttempt{
			userAgent: r.Header.Get("User-Agent"),
			referer:   r.Header.Get("Referer"),
		})
		n := len(seen)
		mu.Unlock()

		if n < failUntil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	f := newTestFetcher(t, "", nil)
	res, err := f.Fetch(context.Background(), origin.URL+"/seg0.ts", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	originURL := mustParse(t, origin.URL)
	want := attemptsFor(originURL)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("performed %d attempts, want %d", len(seen), len(want))
	}
	for i, attempt := range want {
		if seen[i].userAgent != attempt.UserAgent {
			t.Errorf("attempt %d User-Agent = %q, want %q", i, seen[i].userAgent, attempt.UserAgent)
		}
		if seen[i].referer != attempt.Referer {
			t.Errorf("attempt %d Referer = %q, want %q", i, seen[i].referer, attempt.Referer)
		}
	}
}

func TestFetchStopsOnFirstSuccess(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	count := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	f := newTestFetcher(t, "", nil)
	res, err := f.Fetch(context.Background(), origin.URL+"/seg0.ts", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("performed %d attempts, want 1", count)
	}
}

func TestFetchExhaustion(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer origin.Close()

	f := newTestFetcher(t, "", nil)
	_, err := f.Fetch(context.Background(), origin.URL+"/seg0.ts", "")
	if err == nil {
		t.Fatal("Fetch succeeded against an always-failing origin")
	}

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %T, want *UpstreamError", err)
	}
	if wantAttempts := len(identityProfiles) * 2; ue.Attempts != wantAttempts {
		t.Errorf("Attempts = %d, want %d", ue.Attempts, wantAttempts)
	}
	if ue.LastStatus != http.StatusInternalServerError {
		t.Errorf("LastStatus = %d, want 500", ue.LastStatus)
	}
}

func TestFetchForwardsRange(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-99" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-99/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 100))
	}))
	defer origin.Close()

	f := newTestFetcher(t, "", nil)
	res, err := f.Fetch(context.Background(), origin.URL+"/seg0.ts", "bytes=0-99")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	if res.Response.StatusCode != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", res.Response.StatusCode)
	}
}

func TestFetchReportsFinalURLAfterRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	origin := httptest.NewServer(mux)
	defer origin.Close()

	mux.HandleFunc("/start.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hls/v2/index.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/hls/v2/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	})

	f := newTestFetcher(t, "", nil)
	res, err := f.Fetch(context.Background(), origin.URL+"/start.m3u8", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	if res.FinalURL.Path != "/hls/v2/index.m3u8" {
		t.Errorf("FinalURL.Path = %q, want /hls/v2/index.m3u8", res.FinalURL.Path)
	}
}

func TestFetchPerAttemptTimeout(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer origin.Close()

	f, err := NewFetcher("", nil, 100*time.Millisecond, 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	start := time.Now()
	_, err = f.Fetch(context.Background(), origin.URL+"/slow.m3u8", "")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Fetch succeeded against a hanging origin")
	}
	// Six attempts at 100ms each plus overhead, never the origin's 5s sleep
	if elapsed > 3*time.Second {
		t.Fatalf("exhaustion took %v, want bounded by per-attempt timeouts", elapsed)
	}
}

func TestFetchRejectsRelativeURL(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "", nil)
	if _, err := f.Fetch(context.Background(), "not-a-url", ""); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("Fetch = %v, want ErrInvalidURL", err)
	}
}

func TestFetchSecondaryHopFallback(t *testing.T) {
	t.Parallel()

	// Plays the role of the secondary HTTP proxy: answers any absolute-URI
	// GET with a fixed body.
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("via-secondary"))
	}))
	defer secondary.Close()

	prefs := NewDomainPrefs()
	f, err := NewFetcher(secondary.URL, prefs, 500*time.Millisecond, 500*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	// The direct path cannot resolve this host; only the secondary hop works.
	res, err := f.Fetch(context.Background(), "http://origin.invalid/seg0.ts", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Close()

	if !res.ViaSecondary {
		t.Error("response not marked as served via secondary hop")
	}
	if !prefs.ShouldPreferSecondaryHop("origin.invalid") {
		t.Error("secondary-hop success was not recorded for the domain")
	}
}

func TestAttemptsForTableShape(t *testing.T) {
	t.Parallel()
	u := mustParse(t, "https://cdn.example.com/hls/index.m3u8")
	attempts := attemptsFor(u)

	if len(attempts) != len(identityProfiles)*2 {
		t.Fatalf("table size = %d, want %d", len(attempts), len(identityProfiles)*2)
	}
	for i := 0; i < len(attempts); i += 2 {
		if attempts[i].Referer != "https://cdn.example.com/" {
			t.Errorf("attempt %d referer = %q, want origin-derived", i, attempts[i].Referer)
		}
		if attempts[i+1].Referer != "" {
			t.Errorf("attempt %d referer = %q, want empty", i+1, attempts[i+1].Referer)
		}
		if attempts[i].UserAgent != attempts[i+1].UserAgent {
			t.Errorf("attempts %d/%d use different identities", i, i+1)
		}
	}
}
