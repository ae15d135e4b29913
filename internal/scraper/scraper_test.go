package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const agencyPage = `<html><body>
<h4 class="agency-title"><span class="vertical-align-middle">  Acme   Digital </span></h4>
<div class="overflow-wrap-anywhere"><p class="white-space-pre-wrap">We build web apps
for startups.</p></div>
<div class="air3-card-sections">
  <div class="air3-card-section"><h5>Web Development</h5></div>
  <div class="air3-card-section"><h5>UI/UX Design</h5></div>
</div>
<div class="air3-token-wrap">
  <span class="air3-token">React</span>
  <span class="air3-token">Node.js</span>
</div>
<div class="rate"><small>Hourly rate</small><h4>$50.00/hr</h4></div>
</body></html>`

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(agencyPage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Profile{
		Title:       "Acme Digital",
		Description: "We build web apps for startups.",
		Services:    []string{"Web Development", "UI/UX Design"},
		Skills:      []string{"React", "Node.js"},
		HourlyRate:  "$50.00/hr",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected profile (-want +got):\n%s", diff)
	}
}

func TestParseMissingFieldsAreEmpty(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader(`<html><body><p>nothing here</p></body></html>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("expected empty profile, got %+v", got)
	}
	if got.Services == nil || got.Skills == nil {
		t.Fatalf("expected empty slices, got nil")
	}
	if got.JSON() != `{"title":"","description":"","services":[],"skills":[],"hourlyRate":""}` {
		t.Fatalf("unexpected json: %s", got.JSON())
	}
}

func TestScrapeSendsBrowserHeadersOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Language") == "" || r.Header.Get("Sec-Ch-Ua") == "" {
			t.Errorf("expected browser headers, got %v", r.Header)
		}

		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(agencyPage))
		_ = gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := New(srv.Client(), nil)
	profile, err := client.Scrape(context.Background(), srv.URL+"/agencies/123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Title != "Acme Digital" || profile.HourlyRate != "$50.00/hr" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}
}

func TestScrapeBadStatusDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := New(srv.Client(), nil)
	_, err := client.Scrape(context.Background(), srv.URL)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", fetchErr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}

	payload := FailurePayload(srv.URL, err)
	if !strings.HasPrefix(payload, "Error scraping agency profile") {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

type failingDoer struct{ err error }

func (f failingDoer) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestScrapeTransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	_, err := New(failingDoer{err: boom}, nil).Scrape(context.Background(), "https://provider.example/agencies/1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
