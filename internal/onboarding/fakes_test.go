package onboarding

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/scraper"
)

const (
	kindRoute        = "route"
	kindConversation = "conversation"
	kindProfile      = "profile"
	kindFollowUp     = "followup"
	kindChat         = "chat"
)

// promptKind tells which component produced a request.
func promptKind(req ai.Request) string {
	if req.System != "" {
		return kindChat
	}
	text := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.HasPrefix(text, "You classify"):
		return kindRoute
	case strings.Contains(text, "from a conversation"):
		return kindConversation
	case strings.Contains(text, "scraped Upwork profile"):
		return kindProfile
	case strings.Contains(text, "set up the filters"):
		return kindFollowUp
	}
	return "unknown"
}

type fakeGenerator struct {
	mu       sync.Mutex
	answers  map[string]string
	errs     map[string]error
	delay    time.Duration
	calls    []string
	prompts  map[string]string
	inflight int
	peak     int
}

func newFakeGenerator(answers map[string]string) *fakeGenerator {
	return &fakeGenerator{answers: answers, errs: map[string]error{}, prompts: map[string]string{}}
}

func (f *fakeGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	kind := promptKind(req)

	f.mu.Lock()
	f.calls = append(f.calls, kind)
	f.prompts[kind] = req.Messages[len(req.Messages)-1].Content
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	answer, err := f.answers[kind], f.errs[kind]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return answer, err
}

func (f *fakeGenerator) Model() string { return "fake" }

func (f *fakeGenerator) called(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func (f *fakeGenerator) prompt(kind string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[kind]
}

type fakeScraper struct {
	profile *scraper.Profile
	err     error
	urls    []string
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*scraper.Profile, error) {
	f.urls = append(f.urls, url)
	return f.profile, f.err
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
