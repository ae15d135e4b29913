package scraper

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

const (
	titleSelector       = "h4.agency-title span.vertical-align-middle"
	descriptionSelector = ".overflow-wrap-anywhere p.white-space-pre-wrap"
	servicesSelector    = ".air3-card-sections > .air3-card-section h5"
	skillsSelector      = ".air3-token-wrap > .air3-token"
	hourlyRateLabel     = "Hourly rate"
)

var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Encoding":           "gzip",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"macOS"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                userAgent,
}

// Profile is the public information scraped from an agency page.
type Profile struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Services    []string `json:"services"`
	Skills      []string `json:"skills"`
	HourlyRate  string   `json:"hourlyRate"`
}

// Empty reports whether nothing was found on the page.
func (p *Profile) Empty() bool {
	return p == nil || (p.Title == "" && p.Description == "" && len(p.Services) == 0 && len(p.Skills) == 0 && p.HourlyRate == "")
}

// JSON renders the profile the way it is shown to models and kept in history.
func (p *Profile) JSON() string {
	if p == nil {
		p = &Profile{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FetchError is returned when the profile page cannot be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: bad status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailurePayload is the text recorded in place of a profile when scraping fails.
func FailurePayload(url string, err error) string {
	return fmt.Sprintf("Error scraping agency profile %s: %v", url, err)
}

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches agency profiles. Each Scrape is a single GET without retries or caching.
type Client struct {
	http   Doer
	logger *zap.Logger
}

// New returns a Client. A nil doer gets an *http.Client with a default timeout.
func New(doer Doer, logger *zap.Logger) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: doer, logger: logger}
}

// Scrape downloads the page at url and extracts the agency profile from it.
func (c *Client) Scrape(ctx context.Context, url string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	c.logger.Debug("make request", zap.String("url", url))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}
		defer gz.Close()
		body = gz
	}

	profile, err := Parse(body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	c.logger.Debug("profile scraped",
		zap.String("url", url),
		zap.String("title", profile.Title),
		zap.Int("services", len(profile.Services)),
		zap.Int("skills", len(profile.Skills)),
		zap.String("hourly_rate", profile.HourlyRate),
	)

	return profile, nil
}

// Parse extracts a profile from an agency page. Missing elements become empty values.
func Parse(r io.Reader) (*Profile, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	profile := &Profile{
		Title:       text(doc.Find(titleSelector).First()),
		Description: text(doc.Find(descriptionSelector).First()),
		Services:    texts(doc.Find(servicesSelector)),
		Skills:      texts(doc.Find(skillsSelector)),
	}

	label := doc.Find("small").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return text(s) == hourlyRateLabel
	}).First()
	if label.Length() > 0 {
		profile.HourlyRate = text(label.Closest("div").Find("h4").First())
	}

	return profile, nil
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func texts(s *goquery.Selection) []string {
	out := []string{}
	s.Each(func(_ int, item *goquery.Selection) {
		if t := text(item); t != "" {
			out = append(out, t)
		}
	})
	return out
}
