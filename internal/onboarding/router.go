package onboarding

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/conversation"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/utils"
)

// DefaultProfileHosts are the sites whose agency pages the scraper understands.
var DefaultProfileHosts = []string{"upwork.com"}

const urlTrailer = ".,;:!?)]}>'\""

var anyURL = regexp.MustCompile(`https?://[^\s<>"']+`)

// Router decides what a turn should do with the latest messages.
type Router struct {
	generator ai.Generator
	profile   *regexp.Regexp
	logger    *zap.Logger
	maxLogLen int
}

// NewRouter returns a Router that recognises profile links on hosts (and their subdomains).
func NewRouter(generator ai.Generator, hosts []string, logger *zap.Logger, maxLogLen int) *Router {
	if len(hosts) == 0 {
		hosts = DefaultProfileHosts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		generator: generator,
		profile:   profilePattern(hosts),
		logger:    logger,
		maxLogLen: maxLogLen,
	}
}

func profilePattern(hosts []string) *regexp.Regexp {
	quoted := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(strings.ToLower(h))
		if h == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(h))
	}
	return regexp.MustCompile(`(?i)https?://(?:[a-z0-9-]+\.)*(?:` + strings.Join(quoted, "|") +
		`)(?::\d+)?/(?:[a-z]{2}/)?(?:agencies|freelancers|companies)/[^\s<>"']+`)
}

// ProfileURL returns the newest profile link found in the user messages of window.
func (r *Router) ProfileURL(window []ai.Message) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Role != ai.RoleUser {
			continue
		}
		if found := r.profile.FindString(window[i].Content); found != "" {
			return strings.TrimRight(found, urlTrailer)
		}
	}
	return ""
}

// Route classifies the window. A profile link always wins; otherwise the model
// chooses between NEW_FACTS and CONTINUE, and anything it says that cannot be
// used falls back to CONTINUE. Only provider failures are returned as errors.
func (r *Router) Route(ctx context.Context, current knowledge.Record, window []ai.Message) (conversation.RouteDecision, error) {
	if link := r.ProfileURL(window); link != "" {
		return conversation.RouteDecision{
			Decision:   conversation.ProfileLink,
			Reasoning:  "The message contains an agency profile link that needs to be scraped.",
			ActionArgs: map[string]string{"url": link},
		}, nil
	}

	prompt := render(routerPrompt, map[string]string{
		"KNOWLEDGE":    current.String(),
		"INTERACTIONS": formatInteractions(window),
	})

	raw, err := r.generator.Generate(ctx, ai.Request{
		Messages: []ai.Message{{Role: ai.RoleUser, Content: prompt}},
		Schema:   routerSchema(),
	})
	if err != nil {
		return conversation.RouteDecision{}, fmt.Errorf("route: %w", err)
	}

	decision := r.parse(raw, window)
	r.logger.Debug("route decided",
		zap.String("decision", string(decision.Decision)),
		zap.String("reasoning", utils.TruncateForLog(decision.Reasoning, r.maxLogLen)),
	)
	return decision, nil
}

func (r *Router) parse(raw string, window []ai.Message) conversation.RouteDecision {
	fallback := conversation.RouteDecision{
		Decision:  conversation.Continue,
		Reasoning: "The classifier answer was not usable, continuing the conversation.",
	}

	var out struct {
		Decision   string            `mapstructure:"decision"`
		Reasoning  string            `mapstructure:"reasoning"`
		ActionArgs map[string]string `mapstructure:"actionArgs"`
		ToolCall   map[string]any    `mapstructure:"tool_call"`
	}
	if err := ai.DecodeJSON(raw, &out); err != nil {
		r.logger.Warn("router answer is not valid json, continuing", zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)))
		return fallback
	}

	decision, ok := conversation.ParseDecision(out.Decision)
	if !ok {
		r.logger.Warn("router returned unknown decision, continuing", zap.String("decision", out.Decision))
		return fallback
	}

	result := conversation.RouteDecision{Decision: decision, Reasoning: strings.TrimSpace(out.Reasoning)}

	switch decision {
	case conversation.ProfileLink:
		link := out.ActionArgs["url"]
		if link == "" && out.ToolCall != nil {
			link = ai.CoerceString(out.ToolCall["args"])
		}
		link = strings.TrimRight(strings.TrimSpace(link), urlTrailer)
		if !sharedByUser(link, window) {
			r.logger.Warn("router chose a profile link that the user did not send, continuing", zap.String("url", link))
			return fallback
		}
		if !r.isProfile(link) {
			r.logger.Warn("router chose a link that is not an agency profile, continuing", zap.String("url", link))
			return fallback
		}
		result.ActionArgs = map[string]string{"url": link}
	case conversation.NewFacts, conversation.Continue:
	}

	return result
}

// isProfile reports whether link as a whole is a profile page on a known host.
func (r *Router) isProfile(link string) bool {
	return strings.TrimRight(r.profile.FindString(link), urlTrailer) == link
}

// sharedByUser reports whether link is an absolute http(s) URL present in a user message.
func sharedByUser(link string, window []ai.Message) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	for _, m := range window {
		if m.Role != ai.RoleUser {
			continue
		}
		for _, found := range anyURL.FindAllString(m.Content, -1) {
			if strings.TrimRight(found, urlTrailer) == link {
				return true
			}
		}
	}
	return false
}
