package conversation

import (
	"strings"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/knowledge"
)

// Decision is the closed set of routes a turn can take.
type Decision string

const (
	ProfileLink Decision = "PROFILE_LINK"
	NewFacts    Decision = "NEW_FACTS"
	Continue    Decision = "CONTINUE"
)

// Decisions lists every valid decision.
var Decisions = []Decision{ProfileLink, NewFacts, Continue}

// ParseDecision resolves a classifier label, including the legacy names.
// Anything unrecognised resolves to Continue with ok=false.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROFILE_LINK", "HAS_UPWORK_URL":
		return ProfileLink, true
	case "NEW_FACTS", "HAS_NEW_KNOWLEDGE":
		return NewFacts, true
	case "CONTINUE", "CONTINUE_CONVERSATION":
		return Continue, true
	default:
		return Continue, false
	}
}

// RouteDecision is the router's verdict for one turn.
type RouteDecision struct {
	Decision   Decision          `json:"decision"`
	Reasoning  string            `json:"reasoning"`
	ActionArgs map[string]string `json:"actionArgs,omitempty"`
}

// URL returns the profile link carried by a PROFILE_LINK decision.
func (d RouteDecision) URL() string {
	return d.ActionArgs["url"]
}

// State is everything persisted for one thread.
type State struct {
	Messages          []ai.Message     `json:"messages"`
	Knowledge         knowledge.Record `json:"knowledge"`
	LastRouteDecision *RouteDecision   `json:"lastRouteDecision"`
}

// New returns the state of a thread that has not seen any message yet.
func New() *State {
	return &State{
		Messages:  []ai.Message{},
		Knowledge: knowledge.Default(),
	}
}

// Clone returns a deep copy so a turn can work on it without touching the stored state.
func (s *State) Clone() *State {
	out := &State{
		Messages:  append([]ai.Message{}, s.Messages...),
		Knowledge: s.Knowledge.Clone(),
	}
	if s.LastRouteDecision != nil {
		d := *s.LastRouteDecision
		if d.ActionArgs != nil {
			d.ActionArgs = make(map[string]string, len(s.LastRouteDecision.ActionArgs))
			for k, v := range s.LastRouteDecision.ActionArgs {
				d.ActionArgs[k] = v
			}
		}
		out.LastRouteDecision = &d
	}
	return out
}

// Append adds a message to the end of the history.
func (s *State) Append(role ai.Role, content string) {
	s.Messages = append(s.Messages, ai.Message{Role: role, Content: content})
}

// Window returns the last n user and assistant messages, oldest first.
// Tool payloads are skipped.
func (s *State) Window(n int) []ai.Message {
	if n <= 0 {
		return nil
	}
	out := make([]ai.Message, 0, n)
	for i := len(s.Messages) - 1; i >= 0 && len(out) < n; i-- {
		if s.Messages[i].Role == ai.RoleTool {
			continue
		}
		out = append(out, s.Messages[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
