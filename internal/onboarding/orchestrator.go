// Package onboarding runs one conversation turn: it routes the user message,
// scrapes a shared profile, extracts facts into the knowledge record and
// writes the reply.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/checkpoint"
	"github.com/spigell/agency-onboarder/internal/conversation"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/logger"
	"github.com/spigell/agency-onboarder/internal/scraper"
)

const (
	windowSize = 2
	// minFactWords is how many words besides a profile link make a message worth a conversation extraction.
	minFactWords = 3

	scrapeApology = "Sorry, I couldn't open that profile page, so let's fill in the details together."
)

// Scraper fetches an agency profile.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Profile, error)
}

type Deps struct {
	Store     checkpoint.Store
	Generator ai.Generator
	Scraper   Scraper
	Logger    *zap.Logger
}

type Options struct {
	ProfileHosts      []string
	CompletionMessage string
	MaxLogLength      int
}

// Reply is the outcome of one turn.
type Reply struct {
	Message   string                `json:"message"`
	Decision  conversation.Decision `json:"decision"`
	Knowledge knowledge.Record      `json:"knowledge"`
	Complete  bool                  `json:"complete"`
}

type Orchestrator struct {
	store     checkpoint.Store
	generator ai.Generator
	scraper   Scraper
	router    *Router
	extractor *Extractor
	composer  *Composer
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if deps.Scraper == nil {
		return nil, errors.New("scraper is required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		store:     deps.Store,
		generator: deps.Generator,
		scraper:   deps.Scraper,
		router:    NewRouter(deps.Generator, opts.ProfileHosts, log, opts.MaxLogLength),
		extractor: NewExtractor(deps.Generator, log, opts.MaxLogLength),
		composer:  NewComposer(deps.Generator, opts.CompletionMessage, log, opts.MaxLogLength),
		logger:    log,
		locks:     make(map[string]*threadLock),
	}, nil
}

// State returns the stored state of a thread, or a fresh one if it has none.
func (o *Orchestrator) State(ctx context.Context, threadID string) (*conversation.State, error) {
	state, err := o.store.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return conversation.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return state, nil
}

// HandleMessage runs one turn for threadID. Turns of the same thread are
// serialized. On error nothing is persisted.
func (o *Orchestrator) HandleMessage(ctx context.Context, threadID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message is empty")
	}

	unlock, err := o.lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := o.State(ctx, threadID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		state:  stored.Clone(),
		logger: logger.WithThread(o.logger, threadID),
	}
	t.state.Append(ai.RoleUser, text)
	t.window = t.state.Window(windowSize)

	for p := phaseRouting; p != phaseDone; {
		t.logger.Debug("turn phase", zap.String("state", p.String()))
		if p, err = o.step(ctx, p, t); err != nil {
			t.logger.Warn("turn aborted", zap.String("state", p.String()), zap.Error(err))
			return nil, err
		}
	}

	t.state.Append(ai.RoleAssistant, t.reply)
	if err := o.store.Save(ctx, threadID, t.state); err != nil {
		return nil, fmt.Errorf("save thread %s: %w", threadID, err)
	}

	t.logger.Info("turn finished",
		zap.String(logger.FieldRoute, string(t.decision.Decision)),
		zap.Int("known_facts", t.state.Knowledge.Known()),
		zap.Bool("complete", t.state.Knowledge.PreferencesComplete()),
	)

	return &Reply{
		Message:   t.reply,
		Decision:  t.decision.Decision,
		Knowledge: t.state.Knowledge.Clone(),
		Complete:  t.state.Knowledge.PreferencesComplete(),
	}, nil
}

type phase int

const (
	phaseRouting phase = iota
	phaseScraping
	phaseExtracting
	phaseChatting
	phaseFollowUp
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseRouting:
		return "routing"
	case phaseScraping:
		return "scraping"
	case phaseExtracting:
		return "extracting"
	case phaseChatting:
		return "chatting"
	case phaseFollowUp:
		return "followup"
	case phaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// turn is the in-memory working copy of a thread while a message is handled.
type turn struct {
	state    *conversation.State
	window   []ai.Message
	decision conversation.RouteDecision
	profile  *scraper.Profile
	notice   string
	reply    string
	logger   *zap.Logger
}

func (o *Orchestrator) step(ctx context.Context, p phase, t *turn) (phase, error) {
	switch p {
	case phaseRouting:
		return o.route(ctx, t)
	case phaseScraping:
		return o.scrape(ctx, t)
	case phaseExtracting:
		return o.extract(ctx, t)
	case phaseChatting:
		return o.chat(ctx, t)
	case phaseFollowUp:
		return o.followUp(ctx, t)
	default:
		return phaseDone, fmt.Errorf("unexpected turn phase %s", p)
	}
}

func (o *Orchestrator) route(ctx context.Context, t *turn) (phase, error) {
	decision, err := o.router.Route(ctx, t.state.Knowledge, t.window)
	if err != nil {
		return phaseRouting, err
	}
	t.decision = decision
	t.state.LastRouteDecision = &decision
	t.logger = t.logger.With(zap.String(logger.FieldRoute, string(decision.Decision)))

	switch decision.Decision {
	case conversation.ProfileLink:
		return phaseScraping, nil
	case conversation.NewFacts:
		return phaseExtracting, nil
	case conversation.Continue:
		return phaseChatting, nil
	default:
		return phaseChatting, nil
	}
}

func (o *Orchestrator) scrape(ctx context.Context, t *turn) (phase, error) {
	link := t.decision.URL()
	profile, err := o.scraper.Scrape(ctx, link)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return phaseScraping, ctxErr
		}
		t.logger.Warn("profile scrape failed", zap.String("url", link), zap.Error(err))
		t.state.Append(ai.RoleTool, scraper.FailurePayload(link, err))
		t.profile = &scraper.Profile{}
		t.notice = scrapeApology
		return phaseExtracting, nil
	}

	t.profile = profile
	t.state.Append(ai.RoleTool, profile.JSON())
	return phaseExtracting, nil
}

func (o *Orchestrator) extract(ctx context.Context, t *turn) (phase, error) {
	current := t.state.Knowledge

	if t.profile != nil {
		update, extractErr := o.extractor.FromProfile(ctx, current, t.profile)
		if err := o.absorb(t, update, extractErr); err != nil {
			return phaseExtracting, err
		}
		if !factsBesideLink(t.window, t.decision.URL()) {
			return phaseFollowUp, nil
		}
	}

	update, extractErr := o.extractor.FromConversation(ctx, t.state.Knowledge, t.window)
	if err := o.absorb(t, update, extractErr); err != nil {
		return phaseExtracting, err
	}
	return phaseFollowUp, nil
}

// absorb merges an extraction result into the turn. Malformed model output
// leaves the knowledge as it was; any other error ends the turn.
func (o *Orchestrator) absorb(t *turn, update knowledge.Record, err error) error {
	var schemaErr *ExtractionSchemaError
	if errors.As(err, &schemaErr) {
		t.logger.Warn("extraction ignored", zap.String("mode", string(schemaErr.Mode)), zap.Error(schemaErr.Err))
		return nil
	}
	if err != nil {
		return err
	}
	before := t.state.Knowledge.Known()
	t.state.Knowledge = knowledge.Merge(t.state.Knowledge, update)
	t.logger.Debug("knowledge merged", zap.Int("known_before", before), zap.Int("known_after", t.state.Knowledge.Known()))
	return nil
}

func (o *Orchestrator) chat(ctx context.Context, t *turn) (phase, error) {
	reply, err := o.chatReply(ctx, t.state.Knowledge, t.state.Messages)
	if err != nil {
		return phaseChatting, err
	}
	t.reply = reply
	return phaseDone, nil
}

func (o *Orchestrator) followUp(ctx context.Context, t *turn) (phase, error) {
	reply, err := o.composer.Compose(ctx, t.state.Knowledge, t.window)
	if err != nil {
		return phaseFollowUp, err
	}
	if t.notice != "" && reply != o.composer.Completion() {
		reply = t.notice + " " + reply
	}
	t.reply = reply
	return phaseDone, nil
}

// factsBesideLink reports whether the newest user message says more than the link itself.
func factsBesideLink(window []ai.Message, link string) bool {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Role != ai.RoleUser {
			continue
		}
		rest := window[i].Content
		if link != "" {
			rest = strings.ReplaceAll(rest, link, " ")
		}
		return len(strings.Fields(rest)) >= minFactWords
	}
	return false
}

func (o *Orchestrator) lock(ctx context.Context, threadID string) (func(), error) {
	o.mu.Lock()
	l, ok := o.locks[threadID]
	if !ok {
		l = &threadLock{sem: make(chan struct{}, 1)}
		o.locks[threadID] = l
	}
	l.refs++
	o.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			o.release(threadID, l)
		}, nil
	case <-ctx.Done():
		o.release(threadID, l)
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) release(threadID string, l *threadLock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(o.locks, threadID)
	}
}
