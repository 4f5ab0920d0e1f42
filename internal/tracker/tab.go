// Package tracker wires one browsing session's accumulator, emitter and
// token source together.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/museumlab/dwelltrack/internal/analytics"
	"github.com/museumlab/dwelltrack/internal/emitter"
	"github.com/museumlab/dwelltrack/internal/store"
	"github.com/museumlab/dwelltrack/internal/token"
)

// Emitter is the subset of *emitter.Client a Tab sends through.
type Emitter interface {
	analytics.Submitter
	InteractionEvent(ctx context.Context, eventType, contentID, pageID, csrfToken string)
	Rating(ctx context.Context, artworkID string, rating int, csrfToken string)
	Selection(ctx context.Context, artworkID, selectionContext string, action emitter.SelectionAction, csrfToken string, onSuccess func([]byte))
	Transition(ctx context.Context, csrfToken string)
}

// Tab is a single browsing session. It owns its accumulator; handlers are
// given the Tab rather than reaching for shared state. Tab is safe for
// concurrent use.
type Tab struct {
	id     string
	acc    *analytics.Accumulator
	events Emitter
	tokens token.Source
	logger *zap.Logger

	// mu guards pageID and orders page loads.
	mu     sync.RWMutex
	pageID string
}

type Config struct {
	// SessionID defaults to a new random UUID.
	SessionID string
	Store     store.SessionStore
	Emitter   Emitter
	Tokens    token.Source
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewTab(cfg Config) *Tab {
	id := cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = token.Static("")
	}

	opts := []analytics.Option{
		analytics.WithLogger(logger),
		analytics.WithSubmitter(cfg.Emitter),
	}
	if cfg.Now != nil {
		opts = append(opts, analytics.WithClock(cfg.Now))
	}

	return &Tab{
		id:     id,
		acc:    analytics.New(cfg.Store, id, opts...),
		events: cfg.Emitter,
		tokens: tokens,
		logger: logger.With(zap.String("session_id", id)),
	}
}

func (t *Tab) ID() string {
	return t.id
}

func (t *Tab) Accumulator() *analytics.Accumulator {
	return t.acc
}

// PageID is the page most recently loaded in this tab.
func (t *Tab) PageID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pageID
}

// Load handles a page load: the previous page's record is flushed and a
// new one is started for pageID.
func (t *Tab) Load(ctx context.Context, pageID string) (*analytics.Record, error) {
	ctx = emitter.ContextWithSession(ctx, t.id)
	tok := t.token(ctx)

	// Held across the flush so pageID always names the stored record.
	t.mu.Lock()
	defer t.mu.Unlock()

	final, err := t.acc.FlushAndReset(ctx, pageID, tok)
	if err != nil {
		return final, err
	}
	t.pageID = pageID
	return final, nil
}

// VisibilityChange handles the page becoming hidden or visible again.
func (t *Tab) VisibilityChange(ctx context.Context, hidden bool) error {
	if hidden {
		t.acc.RecordHiddenStart()
		return nil
	}
	return t.acc.RecordHiddenEnd(ctx)
}

// Resume reattaches to a session whose record was stored by an earlier
// process, picking up its current page. A session without a record is left
// as is.
func (t *Tab) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.acc.Current(ctx)
	if err != nil {
		if errors.Is(err, analytics.ErrNoActiveRecord) {
			return nil
		}
		return err
	}
	t.pageID = rec.PageID
	return nil
}

// Interaction logs eventType on contentID for the current page.
func (t *Tab) Interaction(ctx context.Context, eventType, contentID string) {
	t.InteractionOn(ctx, t.PageID(), eventType, contentID)
}

// InteractionOn logs eventType on contentID for an explicit page.
func (t *Tab) InteractionOn(ctx context.Context, pageID, eventType, contentID string) {
	ctx = emitter.ContextWithSession(ctx, t.id)
	t.events.InteractionEvent(ctx, eventType, contentID, pageID, t.token(ctx))
}

func (t *Tab) Rate(ctx context.Context, artworkID string, rating int) {
	ctx = emitter.ContextWithSession(ctx, t.id)
	t.events.Rating(ctx, artworkID, rating, t.token(ctx))
}

func (t *Tab) Select(ctx context.Context, artworkID, selectionContext string, action emitter.SelectionAction, onSuccess func([]byte)) {
	ctx = emitter.ContextWithSession(ctx, t.id)
	t.events.Selection(ctx, artworkID, selectionContext, action, t.token(ctx), onSuccess)
}

func (t *Tab) Transition(ctx context.Context) {
	ctx = emitter.ContextWithSession(ctx, t.id)
	t.events.Transition(ctx, t.token(ctx))
}

// token returns the current anti-forgery token, or "" when the source has
// none. The server decides what to do with a missing token.
func (t *Tab) token(ctx context.Context) string {
	v, err := t.tokens.Token(ctx)
	if err != nil {
		t.logger.Warn("anti-forgery token unavailable", zap.Error(err))
		return ""
	}
	return v
}
