package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"

	"github.com/museumlab/dwelltrack/internal/emitter"
	"github.com/museumlab/dwelltrack/internal/store"
	"github.com/museumlab/dwelltrack/internal/token"
	"github.com/museumlab/dwelltrack/internal/tracker"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(g *globals, fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(g.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// tracking is everything a command needs to send on behalf of a tab.
type tracking struct {
	store  *store.SQLiteStore
	client *emitter.Client
	tokens token.Source
}

// withTracking builds the store, emitter and token source, runs fn, then
// waits for in-flight submissions before closing the store.
func withTracking(ctx context.Context, g *globals, fn func(*tracking) error) error {
	return withStore(g, func(s *store.SQLiteStore) error {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient := &http.Client{Jar: jar, Timeout: g.cfg.RequestTimeout}

		client, err := emitter.New(g.cfg.Endpoint,
			emitter.WithHTTPClient(httpClient),
			emitter.WithLogger(g.logger),
			emitter.WithPaths(g.cfg.EmitterPaths()),
			emitter.WithJournal(s),
		)
		if err != nil {
			return err
		}
		defer client.Wait()

		tokens, err := tokenSource(ctx, g, httpClient)
		if err != nil {
			return err
		}

		return fn(&tracking{store: s, client: client, tokens: tokens})
	})
}

// tokenSource prefers a configured token, then the server's cookie. A
// cookie that cannot be primed is only warned about; submissions then go
// out with an empty token.
func tokenSource(ctx context.Context, g *globals, httpClient *http.Client) (token.Source, error) {
	if g.cfg.CSRF.Token != "" {
		return token.Static(g.cfg.CSRF.Token), nil
	}

	src, err := token.NewCookieSource(httpClient, g.cfg.Endpoint, g.cfg.CSRF.CookieName)
	if err != nil {
		return nil, err
	}
	if err := src.Prime(ctx, g.cfg.CSRF.PrimePath); err != nil {
		g.logger.Warn("could not obtain anti-forgery token", zap.Error(err))
	}
	return src, nil
}

// tab opens sessionID on the shared store. A nil now uses the wall clock.
func (r *tracking) tab(g *globals, sessionID string, now func() time.Time) *tracker.Tab {
	return tracker.NewTab(tracker.Config{
		SessionID: sessionID,
		Store:     r.store,
		Emitter:   r.client,
		Tokens:    r.tokens,
		Logger:    g.logger,
		Now:       now,
	})
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.1fs", v)
}
