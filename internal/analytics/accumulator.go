// Package analytics keeps the per-session page engagement record and hands
// a finalized copy off when the next page loads.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/museumlab/dwelltrack/internal/store"
)

// SlotKey is the session slot holding the serialized record.
const SlotKey = "pageAnalytics"

// Submitter transmits a finalized record. Implementations must not block
// on delivery and must not report transport failures to the caller.
type Submitter interface {
	SubmitPage(ctx context.Context, rec Record, csrfToken string)
}

// Accumulator owns the analytics record of exactly one session. Create one
// per session and pass it to the handlers that need it; it is safe for
// concurrent use.
type Accumulator struct {
	mu        sync.Mutex
	store     store.SessionStore
	sessionID string
	submitter Submitter
	now       func() time.Time
	logger    *zap.Logger

	// hiddenSince lives only in memory and is dropped on page load.
	hiddenSince *time.Time
}

type Option func(*Accumulator)

func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Accumulator) { a.logger = logger }
}

func WithSubmitter(s Submitter) Option {
	return func(a *Accumulator) { a.submitter = s }
}

func New(s store.SessionStore, sessionID string, opts ...Option) *Accumulator {
	a := &Accumulator{
		store:     s,
		sessionID: sessionID,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("session_id", sessionID))
	return a
}

func (a *Accumulator) SessionID() string {
	return a.sessionID
}

// Initialize stores a fresh record for pageID unless one already exists.
func (a *Accumulator) Initialize(ctx context.Context, pageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.store.GetSlot(ctx, a.sessionID, SlotKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to read record: %w", err)
	}

	return a.reset(ctx, pageID)
}

// Current returns the live record.
func (a *Accumulator) Current(ctx context.Context) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.load(ctx)
}

// RecordHiddenStart marks the page as hidden from now.
func (a *Accumulator) RecordHiddenStart() {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.now()
	a.hiddenSince = &t
}

// RecordHiddenEnd adds the interval since RecordHiddenStart to the hidden
// time and counts one visibility change. Without a pending hidden start
// nothing is recorded.
func (a *Accumulator) RecordHiddenEnd(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hiddenSince == nil {
		a.logger.Debug("visible without pending hidden start, ignoring")
		return nil
	}
	elapsed := max(a.now().Sub(*a.hiddenSince).Seconds(), 0)
	a.hiddenSince = nil

	return a.mutate(ctx, func(r *Record) error {
		if err := apply(r, FieldHiddenTime, elapsed, Accumulate); err != nil {
			return err
		}
		return apply(r, FieldVisibilityChanges, 1, Increment)
	})
}

// Update applies a single named mutation to the stored record.
func (a *Accumulator) Update(ctx context.Context, field Field, value any, mode UpdateMode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.mutate(ctx, func(r *Record) error {
		return apply(r, field, value, mode)
	})
}

// FlushAndReset ends the previous page's record and starts one for pageID.
// A stored record is finalized, handed to the submitter with csrfToken and
// returned; without one nothing is submitted and the result is nil.
func (a *Accumulator) FlushAndReset(ctx context.Context, pageID, csrfToken string) (*Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.hiddenSince = nil

	prev, err := a.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoActiveRecord) {
			return nil, err
		}
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("discarding unreadable analytics record", zap.Error(err))
		}
		return nil, a.reset(ctx, pageID)
	}

	final := prev.Finalize(a.now())

	// The fresh record must be stored before submitting, or a failed write
	// would leave prev in place to be submitted again on the next load.
	if err := a.reset(ctx, pageID); err != nil {
		return nil, err
	}

	if a.submitter != nil {
		a.submitter.SubmitPage(ctx, final, csrfToken)
	}
	a.logger.Debug("page analytics flushed",
		zap.String("page_id", final.PageID),
		zap.Float64("dwell_time", final.DwellTime),
		zap.Float64("hidden_time", final.HiddenTime),
		zap.Int("visibility_changes", final.VisibilityChanges),
	)
	return &final, nil
}

// load reads the stored record. Absent and corrupt slots both report
// ErrNoActiveRecord; the cause stays in the chain.
func (a *Accumulator) load(ctx context.Context) (Record, error) {
	data, err := a.store.GetSlot(ctx, a.sessionID, SlotKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Record{}, fmt.Errorf("%w: %w", ErrNoActiveRecord, err)
		}
		return Record{}, fmt.Errorf("failed to read record: %w", err)
	}

	r, err := decodeRecord(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrNoActiveRecord, err)
	}
	return r, nil
}

func (a *Accumulator) save(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := a.store.SetSlot(ctx, a.sessionID, SlotKey, data); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (a *Accumulator) mutate(ctx context.Context, fn func(*Record) error) error {
	r, err := a.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&r); err != nil {
		return err
	}
	return a.save(ctx, r)
}

func (a *Accumulator) reset(ctx context.Context, pageID string) error {
	return a.save(ctx, NewRecord(pageID, a.now()))
}
