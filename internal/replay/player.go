package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/museumlab/dwelltrack/internal/analytics"
	"github.com/museumlab/dwelltrack/internal/emitter"
	"github.com/museumlab/dwelltrack/internal/tracker"
)

// Clock is a settable time source for replayed tabs.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type Summary struct {
	Events  int
	Flushed []analytics.Record
}

// Play applies the script to tab, moving clock to each event's time first.
// The tab must have been built with clock.Now.
func Play(ctx context.Context, tab *tracker.Tab, clock *Clock, s *Script, logger *zap.Logger) (*Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := s.Start
	if start.IsZero() {
		start = clock.Now()
	}

	summary := &Summary{}
	for i, e := range s.Events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		clock.Set(start.Add(e.At))
		logger.Debug("replaying event", zap.Int("index", i), zap.String("type", string(e.Type)), zap.Duration("at", e.At))

		switch e.Type {
		case EventLoad:
			final, err := tab.Load(ctx, e.Page)
			if err != nil {
				return summary, fmt.Errorf("event %d (load): %w", i, err)
			}
			if final != nil {
				summary.Flushed = append(summary.Flushed, *final)
			}
		case EventHidden:
			if err := tab.VisibilityChange(ctx, true); err != nil {
				return summary, fmt.Errorf("event %d (hidden): %w", i, err)
			}
		case EventVisible:
			if err := tab.VisibilityChange(ctx, false); err != nil {
				return summary, fmt.Errorf("event %d (visible): %w", i, err)
			}
		case EventInteraction:
			tab.Interaction(ctx, e.Event, e.Content)
		case EventRating:
			tab.Rate(ctx, e.Artwork, e.Rating)
		case EventSelect:
			action := emitter.SelectionAction(e.Action)
			if action == "" {
				action = emitter.Select
			}
			tab.Select(ctx, e.Artwork, e.Context, action, nil)
		case EventTransition:
			tab.Transition(ctx)
		default:
			return summary, fmt.Errorf("%w: event %d: unknown type %q", ErrInvalidScript, i, e.Type)
		}
		summary.Events++
	}

	return summary, nil
}
