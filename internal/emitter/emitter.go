// Package emitter posts interaction and page analytics events to the study's
// logging endpoints. Every send is asynchronous: callers never block on the
// network and never see transport errors, which are only logged and
// journalled.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/museumlab/dwelltrack/internal/analytics"
	"github.com/museumlab/dwelltrack/internal/store"
)

var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

const (
	KindPage        = "page"
	KindInteraction = "interaction"
	KindRating      = "rating"
	KindSelection   = "selection"
	KindTransition  = "transition"
)

// tokenField is the form field the server reads the anti-forgery token from.
const tokenField = "csrfmiddlewaretoken"

const maxResponseBytes = 1 << 20

type Paths struct {
	Page        string
	Interaction string
	Rating      string
	Selection   string
	Transition  string
}

var DefaultPaths = Paths{
	Page:        "/logger/page/",
	Interaction: "/logger/log/",
	Rating:      "/rating/",
	Selection:   "/selected/",
	Transition:  "/transition/",
}

type SelectionAction string

const (
	Select   SelectionAction = "select"
	Deselect SelectionAction = "deselect"
)

type Client struct {
	base    *url.URL
	http    *http.Client
	paths   Paths
	logger  *zap.Logger
	journal store.Journal
	now     func() time.Time

	inflight errgroup.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithPaths(p Paths) Option {
	return func(c *Client) { c.paths = p }
}

// WithJournal records every delivery outcome in j.
func WithJournal(j store.Journal) Option {
	return func(c *Client) { c.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   u,
		http:   http.DefaultClient,
		paths:  DefaultPaths,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InteractionEvent logs a user action on a piece of content.
func (c *Client) InteractionEvent(ctx context.Context, eventType, contentID, pageID, csrfToken string) {
	form := url.Values{
		tokenField:   {csrfToken},
		"event_type": {eventType},
		"content_id": {contentID},
		"page_id":    {pageID},
	}
	c.dispatch(ctx, KindInteraction, c.paths.Interaction, form, nil)
}

// Rating saves the rating a participant gave an artwork.
func (c *Client) Rating(ctx context.Context, artworkID string, rating int, csrfToken string) {
	form := url.Values{
		tokenField:      {csrfToken},
		"artwork_id":    {artworkID},
		"rating_number": {strconv.Itoa(rating)},
	}
	c.dispatch(ctx, KindRating, c.paths.Rating, form, nil)
}

// Selection saves an artwork selection or deselection. onSuccess, when set,
// receives the response body of a well-formed reply.
func (c *Client) Selection(ctx context.Context, artworkID, selectionContext string, action SelectionAction, csrfToken string, onSuccess func(body []byte)) {
	form := url.Values{
		tokenField:           {csrfToken},
		"artwork_id":         {artworkID},
		"selection_context":  {selectionContext},
		"select_or_deselect": {string(action)},
	}
	c.dispatch(ctx, KindSelection, c.paths.Selection, form, func(resp *http.Response, body []byte) error {
		if err := checkSelectionResponse(resp, body); err != nil {
			return err
		}
		if onSuccess != nil {
			onSuccess(body)
		}
		return nil
	})
}

// Transition moves the participant to the next study stage.
func (c *Client) Transition(ctx context.Context, csrfToken string) {
	form := url.Values{tokenField: {csrfToken}}
	c.dispatch(ctx, KindTransition, c.paths.Transition, form, nil)
}

// PageAnalytics submits a finalized engagement record.
func (c *Client) PageAnalytics(ctx context.Context, rec analytics.Record, csrfToken string) {
	c.dispatch(ctx, KindPage, c.paths.Page, pageForm(rec, csrfToken), nil)
}

// SubmitPage lets the client act as an analytics.Submitter.
func (c *Client) SubmitPage(ctx context.Context, rec analytics.Record, csrfToken string) {
	c.PageAnalytics(ctx, rec, csrfToken)
}

// Wait blocks until every send started so far has finished.
func (c *Client) Wait() {
	c.inflight.Wait()
}

func pageForm(rec analytics.Record, csrfToken string) url.Values {
	return url.Values{
		tokenField:          {csrfToken},
		"page_id":           {rec.PageID},
		"hiddenTime":        {formatSeconds(rec.HiddenTime)},
		"visibilityChanges": {strconv.Itoa(rec.VisibilityChanges)},
		"dwellTime":         {formatSeconds(rec.DwellTime)},
		"dwellMinusHidden":  {formatSeconds(rec.DwellMinusHidden)},
		"startTimestamp":    {rec.StartTimestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")},
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkSelectionResponse(resp *http.Response, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" && !json.Valid(body) {
		return fmt.Errorf("%w: invalid JSON body", ErrMalformedResponse)
	}
	return nil
}

// dispatch sends in the background. The request outlives ctx's
// cancellation but keeps its values.
func (c *Client) dispatch(ctx context.Context, kind, path string, form url.Values, handle func(*http.Response, []byte) error) {
	ctx = context.WithoutCancel(ctx)
	c.inflight.Go(func() error {
		c.deliver(ctx, kind, path, form, handle)
		return nil
	})
}

func (c *Client) deliver(ctx context.Context, kind, path string, form url.Values, handle func(*http.Response, []byte) error) {
	endpoint := c.base.JoinPath(path).String()
	payload := form.Encode()
	delivery := &store.Delivery{
		SessionID: SessionFromContext(ctx),
		Kind:      kind,
		Endpoint:  endpoint,
		Payload:   payload,
		CreatedAt: c.now(),
	}

	code, err := c.post(ctx, endpoint, payload, handle)
	delivery.HTTPCode = code

	switch {
	case err == nil:
		delivery.Status = store.StatusSent
		c.logger.Debug("event delivered", zap.String("kind", kind), zap.Int("status", code))
	case errors.Is(err, ErrMalformedResponse):
		delivery.Status = store.StatusMalformed
		delivery.Error = err.Error()
		c.logger.Warn("unexpected response", zap.String("kind", kind), zap.String("endpoint", endpoint), zap.Error(err))
	default:
		delivery.Status = store.StatusFailed
		delivery.Error = err.Error()
		c.logger.Warn("posting event failed", zap.String("kind", kind), zap.String("endpoint", endpoint), zap.Error(err))
	}

	if c.journal != nil {
		if err := c.journal.RecordDelivery(ctx, delivery); err != nil {
			c.logger.Error("failed to journal delivery", zap.String("kind", kind), zap.Error(err))
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint, payload string, handle func(*http.Response, []byte) error) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: server returned %s", ErrTransport, resp.Status)
	}

	if handle != nil {
		if err := handle(resp, body); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
