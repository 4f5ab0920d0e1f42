// Package replay re-drives a recorded browsing timeline through a tracker
// tab on a virtual clock.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/museumlab/dwelltrack/internal/emitter"
)

type EventType string

const (
	EventLoad        EventType = "load"
	EventHidden      EventType = "hidden"
	EventVisible     EventType = "visible"
	EventInteraction EventType = "interaction"
	EventRating      EventType = "rating"
	EventSelect      EventType = "select"
	EventTransition  EventType = "transition"
)

// Script is a timeline of browser events. JSON scripts parse too, as YAML
// is a superset of JSON.
type Script struct {
	Session string    `yaml:"session" json:"session"`
	Start   time.Time `yaml:"start" json:"start"`
	Events  []Event   `yaml:"events" json:"events"`
}

// Event is one timeline entry. At is the offset from the script start.
type Event struct {
	At   time.Duration `yaml:"at" json:"at"`
	Type EventType     `yaml:"type" json:"type"`

	Page    string `yaml:"page,omitempty" json:"page,omitempty"`
	Event   string `yaml:"event,omitempty" json:"event,omitempty"`
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
	Artwork string `yaml:"artwork,omitempty" json:"artwork,omitempty"`
	Rating  int    `yaml:"rating,omitempty" json:"rating,omitempty"`
	Context string `yaml:"context,omitempty" json:"context,omitempty"`
	Action  string `yaml:"action,omitempty" json:"action,omitempty"`
}

var ErrInvalidScript = errors.New("invalid replay script")

func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

func Parse(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty script", ErrInvalidScript)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every event has what its type needs and that offsets
// never go backwards.
func (s *Script) Validate() error {
	var prev time.Duration
	for i, e := range s.Events {
		if e.At < 0 {
			return fmt.Errorf("%w: event %d: negative offset %s", ErrInvalidScript, i, e.At)
		}
		if e.At < prev {
			return fmt.Errorf("%w: event %d: offset %s is before previous event at %s", ErrInvalidScript, i, e.At, prev)
		}
		prev = e.At

		if err := e.validate(); err != nil {
			return fmt.Errorf("%w: event %d: %w", ErrInvalidScript, i, err)
		}
	}
	return nil
}

func (e Event) validate() error {
	switch e.Type {
	case EventLoad:
		if e.Page == "" {
			return errors.New("load needs page")
		}
	case EventHidden, EventVisible, EventTransition:
	case EventInteraction:
		if e.Event == "" {
			return errors.New("interaction needs event")
		}
	case EventRating:
		if e.Artwork == "" {
			return errors.New("rating needs artwork")
		}
	case EventSelect:
		if e.Artwork == "" {
			return errors.New("select needs artwork")
		}
		switch emitter.SelectionAction(e.Action) {
		case "", emitter.Select, emitter.Deselect:
		default:
			return fmt.Errorf("unknown select action %q", e.Action)
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown type %q", e.Type)
	}
	return nil
}
