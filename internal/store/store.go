package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// SessionStore holds the string-keyed slots of a browsing session. Each
// session id is an isolated scope, the way a tab's sessionStorage is.
type SessionStore interface {
	GetSlot(ctx context.Context, sessionID, key string) ([]byte, error)
	SetSlot(ctx context.Context, sessionID, key string, value []byte) error
	DeleteSlot(ctx context.Context, sessionID, key string) error
}

// Journal records the outcome of every outbound submission.
type Journal interface {
	RecordDelivery(ctx context.Context, d *Delivery) error
}
