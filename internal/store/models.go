package store

import "time"

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusMalformed DeliveryStatus = "malformed"
)

type Delivery struct {
	ID        int64
	SessionID string
	Kind      string // "page", "interaction", "rating", "selection", "transition"
	Endpoint  string
	Payload   string // Form-encoded body as sent
	Status    DeliveryStatus
	HTTPCode  int
	Error     string
	CreatedAt time.Time
}

type Slot struct {
	SessionID string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
