package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/museumlab/dwelltrack/internal/store"
)

func setupTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestOpen(t *testing.T) {
	s := setupTestDB(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestSlot_SetGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.SetSlot(ctx, "tab-1", "pageAnalytics", []byte(`{"page_id":"5"}`)); err != nil {
		t.Fatalf("failed to set slot: %v", err)
	}

	got, err := s.GetSlot(ctx, "tab-1", "pageAnalytics")
	if err != nil {
		t.Fatalf("failed to get slot: %v", err)
	}
	if string(got) != `{"page_id":"5"}` {
		t.Errorf("got %s, want stored value", got)
	}
}

func TestSlot_Overwrite(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.SetSlot(ctx, "tab-1", "k", []byte("one"))
	if err := s.SetSlot(ctx, "tab-1", "k", []byte("two")); err != nil {
		t.Fatalf("failed to overwrite slot: %v", err)
	}

	got, _ := s.GetSlot(ctx, "tab-1", "k")
	if string(got) != "two" {
		t.Errorf("got %s, want two", got)
	}

	slots, err := s.ListSlots(ctx)
	if err != nil {
		t.Fatalf("failed to list slots: %v", err)
	}
	if len(slots) != 1 {
		t.Errorf("got %d slots, want 1", len(slots))
	}
}

func TestSlot_SessionsAreIsolated(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.SetSlot(ctx, "tab-1", "k", []byte("one"))

	_, err := s.GetSlot(ctx, "tab-2", "k")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSlot_Delete(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.SetSlot(ctx, "tab-1", "k", []byte("one"))
	if err := s.DeleteSlot(ctx, "tab-1", "k"); err != nil {
		t.Fatalf("failed to delete slot: %v", err)
	}
	if _, err := s.GetSlot(ctx, "tab-1", "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound after delete", err)
	}
	if err := s.DeleteSlot(ctx, "tab-1", "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound on second delete", err)
	}
}

func TestClearSession(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.SetSlot(ctx, "tab-1", "a", []byte("1"))
	s.SetSlot(ctx, "tab-1", "b", []byte("2"))
	s.SetSlot(ctx, "tab-2", "a", []byte("3"))

	if err := s.ClearSession(ctx, "tab-1"); err != nil {
		t.Fatalf("failed to clear session: %v", err)
	}

	slots, _ := s.ListSlots(ctx)
	if len(slots) != 1 || slots[0].SessionID != "tab-2" {
		t.Errorf("expected only tab-2 to remain, got %+v", slots)
	}

	if err := s.ClearSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRecordDelivery(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	d := &store.Delivery{
		SessionID: "tab-1",
		Kind:      "page",
		Endpoint:  "http://localhost/logger/page/",
		Payload:   "page_id=5",
		Status:    store.StatusSent,
		HTTPCode:  200,
		CreatedAt: time.Unix(1700000000, 0),
	}
	if err := s.RecordDelivery(ctx, d); err != nil {
		t.Fatalf("failed to record delivery: %v", err)
	}
	if d.ID == 0 {
		t.Error("expected delivery id to be assigned")
	}

	got, err := s.ListDeliveries(ctx, store.DeliveryFilter{})
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(got))
	}
	if got[0].Kind != "page" || got[0].Status != store.StatusSent || got[0].HTTPCode != 200 {
		t.Errorf("unexpected delivery: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("got CreatedAt %v", got[0].CreatedAt)
	}
}

func TestListDeliveries_Filter(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.RecordDelivery(ctx, &store.Delivery{SessionID: "a", Kind: "page", Endpoint: "/p", Status: store.StatusSent})
	s.RecordDelivery(ctx, &store.Delivery{SessionID: "a", Kind: "rating", Endpoint: "/r", Status: store.StatusFailed, Error: "connection refused"})
	s.RecordDelivery(ctx, &store.Delivery{SessionID: "b", Kind: "page", Endpoint: "/p", Status: store.StatusFailed})
	s.RecordDelivery(ctx, &store.Delivery{SessionID: "b", Kind: "selection", Endpoint: "/s", Status: store.StatusMalformed})

	failed, err := s.ListDeliveries(ctx, store.DeliveryFilter{Statuses: []store.DeliveryStatus{store.StatusFailed}})
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("got %d failed deliveries, want 2", len(failed))
	}

	sessionA, _ := s.ListDeliveries(ctx, store.DeliveryFilter{SessionID: "a", Statuses: []store.DeliveryStatus{store.StatusFailed}})
	if len(sessionA) != 1 || sessionA[0].Error != "connection refused" {
		t.Errorf("unexpected filtered deliveries: %+v", sessionA)
	}

	problems, err := s.ListDeliveries(ctx, store.DeliveryFilter{Statuses: []store.DeliveryStatus{store.StatusFailed, store.StatusMalformed}})
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	if len(problems) != 3 {
		t.Errorf("got %d failed or malformed deliveries, want 3", len(problems))
	}
}
