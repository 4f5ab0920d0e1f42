package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
)

func TestStatic(t *testing.T) {
	got, err := Static("abc").Token(context.Background())
	if err != nil || got != "abc" {
		t.Errorf("got %q, %v; want abc", got, err)
	}

	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("got %v, want ErrNoToken", err)
	}
}

func TestNewCookieSource_RequiresJar(t *testing.T) {
	if _, err := NewCookieSource(&http.Client{}, "http://localhost", ""); err == nil {
		t.Error("expected error without cookie jar")
	}
}

func TestCookieSource_PrimeAndRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: "secret", Path: "/"})
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	src, err := NewCookieSource(client, srv.URL, "")
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	ctx := context.Background()
	if _, err := src.Token(ctx); !errors.Is(err, ErrNoToken) {
		t.Errorf("got %v, want ErrNoToken before priming", err)
	}

	if err := src.Prime(ctx, "/"); err != nil {
		t.Fatalf("failed to prime: %v", err)
	}

	got, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("failed to read token: %v", err)
	}
	if got != "secret" {
		t.Errorf("got %q, want secret", got)
	}
}

func TestCookieSource_PrimeWithoutCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	src, err := NewCookieSource(&http.Client{Jar: jar}, srv.URL, "othertoken")
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	if err := src.Prime(context.Background(), "/"); !errors.Is(err, ErrNoToken) {
		t.Errorf("got %v, want ErrNoToken", err)
	}
}
