// Package token supplies the anti-forgery token sent with every submission.
package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultCookieName is the cookie the logging server issues its token in.
const DefaultCookieName = "csrftoken"

var ErrNoToken = errors.New("anti-forgery token not available")

type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same value.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// CookieSource reads the token cookie the server set for endpoint.
type CookieSource struct {
	client   *http.Client
	endpoint *url.URL
	name     string
}

// NewCookieSource reads cookie name for endpoint from client's jar. The
// client must have a non-nil Jar.
func NewCookieSource(client *http.Client, endpoint, name string) (*CookieSource, error) {
	if client == nil || client.Jar == nil {
		return nil, fmt.Errorf("cookie source requires an http client with a cookie jar")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieSource{client: client, endpoint: u, name: name}, nil
}

func (c *CookieSource) Token(context.Context) (string, error) {
	for _, cookie := range c.client.Jar.Cookies(c.endpoint) {
		if cookie.Name == c.name && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("%w: cookie %q not set for %s", ErrNoToken, c.name, c.endpoint.Host)
}

// Prime fetches path from the endpoint so the server can set the token
// cookie in the jar.
func (c *CookieSource) Prime(ctx context.Context, path string) error {
	u := c.endpoint.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to prime token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if _, err := c.Token(ctx); err != nil {
		return err
	}
	return nil
}
