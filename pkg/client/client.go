// Package client is the Go SDK for the TerraWeb server. It keeps a cached
// copy of the signed-in identity so callers can gate rendering decisions
// without a round trip. The cache is advisory only: the server re-checks
// every privileged request, so a stale or tampered cache can at worst draw
// a control the server will refuse.
//
// Cache mutations err toward signed out: Login drops the previous identity
// before attempting the exchange, and Logout drops it whether or not the
// server could be reached. A failed mutation never leaves stale grants.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

// Identity is the non-secret projection the server returns from login
// and /api/user.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

var (
	ErrNotAuthenticated = errors.New("client: not authenticated")
	ErrForbidden        = errors.New("client: forbidden")
)

type Client struct {
	baseURL string
	http    *http.Client

	mu       sync.RWMutex
	identity *Identity
}

// New builds a client for the given server base URL. The client carries its
// own cookie jar so the session cookie survives across calls.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

// Login authenticates and caches the returned identity. Any previously
// cached identity is discarded first so a failed login never leaves stale
// claims behind.
func (c *Client) Login(ctx context.Context, username, password string) (*Identity, error) {
	c.setIdentity(nil)

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := c.do(ctx, http.MethodPost, "/api/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrNotAuthenticated
	default:
		return nil, serverError(resp)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("client: decoding login response: %w", err)
	}
	c.setIdentity(&id)
	return &id, nil
}

// Logout ends the server session and clears the cache. The cache is cleared
// even when the request fails. Safe to call when not signed in.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/logout", nil)
	c.setIdentity(nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchUser asks the server who the session belongs to and refreshes the
// cache from the answer. Callers use this on startup to restore state from
// a surviving cookie.
func (c *Client) FetchUser(ctx context.Context) (*Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/user", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.setIdentity(nil)
		return nil, ErrNotAuthenticated
	default:
		return nil, serverError(resp)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("client: decoding user response: %w", err)
	}
	c.setIdentity(&id)
	return &id, nil
}

// RestoreIdentity seeds the cache from a previously serialized identity,
// for callers that persist it between runs. Corrupt input leaves the client
// signed out rather than failing.
func (c *Client) RestoreIdentity(raw []byte) {
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil || id.Username == "" {
		c.setIdentity(nil)
		return
	}
	c.setIdentity(&id)
}

// CookieJar exposes the jar holding the session cookie, for callers that
// need to share the session with another HTTP client.
func (c *Client) CookieJar() http.CookieJar {
	return c.http.Jar
}

// Identity returns a copy of the cached identity, or nil when signed out.
func (c *Client) Identity() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// IsAuthenticated reports whether an identity is cached.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity != nil
}

// HasRole reports whether the cached identity meets the required role.
// Signed out, or holding an unrecognized role, always answers false.
func (c *Client) HasRole(required string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return false
	}
	return roles.HasRole(c.identity.Role, required)
}

// Can reports whether the cached identity holds the permission.
func (c *Client) Can(p roles.Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return false
	}
	return roles.Can(c.identity.Role, p)
}

func (c *Client) setIdentity(id *Identity) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func serverError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrNotAuthenticated
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, body.Error)
	}
	return fmt.Errorf("client: server returned %d: %s", resp.StatusCode, body.Error)
}

// Guard decides whether a UI section should render for the current
// identity. At least one of Role and Permission must be set; when both are,
// both must pass.
type Guard struct {
	Role       string
	Permission roles.Permission
	Fallback   string
}

// Decision is what a guard resolves to. Message is only meaningful when
// Allowed is false.
type Decision struct {
	Allowed bool
	Message string
}

// Check evaluates the guard against the client's cached identity.
func (g Guard) Check(c *Client) Decision {
	allowed := true
	if g.Role != "" {
		allowed = allowed && c.HasRole(g.Role)
	}
	if g.Permission != "" {
		allowed = allowed && c.Can(g.Permission)
	}
	if allowed {
		return Decision{Allowed: true}
	}
	msg := g.Fallback
	if msg == "" {
		msg = g.defaultMessage()
	}
	return Decision{Allowed: false, Message: msg}
}

func (g Guard) defaultMessage() string {
	required := g.Role
	if required == "" && g.Permission != "" {
		required = roles.MinRole(g.Permission)
	}
	if required == "" {
		return "access restricted"
	}
	return fmt.Sprintf("access restricted: requires %s role", required)
}

// AdminListUsers fetches the user directory. The server enforces the admin
// requirement regardless of the cached role.
func (c *Client) AdminListUsers(ctx context.Context) ([]Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/admin/users", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var body struct {
		Users []Identity `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("client: decoding user list: %w", err)
	}
	return body.Users, nil
}

// AdminSetRole changes a user's role. The change applies to the target's
// next login.
func (c *Client) AdminSetRole(ctx context.Context, userID, role string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"role": role})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/admin/users/"+url.PathEscape(userID)+"/role", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: updating role: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var updated Identity
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("client: decoding updated user: %w", err)
	}
	return &updated, nil
}
