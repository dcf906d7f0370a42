package client_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JoelGonzalez08/TerraWeb/internal/config"
	"github.com/JoelGonzalez08/TerraWeb/internal/identity"
	"github.com/JoelGonzalez08/TerraWeb/internal/live"
	"github.com/JoelGonzalez08/TerraWeb/internal/router"
	"github.com/JoelGonzalez08/TerraWeb/internal/session"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/client"
	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	st, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.SeedDefaultUsers(t.Context(), st, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := &config.Config{
		Environment:    "development",
		SessionCookie:  "terraweb_session",
		SessionTTL:     time.Hour,
		AllowedOrigins: []string{"*"},
	}
	srv := httptest.NewServer(router.New(router.Deps{
		Cfg:      cfg,
		Sessions: session.NewStore(redisClient, cfg.SessionTTL),
		Store:    st,
		Verifier: identity.NewLocalVerifier(st),
		Redis:    redisClient,
		Hub:      live.NewHub(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestLoginCachesIdentity(t *testing.T) {
	srv := newTestServer(t)
	c := mustClient(t, srv)

	id, err := c.Login(t.Context(), "technician", "tech123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Role != roles.Technician || id.Username != "technician" {
		t.Errorf("identity = %+v", id)
	}
	if !c.IsAuthenticated() {
		t.Error("client not authenticated after login")
	}

	// Wrong password fails and leaves the cache signed out.
	_, err = c.Login(t.Context(), "technician", "nope")
	if !errors.Is(err, client.ErrNotAuthenticated) {
		t.Errorf("wrong password error = %v", err)
	}
	if c.IsAuthenticated() {
		t.Error("cache kept identity after failed login")
	}
}

func TestFetchUserRestoresSessionFromCookie(t *testing.T) {
	srv := newTestServer(t)
	c := mustClient(t, srv)

	if _, err := c.Login(t.Context(), "user1", "user123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// A fresh in-memory cache, same cookie jar: FetchUser rehydrates it.
	c.RestoreIdentity(nil)
	if c.IsAuthenticated() {
		t.Fatal("restore of garbage should sign out")
	}
	id, err := c.FetchUser(t.Context())
	if err != nil {
		t.Fatalf("fetch user: %v", err)
	}
	if id.Username != "user1" {
		t.Errorf("restored identity = %+v", id)
	}
}

func TestLogoutClearsCacheAndSession(t *testing.T) {
	srv := newTestServer(t)
	c := mustClient(t, srv)

	if _, err := c.Login(t.Context(), "user1", "user123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := c.Logout(t.Context()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.IsAuthenticated() {
		t.Error("cache survived logout")
	}
	if _, err := c.FetchUser(t.Context()); !errors.Is(err, client.ErrNotAuthenticated) {
		t.Errorf("server session survived logout: %v", err)
	}
	// Second logout is a no-op.
	if err := c.Logout(t.Context()); err != nil {
		t.Errorf("repeated logout: %v", err)
	}
}

func TestLogoutClearsCacheWhenServerUnreachable(t *testing.T) {
	c, err := client.New("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	c.RestoreIdentity([]byte(`{"id":"1","username":"admin","role":"admin"}`))
	if !c.IsAuthenticated() {
		t.Fatal("identity not restored")
	}

	if err := c.Logout(t.Context()); err == nil {
		t.Error("logout against unreachable server should report the error")
	}
	if c.IsAuthenticated() {
		t.Error("cache kept identity after failed logout")
	}
}

func TestRestoreIdentityToleratesCorruptInput(t *testing.T) {
	c, err := client.New("http://127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range [][]byte{nil, []byte("{"), []byte(`{"role":"admin"}`), []byte("junk")} {
		c.RestoreIdentity(raw)
		if c.IsAuthenticated() {
			t.Errorf("corrupt input %q restored an identity", raw)
		}
	}
	c.RestoreIdentity([]byte(`{"id":"1","username":"admin","role":"admin"}`))
	if !c.HasRole(roles.Admin) {
		t.Error("valid serialized identity not restored")
	}
}

// The client-side predicates must agree with the server's enforcement for
// every account: the UI gating is a preview of the same decision the server
// makes, never a different one.
func TestClientPredicatesAgreeWithServer(t *testing.T) {
	srv := newTestServer(t)

	// Routes that exercise each permission. A 403 means denied; anything
	// else (200, 400, 502) means the role gate passed.
	probes := map[roles.Permission]struct {
		method string
		path   string
	}{
		roles.PermissionUserManagement: {http.MethodGet, "/api/admin/users"},
		roles.PermissionDataExport:     {http.MethodGet, "/api/export/measurements"},
		roles.PermissionAnalytics:      {http.MethodPost, "/api/compute"},
	}

	accounts := map[string]string{
		"user1":      "user123",
		"technician": "tech123",
		"admin":      "admin123",
	}

	for username, password := range accounts {
		c := mustClient(t, srv)
		if _, err := c.Login(t.Context(), username, password); err != nil {
			t.Fatalf("login %s: %v", username, err)
		}
		for perm, probe := range probes {
			t.Run(fmt.Sprintf("%s/%s", username, perm), func(t *testing.T) {
				req, _ := http.NewRequest(probe.method, srv.URL+probe.path, nil)
				httpClient := &http.Client{Jar: cookieJarOf(t, c, srv)}
				resp, err := httpClient.Do(req)
				if err != nil {
					t.Fatalf("probe: %v", err)
				}
				resp.Body.Close()

				serverAllows := resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusUnauthorized
				if got := c.Can(perm); got != serverAllows {
					t.Errorf("client.Can(%s) = %v, server said %d", perm, got, resp.StatusCode)
				}
			})
		}
	}
}

// cookieJarOf borrows the client's session cookie for raw probes.
func cookieJarOf(t *testing.T, c *client.Client, srv *httptest.Server) http.CookieJar {
	t.Helper()
	jar := c.CookieJar()
	if jar == nil {
		t.Fatal("client has no cookie jar")
	}
	return jar
}

func TestGuardMessages(t *testing.T) {
	srv := newTestServer(t)
	c := mustClient(t, srv)
	if _, err := c.Login(t.Context(), "user1", "user123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	d := client.Guard{Permission: roles.PermissionUserManagement}.Check(c)
	if d.Allowed {
		t.Error("user passed an admin guard")
	}
	if d.Message != "access restricted: requires admin role" {
		t.Errorf("default message = %q", d.Message)
	}

	d = client.Guard{Role: roles.Technician, Fallback: "ask an operator"}.Check(c)
	if d.Allowed || d.Message != "ask an operator" {
		t.Errorf("fallback guard = %+v", d)
	}

	d = client.Guard{Role: roles.User}.Check(c)
	if !d.Allowed || d.Message != "" {
		t.Errorf("allowed guard = %+v", d)
	}
}
