package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
)

// Identity is the non-secret projection returned by a successful credential
// check. AccessToken is upstream token material and must never reach clients.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token,omitempty"`
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrServiceUnavailable means the identity collaborator could not be reached
// or misbehaved. Callers map it to a generic upstream failure; no partial
// session state may exist when it is returned.
var ErrServiceUnavailable = errors.New("identity service unavailable")

type Verifier interface {
	Verify(ctx context.Context, username, password string) (*Identity, error)
}

// RemoteVerifier forwards credentials to the external geospatial-analysis
// service, which owns authentication.
type RemoteVerifier struct {
	endpoint   string
	httpClient *http.Client
}

func NewRemoteVerifier(baseURL, identityPath string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		endpoint:   strings.TrimRight(baseURL, "/") + identityPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, username, password string) (*Identity, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if id.ID == "" || id.Username == "" {
		return nil, fmt.Errorf("%w: incomplete identity", ErrServiceUnavailable)
	}
	return &id, nil
}

// LocalVerifier authenticates against seeded local accounts. Development
// fallback only; main refuses to wire it in production.
type LocalVerifier struct {
	users store.UserStore
}

func NewLocalVerifier(users store.UserStore) *LocalVerifier {
	return &LocalVerifier{users: users}
}

func (v *LocalVerifier) Verify(ctx context.Context, username, password string) (*Identity, error) {
	u, err := v.users.GetUserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{ID: u.ID.String(), Username: u.UserName, Role: u.Role}, nil
}

// TokenExpiry extracts the exp claim from an upstream access token so session
// lifetime can be capped to it. The token is issued and verified by the
// collaborator; we only read its expiry, so the signature is not checked here.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
