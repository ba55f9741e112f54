// Package cubic is a thin client for the LK Systems CubicSecure cloud
// API: login and token refresh, user structure lookups, device
// measurement retrieval and valve control.
package cubic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// expirySkew is the margin applied when checking access-token expiry,
// so a token about to lapse mid-request is refreshed ahead of time.
// It also absorbs clock drift between client and server.
const expirySkew = 60 * time.Second

// Session is an authenticated HTTP session against the LK Systems
// CubicSecure cloud API. It owns the token pair and transparently
// refreshes the access token around every outbound call, so the
// resource clients built on top of it stay free of auth concerns.
//
// A Session is safe for concurrent use. Concurrent callers that both
// observe an expired token share a single refresh.
type Session struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu                 sync.Mutex
	accessToken        string
	refreshToken       string
	accessTokenExpire  int64 // epoch seconds
	refreshTokenExpire int64
	closed             bool

	refreshGroup singleflight.Group

	now func() time.Time
}

// NewSession creates a session against the given API origin, e.g.
// "https://link2.lk.nu". If httpClient is nil a private default is
// used; if logger is nil logging is discarded. The session holds no
// tokens until Login succeeds.
func NewSession(baseURL string, httpClient *http.Client, logger *slog.Logger) *Session {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Login authenticates with email and password and stores the returned
// token pair. A non-200 response is returned as *AuthError.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	opts := &RequestOptions{Body: credentials{Email: email, Password: password}}
	status, body, err := s.do(ctx, http.MethodPost, "auth/auth/login", opts, "")
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	if status != http.StatusOK {
		return &AuthError{Op: "login", StatusCode: status, Body: string(body)}
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}

	s.storeTokens(tokens)
	s.logger.Debug("logged in", slog.Int64("access_token_expire", tokens.AccessTokenExpire))

	return nil
}

// IsAccessTokenExpired reports whether the stored access token is
// expired or within the safety margin of expiring. A session with no
// stored token counts as expired.
func (s *Session) IsAccessTokenExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accessTokenExpiredLocked()
}

func (s *Session) accessTokenExpiredLocked() bool {
	if s.accessTokenExpire == 0 {
		return true
	}

	return s.now().Add(expirySkew).Unix() > s.accessTokenExpire
}

// IsCurrentTokenValid asks the server whether the stored access token
// is still accepted. Any non-200 status is reported as invalid, not as
// an error; transport failures are errors.
func (s *Session) IsCurrentTokenValid(ctx context.Context) (bool, error) {
	s.mu.Lock()
	token := s.accessToken
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return false, ErrSessionClosed
	}

	if token == "" {
		return false, nil
	}

	status, _, err := s.do(ctx, http.MethodGet, "auth/validate/token", nil, token)
	if err != nil {
		return false, fmt.Errorf("validating token: %w", err)
	}

	return status == http.StatusOK, nil
}

// RefreshToken exchanges the stored refresh token for a new token
// pair. It fails with ErrNotLoggedIn when no refresh token is stored,
// without touching the network. Concurrent refreshes are deduplicated:
// callers arriving while a refresh is in flight share its result.
func (s *Session) RefreshToken(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})

	return err
}

func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	accessToken := s.accessToken
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNotLoggedIn
	}

	opts := &RequestOptions{Body: refreshRequest{RefreshToken: refreshToken}}
	status, body, err := s.do(ctx, http.MethodPost, "auth/auth/refresh", opts, accessToken)
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}

	if status != http.StatusOK {
		return &AuthError{Op: "refresh", StatusCode: status, Body: string(body)}
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}

	s.storeTokens(tokens)
	s.logger.Debug("refreshed token", slog.Int64("access_token_expire", tokens.AccessTokenExpire))

	return nil
}

// ensureValidToken refreshes the token pair when the access token is
// locally expired. When checkServer is set it additionally probes the
// server and refreshes if the token is rejected there.
func (s *Session) ensureValidToken(ctx context.Context, checkServer bool) error {
	if s.IsAccessTokenExpired() {
		return s.RefreshToken(ctx)
	}

	if checkServer {
		valid, err := s.IsCurrentTokenValid(ctx)
		if err != nil {
			return err
		}

		if !valid {
			return s.RefreshToken(ctx)
		}
	}

	return nil
}

// Request is the authenticated entry point used by every resource
// client. It ensures the access token is valid (refreshing if
// needed), merges caller headers under a Bearer authorization header,
// issues the call and returns the response body on 200. Any other
// status is returned as *RequestError.
func (s *Session) Request(ctx context.Context, method, endpoint string, opts *RequestOptions) (json.RawMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if err := s.ensureValidToken(ctx, false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	s.logger.Debug("api request", slog.String("method", method), slog.String("endpoint", endpoint))

	status, body, err := s.do(ctx, method, endpoint, opts, token)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, &RequestError{Method: method, Endpoint: endpoint, StatusCode: status, Body: string(body)}
	}

	return json.RawMessage(body), nil
}

// UserID looks up the id of the authenticated user.
func (s *Session) UserID(ctx context.Context) (string, error) {
	body, err := s.Request(ctx, http.MethodGet, "auth/auth/user", nil)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "userId")
	if !id.Exists() || id.String() == "" {
		return "", fmt.Errorf("user lookup response has no userId")
	}

	return id.String(), nil
}

// AccessTokenExpire returns the expiry time of the stored access
// token, or the zero time when no token is stored.
func (s *Session) AccessTokenExpire() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessTokenExpire == 0 {
		return time.Time{}
	}

	return time.Unix(s.accessTokenExpire, 0)
}

// Close releases the session's idle HTTP connections. It is
// idempotent; any call after Close fails with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.httpClient.CloseIdleConnections()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	return nil
}

func (s *Session) storeTokens(tokens tokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.accessTokenExpire = tokens.AccessTokenExpire
	s.refreshTokenExpire = tokens.RefreshTokenExpire
}

// do issues a single HTTP call and returns the status and body. The
// bearer token, when non-empty, overrides any caller-supplied
// Authorization header.
func (s *Session) do(ctx context.Context, method, endpoint string, opts *RequestOptions, bearer string) (int, []byte, error) {
	var reader io.Reader
	if opts != nil && opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	url := s.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		if len(opts.Query) > 0 {
			req.URL.RawQuery = opts.Query.Encode()
		}

		if opts.Body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	return resp.StatusCode, body, nil
}
