// Package httpapi implements the identity.Service contract against a
// GoTrue-style REST identity provider (the kind of hosted API Supabase
// exposes). The client also owns the local session cache and the
// session-change event fan-out: listeners are notified synchronously from
// whichever call changed the session.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/fableink/credential-manager/internal/identity"
)

// signing algorithms the identity service is known to issue tokens with
var tokenSigAlgs = []jose.SignatureAlgorithm{jose.HS256, jose.RS256, jose.ES256}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.Mutex
	session     *identity.Session
	subscribers map[int]func(identity.Event)
	nextSubID   int
}

var _ identity.Service = (*Client)(nil)

// NewClient builds a client for the identity service at baseURL. Every
// request carries the API key; httpClient may bring its own transport
// (mTLS, proxies) and is never nil after this call.
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing identity service URL: %w", err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	httpClient = &http.Client{
		Transport: &apiKeyRoundTripper{
			apiKey: apiKey,
			next:   transportOrDefault(httpClient),
		},
		Timeout: httpClient.Timeout,
	}

	return &Client{
		baseURL:     u,
		httpClient:  httpClient,
		subscribers: make(map[int]func(identity.Event)),
	}, nil
}

func transportOrDefault(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}

	return http.DefaultTransport
}

type apiKeyRoundTripper struct {
	apiKey string
	next   http.RoundTripper
}

func (t *apiKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("apikey", t.apiKey)

	return t.next.RoundTrip(req)
}

func (c *Client) RequestOneTimeCode(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": true}
	if err := c.call(ctx, http.MethodPost, "/otp", body, "", nil); err != nil {
		return err
	}

	return nil
}

func (c *Client) VerifyOneTimeCode(ctx context.Context, email, code string, purpose identity.Purpose) (*identity.Session, error) {
	body := map[string]any{
		"type":  verifyType(purpose),
		"email": email,
		"token": code,
	}

	var resp tokenResponse
	if err := c.call(ctx, http.MethodPost, "/verify", body, "", &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, nil
	}

	// A successful recovery verification establishes a session. It is
	// returned to the caller so the follow-up password update runs under
	// exactly this session, not whatever the cache holds by then.
	session, err := resp.toSession()
	if err != nil {
		return nil, fmt.Errorf("reading verification session: %w", err)
	}

	c.setSession(&session, identity.EventSignedIn)

	return &session, nil
}

func verifyType(purpose identity.Purpose) string {
	if purpose == identity.PurposeRecovery {
		return "recovery"
	}

	return "signup"
}

func (c *Client) CreateAccount(ctx context.Context, email, password string, metadata map[string]string) (identity.User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}

	var resp tokenResponse
	if err := c.call(ctx, http.MethodPost, "/signup", body, "", &resp); err != nil {
		return identity.User{}, err
	}

	if resp.AccessToken != "" {
		session, err := resp.toSession()
		if err != nil {
			return identity.User{}, fmt.Errorf("reading signup session: %w", err)
		}

		c.setSession(&session, identity.EventSignedIn)
	}

	return resp.User, nil
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (identity.Session, error) {
	body := map[string]any{"email": email, "password": password}

	var resp tokenResponse
	if err := c.call(ctx, http.MethodPost, "/token", body, "", &resp, withQuery("grant_type", "password")); err != nil {
		return identity.Session{}, err
	}

	session, err := resp.toSession()
	if err != nil {
		return identity.Session{}, fmt.Errorf("reading session: %w", err)
	}

	c.setSession(&session, identity.EventSignedIn)

	return session, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/recover", map[string]any{"email": email}, "", nil)
}

func (c *Client) UpdatePassword(ctx context.Context, session identity.Session, newPassword string) error {
	if session.AccessToken == "" {
		return &identity.Error{StatusCode: http.StatusUnauthorized, Message: "Auth session missing"}
	}

	var user identity.User
	if err := c.call(ctx, http.MethodPut, "/user", map[string]any{"password": newPassword}, session.AccessToken, &user); err != nil {
		return err
	}

	// The cached session is touched only when it is the one the update ran
	// under; an update on behalf of another caller's session must not leak
	// into it.
	c.mu.Lock()
	var updated *identity.Session
	if c.session != nil && c.session.AccessToken == session.AccessToken {
		c.session.User = user
		updated = c.session
	}
	subscribers := c.snapshotSubscribersLocked()
	c.mu.Unlock()

	if updated != nil {
		notify(subscribers, identity.Event{Type: identity.EventUserUpdated, Session: updated})
	}

	return nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	// already signed out: revoking nothing succeeds
	if session == nil {
		return nil
	}

	if err := c.call(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil); err != nil {
		return err
	}

	c.setSession(nil, identity.EventSignedOut)

	return nil
}

func (c *Client) CurrentSession(_ context.Context) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, nil
	}

	session := *c.session

	return &session, nil
}

func (c *Client) Subscribe(fn func(identity.Event)) identity.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subscribers, id)
	}
}

func (c *Client) setSession(session *identity.Session, event identity.EventType) {
	c.mu.Lock()
	c.session = session
	subscribers := c.snapshotSubscribersLocked()
	c.mu.Unlock()

	notify(subscribers, identity.Event{Type: event, Session: session})
}

func (c *Client) snapshotSubscribersLocked() []func(identity.Event) {
	fns := make([]func(identity.Event), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}

	return fns
}

func notify(fns []func(identity.Event), event identity.Event) {
	for _, fn := range fns {
		fn(event)
	}
}

// tokenResponse is the shape the identity service answers auth-establishing
// calls with.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	User         identity.User `json:"user"`
}

func (r tokenResponse) toSession() (identity.Session, error) {
	session := identity.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}

	switch {
	case r.ExpiresIn > 0:
		session.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	default:
		expiry, err := accessTokenExpiry(r.AccessToken)
		if err != nil {
			return identity.Session{}, err
		}

		session.Expiry = expiry
	}

	return session, nil
}

// accessTokenExpiry reads the exp claim from the access token. The token is
// not verified here; the service is the authority on its own tokens and
// rejects forged ones on every call.
func accessTokenExpiry(raw string) (time.Time, error) {
	token, err := jwt.ParseSigned(raw, tokenSigAlgs)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing access token: %w", err)
	}

	var claims jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}, fmt.Errorf("reading access token claims: %w", err)
	}

	if claims.Expiry == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry claim")
	}

	return claims.Expiry.Time(), nil
}

type callOption func(*url.URL)

func withQuery(key, value string) callOption {
	return func(u *url.URL) {
		q := u.Query()
		q.Set(key, value)
		u.RawQuery = q.Encode()
	}
}

func (c *Client) call(ctx context.Context, method, path string, body any, bearer string, decodeInto any, opts ...callOption) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	joined, err := url.JoinPath(c.baseURL.String(), path)
	if err != nil {
		return fmt.Errorf("building endpoint URL: %w", err)
	}

	endpoint, err := url.Parse(joined)
	if err != nil {
		return fmt.Errorf("parsing endpoint URL: %w", err)
	}

	for _, opt := range opts {
		opt(endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseServiceError(resp)
	}

	if decodeInto == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(decodeInto); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// parseServiceError extracts the service's own error message so it can be
// surfaced to the user verbatim.
func parseServiceError(resp *http.Response) error {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error"`
	}

	svcErr := &identity.Error{StatusCode: resp.StatusCode}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		svcErr.Message = resp.Status

		return svcErr
	}

	switch {
	case payload.Msg != "":
		svcErr.Message = payload.Msg
	case payload.Message != "":
		svcErr.Message = payload.Message
	case payload.ErrorDescription != "":
		svcErr.Message = payload.ErrorDescription
	case payload.ErrorCode != "":
		svcErr.Message = payload.ErrorCode
	default:
		svcErr.Message = resp.Status
	}

	return svcErr
}
