// Package identitymock is an in-memory stand-in for the remote identity
// service, used by unit tests and by the interactive client when pointed at
// nothing. Behaviour is adjusted through functional options; call counts are
// recorded so tests can assert exactly which remote operations ran.
package identitymock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fableink/credential-manager/internal/identity"
)

type account struct {
	user     identity.User
	password string
}

type ServiceOption func(*Service)

type Service struct {
	mu sync.Mutex

	accounts map[string]*account // keyed by email
	codes    map[string]string   // keyed by email+purpose
	tokens   map[string]string   // access token -> email
	session  *identity.Session

	subscribers map[int]func(identity.Event)
	nextSubID   int

	issuedCode      string
	sessionDuration time.Duration

	requestCodeErr, verifyCodeErr, createAccountErr error
	authenticateErr, resetErr, updatePasswordErr    error
	signOutErr, currentSessionErr                   error

	Calls CallCounts
}

// CallCounts records how many times each remote operation was invoked.
type CallCounts struct {
	RequestOneTimeCode   int
	VerifyOneTimeCode    int
	CreateAccount        int
	Authenticate         int
	RequestPasswordReset int
	UpdatePassword       int
	SignOut              int
	CurrentSession       int
}

func WithAccount(email, password string, metadata map[string]string) ServiceOption {
	return func(s *Service) {
		s.accounts[email] = &account{
			user: identity.User{
				ID:       uuid.NewString(),
				Email:    email,
				Metadata: metadata,
			},
			password: password,
		}
	}
}

func WithIssuedCode(code string) ServiceOption {
	return func(s *Service) { s.issuedCode = code }
}

func WithSession(session identity.Session) ServiceOption {
	return func(s *Service) {
		s.session = &session
		s.tokens[session.AccessToken] = session.User.Email
	}
}

func WithRequestCodeError(err error) ServiceOption {
	return func(s *Service) { s.requestCodeErr = err }
}

func WithVerifyCodeError(err error) ServiceOption {
	return func(s *Service) { s.verifyCodeErr = err }
}

func WithCreateAccountError(err error) ServiceOption {
	return func(s *Service) { s.createAccountErr = err }
}

func WithAuthenticateError(err error) ServiceOption {
	return func(s *Service) { s.authenticateErr = err }
}

func WithResetError(err error) ServiceOption {
	return func(s *Service) { s.resetErr = err }
}

func WithUpdatePasswordError(err error) ServiceOption {
	return func(s *Service) { s.updatePasswordErr = err }
}

func WithSignOutError(err error) ServiceOption {
	return func(s *Service) { s.signOutErr = err }
}

func WithCurrentSessionError(err error) ServiceOption {
	return func(s *Service) { s.currentSessionErr = err }
}

var _ identity.Service = (*Service)(nil)

func NewInMemService(opts ...ServiceOption) *Service {
	s := &Service{
		accounts:        make(map[string]*account),
		codes:           make(map[string]string),
		tokens:          make(map[string]string),
		subscribers:     make(map[int]func(identity.Event)),
		issuedCode:      "123456",
		sessionDuration: time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *Service) RequestOneTimeCode(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.RequestOneTimeCode++
	if s.requestCodeErr != nil {
		return s.requestCodeErr
	}

	s.codes[email+":"+string(identity.PurposeSignUp)] = s.issuedCode

	return nil
}

func (s *Service) VerifyOneTimeCode(_ context.Context, email, code string, purpose identity.Purpose) (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.VerifyOneTimeCode++
	if s.verifyCodeErr != nil {
		return nil, s.verifyCodeErr
	}

	want, ok := s.codes[email+":"+string(purpose)]
	if !ok || want != code {
		return nil, &identity.Error{StatusCode: http.StatusForbidden, Message: "Token has expired or is invalid"}
	}
	delete(s.codes, email+":"+string(purpose))

	if purpose == identity.PurposeRecovery {
		if acc, ok := s.accounts[email]; ok {
			session := s.establishSessionLocked(acc)

			return &session, nil
		}
	}

	return nil, nil
}

func (s *Service) CreateAccount(_ context.Context, email, password string, metadata map[string]string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.CreateAccount++
	if s.createAccountErr != nil {
		return identity.User{}, s.createAccountErr
	}

	if _, ok := s.accounts[email]; ok {
		return identity.User{}, &identity.Error{StatusCode: http.StatusUnprocessableEntity, Message: "User already registered"}
	}

	acc := &account{
		user: identity.User{
			ID:       uuid.NewString(),
			Email:    email,
			Metadata: metadata,
		},
		password: password,
	}
	s.accounts[email] = acc
	s.establishSessionLocked(acc)

	return acc.user, nil
}

func (s *Service) Authenticate(_ context.Context, email, password string) (identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.Authenticate++
	if s.authenticateErr != nil {
		return identity.Session{}, s.authenticateErr
	}

	acc, ok := s.accounts[email]
	if !ok || acc.password != password {
		return identity.Session{}, &identity.Error{StatusCode: http.StatusBadRequest, Message: identity.MsgInvalidCredentials}
	}

	return s.establishSessionLocked(acc), nil
}

func (s *Service) RequestPasswordReset(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.RequestPasswordReset++
	if s.resetErr != nil {
		return s.resetErr
	}

	s.codes[email+":"+string(identity.PurposeRecovery)] = s.issuedCode

	return nil
}

func (s *Service) UpdatePassword(_ context.Context, session identity.Session, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.UpdatePassword++
	if s.updatePasswordErr != nil {
		return s.updatePasswordErr
	}

	email, ok := s.tokens[session.AccessToken]
	if session.AccessToken == "" || !ok {
		return &identity.Error{StatusCode: http.StatusUnauthorized, Message: "Auth session missing"}
	}

	if acc, ok := s.accounts[email]; ok {
		acc.password = newPassword
	}

	if s.session != nil && s.session.AccessToken == session.AccessToken {
		s.notifyLocked(identity.Event{Type: identity.EventUserUpdated, Session: s.session})
	}

	return nil
}

func (s *Service) SignOut(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.SignOut++
	if s.signOutErr != nil {
		return s.signOutErr
	}

	if s.session == nil {
		return nil
	}

	s.session = nil
	s.notifyLocked(identity.Event{Type: identity.EventSignedOut, Session: nil})

	return nil
}

func (s *Service) CurrentSession(_ context.Context) (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls.CurrentSession++
	if s.currentSessionErr != nil {
		return nil, s.currentSessionErr
	}

	if s.session == nil {
		return nil, nil
	}
	session := *s.session

	return &session, nil
}

func (s *Service) Subscribe(fn func(identity.Event)) identity.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subscribers, id)
	}
}

// EmitSignedOut simulates a service-initiated invalidation, e.g. another
// browsing context revoking the session.
func (s *Service) EmitSignedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	s.notifyLocked(identity.Event{Type: identity.EventSignedOut, Session: nil})
}

func (s *Service) establishSessionLocked(acc *account) identity.Session {
	session := identity.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		Expiry:       time.Now().Add(s.sessionDuration),
		User:         acc.user,
	}
	s.tokens[session.AccessToken] = acc.user.Email
	s.session = &session
	s.notifyLocked(identity.Event{Type: identity.EventSignedIn, Session: &session})

	return session
}

func (s *Service) notifyLocked(event identity.Event) {
	fns := make([]func(identity.Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}

	// listeners run synchronously under the service lock; they must not
	// call back into the service
	for _, fn := range fns {
		fn(event)
	}
}
