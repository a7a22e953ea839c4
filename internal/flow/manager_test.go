package flow_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableink/credential-manager/internal/config"
	"github.com/fableink/credential-manager/internal/flow"
	flowmock "github.com/fableink/credential-manager/internal/flow/mock"
	"github.com/fableink/credential-manager/internal/identity"
	identitymock "github.com/fableink/credential-manager/internal/identity/mock"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

type bootstrapCall struct {
	identityID, username, displayName string
}

type recordingBootstrapper struct {
	mu    sync.Mutex
	calls []bootstrapCall
	err   error
}

func (b *recordingBootstrapper) Bootstrap(_ context.Context, identityID, username, displayName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, bootstrapCall{identityID, username, displayName})

	return b.err
}

func newManager(t *testing.T, svc identity.Service, repo flow.Repository, profiles flow.ProfileBootstrapper) *flow.Manager {
	t.Helper()

	cfg := config.DefaultFlows()

	return flow.NewManager(&cfg, svc, repo, profiles)
}

func TestManager_SignUpHappyPath(t *testing.T) {
	svc := identitymock.NewInMemService(identitymock.WithIssuedCode("123456"))
	repo := flowmock.NewInMemRepository()
	profiles := &recordingBootstrapper{}
	m := newManager(t, svc, repo, profiles)

	f, err := m.Begin(t.Context(), flow.KindSignUp)
	require.NoError(t, err)
	assert.Equal(t, flow.StepEmail, f.Step)
	assert.NotEmpty(t, f.ID)

	f, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, flow.StepCodeVerification, f.Step)
	assert.Equal(t, "a@b.com", f.Email)
	assert.Equal(t, 1, svc.Calls.RequestOneTimeCode)

	f, err = m.SubmitCode(t.Context(), f.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, flow.StepPasswordEntry, f.Step)
	// the code is accepted locally, the service has not seen it yet
	assert.Equal(t, 0, svc.Calls.VerifyOneTimeCode)

	f, err = m.SubmitPassword(t.Context(), f.ID, "secret1", "secret1")
	require.NoError(t, err)
	assert.Equal(t, flow.StepProfileDetails, f.Step)

	f, result, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, flow.StepComplete, f.Step)
	assert.Empty(t, f.Code)
	assert.Equal(t, "a@b.com", result.User.Email)
	assert.NoError(t, result.ProfileWarning)

	assert.Equal(t, 1, svc.Calls.VerifyOneTimeCode)
	assert.Equal(t, 1, svc.Calls.CreateAccount, "account must be created exactly once")

	require.Len(t, profiles.calls, 1)
	assert.Equal(t, result.User.ID, profiles.calls[0].identityID)
	assert.Equal(t, "writer1", profiles.calls[0].username)
	assert.Equal(t, "Writer One", profiles.calls[0].displayName)

	// the metadata travels with account creation
	assert.Equal(t, "writer1", result.User.Metadata["username"])
	assert.Equal(t, "Writer One", result.User.Metadata["display_name"])
}

func TestManager_SubmitEmailValidation(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantMsg string
	}{
		{name: "Empty", email: "", wantMsg: "Email is required"},
		{name: "No at sign", email: "reader.example.com", wantMsg: "Enter a valid email address"},
		{name: "At sign first", email: "@example.com", wantMsg: "Enter a valid email address"},
		{name: "At sign last", email: "reader@", wantMsg: "Enter a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := identitymock.NewInMemService()
			m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

			f, err := m.Begin(t.Context(), flow.KindSignUp)
			require.NoError(t, err)

			_, err = m.SubmitEmail(t.Context(), f.ID, tt.email)
			require.Error(t, err)
			assert.True(t, flow.IsValidation(err))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, 0, svc.Calls.RequestOneTimeCode, "no remote call on invalid input")

			got, err := m.Get(t.Context(), f.ID)
			require.NoError(t, err)
			assert.Equal(t, flow.StepEmail, got.Step, "flow must not advance")
		})
	}
}

func TestManager_SubmitCodeValidation(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "Too short", code: "123"},
		{name: "Too long", code: "1234567"},
		{name: "Not digits", code: "12a456"},
		{name: "Empty", code: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := identitymock.NewInMemService()
			m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

			f := beginAtCode(t, m, flow.KindSignUp)

			_, err := m.SubmitCode(t.Context(), f.ID, tt.code)
			require.Error(t, err)
			assert.True(t, flow.IsValidation(err))
			assert.Equal(t, "Code must be 6 digits", err.Error())

			got, err := m.Get(t.Context(), f.ID)
			require.NoError(t, err)
			assert.Equal(t, flow.StepCodeVerification, got.Step)
		})
	}
}

func TestManager_SubmitPasswordValidation(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantMsg  string
	}{
		{name: "Too short", password: "abc", confirm: "abc", wantMsg: "Password must be at least 6 characters"},
		{name: "Mismatch", password: "secret1", confirm: "secret2", wantMsg: "Passwords do not match"},
		{name: "Short and mismatched reports length first", password: "abc", confirm: "abcdef", wantMsg: "Password must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := identitymock.NewInMemService()
			m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

			f := beginAtPassword(t, m, flow.KindSignUp)

			_, err := m.SubmitPassword(t.Context(), f.ID, tt.password, tt.confirm)
			require.Error(t, err)
			assert.True(t, flow.IsValidation(err))
			assert.Equal(t, tt.wantMsg, err.Error())

			got, err := m.Get(t.Context(), f.ID)
			require.NoError(t, err)
			assert.Equal(t, flow.StepPasswordEntry, got.Step, "flow must stay at the password step")
			assert.Equal(t, 0, svc.Calls.CreateAccount)
		})
	}
}

func TestManager_StepOrder(t *testing.T) {
	completeReq := flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}

	t.Run("Code before email", func(t *testing.T) {
		m := newManager(t, identitymock.NewInMemService(), flowmock.NewInMemRepository(), nil)

		f, err := m.Begin(t.Context(), flow.KindSignUp)
		require.NoError(t, err)

		_, err = m.SubmitCode(t.Context(), f.ID, "123456")
		assert.ErrorIs(t, err, flow.ErrWrongStep)
	})

	t.Run("Password before code", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		f, err := m.Begin(t.Context(), flow.KindSignUp)
		require.NoError(t, err)

		f, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
		require.NoError(t, err)

		_, err = m.SubmitPassword(t.Context(), f.ID, "secret1", "secret1")
		assert.ErrorIs(t, err, flow.ErrWrongStep)

		got, err := m.Get(t.Context(), f.ID)
		require.NoError(t, err)
		assert.Equal(t, flow.StepCodeVerification, got.Step)
	})

	t.Run("Complete before profile details", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		f := beginAtPassword(t, m, flow.KindSignUp)

		_, _, err := m.CompleteSignUp(t.Context(), f.ID, completeReq)
		assert.ErrorIs(t, err, flow.ErrWrongStep)
		assert.Equal(t, 0, svc.Calls.CreateAccount)
	})

	t.Run("Password step rejects reset flows", func(t *testing.T) {
		m := newManager(t, identitymock.NewInMemService(), flowmock.NewInMemRepository(), nil)

		f := beginAtPassword(t, m, flow.KindPasswordReset)

		_, err := m.SubmitPassword(t.Context(), f.ID, "secret1", "secret1")
		assert.ErrorIs(t, err, flow.ErrWrongStep)
	})

	t.Run("Complete sign-up rejects reset flows", func(t *testing.T) {
		m := newManager(t, identitymock.NewInMemService(), flowmock.NewInMemRepository(), nil)

		f := beginAtPassword(t, m, flow.KindPasswordReset)

		_, _, err := m.CompleteSignUp(t.Context(), f.ID, completeReq)
		assert.ErrorIs(t, err, flow.ErrWrongStep)
	})
}

func TestManager_CompleteSignUpCodeRejection(t *testing.T) {
	svc := identitymock.NewInMemService(identitymock.WithIssuedCode("123456"))
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f := beginAtProfile(t, m, "999999")

	f, _, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.Error(t, err)

	var svcErr *identity.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Token has expired or is invalid", svcErr.Message)

	assert.Equal(t, flow.StepCodeVerification, f.Step, "code rejection rolls back to the code step")
	assert.Equal(t, "a@b.com", f.Email, "email survives the rollback")
	assert.Empty(t, f.Code, "only the rejected code is cleared")
	assert.Equal(t, 0, svc.Calls.CreateAccount, "no account creation after a rejected code")
}

func TestManager_CompleteSignUpTransportFailure(t *testing.T) {
	svc := identitymock.NewInMemService(
		identitymock.WithVerifyCodeError(errors.New("dial tcp: connection refused")),
	)
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f := beginAtProfile(t, m, "123456")

	_, _, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.Error(t, err)
	assert.False(t, flow.IsValidation(err))

	got, err := m.Get(t.Context(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.StepProfileDetails, got.Step, "transport failures do not roll back")
}

func TestManager_CompleteSignUpDuplicateAccount(t *testing.T) {
	svc := identitymock.NewInMemService(
		identitymock.WithIssuedCode("123456"),
		identitymock.WithAccount("a@b.com", "other-password", nil),
	)
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f := beginAtProfile(t, m, "123456")

	_, _, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.Error(t, err)

	var svcErr *identity.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "User already registered", svcErr.Message)

	got, err := m.Get(t.Context(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.StepProfileDetails, got.Step, "creation failure keeps the flow at profile details")
}

func TestManager_CompleteSignUpProfileWarning(t *testing.T) {
	svc := identitymock.NewInMemService(identitymock.WithIssuedCode("123456"))
	profiles := &recordingBootstrapper{err: serviceerr.ErrConflict}
	m := newManager(t, svc, flowmock.NewInMemRepository(), profiles)

	f := beginAtProfile(t, m, "123456")

	f, result, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
		Username:        "writer1",
		DisplayName:     "Writer One",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.NoError(t, err, "a profile failure does not fail the sign-up")
	assert.Equal(t, flow.StepComplete, f.Step)
	assert.ErrorIs(t, result.ProfileWarning, serviceerr.ErrConflict)
	assert.Equal(t, 1, svc.Calls.CreateAccount)
}

func TestManager_PasswordResetFlow(t *testing.T) {
	svc := identitymock.NewInMemService(
		identitymock.WithIssuedCode("654321"),
		identitymock.WithAccount("a@b.com", "old-secret", nil),
	)
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f, err := m.Begin(t.Context(), flow.KindPasswordReset)
	require.NoError(t, err)

	f, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Calls.RequestPasswordReset)
	assert.Equal(t, 0, svc.Calls.RequestOneTimeCode)

	f, err = m.SubmitCode(t.Context(), f.ID, "654321")
	require.NoError(t, err)
	assert.Equal(t, flow.StepPasswordEntry, f.Step)

	f, err = m.CompleteReset(t.Context(), f.ID, "new-secret", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, flow.StepComplete, f.Step)
	assert.Equal(t, 1, svc.Calls.UpdatePassword)

	// the old password no longer authenticates, the new one does
	_, err = m.SignIn(t.Context(), "a@b.com", "old-secret")
	require.Error(t, err)

	session, err := m.SignIn(t.Context(), "a@b.com", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", session.User.Email)
}

func TestManager_CompleteResetCodeRejection(t *testing.T) {
	svc := identitymock.NewInMemService(
		identitymock.WithIssuedCode("654321"),
		identitymock.WithAccount("a@b.com", "old-secret", nil),
	)
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f, err := m.Begin(t.Context(), flow.KindPasswordReset)
	require.NoError(t, err)
	f, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
	require.NoError(t, err)
	f, err = m.SubmitCode(t.Context(), f.ID, "111111")
	require.NoError(t, err)

	f, err = m.CompleteReset(t.Context(), f.ID, "new-secret", "new-secret")
	require.Error(t, err)
	assert.Equal(t, flow.StepCodeVerification, f.Step)
	assert.Equal(t, 0, svc.Calls.UpdatePassword)
}

// holdFirstUpdateService pauses the first password update between its code
// verification and the update itself, so another flow can run to completion
// in the gap.
type holdFirstUpdateService struct {
	*identitymock.Service

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *holdFirstUpdateService) UpdatePassword(ctx context.Context, session identity.Session, newPassword string) error {
	held := false
	s.once.Do(func() { held = true })
	if held {
		close(s.entered)
		<-s.release
	}

	return s.Service.UpdatePassword(ctx, session, newPassword)
}

func TestManager_InterleavedResetsStayOnOwnAccounts(t *testing.T) {
	svc := &holdFirstUpdateService{
		Service: identitymock.NewInMemService(
			identitymock.WithIssuedCode("654321"),
			identitymock.WithAccount("alice@example.com", "alice-old", nil),
			identitymock.WithAccount("bob@example.com", "bob-old", nil),
		),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	beginReset := func(email string) flow.Flow {
		f, err := m.Begin(t.Context(), flow.KindPasswordReset)
		require.NoError(t, err)
		f, err = m.SubmitEmail(t.Context(), f.ID, email)
		require.NoError(t, err)
		f, err = m.SubmitCode(t.Context(), f.ID, "654321")
		require.NoError(t, err)

		return f
	}

	alice := beginReset("alice@example.com")
	bob := beginReset("bob@example.com")

	// Alice's reset verifies her code, then stalls before the update while
	// Bob's reset runs start to finish.
	aliceDone := make(chan error, 1)
	go func() {
		_, err := m.CompleteReset(context.Background(), alice.ID, "alice-new", "alice-new")
		aliceDone <- err
	}()

	<-svc.entered

	_, err := m.CompleteReset(t.Context(), bob.ID, "bob-new", "bob-new")
	require.NoError(t, err)

	close(svc.release)
	require.NoError(t, <-aliceDone)

	// each new password authenticates exactly its own account
	session, err := m.SignIn(t.Context(), "alice@example.com", "alice-new")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.User.Email)

	session, err = m.SignIn(t.Context(), "bob@example.com", "bob-new")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", session.User.Email)

	_, err = m.SignIn(t.Context(), "bob@example.com", "alice-new")
	require.Error(t, err)
}

func TestManager_Back(t *testing.T) {
	t.Run("Mid-flow returns to email and clears the draft", func(t *testing.T) {
		m := newManager(t, identitymock.NewInMemService(), flowmock.NewInMemRepository(), nil)

		f := beginAtPassword(t, m, flow.KindSignUp)

		f, err := m.Back(t.Context(), f.ID)
		require.NoError(t, err)
		assert.Equal(t, flow.StepEmail, f.Step)
		assert.Empty(t, f.Email)
		assert.Empty(t, f.Code)
	})

	t.Run("Completed flows cannot go back", func(t *testing.T) {
		svc := identitymock.NewInMemService(identitymock.WithIssuedCode("123456"))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		f := beginAtProfile(t, m, "123456")

		f, _, err := m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
			Username:        "writer1",
			DisplayName:     "Writer One",
			Password:        "secret1",
			ConfirmPassword: "secret1",
		})
		require.NoError(t, err)

		_, err = m.Back(t.Context(), f.ID)
		assert.ErrorIs(t, err, serviceerr.ErrFlowComplete)
	})
}

func TestManager_FlowExpiry(t *testing.T) {
	expired := flow.Flow{
		ID:        "expired-flow",
		Kind:      flow.KindSignUp,
		Step:      flow.StepCodeVerification,
		Email:     "a@b.com",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		Expiry:    time.Now().Add(-time.Hour),
	}

	repo := flowmock.NewInMemRepository(flowmock.WithFlow(expired))
	m := newManager(t, identitymock.NewInMemService(), repo, nil)

	_, err := m.SubmitCode(t.Context(), expired.ID, "123456")
	assert.ErrorIs(t, err, serviceerr.ErrFlowExpired)

	// the record is gone after the expiry was noticed
	_, err = repo.LoadFlow(t.Context(), expired.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestManager_Cancel(t *testing.T) {
	repo := flowmock.NewInMemRepository()
	m := newManager(t, identitymock.NewInMemService(), repo, nil)

	f, err := m.Begin(t.Context(), flow.KindSignUp)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(t.Context(), f.ID))

	_, err = m.Get(t.Context(), f.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestManager_BeginUnknownKind(t *testing.T) {
	m := newManager(t, identitymock.NewInMemService(), flowmock.NewInMemRepository(), nil)

	_, err := m.Begin(t.Context(), flow.Kind("mfa_enroll"))
	require.Error(t, err)
	assert.True(t, flow.IsValidation(err))
}

// blockingService delays RequestOneTimeCode until released, so a test can
// hold a step submission in flight.
type blockingService struct {
	*identitymock.Service

	entered  chan struct{}
	released chan struct{}
}

func (s *blockingService) RequestOneTimeCode(ctx context.Context, email string) error {
	close(s.entered)
	<-s.released

	return s.Service.RequestOneTimeCode(ctx, email)
}

func TestManager_StepInFlight(t *testing.T) {
	svc := &blockingService{
		Service:  identitymock.NewInMemService(),
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

	f, err := m.Begin(t.Context(), flow.KindSignUp)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.SubmitEmail(context.Background(), f.ID, "a@b.com")
		firstDone <- err
	}()

	<-svc.entered

	_, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
	assert.ErrorIs(t, err, serviceerr.ErrStepInFlight)

	close(svc.released)
	require.NoError(t, <-firstDone)

	// the guard is released once the first submission resolved
	got, err := m.Get(t.Context(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.StepCodeVerification, got.Step)
}

func TestManager_SignIn(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := identitymock.NewInMemService(identitymock.WithAccount("a@b.com", "secret1", nil))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		session, err := m.SignIn(t.Context(), "a@b.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", session.User.Email)
		assert.NotEmpty(t, session.AccessToken)
	})

	t.Run("Unknown email reads as missing account", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.SignIn(t.Context(), "nobody@example.com", "secret1")
		assert.ErrorIs(t, err, flow.ErrAccountNotFound)
		assert.Equal(t, 1, svc.Calls.Authenticate, "the probe is the authenticate call itself")
	})

	t.Run("Wrong password reads the same way", func(t *testing.T) {
		svc := identitymock.NewInMemService(identitymock.WithAccount("a@b.com", "secret1", nil))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.SignIn(t.Context(), "a@b.com", "wrong")
		assert.ErrorIs(t, err, flow.ErrAccountNotFound)
	})

	t.Run("Other service errors pass through verbatim", func(t *testing.T) {
		svcErr := &identity.Error{StatusCode: http.StatusBadRequest, Message: "Email not confirmed"}
		svc := identitymock.NewInMemService(identitymock.WithAuthenticateError(svcErr))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.SignIn(t.Context(), "a@b.com", "secret1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, flow.ErrAccountNotFound)

		var got *identity.Error
		require.ErrorAs(t, err, &got)
		assert.Equal(t, "Email not confirmed", got.Message)
	})

	t.Run("Local validation happens before any remote call", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.SignIn(t.Context(), "not-an-email", "secret1")
		assert.True(t, flow.IsValidation(err))

		_, err = m.SignIn(t.Context(), "a@b.com", "")
		assert.True(t, flow.IsValidation(err))
		assert.Equal(t, "Password is required", err.Error())

		assert.Equal(t, 0, svc.Calls.Authenticate)
	})
}

func TestManager_CheckEmailExists(t *testing.T) {
	t.Run("Unknown email", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		exists, err := m.CheckEmailExists(t.Context(), "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Non-credential rejection reads as existing", func(t *testing.T) {
		svcErr := &identity.Error{StatusCode: http.StatusBadRequest, Message: "Email not confirmed"}
		svc := identitymock.NewInMemService(identitymock.WithAuthenticateError(svcErr))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		exists, err := m.CheckEmailExists(t.Context(), "a@b.com")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Transport failure is not evidence", func(t *testing.T) {
		svc := identitymock.NewInMemService(
			identitymock.WithAuthenticateError(errors.New("dial tcp: connection refused")),
		)
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.CheckEmailExists(t.Context(), "a@b.com")
		require.Error(t, err)
	})

	t.Run("Result is cached", func(t *testing.T) {
		svc := identitymock.NewInMemService()
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.CheckEmailExists(t.Context(), "nobody@example.com")
		require.NoError(t, err)
		_, err = m.CheckEmailExists(t.Context(), "nobody@example.com")
		require.NoError(t, err)

		assert.Equal(t, 1, svc.Calls.Authenticate, "the second check must hit the cache")
	})

	t.Run("Sign-in primes the cache", func(t *testing.T) {
		svc := identitymock.NewInMemService(identitymock.WithAccount("a@b.com", "secret1", nil))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		_, err := m.SignIn(t.Context(), "a@b.com", "secret1")
		require.NoError(t, err)

		exists, err := m.CheckEmailExists(t.Context(), "a@b.com")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, 1, svc.Calls.Authenticate, "no probe after a successful sign-in")
	})

	t.Run("Sign-up invalidates a cached miss", func(t *testing.T) {
		svc := identitymock.NewInMemService(identitymock.WithIssuedCode("123456"))
		m := newManager(t, svc, flowmock.NewInMemRepository(), nil)

		exists, err := m.CheckEmailExists(t.Context(), "a@b.com")
		require.NoError(t, err)
		assert.False(t, exists)

		probes := svc.Calls.Authenticate

		f := beginAtProfile(t, m, "123456")
		_, _, err = m.CompleteSignUp(t.Context(), f.ID, flow.CompleteSignUpRequest{
			Username:        "writer1",
			DisplayName:     "Writer One",
			Password:        "secret1",
			ConfirmPassword: "secret1",
		})
		require.NoError(t, err)

		_, err = m.CheckEmailExists(t.Context(), "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, probes+1, svc.Calls.Authenticate, "the stale cache entry must be dropped")
	})
}

func TestManager_CleanupExpiredFlows(t *testing.T) {
	now := time.Now()

	live := flow.Flow{ID: "live", Kind: flow.KindSignUp, Step: flow.StepEmail, Expiry: now.Add(time.Hour)}
	gone := flow.Flow{ID: "gone", Kind: flow.KindSignUp, Step: flow.StepCodeVerification, Expiry: now.Add(-time.Minute)}
	done := flow.Flow{ID: "done", Kind: flow.KindPasswordReset, Step: flow.StepComplete, Expiry: now.Add(-time.Second)}

	repo := flowmock.NewInMemRepository(
		flowmock.WithFlow(live),
		flowmock.WithFlow(gone),
		flowmock.WithFlow(done),
	)
	m := newManager(t, identitymock.NewInMemService(), repo, nil)

	require.NoError(t, m.CleanupExpiredFlows(t.Context()))

	_, err := repo.LoadFlow(t.Context(), live.ID)
	assert.NoError(t, err)

	_, err = repo.LoadFlow(t.Context(), gone.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	_, err = repo.LoadFlow(t.Context(), done.ID)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

// beginAtCode advances a fresh flow to the code-verification step.
func beginAtCode(t *testing.T, m *flow.Manager, kind flow.Kind) flow.Flow {
	t.Helper()

	f, err := m.Begin(t.Context(), kind)
	require.NoError(t, err)

	f, err = m.SubmitEmail(t.Context(), f.ID, "a@b.com")
	require.NoError(t, err)

	return f
}

// beginAtPassword advances a fresh flow to the password-entry step.
func beginAtPassword(t *testing.T, m *flow.Manager, kind flow.Kind) flow.Flow {
	t.Helper()

	f := beginAtCode(t, m, kind)

	f, err := m.SubmitCode(t.Context(), f.ID, "123456")
	require.NoError(t, err)

	return f
}

// beginAtProfile advances a fresh sign-up flow to the profile-details step
// with the given code drafted.
func beginAtProfile(t *testing.T, m *flow.Manager, code string) flow.Flow {
	t.Helper()

	f := beginAtCode(t, m, flow.KindSignUp)

	f, err := m.SubmitCode(t.Context(), f.ID, code)
	require.NoError(t, err)

	f, err = m.SubmitPassword(t.Context(), f.ID, "secret1", "secret1")
	require.NoError(t, err)

	return f
}
