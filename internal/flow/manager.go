// Package flow drives the multi-step credential wizards: sign-up over a
// one-time emailed code, password recovery, and the single-step sign-in.
// Each step validates its local invariants before performing at most one
// remote operation against the identity service; remote failures halt the
// flow at its current step and are surfaced with the service's own message.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/config"
	"github.com/fableink/credential-manager/internal/identity"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

// probePassword is the sentinel used by the email-existence heuristic. It
// is never a real credential; the probe only inspects the error class.
const probePassword = "credential-manager-existence-probe" // NOSONAR

// ProfileBootstrapper reconciles the user-facing profile record after a
// successful account creation.
type ProfileBootstrapper interface {
	Bootstrap(ctx context.Context, identityID, username, displayName string) error
}

type Manager struct {
	svc      identity.Service
	flows    Repository
	profiles ProfileBootstrapper

	ttl                time.Duration
	completedRetention time.Duration
	codeLength         int
	minPasswordLength  int

	inFlight   sync.Map
	probeCache *gocache.Cache
}

func NewManager(cfg *config.Flows, svc identity.Service, flows Repository, profiles ProfileBootstrapper) *Manager {
	return &Manager{
		svc:                svc,
		flows:              flows,
		profiles:           profiles,
		ttl:                cfg.TTL,
		completedRetention: cfg.CompletedRetention,
		codeLength:         cfg.CodeLength,
		minPasswordLength:  cfg.MinPasswordLength,
		probeCache:         gocache.New(cfg.ProbeCacheTTL, 2*cfg.ProbeCacheTTL),
	}
}

// Begin creates a fresh flow at the email step.
func (m *Manager) Begin(ctx context.Context, kind Kind) (Flow, error) {
	if kind != KindSignUp && kind != KindPasswordReset {
		return Flow{}, validationErrorf("unknown flow kind %q", kind)
	}

	now := time.Now()
	f := Flow{
		ID:        uuid.NewString(),
		Kind:      kind,
		Step:      StepEmail,
		CreatedAt: now,
		Expiry:    now.Add(m.ttl),
	}

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// Get returns the current state of a flow.
func (m *Manager) Get(ctx context.Context, flowID string) (Flow, error) {
	return m.load(ctx, flowID)
}

// SubmitEmail advances Email -> CodeVerification. The remote service must
// accept sending a one-time code (sign-up) or a recovery code (reset); on
// remote failure the step does not advance.
func (m *Manager) SubmitEmail(ctx context.Context, flowID, email string) (Flow, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}

	if f.Step != StepEmail {
		return Flow{}, ErrWrongStep
	}

	if err := validateEmail(email); err != nil {
		return Flow{}, err
	}

	switch f.Kind {
	case KindSignUp:
		err = m.svc.RequestOneTimeCode(ctx, email)
	case KindPasswordReset:
		err = m.svc.RequestPasswordReset(ctx, email)
	}
	if err != nil {
		return Flow{}, err
	}

	f.Email = email
	f.Step = StepCodeVerification

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// SubmitCode advances CodeVerification -> PasswordEntry on a locally valid
// code. No remote call happens here; the service verifies the code together
// with the final submission.
func (m *Manager) SubmitCode(ctx context.Context, flowID, code string) (Flow, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}

	if f.Step != StepCodeVerification {
		return Flow{}, ErrWrongStep
	}

	if err := m.validateCode(code); err != nil {
		return Flow{}, err
	}

	f.Code = code
	f.Step = StepPasswordEntry

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// SubmitPassword advances PasswordEntry -> ProfileDetails for sign-up
// flows. Validation is purely local; the password itself is not persisted
// and is re-submitted with the profile details.
func (m *Manager) SubmitPassword(ctx context.Context, flowID, password, confirm string) (Flow, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}

	if f.Kind != KindSignUp || f.Step != StepPasswordEntry {
		return Flow{}, ErrWrongStep
	}

	if err := m.validatePassword(password, confirm); err != nil {
		return Flow{}, err
	}

	f.Step = StepProfileDetails

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// CompleteSignUpRequest carries the final submission of a sign-up flow.
// The password is repeated here because drafts are never persisted between
// steps.
type CompleteSignUpRequest struct {
	Username        string
	DisplayName     string
	Password        string
	ConfirmPassword string
}

// SignUpResult reports the outcome of a completed sign-up. ProfileWarning
// is set when the account was created but the profile bootstrap failed; the
// account exists regardless and the warning is surfaced separately from the
// sign-up success.
type SignUpResult struct {
	User           identity.User
	ProfileWarning error
}

// CompleteSignUp advances ProfileDetails -> Complete. The one-time code is
// verified remotely here, together with account creation. A code rejection
// rolls the flow back to CodeVerification with the email preserved; an
// account-creation failure keeps the flow at ProfileDetails.
func (m *Manager) CompleteSignUp(ctx context.Context, flowID string, req CompleteSignUpRequest) (Flow, SignUpResult, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, SignUpResult{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, SignUpResult{}, err
	}

	if f.Kind != KindSignUp || f.Step != StepProfileDetails {
		return Flow{}, SignUpResult{}, ErrWrongStep
	}

	if req.Username == "" {
		return Flow{}, SignUpResult{}, validationErrorf("Username is required")
	}
	if req.DisplayName == "" {
		return Flow{}, SignUpResult{}, validationErrorf("Display name is required")
	}
	if err := m.validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return Flow{}, SignUpResult{}, err
	}

	if _, err := m.svc.VerifyOneTimeCode(ctx, f.Email, f.Code, identity.PurposeSignUp); err != nil {
		f, rollbackErr := m.rollbackToCode(ctx, f, err)
		if rollbackErr != nil {
			return Flow{}, SignUpResult{}, rollbackErr
		}

		return f, SignUpResult{}, err
	}

	user, err := m.svc.CreateAccount(ctx, f.Email, req.Password, map[string]string{
		"username":     req.Username,
		"display_name": req.DisplayName,
	})
	if err != nil {
		return Flow{}, SignUpResult{}, err
	}

	f.Step = StepComplete
	f.Code = ""
	f.Expiry = time.Now().Add(m.completedRetention)

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, SignUpResult{}, fmt.Errorf("storing flow: %w", err)
	}

	m.probeCache.Delete(f.Email)

	result := SignUpResult{User: user}

	if m.profiles != nil {
		if err := m.profiles.Bootstrap(ctx, user.ID, req.Username, req.DisplayName); err != nil {
			slogctx.Warn(ctx, "Profile bootstrap failed after account creation", "user_id", user.ID, "error", err)
			result.ProfileWarning = err
		}
	}

	return f, result, nil
}

// CompleteReset finishes a password-reset flow: the recovery code is
// verified remotely and the new password applied under the session that
// exact verification established, so concurrent resets can never touch
// each other's accounts. A code rejection rolls back to CodeVerification;
// an update failure keeps the flow at PasswordEntry. On success the flow
// completes and control returns to the sign-in entry point.
func (m *Manager) CompleteReset(ctx context.Context, flowID, password, confirm string) (Flow, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}

	if f.Kind != KindPasswordReset || f.Step != StepPasswordEntry {
		return Flow{}, ErrWrongStep
	}

	if err := m.validatePassword(password, confirm); err != nil {
		return Flow{}, err
	}

	session, err := m.svc.VerifyOneTimeCode(ctx, f.Email, f.Code, identity.PurposeRecovery)
	if err != nil {
		f, rollbackErr := m.rollbackToCode(ctx, f, err)
		if rollbackErr != nil {
			return Flow{}, rollbackErr
		}

		return f, err
	}

	if session == nil {
		return Flow{}, fmt.Errorf("recovery verification established no session")
	}

	if err := m.svc.UpdatePassword(ctx, *session, password); err != nil {
		return Flow{}, err
	}

	f.Step = StepComplete
	f.Code = ""
	f.Expiry = time.Now().Add(m.completedRetention)

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// Back resets any non-terminal flow to the email step and clears the
// entered draft.
func (m *Manager) Back(ctx context.Context, flowID string) (Flow, error) {
	release, err := m.acquire(flowID)
	if err != nil {
		return Flow{}, err
	}
	defer release()

	f, err := m.load(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}

	if f.Step == StepComplete {
		return Flow{}, serviceerr.ErrFlowComplete
	}

	f.Step = StepEmail
	f.Email = ""
	f.Code = ""

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow: %w", err)
	}

	return f, nil
}

// Cancel destroys a flow regardless of its step, e.g. when the user
// navigates away.
func (m *Manager) Cancel(ctx context.Context, flowID string) error {
	if err := m.flows.DeleteFlow(ctx, flowID); err != nil {
		return fmt.Errorf("deleting flow: %w", err)
	}

	return nil
}

// SignIn is the single-step password authentication. The authenticate call
// doubles as the existence probe: exactly the service's invalid-credentials
// rejection is reported as a missing account, with no second call; any
// other service error passes through verbatim. On success, session
// propagation is solely the state holder's concern via the service's change
// notifications.
func (m *Manager) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if err := validateEmail(email); err != nil {
		return identity.Session{}, err
	}
	if password == "" {
		return identity.Session{}, validationErrorf("Password is required")
	}

	session, err := m.svc.Authenticate(ctx, email, password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			m.probeCache.SetDefault(email, false)

			return identity.Session{}, ErrAccountNotFound
		}

		return identity.Session{}, err
	}

	m.probeCache.SetDefault(email, true)

	return session, nil
}

// CheckEmailExists is the best-effort existence heuristic: a probe
// authentication with a sentinel password whose invalid-credentials
// rejection, and nothing else, is interpreted as "no such account". Results
// are cached briefly and invalidated on successful sign-up.
func (m *Manager) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	if err := validateEmail(email); err != nil {
		return false, err
	}

	if cached, ok := m.probeCache.Get(email); ok {
		return cached.(bool), nil
	}

	_, err := m.svc.Authenticate(ctx, email, probePassword)
	if err == nil {
		// the sentinel matched a real credential; treat as existing
		m.probeCache.SetDefault(email, true)

		return true, nil
	}

	if identity.IsInvalidCredentials(err) {
		m.probeCache.SetDefault(email, false)

		return false, nil
	}

	var svcErr *identity.Error
	if errors.As(err, &svcErr) {
		// any other service rejection means the account likely exists
		m.probeCache.SetDefault(email, true)

		return true, nil
	}

	// transport failures are not evidence either way
	return false, err
}

// rollbackToCode returns the flow to the code-verification step after the
// service rejected the one-time code. The email is preserved; only the
// rejected code is cleared. Transport failures do not roll back: the flow
// halts at its current step for resubmission.
func (m *Manager) rollbackToCode(ctx context.Context, f Flow, cause error) (Flow, error) {
	var svcErr *identity.Error
	if !errors.As(cause, &svcErr) {
		return f, nil
	}

	f.Step = StepCodeVerification
	f.Code = ""

	if err := m.flows.StoreFlow(ctx, f); err != nil {
		return Flow{}, fmt.Errorf("storing flow after code rejection: %w", err)
	}

	return f, nil
}

func (m *Manager) load(ctx context.Context, flowID string) (Flow, error) {
	f, err := m.flows.LoadFlow(ctx, flowID)
	if err != nil {
		return Flow{}, fmt.Errorf("loading flow: %w", err)
	}

	if f.expired(time.Now()) {
		if err := m.flows.DeleteFlow(ctx, flowID); err != nil {
			slogctx.Warn(ctx, "Could not delete expired flow", "flow_id", flowID, "error", err)
		}

		return Flow{}, serviceerr.ErrFlowExpired
	}

	return f, nil
}

// acquire marks a flow's step submission as in flight; a second submission
// for the same flow is rejected until the first one resolves.
func (m *Manager) acquire(flowID string) (release func(), _ error) {
	if _, loaded := m.inFlight.LoadOrStore(flowID, struct{}{}); loaded {
		return nil, serviceerr.ErrStepInFlight
	}

	return func() { m.inFlight.Delete(flowID) }, nil
}

func validateEmail(email string) error {
	if email == "" {
		return validationErrorf("Email is required")
	}

	for i, r := range email {
		if r == '@' && i > 0 && i < len(email)-1 {
			return nil
		}
	}

	return validationErrorf("Enter a valid email address")
}

func (m *Manager) validateCode(code string) error {
	if len(code) != m.codeLength {
		return validationErrorf("Code must be %d digits", m.codeLength)
	}

	for _, r := range code {
		if r < '0' || r > '9' {
			return validationErrorf("Code must be %d digits", m.codeLength)
		}
	}

	return nil
}

func (m *Manager) validatePassword(password, confirm string) error {
	if len(password) < m.minPasswordLength {
		return validationErrorf("Password must be at least %d characters", m.minPasswordLength)
	}

	if password != confirm {
		return validationErrorf("Passwords do not match")
	}

	return nil
}
