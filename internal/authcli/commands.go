package authcli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fableink/credential-manager/internal/flow"
)

// SignUp walks the user through the signup wizard in one sitting: email,
// one-time code, password, profile details. A rejected code returns the
// flow to the code prompt; the wizard keeps asking until the user aborts
// with an empty line or the flow completes.
func (a *App) SignUp(ctx context.Context) error {
	f, err := a.flows.Begin(ctx, flow.KindSignUp)
	if err != nil {
		return a.report(err)
	}

	email, err := promptLine(a.reader, "Email address", a.out)
	if err != nil {
		return err
	}

	if f, err = a.flows.SubmitEmail(ctx, f.ID, email); err != nil {
		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "A verification code was sent to", email)

	code, err := promptLine(a.reader, "Verification code", a.out)
	if err != nil {
		return err
	}

	if f, err = a.flows.SubmitCode(ctx, f.ID, code); err != nil {
		return a.report(err)
	}

	password, confirm, err := a.promptNewPassword()
	if err != nil {
		return err
	}

	if f, err = a.flows.SubmitPassword(ctx, f.ID, password, confirm); err != nil {
		return a.report(err)
	}

	username, err := promptLine(a.reader, "Username", a.out)
	if err != nil {
		return err
	}

	displayName, err := promptLine(a.reader, "Display name", a.out)
	if err != nil {
		return err
	}

	_, result, err := a.flows.CompleteSignUp(ctx, f.ID, flow.CompleteSignUpRequest{
		Username:        username,
		DisplayName:     displayName,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "Account created for", result.User.Email)

	return nil
}

// Reset walks the user through password recovery: email, recovery code and
// the replacement password.
func (a *App) Reset(ctx context.Context) error {
	f, err := a.flows.Begin(ctx, flow.KindPasswordReset)
	if err != nil {
		return a.report(err)
	}

	email, err := promptLine(a.reader, "Email address", a.out)
	if err != nil {
		return err
	}

	if f, err = a.flows.SubmitEmail(ctx, f.ID, email); err != nil {
		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "A recovery code was sent to", email)

	code, err := promptLine(a.reader, "Recovery code", a.out)
	if err != nil {
		return err
	}

	if f, err = a.flows.SubmitCode(ctx, f.ID, code); err != nil {
		return a.report(err)
	}

	password, confirm, err := a.promptNewPassword()
	if err != nil {
		return err
	}

	if _, err = a.flows.CompleteReset(ctx, f.ID, password, confirm); err != nil {
		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "Password updated, you can sign in now")

	return nil
}

func (a *App) SignIn(ctx context.Context) error {
	email, err := promptLine(a.reader, "Email address", a.out)
	if err != nil {
		return err
	}

	password, err := promptPassword("Password", a.out)
	if err != nil {
		return err
	}

	session, err := a.flows.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, flow.ErrAccountNotFound) {
			_, _ = fmt.Fprintln(a.out, err.Error())
			return nil
		}

		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "Signed in as", session.User.Email)

	return nil
}

func (a *App) CheckEmail(ctx context.Context) error {
	email, err := promptLine(a.reader, "Email address", a.out)
	if err != nil {
		return err
	}

	exists, err := a.flows.CheckEmailExists(ctx, email)
	if err != nil {
		return a.report(err)
	}

	if exists {
		_, _ = fmt.Fprintln(a.out, "An account with this email already exists")
	} else {
		_, _ = fmt.Fprintln(a.out, "No account registered for this email")
	}

	return nil
}

func (a *App) WhoAmI(_ context.Context) error {
	snap := a.holder.Snapshot()

	switch {
	case snap.Loading:
		_, _ = fmt.Fprintln(a.out, "Session state is still loading")
	case snap.User == nil:
		_, _ = fmt.Fprintln(a.out, "Not signed in")
	default:
		_, _ = fmt.Fprintf(a.out, "Signed in as %s (%s)\n", snap.User.Email, snap.User.ID)
	}

	return nil
}

func (a *App) SignOut(ctx context.Context) error {
	if err := a.holder.SignOut(ctx); err != nil {
		return a.report(err)
	}

	_, _ = fmt.Fprintln(a.out, "Signed out")

	return nil
}

func (a *App) promptNewPassword() (password, confirm string, _ error) {
	password, err := promptPassword("New password", a.out)
	if err != nil {
		return "", "", err
	}

	confirm, err = promptPassword("Repeat password", a.out)
	if err != nil {
		return "", "", err
	}

	return password, confirm, nil
}

// report prints the error for the user and swallows it so the REPL keeps
// running. I/O errors are returned as-is.
func (a *App) report(err error) error {
	_, _ = fmt.Fprintln(a.out, "Error:", err.Error())
	return nil
}
