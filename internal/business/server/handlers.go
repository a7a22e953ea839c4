// JSON handlers for the public flow API. Each handler maps one flow
// operation; error payloads carry the message the user should see, with
// remote service messages passed through verbatim.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/flow"
	"github.com/fableink/credential-manager/internal/identity"
	"github.com/fableink/credential-manager/internal/profile"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

type flowAPI struct {
	flows    *flow.Manager
	profiles *profile.Service
}

func newFlowAPI(flows *flow.Manager, profiles *profile.Service) *flowAPI {
	return &flowAPI{
		flows:    flows,
		profiles: profiles,
	}
}

// flowView is the client-facing state of a flow. Draft credentials never
// appear here; the code is reported only as "accepted or not".
type flowView struct {
	ID           string    `json:"id"`
	Kind         flow.Kind `json:"kind"`
	Step         flow.Step `json:"step"`
	Email        string    `json:"email,omitempty"`
	CodeAccepted bool      `json:"code_accepted"`
	Expiry       time.Time `json:"expiry"`
}

func toFlowView(f flow.Flow) flowView {
	return flowView{
		ID:           f.ID,
		Kind:         f.Kind,
		Step:         f.Step,
		Email:        f.Email,
		CodeAccepted: f.Code != "",
		Expiry:       f.Expiry,
	}
}

type errorModel struct {
	Error string `json:"error"`
}

func (api *flowAPI) createFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind flow.Kind `json:"kind"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := api.flows.Begin(r.Context(), req.Kind)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusCreated, toFlowView(f))
}

func (api *flowAPI) getFlow(w http.ResponseWriter, r *http.Request) {
	f, err := api.flows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) submitEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := api.flows.SubmitEmail(r.Context(), r.PathValue("id"), req.Email)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) submitCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := api.flows.SubmitCode(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) submitPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := api.flows.SubmitPassword(r.Context(), r.PathValue("id"), req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) completeSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		DisplayName     string `json:"display_name"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, result, err := api.flows.CompleteSignUp(r.Context(), r.PathValue("id"), flow.CompleteSignUpRequest{
		Username:        req.Username,
		DisplayName:     req.DisplayName,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	resp := struct {
		Flow           flowView      `json:"flow"`
		User           identity.User `json:"user"`
		ProfileWarning string        `json:"profile_warning,omitempty"`
	}{
		Flow: toFlowView(f),
		User: result.User,
	}
	if result.ProfileWarning != nil {
		resp.ProfileWarning = result.ProfileWarning.Error()
	}

	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (api *flowAPI) completeReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := api.flows.CompleteReset(r.Context(), r.PathValue("id"), req.Password, req.ConfirmPassword)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) back(w http.ResponseWriter, r *http.Request) {
	f, err := api.flows.Back(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, toFlowView(f))
}

func (api *flowAPI) cancelFlow(w http.ResponseWriter, r *http.Request) {
	if err := api.flows.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *flowAPI) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := api.flows.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, session)
}

func (api *flowAPI) emailExists(w http.ResponseWriter, r *http.Request) {
	exists, err := api.flows.CheckEmailExists(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, struct {
		Exists bool `json:"exists"`
	}{Exists: exists})
}

func (api *flowAPI) usernameAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := api.profiles.CheckUsernameAvailable(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, struct {
		Available bool `json:"available"`
	}{Available: available})
}

func (api *flowAPI) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := api.profiles.GetByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, struct {
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url,omitempty"`
		Bio         string `json:"bio,omitempty"`
	}{
		UserID:      p.UserID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Bio:         p.Bio,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(r.Context(), w, http.StatusBadRequest, errorModel{Error: "invalid request body"})
		return false
	}

	return true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slogctx.Error(ctx, "Failed to encode response", "error", err)
	}
}

// writeError maps flow and service errors onto HTTP statuses. The message
// shown to the user is the error's own; remote service errors pass through
// unmodified.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var svcErr *identity.Error

	switch {
	case flow.IsValidation(err):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, flow.ErrAccountNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, flow.ErrWrongStep),
		errors.Is(err, serviceerr.ErrFlowComplete),
		errors.Is(err, serviceerr.ErrConflict):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, serviceerr.ErrStepInFlight):
		status = http.StatusTooManyRequests
		message = err.Error()
	case errors.Is(err, serviceerr.ErrFlowExpired):
		status = http.StatusGone
		message = err.Error()
	case errors.Is(err, serviceerr.ErrNotFound):
		status = http.StatusNotFound
		message = serviceerr.ErrNotFound.Error()
	case errors.As(err, &svcErr):
		status = http.StatusBadGateway
		if svcErr.StatusCode >= http.StatusBadRequest && svcErr.StatusCode < 600 {
			status = svcErr.StatusCode
		}
		message = svcErr.Message
	default:
		slogctx.Error(ctx, "Unhandled error", "error", err)
	}

	writeJSON(ctx, w, status, errorModel{Error: message})
}
