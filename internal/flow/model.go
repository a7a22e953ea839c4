package flow

import "time"

// Kind selects which credential flow a record belongs to.
type Kind string

const (
	KindSignUp        Kind = "signup"
	KindPasswordReset Kind = "password_reset"
)

// Step is where a multi-step credential flow currently is. Transitions are
// strictly forward, or an explicit back-reset to StepEmail.
type Step string

const (
	StepEmail            Step = "email"
	StepCodeVerification Step = "code_verification"
	StepPasswordEntry    Step = "password_entry"
	StepProfileDetails   Step = "profile_details"
	StepComplete         Step = "complete"
)

// Flow is the persisted state of one wizard attempt. Draft passwords are
// deliberately absent: they travel only inside a single submission and are
// never stored. The code is the locally accepted one-time code; the remote
// service judges it at the final step.
type Flow struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Step      Step      `json:"step"`
	Email     string    `json:"email,omitempty"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Expiry    time.Time `json:"expiry"`
}

func (f Flow) expired(now time.Time) bool {
	return now.After(f.Expiry)
}
