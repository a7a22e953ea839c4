package serviceerr

import "errors"

var ErrConflict = errors.New("already exists")
var ErrNotFound = errors.New("not found")
var ErrFlowExpired = errors.New("flow expired")
var ErrStepInFlight = errors.New("step already in flight")
var ErrFlowComplete = errors.New("flow already complete")
