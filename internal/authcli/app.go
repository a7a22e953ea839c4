// Package authcli implements the interactive terminal client. It drives
// the signup, sign-in and password-recovery flows against the hosted
// identity service and mirrors the session state locally.
package authcli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/fableink/credential-manager/internal/authstate"
	"github.com/fableink/credential-manager/internal/config"
	"github.com/fableink/credential-manager/internal/flow"
	flowmock "github.com/fableink/credential-manager/internal/flow/mock"
	"github.com/fableink/credential-manager/internal/identity"
	"github.com/fableink/credential-manager/internal/identity/httpapi"
)

// Config carries the identity service endpoint for the terminal client.
type Config struct {
	BaseURL string
	APIKey  string
}

// App wires the identity client, the flow manager and the session holder
// together for interactive use. Flow state lives in process memory; the
// client keeps at most a handful of flows alive at a time.
type App struct {
	svc    identity.Service
	flows  *flow.Manager
	holder *authstate.Holder
	reader *bufio.Reader
	out    *os.File
}

func NewApp(cfg *Config) (*App, error) {
	svc, err := httpapi.NewClient(cfg.BaseURL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating identity client: %w", err)
	}

	flowCfg := config.DefaultFlows()

	return &App{
		svc:    svc,
		flows:  flow.NewManager(&flowCfg, svc, flowmock.NewInMemRepository(), nil),
		holder: authstate.NewHolder(svc),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Run starts the session holder and hands control to the REPL. It blocks
// until the user quits or the context is cancelled.
func (a *App) Run(ctx context.Context) {
	a.holder.Start(ctx)
	defer a.holder.Stop()

	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))
}

func (a *App) isSignedIn() bool {
	snap := a.holder.Snapshot()
	return snap.User != nil
}

func (a *App) status() string {
	snap := a.holder.Snapshot()

	switch {
	case snap.Loading:
		return "..."
	case snap.User != nil:
		return snap.User.Email
	default:
		return "signed out"
	}
}
