package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/config"
	"github.com/fableink/credential-manager/internal/flow"
	"github.com/fableink/credential-manager/internal/profile"
)

// createHTTPServer creates the public API http server using the given config.
func createHTTPServer(_ context.Context, cfg *config.Config, flows *flow.Manager, profiles *profile.Service) *http.Server {
	api := newFlowAPI(flows, profiles)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", pingHandlerFunc(cfg))
	mux.HandleFunc("POST /v1/flows", instrument(cfg, "createFlow", api.createFlow))
	mux.HandleFunc("GET /v1/flows/{id}", instrument(cfg, "getFlow", api.getFlow))
	mux.HandleFunc("POST /v1/flows/{id}/email", instrument(cfg, "submitEmail", api.submitEmail))
	mux.HandleFunc("POST /v1/flows/{id}/code", instrument(cfg, "submitCode", api.submitCode))
	mux.HandleFunc("POST /v1/flows/{id}/password", instrument(cfg, "submitPassword", api.submitPassword))
	mux.HandleFunc("POST /v1/flows/{id}/profile", instrument(cfg, "completeSignUp", api.completeSignUp))
	mux.HandleFunc("POST /v1/flows/{id}/reset-password", instrument(cfg, "completeReset", api.completeReset))
	mux.HandleFunc("POST /v1/flows/{id}/back", instrument(cfg, "back", api.back))
	mux.HandleFunc("DELETE /v1/flows/{id}", instrument(cfg, "cancelFlow", api.cancelFlow))
	mux.HandleFunc("POST /v1/signin", instrument(cfg, "signIn", api.signIn))
	mux.HandleFunc("GET /v1/email-exists", instrument(cfg, "emailExists", api.emailExists))
	mux.HandleFunc("GET /v1/usernames/{username}/available", instrument(cfg, "usernameAvailable", api.usernameAvailable))
	mux.HandleFunc("GET /v1/profiles/{username}", instrument(cfg, "getProfile", api.getProfile))

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: mux,
	}
}

// StartHTTPServer starts the public API server using the given config.
func StartHTTPServer(ctx context.Context, cfg *config.Config, flows *flow.Manager, profiles *profile.Service) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server := createHTTPServer(ctx, cfg, flows, profiles)

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address is provided in the format of
	// network://address. Otherwise use tcp network by default. Some
	// integration tests are easier to implement by binding a listener to a
	// unix socket rather than a TCP port, since we don't need to look up a
	// free port to discover which port the process is bound to.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
