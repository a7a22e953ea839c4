package server

import (
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/fableink/credential-manager/internal/config"
)

func pingHandlerFunc(cfg *config.Config) func(http.ResponseWriter, *http.Request) {
	return instrument(cfg, "ping", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		slogctx.Debug(ctx, "Starting ping request")

		w.Header().Set("Content-Type", "application/json")

		if _, err := w.Write([]byte(`{ "result": "ping" }`)); err != nil {
			return
		}

		slogctx.Debug(ctx, "Finished ping request")
	})
}
