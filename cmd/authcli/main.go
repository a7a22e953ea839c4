package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fableink/credential-manager/internal/authcli"
)

var (
	baseURL = flag.String("base-url", envOr("IDENTITY_BASE_URL", "http://localhost:9999"),
		"identity service base URL")
	apiKey = flag.String("api-key", os.Getenv("IDENTITY_API_KEY"),
		"identity service API key")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func main() {
	flag.Parse()

	ctx, cancelOnSignal := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancelOnSignal()

	app, err := authcli.NewApp(&authcli.Config{
		BaseURL: *baseURL,
		APIKey:  *apiKey,
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app.Run(ctx)
}
