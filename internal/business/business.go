package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	"github.com/fableink/credential-manager/internal/business/server"
	"github.com/fableink/credential-manager/internal/config"
	"github.com/fableink/credential-manager/internal/flow"
	flowvalkey "github.com/fableink/credential-manager/internal/flow/valkey"
	"github.com/fableink/credential-manager/internal/identity/httpapi"
	"github.com/fableink/credential-manager/internal/profile"
	profilesql "github.com/fableink/credential-manager/internal/profile/sql"
)

// Main starts the public API server.
func Main(ctx context.Context, cfg *config.Config) error {
	flowManager, profiles, closeFn, err := initManagers(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the flow manager: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, flowManager, profiles)
}

func initManagers(ctx context.Context, cfg *config.Config) (_ *flow.Manager, _ *profile.Service, closeFn func(), _ error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	valkeyClient, err := makeValkeyClient(cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	identityClient, err := makeIdentityClient(cfg)
	if err != nil {
		db.Close()
		valkeyClient.Close()
		return nil, nil, nil, fmt.Errorf("creating the identity service client: %w", err)
	}

	profileRepo := profilesql.NewRepository(db)
	profiles := profile.NewService(profileRepo, cfg.Profiles.UsernameCacheTTL)

	flowRepo := flowvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix)
	flowManager := flow.NewManager(&cfg.Flows, identityClient, flowRepo, profiles)

	closeFn = func() {
		valkeyClient.Close()
		db.Close()
	}

	return flowManager, profiles, closeFn, nil
}

func makeValkeyClient(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	return valkey.NewClient(valkeyOpts)
}

func makeIdentityClient(cfg *config.Config) (*httpapi.Client, error) {
	apiKey, err := commoncfg.LoadValueFromSourceRef(cfg.Identity.APIKey)
	if err != nil {
		return nil, fmt.Errorf("loading identity service API key: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Identity.Timeout}

	client, err := httpapi.NewClient(cfg.Identity.BaseURL, string(apiKey), httpClient)
	if err != nil {
		return nil, fmt.Errorf("building identity client: %w", err)
	}

	return client, nil
}
