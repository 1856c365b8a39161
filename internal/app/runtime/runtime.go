// Package runtime arma la aplicación: config, storage, clientes de
// cada proveedor y la superficie HTTP.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"stageLink/internal/infrastructure/config"
	sqlitestorage "stageLink/internal/infrastructure/persistence/sqlite"
	streamlabsinfra "stageLink/internal/infrastructure/platform/streamlabs"
	twitchinfra "stageLink/internal/infrastructure/platform/twitch"
	ws "stageLink/internal/interface/api/ws"
	"stageLink/internal/usecase/relay"
)

type Runtime struct {
	cfg    *config.Config
	store  *sqlitestorage.Store
	server *ws.Server
	log    *slog.Logger
}

func New(log *slog.Logger) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := sqlitestorage.NewStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	twitchAuth, err := twitchinfra.NewOAuth(cfg.TwitchClient, cfg.TwitchSecret, cfg.TwitchRedirect, cfg.TwitchScopes)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("twitch oauth: %w", err)
	}
	slAuth := streamlabsinfra.NewOAuth(cfg.StreamlabsClient, cfg.StreamlabsSecret, cfg.StreamlabsRedirect, cfg.StreamlabsScopes)

	registry := relay.NewRegistry(
		twitchinfra.NewEventSubConnector(cfg.TwitchClient, log),
		streamlabsinfra.NewSocketConnector(log),
		log,
	)
	triggers := relay.NewTriggers(twitchinfra.NewRewardsClient(cfg.TwitchClient), twitchAuth, log)
	rel := relay.NewRelay(registry, store, twitchAuth, slAuth, triggers, relay.NewLimiters(), cfg.ClientVersion, log)

	server := ws.NewServer(ws.Config{
		Addr:         cfg.Addr(),
		TwitchScopes: cfg.TwitchScopes,
	}, rel, store, twitchAuth, slAuth, log)

	return &Runtime{
		cfg:    cfg,
		store:  store,
		server: server,
		log:    log,
	}, nil
}

// Run bloquea hasta que el contexto se cancela o el server falla.
func (r *Runtime) Run(ctx context.Context) error {
	defer func() {
		if err := r.store.Close(); err != nil {
			r.log.Error("runtime: closing store", "error", err)
		}
	}()
	return r.server.Start(ctx)
}
