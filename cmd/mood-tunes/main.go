// Command mood-tunes runs the mood-to-music recommender web application.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/justestif/go-mood-tunes/internal/auth"
	"github.com/justestif/go-mood-tunes/internal/cache"
	"github.com/justestif/go-mood-tunes/internal/catalog"
	"github.com/justestif/go-mood-tunes/internal/config"
	"github.com/justestif/go-mood-tunes/internal/db"
	"github.com/justestif/go-mood-tunes/internal/lastfm"
	"github.com/justestif/go-mood-tunes/internal/logging"
	"github.com/justestif/go-mood-tunes/internal/metrics"
	"github.com/justestif/go-mood-tunes/internal/recommend"
	"github.com/justestif/go-mood-tunes/internal/spotify"
	"github.com/justestif/go-mood-tunes/internal/web"
	webfs "github.com/justestif/go-mood-tunes/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	store, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	m := metrics.NewManager()

	catalogOpts := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithMetrics(m),
		catalog.WithConcurrency(cfg.EnrichConcurrency),
	}
	if cfg.SpotifyEnabled() {
		client := spotify.NewAppClient(ctx, spotify.AppConfig{
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
		}, spotify.WithCache(store, cfg.CacheTTL), spotify.WithLogger(logger))
		catalogOpts = append(catalogOpts, catalog.WithSpotify(client))
	} else {
		logger.Warn("spotify credentials not set, enrichment and login disabled")
	}
	if cfg.LastFMAPIKey != "" {
		lastfmCfg := &lastfm.Config{APIKey: cfg.LastFMAPIKey}
		if err := lastfmCfg.Validate(); err != nil {
			return fmt.Errorf("invalid last.fm config: %w", err)
		}
		catalogOpts = append(catalogOpts, catalog.WithTagFetcher(
			lastfm.NewClient(lastfmCfg, lastfm.WithCache(store, cfg.CacheTTL), lastfm.WithLogger(logger)),
		))
	}
	catalogSvc := catalog.New(database.Songs(), catalogOpts...)

	if cfg.SeedFile != "" {
		if err := importSeed(ctx, catalogSvc, cfg.SeedFile, logger); err != nil {
			return err
		}
	}

	recommender := recommend.New(database.Songs(),
		recommend.WithHistory(database.MoodLogs()),
		recommend.WithMetrics(m),
		recommend.WithLogger(logger),
		recommend.WithCounts(cfg.DefaultCount, cfg.MaxCount),
	)

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}

	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	serverCfg := web.ServerConfig{
		Addr:        cfg.Addr,
		AdminToken:  cfg.AdminToken,
		TemplatesFS: templates,
		StaticFS:    static,
		Sliders:     web.SliderData{HeartRate: 75, Activity: 5, Mood: 5, Count: cfg.DefaultCount},
		Recommender: recommender,
		Catalog:     catalogSvc,
		Sessions:    web.NewDBSessionStore(database.Users(), database.Sessions(), logger),
		Health:      database,
		Metrics:     m,
		Logger:      logger,
	}
	if cfg.SpotifyEnabled() {
		authenticator, err := auth.New(auth.Config{
			ClientID:     cfg.SpotifyID,
			ClientSecret: cfg.SpotifySecret,
			RedirectURL:  cfg.RedirectURL,
		})
		if err != nil {
			return fmt.Errorf("creating authenticator: %w", err)
		}
		serverCfg.Auth = authenticator
	}

	server, err := web.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepSessions(sweepCtx, database.Sessions(), logger)

	return server.Run()
}

// sweepSessions removes expired sessions every hour until ctx is done.
func sweepSessions(ctx context.Context, sessions *db.SessionRepository, logger *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("failed to sweep sessions", logging.Err(err))
				continue
			}
			if n > 0 {
				logger.Debug("swept expired sessions", logging.Int("count", int(n)))
			}
		}
	}
}

// newCache returns Redis when configured and an in-process cache otherwise.
func newCache(ctx context.Context, cfg *config.Config, logger *logging.Logger) (cache.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-process cache")
		return cache.NewMemory(), func() {}, nil
	}

	r, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.CachePrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("using redis cache", logging.String("addr", cfg.RedisAddr))
	return r, func() { _ = r.Close() }, nil
}

func importSeed(ctx context.Context, svc *catalog.Service, path string, logger *logging.Logger) error {
	records, err := catalog.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("loading seed file: %w", err)
	}
	result, err := svc.Import(ctx, records)
	if err != nil {
		return fmt.Errorf("importing seed file: %w", err)
	}
	for _, row := range result.Invalid {
		logger.Warn("skipped seed row",
			logging.Int("index", row.Index),
			logging.String("title", row.Title),
			logging.String("error", row.Error),
		)
	}
	return nil
}
