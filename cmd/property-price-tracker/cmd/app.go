package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/donaldgifford/property-price-tracker/internal/config"
	"github.com/donaldgifford/property-price-tracker/internal/feed"
	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	"github.com/donaldgifford/property-price-tracker/internal/notify"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	"github.com/donaldgifford/property-price-tracker/pkg/logger"
)

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}

// openStore connects to the configured datastore. Migrations are not run.
func openStore(ctx context.Context, db *config.DatabaseConfig) (store.Store, error) {
	switch db.Driver {
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(ctx, db.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", db.Path, err)
		}
		return s, nil
	default:
		s, err := store.NewPostgresStore(ctx, db.DSN(), int32(db.PoolSize)) //nolint:gosec // validated pool size
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		return s, nil
	}
}

// newSource builds the configured feed. It returns nil for feed type none.
func newSource(ctx context.Context, f *config.FeedConfig) (feed.Source, error) {
	switch f.Type {
	case config.FeedDir:
		return feed.NewDir(f.Dir, f.Strict), nil
	case config.FeedS3:
		src, err := feed.NewS3(ctx, feed.S3Config{
			Bucket:          f.S3.Bucket,
			Prefix:          f.S3.Prefix,
			Region:          f.S3.Region,
			Endpoint:        f.S3.Endpoint,
			AccessKeyID:     f.S3.AccessKeyID,
			SecretAccessKey: f.S3.SecretAccessKey,
			PathStyle:       f.S3.PathStyle,
			Strict:          f.Strict,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 feed: %w", err)
		}
		return src, nil
	default:
		return nil, nil
	}
}

func newNotifier(n *config.NotificationsConfig, log *slog.Logger) notify.Notifier {
	if n.Discord.Enabled && n.Discord.WebhookURL != "" {
		return notify.NewDiscordNotifier(n.Discord.WebhookURL)
	}
	return notify.NewNoOpNotifier(logger.Component(log, "notify"))
}

// newOrchestrator builds the orchestrator and restores partition halts
// recorded by earlier runs.
func newOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	s store.Store,
	n notify.Notifier,
	log *slog.Logger,
) (*ingest.Orchestrator, error) {
	o := ingest.NewOrchestrator(s,
		ingest.WithLogger(logger.Component(log, "ingest")),
		ingest.WithNotifier(n),
		ingest.WithDiffEngine(ingest.NewDiffEngine(cfg.Ingest.Country)),
		ingest.WithWriteTimeout(cfg.Ingest.WriteTimeout),
	)
	if err := o.LoadHalts(ctx); err != nil {
		return nil, err
	}
	return o, nil
}
