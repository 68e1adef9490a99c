package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/arbalest/skinsniper/internal/blob/s3"
	"github.com/arbalest/skinsniper/internal/cache/redis"
	"github.com/arbalest/skinsniper/internal/config"
	"github.com/arbalest/skinsniper/internal/crypto"
	"github.com/arbalest/skinsniper/internal/domain"
	"github.com/arbalest/skinsniper/internal/evaluate"
	"github.com/arbalest/skinsniper/internal/instance"
	"github.com/arbalest/skinsniper/internal/notify"
	"github.com/arbalest/skinsniper/internal/platform/whitemarket"
	"github.com/arbalest/skinsniper/internal/refprice"
	"github.com/arbalest/skinsniper/internal/session"
	"github.com/arbalest/skinsniper/internal/store/postgres"
)

// Dependencies bundles everything the application lifecycle needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	RefCache  *refprice.Cache
	BanList   *evaluate.BanList
	Instances []*instance.Instance

	// Optional, nil when the corresponding subsystem is disabled.
	Purchases domain.PurchaseStore
	Archiver  *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL purchase audit store (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Purchases = postgres.NewPurchaseStore(pgClient.Pool())
	}

	// --- Redis reference snapshot mirror (optional) ---
	var mirror domain.ReferenceMirror
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		mirror = redis.NewReferenceMirror(redisClient)
	}

	// --- Reference price cache ---
	refClient := refprice.NewClient(cfg.RefPrice.URL, cfg.RefPrice.AuthToken)
	deps.RefCache = refprice.NewCache(refClient, mirror, logger)

	// --- Ban list and evaluator ---
	banStore := config.NewFileBanListStore(cfg.BanList.Path)
	banlist, err := evaluate.NewBanList(banStore)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ban list: %w", err)
	}
	deps.BanList = banlist
	evaluator := evaluate.New(deps.RefCache.Lookup, banlist)

	// --- S3 purchase archiver (optional, needs the audit store) ---
	if cfg.S3.Enabled && deps.Purchases != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		// Fail fast on bad credentials or a missing bucket rather than at
		// the first archive cycle, hours in.
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Purchases)
	}

	// --- Notification senders (shared across instances) ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}

	// --- Trading instances ---
	for _, acc := range cfg.Accounts {
		if !acc.Enabled {
			continue
		}

		apiKey, err := crypto.ResolveSecret(acc.APIKey, acc.EncryptedAPIKey, cfg.Secrets.KeyPassword)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: account %s: %w", acc.Name, err)
		}

		var creds domain.CredentialStore
		if cfg.Secrets.CredentialsPath != "" {
			creds = config.NewFileCredentialStore(cfg.Secrets.CredentialsPath, acc.Name)
		}

		// The client reads its bearer token from the session, and the
		// session acquires tokens through the client.
		var sess *session.Session
		client := whitemarket.NewClient(cfg.Market.Endpoint, func() string {
			return sess.Token()
		})
		sess = session.New(apiKey, client, creds, logger.With(slog.String("account", acc.Name)))

		inst := instance.New(instance.Config{
			Name:         acc.Name,
			Market:       client,
			Account:      client,
			Session:      sess,
			Queue:        notify.NewQueue(senders, logger.With(slog.String("account", acc.Name))),
			Audit:        deps.Purchases,
			Eval:         evaluator,
			Params:       riskParams(acc),
			FeeRate:      cfg.Market.FeeRate,
			WSURL:        cfg.Market.WSURL,
			SSEURL:       cfg.Market.SSEURL,
			PollInterval: acc.PollInterval.Duration,
			Logger:       logger,
		})
		deps.Instances = append(deps.Instances, inst)
	}

	return deps, cleanup, nil
}

func riskParams(acc config.AccountConfig) domain.RiskParams {
	return domain.RiskParams{
		MinProfitMargin: acc.MinProfitMargin,
		LiquidityFloor:  acc.LiquidityFloor,
		MinQuantity:     acc.MinQuantity,
		PriceMin:        acc.PriceMin,
		PriceMax:        acc.PriceMax,
	}
}
