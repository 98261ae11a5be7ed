package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/storage"
)

const redisPingTimeout = 5 * time.Second

// OpenStore opens the storage driver selected in cfg. The returned close
// function releases the driver's connections and is never nil.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case config.StorageMemory:
		return storage.NewMemory(), noop, nil
	case config.StorageFile:
		st, err := storage.NewFile(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case config.StorageRedis:
		client, err := bootstrap.NewRedisClient(ctx, cfg.Redis, redisPingTimeout)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Successfully connected to redis", slog.String("addr", cfg.Redis.Addr))
		return storage.NewRedis(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil
	case config.StoragePostgres:
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			return nil, noop, err
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Successfully connected to the database!")
		return storage.NewPostgres(dbPool), dbPool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenPublisher connects to NATS JetStream when enabled and makes sure the
// orders stream exists. Otherwise events are dropped.
func OpenPublisher(ctx context.Context, cfg pkgconfig.NATSConfig, logger *slog.Logger) (messaging.Publisher, func(), error) {
	if !cfg.Enabled {
		logger.Info("NATS disabled, order events will not be published")
		return messaging.NoopPublisher{}, func() {}, nil
	}
	natsConn, err := nats.NewClient(cfg.Url, cfg.Timeout)
	if err != nil {
		return nil, func() {}, err
	}
	js, err := nats.NewJetStreamContext(natsConn)
	if err != nil {
		return nil, func() {}, err
	}
	if err := nats.EnsureStream(ctx, js, messaging.OrdersStream, messaging.OrdersPlacedSubject); err != nil {
		natsConn.Close()
		return nil, func() {}, err
	}
	logger.Info("Connected to NATS JetStream", slog.String("url", cfg.Url))
	return nats.NewNatsPublisher(js), func() { _ = natsConn.Drain() }, nil
}
