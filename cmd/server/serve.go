package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mailbox_server/internal/config"
	"mailbox_server/internal/cryptographic/signature"
	"mailbox_server/internal/protocol/auth"
	"mailbox_server/internal/protocol/message"
	"mailbox_server/internal/repository/identity"
	"mailbox_server/internal/repository/mailbox"
	"mailbox_server/internal/repository/setupkey"
	redisSvc "mailbox_server/internal/service/redis"
	"mailbox_server/internal/service/server"
	"mailbox_server/internal/session"
	"mailbox_server/internal/utils/log"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the stanza server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	identities, mailboxes, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	authenticator := auth.NewAuthenticator(
		identities,
		setupkey.NewDir(cfg.Storage.SetupKeyDir),
		signature.Verifier{},
		auth.WithTokenTTL(cfg.Session.ChallengeTTL),
	)

	srv := server.NewHttpServer(server.Options{
		Addr:           cfg.Server.Addr,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CookieName:     cfg.Session.CookieName,
		SecureCookie:   cfg.Session.SecureCookie,
		SessionIdle:    cfg.Session.IdleTimeout,
	}, sessions, authenticator, mailboxes)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run()
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case err := <-errc:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		redis, err := redisSvc.Dial(ctx, redisSvc.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := session.NewRedisStore(redis, cfg.Session.IdleTimeout, cfg.Session.RedisPrefix)
		return store, func() { redis.Close() }, nil

	default:
		store := session.NewMemoryStore(cfg.Session.IdleTimeout)
		go store.Run(ctx, cfg.Session.IdleTimeout)
		return store, func() { store.Close() }, nil
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (auth.IdentityStore, message.MailboxOpener, func(), error) {
	if cfg.Storage.Backend == config.BackendMemory {
		log.Warn("using in-memory storage, nothing survives a restart")
		return identity.NewMemoryRepo(), mailbox.NewMemoryRepo(), func() {}, nil
	}

	client, err := initMongo(ctx, cfg.Mongo)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error("disconnect mongo failed", zap.Error(err))
		}
	}

	db := client.Database(cfg.Mongo.Database)
	identities := identity.NewIdentityRepo(db)
	mailboxes := mailbox.NewMailboxRepo(client, db)

	if err := identities.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	if err := mailboxes.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return identities, mailboxes, closeFn, nil
}

func initMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
