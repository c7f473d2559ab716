package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"disputedesk/auth"
	"disputedesk/config"
	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/evidence"
	"disputedesk/logger"
	"disputedesk/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("disputedesk: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if len(args) > 0 && args[0] == "token" {
		return printToken(cfg.JWT, args[1:], stdout)
	}
	if len(args) > 0 {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return serve(ctx, cfg)
}

// printToken writes a bearer token for the given user id. Tokens are signed
// with the server's JWT_SECRET.
func printToken(cfg config.JWTConfig, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: api token <user-id>")
	}
	tokens, err := auth.NewTokens(cfg.Secret, cfg.TTL)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

func serve(ctx context.Context, cfg *config.Config) error {
	appLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()

	pool, err := db.NewPool(ctx, cfg.Database.URL, appLogger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx, pool, appLogger); err != nil {
			return err
		}
	}

	blobs, err := openBlobs(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return err
	}

	server := &Server{
		disputes: dispute.NewService(dispute.NewRepository(pool), appLogger,
			dispute.WithBlobRemover(blobs),
			dispute.WithTimeout(cfg.Database.QueryTimeout),
		),
		evidence: evidence.NewService(evidence.NewRepository(pool), blobs, cfg.Database.QueryTimeout, appLogger),
		tokens:   tokens,
		db:       pool,
		logger:   appLogger,
	}
	app := server.App(cfg.Server)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("http server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
		)
		return app.Listen(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openBlobs(ctx context.Context, cfg config.StorageConfig) (evidence.Blobs, error) {
	switch cfg.Driver {
	case "s3":
		s3, err := storage.NewS3FromEnv(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		local, err := storage.NewLocal(cfg.Dir, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}
