package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/bootstrap"
	"github.com/ittiee/liff-auth/internal/config"
	httptransport "github.com/ittiee/liff-auth/internal/http"
	"github.com/ittiee/liff-auth/internal/http/handler"
	httpmiddleware "github.com/ittiee/liff-auth/internal/http/middleware"
	apimiddleware "github.com/ittiee/liff-auth/internal/middleware"
	"github.com/ittiee/liff-auth/internal/repository"
	"github.com/ittiee/liff-auth/internal/server"
	"github.com/ittiee/liff-auth/internal/service"
	"github.com/ittiee/liff-auth/internal/session"
	"github.com/ittiee/liff-auth/internal/telemetry"
	"github.com/ittiee/liff-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newDirectory,
			newUserRepository,
			newCredentialRepository,
			newSeeder,
			newKeyManager,
			newTokenService,
			newSessionStore,
			newThrottle,
			newRateLimiter,
			service.NewAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.SeedUsers, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newDirectory() *repository.MemoryDirectory {
	return repository.NewMemoryDirectory()
}

func newUserRepository(dir *repository.MemoryDirectory) repository.UserRepository {
	return dir
}

func newCredentialRepository(dir *repository.MemoryDirectory) repository.CredentialRepository {
	return dir
}

func newSeeder(dir *repository.MemoryDirectory) repository.Seeder {
	return dir
}

func newKeyManager(cfg config.Config) (*token.KeyManager, error) {
	return token.NewKeyManager([]byte(cfg.SigningSecret))
}

func newTokenService(manager *token.KeyManager, cfg config.Config) *token.Service {
	return token.NewService(manager, cfg.AccessTokenTTL)
}

func newSessionStore(node *snowflake.Node, cfg config.Config) *session.Store {
	return session.NewStore(node, cfg.RefreshTokenTTL, cfg.RefreshTokenLength)
}

// newThrottle sheds a configured fraction of login attempts, mirroring an
// upstream gateway pushing back. A rate of 0 disables it.
func newThrottle(cfg config.Config) service.ThrottleFunc {
	if cfg.LoginThrottleRate <= 0 {
		return nil
	}
	return func() bool {
		return rand.Float64() < cfg.LoginThrottleRate
	}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
