package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/demopark/accounts/internal/api"
	"github.com/demopark/accounts/internal/api/handler"
	"github.com/demopark/accounts/internal/core/ports"
	"github.com/demopark/accounts/internal/core/service"
	"github.com/demopark/accounts/internal/infrastructure/config"
	"github.com/demopark/accounts/internal/infrastructure/security"
	"github.com/demopark/accounts/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API on PORT. The account store is chosen with STORE_DRIVER;
the Redis role cache is enabled when REDIS_ADDR is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending postgres migrations before serving")

	return cmd
}

func runServe(ctx context.Context, autoMigrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadWith(ctx, lookuper)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "accounts",
		Version: version,
	})

	if autoMigrate && cfg.StoreDriver == config.DriverPostgres {
		if err := migrateUp(cfg.Postgres.URL); err != nil {
			log.Error().Err(err).Msg("migrations failed")
			return err
		}
	}

	srv, err := newServer(ctx, cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.run(ctx, net.JoinHostPort("", cfg.Port))
}

// server owns the echo instance and the connections it was built on.
type server struct {
	echo    *echo.Echo
	log     zerolog.Logger
	closers []func(context.Context) error
}

// newServer wires stores, security and services into the router. registry
// receives the HTTP metrics; nil selects the default Prometheus registry.
// logger.Init must have been called.
func newServer(ctx context.Context, cfg *config.Config, registry *prometheus.Registry) (*server, error) {
	log := logger.Get()
	s := &server{log: log}

	store, err := openStore(ctx, cfg, logger.Component("store"))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	checks := map[string]handler.Pinger{"store": store}

	var roles ports.RoleCache
	cache, client, err := openRoleCache(ctx, cfg)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	if cache != nil {
		roles = cache
		checks["redis"] = cache
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.RoleTTL).Msg("role cache enabled")
	}

	hasher, err := security.NewBcryptHasher(cfg.Password.BcryptCost)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	issuer, err := security.NewJWTIssuer(security.JWTConfig{
		Secret:    []byte(cfg.JWT.Secret),
		Algorithm: cfg.JWT.Algorithm,
		TTL:       cfg.JWT.TTL,
		Issuer:    cfg.JWT.Issuer,
	})
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	accounts := service.NewAccountService(store, hasher, roles, logger.Component("accounts"))
	auth, err := service.NewAuthService(store, hasher, accounts, issuer, logger.Component("auth"))
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	if err := accounts.BootstrapAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
		s.close(ctx)
		return nil, err
	}

	s.echo = api.NewRouter(api.Dependencies{
		Accounts: accounts,
		Auth:     auth,
		Verifier: issuer,
		Checks:   checks,
		Logger:   logger.Component("http"),
		Registry: registry,
	})
	return s, nil
}

// run serves on addr until ctx is done, then shuts down gracefully.
func (s *server) run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			s.log.Error().Err(err).Msg("http server failed")
			s.close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.echo.Shutdown(shutdownCtx)
	s.close(shutdownCtx)
	if err != nil {
		return err
	}
	s.log.Info().Msg("server stopped")
	return nil
}

func (s *server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Warn().Err(err).Msg("close failed")
		}
	}
	s.closers = nil
}
