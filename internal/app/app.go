package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/meishi/backend/internal/config"
	"github.com/meishi/backend/internal/db"
	"github.com/meishi/backend/internal/httpserver"
)

// Run bootstraps the meishi backend. args[0] selects serve, migrate or seed.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve", "migrate", "seed":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:])
	default:
		return runSeed(ctx, cfg, args[1:])
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: cfg.LogLevel}))
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	icons, err := openIconStorage(ctx, cfg)
	if err != nil {
		return err
	}

	deps := buildDependencies(cfg, st, icons)
	srv := httpserver.New(cfg.HTTPAddr, newHandler(deps, logger))

	logger.Info("starting http server", "addr", cfg.HTTPAddr, "store", cfg.Store)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	return srv.Drain()
}

func runMigrations(ctx context.Context, cfg config.Config, args []string) error {
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate requires the %s store, configured store is %q", config.StorePostgres, cfg.Store)
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, command); err != nil {
		return err
	}
	slog.Default().Info("migrations finished", "command", command)
	return nil
}

func runSeed(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("seed requires the %s store, configured store is %q", config.StorePostgres, cfg.Store)
	}

	seedPath, err := resolveSeedPath(cfg.SeedDir, args[0])
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedPath, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", filepath.Base(seedPath), err)
	}

	slog.Default().Info("applied seed", "seed", filepath.Base(seedPath))
	return nil
}

// resolveSeedPath maps "dev" to <dir>/dev_seed.sql. Relative directories are
// taken from the working directory.
func resolveSeedPath(dir, name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("seed name %q must not contain a path", name)
	}
	if !strings.HasSuffix(name, ".sql") {
		name = fmt.Sprintf("%s_seed.sql", name)
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}
	return filepath.Join(dir, name), nil
}
