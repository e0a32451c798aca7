// Package authserver wires configuration into the auth service binary.
package authserver

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/auth/app"
	"github.com/mandelmonkey/goldenpie/internal/auth/grant"
	"github.com/mandelmonkey/goldenpie/internal/auth/service"
	"github.com/mandelmonkey/goldenpie/internal/platform/config"
	"github.com/mandelmonkey/goldenpie/internal/platform/otel"
	"github.com/mandelmonkey/goldenpie/internal/storage"
	"github.com/mandelmonkey/goldenpie/internal/storage/memory"
	"github.com/mandelmonkey/goldenpie/internal/storage/sqlite"
)

// Config holds auth server configuration.
type Config struct {
	Addr        string        `env:"GOLDENPIE_AUTH_ADDR" envDefault:"localhost:3000"`
	BaseURL     string        `env:"GOLDENPIE_AUTH_BASE_URL"`
	DBPath      string        `env:"GOLDENPIE_AUTH_DB_PATH"`
	SessionTTL  time.Duration `env:"GOLDENPIE_AUTH_SESSION_TTL" envDefault:"1h"`
	GrantSecret string        `env:"GOLDENPIE_AUTH_GRANT_SECRET"`
}

// ParseConfig loads environment configuration and parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The auth server listen address")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "The externally reachable base URL, defaults to http://<addr>")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path, empty keeps sessions in memory")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Addr
	}
	return cfg, nil
}

// Run assembles and serves the auth service until the context ends.
func Run(ctx context.Context, cfg Config) error {
	otelShutdown, err := otel.Setup(ctx, "goldenpie-auth")
	if err != nil {
		return fmt.Errorf("setup otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	log.Printf("session storage: %s", store.Kind())

	var signer *grant.Signer
	if cfg.GrantSecret != "" {
		signer, err = grant.NewSigner(cfg.GrantSecret, grant.DefaultTTL)
		if err != nil {
			return fmt.Errorf("configure grant signer: %w", err)
		}
	} else {
		log.Printf("no grant secret configured, status responses carry no grants")
	}

	svc := service.NewService(store, cfg.BaseURL, cfg.SessionTTL, signer)
	server, err := app.New(cfg.Addr, svc)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

func openStore(path string) (storage.SessionStore, error) {
	if path == "" {
		return memory.New(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session sqlite store: %w", err)
	}
	return store, nil
}
