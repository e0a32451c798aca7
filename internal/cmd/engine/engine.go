// Package engine wires configuration into the telemetry engine binary.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/auth/client"
	"github.com/mandelmonkey/goldenpie/internal/auth/grant"
	enginepkg "github.com/mandelmonkey/goldenpie/internal/engine"
	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/lightning"
	"github.com/mandelmonkey/goldenpie/internal/platform/config"
	"github.com/mandelmonkey/goldenpie/internal/platform/otel"
	"github.com/mandelmonkey/goldenpie/internal/push"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// Config holds engine command configuration.
type Config struct {
	Addr          string        `env:"GOLDENPIE_ENGINE_ADDR" envDefault:"localhost:3001"`
	RetroArchAddr string        `env:"GOLDENPIE_RETROARCH_ADDR" envDefault:"127.0.0.1:55355"`
	ReadTimeout   time.Duration `env:"GOLDENPIE_RETROARCH_READ_TIMEOUT" envDefault:"250ms"`
	PollInterval  time.Duration `env:"GOLDENPIE_POLL_INTERVAL" envDefault:"1s"`
	Cooldown      time.Duration `env:"GOLDENPIE_STARTUP_COOLDOWN" envDefault:"10s"`
	JumpThreshold int64         `env:"GOLDENPIE_JUMP_THRESHOLD" envDefault:"10"`

	KillAddresses     []string `env:"GOLDENPIE_KILL_ADDRESSES" envSeparator:","`
	HeadshotAddresses []string `env:"GOLDENPIE_HEADSHOT_ADDRESSES" envSeparator:","`
	DeathAddresses    []string `env:"GOLDENPIE_DEATH_ADDRESSES" envSeparator:","`

	AuthURL     string `env:"GOLDENPIE_AUTH_URL" envDefault:"http://localhost:3000"`
	GrantSecret string `env:"GOLDENPIE_AUTH_GRANT_SECRET"`

	PaymentProvider    string `env:"GOLDENPIE_PAYMENT_PROVIDER"`
	LNBitsURL          string `env:"GOLDENPIE_LNBITS_URL"`
	LNBitsAPIKey       string `env:"GOLDENPIE_LNBITS_API_KEY"`
	ZBDAPIKey          string `env:"GOLDENPIE_ZBD_API_KEY"`
	KillRewardSats     int64  `env:"GOLDENPIE_KILL_REWARD_SATS" envDefault:"1"`
	HeadshotRewardSats int64  `env:"GOLDENPIE_HEADSHOT_REWARD_SATS" envDefault:"1"`
}

// ParseConfig loads environment configuration and parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The engine API listen address")
	fs.StringVar(&cfg.RetroArchAddr, "retroarch-addr", cfg.RetroArchAddr, "The RetroArch network command address")
	fs.StringVar(&cfg.AuthURL, "auth-url", cfg.AuthURL, "The auth service base URL, empty disables login")
	fs.StringVar(&cfg.PaymentProvider, "provider", cfg.PaymentProvider, "Payment provider: lnbits, zbd, or empty for none")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run assembles and serves the engine until the context ends.
func Run(ctx context.Context, cfg Config) error {
	otelShutdown, err := otel.Setup(ctx, "goldenpie-engine")
	if err != nil {
		return fmt.Errorf("setup otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	channel := retroarch.NewChannel(cfg.RetroArchAddr, cfg.ReadTimeout)
	sampler := retroarch.NewSampler(channel, buildLayout(cfg))

	hub := push.NewHub()
	defer hub.Close()

	rewards := enginepkg.Rewards{
		retroarch.KindKill:     cfg.KillRewardSats,
		retroarch.KindHeadshot: cfg.HeadshotRewardSats,
	}
	dispatcher := enginepkg.NewDispatcher(provider, rewards, enginepkg.NewErrorLog(), hub)
	eng := enginepkg.New(enginepkg.Config{
		PollInterval:  cfg.PollInterval,
		Cooldown:      cfg.Cooldown,
		JumpThreshold: cfg.JumpThreshold,
	}, sampler, channel.Close, dispatcher, hub)
	defer eng.Stop()

	authClient, err := buildAuthClient(cfg)
	if err != nil {
		return err
	}

	api := enginepkg.NewAPI(eng, authClient, hub)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	httpServer := &http.Server{Handler: mux}

	log.Printf("engine API listening at %v", listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func buildLayout(cfg Config) retroarch.Layout {
	if len(cfg.KillAddresses) == 0 && len(cfg.HeadshotAddresses) == 0 && len(cfg.DeathAddresses) == 0 {
		return retroarch.DefaultLayout()
	}
	return retroarch.BuildLayout(cfg.KillAddresses, cfg.HeadshotAddresses, cfg.DeathAddresses)
}

func buildProvider(cfg Config) (lightning.Provider, error) {
	switch cfg.PaymentProvider {
	case "":
		log.Printf("no payment provider configured, rewards will not be paid")
		return nil, nil
	case "lnbits":
		if cfg.LNBitsURL == "" || cfg.LNBitsAPIKey == "" {
			return nil, apperrors.New(apperrors.CodePaymentNotConfigured, "lnbits provider requires GOLDENPIE_LNBITS_URL and GOLDENPIE_LNBITS_API_KEY")
		}
		return lightning.NewLNBits(cfg.LNBitsURL, cfg.LNBitsAPIKey), nil
	case "zbd":
		if cfg.ZBDAPIKey == "" {
			return nil, apperrors.New(apperrors.CodePaymentNotConfigured, "zbd provider requires GOLDENPIE_ZBD_API_KEY")
		}
		return lightning.NewZBD(cfg.ZBDAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

func buildAuthClient(cfg Config) (*client.Client, error) {
	if cfg.AuthURL == "" {
		log.Printf("auth service disabled, slots must be bound manually")
		return nil, nil
	}
	var verifier *grant.Signer
	if cfg.GrantSecret != "" {
		var err error
		verifier, err = grant.NewSigner(cfg.GrantSecret, grant.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("configure grant verifier: %w", err)
		}
	}
	return client.New(cfg.AuthURL, verifier), nil
}
