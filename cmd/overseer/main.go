package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"overseer/internal/cli"
	"overseer/internal/config"
	"overseer/internal/gateway"
	"overseer/internal/logger"
	"overseer/internal/mission"
	"overseer/internal/research"
	"overseer/internal/session"
)

const defaultConfigPath = "overseer.yaml"

func main() {
	// Optional; keys may come from the config file instead.
	_ = godotenv.Load()

	cfgPath := os.Getenv("OVERSEER_CONFIG")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fatal Error: Could not load config:", err)
		os.Exit(1)
	}

	closeLog, err := logger.Init(cfg.Log.Level, cfg.Log.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fatal Error: Could not initialize logger:", err)
		os.Exit(1)
	}
	defer closeLog()

	store, err := session.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open session store")
	}
	defer store.Close()

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize model gateway")
	}

	opts := mission.Options{Saver: store}
	if cfg.Research.ResolveSourceTitles {
		opts.ResolveTitles = research.ResolveTitles
	}
	engine, err := mission.New(gw, cfg.RateLimit, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build mission engine")
	}

	cli.Execute(engine, store)
}

func buildGateway(cfg *config.Config) (gateway.Generator, error) {
	switch cfg.Gateway.Backend {
	case "ollama":
		return gateway.NewOllama(gateway.OllamaConfig{
			Host:  cfg.Gateway.OllamaHost,
			Model: cfg.Gateway.Model,
		})
	case "gemini":
		prefs, err := cfg.RolePrefs()
		if err != nil {
			return nil, err
		}
		return gateway.NewGemini(context.Background(), gateway.GeminiConfig{
			Credentials: cfg.Gateway.APIKeys,
			Model:       cfg.Gateway.Model,
			RolePrefs:   prefs,
		})
	}
	return nil, fmt.Errorf("unknown gateway backend %q", cfg.Gateway.Backend)
}
