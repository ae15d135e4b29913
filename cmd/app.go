package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/ai/gemini"
	"github.com/spigell/agency-onboarder/internal/ai/openai"
	"github.com/spigell/agency-onboarder/internal/checkpoint"
	"github.com/spigell/agency-onboarder/internal/filtering"
	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/logger"
	"github.com/spigell/agency-onboarder/internal/onboarding"
	"github.com/spigell/agency-onboarder/internal/scraper"
	"github.com/spigell/agency-onboarder/internal/secrets"
	"github.com/spigell/agency-onboarder/internal/storage"
)

// application holds everything a command needs, built from the config.
type application struct {
	config *Config
	logger *zap.Logger

	db           *sql.DB
	checkpoints  checkpoint.Store
	jobs         *jobs.SQLiteStore
	models       *ai.Registry
	orchestrator *onboarding.Orchestrator
	scorer       *jobs.Scorer
	prompt       string
}

// newLogger builds the logger from the persistent flags. output may be empty.
func newLogger(output string) (*zap.Logger, error) {
	return logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: output,
	})
}

func newApplication(ctx context.Context, log *zap.Logger) (*application, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a := &application{config: config, logger: log}

	if path := strings.TrimSpace(config.Storage.Path); path != "" {
		a.db, err = storage.Open(path)
		if err != nil {
			return nil, err
		}
		a.checkpoints = checkpoint.NewSQLite(a.db)
		log.Info("using sqlite storage", zap.String("path", path))
	} else {
		a.db, err = storage.OpenMemory()
		if err != nil {
			return nil, err
		}
		a.checkpoints = checkpoint.NewMemory()
		log.Warn("no storage path configured; threads and jobs live in memory only")
	}
	a.jobs = jobs.NewSQLiteStore(a.db)

	generator, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building the onboarding model: %w", err)
	}

	a.models, err = newModels(ctx, config.AI, generator, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building suitability models: %w", err)
	}

	a.orchestrator, err = onboarding.New(onboarding.Deps{
		Store:     a.checkpoints,
		Generator: generator,
		Scraper:   scraper.New(nil, log),
		Logger:    log,
	}, onboarding.Options{
		ProfileHosts:      append(append([]string{}, onboarding.DefaultProfileHosts...), config.Onboarding.ProfileHosts...),
		CompletionMessage: config.Onboarding.CompletionMessage,
		MaxLogLength:      config.AI.MaxLogLength,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.prompt, err = readPrompt(config.Suitability.PromptFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scorer = jobs.NewScorer(a.models, jobs.ScorerOptions{
		Prompt:       a.prompt,
		Concurrency:  config.Suitability.Concurrency,
		MaxLogLength: config.AI.MaxLogLength,
	}, log)

	return a, nil
}

func (a *application) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// aiFilter is the suitability step configuration shared by the CLI and the server.
func (a *application) aiFilter(enabled bool, models []string) filtering.AIConfig {
	return filtering.AIConfig{
		Enabled:      enabled,
		Models:       models,
		MinimumScore: a.config.Suitability.MinimumScore,
		Prompt:       a.prompt,
	}
}

func readPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading suitability prompt: %w", err)
	}
	return string(data), nil
}

// newGenerator builds the model the onboarding conversation runs on.
func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("ai.gemini section is required for the gemini provider")
		}
		return newGemini(ctx, cfg, ModelConfig{
			Provider:   "gemini",
			Model:      cfg.Gemini.Model,
			APIKeyFile: cfg.Gemini.APIKeyFile,
		}, cfg.Gemini.APIKey, log)
	case "openai", "deepseek":
		if cfg.OpenAI == nil {
			return nil, errors.New("ai.openai section is required for openai compatible providers")
		}
		return newOpenAI(cfg, ModelConfig{
			Provider:   provider,
			Model:      cfg.OpenAI.Model,
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyFile: cfg.OpenAI.APIKeyFile,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
		}, cfg.OpenAI.APIKey, log)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

// newModels registers every configured suitability model, or just the
// onboarding model under its own name when none are configured.
func newModels(ctx context.Context, cfg *AIConfig, fallback ai.Generator, log *zap.Logger) (*ai.Registry, error) {
	registry := ai.NewRegistry()
	if len(cfg.Models) == 0 {
		registry.Register(fallback.Model(), fallback)
		return registry, nil
	}

	for _, m := range cfg.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = m.Model
		}

		var (
			gen ai.Generator
			err error
		)
		switch strings.ToLower(strings.TrimSpace(m.Provider)) {
		case "gemini":
			inline := ""
			if cfg.Gemini != nil && m.APIKeyFile == "" {
				inline = cfg.Gemini.APIKey
				m.APIKeyFile = cfg.Gemini.APIKeyFile
			}
			gen, err = newGemini(ctx, cfg, m, inline, log)
		case "openai", "deepseek", "":
			inline := ""
			if cfg.OpenAI != nil && m.APIKeyFile == "" && m.APIKeyEnv == "" {
				inline = cfg.OpenAI.APIKey
				m.APIKeyFile = cfg.OpenAI.APIKeyFile
				m.APIKeyEnv = cfg.OpenAI.APIKeyEnv
			}
			gen, err = newOpenAI(cfg, m, inline, log)
		default:
			err = fmt.Errorf("unsupported ai provider: %s", m.Provider)
		}
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		registry.Register(name, gen)
	}
	return registry, nil
}

func newGemini(ctx context.Context, cfg *AIConfig, m ModelConfig, inline string, log *zap.Logger) (ai.Generator, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: inline,
		File:  m.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	retries := 0
	if cfg.Gemini != nil {
		retries = cfg.Gemini.MaxRetries
	}
	temperature := cfg.Temperature
	gen, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:       apiKey,
		Model:        m.Model,
		MaxRetries:   retries,
		Temperature:  &temperature,
		MaxLogLength: cfg.MaxLogLength,
	}, logger.WithModel(log, "gemini", m.Model))
	if err != nil {
		return nil, err
	}
	return ai.NewRateLimited(gen, cfg.RequestsPerMinute), nil
}

func newOpenAI(cfg *AIConfig, m ModelConfig, inline string, log *zap.Logger) (ai.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(m.Provider))
	if provider == "" {
		provider = "openai"
	}
	env := m.APIKeyEnv
	if env == "" {
		env = strings.ToUpper(provider) + "_API_KEY"
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  provider + " api key",
		Value: inline,
		File:  m.APIKeyFile,
		Env:   env,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY_FILE)", err)
	}

	retries := 0
	if cfg.OpenAI != nil {
		retries = cfg.OpenAI.MaxRetries
	}
	gen, err := openai.NewGenerator(openai.Config{
		Provider:     provider,
		APIKey:       apiKey,
		BaseURL:      m.BaseURL,
		Model:        m.Model,
		MaxRetries:   retries,
		Temperature:  cfg.Temperature,
		MaxLogLength: cfg.MaxLogLength,
	}, logger.WithModel(log, provider, m.Model))
	if err != nil {
		return nil, err
	}
	return ai.NewRateLimited(gen, cfg.RequestsPerMinute), nil
}
