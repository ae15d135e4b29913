package cmd

import (
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "agency-onboarder"
)

type Config struct {
	AI          *AIConfig          `mapstructure:"ai"`
	Onboarding  *OnboardingConfig  `mapstructure:"onboarding"`
	Storage     *StorageConfig     `mapstructure:"storage"`
	Server      *ServerConfig      `mapstructure:"server"`
	Suitability *SuitabilityConfig `mapstructure:"suitability"`
	ExcludeFile string             `mapstructure:"exclude-file"`
}

type AIConfig struct {
	Provider          string        `mapstructure:"provider"`
	Temperature       float32       `mapstructure:"temperature"`
	RequestsPerMinute int           `mapstructure:"requests-per-minute"`
	MaxLogLength      int           `mapstructure:"max-log-length"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
	OpenAI            *OpenAIConfig `mapstructure:"openai"`
	// Models are the named models suitability analysis may use. When empty
	// the onboarding model is the only one.
	Models []ModelConfig `mapstructure:"models"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	APIKeyEnv  string `mapstructure:"api-key-env"`
	BaseURL    string `mapstructure:"base-url"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type ModelConfig struct {
	Name       string `mapstructure:"name"`
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
	APIKeyFile string `mapstructure:"api-key-file"`
	APIKeyEnv  string `mapstructure:"api-key-env"`
}

type OnboardingConfig struct {
	ProfileHosts      []string `mapstructure:"profile-hosts"`
	CompletionMessage string   `mapstructure:"completion-message"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	AllowedOrigin string `mapstructure:"allowed-origin"`
}

type SuitabilityConfig struct {
	PromptFile   string `mapstructure:"prompt-file"`
	MinimumScore int    `mapstructure:"minimum-score"`
	Concurrency  int    `mapstructure:"concurrency"`
	// Filter turns on the ai_suitability step of the job feed.
	Filter bool `mapstructure:"filter"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "agency-onboarder learns what an agency wants from a chat and filters its job feed with it",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"ai.openai.api-key-file": "OPENAI_API_KEY_FILE",
		"storage.path":           "ONBOARDER_STORAGE_PATH",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.requests-per-minute", 60)
	viper.SetDefault("ai.max-log-length", 200)
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.max-retries", 3)
	viper.SetDefault("server.listen", ":8000")
	viper.SetDefault("server.allowed-origin", "http://localhost:3000")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is agency-onboarder.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("exclude-file", "e", "", "special file with jobs to exclude. Default is unset.")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("exclude-file", rootCmd.PersistentFlags().Lookup("exclude-file"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	// .env only fills variables that are not set yet.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every setting has a default, so only an explicit config file is mandatory.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.Onboarding == nil {
		config.Onboarding = &OnboardingConfig{}
	}
	if config.Storage == nil {
		config.Storage = &StorageConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Suitability == nil {
		config.Suitability = &SuitabilityConfig{}
	}

	return config, nil
}
