package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the identification and manuals engine
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Server   ServerConfig   `mapstructure:"server"`
	Identify IdentifyConfig `mapstructure:"identify"`
	Manuals  ManualsConfig  `mapstructure:"manuals"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// IdentifyConfig contains the agent pool and synthesis settings
type IdentifyConfig struct {
	Agents           map[string]AgentConfig `mapstructure:"agents"`
	SynthesisAgent   string                 `mapstructure:"synthesis_agent"`
	SynthesisTimeout time.Duration          `mapstructure:"synthesis_timeout"`
	// OverallTimeout bounds one whole identification run. Zero means
	// max agent timeout + synthesis timeout + a fixed margin.
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`
}

// AgentConfig represents a single identification provider configuration
type AgentConfig struct {
	Type        string        `mapstructure:"type"` // openai, anthropic, gemini
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Image       bool          `mapstructure:"image"`
	Text        bool          `mapstructure:"text"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// ManualsConfig contains document discovery and download settings
type ManualsConfig struct {
	Repositories    []ManualRepository `mapstructure:"repositories"`
	WebSearch       WebSearchConfig    `mapstructure:"web_search"`
	SuggestionAgent string             `mapstructure:"suggestion_agent"`
	SuggestionTTL   time.Duration      `mapstructure:"suggestion_ttl"`
	DownloadTimeout time.Duration      `mapstructure:"download_timeout"`
	MinDocumentSize int64              `mapstructure:"min_document_size"`
	MaxDocumentSize int64              `mapstructure:"max_document_size"`
	IndexPath       string             `mapstructure:"index_path"`
}

// ManualRepository is one curated manual repository searchable over HTTP.
// SearchURL must contain a single %s placeholder for the query.
type ManualRepository struct {
	Name      string `mapstructure:"name"`
	SearchURL string `mapstructure:"search_url"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FileConfig contains blob storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("hearth")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("HEARTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional - defaults plus env carry a dev setup
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")

	viper.SetDefault("server.listen", ":10080")

	viper.SetDefault("identify.synthesis_timeout", "45s")
	viper.SetDefault("identify.agents.openai.type", "openai")
	viper.SetDefault("identify.agents.openai.model", "gpt-4o")
	viper.SetDefault("identify.agents.openai.image", true)
	viper.SetDefault("identify.agents.openai.text", true)
	viper.SetDefault("identify.agents.openai.timeout", "60s")
	viper.SetDefault("identify.agents.anthropic.type", "anthropic")
	viper.SetDefault("identify.agents.anthropic.model", "claude-sonnet-4-20250514")
	viper.SetDefault("identify.agents.anthropic.image", true)
	viper.SetDefault("identify.agents.anthropic.text", true)
	viper.SetDefault("identify.agents.anthropic.timeout", "60s")
	viper.SetDefault("identify.agents.gemini.type", "gemini")
	viper.SetDefault("identify.agents.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("identify.agents.gemini.image", true)
	viper.SetDefault("identify.agents.gemini.text", true)
	viper.SetDefault("identify.agents.gemini.timeout", "60s")

	viper.SetDefault("manuals.web_search.provider", "serper")
	viper.SetDefault("manuals.web_search.max_results", 10)
	viper.SetDefault("manuals.web_search.timeout", "20s")
	viper.SetDefault("manuals.suggestion_ttl", "24h")
	viper.SetDefault("manuals.download_timeout", "30s")
	viper.SetDefault("manuals.min_document_size", 10240)
	viper.SetDefault("manuals.max_document_size", 52428800)
	viper.SetDefault("manuals.index_path", "./data/manuals.bleve")

	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.file.data_dir", "./data/manuals")
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("identify.agents.openai.api_key", apiKey)
		viper.Set("identify.agents.openai.enabled", true)
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		viper.Set("identify.agents.anthropic.api_key", apiKey)
		viper.Set("identify.agents.anthropic.enabled", true)
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		viper.Set("identify.agents.gemini.api_key", apiKey)
		viper.Set("identify.agents.gemini.enabled", true)
	}

	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		viper.Set("manuals.web_search.serper_api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		viper.Set("manuals.web_search.brave_api_key", apiKey)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		viper.Set("storage.postgres.port", port)
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	enabled := 0
	for name, agent := range config.Identify.Agents {
		if !agent.Enabled {
			continue
		}
		enabled++
		if agent.APIKey == "" {
			return fmt.Errorf("agent %q enabled without an api key", name)
		}
		if !agent.Image && !agent.Text {
			return fmt.Errorf("agent %q has no capabilities (image/text)", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one identification agent must be enabled")
	}

	if sa := config.Identify.SynthesisAgent; sa != "" {
		agent, ok := config.Identify.Agents[sa]
		if !ok || !agent.Enabled {
			return fmt.Errorf("synthesis agent %q is not an enabled agent", sa)
		}
		if !agent.Text {
			return fmt.Errorf("synthesis agent %q must be text-capable", sa)
		}
	}

	for _, repo := range config.Manuals.Repositories {
		if repo.Name == "" || !strings.Contains(repo.SearchURL, "%s") {
			return fmt.Errorf("manual repository %q needs a name and a search_url with a %%s placeholder", repo.Name)
		}
	}

	return nil
}
