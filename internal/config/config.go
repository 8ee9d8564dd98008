package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Dimensions int    `mapstructure:"dimensions"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// FetchConfig tunes the headless fetch service client and its direct fallback.
type FetchConfig struct {
	Endpoint    string        `mapstructure:"endpoint"` // headless fetch service; empty enables direct fetch
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
}

// ExtractConfig tunes the LLM-backed extraction service client.
type ExtractConfig struct {
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	BatchSize int           `mapstructure:"batch_size"`
	CallDelay time.Duration `mapstructure:"call_delay"` // fixed inter-call delay, by design
	Timeout   time.Duration `mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// PipelineConfig tunes the self-continuing batch components.
type PipelineConfig struct {
	NormalizeBatchSize int           `mapstructure:"normalize_batch_size"`
	PDFBatchSize       int           `mapstructure:"pdf_batch_size"`
	EmbedBatchSize     int           `mapstructure:"embed_batch_size"`
	DownloadTimeout    time.Duration `mapstructure:"download_timeout"`
	MaxEventAttempts   int           `mapstructure:"max_event_attempts"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

type ChunkerConfig struct {
	MinTokens int `mapstructure:"min_tokens"`
	MaxTokens int `mapstructure:"max_tokens"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/catalog.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "products")
	v.SetDefault("qdrant.dimensions", 1024)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "product-files")
	v.SetDefault("fetch.batch_size", 50)
	v.SetDefault("fetch.concurrency", 3)
	v.SetDefault("fetch.page_timeout", 30*time.Second)
	v.SetDefault("extract.model", "gpt-4o-mini")
	v.SetDefault("extract.base_url", "https://api.openai.com/v1")
	v.SetDefault("extract.batch_size", 10)
	v.SetDefault("extract.call_delay", 3*time.Second)
	v.SetDefault("extract.timeout", 60*time.Second)
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("pipeline.normalize_batch_size", 100)
	v.SetDefault("pipeline.pdf_batch_size", 20)
	v.SetDefault("pipeline.embed_batch_size", 50)
	v.SetDefault("pipeline.download_timeout", 60*time.Second)
	v.SetDefault("pipeline.max_event_attempts", 3)
	v.SetDefault("pipeline.poll_interval", 2*time.Second)
	v.SetDefault("chunker.min_tokens", 50)
	v.SetDefault("chunker.max_tokens", 500)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("fetch.endpoint", "FETCH_ENDPOINT")
	v.BindEnv("extract.api_key", "OPENAI_API_KEY")
	v.BindEnv("extract.base_url", "OPENAI_BASE_URL")
	v.BindEnv("extract.model", "EXTRACT_MODEL")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ConnString returns the connection string for the configured database driver.
func (c *DatabaseConfig) ConnString() string {
	if c.Driver == "postgres" {
		return c.DSN
	}
	return c.Path
}
