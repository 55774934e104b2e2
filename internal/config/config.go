package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Reindex   ReindexConfig   `mapstructure:"reindex"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Events    EventsConfig    `mapstructure:"events"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read-timeout"`
	WriteTimeout  time.Duration `mapstructure:"write-timeout"`
	MaxFileSizeMB int64         `mapstructure:"max-file-size-mb"`
	SwaggerURL    string        `mapstructure:"swagger-url"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// DatabaseConfig selects the canonical store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type IndexConfig struct {
	Backend     string `mapstructure:"backend"` // memory, sqlite, postgres
	SQLitePath  string `mapstructure:"sqlite-path"`
	KeywordPath string `mapstructure:"keyword-path"` // empty keeps the keyword index in memory
}

type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"` // hash, ollama, openai, gemini
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base-url"`
	APIKey      string        `mapstructure:"api-key"`
	Dimensions  int           `mapstructure:"dimensions"`
	RateLimit   float64       `mapstructure:"rate-limit"` // requests per second, 0 disables
	Burst       int           `mapstructure:"burst"`
	MaxRetries  int           `mapstructure:"max-retries"`
	InitialWait time.Duration `mapstructure:"initial-wait"`
	MaxWait     time.Duration `mapstructure:"max-wait"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"` // none, openai, ollama, groq, gemini
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api-key"`
}

// IdentityConfig tunes identity resolution. DefaultRegion is the ISO 3166
// region phone numbers without a country code are read in.
type IdentityConfig struct {
	DefaultRegion string `mapstructure:"default-region"`
}

type IngestConfig struct {
	IndexMode         string `mapstructure:"index-mode"` // sync, async
	QueueSize         int    `mapstructure:"queue-size"`
	MaxAttempts       int    `mapstructure:"max-attempts"`
	IdentityAmbiguity string `mapstructure:"identity-ambiguity"` // new, reject
}

type ReindexConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type BlobConfig struct {
	Backend   string `mapstructure:"backend"` // none, local, s3
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access-key"`
	SecretKey string `mapstructure:"secret-key"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp-url"`
	Exchange string `mapstructure:"exchange"`
}

// legacyEnv maps config keys to the environment variables the service has always read.
var legacyEnv = map[string][]string{
	"database.url":            {"DATABASE_URL"},
	"server.port":             {"PORT"},
	"blob.dir":                {"UPLOADS_DIR"},
	"blob.bucket":             {"R2_BUCKET"},
	"blob.access-key":         {"R2_ACCESS_KEY"},
	"blob.secret-key":         {"R2_SECRET_KEY"},
	"blob.endpoint":           {"R2_ENDPOINT"},
	"llm.provider":            {"LLM_PROVIDER"},
	"llm.model":               {"LLM_MODEL"},
	"llm.api-key":             {"LLM_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY"},
	"embedding.provider":      {"EMBEDDING_PROVIDER"},
	"embedding.model":         {"EMBEDDING_MODEL"},
	"embedding.api-key":       {"EMBEDDING_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
	"events.amqp-url":         {"RABBITMQ_URL"},
	"identity.default-region": {"PHONE_REGION"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read-timeout", 30*time.Second)
	v.SetDefault("server.write-timeout", 5*time.Minute)
	v.SetDefault("server.max-file-size-mb", 10)
	v.SetDefault("server.swagger-url", "http://localhost:8080/swagger/doc.json")

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	v.SetDefault("database.url", "")

	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.sqlite-path", "./data/index.db")
	v.SetDefault("index.keyword-path", "")

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base-url", "")
	v.SetDefault("embedding.api-key", "")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.rate-limit", 5.0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("embedding.max-retries", 3)
	v.SetDefault("embedding.initial-wait", 500*time.Millisecond)
	v.SetDefault("embedding.max-wait", 10*time.Second)
	v.SetDefault("embedding.timeout", 60*time.Second)

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api-key", "")

	v.SetDefault("identity.default-region", "US")

	v.SetDefault("ingest.index-mode", "sync")
	v.SetDefault("ingest.queue-size", 100)
	v.SetDefault("ingest.max-attempts", 3)
	v.SetDefault("ingest.identity-ambiguity", "new")

	v.SetDefault("reindex.concurrency", 4)

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.dir", "./uploads")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.region", "auto")
	v.SetDefault("blob.access-key", "")
	v.SetDefault("blob.secret-key", "")

	v.SetDefault("events.amqp-url", "")
	v.SetDefault("events.exchange", "talent.audit")
}

// New returns a viper instance with defaults, env bindings and the optional config file.
func New(cfgFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("talent-match")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

// Decode unmarshals a prepared viper instance into Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads .env, environment and the optional config file into a Config.
func Load(cfgFile string) (*Config, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

func (c *Config) Validate() error {
	switch c.Ingest.IndexMode {
	case "sync", "async":
	default:
		return fmt.Errorf("ingest.index-mode must be sync or async, got %q", c.Ingest.IndexMode)
	}
	switch c.Ingest.IdentityAmbiguity {
	case "new", "reject":
	default:
		return fmt.Errorf("ingest.identity-ambiguity must be new or reject, got %q", c.Ingest.IdentityAmbiguity)
	}
	switch c.Index.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("index.backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown index.backend %q", c.Index.Backend)
	}
	if c.Reindex.Concurrency < 1 {
		c.Reindex.Concurrency = 1
	}
	if c.Ingest.MaxAttempts < 1 {
		c.Ingest.MaxAttempts = 1
	}
	if c.Server.MaxFileSizeMB <= 0 {
		c.Server.MaxFileSizeMB = 10
	}
	return nil
}
