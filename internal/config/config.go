package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Oracle      OracleConfig     `mapstructure:"oracle"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// DSN returns the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds the optional status cache settings.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	Database int           `mapstructure:"database"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig holds the optional stage-event publisher settings.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// StorageConfig holds blob storage settings for uploads, preprocessing
// artifacts and trained models.
type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	ModelsDir    string `mapstructure:"models_dir"`
	MaxUploadMB  int64  `mapstructure:"max_upload_mb"`
}

// OracleConfig holds the external text-generation service settings.
type OracleConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds defaults for the modeling pipeline.
type PipelineConfig struct {
	DefaultTestSize       float64 `mapstructure:"default_test_size"`
	DefaultValidationSize float64 `mapstructure:"default_validation_size"`
	RandomState           int64   `mapstructure:"random_state"`
	CrossValidationFolds  int     `mapstructure:"cross_validation_folds"`
	IterationRounds       int     `mapstructure:"iteration_rounds"`
	PreviewRows           int     `mapstructure:"preview_rows"`
}

// MonitoringConfig holds prometheus settings.
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given YAML file (if present) and the
// environment, over the built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTOML")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Pipeline.DefaultTestSize <= 0 || c.Pipeline.DefaultTestSize >= 1 {
		return fmt.Errorf("pipeline.default_test_size must be in (0,1), got %v", c.Pipeline.DefaultTestSize)
	}
	if c.Pipeline.DefaultTestSize+c.Pipeline.DefaultValidationSize >= 1 {
		return fmt.Errorf("pipeline test_size + validation_size must be < 1")
	}
	if c.Pipeline.CrossValidationFolds < 2 {
		return fmt.Errorf("pipeline.cross_validation_folds must be >= 2, got %d", c.Pipeline.CrossValidationFolds)
	}
	if c.Oracle.Enabled && c.Oracle.Endpoint == "" {
		return fmt.Errorf("oracle.endpoint is required when oracle is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.enable_cors", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "automl")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.ttl", "30s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "automl.pipeline.events")
	v.SetDefault("kafka.batch_timeout", "1s")

	v.SetDefault("storage.upload_dir", "./data/uploads")
	v.SetDefault("storage.processed_dir", "./data/processed")
	v.SetDefault("storage.models_dir", "./data/models")
	v.SetDefault("storage.max_upload_mb", 100)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.model", "default")
	v.SetDefault("oracle.max_tokens", 2000)
	v.SetDefault("oracle.timeout", "60s")

	v.SetDefault("pipeline.default_test_size", 0.2)
	v.SetDefault("pipeline.default_validation_size", 0.0)
	v.SetDefault("pipeline.random_state", 42)
	v.SetDefault("pipeline.cross_validation_folds", 5)
	v.SetDefault("pipeline.iteration_rounds", 3)
	v.SetDefault("pipeline.preview_rows", 10)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	v.SetDefault("logging.level", "info")
}
