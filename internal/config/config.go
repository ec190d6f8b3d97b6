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
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	URL      string `mapstructure:"url"`    // full postgres DSN, wins over the parts below
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path + "?_busy_timeout=5000"
}

// SchedulerConfig controls the recurring trigger. Timezone applies to every cron expression.
type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Timezone       string        `mapstructure:"timezone"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

type SyncConfig struct {
	ErrorMaxLength int `mapstructure:"error_max_length"`
	SummaryLimit   int `mapstructure:"summary_limit"`
}

type SourcesConfig struct {
	Arbor ConnectorConfig `mapstructure:"arbor"`
	Wonde ConnectorConfig `mapstructure:"wonde"`
}

type ConnectorConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	PageSize   int           `mapstructure:"page_size"`
	RetryWait  time.Duration `mapstructure:"retry_wait"`
}

// StorageConfig configures the object store that receives run reports.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
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

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("scheduler.enabled", "SYNC_SCHEDULER_ENABLED")
	v.BindEnv("scheduler.timezone", "SYNC_SCHEDULER_TIMEZONE")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("sources.arbor.base_url", "ARBOR_BASE_URL")
	v.BindEnv("sources.wonde.base_url", "WONDE_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sissync.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Europe/London")
	v.SetDefault("scheduler.reload_interval", 5*time.Minute)

	v.SetDefault("sync.error_max_length", 1000)
	v.SetDefault("sync.summary_limit", 5)

	v.SetDefault("sources.arbor.timeout", 60*time.Second)
	v.SetDefault("sources.arbor.max_retries", 3)
	v.SetDefault("sources.arbor.page_size", 200)
	v.SetDefault("sources.arbor.retry_wait", 500*time.Millisecond)
	v.SetDefault("sources.wonde.base_url", "https://api.wonde.com/v1.0")
	v.SetDefault("sources.wonde.timeout", 60*time.Second)
	v.SetDefault("sources.wonde.max_retries", 3)
	v.SetDefault("sources.wonde.page_size", 200)
	v.SetDefault("sources.wonde.retry_wait", 500*time.Millisecond)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.bucket", "sissync-reports")
	v.SetDefault("storage.prefix", "runs")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
