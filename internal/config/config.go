package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Port            int
		FrontendURL     string
		ShutdownTimeout time.Duration
	}
	Database struct {
		URL string
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Upload struct {
		Dir          string
		MaxBytes     int64
		PublicPrefix string
	}
	Inference struct {
		BaseURL     string
		Timeout     time.Duration
		MaxAttempts int
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level      string
		Dir        string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Suppress   []string
	}
	Stats struct {
		CacheTTL    time.Duration
		RecentLimit int
	}
}

// DefaultSuppressed lists warnings printed by the TensorFlow runtime of the
// inference host that are dropped from our logs.
var DefaultSuppressed = []string{
	"oneDNN custom operations are on",
	"TF_ENABLE_ONEDNN_OPTS",
	"tensorflow/core/util/port.cc",
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config file in the working directory.
func Load() (Config, error) {
	// real environment wins over .env
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DEEPFAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.frontendurl", "http://localhost:5000")
	v.SetDefault("server.shutdowntimeout", 10*time.Second)
	v.SetDefault("database.url", "data/deepfake.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", 7*24*time.Hour)
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.maxbytes", int64(50<<20))
	v.SetDefault("upload.publicprefix", "/uploads")
	v.SetDefault("inference.baseurl", "http://localhost:8000/api")
	v.SetDefault("inference.timeout", 5*time.Minute)
	v.SetDefault("inference.maxattempts", 1)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "detections")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.maxsizemb", 100)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxagedays", 28)
	v.SetDefault("log.suppress", DefaultSuppressed)
	v.SetDefault("stats.cachettl", 30*time.Second)
	v.SetDefault("stats.recentlimit", 5)
}

// Validate reports the first setting that would prevent the server from
// running correctly.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth token ttl must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	u, err := url.Parse(c.Inference.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("inference base url %q must be absolute", c.Inference.BaseURL)
	}
	if c.Inference.MaxAttempts < 1 {
		return errors.New("inference max attempts must be at least 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// UsesPostgres reports whether the database url points at a Postgres server.
func (c Config) UsesPostgres() bool {
	u := strings.ToLower(c.Database.URL)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}
