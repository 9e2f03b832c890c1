// Package config loads farmledger settings from an optional .env file and
// FARMLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "FARMLEDGER_"

// Cache drivers.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

// Remote drivers. RemoteNone runs fully offline.
const (
	RemotePostgres = "postgres"
	RemoteMemory   = "memory"
	RemoteNone     = "none"
)

// Config is the resolved application configuration.
type Config struct {
	CacheDriver string
	CachePath   string

	RemoteDriver  string
	RemoteDSN     string
	RemoteTimeout time.Duration

	BlobDriver      string
	BlobFSRoot      string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	S3AccessKey     string
	S3SecretKey     string
	BackupURLExpiry time.Duration

	JWTSecret   string
	AccessToken string

	LogLevel  string
	LogFormat string

	WeatherBaseURL string
	RainCacheTTL   time.Duration
	RainCacheSize  int
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		CacheDriver:     CacheSQLite,
		CachePath:       "./farmledger.db",
		RemoteDriver:    RemoteNone,
		RemoteTimeout:   15 * time.Second,
		BlobDriver:      "fs",
		BlobFSRoot:      "./backups",
		S3Region:        "us-east-1",
		BackupURLExpiry: 15 * time.Minute,
		LogLevel:        "info",
		LogFormat:       "console",
		WeatherBaseURL:  "https://api.open-meteo.com",
		RainCacheTTL:    30 * time.Minute,
		RainCacheSize:   256,
	}
}

// Load reads files (default ".env") into the process environment without
// overriding variables already set, then resolves Config from the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves Config using lookup for each FARMLEDGER_* key.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	r := envReader{lookup: lookup}
	r.str("CACHE_DRIVER", &cfg.CacheDriver)
	r.str("CACHE_PATH", &cfg.CachePath)
	r.str("REMOTE_DRIVER", &cfg.RemoteDriver)
	r.str("REMOTE_DSN", &cfg.RemoteDSN)
	r.duration("REMOTE_TIMEOUT", &cfg.RemoteTimeout)
	r.str("BLOB_DRIVER", &cfg.BlobDriver)
	r.str("BLOB_FS_ROOT", &cfg.BlobFSRoot)
	r.str("BLOB_S3_BUCKET", &cfg.S3Bucket)
	r.str("BLOB_S3_REGION", &cfg.S3Region)
	r.str("BLOB_S3_ENDPOINT", &cfg.S3Endpoint)
	r.boolean("BLOB_S3_PATH_STYLE", &cfg.S3PathStyle)
	r.str("BLOB_S3_ACCESS_KEY", &cfg.S3AccessKey)
	r.str("BLOB_S3_SECRET_KEY", &cfg.S3SecretKey)
	r.duration("BACKUP_URL_EXPIRY", &cfg.BackupURLExpiry)
	r.str("JWT_SECRET", &cfg.JWTSecret)
	r.str("ACCESS_TOKEN", &cfg.AccessToken)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.str("LOG_FORMAT", &cfg.LogFormat)
	r.str("WEATHER_BASE_URL", &cfg.WeatherBaseURL)
	r.duration("RAIN_CACHE_TTL", &cfg.RainCacheTTL)
	r.integer("RAIN_CACHE_SIZE", &cfg.RainCacheSize)
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, cfg.Validate()
}

// Validate checks driver names and numeric bounds.
func (c Config) Validate() error {
	switch c.CacheDriver {
	case CacheSQLite, CacheMemory:
	default:
		return fmt.Errorf("%sCACHE_DRIVER: unknown driver %q", envPrefix, c.CacheDriver)
	}
	switch c.RemoteDriver {
	case RemotePostgres:
		if c.RemoteDSN == "" {
			return fmt.Errorf("%sREMOTE_DSN required for postgres", envPrefix)
		}
	case RemoteMemory, RemoteNone:
	default:
		return fmt.Errorf("%sREMOTE_DRIVER: unknown driver %q", envPrefix, c.RemoteDriver)
	}
	switch c.BlobDriver {
	case "fs", "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%sBLOB_S3_BUCKET required for s3", envPrefix)
		}
	default:
		return fmt.Errorf("%sBLOB_DRIVER: unknown driver %q", envPrefix, c.BlobDriver)
	}
	if c.RainCacheSize <= 0 {
		return fmt.Errorf("%sRAIN_CACHE_SIZE must be positive", envPrefix)
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) raw(key string) (string, bool) {
	v, ok := r.lookup(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.raw(key); ok {
		*dst = v
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.raw(key)
	if !ok || r.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = d
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.raw(key)
	if !ok || r.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.raw(key)
	if !ok || r.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
		return
	}
	*dst = b
}
