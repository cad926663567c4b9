// Package config centralizes how NoteDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blob store backends.
const (
	BlobBackendDisk = "disk"
	BlobBackendS3   = "s3"
)

// Config represents runtime configuration for the API server, the worker and
// the CLI's server-side commands.
type Config struct {
	Address string
	// DatabaseURL selects the Postgres note store; empty means in-memory.
	DatabaseURL string

	BlobBackend string
	UploadDir   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	S3Bucket    string
	// S3PublicURL is the base used to build note filePath values.
	S3PublicURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AllowedOrigins    []string
	AllowedExtensions []string
	MaxFileSize       int64
	MaxFiles          int

	SessionSecret []byte
	SessionTTL    time.Duration
	SessionIssuer bool
	SignedURLTTL  time.Duration

	SweepGrace time.Duration
	SweepCron  string

	PreviewCacheSize int
	PreviewCacheTTL  time.Duration
	PreviewMaxPages  int
	PreviewMaxBytes  int64

	LogLevel  slog.Level
	LogFormat string
}

const (
	defaultAddress           = ":5000"
	defaultUploadDir         = "uploads"
	defaultS3Endpoint        = "localhost:9000"
	defaultS3Region          = "us-east-1"
	defaultS3Bucket          = "notes-app"
	defaultRedisAddr         = "localhost:6379"
	defaultAllowedOrigins    = "http://localhost:3000,http://localhost:5173"
	defaultAllowedExtensions = ".jpg,.jpeg,.pdf,.docx"
	defaultMaxFileSize       = 500 << 20 // 500 MiB
	defaultMaxFiles          = 10
	defaultSessionTTL        = 7 * 24 * time.Hour
	defaultSignedTTL         = 5 * time.Minute
	defaultSweepGrace        = time.Hour
	defaultSweepCron         = "@every 1h"
	defaultPreviewCacheSize  = 128
	defaultPreviewCacheTTL   = 10 * time.Minute
	defaultPreviewMaxPages   = 50
	defaultPreviewMaxBytes   = 20 << 20
)

// Load reads configuration from environment variables falling back to
// defaults. A .env file in the working directory is applied first when one
// exists; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:           address(),
		DatabaseURL:       readEnv("NOTEDROP_DATABASE_URL", ""),
		BlobBackend:       strings.ToLower(readEnv("NOTEDROP_BLOB_BACKEND", BlobBackendDisk)),
		UploadDir:         readEnv("NOTEDROP_UPLOAD_DIR", defaultUploadDir),
		S3Endpoint:        readEnv("NOTEDROP_S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey:       readEnv("NOTEDROP_S3_ACCESS_KEY", ""),
		S3SecretKey:       readEnv("NOTEDROP_S3_SECRET_KEY", ""),
		S3Region:          readEnv("NOTEDROP_S3_REGION", defaultS3Region),
		S3UseSSL:          parseBool("NOTEDROP_S3_USE_SSL", false),
		S3Bucket:          readEnv("NOTEDROP_S3_BUCKET", defaultS3Bucket),
		S3PublicURL:       strings.TrimSuffix(readEnv("NOTEDROP_S3_PUBLIC_URL", ""), "/"),
		RedisAddr:         readEnv("NOTEDROP_REDIS_ADDR", defaultRedisAddr),
		RedisPassword:     readEnv("NOTEDROP_REDIS_PASSWORD", ""),
		RedisDB:           parseInt("NOTEDROP_REDIS_DB", 0),
		AllowedOrigins:    parseList("NOTEDROP_ALLOWED_ORIGINS", defaultAllowedOrigins),
		AllowedExtensions: parseList("NOTEDROP_ALLOWED_EXTENSIONS", defaultAllowedExtensions),
		MaxFileSize:       parseInt64("NOTEDROP_MAX_FILE_BYTES", defaultMaxFileSize),
		MaxFiles:          parseInt("NOTEDROP_MAX_FILES", defaultMaxFiles),
		SessionSecret:     parseSecret("NOTEDROP_SESSION_SECRET"),
		SessionTTL:        parseDuration("NOTEDROP_SESSION_TTL", defaultSessionTTL),
		SessionIssuer:     parseBool("NOTEDROP_SESSION_ISSUER", true),
		SignedURLTTL:      parseDuration("NOTEDROP_SIGNED_TTL", defaultSignedTTL),
		SweepGrace:        parseDuration("NOTEDROP_SWEEP_GRACE", defaultSweepGrace),
		SweepCron:         readEnv("NOTEDROP_SWEEP_CRON", defaultSweepCron),
		PreviewCacheSize:  parseInt("NOTEDROP_PREVIEW_CACHE_SIZE", defaultPreviewCacheSize),
		PreviewCacheTTL:   parseDuration("NOTEDROP_PREVIEW_CACHE_TTL", defaultPreviewCacheTTL),
		PreviewMaxPages:   parseInt("NOTEDROP_PREVIEW_MAX_PAGES", defaultPreviewMaxPages),
		PreviewMaxBytes:   parseInt64("NOTEDROP_PREVIEW_MAX_BYTES", defaultPreviewMaxBytes),
		LogFormat:         strings.ToLower(readEnv("NOTEDROP_LOG_FORMAT", "text")),
	}

	level, err := parseLevel(readEnv("NOTEDROP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	switch cfg.BlobBackend {
	case BlobBackendDisk:
	case BlobBackendS3:
		if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return nil, fmt.Errorf("NOTEDROP_BLOB_BACKEND=s3 requires NOTEDROP_S3_ACCESS_KEY and NOTEDROP_S3_SECRET_KEY")
		}
		if cfg.S3PublicURL == "" {
			scheme := "http"
			if cfg.S3UseSSL {
				scheme = "https"
			}
			cfg.S3PublicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.S3Endpoint, cfg.S3Bucket)
		}
	default:
		return nil, fmt.Errorf("NOTEDROP_BLOB_BACKEND: unknown backend %q (want disk or s3)", cfg.BlobBackend)
	}

	if cfg.SessionSecret == nil {
		cfg.SessionSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.SweepGrace <= 0 {
		cfg.SweepGrace = defaultSweepGrace
	}
	if cfg.PreviewCacheSize <= 0 {
		cfg.PreviewCacheSize = defaultPreviewCacheSize
	}
	if cfg.PreviewMaxPages <= 0 {
		cfg.PreviewMaxPages = defaultPreviewMaxPages
	}
	if cfg.PreviewMaxBytes <= 0 {
		cfg.PreviewMaxBytes = defaultPreviewMaxBytes
	}
	for i, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(ext)
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.AllowedExtensions[i] = ext
	}
	return cfg, nil
}

// MaxUploadBytes bounds a whole multipart request.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxFileSize*int64(c.MaxFiles) + 1<<20
}

// SetupLogger builds the process logger from LogLevel and LogFormat.
func SetupLogger(cfg *Config) *slog.Logger {
	return NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
}

// NewLogger builds a slog logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// address honours the PORT convention used by most PaaS hosts.
func address() string {
	if v, ok := os.LookupEnv("NOTEDROP_ADDRESS"); ok && v != "" {
		return v
	}
	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		return ":" + port
	}
	return defaultAddress
}

func parseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("NOTEDROP_LOG_LEVEL: unknown level %q", v)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	raw := strings.Split(val, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random session secret: %v", err))
	}
	return buf
}
