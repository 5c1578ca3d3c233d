package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// Config represents the application configuration.
type Config struct {
	GeminiAPIKey   string
	GeminiModel    string
	LLMProvider    string
	LocalLLMURL    string
	LocalLLMModel  string
	Host           string
	Port           int
	Environment    string
	DatabaseType   string
	DatabaseURL    string
	ImageDir       string
	CORSOrigins    []string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	LogLevel       slog.Level
}

var defaults = map[string]string{
	"GEMINI_MODEL":    "gemini-1.5-pro",
	"LLM_PROVIDER":    ProviderGemini,
	"HOST":            "0.0.0.0",
	"PORT":            "8080",
	"ENVIRONMENT":     "development",
	"DATABASE_TYPE":   "sqlite",
	"DATABASE_URL":    "pockeat.db",
	"IMAGE_DIR":       "images",
	"CORS_ORIGINS":    "*",
	"REQUEST_TIMEOUT": "45s",
	"CACHE_TTL":       "1h",
	"LOG_LEVEL":       "info",
}

var keys = []string{
	"GOOGLE_API_KEY", "GEMINI_API_KEY", "GEMINI_MODEL", "LLM_PROVIDER",
	"LOCAL_LLM_URL", "LOCAL_LLM_MODEL", "HOST", "PORT", "ENVIRONMENT",
	"DATABASE_TYPE", "DATABASE_URL", "IMAGE_DIR", "CORS_ORIGINS",
	"REQUEST_TIMEOUT", "CACHE_TTL", "LOG_LEVEL",
}

// Load builds the configuration from defaults, the optional JSON file at
// configPath, the optional dotenv file at envPath and the process
// environment, later sources overriding earlier ones. Missing files are
// skipped.
func Load(configPath, envPath string) (Config, error) {
	values := make(map[string]string, len(keys))
	for k, v := range defaults {
		values[k] = v
	}

	if configPath != "" {
		if err := readJSONFile(configPath, values); err != nil {
			return Config{}, err
		}
	}

	if envPath != "" {
		dotenv, err := godotenv.Read(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envPath, err)
		}
		for _, k := range keys {
			if v, ok := dotenv[k]; ok {
				values[k] = v
			}
		}
	}

	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			values[k] = v
		}
	}

	return parse(values)
}

// readJSONFile merges a config.json file into values. Keys are matched
// case-insensitively against the environment variable names.
func readJSONFile(path string, values map[string]string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	for k, v := range raw {
		key := strings.ToUpper(k)
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			values[key] = strings.Join(parts, ",")
		default:
			values[key] = fmt.Sprint(val)
		}
	}
	return nil
}

func parse(values map[string]string) (Config, error) {
	cfg := Config{
		GeminiAPIKey:  values["GOOGLE_API_KEY"],
		GeminiModel:   values["GEMINI_MODEL"],
		LLMProvider:   strings.ToLower(strings.TrimSpace(values["LLM_PROVIDER"])),
		LocalLLMURL:   values["LOCAL_LLM_URL"],
		LocalLLMModel: values["LOCAL_LLM_MODEL"],
		Host:          values["HOST"],
		Environment:   strings.ToLower(values["ENVIRONMENT"]),
		DatabaseType:  strings.ToLower(strings.TrimSpace(values["DATABASE_TYPE"])),
		DatabaseURL:   values["DATABASE_URL"],
		ImageDir:      values["IMAGE_DIR"],
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = values["GEMINI_API_KEY"]
	}

	switch cfg.LLMProvider {
	case ProviderGemini, ProviderLocal:
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER %q: must be %q or %q", cfg.LLMProvider, ProviderGemini, ProviderLocal)
	}

	switch cfg.DatabaseType {
	case "sqlite":
	case "postgres", "postgresql":
		cfg.DatabaseType = "postgres"
	default:
		return Config{}, fmt.Errorf("invalid DATABASE_TYPE %q: must be sqlite or postgres", cfg.DatabaseType)
	}

	port, err := strconv.Atoi(strings.TrimSpace(values["PORT"]))
	if err != nil || port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", values["PORT"])
	}
	cfg.Port = port

	if cfg.RequestTimeout, err = time.ParseDuration(values["REQUEST_TIMEOUT"]); err != nil {
		return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	if cfg.CacheTTL, err = time.ParseDuration(values["CACHE_TTL"]); err != nil {
		return Config{}, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(values["LOG_LEVEL"])); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	for _, origin := range strings.Split(values["CORS_ORIGINS"], ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
