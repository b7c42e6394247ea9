// config - источник загрузки конфигурации клиента upravdom.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения, влияющие на формат логов.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Виды хранилища токенов.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// ErrInvalidConfig — значения конфигурации не прошли проверку.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig — адрес и параметры вызовов бэкенда.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"   env:"UPRAVDOM_API_URL"     env-default:"http://localhost:3000"`
	Timeout   time.Duration `yaml:"timeout"    env:"UPRAVDOM_API_TIMEOUT" env-default:"15s"`
	UserAgent string        `yaml:"user_agent" env:"UPRAVDOM_USER_AGENT"  env-default:"upravdom-cli"`
}

// StorageConfig — где хранится пара токенов.
type StorageConfig struct {
	Kind string `yaml:"kind" env:"UPRAVDOM_STORAGE" env-default:"file"`
	// Dir — каталог для kind=file; пусто — <UserConfigDir>/upravdom.
	Dir         string `yaml:"dir"          env:"UPRAVDOM_STORAGE_DIR"`
	RedisURL    string `yaml:"redis_url"    env:"UPRAVDOM_REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"UPRAVDOM_REDIS_PREFIX" env-default:"upravdom:tokens"`
}

// MetricsConfig — выгрузка метрик gateway в textfile для node_exporter.
type MetricsConfig struct {
	// Textfile — путь к .prom файлу; пусто — метрики не выгружаются.
	Textfile string `yaml:"textfile" env:"UPRAVDOM_METRICS_TEXTFILE"`
}

// ResolveDir возвращает каталог файлового хранилища.
func (s StorageConfig) ResolveDir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve storage dir: %w", err)
	}

	return filepath.Join(base, "upravdom"), nil
}

// Validate проверяет значения после загрузки.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrInvalidConfig, c.Env)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url must be an absolute http(s) url, got %q", ErrInvalidConfig, c.API.BaseURL)
	}

	if c.API.Timeout < 0 {
		return fmt.Errorf("%w: api.timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Storage.Kind {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage.redis_url is required for kind=redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.kind %q", ErrInvalidConfig, c.Storage.Kind)
	}

	return nil
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

// Load читает конфигурацию и проверяет её.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
