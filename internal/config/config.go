package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"specscrape/internal/crawler"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/titanous/json5"
)

const (
	SourceAPI  = "api"
	SourceHTML = "html"

	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	ProductType     string `json:"product_type"`
	DataDir         string `json:"data_dir"`
	BatchSize       int    `json:"batch_size"`
	Source          string `json:"source"`
	SitemapURL      string `json:"sitemap_url"`
	PageInfoBase    string `json:"page_info_base"`
	UserAgent       string `json:"user_agent"`
	RequestDelayMs  int    `json:"request_delay_ms"`
	TimeoutSec      int    `json:"timeout_sec"`
	MaxRetries      int    `json:"max_retries"`
	RetryWaitMs     int    `json:"retry_wait_ms"`
	RetryMaxWaitMs  int    `json:"retry_max_wait_ms"`
	DisableBypass   bool   `json:"disable_bypass"`
	LockTTLMin      int    `json:"lock_ttl_min"`
	LogLevel        string `json:"log_level"`
	MetricsPort     string `json:"metrics_port"`
	DatabaseURL     string `json:"database_url"`
	RedisURL        string `json:"redis_url"`
	ProgressBackend string `json:"progress_backend"`

	Selectors crawler.Selectors `json:"selectors"`
}

func Default() Config {
	return Config{
		ProductType:     "mobiles",
		DataDir:         "data",
		BatchSize:       100,
		Source:          SourceAPI,
		SitemapURL:      crawler.DefaultSitemapURL,
		PageInfoBase:    crawler.DefaultPageInfoBase,
		RequestDelayMs:  1000,
		TimeoutSec:      30,
		MaxRetries:      3,
		RetryWaitMs:     2000,
		RetryMaxWaitMs:  30000,
		LockTTLMin:      120,
		LogLevel:        "info",
		ProgressBackend: BackendFile,
		Selectors:       crawler.DefaultSelectors(),
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// JSON5 file at path and its "<name>.local.<ext>" sibling, then environment
// variables (a .env file in the working directory is read first). path may
// be empty or point at a missing file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		fileCfg, err := readConfig(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

// readConfig reads name and merges name.local.<ext> over it. It returns
// fs.ErrNotExist only when neither file exists.
func readConfig(name string) (Config, error) {
	var out Config
	found := false

	b, err := os.ReadFile(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return out, err
	}
	if len(b) > 0 {
		if err := json5.Unmarshal(b, &out); err != nil {
			return out, fmt.Errorf("parse config %s: %w", name, err)
		}
		found = true
	}

	prefix, ext := splitExt(name)
	local := fmt.Sprintf("%s.local.%s", prefix, ext)
	b, err = os.ReadFile(local)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return out, err
	}
	if len(b) > 0 {
		var override Config
		if err := json5.Unmarshal(b, &override); err != nil {
			return out, fmt.Errorf("parse config %s: %w", local, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		log.WithField("local", local).Info("merging config with local overrides")
		found = true
	}

	if !found {
		return out, fs.ErrNotExist
	}
	return out, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PRODUCT_TYPE":     &cfg.ProductType,
		"DATA_DIR":         &cfg.DataDir,
		"SCRAPE_SOURCE":    &cfg.Source,
		"SITEMAP_URL":      &cfg.SitemapURL,
		"LOG_LEVEL":        &cfg.LogLevel,
		"METRICS_PORT":     &cfg.MetricsPort,
		"DATABASE_URL":     &cfg.DatabaseURL,
		"REDIS_URL":        &cfg.RedisURL,
		"PROGRESS_BACKEND": &cfg.ProgressBackend,
	}
	for k, dst := range strs {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BATCH_SIZE":       &cfg.BatchSize,
		"REQUEST_DELAY_MS": &cfg.RequestDelayMs,
		"MAX_RETRIES":      &cfg.MaxRetries,
	}
	for k, dst := range ints {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", k, err)
		}
		*dst = n
	}
	return nil
}

var productTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func (c *Config) Validate() error {
	if !productTypePattern.MatchString(c.ProductType) {
		return fmt.Errorf("invalid product type %q", c.ProductType)
	}
	switch c.Source {
	case SourceAPI, SourceHTML:
	default:
		return fmt.Errorf("invalid source %q (want %s or %s)", c.Source, SourceAPI, SourceHTML)
	}
	switch c.ProgressBackend {
	case BackendFile:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis progress backend needs REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid progress backend %q", c.ProgressBackend)
	}
	if strings.Count(c.SitemapURL, "%s") != 1 {
		return fmt.Errorf("sitemap url %q must contain exactly one %%s", c.SitemapURL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

func (c *Config) CategoryDir() string {
	return filepath.Join(c.DataDir, c.ProductType)
}

func (c *Config) CSVPath() string {
	return filepath.Join(c.CategoryDir(), c.ProductType+".csv")
}

func (c *Config) ProgressPath() string {
	return filepath.Join(c.CategoryDir(), c.ProductType+"_progress.json")
}

func (c *Config) LockPath() string {
	return filepath.Join(c.CategoryDir(), ".lock")
}

func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *Config) RetryWait() time.Duration {
	return time.Duration(c.RetryWaitMs) * time.Millisecond
}

func (c *Config) RetryMaxWait() time.Duration {
	return time.Duration(c.RetryMaxWaitMs) * time.Millisecond
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMin) * time.Minute
}
