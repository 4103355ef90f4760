// Package config layers the server's options: defaults, then an optional
// HuJSON config file, then CLI flags, with flags taking precedence over
// the file and the file taking precedence over the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config holds every option the server recognizes, including the ambient
// log level. The config file path is read from the --config flag and is
// not stored here.
type Config struct {
	Slots         int    `json:"slots"`
	Items         int    `json:"items"`
	PerItem       int    `json:"per_item"`
	LanguageModel string `json:"language_model"`
	BloomFilter   string `json:"bloom_filter"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Path          string `json:"path"`
	LogLevel      string `json:"log_level"`
}

// Default returns the server's configuration defaults.
func Default() Config {
	return Config{
		Slots:       1 << 19,
		Items:       1 << 16,
		PerItem:     2,
		BloomFilter: "bloom_filter.pickle",
		Host:        "",
		Port:        8000,
		Path:        "/",
		LogLevel:    "info",
	}
}

// Load builds a Config from defaults, an optional HuJSON file (named by the
// --config flag, if set; a named file that cannot be read or parsed is an
// error), and CLI flags parsed from args (flags win).
// args should not include the program name (e.g. pass os.Args[1:]).
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("password-oracle", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to an optional HuJSON config file")
	slots := fs.Int("slots", cfg.Slots, "number of counter cells in the deprecating sketch")
	items := fs.Int("items", cfg.Items, "queue capacity in logical items")
	perItem := fs.Int("per-item", cfg.PerItem, "hashes derived per inserted item")
	languageModel := fs.String("language-model", cfg.LanguageModel, "path to a gzipped language model file")
	bloomFilter := fs.String("bloom-filter", cfg.BloomFilter, "path to the persisted sketch file")
	host := fs.String("host", cfg.Host, "listener host")
	port := fs.Int("port", cfg.Port, "listener port")
	path := fs.String("path", cfg.Path, "URL prefix")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parsing flags: %w", err)
	}

	if *configPath != "" {
		fileCfg, err := loadFile(*configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = merge(cfg, fileCfg)
	}

	// Flags override the file (and the defaults), for every flag the user
	// actually set.
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "slots":
			cfg.Slots = *slots
		case "items":
			cfg.Items = *items
		case "per-item":
			cfg.PerItem = *perItem
		case "language-model":
			cfg.LanguageModel = *languageModel
		case "bloom-filter":
			cfg.BloomFilter = *bloomFilter
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "path":
			cfg.Path = *path
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	return cfg, Validate(cfg)
}

// Validate checks the structural constraints that must hold at startup:
// slots must exceed the queue capacity (items*perItem), and the queue
// capacity must be a multiple of perItem (the same checks
// internal/sketch.New performs, surfaced early with a
// configuration-specific message).
func Validate(cfg Config) error {
	if cfg.Slots <= 0 || cfg.Items <= 0 || cfg.PerItem <= 0 {
		return fmt.Errorf("config: slots, items, and per_item must all be positive")
	}
	queueCapacity := cfg.Items * cfg.PerItem
	if cfg.Slots <= queueCapacity {
		return fmt.Errorf("config: slots (%d) must be strictly greater than items*per_item (%d)", cfg.Slots, queueCapacity)
	}
	if queueCapacity%cfg.PerItem != 0 {
		return fmt.Errorf("config: items*per_item (%d) must be a multiple of per_item (%d)", queueCapacity, cfg.PerItem)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	return nil
}

func loadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// merge overlays non-zero fields of override onto base.
func merge(base, override Config) Config {
	if override.Slots != 0 {
		base.Slots = override.Slots
	}
	if override.Items != 0 {
		base.Items = override.Items
	}
	if override.PerItem != 0 {
		base.PerItem = override.PerItem
	}
	if override.LanguageModel != "" {
		base.LanguageModel = override.LanguageModel
	}
	if override.BloomFilter != "" {
		base.BloomFilter = override.BloomFilter
	}
	if override.Host != "" {
		base.Host = override.Host
	}
	if override.Port != 0 {
		base.Port = override.Port
	}
	if override.Path != "" {
		base.Path = override.Path
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	return base
}
