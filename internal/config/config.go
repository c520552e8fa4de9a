// Package config loads the ebusctl daemon configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ebusctl/internal/logging"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
)

const (
	DefaultAddress   byte = 0x31
	DefaultSeparator byte = ';'
	DefaultLogLevel       = "info"
)

// Config is the resolved daemon configuration. Paths are absolute or relative
// to the working directory once loaded.
type Config struct {
	// Address is the own master address used as QQ of prepared frames.
	Address     byte
	Separator   byte
	Templates   string
	Catalog     []string
	LogLevel    string
	MetricsAddr string
}

type fileConfig struct {
	Address     string   `toml:"address"`
	Separator   string   `toml:"separator"`
	Templates   string   `toml:"templates"`
	Catalog     []string `toml:"catalog"`
	LogLevel    string   `toml:"log_level"`
	MetricsAddr string   `toml:"metrics_addr"`
}

func Default() Config {
	return Config{
		Address:   DefaultAddress,
		Separator: DefaultSeparator,
		Catalog:   []string{},
		LogLevel:  DefaultLogLevel,
	}
}

// Load overlays the keys defined in path onto Default. Relative templates and
// catalog paths are resolved against the directory of path.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}
	base := filepath.Dir(path)

	if meta.IsDefined("address") {
		addr, err := symbol.ParseAddress(strings.TrimSpace(raw.Address))
		if err != nil {
			return Config{}, fmt.Errorf("parse address: %w", err)
		}
		cfg.Address = addr
	}

	if meta.IsDefined("separator") {
		sep := raw.Separator
		if len(sep) != 1 {
			return Config{}, fmt.Errorf("parse separator: want one character, got %q", sep)
		}
		cfg.Separator = sep[0]
	}

	if meta.IsDefined("templates") {
		cfg.Templates = resolve(base, raw.Templates)
	}

	if meta.IsDefined("catalog") {
		cfg.Catalog = normalizePaths(base, raw.Catalog)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if !symbol.IsMaster(cfg.Address) {
		return fmt.Errorf("address %02x is not a master address", cfg.Address)
	}
	switch cfg.Separator {
	case 0, '\n', '\r', '"':
		return fmt.Errorf("separator %q not allowed", cfg.Separator)
	}
	if cfg.LogLevel != "" && !logging.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	if len(cfg.Catalog) == 0 && cfg.Templates == "" {
		return fmt.Errorf("catalog is required")
	}
	return nil
}

func resolve(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func normalizePaths(base string, in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		v := resolve(base, p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
