package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"quantsignal/internal/logger"
)

const (
	DefaultPath = "configs/config.yaml"
	// EnvPath overrides the config path when no --config flag is given.
	EnvPath = "QUANTSIGNAL_CONFIG"
)

// ResolvePath picks the flag value, then $QUANTSIGNAL_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns a validated config built from defaults and environment only.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(keySet{})
	return &cfg
}

// LoadOrDefault behaves like Load but falls back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("config %s not found, using defaults", path)
		cfg := Default()
		return cfg, validate(cfg)
	}
	return Load(path)
}

// Load reads path and its include files (depth first, includes before the
// including file), applies defaults to keys the files leave unset and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	layers, err := (&includeWalker{active: map[string]bool{}, done: map[string]bool{}}).walk(abs)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	for _, l := range layers {
		if err := v.MergeConfigMap(l.settings); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", l.path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	markKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// layer 是单个配置文件去掉 include 之后的内容。
type layer struct {
	path     string
	settings map[string]any
}

type includeWalker struct {
	active map[string]bool
	done   map[string]bool
}

// walk returns the layers of path in merge order. Each file is read once;
// a file already merged through another include is skipped.
func (w *includeWalker) walk(path string) ([]layer, error) {
	path = filepath.Clean(path)
	if w.active[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil, nil
	}
	w.active[path] = true
	defer delete(w.active, path)

	settings, includes, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	var out []layer
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := w.walk(inc)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	w.done[path] = true
	return append(out, layer{path: path, settings: settings}), nil
}

func readLayer(path string) (map[string]any, []string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	settings := v.AllSettings()
	includes, err := includeList(settings["include"])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	delete(settings, "include")
	return settings, includes, nil
}

func includeList(raw any) ([]string, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// markKeys records every leaf key path ("monitor.interval") present in the
// merged settings, including explicit zero values.
func markKeys(prefix string, node any, dest keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			dest.mark(prefix)
		}
		return
	}
	for k, child := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		markKeys(key, child, dest)
	}
}
