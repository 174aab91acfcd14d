package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "WORKING_MEMORY_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader loads configuration from defaults, a file, the environment and
// explicit overrides, in increasing priority.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load builds a validated Config. configPath may be empty, in which case
// standard locations are probed.
func (l *Loader) Load(configPath string, overrides map[string]any) (*Config, error) {
	if err := l.k.Load(confmap.Provider(structToMap(DefaultConfig(), ""), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.loadDefaultFiles()
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

func (l *Loader) loadDefaultFiles() {
	candidates := []string{
		"working-memory.yaml",
		"working-memory.yml",
		"working-memory.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".working-memory", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path)
			return
		}
	}
}

// loadEnv maps WORKING_MEMORY_STORE__PATH to store.path.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", Delimiter)
	}), nil)
}

// Print returns the merged configuration for debugging.
func (l *Loader) Print() string {
	return l.k.Sprint()
}

// structToMap flattens a struct into dot-separated keys using its
// mapstructure tags.
func structToMap(v any, prefix string) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + Delimiter + key
		}

		fv := val.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			for k, v := range structToMap(fv.Interface(), key) {
				result[k] = v
			}
		case reflect.Map:
			// Maps of structs are flattened one level so later sources can
			// override single fields.
			iter := fv.MapRange()
			for iter.Next() {
				mk := key + Delimiter + fmt.Sprint(iter.Key().Interface())
				if iter.Value().Kind() == reflect.Struct {
					for k, v := range structToMap(iter.Value().Interface(), mk) {
						result[k] = v
					}
				} else {
					result[mk] = iter.Value().Interface()
				}
			}
		default:
			result[key] = fv.Interface()
		}
	}
	return result
}

// Load is a convenience wrapper around NewLoader().Load.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
