// Package config loads application configuration from a yaml file with
// environment variable overrides, backed by viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader configuration loader.
type Loader struct {
	v         *viper.Viper
	path      string
	envPrefix string
}

// NewLoader creates a loader for one config file.
// path: config file path (e.g. configs/admission.yaml)
// envPrefix: environment prefix (e.g. "APP" -> APP_ADMISSION_STORE_TYPE)
func NewLoader(path, envPrefix string) *Loader {
	return &Loader{
		v:         viper.New(),
		path:      path,
		envPrefix: envPrefix,
	}
}

// Load reads the file and enables env overrides.
// A missing file is not an error: env and defaults still apply.
func (l *Loader) Load() error {
	if l.envPrefix != "" {
		l.v.SetEnvPrefix(l.envPrefix)
		l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		l.v.AutomaticEnv()
	}

	if l.path == "" {
		return nil
	}

	l.v.SetConfigFile(l.path)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// viper wraps fs errors differently depending on how the file
		// was specified, treat "no such file" as absent too
		if strings.Contains(err.Error(), "no such file") {
			return nil
		}
		return fmt.Errorf("read config %s: %w", l.path, err)
	}

	return nil
}

// Unmarshal decodes a config section into a struct.
func (l *Loader) Unmarshal(key string, out interface{}) error {
	if key == "" {
		return l.v.Unmarshal(out)
	}
	sub := l.v.Sub(key)
	if sub == nil {
		return fmt.Errorf("config section %q not found", key)
	}
	return sub.Unmarshal(out)
}

// IsSet reports whether a key is present in file or env.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// GetString returns one string value.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set overrides one value (tests and flag binding).
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
