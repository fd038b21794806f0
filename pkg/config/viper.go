package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source describes one layered configuration: defaults, then an optional
// YAML file, then environment variables.
type Source struct {
	Dir      string // searched for Name.yaml; empty means the working directory
	Name     string
	Defaults map[string]interface{}
	// Env binds keys to explicit variable names. Every key is also reachable
	// as its upper-cased path with dots replaced by underscores.
	Env map[string]string
}

// Read assembles src into a viper instance. A missing file is not an error.
func Read(src Source) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range src.Defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range src.Env {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	dir := src.Dir
	if dir == "" {
		dir = "."
	}
	v.SetConfigName(src.Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s config: %w", src.Name, err)
		}
	}
	return v, nil
}

// Duration reads key as a Go duration string, returning fallback when the
// value is missing or malformed.
func Duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
