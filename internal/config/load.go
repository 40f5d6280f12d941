package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TIPTORO"

// defaults lists every scalar key with its default value. Registering a
// default also makes the key visible to viper's environment lookup.
var defaults = map[string]any{
	"server.port":                 8080,
	"server.log_level":            "info",
	"database.driver":             "sqlite",
	"database.url":                "file:tiptoro.db?_pragma=foreign_keys(1)",
	"database.max_open_conns":     10,
	"auth.jwt_secret":             "",
	"auth.token_lifetime_minutes": 7 * 24 * 60,
	"auth.bcrypt_cost":            10,
	"llm.provider":                "gemini",
	"llm.model":                   "gemini-2.0-flash",
	"llm.gemini_api_key":          "",
	"llm.openai_api_key":          "",
	"llm.openai_base_url":         "",
	"llm.temperature":             0.2,
	"llm.max_tokens":              2048,
	"llm.top_p":                   0.95,
	"llm.max_retries":             3,
	"llm.retry_delay_seconds":     2,
	"llm.requests_per_second":     0,
	"gateway.skills_dir":          "skills",
	"task.worker_count":           2,
	"task.queue_size":             100,
	"task.stuck_task_age_minutes": 30,
	"task.cache_size":             512,
	"storage.base_path":           "data/uploads",
	"storage.base_url":            "/files",
}

// Load reads configuration from an optional config file and environment
// variables, with environment variables taking precedence.
//
// The file is taken from TIPTORO_CONFIG_FILE when set, otherwise config.yaml
// in the working directory is used if present.
func Load() (*Config, error) {
	path := os.Getenv(EnvPrefix + "_CONFIG_FILE")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return LoadFile(path)
}

// LoadFile is like Load but reads the config file at path. An empty path
// means environment variables and defaults only.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("config validation failed: %s", strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
