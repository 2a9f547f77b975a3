package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// STORYFAB_SERVER_PORT maps to server.port.
const envPrefix = "STORYFAB"

// Load reads configuration from an optional config.yaml in the working
// directory and from environment variables. Environment variables take
// precedence. Returns a validated Config or an error.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_expiry_minutes", 60)

	v.SetDefault("llm.model_name", "gemini-1.5-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("storage.base_path", "./storage")

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.retry_delay_seconds", 5)
	v.SetDefault("task.soft_time_limit_minutes", 5)
	v.SetDefault("task.hard_time_limit_minutes", 10)
	v.SetDefault("task.image_fan_out", 4)
	v.SetDefault("task.sweep_interval_minutes", 60)
	v.SetDefault("task.failed_retention_hours", 24)
	v.SetDefault("task.stuck_task_age_minutes", 30)
	v.SetDefault("task.stuck_check_interval_minutes", 5)
}
