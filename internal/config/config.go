// Package config defines and loads the application configuration.
package config

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenExpiryMinutes int    `mapstructure:"token_expiry_minutes" validate:"required,gt=0"`
}

// LLMConfig contains settings for the Gemini integration.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}

// StorageConfig contains settings for generated asset storage.
type StorageConfig struct {
	BasePath string `mapstructure:"base_path" validate:"required"`
}

// TaskConfig contains settings for the background task runner and sweeper.
type TaskConfig struct {
	WorkerCount           int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize             int `mapstructure:"queue_size" validate:"required,gt=0"`
	MaxAttempts           int `mapstructure:"max_attempts" validate:"required,gt=0"`
	RetryDelaySeconds     int `mapstructure:"retry_delay_seconds" validate:"gte=1"`
	SoftTimeLimitMinutes  int `mapstructure:"soft_time_limit_minutes" validate:"gt=0"`
	HardTimeLimitMinutes  int `mapstructure:"hard_time_limit_minutes" validate:"gt=0"`
	ImageFanOut           int `mapstructure:"image_fan_out" validate:"gt=0"`
	SweepIntervalMinutes  int `mapstructure:"sweep_interval_minutes" validate:"gt=0"`
	FailedRetentionHours  int `mapstructure:"failed_retention_hours" validate:"gt=0"`
	StuckTaskAgeMinutes   int `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	StuckCheckIntervalMin int `mapstructure:"stuck_check_interval_minutes" validate:"gt=0"`
}
