package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Gateway  GatewayConfig  `mapstructure:"gateway" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects the SQL backend. The sqlite driver is used for local
// development and tests; postgres for deployed environments.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// RoleConfig routes an LLM role to a specific provider and model.
type RoleConfig struct {
	Provider string `mapstructure:"provider" validate:"omitempty,oneof=gemini openai"`
	Model    string `mapstructure:"model"`
}

// LLMConfig contains provider credentials, generation defaults and role
// routing for model calls.
type LLMConfig struct {
	Provider          string                `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	Model             string                `mapstructure:"model" validate:"required"`
	GeminiAPIKey      string                `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	OpenAIAPIKey      string                `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	OpenAIBaseURL     string                `mapstructure:"openai_base_url" validate:"omitempty,url"`
	Temperature       float64               `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int                   `mapstructure:"max_tokens" validate:"gt=0"`
	TopP              float64               `mapstructure:"top_p" validate:"gte=0,lte=1"`
	MaxRetries        int                   `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int                   `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	RequestsPerSecond float64               `mapstructure:"requests_per_second" validate:"gte=0"`
	Roles             map[string]RoleConfig `mapstructure:"roles" validate:"dive"`
}

// GatewayConfig locates the skill descriptors.
type GatewayConfig struct {
	SkillsDir string `mapstructure:"skills_dir" validate:"required"`
}

// TaskConfig tunes the background task runner.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize           int `mapstructure:"queue_size" validate:"gt=0"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	CacheSize           int `mapstructure:"cache_size" validate:"gte=0"`
}

// StorageConfig configures the local object store for uploaded images.
type StorageConfig struct {
	BasePath string `mapstructure:"base_path" validate:"required"`
	BaseURL  string `mapstructure:"base_url" validate:"required"`
}
