package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the evaluator service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	CORSAllowOrigins string
	AccessLog        bool
	ProxyHeader      string

	APIEnabled     bool
	ConsoleEnabled bool

	ConsoleBackendURL     string
	ConsoleRequestTimeout time.Duration
	ConsoleNoticeDelay    time.Duration
	ConsoleBearerToken    string
	// ConsoleLoopback is set when the console posts to this process's own API.
	ConsoleLoopback bool

	UploadMaxSizeMB int

	AIProvider            string
	AIModel               string
	AIMaxTokens           int
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	AzureOpenAIEndpoint   string
	AzureOpenAIKey        string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	AnthropicAPIKey       string
	GeminiAPIKey          string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	NATSSubject    string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	JWTSecret       string
	JWTHistoryRoles []string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryConfigured reports whether submission archiving is enabled.
func (c Config) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EVALUATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Evaluator")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.cors_origins", "*")
	v.SetDefault("app.access_log", true)
	v.SetDefault("api.enabled", true)
	v.SetDefault("console.enabled", true)
	v.SetDefault("console.request_timeout", "120s")
	v.SetDefault("console.notice_delay", "0s")
	v.SetDefault("upload.max_size_mb", 2)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("azure_openai_api_version", "2024-02-01")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("nats.subject", "gema.evaluations")
	v.SetDefault("cloudinary.folder", "gema/evaluations")
	v.SetDefault("jwt.history_roles", "admin,reviewer")
	v.SetDefault("rate_limit.max", 10)
	v.SetDefault("rate_limit.window", "1m")

	requestTimeout, err := parseDuration(v, "console.request_timeout")
	if err != nil {
		return Config{}, err
	}
	noticeDelay, err := parseDuration(v, "console.notice_delay")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSAllowOrigins:       v.GetString("app.cors_origins"),
		AccessLog:              v.GetBool("app.access_log"),
		ProxyHeader:            strings.TrimSpace(v.GetString("app.proxy_header")),
		APIEnabled:             v.GetBool("api.enabled"),
		ConsoleEnabled:         v.GetBool("console.enabled"),
		ConsoleBackendURL:      strings.TrimSpace(v.GetString("console.backend_url")),
		ConsoleRequestTimeout:  requestTimeout,
		ConsoleNoticeDelay:     noticeDelay,
		ConsoleBearerToken:     v.GetString("console.bearer_token"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		AIProvider:             strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		AIModel:                v.GetString("ai.model"),
		AIMaxTokens:            v.GetInt("ai.max_tokens"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:          v.GetString("openai_base_url"),
		AzureOpenAIEndpoint:    v.GetString("azure_openai_endpoint"),
		AzureOpenAIKey:         v.GetString("azure_openai_key"),
		AzureOpenAIDeployment:  v.GetString("azure_openai_deployment"),
		AzureOpenAIAPIVersion:  v.GetString("azure_openai_api_version"),
		AnthropicAPIKey:        v.GetString("anthropic_api_key"),
		GeminiAPIKey:           v.GetString("gemini_api_key"),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTHistoryRoles:        splitAndTrim(v.GetString("jwt.history_roles")),
		RateLimitMax:           v.GetInt("rate_limit.max"),
		RateLimitWindow:        rateWindow,
	}

	if cfg.ConsoleBackendURL == "" {
		cfg.ConsoleBackendURL = fmt.Sprintf("http://127.0.0.1%s/evaluate-files/", cfg.HTTPAddress())
		cfg.ConsoleLoopback = cfg.APIEnabled
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 2
	}

	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 2048
	}

	if !cfg.APIEnabled && !cfg.ConsoleEnabled {
		return Config{}, fmt.Errorf("at least one of the api or the console must be enabled")
	}

	if cfg.APIEnabled {
		if err := cfg.validateProvider(); err != nil {
			return Config{}, err
		}
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

func (c Config) validateProvider() error {
	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai api key must be provided")
		}
	case "azure":
		if c.AzureOpenAIEndpoint == "" || c.AzureOpenAIKey == "" {
			return fmt.Errorf("azure openai endpoint and key must be provided")
		}
		if c.AzureOpenAIDeployment == "" {
			return fmt.Errorf("azure openai deployment name must be provided")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic api key must be provided")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini api key must be provided")
		}
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AIProvider)
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
