package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server  ServerConfig
	Jobs    JobsConfig
	Worker  WorkerConfig
	Redis   RedisConfig
	Engine  EngineConfig
	Gemini  GeminiConfig
	Groq    GroqConfig
	Chat    ChatConfig
	Session SessionConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type JobsConfig struct {
	Dir             string
	DefaultStrategy string
}

type WorkerConfig struct {
	Driver      string // memory or asynq
	Concurrency int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EngineConfig struct {
	ServiceURL string // empty uses the built-in mock engine
	Timeout    int    // seconds
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ChatConfig struct {
	DefaultProvider string
}

type SessionConfig struct {
	Registry string // memory or redis
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GEMINI_API_KEY")
	readSecret("GROQ_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("jobs.dir", "JOBS_DIR")
	_ = viper.BindEnv("jobs.default_strategy", "JOBS_DEFAULT_STRATEGY")
	_ = viper.BindEnv("worker.driver", "WORKER_DRIVER")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("engine.service_url", "ENGINE_SERVICE_URL")
	_ = viper.BindEnv("engine.timeout", "ENGINE_TIMEOUT")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("chat.default_provider", "CHAT_DEFAULT_PROVIDER")
	_ = viper.BindEnv("session.registry", "SESSION_REGISTRY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("jobs.dir", "./audio_jobs")
	viper.SetDefault("jobs.default_strategy", "demucs")
	viper.SetDefault("worker.driver", "memory")
	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Engine defaults; an empty service URL selects the mock engine
	viper.SetDefault("engine.service_url", "")
	viper.SetDefault("engine.timeout", 300)

	// Gemini defaults
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Chat defaults
	viper.SetDefault("chat.default_provider", "gemini")
	viper.SetDefault("session.registry", "memory")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Jobs: JobsConfig{
			Dir:             viper.GetString("jobs.dir"),
			DefaultStrategy: viper.GetString("jobs.default_strategy"),
		},
		Worker: WorkerConfig{
			Driver:      viper.GetString("worker.driver"),
			Concurrency: viper.GetInt("worker.concurrency"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Engine: EngineConfig{
			ServiceURL: viper.GetString("engine.service_url"),
			Timeout:    viper.GetInt("engine.timeout"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		Chat: ChatConfig{
			DefaultProvider: viper.GetString("chat.default_provider"),
		},
		Session: SessionConfig{
			Registry: viper.GetString("session.registry"),
		},
	}

	return cfg, nil
}
