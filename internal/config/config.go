package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Questions QuestionsConfig `yaml:"questions"`
	Game      GameConfig      `yaml:"game"`
}

// ServerConfig holds HTTP server configuration. Only the header read and
// idle timeouts are configurable; full read/write timeouts would cut off
// long-lived websocket connections.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

// MongoConfig holds the archive database configuration
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig holds the live-store connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds host credentials and the token signing secret
type AuthConfig struct {
	HostUsername string `yaml:"host_username"`
	HostPassword string `yaml:"host_password"`
	JWTSecret    string `yaml:"jwt_secret"`
}

// QuestionsConfig holds question-generation provider settings. APIKey empty
// means the chat provider is skipped and generation goes straight to the
// trivia/fallback path.
type QuestionsConfig struct {
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	TriviaURL string `yaml:"trivia_url"`
	PerPlayer int    `yaml:"per_player"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Enabled returns true if the chat provider is configured
func (q *QuestionsConfig) Enabled() bool {
	return q.APIKey != ""
}

// GameConfig holds gameplay tunables
type GameConfig struct {
	DefaultRoom        string `yaml:"default_room"`
	TimePerQuestionSec int    `yaml:"time_per_question_sec"`
}

// Load reads configuration from a YAML file. An empty path yields pure
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv lets the usual deployment variables override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Questions.APIKey = v
	}
	if v := os.Getenv("HOST_USERNAME"); v != "" {
		c.Auth.HostUsername = v
	}
	if v := os.Getenv("HOST_PASSWORD"); v != "" {
		c.Auth.HostPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "buzzhost"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Auth.HostUsername == "" {
		c.Auth.HostUsername = "admin"
	}
	if c.Auth.HostPassword == "" {
		c.Auth.HostPassword = "password123"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "super-secret-key-change-in-production"
	}

	if c.Questions.Endpoint == "" {
		c.Questions.Endpoint = "https://api.openai.com/v1"
	}
	if c.Questions.Model == "" {
		c.Questions.Model = "gpt-4"
	}
	if c.Questions.TriviaURL == "" {
		c.Questions.TriviaURL = "https://opentdb.com/api.php"
	}
	if c.Questions.PerPlayer == 0 {
		c.Questions.PerPlayer = 5
	}
	if c.Questions.TimeoutMS == 0 {
		c.Questions.TimeoutMS = 10000
	}

	if c.Game.DefaultRoom == "" {
		c.Game.DefaultRoom = "default-game"
	}
	if c.Game.TimePerQuestionSec == 0 {
		c.Game.TimePerQuestionSec = 30
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
