package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/zhouzirui/webverse/backend/internal/logger"
)

// DefaultStoryEndpoint is the hosted generation backend used when
// STORY_API_ENDPOINT is not set.
const DefaultStoryEndpoint = "https://dev-a6a5q6irm.agentuity.run/0869fb10adad5aa7841eb834eccfda58"

// Config 聚合代理服务的配置项。
type Config struct {
	Server ServerConfig
	Story  StoryConfig
	Auth   AuthConfig
	Log    LogConfig
}

// Load 从环境变量与认证配置文件加载代理配置。
// 认证配置缺失或仍为占位值时返回 *ConfigurationError。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	story, err := loadStoryConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	auth, err := LoadAuthConfig(getEnvOrDefault("AUTH_CONFIG_PATH", DefaultAuthConfigPath))
	if err != nil {
		return nil, err
	}
	if auth.AppOrigin == "" {
		auth.AppOrigin = "http://localhost:" + server.AppPort
	}

	return &Config{Server: server, Story: story, Auth: auth, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port      string `envconfig:"API_PORT" default:"3001"`
	AppPort   string `envconfig:"SERVER_PORT" default:"3000"`
	BodyLimit int64  `envconfig:"BODY_LIMIT_BYTES" default:"2097152"`
	Addr      string `ignored:"true"`
}

func loadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	addr, err := listenAddr(cfg.Port)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.Addr = addr

	if cfg.BodyLimit <= 0 {
		return ServerConfig{}, fmt.Errorf("invalid BODY_LIMIT_BYTES value %d", cfg.BodyLimit)
	}
	return cfg, nil
}

// listenAddr 解析服务器监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3001"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3001" 或 "127.0.0.1:3001"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid API_PORT value: %q", port)
	}

	return ":" + port, nil
}

// StoryConfig 描述生成后端配置。
type StoryConfig struct {
	Endpoint string        `envconfig:"STORY_API_ENDPOINT"`
	Timeout  time.Duration `envconfig:"STORY_API_TIMEOUT" default:"30s"`
}

func loadStoryConfig() (StoryConfig, error) {
	var cfg StoryConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return StoryConfig{}, fmt.Errorf("load story config: %w", err)
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultStoryEndpoint
	}
	if cfg.Timeout <= 0 {
		return StoryConfig{}, fmt.Errorf("invalid STORY_API_TIMEOUT value %s", cfg.Timeout)
	}
	return cfg, nil
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// Logger converts the env settings into logger.Config.
func (c LogConfig) Logger() logger.Config {
	return logger.Config{Level: c.Level, Encoding: c.Encoding}
}

func loadLogConfig() (LogConfig, error) {
	var cfg LogConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return LogConfig{}, fmt.Errorf("load log config: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
