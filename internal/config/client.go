package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/zhouzirui/webverse/backend/internal/model/narration"
)

// ClientConfig 描述终端客户端配置。
type ClientConfig struct {
	ProxyURL    string          `envconfig:"STORY_PROXY_URL" default:"http://localhost:3001"`
	Timeout     time.Duration   `envconfig:"STORY_CLIENT_TIMEOUT" default:"30s"`
	AccessToken string          `envconfig:"STORY_ACCESS_TOKEN"`
	SeedPrompt  string          `envconfig:"STORY_SEED_PROMPT"`
	Narration   NarrationConfig `ignored:"true"`
	Log         LogConfig       `ignored:"true"`
}

// NarrationConfig 描述旁白语音配置。缺少 API Key 时旁白功能被跳过。
type NarrationConfig struct {
	Endpoint     string        `envconfig:"NARRATION_ENDPOINT"`
	APIKey       string        `envconfig:"NARRATION_API_KEY"`
	APIKeyHeader string        `envconfig:"NARRATION_API_KEY_HEADER" default:"xi-api-key"`
	VoiceID      string        `envconfig:"NARRATION_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`
	Timeout      time.Duration `envconfig:"NARRATION_TIMEOUT" default:"30s"`
}

// Enabled 表示是否提供了旁白凭证与地址。
func (c NarrationConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Endpoint) != ""
}

// Service converts the env settings into the narration service config.
func (c NarrationConfig) Service() narration.Config {
	return narration.Config{
		Endpoint:     c.Endpoint,
		APIKey:       c.APIKey,
		APIKeyHeader: c.APIKeyHeader,
		VoiceID:      c.VoiceID,
		Timeout:      c.Timeout,
	}
}

// LoadClient 从环境变量加载客户端配置。
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load client config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Narration); err != nil {
		return nil, fmt.Errorf("load narration config: %w", err)
	}
	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log = log

	cfg.ProxyURL = strings.TrimSuffix(strings.TrimSpace(cfg.ProxyURL), "/")
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("invalid STORY_CLIENT_TIMEOUT value %s", cfg.Timeout)
	}
	return &cfg, nil
}
