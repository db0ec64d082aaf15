package narration

import (
	"errors"
	"strings"

	narrationmodel "github.com/zhouzirui/webverse/backend/internal/model/narration"
)

// ErrCredentialMissing 表示未配置旁白服务地址或 API Key，此时不会发出请求。
var ErrCredentialMissing = errors.New("narration credential or endpoint not configured")

const defaultAPIKeyHeader = "xi-api-key"

// resolveCredentials 返回规范化后的地址、凭证头与 API Key。
func resolveCredentials(cfg narrationmodel.Config) (endpoint, header, key string, err error) {
	endpoint = strings.TrimSpace(cfg.Endpoint)
	key = strings.TrimSpace(cfg.APIKey)
	if endpoint == "" || key == "" {
		return "", "", "", ErrCredentialMissing
	}

	header = strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = defaultAPIKeyHeader
	}
	return endpoint, header, key, nil
}
