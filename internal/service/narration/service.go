package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	narrationmodel "github.com/zhouzirui/webverse/backend/internal/model/narration"
)

var (
	// ErrEmptyText 表示旁白文本为空
	ErrEmptyText = errors.New("narration text is empty")
	// ErrAudioTooLarge 表示音频超过 maxAudioBytes
	ErrAudioTooLarge = errors.New("narration audio exceeds size limit")
)

// maxAudioBytes 限制单次旁白音频大小
const maxAudioBytes = 20 << 20

// Service 旁白语音服务，对会话状态没有任何影响
type Service struct {
	config   narrationmodel.Config
	client   *http.Client
	maxBytes int64
	log      *zap.Logger
}

// NewService 创建旁白服务实例
func NewService(cfg narrationmodel.Config, log *zap.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		config:   cfg,
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxAudioBytes,
		log:      log.Named("narration"),
	}
}

// Enabled 表示凭证是否齐全
func (s *Service) Enabled() bool {
	_, _, _, err := resolveCredentials(s.config)
	return err == nil
}

// Narrate 文字转语音，voiceID 为空时使用默认音色
func (s *Service) Narrate(ctx context.Context, text, voiceID string) (*narrationmodel.Response, error) {
	endpoint, header, key, err := resolveCredentials(s.config)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if voiceID == "" {
		voiceID = s.config.VoiceID
	}

	payload, err := json.Marshal(narrationmodel.Request{Text: text, VoiceID: voiceID})
	if err != nil {
		return nil, fmt.Errorf("encode narration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build narration request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set(header, key)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("narration request failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("narration request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read narration audio: %w", err)
	}
	if int64(len(audio)) > s.maxBytes {
		s.log.Warn("narration audio too large", zap.String("request_id", requestID), zap.Int64("limit", s.maxBytes))
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAudioTooLarge, s.maxBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn("narration rejected",
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("narration failed with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	s.log.Debug("narration synthesized",
		zap.String("request_id", requestID),
		zap.String("voice_id", voiceID),
		zap.Int("bytes", len(audio)),
	)
	return &narrationmodel.Response{
		Audio:       audio,
		ContentType: contentType,
		VoiceID:     voiceID,
		RequestID:   requestID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
