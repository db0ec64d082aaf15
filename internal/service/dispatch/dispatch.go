package dispatch

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

	"github.com/zhouzirui/webverse/backend/internal/model/story"
)

// Kind 请求体类型
type Kind int

const (
	// KindText sends a free-text prompt as text/plain.
	KindText Kind = iota
	// KindJSON sends history plus choice as application/json.
	KindJSON
)

func (k Kind) String() string {
	if k == KindText {
		return "text"
	}
	return "json"
}

// Envelope is one outbound story request.
type Envelope struct {
	Kind    Kind
	Prompt  string
	Advance story.AdvanceRequest
}

// InitialRequest starts a story from a seed prompt.
func InitialRequest(prompt string) Envelope {
	return Envelope{Kind: KindText, Prompt: prompt}
}

// AdvanceRequest continues a story with the chosen label.
func AdvanceRequest(history []json.RawMessage, label string) Envelope {
	return Envelope{Kind: KindJSON, Advance: story.NewAdvanceRequest(history, label)}
}

// NetworkError covers unreachable proxies, timeouts and non-2xx replies.
// StatusCode is zero when no response arrived.
type NetworkError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("story request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("story request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Dispatcher posts story requests to the proxy's /api/story route.
type Dispatcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	token   func() string
	log     *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithTokenSource sends the returned access token as a bearer credential.
func WithTokenSource(token func() string) Option {
	return func(d *Dispatcher) { d.token = token }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// New creates a Dispatcher for the proxy at baseURL.
func New(baseURL string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		url:     strings.TrimSuffix(baseURL, "/") + "/api/story",
		client:  http.DefaultClient,
		timeout: 30 * time.Second,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("dispatch")
	return d
}

// Send performs one request and decodes the page. It never retries.
func (d *Dispatcher) Send(ctx context.Context, env Envelope) (*story.Page, error) {
	body, contentType, err := encode(env)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build story request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if d.token != nil {
		if token := d.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log := d.log.With(zap.String("request_id", requestID), zap.Stringer("kind", env.Kind))
	started := time.Now()

	resp, err := d.client.Do(req)
	if err != nil {
		log.Warn("story request failed", zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("story response truncated", zap.Error(err))
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("story request rejected", zap.Int("status", resp.StatusCode))
		return nil, &NetworkError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	page, err := story.DecodeResponse(data)
	if err != nil {
		log.Warn("story response malformed", zap.Error(err))
		return nil, err
	}

	log.Debug("story page received",
		zap.Int("page", page.Number),
		zap.Int("choices", len(page.Choices)),
		zap.Duration("latency", time.Since(started)),
	)
	return page, nil
}

func encode(env Envelope) ([]byte, string, error) {
	switch env.Kind {
	case KindText:
		return []byte(env.Prompt), "text/plain", nil
	case KindJSON:
		adv := env.Advance
		if adv.History == nil {
			adv.History = story.CloneHistory(nil)
		}
		data, err := json.Marshal(adv)
		if err != nil {
			return nil, "", fmt.Errorf("encode advance request: %w", err)
		}
		return data, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unknown envelope kind %d", env.Kind)
	}
}
