package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	contentTypeText = "text/plain"
	contentTypeJSON = "application/json"

	// drainLimit caps how much of a discarded 404 body is read before the retry.
	drainLimit = 64 << 10
)

// ErrInvalidJSON is returned by ParseInbound for a JSON body that does not
// parse or is not an object or array.
var ErrInvalidJSON = errors.New("request body is not valid JSON")

// TransportError means the generation backend could not be reached at all.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("story backend attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Inbound is a normalized /api/story request body.
type Inbound struct {
	Text bool
	Body []byte
}

// Kind is the metrics label for the body shape.
func (in Inbound) Kind() string {
	if in.Text {
		return "text"
	}
	return "json"
}

// ParseInbound classifies a body by media type. text/* bodies are kept raw.
// JSON bodies must hold an object or array and are re-serialized. Any other
// media type, and an empty JSON body, is forwarded as {}.
func ParseInbound(contentType string, body []byte) (Inbound, error) {
	mediaType := parseMediaType(contentType)
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return Inbound{Text: true, Body: body}, nil
	case !isJSONMediaType(mediaType):
		return Inbound{Body: []byte("{}")}, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Inbound{Body: []byte("{}")}, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return Inbound{}, fmt.Errorf("%w: top-level value must be an object or array", ErrInvalidJSON)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return Inbound{Body: buf.Bytes()}, nil
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// Result is the backend response to relay. The caller must close Body.
type Result struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	Attempts    int
	Fallback    bool
}

// Options configures a Forwarder.
type Options struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
	Metrics  *Metrics
	Logger   *zap.Logger
}

// Forwarder relays story requests to the generation backend. It holds no
// per-request state and is safe for concurrent use.
type Forwarder struct {
	endpoint string
	client   *http.Client
	metrics  *Metrics
	log      *zap.Logger
}

// NewForwarder validates the endpoint and builds a Forwarder.
func NewForwarder(opts Options) (*Forwarder, error) {
	u, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid story endpoint %q", opts.Endpoint)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		// Client.Timeout also bounds reading the relayed body.
		client = &http.Client{Timeout: timeout}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Forwarder{
		endpoint: u.String(),
		client:   client,
		metrics:  opts.Metrics,
		log:      log.Named("proxy"),
	}, nil
}

type fallbackPayload struct {
	Prompt string `json:"prompt"`
}

// Forward sends in to the backend. A text body answered with 404 is retried
// exactly once as {"prompt": text}; the retry's response is returned whatever
// it is.
func (f *Forwarder) Forward(ctx context.Context, in Inbound) (*Result, error) {
	contentType := contentTypeJSON
	if in.Text {
		contentType = contentTypeText
	}

	resp, err := f.post(ctx, "initial", contentType, in.Body)
	if err != nil {
		f.metrics.observeRequest(in.Kind(), "transport_error")
		return nil, &TransportError{Attempt: 1, Err: err}
	}

	result := &Result{Attempts: 1}

	if in.Text && resp.StatusCode == http.StatusNotFound && len(in.Body) > 0 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		resp.Body.Close()

		payload, err := json.Marshal(fallbackPayload{Prompt: string(in.Body)})
		if err != nil {
			return nil, fmt.Errorf("encode fallback payload: %w", err)
		}

		f.log.Info("text prompt rejected with 404, retrying as JSON", zap.Int("prompt_bytes", len(in.Body)))
		result.Attempts = 2
		result.Fallback = true

		resp, err = f.post(ctx, "fallback", contentTypeJSON, payload)
		if err != nil {
			f.metrics.observeFallback("error")
			f.metrics.observeRequest(in.Kind(), "transport_error")
			return nil, &TransportError{Attempt: 2, Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			f.metrics.observeFallback("recovered")
		} else {
			f.metrics.observeFallback("exhausted")
			f.log.Warn("fallback exhausted", zap.Int("status", resp.StatusCode))
		}
	}

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	if result.ContentType == "" {
		result.ContentType = contentTypeJSON
	}
	result.Body = resp.Body

	f.metrics.observeRequest(in.Kind(), "relayed")
	return result, nil
}

func (f *Forwarder) post(ctx context.Context, attempt, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := f.client.Do(req)
	f.metrics.observeUpstream(attempt, started)
	if err != nil {
		f.log.Warn("story backend unreachable", zap.String("attempt", attempt), zap.Error(err))
		return nil, err
	}

	f.log.Debug("story backend responded",
		zap.String("attempt", attempt),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)
	return resp, nil
}
