package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	contentType string
	body        string
}

type backend struct {
	mu    sync.Mutex
	calls []recordedCall
	reply func(n int, call recordedCall, w http.ResponseWriter)
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	call := recordedCall{contentType: r.Header.Get("Content-Type"), body: string(data)}

	b.mu.Lock()
	b.calls = append(b.calls, call)
	n := len(b.calls)
	b.mu.Unlock()

	b.reply(n, call, w)
}

func (b *backend) recorded() []recordedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedCall(nil), b.calls...)
}

func newForwarder(t *testing.T, b *backend) (*Forwarder, *Metrics) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	metrics := NewMetrics(prometheus.NewRegistry())
	fwd, err := NewForwarder(Options{Endpoint: srv.URL, Metrics: metrics})
	require.NoError(t, err)
	return fwd, metrics
}

func readAll(t *testing.T, res *Result) string {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(data)
}

func TestParseInbound(t *testing.T) {
	in, err := ParseInbound("text/plain; charset=utf-8", []byte("a brave knight"))
	require.NoError(t, err)
	assert.True(t, in.Text)
	assert.Equal(t, "a brave knight", string(in.Body))

	in, err = ParseInbound("text/markdown", []byte("# hi"))
	require.NoError(t, err)
	assert.True(t, in.Text)

	in, err = ParseInbound("application/json", []byte(" {\n \"history\": [ ], \"choice\": \"Go left\" } "))
	require.NoError(t, err)
	assert.False(t, in.Text)
	assert.Equal(t, `{"history":[],"choice":"Go left"}`, string(in.Body))

	in, err = ParseInbound("application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(in.Body))

	in, err = ParseInbound("application/vnd.story+json", []byte(`[1, 2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(in.Body))

	_, err = ParseInbound("application/json", []byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestParseInboundRejectsJSONScalars(t *testing.T) {
	for _, body := range []string{`"x"`, `1`, `null`, ` true `} {
		_, err := ParseInbound("application/json", []byte(body))
		assert.ErrorIs(t, err, ErrInvalidJSON, body)
	}
}

func TestParseInboundOtherMediaTypesBecomeEmptyObject(t *testing.T) {
	cases := map[string]string{
		"application/x-www-form-urlencoded": "a=b",
		"application/octet-stream":          "\x00\x01",
		"":                                  `{"a":1}`,
		"not a media type;;":                "whatever",
	}
	for contentType, body := range cases {
		in, err := ParseInbound(contentType, []byte(body))
		require.NoError(t, err, contentType)
		assert.False(t, in.Text, contentType)
		assert.Equal(t, "{}", string(in.Body), contentType)
	}
}

func TestForwardTextFallbackOn404(t *testing.T) {
	b := &backend{reply: func(n int, call recordedCall, w http.ResponseWriter) {
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such route"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"writer":{}}`))
	}}
	fwd, metrics := newForwarder(t, b)

	res, err := fwd.Forward(context.Background(), Inbound{Text: true, Body: []byte("a brave knight")})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Fallback)
	assert.Equal(t, `{"writer":{}}`, readAll(t, res))

	calls := b.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "text/plain", calls[0].contentType)
	assert.Equal(t, "a brave knight", calls[0].body)
	assert.Equal(t, "application/json", calls[1].contentType)
	assert.JSONEq(t, `{"prompt":"a brave knight"}`, calls[1].body)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fallbacks.WithLabelValues("recovered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("text", "relayed")))
}

func TestForwardRetriesOnlyOnce(t *testing.T) {
	b := &backend{reply: func(n int, call recordedCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing"}`))
	}}
	fwd, metrics := newForwarder(t, b)

	res, err := fwd.Forward(context.Background(), Inbound{Text: true, Body: []byte("hello")})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, `{"error":"missing"}`, readAll(t, res))
	assert.Len(t, b.recorded(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fallbacks.WithLabelValues("exhausted")))
}

func TestForwardNoFallback(t *testing.T) {
	cases := []struct {
		name string
		in   Inbound
	}{
		{name: "json body", in: Inbound{Body: []byte(`{"history":[],"choice":"x"}`)}},
		{name: "empty text", in: Inbound{Text: true, Body: nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &backend{reply: func(n int, call recordedCall, w http.ResponseWriter) {
				w.WriteHeader(http.StatusNotFound)
			}}
			fwd, _ := newForwarder(t, b)

			res, err := fwd.Forward(context.Background(), tc.in)
			require.NoError(t, err)
			readAll(t, res)

			assert.Equal(t, http.StatusNotFound, res.StatusCode)
			assert.Equal(t, 1, res.Attempts)
			assert.False(t, res.Fallback)
			assert.Len(t, b.recorded(), 1)
		})
	}
}

func TestForwardRelaysStatusAndBytes(t *testing.T) {
	payload := []byte{0x7b, 0x22, 0x78, 0x22, 0x3a, 0x22, 0xe2, 0x9c, 0x93, 0x22, 0x7d}
	b := &backend{reply: func(n int, call recordedCall, w http.ResponseWriter) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(payload)
	}}
	fwd, _ := newForwarder(t, b)

	res, err := fwd.Forward(context.Background(), Inbound{Body: []byte(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "application/json", res.ContentType)
	assert.Equal(t, string(payload), readAll(t, res))
}

func TestForwardKeepsBackendContentType(t *testing.T) {
	b := &backend{reply: func(n int, call recordedCall, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}}
	fwd, _ := newForwarder(t, b)

	res, err := fwd.Forward(context.Background(), Inbound{Text: true, Body: []byte("x")})
	require.NoError(t, err)
	readAll(t, res)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestForwardTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	metrics := NewMetrics(prometheus.NewRegistry())
	fwd, err := NewForwarder(Options{Endpoint: endpoint, Metrics: metrics})
	require.NoError(t, err)

	_, err = fwd.Forward(context.Background(), Inbound{Body: []byte(`{}`)})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 1, transportErr.Attempt)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("json", "transport_error")))
}

func TestNewForwarderRejectsBadEndpoint(t *testing.T) {
	_, err := NewForwarder(Options{Endpoint: "not a url"})
	assert.Error(t, err)

	_, err = NewForwarder(Options{Endpoint: ""})
	assert.Error(t, err)
}
