package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/pkg/utils"
)

type claimsKey struct{}

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, claims *jwt.RegisteredClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the verified access-token claims, if any.
func ClaimsFromContext(ctx context.Context) (*jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*jwt.RegisteredClaims)
	return claims, ok
}

// Verifier checks RS256 bearer tokens against an issuer and audience.
type Verifier struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience string
	parser   *jwt.Parser
	log      *zap.Logger
}

// NewVerifier builds a Verifier. keyfunc resolves the signing key for a token.
func NewVerifier(keyfunc jwt.Keyfunc, issuer, audience string, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		keyfunc:  keyfunc,
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		log:      log.Named("jwt"),
	}
}

// Verify parses tokenString and validates signature, expiry, issuer and audience.
func (v *Verifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc); err != nil {
		return nil, err
	}
	if !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, errors.New("token audience mismatch")
	}
	return claims, nil
}

// Handler rejects requests without a valid bearer token with 401.
func (v *Verifier) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			utils.RespondError(w, http.StatusUnauthorized, "No authorization token was found")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			utils.RespondError(w, http.StatusUnauthorized, "Format is Authorization: Bearer [token]")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token expired"
			}
			v.log.Warn("token verification failed", zap.String("path", r.URL.Path), zap.Error(err))
			utils.RespondError(w, http.StatusUnauthorized, msg)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// JWKS resolves signing keys from a remote key set. The set is fetched on
// first use so startup does not depend on the identity provider.
type JWKS struct {
	url  string
	opts keyfunc.Options

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

// NewJWKS prepares a lazily fetched key set. Background refresh stops when ctx is done.
func NewJWKS(ctx context.Context, url string, log *zap.Logger) *JWKS {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWKS{
		url: url,
		opts: keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Warn("jwks refresh failed", zap.String("url", url), zap.Error(err))
			},
		},
	}
}

// Keyfunc satisfies jwt.Keyfunc.
func (k *JWKS) Keyfunc(token *jwt.Token) (interface{}, error) {
	jwks, err := k.keySet()
	if err != nil {
		return nil, err
	}
	return jwks.Keyfunc(token)
}

// keySet fetches without holding mu, so a slow identity provider does not
// queue every request behind one fetch. A failed fetch is retried on the next call.
func (k *JWKS) keySet() (*keyfunc.JWKS, error) {
	k.mu.Lock()
	jwks := k.jwks
	k.mu.Unlock()
	if jwks != nil {
		return jwks, nil
	}

	fetched, err := keyfunc.Get(k.url, k.opts)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.jwks != nil {
		fetched.EndBackground()
		return k.jwks, nil
	}
	k.jwks = fetched
	return fetched, nil
}

// Close stops background refresh.
func (k *JWKS) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.jwks != nil {
		k.jwks.EndBackground()
	}
}
