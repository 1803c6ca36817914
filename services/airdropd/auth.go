package airdropd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"refdrop/native/airdrop"
)

type contextKey string

const contextKeyPrincipal contextKey = "airdropd.principal"

// PrincipalFrom returns the authenticated principal stored on ctx.
func PrincipalFrom(ctx context.Context) (airdrop.Principal, bool) {
	principal, ok := ctx.Value(contextKeyPrincipal).(airdrop.Principal)
	return principal, ok
}

func withPrincipal(ctx context.Context, principal airdrop.Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, principal)
}

// Authenticator verifies HMAC-signed bearer tokens. The subject claim is the
// caller's principal.
type Authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	logger    *slog.Logger
}

// NewAuthenticator constructs an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.ClockSkew.Duration
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret:    []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: skew,
		logger:    logger,
	}
}

// Middleware rejects requests without a valid token and stores the principal
// on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		principal, err := a.Authenticate(tokenString)
		if err != nil {
			if errors.Is(err, airdrop.ErrAnonymousCaller) {
				writeEngineError(w, err)
				return
			}
			a.logger.Warn("auth: token rejected", slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// Authenticate validates tokenString and returns its principal.
func (a *Authenticator) Authenticate(tokenString string) (airdrop.Principal, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	principal := airdrop.Principal(strings.TrimSpace(claims.Subject))
	if principal.IsAnonymous() {
		return "", airdrop.ErrAnonymousCaller
	}
	return principal, nil
}

// IssueToken signs an HS256 token for principal. Operators use it to mint
// credentials for admins, managers and the payout drainer.
func IssueToken(secret, issuer, audience string, principal airdrop.Principal, ttl time.Duration, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("hmac secret required")
	}
	if principal.IsAnonymous() {
		return "", airdrop.ErrAnonymousCaller
	}
	claims := jwt.RegisteredClaims{
		Subject:  string(principal),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
