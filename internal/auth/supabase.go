package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-proposals/internal/common"
)

// Verifier validates Supabase-issued access tokens signed with the shared
// project secret. Session management itself stays with the identity
// provider; this side only proves the bearer.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewVerifier constructs a Verifier from the project JWT secret.
func NewVerifier(secret, issuer, audience string, skew time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Verifier{
		Secret:    []byte(secret),
		Issuer:    strings.TrimSpace(issuer),
		Audience:  strings.TrimSpace(audience),
		ClockSkew: skew,
	}, nil
}

// Parse verifies the raw token and extracts the caller identity.
func (v *Verifier) Parse(raw string) (common.Identity, error) {
	if v == nil || len(v.Secret) == 0 {
		return common.Identity{}, errors.New("auth: verifier not configured")
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.Secret),
		jwt.WithValidate(true),
	}
	if v.Now != nil {
		now := v.Now()
		options = append(options, jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })))
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	tok, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		return common.Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	identity := common.Identity{UserID: tok.Subject()}
	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			identity.Email = strings.TrimSpace(s)
		}
	}
	if role, ok := tok.Get("role"); ok {
		if s, ok := role.(string); ok {
			identity.Role = strings.TrimSpace(s)
		}
	}
	if identity.UserID == "" {
		return common.Identity{}, errors.New("auth: token missing subject")
	}
	return identity, nil
}

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier *Verifier
}

// Authenticate attaches the identity to the request context when a valid
// token is present, without rejecting anonymous requests.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.identityFromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithIdentity(r.Context(), identity)))
	})
}

// RequireAuth enforces that a valid token is present before executing the
// next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.identityFromRequest(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) identityFromRequest(r *http.Request) (common.Identity, error) {
	if m.Verifier == nil {
		return common.Identity{}, errors.New("auth: verifier not configured")
	}
	token := bearerToken(r)
	if token == "" {
		return common.Identity{}, errNoToken
	}
	return m.Verifier.Parse(token)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
