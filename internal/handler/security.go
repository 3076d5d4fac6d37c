package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/authorstore/internal/domain/auth"
)

var errUnauthorized = errors.New("unauthorized")

const (
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "Bearer "
)

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWTSecret verifies HS256 session tokens issued by the hosted auth
	// provider. Bearer tokens are rejected when empty.
	JWTSecret []byte
	// Audience is the expected "aud" claim. Not checked when empty.
	Audience string
	// APIKeyPepper is the HMAC key used to hash back-office API keys.
	APIKeyPepper []byte
}

// Authenticator resolves the caller identity from a session token or an
// admin API key.
type Authenticator struct {
	cfg     AuthConfig
	apikeys auth.APIKeyRepository
	parser  *jwt.Parser
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig, apikeys auth.APIKeyRepository) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:     cfg,
		apikeys: apikeys,
		parser:  jwt.NewParser(opts...),
	}
}

// sessionClaims are the claims of a hosted-auth session token. The role may
// be carried at the top level or inside app_metadata.
type sessionClaims struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Middleware attaches the caller identity to the request context. Requests
// without credentials pass through anonymously; invalid credentials are
// rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			id  *auth.Identity
			err error
		)
		switch {
		case r.Header.Get(apiKeyHeader) != "":
			id, err = a.apiKeyIdentity(r)
		case strings.HasPrefix(r.Header.Get("Authorization"), bearerPrefix):
			id, err = a.sessionIdentity(strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix))
		default:
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeFailure(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (a *Authenticator) sessionIdentity(raw string) (*auth.Identity, error) {
	if len(a.cfg.JWTSecret) == 0 {
		return nil, errors.Wrap(errUnauthorized, "session tokens disabled")
	}
	var claims sessionClaims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.cfg.JWTSecret, nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse session token")
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(errUnauthorized, "missing subject")
	}

	role := claims.AppMetadata.Role
	if role == "" {
		role = claims.Role
	}
	return &auth.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// apiKeyIdentity authenticates a request by computing the HMAC-SHA256 of the
// provided API key, looking it up in the repository and comparing the hashes
// in constant time.
func (a *Authenticator) apiKeyIdentity(r *http.Request) (*auth.Identity, error) {
	hash := HashAPIKey(a.cfg.APIKeyPepper, r.Header.Get(apiKeyHeader))

	info, err := a.apikeys.FindByHash(r.Context(), hash)
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(errUnauthorized, "stored hash")
	}
	computed, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errUnauthorized
	}

	return &auth.Identity{KeyID: info.ID, Scopes: info.Scopes}, nil
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequireUser rejects requests without a hosted-auth user identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == "" {
			writeFailure(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests that are not authenticated as an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		switch {
		case id == nil:
			writeFailure(w, http.StatusUnauthorized, "authentication required")
		case !id.IsAdmin():
			writeFailure(w, http.StatusForbidden, "forbidden")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
