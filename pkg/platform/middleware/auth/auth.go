// Package auth provides JWT bearer authentication for agent-facing endpoints.
// The token subject is the agent ID; role claims gate admin-only routes.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fieldwatch/pkg/requestcontext"
)

// Claims are the JWT claims this service issues and accepts.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HMAC-signed bearer tokens.
type Validator struct {
	secret []byte
	logger *slog.Logger
}

// NewValidator builds a Validator for the given signing secret.
func NewValidator(secret string, logger *slog.Logger) *Validator {
	return &Validator{secret: []byte(secret), logger: logger}
}

func (v *Validator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAgent authenticates the bearer token and injects the agent ID into
// the request context.
func (v *Validator) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}

		claims, err := v.parse(token)
		if err != nil {
			v.logger.WarnContext(ctx, "unauthorized access - invalid token",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		agentID, err := uuid.Parse(claims.Subject)
		if err != nil {
			v.logger.WarnContext(ctx, "unauthorized access - malformed subject",
				"request_id", requestcontext.RequestID(ctx),
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(requestcontext.WithAgentID(ctx, agentID)))
	})
}

// RequireAdmin additionally checks the admin role claim. It parses the
// token itself, so it can guard admin routes standalone without stacking
// RequireAgent in front of it.
func (v *Validator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}

		claims, err := v.parse(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		if claims.Role != "admin" {
			v.logger.WarnContext(ctx, "forbidden - admin role required",
				"request_id", requestcontext.RequestID(ctx),
				"subject", claims.Subject,
			)
			writeJSONError(w, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}

		if agentID, err := uuid.Parse(claims.Subject); err == nil {
			ctx = requestcontext.WithAgentID(ctx, agentID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
