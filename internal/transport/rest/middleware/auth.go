package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"troll/internal/model"
	"troll/internal/service"
)

type contextKey string

const claimsKey contextKey = "sessionClaims"

// AuthMiddleware provides JWT authentication middleware.
type AuthMiddleware struct {
	authSvc *service.AuthService
}

func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireParticipant validates the session token and checks it matches the
// session code in the route.
func (m *AuthMiddleware) RequireParticipant(next http.Handler) http.Handler {
	return m.require(next, "")
}

// RequireCreator additionally demands the creator role. Round advancement,
// starting and ending a session are creator-only on the server, whatever a
// client claims.
func (m *AuthMiddleware) RequireCreator(next http.Handler) http.Handler {
	return m.require(next, model.RoleCreator)
}

func (m *AuthMiddleware) require(next http.Handler, role model.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		if code, ok := mux.Vars(r)["code"]; ok && claims.SessionCode != code {
			http.Error(w, `{"error":"token not valid for this session"}`, http.StatusForbidden)
			return
		}
		if role != "" && claims.Role != role {
			http.Error(w, `{"error":"creator role required"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts the validated session claims from context.
func GetClaims(ctx context.Context) *model.SessionClaims {
	if v := ctx.Value(claimsKey); v != nil {
		return v.(*model.SessionClaims)
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
