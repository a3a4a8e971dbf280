package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"troll/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates session-scoped participant tokens.
type AuthService struct {
	jwtSecret []byte
	clock     clockwork.Clock
}

func NewAuthService(secret string, clock clockwork.Clock) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
		clock:     clock,
	}
}

// IssueToken creates a token binding a user to a session with a role. The
// creator token is minted on session creation, player tokens on join; the
// role in the token is what gates creator-only routes, not anything the
// client claims later.
func (s *AuthService) IssueToken(sessionCode, userID string, role model.Role) (string, error) {
	now := s.clock.Now()
	claims := &model.SessionClaims{
		UserID:      userID,
		SessionCode: sessionCode,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a participant JWT and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*model.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
