package model

import "github.com/golang-jwt/jwt/v5"

// Role is a participant's capability level within a session.
type Role string

const (
	// RoleCreator may start, advance and end the session.
	RoleCreator Role = "creator"
	// RolePlayer may submit, select and flag ready.
	RolePlayer Role = "player"
)

// SessionClaims are the JWT claims bound to one participant of one session.
type SessionClaims struct {
	UserID      string `json:"userId"`
	SessionCode string `json:"sessionCode"`
	Role        Role   `json:"role"`
	jwt.RegisteredClaims
}
