package model

import "time"

const (
	// Rounds is the fixed number of rounds in a game.
	Rounds = 7

	// SentinelUserID is the reserved author id of the planted correct answer.
	SentinelUserID = "correct"

	// CodeLength is the number of lowercase letters in a session code.
	CodeLength = 4
)

// Session is the root game document, keyed by its join code.
type Session struct {
	Code            string    `json:"code" bson:"_id"`
	Active          bool      `json:"active" bson:"active"`
	Users           []string  `json:"users" bson:"users"`
	SessionStarted  bool      `json:"sessionStarted" bson:"sessionStarted"`
	Round           int       `json:"round" bson:"round"`
	CurrentQuestion string    `json:"currentQuestion" bson:"currentQuestion"`
	CurrentAnswer   string    `json:"currentAnswer" bson:"currentAnswer"`
	ReadyUsers      []string  `json:"readyUsers" bson:"readyUsers"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

// HasUser reports whether userID is a current member of the session.
func (s *Session) HasUser(userID string) bool {
	for _, u := range s.Users {
		if u == userID {
			return true
		}
	}
	return false
}
