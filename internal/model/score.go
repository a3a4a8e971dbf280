package model

// ScoreEntry is one user's running score within a session. Created once at
// join time and only ever mutated through atomic point increments, so the
// points value is monotonically non-decreasing for the session's lifetime.
type ScoreEntry struct {
	ID          string `json:"id" bson:"_id,omitempty"`
	SessionCode string `json:"sessionCode" bson:"sessionCode"`
	UserID      string `json:"userId" bson:"userId"`
	Nickname    string `json:"nickname" bson:"nickname"`
	Points      int    `json:"points" bson:"points"`
}
