package model

// Message is one submitted answer for the active round. Exactly one message
// per round carries the sentinel author id; it is the planted correct answer
// and is indistinguishable from real submissions in the client view.
type Message struct {
	ID          string `json:"id" bson:"_id,omitempty"`
	SessionCode string `json:"sessionCode" bson:"sessionCode"`
	Text        string `json:"text" bson:"text"`
	UserID      string `json:"userId" bson:"userId"`
	Nickname    string `json:"nickname" bson:"nickname"`
	Selected    int    `json:"selected" bson:"selected"`
}

// IsSentinel reports whether this message is the planted correct answer.
func (m *Message) IsSentinel() bool {
	return m.UserID == SentinelUserID
}
