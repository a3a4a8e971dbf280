package client

import (
	"troll/internal/game"
	"troll/internal/model"
)

// State is the full derived view one participant holds of the shared game,
// recomputed after every snapshot delivery and every local action. It is the
// single source of truth for any presentation layer; nothing in it requires
// further interpretation of store documents.
type State struct {
	// Identity and membership.
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Code     string `json:"code"`
	Creator  bool   `json:"creator"`
	Joined   bool   `json:"joined"`

	// Mirrored session fields.
	SessionStarted bool     `json:"sessionStarted"`
	Round          int      `json:"round"`
	Rounds         int      `json:"rounds"`
	Question       string   `json:"question"`
	Users          []string `json:"users"`
	ConnectedUsers int      `json:"connectedUsers"`
	ReadyCount     int      `json:"readyCount"`

	// Mirrored collections (replaced wholesale per snapshot).
	Messages   []model.Message    `json:"messages"`
	Scoreboard []model.ScoreEntry `json:"scoreboard,omitempty"`

	// Derived round state.
	Phase           game.Phase `json:"phase"`
	Submitted       bool       `json:"submitted"`
	SelectedMessage string     `json:"selectedMessage,omitempty"`
	Ready           bool       `json:"ready"`
	AwaitingProceed bool       `json:"awaitingProceed"`
	CanStart        bool       `json:"canStart"`
	CanSubmit       bool       `json:"canSubmit"`
	FinalResults    bool       `json:"finalResults"`
	SessionEnded    bool       `json:"sessionEnded"`
}

// stateLocked derives the current State. Callers hold c.mu.
func (c *Client) stateLocked() State {
	st := State{
		UserID:          c.userID,
		Nickname:        c.nickname,
		Code:            c.code,
		Creator:         c.creator,
		Joined:          c.joined,
		Rounds:          model.Rounds,
		Messages:        c.messages,
		Scoreboard:      c.board,
		Phase:           game.PhaseAwaitingAnswers,
		Submitted:       c.submitted,
		SelectedMessage: c.selectedID,
		Ready:           c.ready,
		SessionEnded:    c.sessionGone,
	}
	if c.session == nil {
		return st
	}

	st.SessionStarted = c.session.SessionStarted
	st.Round = c.session.Round
	st.Question = c.session.CurrentQuestion
	st.Users = c.session.Users
	st.ConnectedUsers = len(c.session.Users)
	st.ReadyCount = len(c.session.ReadyUsers)
	st.CanStart = c.creator && !c.session.SessionStarted && game.CanStart(st.ConnectedUsers)

	// Message-phase booleans are only meaningful for the round the user has
	// acknowledged; after the creator advances, the session document and the
	// messages collection may transiently disagree, so the client shows the
	// round summary until Proceed re-aligns its local round.
	st.AwaitingProceed = c.session.SessionStarted && c.session.Round > c.ackRound
	if !st.AwaitingProceed {
		selected := 0
		for _, msg := range c.messages {
			selected += msg.Selected
		}
		st.Phase = game.Evaluate(game.RoundView{
			Round:         c.session.Round,
			Users:         st.ConnectedUsers,
			Messages:      len(c.messages),
			SelectedTotal: selected,
			ReadyUsers:    st.ReadyCount,
		})
	}

	st.CanSubmit = c.session.SessionStarted &&
		!st.AwaitingProceed &&
		!c.submitted &&
		game.CanStart(st.ConnectedUsers)
	st.FinalResults = c.viewingResults || st.Phase == game.PhaseResultsShown
	return st
}
