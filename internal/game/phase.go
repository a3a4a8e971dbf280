package game

import "troll/internal/model"

// Phase is the derived state of the active round. It is never stored:
// every client recomputes it from the counts it has observed, so any two
// clients that have seen the same snapshots agree on the phase without
// coordination.
type Phase string

const (
	// PhaseAwaitingAnswers: not every participant has submitted yet.
	PhaseAwaitingAnswers Phase = "awaiting_answers"
	// PhaseAllSubmitted: every participant plus the planted answer is in;
	// selection is open.
	PhaseAllSubmitted Phase = "all_submitted"
	// PhaseAllSelected: every participant has spent their selection.
	PhaseAllSelected Phase = "all_selected"
	// PhaseAllReady: every participant acknowledged the round outcome; the
	// creator may advance.
	PhaseAllReady Phase = "all_ready"
	// PhaseResultsShown: terminal state after the final round's selections.
	PhaseResultsShown Phase = "results_shown"
)

// RoundView is what one client has observed about the active round. All
// fields are counts that only grow until the creator resets them, which makes
// Evaluate insensitive to snapshot reordering and duplicate delivery.
type RoundView struct {
	Round         int // 1-based round number from the session document
	Users         int // current session membership
	Messages      int // submitted answers, including the sentinel
	SelectedTotal int // sum of per-message selection counters
	ReadyUsers    int // users who acknowledged the round outcome
}

// Evaluate derives the round phase from observed counts. Each barrier is a
// monotonic threshold comparison: the submission barrier needs one message
// per participant plus the sentinel, the selection barrier one selection per
// participant, the ready barrier one acknowledgment per participant. On the
// final round the ready barrier is skipped and the game terminates in
// PhaseResultsShown.
func Evaluate(v RoundView) Phase {
	if v.Messages < v.Users+1 {
		return PhaseAwaitingAnswers
	}
	if v.SelectedTotal < v.Users {
		return PhaseAllSubmitted
	}
	if v.Round >= model.Rounds {
		return PhaseResultsShown
	}
	if v.ReadyUsers < v.Users {
		return PhaseAllSelected
	}
	return PhaseAllReady
}

// CanStart reports whether the session has enough participants to run a
// round. A single user has nothing to select from, so both starting and
// submitting are disabled below two.
func CanStart(users int) bool {
	return users > 1
}
