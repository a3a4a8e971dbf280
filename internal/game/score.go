package game

import "troll/internal/model"

// Point values for the two ways a selection can resolve.
const (
	PointsCorrectGuess  = 2 // selector found the planted answer
	PointsDecoyAuthored = 1 // someone fell for the author's decoy
)

// Score resolves a selection event to exactly one point increment. Picking
// the sentinel credits the selector; picking any real answer credits its
// author. These are the only point sources in the game. The function is pure;
// the caller applies the delta with a single atomic increment.
func Score(selectorID, targetUserID string) (beneficiaryID string, delta int) {
	if targetUserID == model.SentinelUserID {
		return selectorID, PointsCorrectGuess
	}
	return targetUserID, PointsDecoyAuthored
}
