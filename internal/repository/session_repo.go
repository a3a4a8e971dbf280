package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"troll/internal/game"
	"troll/internal/model"
	"troll/internal/question"
	"troll/internal/store"
)

// Collections owned by the session repository.
const (
	ColSessions = "sessions"
	ColMessages = "messages"
	ColScores   = "scores"
)

var (
	// ErrNotFound means the session code does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicateAnswer means an equivalent answer already exists this
	// round; nothing was written.
	ErrDuplicateAnswer = errors.New("duplicate answer")
	// ErrEmptyAnswer means the submitted text was blank after trimming.
	ErrEmptyAnswer = errors.New("empty answer")
)

const sessionCodeAlphabet = "abcdefghijklmnopqrstuvwxyz"

// SessionRepository implements every mutation of the shared game state. One
// instance belongs to one client: round-advancing operations (StartSession,
// AdvanceRound, EndSession) are only ever invoked by the session creator, a
// convention the gateway enforces with role tokens and library embedders are
// trusted to follow.
type SessionRepository struct {
	store   store.Store
	rotator *question.Rotator
	clock   clockwork.Clock
	log     zerolog.Logger
}

// NewSessionRepository creates a repository over the shared store. The
// rotator carries the owning device's question rotation state.
func NewSessionRepository(st store.Store, rot *question.Rotator, clock clockwork.Clock, log zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		store:   st,
		rotator: rot,
		clock:   clock,
		log:     log.With().Str("component", "repository").Logger(),
	}
}

// CreateSession allocates a unique code, writes the session document with the
// creator as sole member and seeds the creator's score entry.
func (r *SessionRepository) CreateSession(ctx context.Context, userID, nickname string) (string, error) {
	code, err := r.newSessionCode(ctx)
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}

	session := model.Session{
		Code:           code,
		Active:         true,
		Users:          []string{userID},
		SessionStarted: false,
		ReadyUsers:     []string{},
		CreatedAt:      r.clock.Now().UTC(),
	}
	if err := r.store.Set(ctx, ColSessions, code, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := r.createScoreEntry(ctx, code, userID, nickname); err != nil {
		return "", err
	}

	r.log.Info().Str("code", code).Str("userId", userID).Msg("session created")
	return code, nil
}

// newSessionCode draws random lowercase codes until one is unused.
func (r *SessionRepository) newSessionCode(ctx context.Context) (string, error) {
	for {
		buf := make([]byte, model.CodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = sessionCodeAlphabet[int(buf[i])%len(sessionCodeAlphabet)]
		}
		code := string(buf)

		existing, err := r.store.Get(ctx, ColSessions, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
}

// JoinSession adds the user to the session and seeds their score entry.
// Deliberately not idempotent: a repeated join creates a second score entry,
// so callers gate on their own already-joined state.
func (r *SessionRepository) JoinSession(ctx context.Context, code, userID, nickname string) error {
	session, err := r.GetSession(ctx, code)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}
	if err := r.store.ArrayUnion(ctx, ColSessions, code, "users", userID); err != nil {
		return fmt.Errorf("join session: %w", err)
	}
	return r.createScoreEntry(ctx, code, userID, nickname)
}

func (r *SessionRepository) createScoreEntry(ctx context.Context, code, userID, nickname string) error {
	entry := model.ScoreEntry{
		SessionCode: code,
		UserID:      userID,
		Nickname:    nickname,
		Points:      0,
	}
	if _, err := r.store.Insert(ctx, ColScores, entry); err != nil {
		return fmt.Errorf("create score entry: %w", err)
	}
	return nil
}

// GetSession returns the session document, or nil when the code is unknown.
func (r *SessionRepository) GetSession(ctx context.Context, code string) (*model.Session, error) {
	doc, err := r.store.Get(ctx, ColSessions, code)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	var session model.Session
	if err := doc.Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	session.Code = code
	return &session, nil
}

// LeaveSession removes the user from membership. The score entry stays so
// participants still viewing results keep a complete scoreboard.
func (r *SessionRepository) LeaveSession(ctx context.Context, code, userID string) error {
	return r.store.ArrayRemove(ctx, ColSessions, code, "users", userID)
}

// EndSession deletes the session and its dependent collections. Creator only.
func (r *SessionRepository) EndSession(ctx context.Context, code string) error {
	if err := r.store.Delete(ctx, ColSessions, code); err != nil {
		return err
	}
	if err := r.store.DeleteWhere(ctx, ColMessages, "sessionCode", code); err != nil {
		return err
	}
	if err := r.store.DeleteWhere(ctx, ColScores, "sessionCode", code); err != nil {
		return err
	}
	r.log.Info().Str("code", code).Msg("session ended")
	return nil
}

// StartSession flips the session into round 1 and plants the first question.
// Creator only.
func (r *SessionRepository) StartSession(ctx context.Context, code string) error {
	err := r.store.Update(ctx, ColSessions, code, map[string]interface{}{
		"sessionStarted": true,
		"round":          1,
		"readyUsers":     []string{},
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return r.plantQuestion(ctx, code)
}

// plantQuestion rotates to the next question, publishes it on the session
// document and seeds the sentinel message carrying the genuine answer.
func (r *SessionRepository) plantQuestion(ctx context.Context, code string) error {
	pair, err := r.rotator.Next(ctx)
	if err != nil {
		return fmt.Errorf("next question: %w", err)
	}
	err = r.store.Update(ctx, ColSessions, code, map[string]interface{}{
		"currentQuestion": pair.Question,
		"currentAnswer":   pair.Answer,
	})
	if err != nil {
		return fmt.Errorf("publish question: %w", err)
	}

	sentinel := model.Message{
		SessionCode: code,
		Text:        pair.Answer,
		UserID:      model.SentinelUserID,
		Nickname:    model.SentinelUserID,
		Selected:    0,
	}
	if _, err := r.store.Insert(ctx, ColMessages, sentinel); err != nil {
		return fmt.Errorf("plant sentinel answer: %w", err)
	}
	return nil
}

// SubmitAnswer appends the user's decoy answer, first rejecting any
// case-insensitive trimmed duplicate of an existing message this round. The
// duplicate check is advisory (two racing submitters can both pass it); the
// casual-game threat model accepts that.
func (r *SessionRepository) SubmitAnswer(ctx context.Context, code, userID, nickname, text string) error {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ErrEmptyAnswer
	}

	existing, err := r.Messages(ctx, code)
	if err != nil {
		return err
	}
	for _, msg := range existing {
		if strings.ToLower(msg.Text) == text {
			return ErrDuplicateAnswer
		}
	}

	message := model.Message{
		SessionCode: code,
		Text:        text,
		UserID:      userID,
		Nickname:    nickname,
		Selected:    0,
	}
	if _, err := r.store.Insert(ctx, ColMessages, message); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

// Messages returns this round's messages in insertion order.
func (r *SessionRepository) Messages(ctx context.Context, code string) ([]model.Message, error) {
	docs, err := r.store.Query(ctx, ColMessages, "sessionCode", code)
	if err != nil {
		return nil, err
	}
	messages := make([]model.Message, 0, len(docs))
	for _, doc := range docs {
		var msg model.Message
		if err := doc.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msg.ID = doc.ID
		messages = append(messages, msg)
	}
	return messages, nil
}

// SelectMessage registers the selector's pick: the message's selection
// counter and the resulting score delta are each applied with a single
// atomic increment, so concurrent selectors cannot lose updates. Picking
// one's own message is a silent no-op; the one-pick-per-round rule is the
// caller's local guard.
func (r *SessionRepository) SelectMessage(ctx context.Context, code, selectorID, messageID, targetUserID string) error {
	if targetUserID == selectorID {
		return nil
	}
	if err := r.store.Increment(ctx, ColMessages, messageID, "selected", 1); err != nil {
		return fmt.Errorf("record selection: %w", err)
	}

	beneficiaryID, delta := game.Score(selectorID, targetUserID)
	entry, err := r.scoreEntry(ctx, code, beneficiaryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no score entry for user %s in session %s", beneficiaryID, code)
	}
	if err := r.store.Increment(ctx, ColScores, entry.ID, "points", delta); err != nil {
		return fmt.Errorf("apply points: %w", err)
	}
	return nil
}

// scoreEntry returns the earliest-inserted score entry for the user, so a
// duplicate row from a re-join can never be awarded twice for one selection.
func (r *SessionRepository) scoreEntry(ctx context.Context, code, userID string) (*model.ScoreEntry, error) {
	entries, err := r.scoreEntries(ctx, code)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].UserID == userID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// SetReady flags the user as done with the round summary. Set semantics make
// repeated calls harmless.
func (r *SessionRepository) SetReady(ctx context.Context, code, userID string) error {
	return r.store.ArrayUnion(ctx, ColSessions, code, "readyUsers", userID)
}

// AdvanceRound clears the round's messages, plants the next question and
// moves the round counter. Creator only; exactly once per round.
func (r *SessionRepository) AdvanceRound(ctx context.Context, code string) error {
	if err := r.store.DeleteWhere(ctx, ColMessages, "sessionCode", code); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if err := r.plantQuestion(ctx, code); err != nil {
		return err
	}
	err := r.store.Update(ctx, ColSessions, code, map[string]interface{}{
		"readyUsers": []string{},
	})
	if err != nil {
		return fmt.Errorf("reset ready users: %w", err)
	}
	if err := r.store.Increment(ctx, ColSessions, code, "round", 1); err != nil {
		return fmt.Errorf("advance round: %w", err)
	}
	r.log.Info().Str("code", code).Msg("round advanced")
	return nil
}

// scoreEntries returns all score entries in store insertion order.
func (r *SessionRepository) scoreEntries(ctx context.Context, code string) ([]model.ScoreEntry, error) {
	docs, err := r.store.Query(ctx, ColScores, "sessionCode", code)
	if err != nil {
		return nil, err
	}
	entries := make([]model.ScoreEntry, 0, len(docs))
	for _, doc := range docs {
		var entry model.ScoreEntry
		if err := doc.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode score entry: %w", err)
		}
		entry.ID = doc.ID
		entries = append(entries, entry)
	}
	return entries, nil
}

// Scoreboard returns all score entries ordered by points descending, ties
// broken by store insertion order.
func (r *SessionRepository) Scoreboard(ctx context.Context, code string) ([]model.ScoreEntry, error) {
	entries, err := r.scoreEntries(ctx, code)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	return entries, nil
}
