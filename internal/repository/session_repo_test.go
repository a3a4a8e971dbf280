package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"troll/internal/cache"
	"troll/internal/model"
	"troll/internal/question"
	"troll/internal/store"
)

func newTestRepo(t *testing.T) (*SessionRepository, *store.Memory, *clockwork.FakeClock) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	for i := 0; i < question.PoolSize; i++ {
		pair := question.Pair{
			Question: fmt.Sprintf("question %d", i),
			Answer:   fmt.Sprintf("answer %d", i),
		}
		if err := st.Set(ctx, question.Collection, strconv.Itoa(i), pair); err != nil {
			t.Fatalf("seed corpus: %v", err)
		}
	}

	clock := clockwork.NewFakeClock()
	rot := question.NewRotator(st, cache.NewMemoryKV(), "user_creator")
	repo := NewSessionRepository(st, rot, clock, zerolog.Nop())
	return repo, st, clock
}

func TestCreateSession(t *testing.T) {
	repo, _, clock := newTestRepo(t)
	ctx := context.Background()

	code, err := repo.CreateSession(ctx, "user_a", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != model.CodeLength {
		t.Errorf("code %q has length %d, want %d", code, len(code), model.CodeLength)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			t.Errorf("code %q contains non-lowercase character", code)
		}
	}

	session, err := repo.GetSession(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	if session == nil {
		t.Fatal("created session not readable")
	}
	if !session.Active || session.SessionStarted {
		t.Errorf("fresh session state wrong: %+v", session)
	}
	if len(session.Users) != 1 || session.Users[0] != "user_a" {
		t.Errorf("users = %v, want [user_a]", session.Users)
	}
	if !session.CreatedAt.Equal(clock.Now().UTC()) {
		t.Errorf("createdAt = %v, want clock time %v", session.CreatedAt, clock.Now().UTC())
	}

	board, err := repo.Scoreboard(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 || board[0].UserID != "user_a" || board[0].Points != 0 {
		t.Errorf("scoreboard after create = %+v", board)
	}
}

func TestJoinSessionUnknownCode(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	err := repo.JoinSession(context.Background(), "zzzz", "user_b", "bob")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("join unknown code: err = %v, want ErrNotFound", err)
	}
}

func TestJoinAndLeave(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.JoinSession(ctx, code, "user_b", "bob"); err != nil {
		t.Fatal(err)
	}

	session, _ := repo.GetSession(ctx, code)
	if len(session.Users) != 2 || !session.HasUser("user_b") {
		t.Fatalf("users after join = %v", session.Users)
	}

	if err := repo.LeaveSession(ctx, code, "user_b"); err != nil {
		t.Fatal(err)
	}
	session, _ = repo.GetSession(ctx, code)
	if session.HasUser("user_b") {
		t.Errorf("user_b still a member after leave: %v", session.Users)
	}

	// The scoreboard keeps the leaver's entry for anyone still in results.
	board, _ := repo.Scoreboard(ctx, code)
	if len(board) != 2 {
		t.Errorf("scoreboard lost an entry on leave: %+v", board)
	}
}

func TestStartSessionPlantsSentinel(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}

	session, _ := repo.GetSession(ctx, code)
	if !session.SessionStarted || session.Round != 1 {
		t.Errorf("session after start: started=%v round=%d", session.SessionStarted, session.Round)
	}
	if session.CurrentQuestion == "" || session.CurrentAnswer == "" {
		t.Error("current question/answer not populated")
	}

	messages, _ := repo.Messages(ctx, code)
	if len(messages) != 1 {
		t.Fatalf("messages after start = %d, want the sentinel only", len(messages))
	}
	if !messages[0].IsSentinel() || messages[0].Text != session.CurrentAnswer {
		t.Errorf("sentinel message wrong: %+v", messages[0])
	}
}

func TestSubmitAnswerDuplicates(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}

	if err := repo.SubmitAnswer(ctx, code, "user_d", "dana", "paris"); err != nil {
		t.Fatal(err)
	}
	// Case and whitespace variants count as the same answer.
	err := repo.SubmitAnswer(ctx, code, "user_e", "evan", "Paris ")
	if !errors.Is(err, ErrDuplicateAnswer) {
		t.Fatalf("variant submit: err = %v, want ErrDuplicateAnswer", err)
	}

	messages, _ := repo.Messages(ctx, code)
	if len(messages) != 2 { // sentinel + paris
		t.Errorf("duplicate rejection still wrote a message: %d messages", len(messages))
	}

	if err := repo.SubmitAnswer(ctx, code, "user_e", "evan", "  "); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("blank submit: err = %v, want ErrEmptyAnswer", err)
	}
}

func TestSubmitAnswerStoredNormalized(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.SubmitAnswer(ctx, code, "user_a", "alice", "  The Moon  "); err != nil {
		t.Fatal(err)
	}
	messages, _ := repo.Messages(ctx, code)
	if len(messages) != 1 || messages[0].Text != "the moon" {
		t.Errorf("stored text = %+v, want trimmed lower-case", messages)
	}
}

func points(t *testing.T, repo *SessionRepository, code, userID string) int {
	t.Helper()
	board, err := repo.Scoreboard(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, entry := range board {
		if entry.UserID == userID {
			total += entry.Points
		}
	}
	return total
}

func TestSelectMessageScoring(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.JoinSession(ctx, code, "user_b", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}
	if err := repo.SubmitAnswer(ctx, code, "user_a", "alice", "decoy a"); err != nil {
		t.Fatal(err)
	}

	messages, _ := repo.Messages(ctx, code)
	var sentinelID, decoyID string
	for _, msg := range messages {
		if msg.IsSentinel() {
			sentinelID = msg.ID
		} else {
			decoyID = msg.ID
		}
	}

	// B falls for A's decoy: author gets 1, selector gets nothing.
	if err := repo.SelectMessage(ctx, code, "user_b", decoyID, "user_a"); err != nil {
		t.Fatal(err)
	}
	if got := points(t, repo, code, "user_a"); got != 1 {
		t.Errorf("author points = %d, want 1", got)
	}
	if got := points(t, repo, code, "user_b"); got != 0 {
		t.Errorf("selector points after decoy pick = %d, want 0", got)
	}

	// A finds the planted answer: selector gets 2.
	if err := repo.SelectMessage(ctx, code, "user_a", sentinelID, model.SentinelUserID); err != nil {
		t.Fatal(err)
	}
	if got := points(t, repo, code, "user_a"); got != 3 {
		t.Errorf("selector points after sentinel pick = %d, want 3", got)
	}

	messages, _ = repo.Messages(ctx, code)
	total := 0
	for _, msg := range messages {
		total += msg.Selected
	}
	if total != 2 {
		t.Errorf("sum of selection counters = %d, want 2", total)
	}
}

func TestSelectOwnMessageIsNoOp(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.SubmitAnswer(ctx, code, "user_a", "alice", "decoy a"); err != nil {
		t.Fatal(err)
	}
	messages, _ := repo.Messages(ctx, code)

	if err := repo.SelectMessage(ctx, code, "user_a", messages[0].ID, "user_a"); err != nil {
		t.Fatal(err)
	}
	messages, _ = repo.Messages(ctx, code)
	if messages[0].Selected != 0 {
		t.Errorf("self-selection incremented the counter: %d", messages[0].Selected)
	}
	if got := points(t, repo, code, "user_a"); got != 0 {
		t.Errorf("self-selection awarded points: %d", got)
	}
}

// A re-join after disconnect leaves two score entries for one user. A
// selection must credit exactly one of them.
func TestDuplicateScoreEntryAwardedOnce(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.JoinSession(ctx, code, "user_b", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := repo.JoinSession(ctx, code, "user_b", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SubmitAnswer(ctx, code, "user_b", "bob", "decoy b"); err != nil {
		t.Fatal(err)
	}
	messages, _ := repo.Messages(ctx, code)

	if err := repo.SelectMessage(ctx, code, "user_a", messages[0].ID, "user_b"); err != nil {
		t.Fatal(err)
	}
	if got := points(t, repo, code, "user_b"); got != 1 {
		t.Errorf("total points across duplicate entries = %d, want 1", got)
	}
}

func TestSetReadyIdempotent(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	for i := 0; i < 3; i++ {
		if err := repo.SetReady(ctx, code, "user_a"); err != nil {
			t.Fatal(err)
		}
	}
	session, _ := repo.GetSession(ctx, code)
	if len(session.ReadyUsers) != 1 {
		t.Errorf("readyUsers after repeated SetReady = %v", session.ReadyUsers)
	}
}

func TestAdvanceRound(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}
	if err := repo.SubmitAnswer(ctx, code, "user_a", "alice", "decoy a"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetReady(ctx, code, "user_a"); err != nil {
		t.Fatal(err)
	}
	before, _ := repo.GetSession(ctx, code)

	if err := repo.AdvanceRound(ctx, code); err != nil {
		t.Fatal(err)
	}

	session, _ := repo.GetSession(ctx, code)
	if session.Round != before.Round+1 {
		t.Errorf("round = %d, want %d", session.Round, before.Round+1)
	}
	if len(session.ReadyUsers) != 0 {
		t.Errorf("readyUsers not reset: %v", session.ReadyUsers)
	}

	messages, _ := repo.Messages(ctx, code)
	if len(messages) != 1 || !messages[0].IsSentinel() {
		t.Errorf("messages after advance = %+v, want the new sentinel only", messages)
	}
	if messages[0].Text != session.CurrentAnswer {
		t.Errorf("new sentinel text %q != currentAnswer %q", messages[0].Text, session.CurrentAnswer)
	}
}

func TestScoreboardOrdering(t *testing.T) {
	repo, st, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	for _, join := range []struct{ id, nick string }{
		{"user_b", "bob"}, {"user_c", "cara"},
	} {
		if err := repo.JoinSession(ctx, code, join.id, join.nick); err != nil {
			t.Fatal(err)
		}
	}

	board, _ := repo.Scoreboard(ctx, code)
	if err := st.Increment(ctx, ColScores, board[2].ID, "points", 5); err != nil {
		t.Fatal(err)
	}

	board, _ = repo.Scoreboard(ctx, code)
	if board[0].UserID != "user_c" {
		t.Errorf("highest scorer first, got %s", board[0].UserID)
	}
	// user_a and user_b tie at zero; insertion order decides.
	if board[1].UserID != "user_a" || board[2].UserID != "user_b" {
		t.Errorf("tie order = %s, %s; want insertion order user_a, user_b", board[1].UserID, board[2].UserID)
	}
}

func TestEndSessionCascades(t *testing.T) {
	repo, st, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}
	if err := repo.EndSession(ctx, code); err != nil {
		t.Fatal(err)
	}

	if session, _ := repo.GetSession(ctx, code); session != nil {
		t.Error("session document still present after end")
	}
	if docs, _ := st.Query(ctx, ColMessages, "sessionCode", code); len(docs) != 0 {
		t.Errorf("%d messages left after end", len(docs))
	}
	if docs, _ := st.Query(ctx, ColScores, "sessionCode", code); len(docs) != 0 {
		t.Errorf("%d score entries left after end", len(docs))
	}
}

// Round numbers only move through AdvanceRound, by exactly one.
func TestRoundMonotonic(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	code, _ := repo.CreateSession(ctx, "user_a", "alice")
	if err := repo.StartSession(ctx, code); err != nil {
		t.Fatal(err)
	}

	last := 1
	for i := 0; i < 3; i++ {
		if err := repo.AdvanceRound(ctx, code); err != nil {
			t.Fatal(err)
		}
		session, _ := repo.GetSession(ctx, code)
		if session.Round != last+1 {
			t.Fatalf("round jumped from %d to %d", last, session.Round)
		}
		last = session.Round
	}
}
