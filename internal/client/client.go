// Package client implements one game participant: it mirrors the shared
// store into a local projection, recomputes the round state machine on every
// snapshot delivery and exposes the result as a reactive State. Any number of
// Clients in any number of processes converge on the same game purely by
// observing the same store; there is no coordinator.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"troll/internal/game"
	"troll/internal/model"
	"troll/internal/repository"
	"troll/internal/store"
)

var (
	// ErrAlreadyJoined means this client is already bound to a session.
	ErrAlreadyJoined = errors.New("already in a session")
	// ErrNotJoined means the action needs a joined session first.
	ErrNotJoined = errors.New("not in a session")
	// ErrNotCreator means a round-advancing action was attempted without the
	// creator role.
	ErrNotCreator = errors.New("creator-only action")
	// ErrNotAllowed means a local guard rejected the action in the current
	// phase (already submitted, already selected, barrier not reached, ...).
	ErrNotAllowed = errors.New("action not allowed in current state")
)

type eventKind int

const (
	evSession eventKind = iota
	evMessages
	evScores
	evRecompute
)

type event struct {
	kind eventKind
	doc  *store.Doc
	docs []store.Doc
}

// Client is one participant's synchronization engine.
type Client struct {
	store store.Store
	repo  *repository.SessionRepository
	log   zerolog.Logger

	userID   string
	nickname string

	mu          sync.Mutex
	code        string
	creator     bool
	joined      bool
	sessionGone bool

	// Last-snapshot-wins projections per collection.
	session  *model.Session
	messages []model.Message
	board    []model.ScoreEntry

	// One-shot per-round guards, reset by Proceed.
	submitted      bool
	selectedID     string
	ready          bool
	ackRound       int
	viewingResults bool
	scoresWatched  bool

	ctx       context.Context
	cancel    context.CancelFunc
	subCtx    context.Context
	subCancel context.CancelFunc
	events    chan event
	updates   chan State
	wg        sync.WaitGroup
}

// New creates a detached client for the given identity. The repository must
// be this user's own instance (its rotator carries the device's question
// rotation state).
func New(st store.Store, repo *repository.SessionRepository, userID, nickname string, log zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:    st,
		repo:     repo,
		log:      log.With().Str("component", "client").Str("userId", userID).Logger(),
		userID:   userID,
		nickname: nickname,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, 64),
		updates:  make(chan State, 1),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c
}

// UserID returns the client's stable device identity.
func (c *Client) UserID() string { return c.userID }

// State returns the latest derived view.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Updates delivers the derived State after every projection change. The
// channel holds only the latest state; a slow consumer skips intermediates,
// never sees stale ones. Closed by Close.
func (c *Client) Updates() <-chan State { return c.updates }

// Close cancels all subscriptions and stops the dispatcher. In-flight writes
// are not cancelled; they complete or fail on their own.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
	close(c.updates)
}

// dispatch is the single goroutine that owns projection updates: every
// subscription stream funnels into c.events, so snapshot application and
// phase recomputation are strictly sequential per client.
func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.apply(ev)
		}
	}
}

func (c *Client) apply(ev event) {
	c.mu.Lock()
	switch ev.kind {
	case evRecompute:
		// Local guard changed; re-derive only.
	case evSession:
		if ev.doc == nil {
			if c.joined {
				c.sessionGone = true
				c.session = nil
			}
			break
		}
		var session model.Session
		if err := ev.doc.Decode(&session); err != nil {
			c.log.Warn().Err(err).Msg("bad session snapshot")
			break
		}
		session.Code = ev.doc.ID
		c.session = &session
		if c.ackRound == 0 && session.Round > 0 {
			// First sight of a started session: the observed round is the
			// one we are playing, nothing to acknowledge yet.
			c.ackRound = session.Round
		}
	case evMessages:
		msgs := make([]model.Message, 0, len(ev.docs))
		for i := range ev.docs {
			var msg model.Message
			if err := ev.docs[i].Decode(&msg); err != nil {
				c.log.Warn().Err(err).Msg("bad message snapshot")
				continue
			}
			msg.ID = ev.docs[i].ID
			msgs = append(msgs, msg)
		}
		c.messages = msgs
	case evScores:
		entries := make([]model.ScoreEntry, 0, len(ev.docs))
		for i := range ev.docs {
			var entry model.ScoreEntry
			if err := ev.docs[i].Decode(&entry); err != nil {
				c.log.Warn().Err(err).Msg("bad score snapshot")
				continue
			}
			entry.ID = ev.docs[i].ID
			entries = append(entries, entry)
		}
		sortScoreboard(entries)
		c.board = entries
	}

	// The round summary needs the scoreboard; attach the scores stream the
	// moment a round advance is first observed.
	needScores := c.session != nil && c.session.Round > c.ackRound
	watched := c.scoresWatched
	code := c.code
	st := c.stateLocked()
	c.mu.Unlock()

	if needScores && !watched {
		c.watchScores(code)
	}
	c.publish(st)
}

func (c *Client) publish(st State) {
	for {
		select {
		case c.updates <- st:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

// nudge asks the dispatcher to re-derive and publish. Only the dispatcher
// touches c.updates, so Close can safely drain and close it.
func (c *Client) nudge() {
	select {
	case c.events <- event{kind: evRecompute}:
	default:
	}
}

// Create allocates a new session with this client as creator and starts the
// snapshot subscriptions.
func (c *Client) Create(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return "", ErrAlreadyJoined
	}
	c.mu.Unlock()

	code, err := c.repo.CreateSession(ctx, c.userID, c.nickname)
	if err != nil {
		return "", err
	}
	c.attach(code, true)
	return code, nil
}

// Join enters an existing session. repository.ErrNotFound maps to an invalid
// code; the already-joined guard is local, per the design's trust model.
func (c *Client) Join(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.mu.Unlock()

	if err := c.repo.JoinSession(ctx, code, c.userID, c.nickname); err != nil {
		return err
	}
	c.attach(code, false)
	return nil
}

func (c *Client) attach(code string, creator bool) {
	c.mu.Lock()
	c.code = code
	c.creator = creator
	c.joined = true
	c.subCtx, c.subCancel = context.WithCancel(c.ctx)
	c.mu.Unlock()

	c.watchSession(code)
	c.watchMessages(code)
}

func (c *Client) watchSession(code string) {
	c.mu.Lock()
	ctx := c.subCtx
	c.mu.Unlock()
	sub, err := c.store.SubscribeDoc(ctx, repository.ColSessions, code)
	if err != nil {
		c.log.Error().Err(err).Msg("session subscription failed")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case doc, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case c.events <- event{kind: evSession, doc: doc}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func (c *Client) watchMessages(code string) {
	c.watchQuery(repository.ColMessages, code, evMessages)
}

func (c *Client) watchScores(code string) {
	c.mu.Lock()
	if c.scoresWatched {
		c.mu.Unlock()
		return
	}
	c.scoresWatched = true
	c.mu.Unlock()
	c.watchQuery(repository.ColScores, code, evScores)
}

func (c *Client) watchQuery(col, code string, kind eventKind) {
	c.mu.Lock()
	ctx := c.subCtx
	c.mu.Unlock()
	sub, err := c.store.SubscribeQuery(ctx, col, "sessionCode", code)
	if err != nil {
		c.log.Error().Err(err).Str("collection", col).Msg("query subscription failed")
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case docs, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case c.events <- event{kind: kind, docs: docs}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Start begins round 1. Creator only, needs at least two participants.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !c.creator {
		c.mu.Unlock()
		return ErrNotCreator
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if !st.CanStart {
		return ErrNotAllowed
	}
	return c.repo.StartSession(ctx, st.Code)
}

// Submit sends this round's decoy answer. One per round, rejected locally
// after the first; duplicate texts surface repository.ErrDuplicateAnswer.
func (c *Client) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	st := c.stateLocked()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !st.CanSubmit {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	c.mu.Unlock()

	if err := c.repo.SubmitAnswer(ctx, st.Code, c.userID, c.nickname, text); err != nil {
		return err
	}

	c.mu.Lock()
	c.submitted = true
	c.nudge()
	c.mu.Unlock()
	return nil
}

// Select spends this round's one selection on the given message. Selecting
// one's own answer or selecting twice is rejected locally before any write.
func (c *Client) Select(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	st := c.stateLocked()
	if c.selectedID != "" || st.AwaitingProceed {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	if st.Phase == game.PhaseAwaitingAnswers {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	var target *model.Message
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			target = &c.messages[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	if target.UserID == c.userID {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	// Arm the one-shot guard before the write so a racing second tap cannot
	// double-select.
	c.selectedID = messageID
	targetUserID := target.UserID
	code := c.code
	c.mu.Unlock()

	if err := c.repo.SelectMessage(ctx, code, c.userID, messageID, targetUserID); err != nil {
		c.mu.Lock()
		c.selectedID = ""
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.nudge()
	c.mu.Unlock()
	return nil
}

// Ready acknowledges the round outcome once every selection is in.
func (c *Client) Ready(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	st := c.stateLocked()
	if c.ready || st.Phase != game.PhaseAllSelected && st.Phase != game.PhaseAllReady {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	code := c.code
	c.mu.Unlock()

	if err := c.repo.SetReady(ctx, code, c.userID); err != nil {
		return err
	}
	c.mu.Lock()
	c.ready = true
	c.nudge()
	c.mu.Unlock()
	return nil
}

// NextRound advances the game. Creator only, and only once every participant
// is ready.
func (c *Client) NextRound(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !c.creator {
		c.mu.Unlock()
		return ErrNotCreator
	}
	st := c.stateLocked()
	c.mu.Unlock()

	if st.Phase != game.PhaseAllReady {
		return ErrNotAllowed
	}
	return c.repo.AdvanceRound(ctx, st.Code)
}

// Proceed acknowledges the round summary after an observed advance, resetting
// the per-round local guards. Purely local.
func (c *Client) Proceed() {
	c.mu.Lock()
	if c.session != nil && c.session.Round > c.ackRound {
		c.ackRound = c.session.Round
		c.submitted = false
		c.selectedID = ""
		c.ready = false
	}
	c.nudge()
	c.mu.Unlock()
}

// ViewResults opens the final scoreboard view, attaching the scores stream
// if it is not already live.
func (c *Client) ViewResults() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	c.viewingResults = true
	code := c.code
	c.mu.Unlock()

	c.watchScores(code)

	c.mu.Lock()
	c.nudge()
	c.mu.Unlock()
}

// Scoreboard fetches the current standings directly, for callers outside the
// reactive stream.
func (c *Client) Scoreboard(ctx context.Context) ([]model.ScoreEntry, error) {
	c.mu.Lock()
	code := c.code
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return nil, ErrNotJoined
	}
	return c.repo.Scoreboard(ctx, code)
}

// Leave removes this participant from the session and detaches. The score
// entry survives for participants still viewing results.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if c.creator {
		c.mu.Unlock()
		return fmt.Errorf("%w: creator must end the session", ErrNotAllowed)
	}
	code := c.code
	c.mu.Unlock()

	err := c.repo.LeaveSession(ctx, code, c.userID)
	c.detach()
	return err
}

// End deletes the session for everyone. Creator only; mirrors the original
// flow where the creator waits for other participants to leave first.
func (c *Client) End(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !c.creator {
		c.mu.Unlock()
		return ErrNotCreator
	}
	code := c.code
	c.mu.Unlock()

	err := c.repo.EndSession(ctx, code)
	c.detach()
	return err
}

// detach cancels this attachment's subscriptions and resets the client to
// its pre-join state, keeping identity.
func (c *Client) detach() {
	c.mu.Lock()
	if c.subCancel != nil {
		c.subCancel()
		c.subCancel = nil
	}
	c.scoresWatched = false
	c.joined = false
	c.creator = false
	c.code = ""
	c.session = nil
	c.messages = nil
	c.board = nil
	c.sessionGone = false
	c.submitted = false
	c.selectedID = ""
	c.ready = false
	c.ackRound = 0
	c.viewingResults = false
	c.nudge()
	c.mu.Unlock()
}

// sortScoreboard orders points descending, keeping store insertion order
// (already the query order) on ties.
func sortScoreboard(entries []model.ScoreEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
}
