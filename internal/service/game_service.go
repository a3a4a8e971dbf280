package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"troll/internal/cache"
	"troll/internal/client"
	"troll/internal/model"
	"troll/internal/question"
	"troll/internal/repository"
	"troll/internal/store"
)

var ErrNotInSession = errors.New("participant not in session")

// GameService is the gateway between transports and the synchronization
// layer. Each participant is backed by one client.Client; the service owns
// the registry and mints the session tokens the transports enforce.
type GameService struct {
	store    store.Store
	profiles *cache.Profiles
	kv       cache.KV
	authSvc  *AuthService
	clock    clockwork.Clock
	log      zerolog.Logger

	mu           sync.Mutex
	participants map[string]*client.Client
}

func NewGameService(st store.Store, kv cache.KV, authSvc *AuthService, clock clockwork.Clock, log zerolog.Logger) *GameService {
	return &GameService{
		store:        st,
		profiles:     cache.NewProfiles(kv),
		kv:           kv,
		authSvc:      authSvc,
		clock:        clock,
		log:          log,
		participants: make(map[string]*client.Client),
	}
}

// SessionGrant is what a participant gets back from create or join.
type SessionGrant struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func participantKey(code, userID string) string {
	return code + ":" + userID
}

// newParticipant builds the per-user stack: a rotator keyed to the user's
// question history and a repository over the shared store.
func (s *GameService) newParticipant(userID, nickname string) *client.Client {
	rot := question.NewRotator(s.store, s.kv, userID)
	repo := repository.NewSessionRepository(s.store, rot, s.clock, s.log)
	return client.New(s.store, repo, userID, nickname, s.log)
}

// resolveIdentity maps a device to its stable user id and persisted nickname.
// A nickname supplied with the request overrides and re-persists.
func (s *GameService) resolveIdentity(ctx context.Context, deviceID, nickname string) (string, string, error) {
	userID, err := s.profiles.EnsureUserID(ctx, deviceID)
	if err != nil {
		return "", "", err
	}
	nickname = strings.TrimSpace(nickname)
	if nickname != "" {
		if err := s.profiles.SetNickname(ctx, deviceID, nickname); err != nil {
			return "", "", err
		}
		return userID, nickname, nil
	}
	stored, ok, err := s.profiles.Nickname(ctx, deviceID)
	if err != nil {
		return "", "", err
	}
	if !ok || stored == "" {
		stored = "anonymous"
	}
	return userID, stored, nil
}

// CreateSession creates a session and registers the caller as its creator.
func (s *GameService) CreateSession(ctx context.Context, deviceID, nickname string) (*SessionGrant, error) {
	userID, nickname, err := s.resolveIdentity(ctx, deviceID, nickname)
	if err != nil {
		return nil, err
	}

	c := s.newParticipant(userID, nickname)
	code, err := c.Create(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	token, err := s.authSvc.IssueToken(code, userID, model.RoleCreator)
	if err != nil {
		c.Close()
		return nil, err
	}

	s.register(code, userID, c)
	s.log.Info().Str("code", code).Str("userId", userID).Msg("session created")
	return &SessionGrant{Code: code, UserID: userID, Token: token}, nil
}

// JoinSession joins an existing session as a player.
func (s *GameService) JoinSession(ctx context.Context, deviceID, nickname, code string) (*SessionGrant, error) {
	userID, nickname, err := s.resolveIdentity(ctx, deviceID, nickname)
	if err != nil {
		return nil, err
	}

	c := s.newParticipant(userID, nickname)
	if err := c.Join(ctx, code); err != nil {
		c.Close()
		return nil, err
	}

	token, err := s.authSvc.IssueToken(code, userID, model.RolePlayer)
	if err != nil {
		c.Close()
		return nil, err
	}

	s.register(code, userID, c)
	s.log.Info().Str("code", code).Str("userId", userID).Msg("session joined")
	return &SessionGrant{Code: code, UserID: userID, Token: token}, nil
}

func (s *GameService) register(code, userID string, c *client.Client) {
	key := participantKey(code, userID)
	s.mu.Lock()
	if old, ok := s.participants[key]; ok {
		old.Close()
	}
	s.participants[key] = c
	s.mu.Unlock()
}

// Participant returns the live client for a session member.
func (s *GameService) Participant(code, userID string) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.participants[participantKey(code, userID)]
	if !ok {
		return nil, ErrNotInSession
	}
	return c, nil
}

func (s *GameService) Start(ctx context.Context, code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	return c.Start(ctx)
}

func (s *GameService) Submit(ctx context.Context, code, userID, text string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	return c.Submit(ctx, text)
}

func (s *GameService) Select(ctx context.Context, code, userID, messageID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	return c.Select(ctx, messageID)
}

func (s *GameService) Ready(ctx context.Context, code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	return c.Ready(ctx)
}

func (s *GameService) AdvanceRound(ctx context.Context, code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	return c.NextRound(ctx)
}

func (s *GameService) Proceed(code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	c.Proceed()
	return nil
}

func (s *GameService) ViewResults(code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	c.ViewResults()
	return nil
}

func (s *GameService) Scoreboard(ctx context.Context, code, userID string) ([]model.ScoreEntry, error) {
	c, err := s.Participant(code, userID)
	if err != nil {
		return nil, err
	}
	return c.Scoreboard(ctx)
}

func (s *GameService) State(code, userID string) (client.State, error) {
	c, err := s.Participant(code, userID)
	if err != nil {
		return client.State{}, err
	}
	return c.State(), nil
}

// Updates exposes the participant's state stream for the websocket layer.
func (s *GameService) Updates(code, userID string) (<-chan client.State, error) {
	c, err := s.Participant(code, userID)
	if err != nil {
		return nil, err
	}
	return c.Updates(), nil
}

// LeaveSession removes the caller from the session and drops their client.
func (s *GameService) LeaveSession(ctx context.Context, code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	if err := c.Leave(ctx); err != nil {
		return err
	}
	s.drop(code, userID)
	return nil
}

// EndSession tears the session down for everyone. Remote participants
// observe the deletion through their own subscriptions; clients hosted in
// this process are dropped from the registry.
func (s *GameService) EndSession(ctx context.Context, code, userID string) error {
	c, err := s.Participant(code, userID)
	if err != nil {
		return err
	}
	if err := c.End(ctx); err != nil {
		return err
	}

	prefix := code + ":"
	s.mu.Lock()
	for key, member := range s.participants {
		if strings.HasPrefix(key, prefix) {
			member.Close()
			delete(s.participants, key)
		}
	}
	s.mu.Unlock()
	s.log.Info().Str("code", code).Msg("session ended")
	return nil
}

func (s *GameService) drop(code, userID string) {
	key := participantKey(code, userID)
	s.mu.Lock()
	if c, ok := s.participants[key]; ok {
		c.Close()
		delete(s.participants, key)
	}
	s.mu.Unlock()
}

// Close shuts down every hosted participant.
func (s *GameService) Close() {
	s.mu.Lock()
	for key, c := range s.participants {
		c.Close()
		delete(s.participants, key)
	}
	s.mu.Unlock()
}
