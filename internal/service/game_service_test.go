package service

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

func newTestGame(t *testing.T) *GameService {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	for i := 0; i < question.PoolSize; i++ {
		pair := question.Pair{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
		if err := st.Set(ctx, question.Collection, strconv.Itoa(i), pair); err != nil {
			t.Fatal(err)
		}
	}
	auth := NewAuthService("test-secret", clockwork.NewFakeClock())
	svc := NewGameService(st, cache.NewMemoryKV(), auth, clockwork.NewFakeClock(), zerolog.Nop())
	t.Cleanup(svc.Close)
	return svc
}

func TestCreateGrantsCreatorToken(t *testing.T) {
	svc := newTestGame(t)
	ctx := context.Background()

	grant, err := svc.CreateSession(ctx, "device-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(grant.Code) != model.CodeLength {
		t.Errorf("code %q", grant.Code)
	}

	claims, err := svc.authSvc.ValidateToken(grant.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != model.RoleCreator || claims.SessionCode != grant.Code || claims.UserID != grant.UserID {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJoinGrantsPlayerTokenAndStableIdentity(t *testing.T) {
	svc := newTestGame(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "device-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	joined, err := svc.JoinSession(ctx, "device-2", "bob", created.Code)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.authSvc.ValidateToken(joined.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != model.RolePlayer {
		t.Errorf("role = %s, want player", claims.Role)
	}

	// The same device keeps its user id across sessions.
	if err := svc.LeaveSession(ctx, created.Code, joined.UserID); err != nil {
		t.Fatal(err)
	}
	rejoined, err := svc.JoinSession(ctx, "device-2", "", created.Code)
	if err != nil {
		t.Fatal(err)
	}
	if rejoined.UserID != joined.UserID {
		t.Errorf("user id changed across joins: %s -> %s", joined.UserID, rejoined.UserID)
	}
}

func TestOperationsRequireMembership(t *testing.T) {
	svc := newTestGame(t)
	ctx := context.Background()

	if err := svc.Start(ctx, "zzzz", "user_x"); !errors.Is(err, ErrNotInSession) {
		t.Errorf("start: err = %v, want ErrNotInSession", err)
	}
	if _, err := svc.Scoreboard(ctx, "zzzz", "user_x"); !errors.Is(err, ErrNotInSession) {
		t.Errorf("scoreboard: err = %v, want ErrNotInSession", err)
	}
}

func TestEndSessionDropsAllParticipants(t *testing.T) {
	svc := newTestGame(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "device-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	joined, err := svc.JoinSession(ctx, "device-2", "bob", created.Code)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.EndSession(ctx, created.Code, created.UserID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Participant(created.Code, created.UserID); !errors.Is(err, ErrNotInSession) {
		t.Errorf("creator still registered after end")
	}
	if _, err := svc.Participant(created.Code, joined.UserID); !errors.Is(err, ErrNotInSession) {
		t.Errorf("player still registered after end")
	}
}
