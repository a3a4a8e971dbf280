package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sessionDoc struct {
	Active bool     `bson:"active"`
	Round  int      `bson:"round"`
	Users  []string `bson:"users"`
}

type msgDoc struct {
	SessionCode string `bson:"sessionCode"`
	Text        string `bson:"text"`
	Selected    int    `bson:"selected"`
}

func TestMemoryGetAbsent(t *testing.T) {
	s := NewMemory()
	doc, err := s.Get(context.Background(), "sessions", "none")
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Fatalf("absent doc = %+v, want nil", doc)
	}
}

func TestMemorySetGetUpdate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Set(ctx, "sessions", "abcd", sessionDoc{Active: true, Users: []string{"u1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "sessions", "abcd", map[string]interface{}{"round": 3}); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Get(ctx, "sessions", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	var got sessionDoc
	if err := doc.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Active || got.Round != 3 || len(got.Users) != 1 {
		t.Errorf("doc = %+v", got)
	}
}

func TestMemoryIncrement(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id, err := s.Insert(ctx, "messages", msgDoc{SessionCode: "abcd", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Increment(ctx, "messages", id, "selected", 1); err != nil {
			t.Fatal(err)
		}
	}

	doc, _ := s.Get(ctx, "messages", id)
	var got msgDoc
	if err := doc.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Selected != 3 {
		t.Errorf("selected = %d, want 3", got.Selected)
	}
}

func TestMemoryArrayOps(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Set(ctx, "sessions", "abcd", sessionDoc{Users: []string{"u1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ArrayUnion(ctx, "sessions", "abcd", "users", "u2"); err != nil {
		t.Fatal(err)
	}
	// Union of a present value is a no-op.
	if err := s.ArrayUnion(ctx, "sessions", "abcd", "users", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := s.ArrayRemove(ctx, "sessions", "abcd", "users", "u1"); err != nil {
		t.Fatal(err)
	}

	doc, _ := s.Get(ctx, "sessions", "abcd")
	var got sessionDoc
	if err := doc.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Users) != 1 || got.Users[0] != "u2" {
		t.Errorf("users = %v", got.Users)
	}
}

func TestMemoryQueryInsertionOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		if _, err := s.Insert(ctx, "messages", msgDoc{SessionCode: "abcd", Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Insert(ctx, "messages", msgDoc{SessionCode: "zzzz", Text: "other"}); err != nil {
		t.Fatal(err)
	}

	docs, err := s.Query(ctx, "messages", "sessionCode", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != len(texts) {
		t.Fatalf("got %d docs, want %d", len(docs), len(texts))
	}
	for i, doc := range docs {
		var got msgDoc
		if err := doc.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Text != texts[i] {
			t.Errorf("doc %d text = %q, want %q", i, got.Text, texts[i])
		}
	}
}

func TestMemoryDeleteWhere(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for _, code := range []string{"abcd", "abcd", "zzzz"} {
		if _, err := s.Insert(ctx, "messages", msgDoc{SessionCode: code}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteWhere(ctx, "messages", "sessionCode", "abcd"); err != nil {
		t.Fatal(err)
	}

	remaining, _ := s.Query(ctx, "messages", "sessionCode", "abcd")
	if len(remaining) != 0 {
		t.Errorf("%d docs survived DeleteWhere", len(remaining))
	}
	others, _ := s.Query(ctx, "messages", "sessionCode", "zzzz")
	if len(others) != 1 {
		t.Errorf("unrelated docs affected: %d left", len(others))
	}
}

func TestMemoryQueryTypedFields(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	type flagDoc struct {
		Code   string `bson:"code"`
		Active bool   `bson:"active"`
		Round  int    `bson:"round"`
	}
	if _, err := s.Insert(ctx, "flags", flagDoc{Code: "abcd", Active: true, Round: 2}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		field string
		value interface{}
		want  int
	}{
		{"bool matches bool", "active", true, 1},
		{"bool does not match int", "active", 1, 0},
		{"int matches across widths", "round", int64(2), 1},
		{"int does not match bool", "round", true, 0},
		{"string does not match int field", "round", "2", 0},
		{"absent field matches nothing", "missing", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs, err := s.Query(ctx, "flags", tc.field, tc.value)
			if err != nil {
				t.Fatal(err)
			}
			if len(docs) != tc.want {
				t.Errorf("got %d docs, want %d", len(docs), tc.want)
			}
		})
	}
}

// Subscription churn must stay safe against concurrent writers; subscribers
// attach and cancel mid-game while other participants keep writing.
func TestMemoryConcurrentSubscribeAndWrite(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.Set(ctx, "sessions", "abcd", sessionDoc{Round: 1}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	time.AfterFunc(200*time.Millisecond, func() { close(stop) })

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sub, err := s.SubscribeDoc(ctx, "sessions", "abcd")
				if err != nil {
					t.Error(err)
					return
				}
				<-sub.C
				sub.Cancel()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := s.Update(ctx, "sessions", "abcd", map[string]interface{}{"round": n}); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func waitDoc(t *testing.T, ch <-chan *Doc) *Doc {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("no document snapshot delivered")
		return nil
	}
}

func TestMemorySubscribeDoc(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Set(ctx, "sessions", "abcd", sessionDoc{Round: 1}); err != nil {
		t.Fatal(err)
	}
	sub, err := s.SubscribeDoc(ctx, "sessions", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	// Initial snapshot arrives without any write.
	first := waitDoc(t, sub.C)
	if first == nil {
		t.Fatal("initial snapshot is nil")
	}

	if err := s.Update(ctx, "sessions", "abcd", map[string]interface{}{"round": 2}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		doc := waitDoc(t, sub.C)
		if doc == nil {
			t.Fatal("unexpected deletion snapshot")
		}
		var got sessionDoc
		if err := doc.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Round == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("update never observed, last round = %d", got.Round)
		}
	}

	// Deletion is pushed as a nil document.
	if err := s.Delete(ctx, "sessions", "abcd"); err != nil {
		t.Fatal(err)
	}
	for {
		select {
		case doc := <-sub.C:
			if doc == nil {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("deletion never observed")
		}
	}
}

func TestMemorySubscribeQuery(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	sub, err := s.SubscribeQuery(ctx, "messages", "sessionCode", "abcd")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	select {
	case docs := <-sub.C:
		if len(docs) != 0 {
			t.Fatalf("initial snapshot has %d docs", len(docs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := s.Insert(ctx, "messages", msgDoc{SessionCode: "abcd", Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case docs := <-sub.C:
			if len(docs) == 1 {
				return
			}
		case <-time.After(time.Until(deadline)):
			t.Fatal("insert never observed")
		}
	}
}
