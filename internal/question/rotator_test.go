package question

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"troll/internal/cache"
	"troll/internal/store"
)

func seedCorpus(t *testing.T, st store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		pair := Pair{
			Question: fmt.Sprintf("question %d", i),
			Answer:   fmt.Sprintf("answer %d", i),
		}
		if err := st.Set(ctx, Collection, strconv.Itoa(i), pair); err != nil {
			t.Fatalf("seed question %d: %v", i, err)
		}
	}
}

func newTestRotator(st store.Store, kv cache.KV, poolSize int) *Rotator {
	r := NewRotator(st, kv, "user_test")
	r.poolSize = poolSize
	r.rng = rand.New(rand.NewSource(1))
	return r
}

func TestNextNeverRepeatsWithinCycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedCorpus(t, st, PoolSize)
	rot := newTestRotator(st, cache.NewMemoryKV(), PoolSize)

	seen := make(map[string]bool)
	for i := 0; i < PoolSize; i++ {
		pair, err := rot.Next(ctx)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if seen[pair.ID] {
			t.Fatalf("draw %d repeated question id %s within one cycle", i, pair.ID)
		}
		seen[pair.ID] = true
	}
	if len(seen) != PoolSize {
		t.Fatalf("drew %d distinct ids, want %d", len(seen), PoolSize)
	}
}

func TestNextResetsAfterExhaustion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedCorpus(t, st, 5)
	rot := newTestRotator(st, cache.NewMemoryKV(), 5)

	for i := 0; i < 5; i++ {
		if _, err := rot.Next(ctx); err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
	}

	// The next cycle must again cover the whole pool without repeats.
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		pair, err := rot.Next(ctx)
		if err != nil {
			t.Fatalf("second cycle draw %d: %v", i, err)
		}
		if seen[pair.ID] {
			t.Fatalf("second cycle repeated id %s", pair.ID)
		}
		seen[pair.ID] = true
	}
}

func TestUsedSetSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedCorpus(t, st, 4)
	kv := cache.NewMemoryKV()

	first := newTestRotator(st, kv, 4)
	drawn := make(map[string]bool)
	for i := 0; i < 2; i++ {
		pair, err := first.Next(ctx)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		drawn[pair.ID] = true
	}

	// A new rotator over the same cache picks up the persisted used set.
	second := newTestRotator(st, kv, 4)
	for i := 0; i < 2; i++ {
		pair, err := second.Next(ctx)
		if err != nil {
			t.Fatalf("post-restart draw %d: %v", i, err)
		}
		if drawn[pair.ID] {
			t.Fatalf("post-restart draw repeated id %s from previous process", pair.ID)
		}
		drawn[pair.ID] = true
	}
}

func TestNextReturnsCorpusEntry(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedCorpus(t, st, 1)
	rot := newTestRotator(st, cache.NewMemoryKV(), 1)

	pair, err := rot.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pair.ID != "0" || pair.Question != "question 0" || pair.Answer != "answer 0" {
		t.Errorf("unexpected pair: %+v", pair)
	}
}
