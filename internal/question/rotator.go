package question

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"troll/internal/cache"
	"troll/internal/store"
)

// PoolSize is the number of entries in the question corpus, with ids
// "0" through "73".
const PoolSize = 74

// Collection holding the read-only question corpus.
const Collection = "questions"

// Pair is one corpus entry: the prompt shown to all participants and the
// genuine answer planted among their decoys.
type Pair struct {
	ID       string `json:"id" bson:"_id,omitempty"`
	Question string `json:"question" bson:"question"`
	Answer   string `json:"answer" bson:"answer"`
}

// Rotator hands out non-repeating question ids from the fixed pool. The used
// set is persisted through the key-value cache under the owning device's key,
// so rotation survives process restarts. When the pool is exhausted the set
// resets and a new cycle begins.
type Rotator struct {
	store    store.Store
	kv       cache.KV
	key      string
	poolSize int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRotator creates a rotator whose used set belongs to ownerID (the
// creator device driving question selection for its sessions).
func NewRotator(st store.Store, kv cache.KV, ownerID string) *Rotator {
	return &Rotator{
		store:    st,
		kv:       kv,
		key:      fmt.Sprintf("qids:%s", ownerID),
		poolSize: PoolSize,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next draws an unused question id uniformly at random, marks it used,
// persists the updated set and returns the corpus entry.
func (r *Rotator) Next(ctx context.Context) (*Pair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used, err := r.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load used question ids: %w", err)
	}
	if len(used) >= r.poolSize {
		// Exhaustion: every id has been handed out once, start a new cycle.
		used = used[:0]
	}

	var qid string
	for {
		qid = strconv.Itoa(r.rng.Intn(r.poolSize))
		if !contains(used, qid) {
			break
		}
	}
	used = append(used, qid)
	if err := r.save(ctx, used); err != nil {
		return nil, fmt.Errorf("persist used question ids: %w", err)
	}

	doc, err := r.store.Get(ctx, Collection, qid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("question %s missing from corpus", qid)
	}
	var pair Pair
	if err := doc.Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", qid, err)
	}
	pair.ID = qid
	return &pair, nil
}

func (r *Rotator) load(ctx context.Context) ([]string, error) {
	raw, ok, err := r.kv.Get(ctx, r.key)
	if err != nil || !ok {
		return nil, err
	}
	var used []string
	if err := json.Unmarshal([]byte(raw), &used); err != nil {
		// A corrupt set only risks repeats within this cycle; start over.
		return nil, nil
	}
	return used, nil
}

func (r *Rotator) save(ctx context.Context, used []string) error {
	raw, err := json.Marshal(used)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.key, string(raw))
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
