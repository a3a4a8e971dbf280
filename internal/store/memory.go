package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store with the same snapshot-push contract as the
// Mongo implementation. It backs the test suite and local multi-client
// convergence simulations: any number of independent clients sharing one
// Memory instance observe each other exactly as they would through the
// remote store.
type Memory struct {
	mu   sync.Mutex
	cols map[string]*memCol
	seq  uint64
	subs map[*memSub]struct{}
}

type memCol struct {
	order []string
	docs  map[string]bson.M
}

type memSub struct {
	col     string
	query   bool
	id      string
	field   string
	value   interface{}
	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cols: make(map[string]*memCol),
		subs: make(map[*memSub]struct{}),
	}
}

func (s *Memory) col(name string) *memCol {
	c, ok := s.cols[name]
	if !ok {
		c = &memCol{docs: make(map[string]bson.M)}
		s.cols[name] = c
	}
	return c
}

// notify wakes every subscriber of the collection. Subscribers re-read the
// current state themselves, so waking more than strictly necessary only
// costs a coalesced redundant snapshot. Trigger sends are non-blocking, so
// holding s.mu across the iteration is safe and keeps the map consistent
// with concurrent subscribe/cancel.
func (s *Memory) notify(col string) {
	s.mu.Lock()
	for sub := range s.subs {
		if sub.col != col {
			continue
		}
		select {
		case sub.trigger <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func rawCopy(m bson.M) (bson.Raw, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bson.Raw(raw), nil
}

func (s *Memory) Get(ctx context.Context, col, id string) (*Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(col, id)
}

func (s *Memory) getLocked(col, id string) (*Doc, error) {
	m, ok := s.col(col).docs[id]
	if !ok {
		return nil, nil
	}
	raw, err := rawCopy(m)
	if err != nil {
		return nil, err
	}
	return &Doc{ID: id, Data: raw}, nil
}

func (s *Memory) Set(ctx context.Context, col, id string, doc interface{}) error {
	fields, err := toFields(doc)
	if err != nil {
		return err
	}
	fields["_id"] = id

	s.mu.Lock()
	c := s.col(col)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = fields
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) Update(ctx context.Context, col, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	if m, ok := s.col(col).docs[id]; ok {
		for k, v := range fields {
			m[k] = v
		}
	}
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) Insert(ctx context.Context, col string, doc interface{}) (string, error) {
	fields, err := toFields(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("%012d", s.seq)
	fields["_id"] = id
	c := s.col(col)
	c.order = append(c.order, id)
	c.docs[id] = fields
	s.mu.Unlock()

	s.notify(col)
	return id, nil
}

func (s *Memory) Delete(ctx context.Context, col, id string) error {
	s.mu.Lock()
	s.col(col).remove(id)
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (c *memCol) remove(id string) {
	if _, ok := c.docs[id]; !ok {
		return
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (s *Memory) Increment(ctx context.Context, col, id, field string, delta int) error {
	s.mu.Lock()
	if m, ok := s.col(col).docs[id]; ok {
		m[field] = asInt(m[field]) + int64(delta)
	}
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) ArrayUnion(ctx context.Context, col, id, field, value string) error {
	s.mu.Lock()
	if m, ok := s.col(col).docs[id]; ok {
		arr := asStrings(m[field])
		present := false
		for _, v := range arr {
			if v == value {
				present = true
				break
			}
		}
		if !present {
			m[field] = append(arr, value)
		}
	}
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) ArrayRemove(ctx context.Context, col, id, field, value string) error {
	s.mu.Lock()
	if m, ok := s.col(col).docs[id]; ok {
		arr := asStrings(m[field])
		next := make([]string, 0, len(arr))
		for _, v := range arr {
			if v != value {
				next = append(next, v)
			}
		}
		m[field] = next
	}
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) Query(ctx context.Context, col, field string, value interface{}) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(col, field, value)
}

func (s *Memory) queryLocked(col, field string, value interface{}) ([]Doc, error) {
	c := s.col(col)
	var docs []Doc
	for _, id := range c.order {
		m := c.docs[id]
		if !fieldEquals(m[field], value) {
			continue
		}
		raw, err := rawCopy(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Doc{ID: id, Data: raw})
	}
	return docs, nil
}

func (s *Memory) DeleteWhere(ctx context.Context, col, field string, value interface{}) error {
	s.mu.Lock()
	c := s.col(col)
	var matched []string
	for id, m := range c.docs {
		if fieldEquals(m[field], value) {
			matched = append(matched, id)
		}
	}
	for _, id := range matched {
		c.remove(id)
	}
	s.mu.Unlock()

	s.notify(col)
	return nil
}

func (s *Memory) SubscribeDoc(ctx context.Context, col, id string) (*DocSub, error) {
	sub := &memSub{
		col:     col,
		id:      id,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.addSub(sub)

	ch := make(chan *Doc, 1)
	go func() {
		defer close(ch)
		for {
			s.mu.Lock()
			doc, err := s.getLocked(col, id)
			s.mu.Unlock()
			if err == nil {
				pushLatest(ch, doc)
			}
			select {
			case <-sub.trigger:
			case <-sub.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return &DocSub{C: ch, cancel: func() { s.dropSub(sub) }}, nil
}

func (s *Memory) SubscribeQuery(ctx context.Context, col, field string, value interface{}) (*QuerySub, error) {
	sub := &memSub{
		col:     col,
		query:   true,
		field:   field,
		value:   value,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.addSub(sub)

	ch := make(chan []Doc, 1)
	go func() {
		defer close(ch)
		for {
			s.mu.Lock()
			docs, err := s.queryLocked(col, field, value)
			s.mu.Unlock()
			if err == nil {
				pushLatest(ch, docs)
			}
			select {
			case <-sub.trigger:
			case <-sub.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return &QuerySub{C: ch, cancel: func() { s.dropSub(sub) }}, nil
}

func (s *Memory) addSub(sub *memSub) {
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
}

func (s *Memory) dropSub(sub *memSub) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.once.Do(func() { close(sub.stop) })
}

// asInt reads a numeric field written through any bson round trip.
func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// asStrings reads a string-array field written through any bson round trip.
func asStrings(v interface{}) []string {
	switch arr := v.(type) {
	case []string:
		return append([]string(nil), arr...)
	case primitive.A:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// fieldEquals compares a stored field against a query value. Only values of
// a shared supported kind can match; anything else is unequal rather than
// coerced.
func fieldEquals(have, want interface{}) bool {
	switch hv := have.(type) {
	case string:
		wv, ok := want.(string)
		return ok && hv == wv
	case bool:
		wv, ok := want.(bool)
		return ok && hv == wv
	case int, int32, int64, float64:
		switch want.(type) {
		case int, int32, int64, float64:
			return asInt(have) == asInt(want)
		}
		return false
	default:
		return false
	}
}
