package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrUnavailable wraps every transient backend failure. Callers surface it as
// a retryable condition; no automatic retry happens below this package.
var ErrUnavailable = errors.New("store unavailable")

// Doc is one document as delivered by the store: its id plus raw fields.
type Doc struct {
	ID   string
	Data bson.Raw
}

// Decode unmarshals the document fields into v.
func (d *Doc) Decode(v interface{}) error {
	return bson.Unmarshal(d.Data, v)
}

// DocSub is a live subscription to a single document. C delivers the current
// full state of the document after every observed change (nil when the
// document is absent or deleted). Rapid updates may be coalesced, but the
// latest state is always eventually delivered.
type DocSub struct {
	C      <-chan *Doc
	cancel func()
}

// Cancel stops the subscription and closes C.
func (s *DocSub) Cancel() { s.cancel() }

// QuerySub is a live subscription to the set of documents matching a field
// equality. C delivers the full current result set after every change to the
// collection, with the same coalescing contract as DocSub.
type QuerySub struct {
	C      <-chan []Doc
	cancel func()
}

// Cancel stops the subscription and closes C.
func (s *QuerySub) Cancel() { s.cancel() }

// Store is the document-store surface the game engine consumes. Individual
// field operations (Increment, ArrayUnion, ArrayRemove) are atomic with
// respect to concurrent writers from other clients; no guarantee is made
// about ordering across different documents or collections.
type Store interface {
	// Get returns the document, or (nil, nil) when it does not exist.
	Get(ctx context.Context, col, id string) (*Doc, error)
	// Set writes the full document, creating it if absent.
	Set(ctx context.Context, col, id string, doc interface{}) error
	// Update applies a partial field update to an existing document.
	Update(ctx context.Context, col, id string, fields map[string]interface{}) error
	// Insert adds a document under a store-assigned id and returns that id.
	// Assigned ids sort in insertion order within a collection.
	Insert(ctx context.Context, col string, doc interface{}) (string, error)
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, col, id string) error
	// Increment atomically adds delta to a numeric field.
	Increment(ctx context.Context, col, id, field string, delta int) error
	// ArrayUnion atomically adds value to a string-array field if not present.
	ArrayUnion(ctx context.Context, col, id, field, value string) error
	// ArrayRemove atomically removes value from a string-array field.
	ArrayRemove(ctx context.Context, col, id, field, value string) error
	// Query returns all documents whose field equals value, in insertion order.
	Query(ctx context.Context, col, field string, value interface{}) ([]Doc, error)
	// DeleteWhere removes all documents whose field equals value.
	DeleteWhere(ctx context.Context, col, field string, value interface{}) error
	// SubscribeDoc starts a snapshot stream for a single document.
	SubscribeDoc(ctx context.Context, col, id string) (*DocSub, error)
	// SubscribeQuery starts a snapshot stream for a field-equality query.
	SubscribeQuery(ctx context.Context, col, field string, value interface{}) (*QuerySub, error)
}

// toFields normalizes an arbitrary document value into a bson.M with any
// caller-supplied _id stripped, so the store stays in control of ids.
func toFields(doc interface{}) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return m, nil
}
