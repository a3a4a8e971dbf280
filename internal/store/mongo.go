package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on a MongoDB database. Documents are keyed by string
// _id values (store-assigned ids are ObjectID hex strings, which sort in
// insertion order). Subscriptions are built on change streams and therefore
// require a replica-set deployment.
type Mongo struct {
	db  *mongo.Database
	log zerolog.Logger
}

// NewMongo creates a Mongo store on the given database.
func NewMongo(db *mongo.Database, log zerolog.Logger) *Mongo {
	return &Mongo{db: db, log: log.With().Str("component", "store").Logger()}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *Mongo) Get(ctx context.Context, col, id string) (*Doc, error) {
	res := s.db.Collection(col).FindOne(ctx, bson.M{"_id": id})
	raw, err := res.Raw()
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &Doc{ID: id, Data: bson.Raw(append([]byte(nil), raw...))}, nil
}

func (s *Mongo) Set(ctx context.Context, col, id string, doc interface{}) error {
	fields, err := toFields(doc)
	if err != nil {
		return err
	}
	fields["_id"] = id
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(col).ReplaceOne(ctx, bson.M{"_id": id}, fields, opts); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) Update(ctx context.Context, col, id string, fields map[string]interface{}) error {
	_, err := s.db.Collection(col).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) Insert(ctx context.Context, col string, doc interface{}) (string, error) {
	fields, err := toFields(doc)
	if err != nil {
		return "", err
	}
	id := primitive.NewObjectID().Hex()
	fields["_id"] = id
	if _, err := s.db.Collection(col).InsertOne(ctx, fields); err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

func (s *Mongo) Delete(ctx context.Context, col, id string) error {
	if _, err := s.db.Collection(col).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) Increment(ctx context.Context, col, id, field string, delta int) error {
	_, err := s.db.Collection(col).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) ArrayUnion(ctx context.Context, col, id, field, value string) error {
	_, err := s.db.Collection(col).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{field: value}})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) ArrayRemove(ctx context.Context, col, id, field, value string) error {
	_, err := s.db.Collection(col).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{field: value}})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) Query(ctx context.Context, col, field string, value interface{}) ([]Doc, error) {
	opts := options.Find().SetSort(bson.M{"_id": 1})
	cur, err := s.db.Collection(col).Find(ctx, bson.M{field: value}, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	var docs []Doc
	for cur.Next(ctx) {
		raw := bson.Raw(append([]byte(nil), cur.Current...))
		id, _ := raw.Lookup("_id").StringValueOK()
		docs = append(docs, Doc{ID: id, Data: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable(err)
	}
	return docs, nil
}

func (s *Mongo) DeleteWhere(ctx context.Context, col, field string, value interface{}) error {
	if _, err := s.db.Collection(col).DeleteMany(ctx, bson.M{field: value}); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Mongo) SubscribeDoc(ctx context.Context, col, id string) (*DocSub, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}}}
	cs, err := s.db.Collection(col).Watch(ctx, pipeline)
	if err != nil {
		return nil, unavailable(err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan *Doc, 1)
	go func() {
		defer close(ch)
		defer cs.Close(context.Background())

		// Initial snapshot, then one re-read per observed change. Re-reading
		// instead of decoding the event keeps the "always the current full
		// state" contract even when events are coalesced.
		doc, err := s.Get(subCtx, col, id)
		if err == nil {
			pushLatest(ch, doc)
		}
		for cs.Next(subCtx) {
			doc, err := s.Get(subCtx, col, id)
			if err != nil {
				s.log.Warn().Err(err).Str("collection", col).Str("id", id).Msg("snapshot re-read failed")
				continue
			}
			pushLatest(ch, doc)
		}
	}()
	return &DocSub{C: ch, cancel: cancel}, nil
}

func (s *Mongo) SubscribeQuery(ctx context.Context, col, field string, value interface{}) (*QuerySub, error) {
	cs, err := s.db.Collection(col).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, unavailable(err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan []Doc, 1)
	go func() {
		defer close(ch)
		defer cs.Close(context.Background())

		docs, err := s.Query(subCtx, col, field, value)
		if err == nil {
			pushLatest(ch, docs)
		}
		for cs.Next(subCtx) {
			docs, err := s.Query(subCtx, col, field, value)
			if err != nil {
				s.log.Warn().Err(err).Str("collection", col).Msg("query re-read failed")
				continue
			}
			pushLatest(ch, docs)
		}
	}()
	return &QuerySub{C: ch, cancel: cancel}, nil
}

// pushLatest delivers v on ch, displacing an undelivered older snapshot if
// the receiver has fallen behind. The channel only ever holds the latest
// state, which is all the engine's monotonic barrier checks need.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
