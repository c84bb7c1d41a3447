package store

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chirpfeed/chirpfeed/pkg/logger"
)

const parentField = "_parent"

// Mongo implements Store on a MongoDB database. Child collection paths
// ("posts/<id>/comments") are flattened into a "posts.comments" collection
// carrying a parent-document field. Live subscriptions are driven by change
// streams: every stream event triggers a re-query so subscribers always see
// the full ordered snapshot, never a partial update.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// resolvePath maps a collection path to a concrete collection and filter.
func (m *Mongo) resolvePath(path string) (*mongo.Collection, bson.M, error) {
	if !validPath(path) {
		return nil, nil, ErrBadPath
	}
	parts := strings.Split(path, "/")
	if len(parts) == 1 {
		return m.db.Collection(parts[0]), bson.M{}, nil
	}
	col := m.db.Collection(parts[0] + "." + parts[2])
	return col, bson.M{parentField: parts[1]}, nil
}

func (m *Mongo) AddDocument(ctx context.Context, path string, fields Fields) (string, error) {
	col, filter, err := m.resolvePath(path)
	if err != nil {
		return "", err
	}

	set := setStage(fields, filter[parentField])

	id := primitive.NewObjectID()
	pipeline := mongo.Pipeline{bson.D{{Key: "$set", Value: set}}}
	opts := options.Update().SetUpsert(true)
	if _, err := col.UpdateOne(ctx, bson.M{"_id": id}, pipeline, opts); err != nil {
		return "", err
	}
	return id.Hex(), nil
}

// setStage builds the $set document for the insert pipeline. Pipeline stages
// evaluate string values as aggregation expressions, so every user-supplied
// value is wrapped in $literal; a post text like "$100 for lunch" must land
// verbatim, never be read as a field path. Only the server-time sentinel
// stays bare, as the "$$NOW" variable.
func setStage(fields Fields, parent any) bson.M {
	set := bson.M{}
	for k, v := range fields {
		if _, ok := v.(serverTime); ok {
			set[k] = "$$NOW"
			continue
		}
		set[k] = bson.M{"$literal": v}
	}
	if parent != nil {
		set[parentField] = bson.M{"$literal": parent}
	}
	return set
}

func (m *Mongo) SubscribeCollection(ctx context.Context, path, orderBy string, cb SnapshotFunc) (Unsubscribe, error) {
	col, filter, err := m.resolvePath(path)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	sub := &memSub{cb: cb}

	// every re-query reads the collection's current state, so each delivery
	// supersedes the previous one
	var ver atomic.Uint64
	deliver := func() {
		docs, err := m.query(streamCtx, col, filter, orderBy)
		if err != nil {
			if streamCtx.Err() == nil {
				logger.Warnf("store: snapshot query for %s failed: %v", path, err)
			}
			return
		}
		sub.deliver(ver.Add(1), docs)
	}

	// initial snapshot delivered synchronously before any stream event
	docs, err := m.query(ctx, col, filter, orderBy)
	if err != nil {
		cancel()
		return nil, err
	}
	sub.deliver(ver.Add(1), docs)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.watch(streamCtx, col, path, deliver)
	}()

	return func() {
		cancel()
		wg.Wait()
		sub.mu.Lock()
		sub.released = true
		sub.mu.Unlock()
	}, nil
}

// watch tails the collection's change stream and re-queries on every event.
// Stream establishment failures are retried with backoff rather than tearing
// the subscription down.
func (m *Mongo) watch(ctx context.Context, col *mongo.Collection, path string, deliver func()) {
	backoff := time.Second
	for ctx.Err() == nil {
		cs, err := col.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("store: change stream for %s unavailable, retrying in %s: %v", path, backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		for cs.Next(ctx) {
			deliver()
		}
		_ = cs.Close(context.Background())
	}
}

func (m *Mongo) query(ctx context.Context, col *mongo.Collection, filter bson.M, orderBy string) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: orderBy, Value: -1}})
	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, decodeDocument(raw))
	}
	return out, cur.Err()
}

func decodeDocument(raw bson.M) Document {
	doc := Document{Fields: Fields{}}
	for k, v := range raw {
		switch k {
		case "_id":
			if oid, ok := v.(primitive.ObjectID); ok {
				doc.ID = oid.Hex()
			}
		case parentField:
			// addressing detail, not document data
		default:
			if dt, ok := v.(primitive.DateTime); ok {
				doc.Fields[k] = dt.Time().UTC()
				continue
			}
			doc.Fields[k] = v
		}
	}
	return doc
}
