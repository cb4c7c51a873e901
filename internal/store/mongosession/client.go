// Package mongosession persists dynamic session lifecycle records (created,
// ended, last known failure state) to MongoDB, for deployments that want an
// audit trail or a restart-time catalog of sessions independent of the
// in-memory engine.Supervisor. This is record-keeping, not the plan's
// execution state: a session's tasks, queues, and distributors always stay
// in-process (spec Non-goal: persisting/replaying in-flight packets).
package mongosession

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"streamkit.dev/core/internal/engine"
)

const (
	defaultCollection = "pipeline_sessions"
	defaultOpTimeout  = 5 * time.Second
)

// ErrSessionNotFound is returned when a lookup finds no matching record.
var ErrSessionNotFound = errors.New("mongosession: session not found")

// Record is the persisted lifecycle state of one session.
type Record struct {
	SessionID string     `bson:"session_id"`
	Name      string     `bson:"name"`
	Mode      string     `bson:"mode"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
	Failed    bool       `bson:"failed"`
	FailedBy  string     `bson:"failed_by,omitempty"`
}

// Options configures the Mongo-backed store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store persists Records to MongoDB, against a narrow collection interface
// so unit tests can exercise the query/update logic with a fake rather than
// a live server.
type Store struct {
	coll    collection
	timeout time.Duration
}

// New builds a Store, ensuring the unique session_id index exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongosession: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongosession: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	wrapper := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(collName)}
	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(idxCtx, wrapper); err != nil {
		return nil, err
	}
	return &Store{coll: wrapper, timeout: timeout}, nil
}

// CreateSession records a newly created session (spec §4.6 CreateSession).
// The insert is idempotent: calling it twice for the same session id never
// overwrites the original created_at.
func (s *Store) CreateSession(ctx context.Context, sessionID, name string, mode engine.Mode, createdAt time.Time) error {
	if sessionID == "" {
		return errors.New("mongosession: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"session_id": sessionID,
			"name":       name,
			"mode":       string(mode),
			"created_at": createdAt.UTC(),
			"failed":     false,
		},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// EndSession marks a session ended, recording whether it failed and which
// node caused the failure, if any (spec §4.6 DestroySession,
// Session.Failed).
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time, failed bool, failedBy string) error {
	if sessionID == "" {
		return errors.New("mongosession: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"ended_at":  endedAt.UTC(),
			"failed":    failed,
			"failed_by": failedBy,
		},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Load returns the persisted record for a session.
func (s *Store) Load(ctx context.Context, sessionID string) (Record, error) {
	if sessionID == "" {
		return Record{}, errors.New("mongosession: session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var rec Record
	if err := s.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&rec); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListActive returns every session record with no ended_at, for
// restart-time reconciliation against the live engine.Supervisor.
func (s *Store) ListActive(ctx context.Context) ([]Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"ended_at": bson.M{"$exists": false}})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []Record
	for cur.Next(ctx) {
		var rec Record
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, idx)
	return err
}

// collection is the narrow surface Store needs from *mongo.Collection,
// extracted so tests can supply a fake instead of a live server.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error { return r.res.Decode(val) }

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c mongoCursor) Decode(val any) error            { return c.cur.Decode(val) }
func (c mongoCursor) Err() error                       { return c.cur.Err() }
func (c mongoCursor) Next(ctx context.Context) bool    { return c.cur.Next(ctx) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
