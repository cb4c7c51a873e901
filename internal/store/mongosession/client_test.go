package mongosession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"streamkit.dev/core/internal/engine"
)

type fakeCollection struct {
	mu           sync.Mutex
	records      map[string]Record
	indexCreated int
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{records: make(map[string]Record)}
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
	id := sessionIDFromFilter(filter)
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return fakeSingleResult{rec: rec, found: ok}
}

func (f *fakeCollection) Find(_ context.Context, _ any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.records {
		if rec.EndedAt == nil {
			out = append(out, rec)
		}
	}
	return &fakeCursor{records: out}, nil
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	id := sessionIDFromFilter(filter)
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, exists := f.records[id]
	u, ok := update.(bson.M)
	if !ok {
		return nil, errors.New("fakeCollection: unsupported update shape")
	}

	upsert := len(opts) > 0
	if setOnInsert, ok := u["$setOnInsert"].(bson.M); ok {
		if !exists {
			if !upsert {
				return &mongodriver.UpdateResult{MatchedCount: 0}, nil
			}
			f.records[id] = recordFromSetOnInsert(setOnInsert)
		}
		return &mongodriver.UpdateResult{MatchedCount: 1, UpsertedCount: boolToInt64(!exists)}, nil
	}
	if set, ok := u["$set"].(bson.M); ok {
		if !exists {
			return &mongodriver.UpdateResult{MatchedCount: 0}, nil
		}
		applySet(&rec, set)
		f.records[id] = rec
		return &mongodriver.UpdateResult{MatchedCount: 1}, nil
	}
	return nil, errors.New("fakeCollection: update must set $setOnInsert or $set")
}

func (f *fakeCollection) Indexes() indexView { return fakeIndexView{f} }

type fakeIndexView struct{ f *fakeCollection }

func (v fakeIndexView) CreateOne(context.Context, mongodriver.IndexModel, ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	v.f.indexCreated++
	return "idx", nil
}

type fakeSingleResult struct {
	rec   Record
	found bool
}

func (r fakeSingleResult) Decode(val any) error {
	if !r.found {
		return mongodriver.ErrNoDocuments
	}
	out, ok := val.(*Record)
	if !ok {
		return errors.New("fakeSingleResult: unsupported decode target")
	}
	*out = r.rec
	return nil
}

type fakeCursor struct {
	records []Record
	pos     int
}

func (c *fakeCursor) Close(context.Context) error { return nil }
func (c *fakeCursor) Err() error                  { return nil }
func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.records) {
		return false
	}
	c.pos++
	return true
}
func (c *fakeCursor) Decode(val any) error {
	out, ok := val.(*Record)
	if !ok {
		return errors.New("fakeCursor: unsupported decode target")
	}
	*out = c.records[c.pos-1]
	return nil
}

func sessionIDFromFilter(filter any) string {
	m, ok := filter.(bson.M)
	if !ok {
		return ""
	}
	id, _ := m["session_id"].(string)
	return id
}

func recordFromSetOnInsert(fields bson.M) Record {
	rec := Record{}
	if v, ok := fields["session_id"].(string); ok {
		rec.SessionID = v
	}
	if v, ok := fields["name"].(string); ok {
		rec.Name = v
	}
	if v, ok := fields["mode"].(string); ok {
		rec.Mode = v
	}
	if v, ok := fields["created_at"].(time.Time); ok {
		rec.CreatedAt = v
	}
	if v, ok := fields["failed"].(bool); ok {
		rec.Failed = v
	}
	return rec
}

func applySet(rec *Record, fields bson.M) {
	if v, ok := fields["ended_at"].(time.Time); ok {
		rec.EndedAt = &v
	}
	if v, ok := fields["failed"].(bool); ok {
		rec.Failed = v
	}
	if v, ok := fields["failed_by"].(string); ok {
		rec.FailedBy = v
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func newTestStore(coll collection) *Store {
	return &Store{coll: coll, timeout: time.Second}
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	coll := newFakeCollection()
	store := newTestStore(coll)
	now := time.Now().UTC()

	require.NoError(t, store.CreateSession(context.Background(), "sess-1", "demo", engine.Mode("dynamic"), now))
	require.NoError(t, store.CreateSession(context.Background(), "sess-1", "demo", engine.Mode("dynamic"), now.Add(time.Minute)))

	rec, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, rec.CreatedAt.Equal(now))
}

func TestEndSessionRecordsFailure(t *testing.T) {
	coll := newFakeCollection()
	store := newTestStore(coll)
	now := time.Now().UTC()
	require.NoError(t, store.CreateSession(context.Background(), "sess-1", "demo", engine.Mode("dynamic"), now))

	end := now.Add(time.Minute)
	require.NoError(t, store.EndSession(context.Background(), "sess-1", end, true, "node-a"))

	rec, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, rec.Failed)
	require.Equal(t, "node-a", rec.FailedBy)
	require.NotNil(t, rec.EndedAt)
}

func TestEndSessionUnknownSessionErrors(t *testing.T) {
	store := newTestStore(newFakeCollection())
	err := store.EndSession(context.Background(), "nope", time.Now(), false, "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoadUnknownSessionErrors(t *testing.T) {
	store := newTestStore(newFakeCollection())
	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
