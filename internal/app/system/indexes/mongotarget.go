// internal/app/system/indexes/mongotarget.go
package indexes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"github.com/dalemusser/chatschema/internal/domain/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoTarget applies the schema to a MongoDB database. It implements both
// Target and Inspector.
type MongoTarget struct {
	db  *mongo.Database
	log *zap.Logger
	rec Recorder
}

// NewMongoTarget wraps db. A nil logger falls back to zap.L(); rec may be nil.
func NewMongoTarget(db *mongo.Database, logger *zap.Logger, rec Recorder) *MongoTarget {
	if logger == nil {
		logger = zap.L()
	}
	return &MongoTarget{db: db, log: logger, rec: rec}
}

// ExistingIndex is an index as reported by listIndexes.
type ExistingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`

	// Options that narrow what a unique index enforces.
	PartialFilterExpression bson.Raw `bson:"partialFilterExpression,omitempty"`
	Sparse                  *bool    `bson:"sparse,omitempty"`
	Collation               bson.Raw `bson:"collation,omitempty"`
}

// IsUnique reports the unique flag, treating an absent flag as false.
func (ix ExistingIndex) IsUnique() bool {
	return ix.Unique != nil && *ix.Unique
}

// restricted reports whether the index only covers part of the collection
// or compares values under a collation, so uniqueness is not enforced on
// the plain field value.
func (ix ExistingIndex) restricted() bool {
	return len(ix.PartialFilterExpression) > 0 ||
		(ix.Sparse != nil && *ix.Sparse) ||
		len(ix.Collation) > 0
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func (m *MongoTarget) record(kind, collection, name string, outcome Outcome) {
	if m.rec != nil {
		m.rec.Record(kind, collection, name, outcome)
	}
}

// CreateCollectionIfNotExists creates the collection; NamespaceExists counts
// as success, which also covers a concurrent replica winning the race.
func (m *MongoTarget) CreateCollectionIfNotExists(ctx context.Context, name string) error {
	if m == nil || m.db == nil {
		return &ConnectionError{Op: "create collection " + name, Err: ErrNoConnection}
	}

	start := time.Now()
	opCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Operation(), m.log, "create collection "+name)
	defer cancel()

	err := m.db.CreateCollection(opCtx, name)
	switch {
	case err == nil:
		m.log.Info("collection created",
			zap.String("collection", name),
			zap.String("took", time.Since(start).String()))
		m.record(KindCollection, name, name, OutcomeCreated)
		return nil
	case isNamespaceExistsErr(err):
		m.log.Info("collection already exists",
			zap.String("collection", name),
			zap.String("took", time.Since(start).String()))
		m.record(KindCollection, name, name, OutcomeExisting)
		return nil
	default:
		m.log.Warn("create collection failed",
			zap.String("collection", name),
			zap.Error(err))
		m.record(KindCollection, name, name, OutcomeFailed)
		return classify("create collection "+name, err)
	}
}

// ListIndexes returns the indexes on collection. A missing collection has none.
func (m *MongoTarget) ListIndexes(ctx context.Context, collection string) ([]ExistingIndex, error) {
	if m == nil || m.db == nil {
		return nil, &ConnectionError{Op: "list indexes " + collection, Err: ErrNoConnection}
	}

	opCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Operation(), m.log, "list indexes "+collection)
	defer cancel()

	cur, err := m.db.Collection(collection).Indexes().List(opCtx)
	if err != nil {
		if isNamespaceNotFoundErr(err) {
			return nil, nil
		}
		return nil, classify("list indexes "+collection, err)
	}
	defer cur.Close(opCtx)

	out, err := decodeIndexes(opCtx, cur)
	if err != nil {
		m.log.Warn("failed to read existing indexes",
			zap.String("collection", collection),
			zap.Error(err))
		return nil, classify("list indexes "+collection, err)
	}
	return out, nil
}

// decodeIndexes reads every listIndexes entry. An entry that does not decode
// fails the whole listing, since skipping it could hide a conflicting index.
func decodeIndexes(ctx context.Context, cur *mongo.Cursor) ([]ExistingIndex, error) {
	var out []ExistingIndex
	for cur.Next(ctx) {
		var idx ExistingIndex
		if err := cur.Decode(&idx); err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		out = append(out, idx)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectionExists reports whether name is present in the database.
func (m *MongoTarget) CollectionExists(ctx context.Context, name string) (bool, error) {
	if m == nil || m.db == nil {
		return false, &ConnectionError{Op: "list collections", Err: ErrNoConnection}
	}

	opCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Operation(), m.log, "list collections")
	defer cancel()

	names, err := m.db.ListCollectionNames(opCtx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, classify("list collections", err)
	}
	return len(names) > 0, nil
}

const restrictedReason = "index has a partial/sparse/collation option"

// match compares the desired spec against what is on the server.
// It returns the index that already satisfies spec, or a conflict.
func match(spec schema.IndexSpec, existing []ExistingIndex) (*ExistingIndex, *ConstraintConflictError) {
	desiredSig := keySig(spec.Keys())

	// Mongo allows several indexes on the same key when they differ by
	// partial filter or collation, so any one of them may satisfy spec.
	var sameKeys []*ExistingIndex
	for i := range existing {
		ex := &existing[i]
		sig := keySig(ex.Key)

		if ex.Name == spec.Name() {
			if sig != desiredSig || ex.IsUnique() != spec.Unique {
				return nil, conflictFor(spec, ex, "an index with this name exists with a different definition")
			}
			if ex.restricted() {
				return nil, conflictFor(spec, ex, restrictedReason)
			}
			return ex, nil
		}
		if sig == desiredSig {
			sameKeys = append(sameKeys, ex)
		}
	}

	for _, ex := range sameKeys {
		if ex.IsUnique() == spec.Unique && !ex.restricted() {
			return ex, nil
		}
	}
	if len(sameKeys) > 0 {
		ex := sameKeys[0]
		if ex.IsUnique() != spec.Unique {
			return nil, conflictFor(spec, ex, "an index on the same key exists with a different unique option")
		}
		return nil, conflictFor(spec, ex, restrictedReason)
	}
	return nil, nil
}

func conflictFor(spec schema.IndexSpec, ex *ExistingIndex, reason string) *ConstraintConflictError {
	return &ConstraintConflictError{
		Collection:     spec.Collection,
		Index:          spec.Name(),
		Field:          spec.Field,
		Unique:         spec.Unique,
		ExistingName:   ex.Name,
		ExistingKeys:   keySig(ex.Key),
		ExistingUnique: ex.IsUnique(),
		Reason:         reason,
	}
}

// CreateIndexIfNotExists makes sure spec is present. A matching index (by name,
// or by key under another name) is reused; an incompatible one is reported as
// a ConstraintConflictError and never dropped.
func (m *MongoTarget) CreateIndexIfNotExists(ctx context.Context, spec schema.IndexSpec) error {
	op := "create index " + spec.String()
	if m == nil || m.db == nil {
		return &ConnectionError{Op: op, Err: ErrNoConnection}
	}

	coll := m.db.Collection(spec.Collection)
	desiredSig := keySig(spec.Keys())
	start := time.Now()

	m.log.Info("ensuring index",
		zap.String("collection", spec.Collection),
		zap.String("name", spec.Name()),
		zap.String("keys", desiredSig),
		zap.Bool("unique", spec.Unique))

	// 1) Compare with what is already there.
	existing, err := m.ListIndexes(ctx, spec.Collection)
	if err != nil {
		m.record(KindIndex, spec.Collection, spec.Name(), OutcomeFailed)
		return err
	}
	if done, err := m.resolve(spec, existing, start, ""); done {
		return err
	}

	// 2) Nothing equivalent yet: create it.
	model := mongo.IndexModel{
		Keys:    spec.Keys(),
		Options: options.Index().SetName(spec.Name()).SetUnique(spec.Unique),
	}
	opCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Operation(), m.log, op)
	created, err := coll.Indexes().CreateOne(opCtx, model)
	cancel()
	if err == nil {
		m.log.Info("index ensured",
			zap.String("collection", spec.Collection),
			zap.String("name", spec.Name()),
			zap.String("created_name", created),
			zap.String("keys", desiredSig),
			zap.Bool("unique", spec.Unique),
			zap.String("took", time.Since(start).String()))
		m.record(KindIndex, spec.Collection, spec.Name(), OutcomeCreated)
		return nil
	}

	// Another process may have created an equivalent index between the
	// listing and CreateOne. Look once more before giving up.
	if isOptionsConflictErr(err) {
		existing, lerr := m.ListIndexes(ctx, spec.Collection)
		if lerr == nil {
			if done, rerr := m.resolve(spec, existing, start, " (post-conflict)"); done {
				return rerr
			}
		}
	}

	if isDuplicateKeyErr(err) && spec.Unique {
		m.log.Warn("cannot create unique index, duplicates present",
			zap.String("collection", spec.Collection),
			zap.String("name", spec.Name()),
			zap.Error(err))
		m.record(KindIndex, spec.Collection, spec.Name(), OutcomeConflict)
		return &ConstraintConflictError{
			Collection: spec.Collection,
			Index:      spec.Name(),
			Field:      spec.Field,
			Unique:     spec.Unique,
			Reason: fmt.Sprintf("duplicate values present in %s.%s. Example finder:\n"+
				`db.%s.aggregate([{ $group: { _id: "$%s", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`,
				spec.Collection, spec.Field, spec.Collection, spec.Field),
			Err: err,
		}
	}

	m.log.Warn("index ensure failed",
		zap.String("collection", spec.Collection),
		zap.String("name", spec.Name()),
		zap.String("keys", desiredSig),
		zap.Bool("unique", spec.Unique),
		zap.String("took", time.Since(start).String()),
		zap.Error(err))
	m.record(KindIndex, spec.Collection, spec.Name(), OutcomeFailed)
	return classify(op, err)
}

// resolve handles the cases where the listing already decides the outcome.
// done is false when the index still has to be created.
func (m *MongoTarget) resolve(spec schema.IndexSpec, existing []ExistingIndex, start time.Time, note string) (done bool, err error) {
	found, conflict := match(spec, existing)
	if conflict != nil {
		m.log.Warn("index conflicts with existing definition"+note,
			zap.String("collection", spec.Collection),
			zap.String("name", spec.Name()),
			zap.String("existing_name", conflict.ExistingName),
			zap.String("existing_keys", conflict.ExistingKeys),
			zap.Bool("existing_unique", conflict.ExistingUnique))
		m.record(KindIndex, spec.Collection, spec.Name(), OutcomeConflict)
		return true, conflict
	}
	if found == nil {
		return false, nil
	}

	msg := "reusing existing index" + note
	if found.Name != spec.Name() {
		msg = "reusing existing index under a different name" + note
	}
	m.log.Info(msg,
		zap.String("collection", spec.Collection),
		zap.String("name", found.Name),
		zap.String("keys", keySig(found.Key)),
		zap.Bool("unique", found.IsUnique()),
		zap.String("took", time.Since(start).String()))
	m.record(KindIndex, spec.Collection, spec.Name(), OutcomeExisting)
	return true, nil
}
