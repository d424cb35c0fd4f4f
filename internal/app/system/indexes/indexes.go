// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"fmt"

	"github.com/dalemusser/chatschema/internal/domain/schema"
)

// Target is the database capability the bootstrapper needs. Both methods must
// treat "already exists with a matching definition" as success.
type Target interface {
	CreateCollectionIfNotExists(ctx context.Context, name string) error
	CreateIndexIfNotExists(ctx context.Context, spec schema.IndexSpec) error
}

// Outcome is what happened to a single collection or index.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// Kinds of object a Recorder hears about.
const (
	KindCollection = "collection"
	KindIndex      = "index"
)

// Recorder receives one call per ensured object.
type Recorder interface {
	Record(kind, collection, name string, outcome Outcome)
}

/*
Initialize ensures the chat service schema: the users and chats collections
and the unique indexes users.email, users.id and chats.id.

Each step is idempotent. The first failure aborts the run; steps already
applied stay applied. Connection problems come back as *ConnectionError and
incompatible existing indexes as *ConstraintConflictError.
*/
func Initialize(ctx context.Context, t Target) error {
	return Apply(ctx, t, schema.Default())
}

// Apply ensures every collection in c and, right after each one, the indexes
// declared on it.
func Apply(ctx context.Context, t Target, c schema.Catalog) error {
	if t == nil {
		return &ConnectionError{Op: "initialize", Err: ErrNoConnection}
	}
	if err := c.Validate(); err != nil {
		return err
	}

	for _, coll := range c.Collections {
		op := "create collection " + coll.Name
		if err := t.CreateCollectionIfNotExists(ctx, coll.Name); err != nil {
			return classify(op, err)
		}
		for _, ix := range c.IndexesFor(coll.Name) {
			op := fmt.Sprintf("create index %s", ix)
			if err := t.CreateIndexIfNotExists(ctx, ix); err != nil {
				return classify(op, err)
			}
		}
	}
	return nil
}
