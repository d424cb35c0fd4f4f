// internal/domain/schema/schema.go
package schema

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names owned by the chat service.
const (
	CollectionUsers = "users"
	CollectionChats = "chats"
)

// CollectionSpec names a collection that must exist.
type CollectionSpec struct {
	Name string `json:"name" yaml:"name"`
}

// IndexSpec describes a single-field ascending index.
type IndexSpec struct {
	Collection string `json:"collection" yaml:"collection"`
	Field      string `json:"field" yaml:"field"`
	Unique     bool   `json:"unique" yaml:"unique"`
}

// Name is the server's default name for an ascending single-field index
// ("email_1"). Databases created with the mongo shell get the same names.
func (s IndexSpec) Name() string {
	return s.Field + "_1"
}

// Keys returns the key document for the index.
func (s IndexSpec) Keys() bson.D {
	return bson.D{{Key: s.Field, Value: 1}}
}

// String renders the index as collection.name, e.g. "users.email_1".
func (s IndexSpec) String() string {
	return s.Collection + "." + s.Name()
}

// Catalog is a full schema: the collections and the indexes on them.
type Catalog struct {
	Collections []CollectionSpec `json:"collections" yaml:"collections"`
	Indexes     []IndexSpec      `json:"indexes" yaml:"indexes"`
}

// Default returns the schema of the chat service:
//
//	users.email  unique
//	users.id     unique
//	chats.id     unique
func Default() Catalog {
	return Catalog{
		Collections: []CollectionSpec{
			{Name: CollectionUsers},
			{Name: CollectionChats},
		},
		Indexes: []IndexSpec{
			{Collection: CollectionUsers, Field: "email", Unique: true},
			{Collection: CollectionUsers, Field: "id", Unique: true},
			{Collection: CollectionChats, Field: "id", Unique: true},
		},
	}
}

// IndexesFor returns the indexes declared on collection, in declaration order.
func (c Catalog) IndexesFor(collection string) []IndexSpec {
	var out []IndexSpec
	for _, ix := range c.Indexes {
		if ix.Collection == collection {
			out = append(out, ix)
		}
	}
	return out
}

// ErrInvalidCatalog is wrapped by every Validate failure.
var ErrInvalidCatalog = errors.New("invalid schema catalog")

// Validate rejects catalogs that could not be applied in order: blank names,
// repeated collections, repeated index names within a collection, and
// indexes on collections that are not declared.
func (c Catalog) Validate() error {
	declared := make(map[string]bool, len(c.Collections))
	for _, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("%w: collection with empty name", ErrInvalidCatalog)
		}
		if declared[coll.Name] {
			return fmt.Errorf("%w: collection %q declared twice", ErrInvalidCatalog, coll.Name)
		}
		declared[coll.Name] = true
	}

	seen := make(map[string]bool, len(c.Indexes))
	for _, ix := range c.Indexes {
		if ix.Field == "" {
			return fmt.Errorf("%w: index on %q with empty field", ErrInvalidCatalog, ix.Collection)
		}
		if !declared[ix.Collection] {
			return fmt.Errorf("%w: index %s on undeclared collection", ErrInvalidCatalog, ix)
		}
		if seen[ix.String()] {
			return fmt.Errorf("%w: index %s declared twice", ErrInvalidCatalog, ix)
		}
		seen[ix.String()] = true
	}
	return nil
}
