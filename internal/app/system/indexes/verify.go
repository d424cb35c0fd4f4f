// internal/app/system/indexes/verify.go
package indexes

import (
	"context"
	"fmt"

	"github.com/dalemusser/chatschema/internal/domain/schema"
)

// Inspector reads schema state without changing it.
type Inspector interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListIndexes(ctx context.Context, collection string) ([]ExistingIndex, error)
}

// Status of one verified object.
type Status string

const (
	StatusOK       Status = "ok"
	StatusMissing  Status = "missing"
	StatusConflict Status = "conflict"
)

// Finding is the verification result for a collection or an index.
type Finding struct {
	Kind       string `json:"kind" yaml:"kind"`
	Collection string `json:"collection" yaml:"collection"`
	Name       string `json:"name" yaml:"name"`
	Status     Status `json:"status" yaml:"status"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Report lists findings in catalog order.
type Report struct {
	Database string    `json:"database,omitempty" yaml:"database,omitempty"`
	Findings []Finding `json:"findings" yaml:"findings"`
}

// OK is true when every finding is StatusOK.
func (r Report) OK() bool {
	for _, f := range r.Findings {
		if f.Status != StatusOK {
			return false
		}
	}
	return true
}

// Count returns how many findings have status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, f := range r.Findings {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Verify compares the database against c and reports drift. It never writes.
// An error is returned only when the database cannot be read.
func Verify(ctx context.Context, in Inspector, c schema.Catalog) (Report, error) {
	var rep Report
	if in == nil {
		return rep, &ConnectionError{Op: "verify", Err: ErrNoConnection}
	}
	if err := c.Validate(); err != nil {
		return rep, err
	}

	for _, coll := range c.Collections {
		ok, err := in.CollectionExists(ctx, coll.Name)
		if err != nil {
			return rep, classify("verify collection "+coll.Name, err)
		}
		f := Finding{Kind: KindCollection, Collection: coll.Name, Name: coll.Name, Status: StatusOK}
		if !ok {
			f.Status = StatusMissing
			f.Detail = "collection does not exist"
		}
		rep.Findings = append(rep.Findings, f)

		specs := c.IndexesFor(coll.Name)
		if len(specs) == 0 {
			continue
		}
		var existing []ExistingIndex
		if ok {
			existing, err = in.ListIndexes(ctx, coll.Name)
			if err != nil {
				return rep, classify("verify indexes "+coll.Name, err)
			}
		}
		for _, spec := range specs {
			rep.Findings = append(rep.Findings, verifyIndex(spec, existing))
		}
	}
	return rep, nil
}

func verifyIndex(spec schema.IndexSpec, existing []ExistingIndex) Finding {
	f := Finding{Kind: KindIndex, Collection: spec.Collection, Name: spec.Name()}

	found, conflict := match(spec, existing)
	switch {
	case conflict != nil:
		f.Status = StatusConflict
		f.Detail = fmt.Sprintf("%s: existing %s keys={%s} unique=%t",
			conflict.Reason, conflict.ExistingName, conflict.ExistingKeys, conflict.ExistingUnique)
	case found == nil:
		f.Status = StatusMissing
		f.Detail = fmt.Sprintf("no index on {%s:1} unique=%t", spec.Field, spec.Unique)
	default:
		f.Status = StatusOK
		if found.Name != spec.Name() {
			f.Detail = "satisfied by " + found.Name
		}
	}
	return f
}
