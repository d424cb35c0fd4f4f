// internal/app/system/indexes/errors.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Server error codes the bootstrapper reacts to.
const (
	codeNamespaceNotFound     = 26
	codeNamespaceExists       = 48
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
	codeDuplicateKey          = 11000
)

// ErrNoConnection is wrapped in a ConnectionError when Initialize is handed a
// nil target or a target without a database.
var ErrNoConnection = errors.New("no database connection")

// ConnectionError means the database could not be reached or the handle is
// unusable. It is never retried here; the caller owns retry policy.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: database unreachable: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConstraintConflictError means an index already exists in a shape that is
// incompatible with the desired one. The existing index is left as is.
type ConstraintConflictError struct {
	Collection string
	Index      string
	Field      string
	Unique     bool

	ExistingName   string
	ExistingKeys   string
	ExistingUnique bool

	Reason string
	Err    error
}

func (e *ConstraintConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s): conflicting index on field %q", e.Collection, e.Index, e.Field)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.ExistingName != "" {
		fmt.Fprintf(&b, " (existing %s keys={%s} unique=%t, wanted keys={%s:1} unique=%t)",
			e.ExistingName, e.ExistingKeys, e.ExistingUnique, e.Field, e.Unique)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConstraintConflictError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsConstraintConflict reports whether err is, or wraps, a ConstraintConflictError.
func IsConstraintConflict(err error) bool {
	var cc *ConstraintConflictError
	return errors.As(err, &cc)
}

func hasCode(err error, codes ...int32) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, c := range codes {
			if ce.Code == c {
				return true
			}
		}
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, c := range codes {
			if se.HasErrorCode(int(c)) {
				return true
			}
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return hasCode(err, codeNamespaceExists)
}

func isNamespaceNotFoundErr(err error) bool {
	return hasCode(err, codeNamespaceNotFound)
}

// Mongo/DocDB returns these when an index with the same keys already exists
// under a different name, or with different options.
func isOptionsConflictErr(err error) bool {
	if hasCode(err, codeIndexOptionsConflict, codeIndexKeySpecsConflict) {
		return true
	}
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "IndexOptionsConflict") || strings.Contains(s, "IndexKeySpecsConflict")
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	return hasCode(err, codeDuplicateKey) || wafflemongo.IsDup(err)
}

// isConnectionErr picks out failures that mean "the server is not there"
// rather than "the server said no".
func isConnectionErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoConnection) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sse topology.ServerSelectionError
	if errors.As(err, &sse) {
		return true
	}
	var tce topology.ConnectionError
	return errors.As(err, &tce)
}

// classify turns a raw driver error into the bootstrapper's taxonomy.
// Errors that are already typed pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) || IsConstraintConflict(err) {
		return err
	}
	if isConnectionErr(err) {
		return &ConnectionError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
