package domain

import (
	"context"
	"errors"
)

// ErrLookupRejected marks lookup failures that retrying cannot fix, such as
// an invalid token or a malformed query.
var ErrLookupRejected = errors.New("lookup rejected")

// PlaceLookup resolves a free-text query to zero or more candidates, best
// match first.
type PlaceLookup interface {
	Lookup(ctx context.Context, query string) ([]Candidate, error)
}
