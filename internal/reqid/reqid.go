package reqid

import (
	"context"

	"github.com/google/uuid"
)

// key is the context key for the request ID.
type key struct{}

// Header is the HTTP header carrying the request ID in both directions.
const Header = "X-Request-Id"

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	return WithID(parent, uuid.NewString())
}

// WithID stores an existing ID, e.g. one sent by the client. An ID that is
// not a UUID is replaced by a fresh one.
func WithID(parent context.Context, id string) (context.Context, string) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
