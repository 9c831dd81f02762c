// Package bookstore is the example application served by gqlbind. It binds
// a small catalogue schema to plain Go types and exercises most of what the
// wiring supports: resolvers, interfaces and unions, connections, optional
// and async results, directives, custom scalars and subscriptions.
package bookstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanpama/gqlbind/internal/binder"
	"github.com/hanpama/gqlbind/internal/connection"
	"github.com/hanpama/gqlbind/internal/directive"
	schema "github.com/hanpama/gqlbind/internal/schema"
	"github.com/hanpama/gqlbind/internal/wiring"
)

//go:embed schema.graphql
var SDL string

// Schema parses SDL with connection types generated.
func Schema() (*schema.Schema, error) {
	return schema.BuildFromSDL(SDL, connection.Factory{})
}

// RoleFunc reports the role of the caller behind ctx.
type RoleFunc func(ctx context.Context) string

// ForbiddenError is returned for fields guarded by @auth.
type ForbiddenError struct {
	Type, Field, Role string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s.%s requires role %q", e.Type, e.Field, e.Role)
}

// Options returns the wiring options binding the schema to store. role may
// be nil, in which case every @auth field is denied.
func Options(store *Store, log zerolog.Logger, role RoleFunc) []wiring.Option {
	return []wiring.Option{
		wiring.WithQueryResolver(&Query{store: store}),
		wiring.WithMutationResolver(&MutationProxy{Mutation: &Mutation{store: store}, log: log}),
		wiring.WithSubscriptionResolver(&Subscription{store: store}),
		wiring.WithResolver("Book", &bookResolver{store: store}),
		wiring.WithResolver("Author", &authorResolver{store: store}),
		wiring.WithDictionary(map[string]any{
			"Book":   Book{},
			"Author": Author{},
			"Review": Review{},
		}),
		wiring.WithDirective("upper", directive.Wrap(upper)),
		wiring.WithDirective("auth", auth(role)),
		wiring.WithScalar("Date", serializeDate),
		wiring.WithLogger(log),
	}
}

// Wire builds the runtime for schema s. Extra options are applied last.
func Wire(s *schema.Schema, store *Store, log zerolog.Logger, role RoleFunc, extra ...wiring.Option) (*wiring.Wiring, error) {
	return wiring.Build(s, append(Options(store, log, role), extra...)...)
}

func upper(_ directive.Environment, v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToUpper(s), nil
	}
	return nil, fmt.Errorf("@upper needs a string, got %T", v)
}

func auth(role RoleFunc) directive.Transform {
	return func(env directive.Environment) binder.FetchFunc {
		want, _ := env.Directive.Arg("role").(string)
		next := env.Fetch
		return func(fe *binder.Environment) (any, error) {
			if role == nil || role(fe.Context) != want {
				return nil, &ForbiddenError{Type: env.TypeName, Field: env.Field.Name, Role: want}
			}
			return next(fe)
		}
	}
}

func serializeDate(v any) (any, error) {
	switch d := v.(type) {
	case Date:
		return d.Format(time.DateOnly), nil
	case *Date:
		return d.Format(time.DateOnly), nil
	case time.Time:
		return d.Format(time.DateOnly), nil
	}
	return nil, fmt.Errorf("Date cannot represent %T", v)
}
