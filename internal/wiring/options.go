package wiring

import (
	"github.com/rs/zerolog"

	"github.com/hanpama/gqlbind/internal/binder"
	"github.com/hanpama/gqlbind/internal/directive"
	"github.com/hanpama/gqlbind/internal/proxy"
	"github.com/hanpama/gqlbind/internal/wrapper"
)

// ScalarSerializer turns a Go value into the JSON value of a custom scalar.
type ScalarSerializer func(value any) (any, error)

type typeSample struct {
	name   string
	sample any
}

type config struct {
	registrations []binder.Registration
	types         []typeSample
	directives    *directive.Registry
	catalog       *wrapper.Catalog
	proxies       *proxy.Resolver
	scalars       map[string]ScalarSerializer
	collectErrors bool
	missing       binder.MissingFieldHandler
	awaitLimit    int
	logger        zerolog.Logger
}

// DefaultAwaitLimit bounds the goroutines awaiting the futures of one batch.
const DefaultAwaitLimit = 64

func defaultConfig() *config {
	return &config{
		directives: directive.NewRegistry(),
		catalog:    wrapper.NewCatalog(),
		proxies:    proxy.Default(),
		scalars:    make(map[string]ScalarSerializer),
		awaitLimit: DefaultAwaitLimit,
		logger:     zerolog.Nop(),
	}
}

// Option configures Build.
type Option func(*config)

func WithQueryResolver(r any) Option {
	return func(c *config) {
		c.registrations = append(c.registrations, binder.Registration{Operation: binder.Query, Instance: r})
	}
}

func WithMutationResolver(r any) Option {
	return func(c *config) {
		c.registrations = append(c.registrations, binder.Registration{Operation: binder.Mutation, Instance: r})
	}
}

func WithSubscriptionResolver(r any) Option {
	return func(c *config) {
		c.registrations = append(c.registrations, binder.Registration{Operation: binder.Subscription, Instance: r})
	}
}

// WithResolver registers a resolver for fields of an object type. Its
// methods receive the parent object after the optional context.
func WithResolver(typeName string, r any) Option {
	return func(c *config) {
		c.registrations = append(c.registrations, binder.Registration{TypeName: typeName, Instance: r})
	}
}

// WithType maps a schema type to the Go type of sample.
func WithType(name string, sample any) Option {
	return func(c *config) { c.types = append(c.types, typeSample{name: name, sample: sample}) }
}

// WithDictionary is WithType for several types. Entries are added in name
// order.
func WithDictionary(types map[string]any) Option {
	return func(c *config) {
		for _, name := range sortedKeys(types) {
			c.types = append(c.types, typeSample{name: name, sample: types[name]})
		}
	}
}

func WithDirective(name string, t directive.Transform) Option {
	return func(c *config) { c.directives.Register(name, t) }
}

// WithWrapper registers an envelope type; it is tried before the built-in ones.
func WithWrapper(w wrapper.Wrapper) Option {
	return func(c *config) { c.catalog.Register(w) }
}

// WithProxyHandler adds a proxy handler after the default ones.
func WithProxyHandler(h proxy.Handler) Option {
	return func(c *config) { c.proxies.Register(h) }
}

func WithScalar(name string, s ScalarSerializer) Option {
	return func(c *config) { c.scalars[name] = s }
}

// WithErrorCollection makes Build report every problem instead of stopping
// at the first one.
func WithErrorCollection() Option {
	return func(c *config) { c.collectErrors = true }
}

// WithMissingFieldHandler binds fields without an implementation to h
// instead of failing.
func WithMissingFieldHandler(h binder.MissingFieldHandler) Option {
	return func(c *config) { c.missing = h }
}

// WithAwaitLimit sets how many futures of one batch are awaited at once.
// n <= 0 removes the bound.
func WithAwaitLimit(n int) Option {
	return func(c *config) { c.awaitLimit = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}
