package schema

import (
	"strings"
	"sync"

	language "github.com/hanpama/gqlbind/internal/language"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"
)

var prelude = sync.OnceValue(func() *ast.SchemaDocument {
	doc, err := language.ParseSchemas(validator.Prelude)
	if err != nil {
		panic("schema: parse prelude: " + err.Error())
	}
	return doc
})

// MetaTypes returns new copies of the __-prefixed introspection types
// declared by the GraphQL prelude.
func MetaTypes() []*Type {
	var out []*Type
	for _, def := range prelude().Definitions {
		if strings.HasPrefix(def.Name, "__") {
			out = append(out, typeFromAST(nil, def))
		}
	}
	return out
}
