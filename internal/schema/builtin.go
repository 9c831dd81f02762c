package schema

import (
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// specified holds the five specified scalars and the @include and @skip
// directives, converted once from the prelude. Every schema shares them.
var specified = sync.OnceValues(func() (map[string]*Type, []*Directive) {
	doc := prelude()
	scalars := make(map[string]*Type, 5)
	for _, def := range doc.Definitions {
		if def.Kind == ast.Scalar {
			scalars[def.Name] = typeFromAST(nil, def)
		}
	}
	dirs := []*Directive{
		directiveFromAST(doc.Directives.ForName("include")),
		directiveFromAST(doc.Directives.ForName("skip")),
	}
	return scalars, dirs
})

func isBuiltinType(t *Type) bool {
	scalars, _ := specified()
	return scalars[t.Name] == t
}

func isBuiltinDirective(d *Directive) bool {
	_, dirs := specified()
	for _, b := range dirs {
		if b == d {
			return true
		}
	}
	return false
}

// IsBuiltinScalar reports whether name is one of the five specified scalars.
func IsBuiltinScalar(name string) bool {
	scalars, _ := specified()
	_, ok := scalars[name]
	return ok
}
