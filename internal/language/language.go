package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// Error is a located GraphQL error as produced by the parser and validator.
type Error = gqlerror.Error

// ErrorList is a list of located GraphQL errors.
type ErrorList = gqlerror.List

// Source names an SDL or query input; Name shows up in error positions.
type Source = ast.Source

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchemas parses several SDL sources into one document. Definitions keep
// the order of the sources.
func ParseSchemas(sources ...*Source) (*SchemaDocument, error) {
	doc, err := parser.ParseSchemas(sources...)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
