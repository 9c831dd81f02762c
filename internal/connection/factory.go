// Package connection generates Relay connection types for fields marked
// with @connection(for: "Node") and provides Go host types to return from
// such fields.
package connection

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/gqlbind/internal/language"
)

// DirectiveName is the directive the factory looks for.
const DirectiveName = "connection"

// Factory adds, for every field carrying @connection(for: "Node"), an object
// type named after the field's type with edges and pageInfo, the matching
// <Type>Edge type and a shared PageInfo type. Definitions that already exist
// are left alone. The directive definition is added when missing.
type Factory struct{}

func (Factory) Extend(doc *language.SchemaDocument) error {
	existing := make(map[string]bool)
	for _, def := range doc.Definitions {
		existing[def.Name] = true
	}

	var added ast.DefinitionList
	var first *ast.Position
	add := func(def *ast.Definition) {
		if !existing[def.Name] {
			existing[def.Name] = true
			added = append(added, def)
		}
	}

	objects := append(append(ast.DefinitionList(nil), doc.Definitions...), doc.Extensions...)
	for _, def := range objects {
		if def.Kind != ast.Object {
			continue
		}
		for _, field := range def.Fields {
			for _, d := range field.Directives {
				if d.Name != DirectiveName {
					continue
				}
				node, err := forType(def, field, d)
				if err != nil {
					return err
				}
				if first == nil {
					first = d.Position
				}
				conn := field.Type.Name()
				add(connectionType(conn, d.Position))
				add(edgeType(conn, node, d.Position))
				add(pageInfoType(d.Position))
			}
		}
	}
	if len(added) == 0 {
		return nil
	}
	doc.Definitions = append(doc.Definitions, added...)
	if doc.Directives.ForName(DirectiveName) == nil {
		doc.Directives = append(doc.Directives, directiveDefinition(first))
	}
	return nil
}

func forType(def *ast.Definition, field *ast.FieldDefinition, d *ast.Directive) (string, error) {
	arg := d.Arguments.ForName("for")
	if arg == nil || arg.Value == nil || arg.Value.Kind != ast.StringValue || arg.Value.Raw == "" {
		return "", fmt.Errorf("%s.%s: @%s needs a string argument \"for\"", def.Name, field.Name, DirectiveName)
	}
	if field.Type.Elem != nil {
		return "", fmt.Errorf("%s.%s: @%s field cannot be a list", def.Name, field.Name, DirectiveName)
	}
	return arg.Value.Raw, nil
}

func connectionType(name string, pos *ast.Position) *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: name,
		Fields: ast.FieldList{
			{Name: "edges", Type: ast.ListType(ast.NamedType(name+"Edge", pos), pos), Position: pos},
			{Name: "pageInfo", Type: ast.NamedType("PageInfo", pos), Position: pos},
		},
		Position: pos,
	}
}

func edgeType(conn, node string, pos *ast.Position) *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: conn + "Edge",
		Fields: ast.FieldList{
			{Name: "cursor", Type: ast.NamedType("String", pos), Position: pos},
			{Name: "node", Type: ast.NamedType(node, pos), Position: pos},
		},
		Position: pos,
	}
}

func pageInfoType(pos *ast.Position) *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: "PageInfo",
		Fields: ast.FieldList{
			{Name: "hasPreviousPage", Type: ast.NonNullNamedType("Boolean", pos), Position: pos},
			{Name: "hasNextPage", Type: ast.NonNullNamedType("Boolean", pos), Position: pos},
			{Name: "startCursor", Type: ast.NamedType("String", pos), Position: pos},
			{Name: "endCursor", Type: ast.NamedType("String", pos), Position: pos},
		},
		Position: pos,
	}
}

func directiveDefinition(pos *ast.Position) *ast.DirectiveDefinition {
	return &ast.DirectiveDefinition{
		Name: DirectiveName,
		Arguments: ast.ArgumentDefinitionList{
			{Name: "for", Type: ast.NonNullNamedType("String", pos), Position: pos},
		},
		Locations: []ast.DirectiveLocation{ast.LocationFieldDefinition},
		Position:  pos,
	}
}
