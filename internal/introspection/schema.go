package introspection

import (
	schema "github.com/hanpama/socialgraph/internal/schema"
)

// extend returns a copy of original whose query type also carries __schema
// and __type. The __Schema family of types comes from the gqlparser prelude
// and is already present in original.Types.
func extend(original *schema.Schema) *schema.Schema {
	extended := &schema.Schema{
		QueryType:    original.QueryType,
		MutationType: original.MutationType,
		Types:        make(map[string]*schema.Type, len(original.Types)),
		Directives:   original.Directives,
		Description:  original.Description,
		Source:       original.Source,
	}
	for name, typ := range original.Types {
		extended.Types[name] = typ
	}

	queryType := original.GetQueryType()
	if queryType == nil {
		return extended
	}
	q := *queryType
	q.Fields = append(append([]*schema.Field(nil), queryType.Fields...),
		&schema.Field{
			Name:        "__schema",
			Description: "Access the current type schema of this server.",
			Type:        schema.NonNullType(schema.NamedType("__Schema")),
		},
		&schema.Field{
			Name:        "__type",
			Description: "Request the type information of a single type.",
			Arguments: []*schema.InputValue{
				{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			},
			Type: schema.NamedType("__Type"),
		},
	)
	extended.Types[q.Name] = &q
	return extended
}
