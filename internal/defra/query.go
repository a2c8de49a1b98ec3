package defra

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// docIDPattern accepts DefraDB document IDs (bae-<uuid>) and plain
// identifiers. Anything else is rejected before interpolation so user
// input can never smuggle GraphQL syntax into a query.
var docIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID reports whether id is safe to interpolate as a document ID.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("empty ID")
	case len(id) > 500:
		return fmt.Errorf("ID too long: %d characters", len(id))
	case !docIDPattern.MatchString(id):
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder constructs parameterized GraphQL reads. Filter values
// travel as GraphQL variables, never as interpolated text.
type QueryBuilder struct {
	collection string
	conds      []condition
	fields     []string
	order      string
	limit      int
	offset     int
}

type condition struct {
	field string
	op    string // _eq, _gt, _lt
	value any
}

// NewQuery starts a query against collection, selecting _docID unless
// Fields overrides it.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{
		collection: collection,
		fields:     []string{"_docID"},
	}
}

// Filter adds an equality condition.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.where(field, "_eq", value)
}

// FilterGT adds a greater-than condition.
func (q *QueryBuilder) FilterGT(field string, value any) *QueryBuilder {
	return q.where(field, "_gt", value)
}

// FilterLT adds a less-than condition.
func (q *QueryBuilder) FilterLT(field string, value any) *QueryBuilder {
	return q.where(field, "_lt", value)
}

func (q *QueryBuilder) where(field, op string, value any) *QueryBuilder {
	q.conds = append(q.conds, condition{field: field, op: op, value: value})
	return q
}

// Fields replaces the selected field set.
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy sets result ordering, direction ASC or DESC.
func (q *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	q.order = fmt.Sprintf("{%s: %s}", field, direction)
	return q
}

// Limit caps the result count.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset skips the first n results.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build renders the query document and its variables map.
func (q *QueryBuilder) Build() (string, map[string]any) {
	vars := make(map[string]any, len(q.conds))
	varDefs := make([]string, 0, len(q.conds))
	filters := make([]string, 0, len(q.conds))

	for i, c := range q.conds {
		name := fmt.Sprintf("v%d", i)
		vars[name] = c.value
		varDefs = append(varDefs, fmt.Sprintf("$%s: %s", name, gqlVarType(c.value)))
		filters = append(filters, fmt.Sprintf("%s: {%s: $%s}", c.field, c.op, name))
	}

	var args []string
	if len(filters) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filters, ", ")))
	}
	if q.order != "" {
		args = append(args, "order: "+q.order)
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if q.offset > 0 {
		args = append(args, fmt.Sprintf("offset: %d", q.offset))
	}

	var b strings.Builder
	if len(varDefs) > 0 {
		fmt.Fprintf(&b, "query(%s) ", strings.Join(varDefs, ", "))
	}
	b.WriteString("{ ")
	b.WriteString(q.collection)
	if len(args) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(args, ", "))
	}
	b.WriteString(" { ")
	b.WriteString(strings.Join(q.fields, " "))
	b.WriteString(" } }")

	return b.String(), vars
}

// Execute builds the query and runs it on client.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) (*GQLResponse, error) {
	query, vars := q.Build()
	return client.Execute(ctx, query, vars)
}

func gqlVarType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}

// SafeQuery runs a single-equality-filter query, a shorthand for the
// common lookup-by-field case.
func SafeQuery(ctx context.Context, client *Client, collection, field string, value any, fields ...string) (*GQLResponse, error) {
	q := NewQuery(collection).Filter(field, value)
	if len(fields) > 0 {
		q.Fields(fields...)
	}
	return q.Execute(ctx, client)
}

// SafeQueryByDocID runs a parameterized lookup by _docID.
func SafeQueryByDocID(ctx context.Context, client *Client, collection, docID string, fields ...string) (*GQLResponse, error) {
	return SafeQuery(ctx, client, collection, "_docID", docID, fields...)
}
