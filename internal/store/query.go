package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/entref/internal/value"
)

// Predicate filters records in a Query.
//
// Sealed: only the predicate types in this file implement it.
type Predicate interface {
	predicate()
}

// AttrEquals matches records whose attribute Name equals Value.
// A Null value matches both a stored null and an absent attribute.
type AttrEquals struct {
	Name  string
	Value value.Value
}

// BelongsTo matches records whose belongsTo slot Name points at Target.
//
// Target.ID is compared when set, otherwise Target.ClientID. Target.Type is
// compared when set. A zero Target matches an empty slot.
type BelongsTo struct {
	Name   string
	Target RecordRef
}

// HasManyContains matches records whose hasMany collection Name has a member
// with Target's identity. Matching rules are those of BelongsTo.
type HasManyContains struct {
	Name   string
	Target RecordRef
}

// And matches records that satisfy every predicate. An empty And matches all.
type And struct {
	Predicates []Predicate
}

func (AttrEquals) predicate()      {}
func (BelongsTo) predicate()       {}
func (HasManyContains) predicate() {}
func (And) predicate()             {}

// Query selects records from the store.
type Query struct {
	// Types restricts results to these type names. Empty means every type.
	Types []string

	// Filter is optional.
	Filter Predicate

	// IncludeDeleted also returns records stored with is_deleted set.
	IncludeDeleted bool

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// memberName restricts JSON path segments to identifier characters so a
// name can never change the shape of a path.
var memberName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QueryRecords returns the records matching q, ordered by type, id.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryRecords(ctx context.Context, q Query) ([]Record, error) {
	query, args, err := compileQuery(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// compileQuery converts q to a parameterized SELECT.
// Values are never interpolated and every query carries ORDER BY.
func compileQuery(q Query) (string, []any, error) {
	var where []string
	var args []any

	if len(q.Types) > 0 {
		where = append(where, `type IN (?`+strings.Repeat(", ?", len(q.Types)-1)+`)`)
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if !q.IncludeDeleted {
		where = append(where, `is_deleted = 0`)
	}
	if q.Filter != nil {
		clause, params, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		args = append(args, params...)
	}

	sql := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY type COLLATE BINARY ASC, id COLLATE BINARY ASC`
	if q.Limit > 0 {
		sql += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	return sql, args, nil
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case AttrEquals:
		return compileAttrEquals(pred)
	case BelongsTo:
		return compileBelongsTo(pred)
	case HasManyContains:
		return compileHasManyContains(pred)
	case And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileAttrEquals renders the stored member with -> and the parameter
// with json(), so both sides come out of SQLite's JSON printer.
func compileAttrEquals(eq AttrEquals) (string, []any, error) {
	path, err := memberPath("attribute", eq.Name)
	if err != nil {
		return "", nil, err
	}
	if eq.Value == nil || value.IsNull(eq.Value) {
		return `(json_type(attributes, ?) IS NULL OR json_type(attributes, ?) = 'null')`, []any{path, path}, nil
	}
	data, err := value.MarshalCanonical(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("attribute %s: %w", eq.Name, err)
	}
	return `attributes -> ? = json(?)`, []any{path, string(data)}, nil
}

func compileBelongsTo(bt BelongsTo) (string, []any, error) {
	path, err := memberPath("belongsTo", bt.Name)
	if err != nil {
		return "", nil, err
	}
	if bt.Target == (RecordRef{}) {
		return `(json_type(belongs_to, ?) IS NULL OR json_type(belongs_to, ?) = 'null')`, []any{path, path}, nil
	}
	clause, params := refMatch(func(field string) (string, any) {
		return `json_extract(belongs_to, ?) = ?`, path + "." + field
	}, bt.Target)
	return clause, params, nil
}

func compileHasManyContains(hm HasManyContains) (string, []any, error) {
	path, err := memberPath("hasMany", hm.Name)
	if err != nil {
		return "", nil, err
	}
	if hm.Target == (RecordRef{}) {
		return "", nil, fmt.Errorf("hasMany %s: target identity is required", hm.Name)
	}
	clause, params := refMatch(func(field string) (string, any) {
		return `json_extract(member.value, ?) = ?`, "$." + field
	}, hm.Target)
	sql := `EXISTS (SELECT 1 FROM json_each(has_many, ?) AS member WHERE ` + clause + `)`
	return sql, append([]any{path}, params...), nil
}

// refMatch builds the identity comparison for target. column returns the
// comparison template and path argument for one ref field.
func refMatch(column func(field string) (string, any), target RecordRef) (string, []any) {
	var parts []string
	var params []any
	add := func(field, want string) {
		clause, path := column(field)
		parts = append(parts, clause)
		params = append(params, path, want)
	}
	if target.ID != "" {
		add("id", target.ID)
	} else if target.ClientID != "" {
		add("clientId", target.ClientID)
	}
	if target.Type != "" {
		add("type", target.Type)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	var parts []string
	var params []any
	for _, pred := range and.Predicates {
		clause, p, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clause)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

func memberPath(kind, name string) (string, error) {
	if !memberName.MatchString(name) {
		return "", fmt.Errorf("invalid %s name %q", kind, name)
	}
	return "$." + name, nil
}
