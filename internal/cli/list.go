package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/value"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	EntityOptions
	Where []string // attr=value
	Ref   []string // belongsTo=[Type/]id, or belongsTo= for an empty slot
	Has   []string // hasMany=[Type/]id
}

// ListResult is the set of stored entities matching a list command.
type ListResult struct {
	Type     string        `json:"type"`
	Count    int           `json:"count"`
	Entities []*EntityView `json:"entities"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{EntityOptions: EntityOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "list <Type>",
		Short: "List stored entities of a type",
		Long: `List the stored entities of a type and its subtypes, ordered by type
then id. Deleted entities are skipped.

Filters combine with AND:
  --where attr=value   attribute equals value (JSON for non-string
                       attributes, RFC 3339 for time attributes)
  --ref rel=Type/id    belongsTo slot points at the entity; "rel=" matches
                       an empty slot and the type part is optional
  --has rel=Type/id    hasMany collection contains the entity

Examples:
  entref list --db app.db --schema ./schema Post
  entref list --db app.db --schema ./schema Post --where title=Hello --ref author=User/u1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "attribute filter attr=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Ref, "ref", nil, "belongsTo filter rel=Type/id (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Has, "has", nil, "hasMany filter rel=Type/id (repeatable)")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, typeName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, err := OpenWorkspace(formatter, opts.RootOptions, opts.DB, opts.Schema)
	if err != nil {
		return err
	}
	defer ws.Close()

	t, err := ws.LookupType(formatter, typeName)
	if err != nil {
		return err
	}

	filter, err := buildFilter(t, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFilter, err.Error())
	}

	found, err := ws.Session.Query(ctx, t, filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	formatter.VerboseLog("Matched %d %s entities", len(found), typeName)

	result := &ListResult{Type: typeName, Count: len(found), Entities: []*EntityView{}}
	for _, e := range found {
		view, err := newEntityView(e)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
		}
		if err := ws.stamp(ctx, formatter, view); err != nil {
			return err
		}
		result.Entities = append(result.Entities, view)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeListText(formatter.Writer, result)
	return nil
}

// buildFilter turns the filter flags into a store predicate checked against
// the members of t. Returns nil when no filter is given.
func buildFilter(t *schema.Type, opts *ListOptions) (store.Predicate, error) {
	var preds []store.Predicate

	for _, arg := range opts.Where {
		name, raw, err := splitFilter("--where", arg)
		if err != nil {
			return nil, err
		}
		attr, ok := t.Attribute(name)
		if !ok {
			return nil, fmt.Errorf("%s has no attribute %q", t, name)
		}
		v, err := parseFilterValue(attr, raw)
		if err != nil {
			return nil, fmt.Errorf("--where %s: %w", name, err)
		}
		preds = append(preds, store.AttrEquals{Name: name, Value: v})
	}

	for _, arg := range opts.Ref {
		name, raw, err := splitFilter("--ref", arg)
		if err != nil {
			return nil, err
		}
		if rel, ok := t.Relationship(name); !ok || rel.Kind != schema.BelongsTo {
			return nil, fmt.Errorf("%s has no belongsTo %q", t, name)
		}
		var target store.RecordRef
		if raw != "" {
			target = parseFilterTarget(raw)
		}
		preds = append(preds, store.BelongsTo{Name: name, Target: target})
	}

	for _, arg := range opts.Has {
		name, raw, err := splitFilter("--has", arg)
		if err != nil {
			return nil, err
		}
		if rel, ok := t.Relationship(name); !ok || rel.Kind != schema.HasMany {
			return nil, fmt.Errorf("%s has no hasMany %q", t, name)
		}
		if raw == "" {
			return nil, fmt.Errorf("--has %s: target is required", name)
		}
		preds = append(preds, store.HasManyContains{Name: name, Target: parseFilterTarget(raw)})
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return store.And{Predicates: preds}, nil
	}
}

func splitFilter(flag, arg string) (string, string, error) {
	name, raw, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid %s %q: want name=value", flag, arg)
	}
	return name, raw, nil
}

// parseFilterValue reads raw as a string for string attributes, as RFC 3339
// for time attributes and as JSON otherwise.
func parseFilterValue(attr schema.Attribute, raw string) (value.Value, error) {
	switch attr.Type {
	case schema.AttrString:
		return value.String(raw), nil
	case schema.AttrTime:
		return value.ParseTime(raw)
	}
	v, err := value.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON value %q", raw)
	}
	if !attr.Accepts(v) {
		return nil, fmt.Errorf("%s attribute does not accept %s", attr.Type, value.Kind(v))
	}
	return v, nil
}

// parseFilterTarget reads "Type/id" or a bare id.
func parseFilterTarget(raw string) store.RecordRef {
	if typ, id, ok := strings.Cut(raw, "/"); ok {
		return store.RecordRef{Type: typ, ID: id}
	}
	return store.RecordRef{ID: raw}
}

func writeListText(w io.Writer, result *ListResult) {
	for _, view := range result.Entities {
		fmt.Fprintf(w, "%s/%s", view.Type, view.ID)
		for _, name := range view.order {
			fmt.Fprintf(w, " %s=%s", name, view.Attributes[name])
		}
		fmt.Fprintln(w)
	}
	noun := "entities"
	if result.Count == 1 {
		noun = "entity"
	}
	fmt.Fprintf(w, "%d %s\n", result.Count, noun)
}
