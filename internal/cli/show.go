package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entref/internal/entity"
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/session"
	"github.com/roach88/entref/internal/value"
)

// EntityOptions holds the flags shared by the entity commands.
type EntityOptions struct {
	*RootOptions
	DB     string // sqlite database path
	Schema string // CUE schema directory
}

func (o *EntityOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.DB, "db", "", "path to the SQLite record store (required)")
	cmd.Flags().StringVar(&o.Schema, "schema", "", "directory of CUE entity declarations (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	EntityOptions
	Follow bool // load belongsTo targets
}

// EntityView is the printable form of a loaded entity.
type EntityView struct {
	Type        string                     `json:"type"`
	ID          string                     `json:"id"`
	ClientID    string                     `json:"client_id,omitempty"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
	BelongsTo   map[string]string          `json:"belongs_to"`
	HasMany     map[string][]string        `json:"has_many"`
	IsDeleted   bool                       `json:"is_deleted"`
	Errors      json.RawMessage            `json:"errors,omitempty"`
	Revision    int64                      `json:"revision"`
	Fingerprint string                     `json:"fingerprint"`
	Followed    map[string]string          `json:"followed,omitempty"`

	order []string // attribute declaration order for text output
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{EntityOptions: EntityOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "show <Type> <id>",
		Short: "Show a stored entity",
		Long: `Load an entity through a session and print its identity, attributes
and relationships.

A load for a base type also finds entities stored under a subtype.
With --follow, every belongsTo target is loaded as well.

Examples:
  entref show --db app.db --schema ./schema Post p1
  entref show --db app.db --schema ./schema Post p1 --follow --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "load belongsTo targets")

	return cmd
}

func runShow(ctx context.Context, opts *ShowOptions, typeName, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, err := OpenWorkspace(formatter, opts.RootOptions, opts.DB, opts.Schema)
	if err != nil {
		return err
	}
	defer ws.Close()

	e, err := ws.loadEntity(ctx, formatter, typeName, id)
	if err != nil {
		return err
	}

	view, err := newEntityView(e)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}

	if err := ws.stamp(ctx, formatter, view); err != nil {
		return err
	}

	if opts.Follow {
		view.Followed = followAll(ctx, formatter, e)
	}

	if formatter.JSON() {
		return formatter.Success(view)
	}
	writeEntityText(formatter.Writer, view)
	return nil
}

// loadEntity resolves the type name and loads the entity through the session.
func (w *Workspace) loadEntity(ctx context.Context, f *OutputFormatter, typeName, id string) (*entity.Entity, error) {
	t, err := w.LookupType(f, typeName)
	if err != nil {
		return nil, err
	}

	e, err := w.Session.Find(ctx, t, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, f.Fail(ExitCommandError, ErrCodeEntityNotFound, fmt.Sprintf("%s %s not found", typeName, id))
	}
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error())
	}
	f.VerboseLog("Loaded %s", e)
	return e, nil
}

// stamp copies the stored revision and fingerprint into view.
func (w *Workspace) stamp(ctx context.Context, f *OutputFormatter, view *EntityView) error {
	rec, ok, err := w.Store.ReadRecord(ctx, view.Type, view.ID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error())
	}
	if ok {
		view.Revision = rec.Revision
		view.Fingerprint = rec.Fingerprint
	}
	return nil
}

func newEntityView(e *entity.Entity) (*EntityView, error) {
	view := &EntityView{
		Type:       e.Type().Name,
		ID:         e.ID(),
		ClientID:   e.ClientID(),
		Attributes: map[string]json.RawMessage{},
		BelongsTo:  map[string]string{},
		HasMany:    map[string][]string{},
		IsDeleted:  e.IsDeleted(),
	}

	var err error
	e.EachAttribute(func(attr schema.Attribute, v value.Value) {
		if err != nil || value.IsNull(v) {
			return
		}
		var data []byte
		data, err = value.MarshalCanonical(v)
		view.Attributes[attr.Name] = data
		view.order = append(view.order, attr.Name)
	})
	if err != nil {
		return nil, err
	}

	if e.HasErrors() {
		data, err := value.MarshalCanonical(e.Errors())
		if err != nil {
			return nil, err
		}
		view.Errors = data
	}

	e.EachRelationship(func(rel schema.Relationship) {
		switch rel.Kind {
		case schema.BelongsTo:
			if target := e.BelongsTo(rel.Name); target != nil {
				view.BelongsTo[rel.Name] = refString(target)
			}
		case schema.HasMany:
			members := e.HasMany(rel.Name).All()
			refs := make([]string, len(members))
			for i, m := range members {
				refs[i] = refString(m)
			}
			view.HasMany[rel.Name] = refs
		}
	})

	return view, nil
}

// followAll waits for every belongsTo target. A target that fails to load is
// reported by its error message.
func followAll(ctx context.Context, f *OutputFormatter, e *entity.Entity) map[string]string {
	followed := map[string]string{}
	e.EachRelationship(func(rel schema.Relationship) {
		if rel.Kind != schema.BelongsTo {
			return
		}
		target, ok := e.BelongsTo(rel.Name).(*entity.LazyRef)
		if !ok || target == nil {
			return
		}
		loaded, err := target.Wait(ctx)
		if err != nil {
			f.VerboseLog("Follow %s failed: %v", rel.Name, err)
			followed[rel.Name] = "error: " + err.Error()
			return
		}
		followed[rel.Name] = loaded.String()
	})
	return followed
}

// refString renders a reference as "Type/id", falling back to the client id
// for unsaved targets.
func refString(r entity.Ref) string {
	id := r.ID()
	if id == "" {
		id = "~" + r.ClientID()
	}
	return r.Type().String() + "/" + id
}

func writeEntityText(w io.Writer, view *EntityView) {
	fmt.Fprintf(w, "%s %s", view.Type, view.ID)
	if view.ClientID != "" {
		fmt.Fprintf(w, " (client %s)", view.ClientID)
	}
	fmt.Fprintf(w, " revision %d\n", view.Revision)
	if view.IsDeleted {
		fmt.Fprintln(w, "  [deleted]")
	}

	for _, name := range view.order {
		fmt.Fprintf(w, "  %s: %s\n", name, view.Attributes[name])
	}
	for _, name := range slices.Sorted(maps.Keys(view.BelongsTo)) {
		line := fmt.Sprintf("  %s -> %s", name, view.BelongsTo[name])
		if loaded, ok := view.Followed[name]; ok {
			line += " = " + loaded
		}
		fmt.Fprintln(w, line)
	}
	for _, name := range slices.Sorted(maps.Keys(view.HasMany)) {
		fmt.Fprintf(w, "  %s -> [%s]\n", name, strings.Join(view.HasMany[name], ", "))
	}
	if view.Errors != nil {
		fmt.Fprintf(w, "  errors: %s\n", view.Errors)
	}
}
