package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entref/internal/harness"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	EntityOptions
	ExitCode bool // exit 1 when deltas exist
}

// DiffResult is the comparison of two stored entities.
type DiffResult struct {
	Left   string   `json:"left"`
	Right  string   `json:"right"`
	Equal  bool     `json:"equal"`  // left.IsEqual(right)
	Deltas []string `json:"deltas"` // left.Diff(right), in declaration order
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{EntityOptions: EntityOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "diff <Type> <id> <Type> <id>",
		Short: "Compare two stored entities",
		Long: `Load two entities and list the attributes and relationships that differ.

Attributes compare by value, belongsTo slots by the identity of their
targets, and hasMany collections as sets. Related entities are never loaded.
The identity comparison (same logical entity) is reported separately.

Exit codes:
  0 - Comparison printed (or no deltas with --exit-code)
  1 - Deltas found and --exit-code is set
  2 - Command error (missing database, unknown type or entity)`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.Context(), opts, args, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.ExitCode, "exit-code", false, "exit with status 1 when the entities differ")

	return cmd
}

func runDiff(ctx context.Context, opts *DiffOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, err := OpenWorkspace(formatter, opts.RootOptions, opts.DB, opts.Schema)
	if err != nil {
		return err
	}
	defer ws.Close()

	left, err := ws.loadEntity(ctx, formatter, args[0], args[1])
	if err != nil {
		return err
	}
	right, err := ws.loadEntity(ctx, formatter, args[2], args[3])
	if err != nil {
		return err
	}

	result := DiffResult{
		Left:   left.String(),
		Right:  right.String(),
		Equal:  left.IsEqual(right),
		Deltas: harness.DeltaLabels(left.Diff(right)),
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "%s vs %s\n", result.Left, result.Right)
		fmt.Fprintf(w, "  same entity: %t\n", result.Equal)
		if len(result.Deltas) == 0 {
			fmt.Fprintln(w, "  no differences")
		}
		for _, d := range result.Deltas {
			fmt.Fprintf(w, "  ~ %s\n", d)
		}
	}

	if opts.ExitCode && len(result.Deltas) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d difference(s)", len(result.Deltas)))
	}
	return nil
}
