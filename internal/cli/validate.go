package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entref/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Types  []TypeSummary            `json:"types,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// TypeSummary describes one declared entity type.
type TypeSummary struct {
	Name          string   `json:"name"`
	Extends       string   `json:"extends,omitempty"`
	Attributes    []string `json:"attributes"`
	Relationships []string `json:"relationships"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate entity type declarations",
		Long: `Validate the CUE entity declarations in a directory.

Checks that every type, parent and relationship target is declared, that
inheritance has no cycles, and that member names are unique along each
type's ancestry.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := LoadSchema(formatter, schemaDir)
	if err != nil {
		return err
	}

	summaries := summarizeTypes(reg)
	for _, s := range summaries {
		formatter.VerboseLog("Validated type: %s", s.Name)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Types: summaries})
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d types)\n", len(summaries))
	for _, s := range summaries {
		line := "  " + s.Name
		if s.Extends != "" {
			line += " extends " + s.Extends
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}

func summarizeTypes(reg *schema.Registry) []TypeSummary {
	types := reg.Types()
	summaries := make([]TypeSummary, len(types))
	for i, t := range types {
		s := TypeSummary{
			Name:          t.Name,
			Extends:       t.Extends,
			Attributes:    []string{},
			Relationships: []string{},
		}
		for _, attr := range t.AllAttributes() {
			s.Attributes = append(s.Attributes, attr.Name+":"+attr.Type)
		}
		for _, rel := range t.AllRelationships() {
			s.Relationships = append(s.Relationships, fmt.Sprintf("%s:%s:%s", rel.Name, rel.Kind, rel.Target))
		}
		summaries[i] = s
	}
	return summaries
}

// outputValidationErrors reports schema declaration errors.
// Validation failures exit with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}

// ValidateSchemaDir validates a schema directory without printing.
// Declaration problems are returned as a list; load problems as the error.
func ValidateSchemaDir(dir string) ([]schema.ValidationError, error) {
	_, err := schema.LoadDir(dir)
	if err == nil {
		return nil, nil
	}
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return nil, loadErr
	}
	return schemaErrors(err), nil
}
