package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/session"
	"github.com/roach88/entref/internal/store"
)

// Workspace is what the entity commands operate on: a schema registry, an
// open record store, and one session over both.
type Workspace struct {
	Registry *schema.Registry
	Store    *store.Store
	Session  *session.Session
}

// OpenWorkspace loads the schema directory and opens an existing database.
// Failures are returned as ExitErrors already reported through f.
func OpenWorkspace(f *OutputFormatter, opts *RootOptions, dbPath, schemaDir string) (*Workspace, error) {
	if dbPath == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "--db is required")
	}
	if schemaDir == "" {
		return nil, f.Fail(ExitCommandError, schema.ErrCodeNotFound, "--schema is required")
	}

	reg, err := LoadSchema(f, schemaDir)
	if err != nil {
		return nil, err
	}

	// store.Open creates missing files; reading commands must not.
	if _, err := os.Stat(dbPath); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("database not found: %s", dbPath))
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, err.Error())
	}
	f.VerboseLog("Opened database %s", dbPath)

	return &Workspace{
		Registry: reg,
		Store:    st,
		Session:  session.New(st, reg, session.WithLogger(opts.Logger(f.GetErrWriter()))),
	}, nil
}

// Close closes the store.
func (w *Workspace) Close() error {
	return w.Store.Close()
}

// LookupType resolves a type name or reports ErrCodeUnknownType.
func (w *Workspace) LookupType(f *OutputFormatter, name string) (*schema.Type, error) {
	t, ok := w.Registry.Lookup(name)
	if !ok {
		return nil, f.Fail(ExitCommandError, ErrCodeUnknownType, fmt.Sprintf("unknown entity type %q", name))
	}
	return t, nil
}

// LoadSchema loads a schema directory, reporting load and validation
// failures through f.
//
// Load problems (missing directory, no files, broken CUE) exit with
// ExitCommandError; declaration errors exit with ExitFailure.
func LoadSchema(f *OutputFormatter, dir string) (*schema.Registry, error) {
	reg, err := schema.LoadDir(dir)
	if err == nil {
		f.VerboseLog("Loaded %d entity type(s) from %s", len(reg.Types()), dir)
		return reg, nil
	}

	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return nil, f.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
	}
	return nil, outputValidationErrors(f, schemaErrors(err))
}

// schemaErrors flattens a schema compile or validation error into a list.
func schemaErrors(err error) []schema.ValidationError {
	var verrs schema.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}

	ve := schema.ValidationError{Field: "schema", Message: err.Error(), Code: schema.ErrCodeGeneric}
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		ve.Field = compileErr.Field
		ve.Message = err.Error()
	}
	return []schema.ValidationError{ve}
}
