package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Load error codes, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // not a load error
	ErrCodeScanError   = "E002" // schema directory could not be listed
	ErrCodeNoFiles     = "E003" // directory has no .cue files
	ErrCodeLoadFailed  = "E004" // CUE parse or package error
	ErrCodeNotFound    = "E005" // path missing or not a directory
	ErrCodeBuildFailed = "E006" // CUE evaluation error
)

// LoadError reports why a schema directory could not be turned into CUE.
// Declaration problems found afterwards are CompileError or
// ValidationErrors instead.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // first CUE position, when there is one
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func loadError(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// cueLoadError wraps a CUE error, keeping the position of its first entry.
func cueLoadError(code, what string, err error) *LoadError {
	le := loadError(code, "%s: %v", what, err)
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		if positions := cueerrors.Positions(errs[0]); len(positions) > 0 {
			le.Pos = positions[0]
		}
	}
	return le
}

// LoadDir loads every CUE file in dir as one instance and builds a Registry
// from its entity declarations.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, loadError(ErrCodeNotFound, "schema directory not found: %s", dir)
	case err != nil:
		return nil, loadError(ErrCodeNotFound, "schema directory %s: %v", dir, err)
	case !info.IsDir():
		return nil, loadError(ErrCodeNotFound, "not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, loadError(ErrCodeScanError, "scan %s: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, loadError(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, loadError(ErrCodeLoadFailed, "no CUE instance in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueLoadError(ErrCodeLoadFailed, "load CUE files", inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, "evaluate CUE", err)
	}

	return CompileValue(v)
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
// Subdirectories are not part of the instance and are skipped.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}
