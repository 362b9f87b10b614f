package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/value"
)

var blogSchemaDir = filepath.Join("testdata", "schema")

// seedDB writes a small blog into a fresh database and returns its path.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blog.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ref := func(typ, id string) store.RecordRef { return store.RecordRef{Type: typ, ID: id} }

	records := []store.Record{
		{Type: "User", ID: "u1", Attributes: value.Map{"name": value.String("Ada")}},
		{Type: "Tag", ID: "t1", Attributes: value.Map{"label": value.String("go")}},
		{Type: "Tag", ID: "t2", Attributes: value.Map{"label": value.String("cue")}},
		{
			Type:       "Post",
			ID:         "p1",
			ClientID:   "c-p1",
			Attributes: value.Map{"title": value.String("Hello"), "body": value.String("World")},
			BelongsTo:  map[string]store.RecordRef{"author": ref("User", "u1")},
			HasMany:    map[string][]store.RecordRef{"tags": {ref("Tag", "t1"), ref("Tag", "t2")}},
			Errors:     value.Map{"title": value.String("too short")},
		},
		{
			Type:       "Post",
			ID:         "p2",
			Attributes: value.Map{"title": value.String("Hello"), "body": value.String("Changed")},
			BelongsTo:  map[string]store.RecordRef{"author": ref("User", "u1")},
			HasMany:    map[string][]store.RecordRef{"tags": {ref("Tag", "t2")}},
		},
		{
			Type:       "FeaturedPost",
			ID:         "f1",
			Attributes: value.Map{"title": value.String("Featured"), "rank": value.Int(1)},
			BelongsTo:  map[string]store.RecordRef{"author": ref("User", "missing")},
		},
	}
	for _, rec := range records {
		_, err := st.WriteRecord(context.Background(), rec)
		require.NoError(t, err)
	}
	return path
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
