package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schemaDir = filepath.Join("testdata", "schema")

func boolPtr(b bool) *bool { return &b }

// blogScenario seeds two posts, their author and two tags.
func blogScenario(checks ...Check) *Scenario {
	return &Scenario{
		Name:        "blog",
		Description: "blog fixture",
		Schema:      schemaDir,
		Entities: []EntitySeed{
			{Type: "User", ID: "u1", ClientID: "c-u1", Attributes: map[string]any{"name": "Ada"}},
			{Type: "Tag", ID: "t1", Attributes: map[string]any{"label": "go"}},
			{Type: "Tag", ID: "t2", Attributes: map[string]any{"label": "cue"}},
			{
				Type:     "Post",
				ID:       "p1",
				ClientID: "c-p1",
				Attributes: map[string]any{
					"title":       "Hello",
					"votes":       3,
					"publishedAt": "2024-01-01T09:00:00Z",
				},
				BelongsTo: map[string]string{"author": "User/u1"},
				HasMany:   map[string][]string{"tags": {"Tag/t1"}},
				Errors:    map[string]any{"title": "too short"},
			},
		},
		Checks: checks,
	}
}

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := FindScenarioFiles(filepath.Join("testdata", "scenarios"), "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
			assert.Len(t, result.Checks, len(scenario.Checks))
		})
	}
}

func TestRun_CopyMutations(t *testing.T) {
	result, err := Run(blogScenario(Check{
		Name:   "edit",
		Left:   "Post/p1",
		CopyOf: "Post/p1",
		Mutate: []Mutation{
			{Set: "title", Value: "Bye"},
			{Set: "publishedAt", Value: "2024-01-02T09:00:00Z"},
			{Add: "tags", Ref: "Tag/t2"},
		},
		Equal:  boolPtr(true),
		Expect: []string{"hasMany:tags", "attr:title", "attr:publishedAt"},
	}))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	check := result.Checks[0]
	assert.Equal(t, "Post:[p1, c-p1]", check.Left)
	assert.Equal(t, "Post:[p1, c-p1]", check.Right)
	assert.True(t, check.Equal)
	assert.Equal(t, []string{"attr:title", "attr:publishedAt", "hasMany:tags"}, check.Deltas)
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	result, err := Run(blogScenario(Check{
		Name:   "wrong",
		Left:   "Post/p1",
		CopyOf: "Post/p1",
		Mutate: []Mutation{{Set: "title", Value: "Bye"}},
		Equal:  boolPtr(false),
		Expect: []string{"attr:body"},
	}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	check := result.Checks[0]
	assert.False(t, check.Pass)
	assert.Equal(t, []string{
		"equal: expected false, got true",
		"deltas: expected [attr:body], got [attr:title]",
	}, check.Errors)
	assert.Equal(t, []string{
		"wrong: equal: expected false, got true",
		"wrong: deltas: expected [attr:body], got [attr:title]",
	}, result.Errors)
}

func TestRun_ChecksAreIsolated(t *testing.T) {
	result, err := Run(blogScenario(
		Check{
			Name:   "mutate_loaded",
			Left:   "Post/p1",
			Right:  "Tag/t1",
			Mutate: []Mutation{{Set: "label", Value: "changed"}},
			Expect: []string{"attr:title", "attr:votes", "attr:publishedAt", "belongsTo:author", "hasMany:tags"},
		},
		Check{
			Name:   "fresh_session",
			Left:   "Tag/t1",
			CopyOf: "Tag/t2",
			Mutate: []Mutation{{Set: "label", Value: "go"}},
			Expect: []string{},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RightNamingLeftIdentityIsSeparateInstance(t *testing.T) {
	result, err := Run(blogScenario(Check{
		Name:  "same_identity",
		Left:  "Post/p1",
		Right: "Post/p1",
		Mutate: []Mutation{
			{Set: "title", Value: "Changed"},
			{Add: "tags", Ref: "Tag/t2"},
		},
		Equal:  boolPtr(true),
		Expect: []string{"attr:title", "hasMany:tags"},
	}))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	check := result.Checks[0]
	assert.Equal(t, "Post:[p1, c-p1]", check.Left)
	assert.Equal(t, "Post:[p1, c-p1]", check.Right)
	assert.Equal(t, []string{"attr:title", "hasMany:tags"}, check.Deltas)
}

func TestRun_Follow(t *testing.T) {
	result, err := Run(blogScenario(Check{
		Name:   "author",
		Left:   "Post/p1",
		Right:  "Post/p1",
		Follow: []string{"author"},
	}))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]string{"author": "User:[u1, c-u1]"}, result.Checks[0].Followed)
}

func TestRun_CheckErrors(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  string
	}{
		{
			name:  "missing left",
			check: Check{Name: "c", Left: "Post/nope", Right: "Post/p1"},
			want:  "left: ",
		},
		{
			name:  "unknown type",
			check: Check{Name: "c", Left: "Post/p1", Right: "Comment/1"},
			want:  `right: unknown entity type "Comment"`,
		},
		{
			name:  "unknown attribute",
			check: Check{Name: "c", Left: "Post/p1", CopyOf: "Post/p1", Mutate: []Mutation{{Set: "subtitle", Value: "x"}}},
			want:  `mutate[0]: Post has no attribute "subtitle"`,
		},
		{
			name:  "wrong value kind",
			check: Check{Name: "c", Left: "Post/p1", CopyOf: "Post/p1", Mutate: []Mutation{{Set: "votes", Value: "many"}}},
			want:  "int attribute does not accept string",
		},
		{
			name:  "add to a belongsTo slot",
			check: Check{Name: "c", Left: "Post/p1", CopyOf: "Post/p1", Mutate: []Mutation{{Add: "author", Ref: "User/u1"}}},
			want:  `has no hasMany "author"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(blogScenario(tt.check))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Checks[0].Errors)
			assert.Contains(t, result.Checks[0].Errors[0], tt.want)
		})
	}
}

func TestRun_FollowMissingTarget(t *testing.T) {
	scenario := blogScenario(Check{
		Name:   "c",
		Left:   "Post/p1",
		Right:  "Post/p1",
		Follow: []string{"author"},
	})
	scenario.Entities = scenario.Entities[1:] // drop User/u1

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Checks[0].Errors, 1)
	assert.Contains(t, result.Checks[0].Errors[0], "follow author: ")
	assert.Empty(t, result.Checks[0].Followed)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("bad schema dir", func(t *testing.T) {
		scenario := blogScenario()
		scenario.Schema = filepath.Join(t.TempDir(), "missing")
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load schema")
	})

	t.Run("unknown seed type", func(t *testing.T) {
		scenario := blogScenario()
		scenario.Entities = append(scenario.Entities, EntitySeed{Type: "Comment", ID: "1"})
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `entities[4]: unknown entity type "Comment"`)
	})

	t.Run("undeclared seed attribute", func(t *testing.T) {
		scenario := blogScenario()
		scenario.Entities[1].Attributes["color"] = "red"
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `Tag has no attribute "color"`)
	})

	t.Run("bad time", func(t *testing.T) {
		scenario := blogScenario()
		scenario.Entities[3].Attributes["publishedAt"] = "yesterday"
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "attribute publishedAt")
	})
}
