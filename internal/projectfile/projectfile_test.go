package projectfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `name: house
start_date: "2024-01-01"
tasks:
  - id: a
    name: foundation
    duration: 3
  - id: b
    name: walls
    duration: 2
    dependencies:
      - id: a
        type: FS
`

const sampleTOML = `name = "house"
start_date = "2024-01-01"

[[tasks]]
id = "a"
name = "foundation"
duration = 3

[[tasks]]
id = "b"
name = "walls"
duration = 2

  [[tasks.dependencies]]
  id = "a"
  type = "FS"
`

var today = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"plan.yaml": FormatYAML,
		"plan.YML":  FormatYAML,
		"plan.json": FormatJSON,
		"plan.toml": FormatTOML,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("plan.csv")
	assert.Error(t, err)
}

func TestDecodeAndCalculate(t *testing.T) {
	for name, tc := range map[string]struct {
		data   string
		format Format
	}{
		"yaml": {sampleYAML, FormatYAML},
		"toml": {sampleTOML, FormatTOML},
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Decode([]byte(tc.data), tc.format)
			require.NoError(t, err)
			require.Len(t, f.Tasks, 2)

			res, err := f.Calculate(today)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, res.Stats.CriticalPath)

			a, b := f.Task("a"), f.Task("b")
			assert.Equal(t, "2024-01-01", a.Start)
			assert.Equal(t, "2024-01-03", a.End)
			assert.Equal(t, "2024-01-04", b.Start)
			assert.Equal(t, "2024-01-05", b.End)
			assert.True(t, b.IsCritical)
		})
	}
}

func TestDecodeReportsSchemaProblems(t *testing.T) {
	data := `name: house
tasks:
  - id: a
    name: foundation
    duration: 3
    progress: 150
    start: 2024/01/01
`
	_, err := Decode([]byte(data), FormatYAML)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
	assert.Contains(t, err.Error(), "/tasks/0/progress")
	assert.Contains(t, err.Error(), "/tasks/0/start")
}

func TestDecodeRejectsUnknownJSONFields(t *testing.T) {
	_, err := Decode([]byte(`{"name":"house","tasks":[],"owner":"me"}`), FormatJSON)
	assert.Error(t, err)
}

func TestEdit(t *testing.T) {
	f, err := Decode([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	_, err = f.Calculate(today)
	require.NoError(t, err)

	res, err := f.Edit("a", "duration", 5, today)
	require.NoError(t, err)
	assert.True(t, res.NeedsRecalc)
	assert.Equal(t, "2024-01-05", f.Task("a").End)
	assert.Equal(t, "2024-01-08", f.Task("b").Start)
	assert.Equal(t, "2024-01-09", f.Task("b").End)

	_, err = f.Edit("a", "duration", 0, today)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1 day")
	assert.Equal(t, 5, f.Task("a").Duration)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range []string{"yaml", "json", "toml"} {
		t.Run(ext, func(t *testing.T) {
			f, err := Decode([]byte(sampleYAML), FormatYAML)
			require.NoError(t, err)
			_, err = f.Calculate(today)
			require.NoError(t, err)

			dir := t.TempDir()
			path := filepath.Join(dir, "plan."+ext)
			require.NoError(t, Save(context.Background(), path, f))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file left behind")

			got, err := Load(context.Background(), path)
			require.NoError(t, err)
			require.Len(t, got.Tasks, 2)
			assert.Equal(t, "2024-01-05", got.Task("b").End)
			assert.Equal(t, f.Task("b").Dependencies, got.Task("b").Dependencies)
		})
	}
}
