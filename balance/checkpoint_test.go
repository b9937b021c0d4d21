package balance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.gz")
	data := HistorySaveData{
		RunID:       "run-1",
		RandomMixin: 0.1,
		Scores:      [][]float64{{1, 2, 3}, {10.5, -2}},
	}
	require.NoError(t, SaveHistory(path, data))

	loaded, err := LoadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
}

func TestLoadHistoryErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadHistory(filepath.Join(dir, "missing.gz"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0o644))
	_, err = LoadHistory(garbage)
	assert.Error(t, err)
}
