package keypolicy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Default(t *testing.T) {
	p := NewDefault("data", "verbose")
	seed1, err := Seed(p, []any{5, true}, nil)
	assert.NoError(t, err)
	seed2, err := Seed(p, []any{5, true}, nil)
	assert.NoError(t, err)
	assert.Equal(t, seed1, seed2)
}

func TestPolicy_IgnoreParameter(t *testing.T) {
	per := map[string]Strategy{"verbose": Ignore}
	p := NewMap([]string{"data", "verbose"}, per)

	seedTrue, err := Seed(p, []any{5, true}, nil)
	assert.NoError(t, err)
	seedFalse, err := Seed(p, []any{5, false}, nil)
	assert.NoError(t, err)
	assert.Equal(t, seedTrue, seedFalse)
}

func TestPolicy_BindsByNameNotPosition(t *testing.T) {
	per := map[string]Strategy{"verbose": Ignore}
	p := NewMap([]string{"data", "verbose"}, per)

	seedPositional, err := Seed(p, []any{5, true}, nil)
	assert.NoError(t, err)
	seedKeyword, err := Seed(p, nil, map[string]any{"data": 5, "verbose": false})
	assert.NoError(t, err)
	assert.Equal(t, seedPositional, seedKeyword)
}

func TestPolicy_PathStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	assert.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	per := map[string]Strategy{"path": PathStat}
	p := NewMap([]string{"path"}, per)

	seed1, err := Seed(p, []any{path}, nil)
	assert.NoError(t, err)

	// Touching mtime changes the key.
	future := time.Now().Add(time.Hour)
	assert.NoError(t, os.Chtimes(path, future, future))
	seed2, err := Seed(p, []any{path}, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, seed1, seed2)
}

func TestPolicy_FileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	assert.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	per := map[string]Strategy{"path": FileContent}
	p := NewMap([]string{"path"}, per)

	seed1, err := Seed(p, []any{path}, nil)
	assert.NoError(t, err)

	// Rewriting identical content keeps the same key even if mtime changes.
	future := time.Now().Add(time.Hour)
	assert.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	assert.NoError(t, os.Chtimes(path, future, future))
	seed2, err := Seed(p, []any{path}, nil)
	assert.NoError(t, err)
	assert.Equal(t, seed1, seed2)

	// Changing content changes the key.
	assert.NoError(t, os.WriteFile(path, []byte("world"), 0o644))
	seed3, err := Seed(p, []any{path}, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, seed1, seed3)
}

func TestPolicy_UnknownParametersUseDefault(t *testing.T) {
	p := NewMap([]string{"data"}, map[string]Strategy{"data": Ignore})

	seed1, err := Seed(p, nil, map[string]any{"data": 1, "extra": "a"})
	assert.NoError(t, err)
	seed2, err := Seed(p, nil, map[string]any{"data": 2, "extra": "b"})
	assert.NoError(t, err)
	assert.NotEqual(t, seed1, seed2, "extra is unmapped and still participates under DEFAULT")
}

// TestPolicy_MultipleUnknownParametersAreOrderedDeterministically guards
// against the unmapped-kwargs loop appending in Go's randomized map
// iteration order: with 2+ extra kwargs, an unsorted append would make
// canon.Encode's bytes vary across runs even for an identical call. Running
// many iterations makes a regression to map order likely to surface instead
// of accidentally passing on a single lucky iteration order.
func TestPolicy_MultipleUnknownParametersAreOrderedDeterministically(t *testing.T) {
	p := NewMap([]string{"data"}, nil)
	kwargs := map[string]any{"data": 1, "zeta": "z", "alpha": "a", "mike": "m", "bravo": "b"}

	first, err := Seed(p, nil, kwargs)
	assert.NoError(t, err)

	for i := 0; i < 20; i++ {
		next, err := Seed(p, nil, kwargs)
		assert.NoError(t, err)
		assert.Equal(t, first, next, "identical kwargs must yield identical seed bytes every time")
	}
}
