package strategystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smaDoc = `{"version":1,"kind":"sma_cross","params":{"fast":5,"slow":20}}`

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "strategies.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestAddListRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	idA, err := s.Add(ctx, "A", "first", smaDoc)
	require.NoError(t, err)
	assert.Len(t, idA, idLength)
	idB, err := s.Add(ctx, "B", "second", `{"version":1,"kind":"buy_and_hold"}`)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{idA, idB}, []string{list[0].ID, list[1].ID})
	assert.Equal(t, StatusActive, list[0].Status)
	assert.JSONEq(t, smaDoc, list[0].Code)
	assert.False(t, list[0].CreatedAt.IsZero())

	// a fresh handle on the same file sees the same records
	require.NoError(t, s.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, list, again)
}

func TestStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	id, err := s.Add(ctx, "A", "", smaDoc)
	require.NoError(t, err)

	ok, err := s.SetStatus(ctx, id, StatusInactive)
	require.NoError(t, err)
	assert.True(t, ok)
	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	got, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusInactive, got.Status)

	ok, err = s.SetStatus(ctx, "missing", StatusActive)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.SetStatus(ctx, id, Status("paused"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	ok, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	_, found, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAddRejectsNonJSON(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Add(context.Background(), "x", "", "def strategy(df): pass")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestPersistenceErrorAfterClose(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.Close())
	_, err := s.Add(context.Background(), "x", "", smaDoc)
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "add", pe.Op)
}

func TestSeedFromFile(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  - name: golden cross
    description: sma 5/20
    document:
      version: 1
      kind: sma_cross
      params: {fast: 5, slow: 20}
  - name: hold
    status: inactive
    code: '{"version":1,"kind":"buy_and_hold"}'
`), 0o644))

	n, err := s.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, smaDoc, list[0].Code)
	assert.Equal(t, StatusInactive, list[1].Status)

	n, err = s.SeedFromFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
