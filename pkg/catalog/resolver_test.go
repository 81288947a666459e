package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshhive/meshsync/pkg/meshdata"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestResolveCreatesCatalogLazily(t *testing.T) {
	r := newTestResolver(t)

	exists, err := r.Exists("ABCD")
	require.NoError(t, err)
	assert.False(t, exists)

	store, created, err := r.Resolve(meshdata.DeviceIdentity{ShortName: "ABCD"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ABCD", store.Name())

	exists, err = r.Exists("ABCD")
	require.NoError(t, err)
	assert.True(t, exists)

	// Resolving again selects the same catalog without re-creating it.
	again, created, err := r.Resolve(meshdata.DeviceIdentity{ShortName: "ABCD"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, store, again)
}

func TestResolveExactNameNoPrefixConfusion(t *testing.T) {
	dir := t.TempDir()
	r, err := NewResolver(dir)
	require.NoError(t, err)
	defer r.Close()

	// A catalog file whose name shares a prefix must not be mistaken for a
	// match.
	longer := filepath.Join(dir, "mebbs_ABCDE.db")
	require.NoError(t, os.WriteFile(longer, nil, 0o644))

	exists, err := r.Exists("ABCD")
	require.NoError(t, err)
	assert.False(t, exists)

	_, created, err := r.Resolve(meshdata.DeviceIdentity{ShortName: "ABCD"})
	require.NoError(t, err)
	assert.True(t, created, "ABCDE must not satisfy a lookup for ABCD")
}

func TestResolveExactNameCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	r, err := NewResolver(dir)
	require.NoError(t, err)
	defer r.Close()

	_, created, err := r.Resolve(meshdata.DeviceIdentity{ShortName: "abcd"})
	require.NoError(t, err)
	require.True(t, created)

	exists, err := r.Exists("ABCD")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResolveRejectsInvalidShortNames(t *testing.T) {
	r := newTestResolver(t)

	for _, short := range []string{"", "TOOLONG", "a/b", "a.b", "a b", "..", "a;"} {
		_, _, err := r.Resolve(meshdata.DeviceIdentity{ShortName: short})
		require.Error(t, err, "short name %q must be rejected", short)

		var catErr *CatalogError
		require.True(t, errors.As(err, &catErr))
		assert.True(t, errors.Is(err, ErrInvalidShortName))
	}
}

func TestListCatalogs(t *testing.T) {
	r := newTestResolver(t)

	for _, short := range []string{"BBBB", "AAAA"} {
		_, _, err := r.Resolve(meshdata.DeviceIdentity{ShortName: short})
		require.NoError(t, err)
	}

	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA", "BBBB"}, names)
}
