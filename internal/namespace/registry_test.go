// ABOUTME: Tests for the namespace registry
// ABOUTME: Covers lazy opening, isolation between namespaces, and name validation

package namespace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lattice/internal/store"
)

func TestRegistry_GetOpensOnce(t *testing.T) {
	reg := NewRegistry(t.TempDir(), Options{})
	defer reg.Close()

	a, err := reg.Get("alpha")
	require.NoError(t, err)

	b, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.ElementsMatch(t, []string{"alpha"}, reg.Names())
}

func TestRegistry_NamespacesAreIsolated(t *testing.T) {
	reg := NewRegistry(t.TempDir(), Options{})
	defer reg.Close()
	ctx := context.Background()

	alpha, err := reg.Get("alpha")
	require.NoError(t, err)
	beta, err := reg.Get("beta")
	require.NoError(t, err)

	thing := &store.Thing{Type: "Note", Content: "only in alpha"}
	require.NoError(t, alpha.CreateThing(ctx, thing))

	_, err = beta.GetThing(ctx, thing.URL)
	assert.ErrorIs(t, err, store.ErrNotFound)

	listed, err := beta.ListThings(ctx, store.ListThingsParams{})
	require.NoError(t, err)
	assert.Empty(t, listed.Things)
}

func TestRegistry_RejectsUnsafeNames(t *testing.T) {
	reg := NewRegistry(t.TempDir(), Options{})
	defer reg.Close()

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := reg.Get(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestRegistry_CloseEmptiesRegistry(t *testing.T) {
	reg := NewRegistry(t.TempDir(), Options{})

	_, err := reg.Get("alpha")
	require.NoError(t, err)
	_, err = reg.Get("beta")
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	assert.Empty(t, reg.Names())
}
