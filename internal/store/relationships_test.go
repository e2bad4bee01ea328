// ABOUTME: Tests for the bidirectional relationship engine
// ABOUTME: Covers symmetry, idempotent upsert, referential integrity and cascade on delete

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeThing inserts a thing with the given URL for relationship tests.
func makeThing(t *testing.T, s *SQLiteStore, url string) *Thing {
	t.Helper()
	thing := &Thing{URL: url, Type: "Node"}
	require.NoError(t, s.CreateThing(context.Background(), thing))
	return thing
}

func TestRelate_BidirectionalSymmetry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := makeThing(t, s, "lattice://thing/post")
	user := makeThing(t, s, "lattice://thing/user")

	rel, err := s.Relate(ctx, post.URL, user.URL, "author", "posts")
	require.NoError(t, err)
	assert.Equal(t, "author", rel.Predicate)
	assert.Equal(t, "posts", rel.Reverse)

	forward, err := s.Related(ctx, post.URL, "author", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, forward.Things, 1)
	assert.Equal(t, user.URL, forward.Things[0].URL)

	backward, err := s.RelatedBy(ctx, user.URL, "posts", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, backward.Things, 1)
	assert.Equal(t, post.URL, backward.Things[0].URL)
}

func TestRelate_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := makeThing(t, s, "lattice://thing/a")
	b := makeThing(t, s, "lattice://thing/b")

	_, err := s.Relate(ctx, a.URL, b.URL, "knows", "knownBy")
	require.NoError(t, err)
	_, err = s.Relate(ctx, a.URL, b.URL, "knows", "knownBy")
	require.NoError(t, err)

	result, err := s.Related(ctx, a.URL, "knows", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Things, 1, "re-relating the same triple must not duplicate the edge")
}

func TestRelate_InvalidReference(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := makeThing(t, s, "lattice://thing/a")

	_, err := s.Relate(ctx, a.URL, "lattice://thing/ghost", "knows", "knownBy")
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.Relate(ctx, "lattice://thing/ghost", a.URL, "knows", "knownBy")
	assert.ErrorIs(t, err, ErrInvalidReference)

	// No edge was created in either direction
	result, err := s.Related(ctx, a.URL, "knows", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Things)
}

func TestDeleteThing_CascadesRelationships(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := makeThing(t, s, "lattice://thing/post")
	user := makeThing(t, s, "lattice://thing/user")
	tag := makeThing(t, s, "lattice://thing/tag")

	_, err := s.Relate(ctx, post.URL, user.URL, "author", "posts")
	require.NoError(t, err)
	_, err = s.Relate(ctx, tag.URL, post.URL, "tags", "taggedBy")
	require.NoError(t, err)

	deleted, err := s.DeleteThing(ctx, post.URL)
	require.NoError(t, err)
	require.True(t, deleted)

	// Queries referencing the deleted thing return empty, not an error
	backward, err := s.RelatedBy(ctx, user.URL, "posts", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, backward.Things)

	forward, err := s.Related(ctx, tag.URL, "tags", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, forward.Things)
}

func TestUnrelate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := makeThing(t, s, "lattice://thing/a")
	b := makeThing(t, s, "lattice://thing/b")

	_, err := s.Relate(ctx, a.URL, b.URL, "knows", "knownBy")
	require.NoError(t, err)

	deleted, err := s.Unrelate(ctx, a.URL, b.URL, "knows")
	require.NoError(t, err)
	assert.True(t, deleted)

	result, err := s.Related(ctx, a.URL, "knows", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Things)

	deleted, err = s.Unrelate(ctx, a.URL, b.URL, "knows")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRelated_OrderingAndPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	hub := makeThing(t, s, "lattice://thing/hub")
	var spokes []string
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("lattice://thing/spoke%d", i)
		makeThing(t, s, url)
		_, err := s.Relate(ctx, hub.URL, url, "links", "linkedBy")
		require.NoError(t, err)
		spokes = append(spokes, url)
	}

	// Ascending by default
	asc, err := s.Related(ctx, hub.URL, "links", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, asc.Things, 5)
	assert.Equal(t, spokes[0], asc.Things[0].URL)

	// Descending on request
	desc, err := s.Related(ctx, hub.URL, "links", QueryOptions{Descending: true})
	require.NoError(t, err)
	require.Len(t, desc.Things, 5)
	assert.Equal(t, spokes[4], desc.Things[0].URL)

	// Cursor pagination walks all rows exactly once
	var seen []string
	cursor := ""
	for {
		page, err := s.Related(ctx, hub.URL, "links", QueryOptions{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, thing := range page.Things {
			seen = append(seen, thing.URL)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, spokes, seen)
}

func TestRelate_DistinctPredicatesCoexist(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := makeThing(t, s, "lattice://thing/a")
	b := makeThing(t, s, "lattice://thing/b")

	_, err := s.Relate(ctx, a.URL, b.URL, "knows", "knownBy")
	require.NoError(t, err)
	_, err = s.Relate(ctx, a.URL, b.URL, "follows", "followedBy")
	require.NoError(t, err)

	knows, err := s.Related(ctx, a.URL, "knows", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, knows.Things, 1)

	follows, err := s.Related(ctx, a.URL, "follows", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, follows.Things, 1)
}
