package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memback/memback/storage"
	"github.com/memback/memback/types"
)

func match(t *testing.T, store *storage.Memory, doc, where map[string]any) bool {
	t.Helper()
	match, err := NewFilter(store, where).Match(context.Background(), doc)
	require.NoError(t, err)
	return match
}

func TestMatchLiteralEquality(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"name": "Alice", "age": 21}

	assert.True(t, match(t, store, doc, map[string]any{"name": "Alice"}))
	assert.True(t, match(t, store, doc, map[string]any{"name": "Alice", "age": 21}))
	assert.False(t, match(t, store, doc, map[string]any{"name": "Bob"}))
	assert.False(t, match(t, store, doc, map[string]any{"missing": "x"}))
}

func TestMatchNilWhere(t *testing.T) {
	store := storage.NewMemory()
	assert.True(t, match(t, store, map[string]any{"a": 1}, nil))
}

func TestMatchDottedPath(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"profile": map[string]any{"city": "Oslo"}}

	assert.True(t, match(t, store, doc, map[string]any{"profile.city": "Oslo"}))
	assert.False(t, match(t, store, doc, map[string]any{"profile.country": "Norway"}))
	// A missing intermediate segment is a non-match, not an error.
	assert.False(t, match(t, store, doc, map[string]any{"missing.city": "Oslo"}))
}

func TestMatchExists(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"name": "Alice"}

	assert.True(t, match(t, store, doc, map[string]any{"name": map[string]any{"$exists": true}}))
	assert.True(t, match(t, store, doc, map[string]any{"missing": map[string]any{"$exists": false}}))
	assert.False(t, match(t, store, doc, map[string]any{"name": map[string]any{"$exists": false}}))
	assert.False(t, match(t, store, doc, map[string]any{"missing": map[string]any{"$exists": true}}))
}

func TestMatchInNotInComplement(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"age": 21}
	operand := []any{18, 21, 65}

	assert.True(t, match(t, store, doc, map[string]any{"age": map[string]any{"$in": operand}}))
	assert.False(t, match(t, store, doc, map[string]any{"age": map[string]any{"$nin": operand}}))

	other := []any{1, 2}
	assert.False(t, match(t, store, doc, map[string]any{"age": map[string]any{"$in": other}}))
	assert.True(t, match(t, store, doc, map[string]any{"age": map[string]any{"$nin": other}}))
}

func TestMatchComparisons(t *testing.T) {
	store := storage.NewMemory()
	young := map[string]any{"age": 17}
	adult := map[string]any{"age": 21}
	where := map[string]any{"age": map[string]any{"$gte": 18}}

	assert.False(t, match(t, store, young, where))
	assert.True(t, match(t, store, adult, where))

	assert.True(t, match(t, store, young, map[string]any{"age": map[string]any{"$lt": 18}}))
	assert.True(t, match(t, store, adult, map[string]any{"age": map[string]any{"$lte": 21, "$gt": 20}}))
}

func TestMatchCompareDates(t *testing.T) {
	store := storage.NewMemory()
	instant := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	doc := map[string]any{"startedAt": types.NewDate(instant)}

	where := map[string]any{"startedAt": map[string]any{"$lt": types.NewDate(instant.Add(time.Hour))}}
	assert.True(t, match(t, store, doc, where))

	where = map[string]any{"startedAt": map[string]any{"$gt": types.NewDate(instant)}}
	assert.False(t, match(t, store, doc, where))
}

func TestMatchCompareIncompatibleTypesFails(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"age": "old"}

	_, err := NewFilter(store, map[string]any{"age": map[string]any{"$lt": 18}}).Match(context.Background(), doc)
	assert.Error(t, err)
}

func TestMatchCompareAbsentField(t *testing.T) {
	store := storage.NewMemory()
	assert.False(t, match(t, store, map[string]any{}, map[string]any{"age": map[string]any{"$lt": 18}}))
}

func TestMatchRegex(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"name": "Alice Smith"}

	assert.True(t, match(t, store, doc, map[string]any{"name": map[string]any{"$regex": "^Alice"}}))
	assert.False(t, match(t, store, doc, map[string]any{"name": map[string]any{"$regex": "^Smith"}}))
	// Literal quoting markers are stripped before compiling.
	assert.True(t, match(t, store, doc, map[string]any{"name": map[string]any{"$regex": `\QAlice\E`}}))
	// Non-string subjects never match.
	assert.False(t, match(t, store, map[string]any{"name": 5}, map[string]any{"name": map[string]any{"$regex": "5"}}))
}

func TestMatchOr(t *testing.T) {
	store := storage.NewMemory()
	where := map[string]any{"$or": []any{
		map[string]any{"a": 1},
		map[string]any{"b": 2},
	}}

	assert.True(t, match(t, store, map[string]any{"a": 1, "b": 5}, where))
	assert.True(t, match(t, store, map[string]any{"a": 9, "b": 2}, where))
	assert.False(t, match(t, store, map[string]any{"a": 9, "b": 5}, where))
}

func TestMatchNotEqual(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"name": "Alice"}

	assert.True(t, match(t, store, doc, map[string]any{"name": map[string]any{"$ne": "Bob"}}))
	assert.False(t, match(t, store, doc, map[string]any{"name": map[string]any{"$ne": "Alice"}}))
}

func TestMatchAll(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"tags": []any{1, 2, 3}}

	assert.True(t, match(t, store, doc, map[string]any{"tags": map[string]any{"$all": []any{1, 3}}}))
	assert.False(t, match(t, store, doc, map[string]any{"tags": map[string]any{"$all": []any{1, 4}}}))
	assert.False(t, match(t, store, map[string]any{"tags": "scalar"}, map[string]any{"tags": map[string]any{"$all": []any{1}}}))
}

func TestMatchEnvelopeConstraints(t *testing.T) {
	store := storage.NewMemory()
	instant := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"owner":     types.NewPointer("User", "u1"),
		"startedAt": types.NewDate(instant),
	}

	assert.True(t, match(t, store, doc, map[string]any{"owner": types.NewPointer("User", "u1")}))
	assert.False(t, match(t, store, doc, map[string]any{"owner": types.NewPointer("User", "u2")}))
	assert.True(t, match(t, store, doc, map[string]any{"startedAt": types.NewDate(instant)}))
}

func TestMatchLiteralObjectValue(t *testing.T) {
	store := storage.NewMemory()
	doc := map[string]any{"meta": map[string]any{"rank": 1}}

	assert.True(t, match(t, store, doc, map[string]any{"meta": map[string]any{"rank": 1}}))
	assert.False(t, match(t, store, doc, map[string]any{"meta": map[string]any{"rank": 2}}))
}

func TestMatchUnknownOperator(t *testing.T) {
	store := storage.NewMemory()
	_, err := NewFilter(store, map[string]any{"a": map[string]any{"$near": 1}}).Match(context.Background(), map[string]any{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$near")
}

func TestMatchSelect(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "Team", "t1", map[string]any{"objectId": "t1", "city": "Oslo", "winner": true}))
	require.NoError(t, store.Put(ctx, "Team", "t2", map[string]any{"objectId": "t2", "city": "Bergen", "winner": false}))

	where := map[string]any{"hometown": map[string]any{"$select": map[string]any{
		"query": map[string]any{"className": "Team", "where": map[string]any{"winner": true}},
		"key":   "city",
	}}}

	assert.True(t, match(t, store, map[string]any{"hometown": "Oslo"}, where))
	assert.False(t, match(t, store, map[string]any{"hometown": "Bergen"}, where))
}

func TestMatchInQuery(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "Post", "p1", map[string]any{"objectId": "p1", "image": true}))
	require.NoError(t, store.Put(ctx, "Post", "p2", map[string]any{"objectId": "p2", "image": false}))

	where := map[string]any{"post": map[string]any{"$inQuery": map[string]any{
		"className": "Post",
		"where":     map[string]any{"image": true},
	}}}

	assert.True(t, match(t, store, map[string]any{"post": types.NewPointer("Post", "p1")}, where))
	assert.False(t, match(t, store, map[string]any{"post": types.NewPointer("Post", "p2")}, where))
}

func TestMatchRelatedToPredicate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "Post", "p1", map[string]any{
		"objectId": "p1",
		"likes":    []any{types.NewPointer("User", "u1")},
	}))

	where := map[string]any{"$relatedTo": map[string]any{
		"object": types.NewPointer("Post", "p1"),
		"key":    "likes",
	}}

	assert.True(t, match(t, store, map[string]any{"objectId": "u1"}, where))
	assert.False(t, match(t, store, map[string]any{"objectId": "u2"}, where))
}

func TestSearchReturnsCopiesInOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "Player", "1", map[string]any{"objectId": "1", "score": 10}))
	require.NoError(t, store.Put(ctx, "Player", "2", map[string]any{"objectId": "2", "score": 5}))
	require.NoError(t, store.Put(ctx, "Player", "3", map[string]any{"objectId": "3", "score": 20}))

	results, err := Search(ctx, store, "Player", map[string]any{"score": map[string]any{"$gte": 10}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0]["objectId"])
	assert.Equal(t, "3", results[1]["objectId"])

	// Mutating a result must not reach the store.
	results[0]["score"] = 0
	stored, err := store.Get(ctx, "Player", "1")
	require.NoError(t, err)
	assert.Equal(t, 10, stored["score"])
}

func TestSearchRelatedToSubstitutesResults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "User", "u1", map[string]any{"objectId": "u1", "name": "Alice"}))
	require.NoError(t, store.Put(ctx, "User", "u2", map[string]any{"objectId": "u2", "name": "Bob"}))
	require.NoError(t, store.Put(ctx, "User", "u3", map[string]any{"objectId": "u3", "name": "Carol"}))
	require.NoError(t, store.Put(ctx, "Post", "p1", map[string]any{
		"objectId": "p1",
		"likes":    []any{types.NewPointer("User", "u1"), types.NewPointer("User", "u3"), types.NewPointer("User", "gone")},
	}))

	results, err := Search(ctx, store, "User", map[string]any{"$relatedTo": map[string]any{
		"object": types.NewPointer("Post", "p1"),
		"key":    "likes",
	}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alice", results[0]["name"])
	assert.Equal(t, "Carol", results[1]["name"])
}

func TestSearchRelatedToAbsentOwner(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	results, err := Search(ctx, store, "User", map[string]any{"$relatedTo": map[string]any{
		"object": types.NewPointer("Post", "missing"),
		"key":    "likes",
	}})
	require.NoError(t, err)
	assert.Empty(t, results)
}
