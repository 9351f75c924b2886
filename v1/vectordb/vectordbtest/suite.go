// Package vectordbtest holds a behavioral test suite that every vectordb.Store
// adapter runs against its own backend (a fake server, an in-process store or
// a container).
package vectordbtest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Capabilities lists the optional behaviors a backend supports. Operations
// outside the set must fail with vectordb.ErrNotImplemented.
type Capabilities struct {
	Update bool
	List   bool
	UserID bool

	// Overwrite reports that Insert replaces an existing id.
	Overwrite bool

	// ReturnsVectors reports that Get and Search return stored vectors.
	ReturnsVectors bool
}

// Harness describes how to build the store under test.
type Harness struct {
	// Dimension of the index. Must be at least 4.
	Dimension int

	// NewStore returns a fresh, initialized store. The harness owns cleanup.
	NewStore func(t *testing.T) vectordb.Store

	// Calls returns the number of backend calls made so far. Optional.
	Calls func() int64

	Capabilities
}

// Run executes the suite as subtests of t.
func Run(t *testing.T, h Harness) {
	require.GreaterOrEqual(t, h.Dimension, 4, "suite needs at least 4 dimensions")
	require.NotNil(t, h.NewStore)

	t.Run("InsertAndGet", h.testInsertAndGet)
	t.Run("GetMissing", h.testGetMissing)
	t.Run("NilPayload", h.testNilPayload)
	t.Run("SearchOrdering", h.testSearchOrdering)
	t.Run("SearchLimit", h.testSearchLimit)
	t.Run("SearchFilter", h.testSearchFilter)
	t.Run("ArityMismatch", h.testArityMismatch)
	t.Run("DimensionMismatch", h.testDimensionMismatch)
	t.Run("InvalidArguments", h.testInvalidArguments)
	t.Run("Delete", h.testDelete)
	t.Run("Overwrite", h.testOverwrite)
	t.Run("Update", h.testUpdate)
	t.Run("List", h.testList)
	t.Run("UserID", h.testUserID)
	t.Run("ConcurrentInsert", h.testConcurrentInsert)
	t.Run("DeleteCollection", h.testDeleteCollection)
	t.Run("Close", h.testClose)
}

// Unit returns the i-th basis vector of the given dimension.
func Unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i%dim] = 1
	return v
}

// Mix returns a*Unit(i) + b*Unit(j).
func Mix(dim, i, j int, a, b float32) []float32 {
	v := make([]float32, dim)
	v[i%dim] += a
	v[j%dim] += b
	return v
}

func (h Harness) calls() int64 {
	if h.Calls == nil {
		return 0
	}
	return h.Calls()
}

// seed inserts four records: a and b tagged x, c tagged y, d untagged.
func (h Harness) seed(t *testing.T, s vectordb.Store) {
	t.Helper()
	d := h.Dimension
	err := s.Insert(context.Background(),
		[][]float32{Unit(d, 0), Mix(d, 0, 1, 0.8, 0.6), Unit(d, 2), Unit(d, 3)},
		[]string{"a", "b", "c", "d"},
		[]map[string]any{
			{"tag": "x", "rank": 1},
			{"tag": "x", "rank": 2},
			{"tag": "y", "rank": 3},
			{"rank": 4},
		},
	)
	require.NoError(t, err)
}

func (h Harness) testInsertAndGet(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)

	got, err := s.Get(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, "x", got.Payload["tag"])
	assert.EqualValues(t, 2, got.Payload["rank"])
	if h.ReturnsVectors {
		assertVector(t, Mix(h.Dimension, 0, 1, 0.8, 0.6), got.Vector)
	}
}

func (h Harness) testGetMissing(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func (h Harness) testNilPayload(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, [][]float32{Unit(h.Dimension, 1)}, []string{"bare"}, []map[string]any{nil}))

	got, err := s.Get(ctx, "bare")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.Payload)
	assert.Empty(t, got.Payload)
}

func (h Harness) testSearchOrdering(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)

	results, err := s.Search(context.Background(), Unit(h.Dimension, 0), 4, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 4)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.True(t, sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	}), "scores must be non-increasing: %v", scores(results))
	assert.Equal(t, "x", results[0].Payload["tag"])
}

func (h Harness) testSearchLimit(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)

	results, err := s.Search(context.Background(), Unit(h.Dimension, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func (h Harness) testSearchFilter(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)
	ctx := context.Background()

	results, err := s.Search(ctx, Unit(h.Dimension, 2), 4, vectordb.Eq("tag", "x"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(results))

	results, err = s.Search(ctx, Unit(h.Dimension, 0), 4, vectordb.In("tag", "y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(results))

	results, err = s.Search(ctx, Unit(h.Dimension, 0), 4, vectordb.Gte("rank", 3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c", "d"}, ids(results))
}

func (h Harness) testArityMismatch(t *testing.T) {
	s := h.NewStore(t)
	before := h.calls()

	err := s.Insert(context.Background(),
		[][]float32{Unit(h.Dimension, 0), Unit(h.Dimension, 1)},
		[]string{"a"},
		[]map[string]any{nil, nil},
	)
	require.Error(t, err)
	assert.True(t, vectordb.IsArityMismatchError(err), "got %v", err)
	assert.Equal(t, before, h.calls(), "no backend call expected")
}

func (h Harness) testDimensionMismatch(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()
	before := h.calls()

	err := s.Insert(ctx, [][]float32{make([]float32, h.Dimension+1)}, []string{"a"}, []map[string]any{nil})
	assert.True(t, vectordb.IsDimensionMismatchError(err), "insert: got %v", err)

	_, err = s.Search(ctx, make([]float32, h.Dimension-1), 1, nil)
	assert.True(t, vectordb.IsDimensionMismatchError(err), "search: got %v", err)

	assert.Equal(t, before, h.calls(), "no backend call expected")
}

func (h Harness) testInvalidArguments(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()
	before := h.calls()

	_, err := s.Search(ctx, Unit(h.Dimension, 0), 0, nil)
	assert.True(t, vectordb.IsInvalidArgumentError(err), "limit: got %v", err)

	_, err = s.Search(ctx, Unit(h.Dimension, 0), 1, vectordb.Filter{"tag": map[string]any{"$regex": "x"}})
	assert.True(t, vectordb.IsInvalidArgumentError(err), "filter: got %v", err)

	_, err = s.Get(ctx, "")
	assert.True(t, vectordb.IsInvalidArgumentError(err), "get: got %v", err)

	assert.Equal(t, before, h.calls(), "no backend call expected")
}

func (h Harness) testDelete(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "a"))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Delete(ctx, "never-existed"))

	results, err := s.Search(ctx, Unit(h.Dimension, 0), 4, nil)
	require.NoError(t, err)
	assert.NotContains(t, ids(results), "a")
}

func (h Harness) testOverwrite(t *testing.T) {
	if !h.Overwrite {
		t.Skip("backend does not overwrite on insert")
	}
	s := h.NewStore(t)
	h.seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, [][]float32{Unit(h.Dimension, 1)}, []string{"a"}, []map[string]any{{"tag": "z"}}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "z", got.Payload["tag"])
}

func (h Harness) testUpdate(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()

	if !h.Capabilities.Update {
		err := s.Update(ctx, "a", Unit(h.Dimension, 1), nil)
		assert.True(t, vectordb.IsNotImplementedError(err), "got %v", err)
		return
	}
	h.seed(t, s)

	require.NoError(t, s.Update(ctx, "a", nil, map[string]any{"tag": "updated"}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{"tag": "updated"}, got.Payload)
	if h.ReturnsVectors {
		assertVector(t, Unit(h.Dimension, 0), got.Vector)
	}

	require.NoError(t, s.Update(ctx, "a", Unit(h.Dimension, 3), nil))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Payload["tag"])
	if h.ReturnsVectors {
		assertVector(t, Unit(h.Dimension, 3), got.Vector)
	}

	err = s.Update(ctx, "missing", nil, map[string]any{"k": "v"})
	assert.True(t, vectordb.IsNotFoundError(err), "got %v", err)

	err = s.Update(ctx, "a", make([]float32, h.Dimension+2), nil)
	assert.True(t, vectordb.IsDimensionMismatchError(err), "got %v", err)
}

func (h Harness) testList(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()

	if !h.List {
		_, _, err := s.List(ctx, nil, 10)
		assert.True(t, vectordb.IsNotImplementedError(err), "got %v", err)
		return
	}
	h.seed(t, s)

	all, total, err := s.List(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids(all))

	page, total, err := s.List(ctx, vectordb.Eq("tag", "x"), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Contains(t, []string{"a", "b"}, page[0].ID)
}

func (h Harness) testUserID(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()

	if !h.UserID {
		_, err := s.GetUserID(ctx)
		assert.True(t, vectordb.IsNotImplementedError(err), "get: got %v", err)
		err = s.SetUserID(ctx, "u-1")
		assert.True(t, vectordb.IsNotImplementedError(err), "set: got %v", err)
		return
	}

	first, err := s.GetUserID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	again, err := s.GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, s.SetUserID(ctx, "u-1"))
	got, err := s.GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got)
}

func (h Harness) testConcurrentInsert(t *testing.T) {
	s := h.NewStore(t)
	ctx := context.Background()

	const workers = 8
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			id := fmt.Sprintf("w-%d", w)
			return s.Insert(gctx, [][]float32{Unit(h.Dimension, w)}, []string{id}, []map[string]any{{"worker": w}})
		})
	}
	require.NoError(t, g.Wait())

	for w := 0; w < workers; w++ {
		got, err := s.Get(ctx, fmt.Sprintf("w-%d", w))
		require.NoError(t, err)
		require.NotNil(t, got, "record w-%d missing", w)
		assert.EqualValues(t, w, got.Payload["worker"])
	}
}

func (h Harness) testDeleteCollection(t *testing.T) {
	s := h.NewStore(t)
	h.seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteCollection(ctx))
	require.NoError(t, s.Initialize(ctx))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func (h Harness) testClose(t *testing.T) {
	s := h.NewStore(t)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func assertVector(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d", i)
	}
}

func ids(results []vectordb.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func scores(results []vectordb.SearchResult) []float32 {
	out := make([]float32, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}
