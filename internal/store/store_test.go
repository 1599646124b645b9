package store

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/gobe/pkg/stem"
)

func openTestStore(t *testing.T, p Params) (*Store, string) {
	t.Helper()

	if p.Rand == nil {
		p.Rand = rand.New(rand.NewSource(42))
	}

	path := filepath.Join(t.TempDir(), "test.brain")
	s, err := Open(path, p)
	require.NoError(t, err, "Open")
	t.Cleanup(func() { s.Close() })
	return s, path
}

func englishStemmer(t *testing.T) stem.Stemmer {
	t.Helper()
	st, err := stem.New("english")
	require.NoError(t, err)
	return st
}

// =============================================================================
// Open / schema
// =============================================================================

func TestOpenFresh(t *testing.T) {
	s, path := openTestStore(t, Params{})

	assert.Equal(t, 3, s.Order())
	assert.Equal(t, "Cobe", s.TokenizerName())
	assert.True(t, s.Fresh())

	version, ok, err := s.GetInfo("version")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SchemaVersion, version)

	for _, count := range []func() (int64, error){
		s.TokenCount, s.NodeCount, s.EdgeCount, s.StemCount,
	} {
		n, err := count()
		require.NoError(t, err)
		assert.Zero(t, n, "fresh table should be empty")
	}

	// Reopening an existing file ignores creation params; the info
	// table wins.
	require.NoError(t, s.Close())
	s2, err := Open(path, Params{Order: 5, Tokenizer: "MegaHAL"})
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, 3, s2.Order())
	assert.Equal(t, "Cobe", s2.TokenizerName())
	assert.False(t, s2.Fresh())
}

func TestOpenSchemaMismatch(t *testing.T) {
	s, path := openTestStore(t, Params{})

	require.NoError(t, s.SetInfo("version", "1"))
	require.NoError(t, s.Close())

	_, err := Open(path, Params{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestInfo(t *testing.T) {
	s, _ := openTestStore(t, Params{})

	_, ok, err := s.GetInfo("stemmer")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetInfo("stemmer", "english"))
	text, ok, err := s.GetInfo("stemmer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "english", text)

	// SetInfo is an upsert.
	require.NoError(t, s.SetInfo("stemmer", "french"))
	text, _, _ = s.GetInfo("stemmer")
	assert.Equal(t, "french", text)

	require.NoError(t, s.DelInfo("stemmer"))
	_, ok, _ = s.GetInfo("stemmer")
	assert.False(t, ok, "attribute survived DelInfo")
}

// =============================================================================
// Tokens and stems
// =============================================================================

func TestTokens(t *testing.T) {
	s, _ := openTestStore(t, Params{})
	stemmer := englishStemmer(t)

	id, err := s.GetOrCreateToken("jumping", stemmer)
	require.NoError(t, err)

	again, err := s.GetOrCreateToken("jumping", stemmer)
	require.NoError(t, err)
	assert.Equal(t, id, again, "same text should resolve to the same id")

	got, ok, err := s.GetTokenByText("jumping")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok, err = s.GetTokenByText("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	// The word token got a stem row; punctuation does not.
	punctID, err := s.GetOrCreateToken(":)", stemmer)
	require.NoError(t, err)
	stems, err := s.TokenIDsForStem("jump")
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, stems)
	n, err := s.StemCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Stem conflation: a second word with the same stem joins the group.
	jumpedID, err := s.GetOrCreateToken("jumped", stemmer)
	require.NoError(t, err)
	stems, err = s.TokenIDsForStem("jump")
	require.NoError(t, err)
	assert.Equal(t, []int64{id, jumpedID}, stems)

	words, err := s.FilterWordTokenIDs([]int64{id, punctID, 999})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, words)

	known, err := s.FilterKnownTokenIDs([]int64{id, punctID, 999})
	require.NoError(t, err)
	assert.Equal(t, []int64{id, punctID}, known)
}

func TestGetRandomToken(t *testing.T) {
	s, _ := openTestStore(t, Params{})

	_, ok, err := s.GetRandomToken()
	require.NoError(t, err)
	assert.False(t, ok, "empty table should not produce a token")

	// A single row is reserved for the end sentinel; still no draw.
	_, err = s.GetOrCreateToken("", nil)
	require.NoError(t, err)
	_, ok, err = s.GetRandomToken()
	require.NoError(t, err)
	assert.False(t, ok, "sentinel-only table should not produce a token")

	for _, text := range []string{"alpha", "beta", "gamma"} {
		_, err = s.GetOrCreateToken(text, nil)
		require.NoError(t, err)
	}
	for i := 0; i < 50; i++ {
		id, ok, err := s.GetRandomToken()
		require.NoError(t, err)
		require.True(t, ok)
		assert.GreaterOrEqual(t, id, int64(2))
		assert.LessOrEqual(t, id, int64(4))
	}
}

func TestRebuildStems(t *testing.T) {
	s, _ := openTestStore(t, Params{})
	stemmer := englishStemmer(t)

	for _, text := range []string{"jumping", "jumped", "running", ":)"} {
		_, err := s.GetOrCreateToken(text, nil)
		require.NoError(t, err)
	}
	n, err := s.StemCount()
	require.NoError(t, err)
	assert.Zero(t, n, "no stems should exist without a stemmer")

	require.NoError(t, s.RebuildStems(stemmer))
	first, err := s.StemRows()
	require.NoError(t, err)
	assert.Len(t, first, 3, "one stem per word token")

	// Delete plus rebuild lands on the same rows.
	require.NoError(t, s.DeleteStems())
	n, err = s.StemCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.RebuildStems(stemmer))
	second, err := s.StemRows()
	require.NoError(t, err)
	assert.Equal(t, first, second, "rebuild should be idempotent")
}

// =============================================================================
// Nodes and edges
// =============================================================================

func TestGetNodeByTokens(t *testing.T) {
	s, _ := openTestStore(t, Params{})

	var ids []int64
	for _, text := range []string{"a", "b", "c"} {
		id, err := s.GetOrCreateToken(text, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := s.GetNodeByTokens(ids[:2])
	assert.Error(t, err, "context narrower than the order should be rejected")

	node, err := s.GetNodeByTokens(ids)
	require.NoError(t, err)
	again, err := s.GetNodeByTokens(ids)
	require.NoError(t, err)
	assert.Equal(t, node, again, "same context should resolve to the same node")

	counts, err := s.NodeCounts([]int64{node})
	require.NoError(t, err)
	assert.Zero(t, counts[node], "fresh node starts at count 0")

	lastID, err := s.NodeLastTokenID(node)
	require.NoError(t, err)
	assert.Equal(t, ids[2], lastID)
	lastText, err := s.NodeLastTokenText(node)
	require.NoError(t, err)
	assert.Equal(t, "c", lastText)
}

// threeNodes builds tokens a, b, c and one node per token with all
// slots equal.
func threeNodes(t *testing.T, s *Store) (n1, n2, n3 int64) {
	t.Helper()

	nodes := make([]int64, 0, 3)
	for _, text := range []string{"a", "b", "c"} {
		id, err := s.GetOrCreateToken(text, nil)
		require.NoError(t, err)
		n, err := s.GetNodeByTokens([]int64{id, id, id})
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	return nodes[0], nodes[1], nodes[2]
}

func TestAddEdgeAndTriggers(t *testing.T) {
	s, _ := openTestStore(t, Params{})
	n1, n2, _ := threeNodes(t, s)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddEdge(n1, n2, true))
	}

	var edgeCount int64
	err := s.db.QueryRow(
		`SELECT count FROM edges WHERE prev_node = ? AND next_node = ?`,
		n1, n2).Scan(&edgeCount)
	require.NoError(t, err)
	assert.Equal(t, int64(3), edgeCount, "repeat AddEdge should increment, not insert")
	n, err := s.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A different has_space value is a distinct edge.
	require.NoError(t, s.AddEdge(n1, n2, false))
	n, _ = s.EdgeCount()
	assert.Equal(t, int64(2), n)

	// The triggers keep node counts consistent through insert, update
	// and delete.
	counts, err := s.NodeCounts([]int64{n2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[n2])
	broken, err := s.BrokenNodeCounts()
	require.NoError(t, err)
	assert.Zero(t, broken)

	_, err = s.db.Exec(
		`UPDATE edges SET count = 10 WHERE prev_node = ? AND has_space = 1`, n1)
	require.NoError(t, err)
	broken, _ = s.BrokenNodeCounts()
	assert.Zero(t, broken, "update trigger should adjust node counts")

	_, err = s.db.Exec(`DELETE FROM edges WHERE prev_node = ?`, n1)
	require.NoError(t, err)
	broken, _ = s.BrokenNodeCounts()
	assert.Zero(t, broken, "delete trigger should adjust node counts")
	counts, _ = s.NodeCounts([]int64{n2})
	assert.Zero(t, counts[n2])
}

func TestWalk(t *testing.T) {
	s, _ := openTestStore(t, Params{})
	n1, n2, n3 := threeNodes(t, s)

	require.NoError(t, s.AddEdge(n1, n2, false))
	require.NoError(t, s.AddEdge(n2, n3, true))

	edges, err := s.Walk(n1, n3, Forward)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, n1, edges[0].Prev)
	assert.Equal(t, n2, edges[0].Next)
	assert.Equal(t, n2, edges[1].Prev)
	assert.Equal(t, n3, edges[1].Next)
	assert.False(t, edges[0].HasSpace)
	assert.True(t, edges[1].HasSpace)

	edges, err = s.Walk(n3, n1, Backward)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, n3, edges[0].Next)
	assert.Equal(t, n2, edges[1].Next)

	// A node with no outbound edges ends the walk early.
	edges, err = s.Walk(n3, n1, Forward)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestWalkTerminatesOnCycle(t *testing.T) {
	s, _ := openTestStore(t, Params{})
	n1, n2, n3 := threeNodes(t, s)

	// n3 is unreachable; the walk spins n1 <-> n2 until the step cap.
	require.NoError(t, s.AddEdge(n1, n2, false))
	require.NoError(t, s.AddEdge(n2, n1, false))

	edges, err := s.Walk(n1, n3, Forward)
	require.NoError(t, err)
	assert.Len(t, edges, maxWalkSteps)
}

// =============================================================================
// Batch mode and transactions
// =============================================================================

func hasIndex(t *testing.T, s *Store, name string) bool {
	t.Helper()
	var n int64
	err := s.q().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`,
		name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestBatchIndexSwap(t *testing.T) {
	s, _ := openTestStore(t, Params{})

	require.True(t, hasIndex(t, s, "edges_all_prev"))
	require.True(t, hasIndex(t, s, "edges_all_next"))

	require.NoError(t, s.StartBatch())
	assert.True(t, hasIndex(t, s, "learn_index"))
	assert.False(t, hasIndex(t, s, "edges_all_prev"), "reply index survived StartBatch")

	// Writes inside the batch go through the open transaction.
	n1, n2, _ := threeNodes(t, s)
	require.NoError(t, s.AddEdge(n1, n2, false))

	require.NoError(t, s.StopBatch())
	assert.False(t, hasIndex(t, s, "learn_index"), "learn_index survived StopBatch")
	assert.True(t, hasIndex(t, s, "edges_all_prev"))
	assert.True(t, hasIndex(t, s, "edges_all_next"))

	// The batched write was committed.
	n, err := s.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	broken, err := s.BrokenNodeCounts()
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestTransactionRollback(t *testing.T) {
	s, _ := openTestStore(t, Params{})

	require.NoError(t, s.Begin())
	assert.Error(t, s.Begin(), "nested Begin should fail")

	_, err := s.GetOrCreateToken("ephemeral", nil)
	require.NoError(t, err)
	require.NoError(t, s.Rollback())

	_, ok, err := s.GetTokenByText("ephemeral")
	require.NoError(t, err)
	assert.False(t, ok, "token survived rollback")
	n, err := s.TokenCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
