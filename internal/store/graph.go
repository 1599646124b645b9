package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kittclouds/gobe/pkg/stem"
)

// Direction selects which way Walk moves through the graph.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// maxWalkSteps bounds a random walk on pathological graphs where no
// edge leads back to the end context. Far larger than any realistic
// reply.
const maxWalkSteps = 1024

// Edge is one transition of the Markov chain: prev context to next
// context, whether the surface tokens were separated by whitespace,
// and how often the transition was observed.
type Edge struct {
	ID       int64
	Prev     int64
	Next     int64
	HasSpace bool
	Count    int64
}

// =============================================================================
// Tokens
// =============================================================================

// IsWordText reports whether text contains at least one letter or
// digit, the Unicode-aware sense used for the tokens.is_word column.
func IsWordText(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// GetTokenByText looks a token up without creating it.
func (s *Store) GetTokenByText(text string) (int64, bool, error) {
	var id int64
	err := s.q().QueryRow(`SELECT id FROM tokens WHERE text = ?`, text).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetOrCreateToken resolves text to a token id, inserting a row on
// first occurrence. Word tokens also get a stem row when a stemmer is
// active.
func (s *Store) GetOrCreateToken(text string, stemmer stem.Stemmer) (int64, error) {
	if id, ok, err := s.GetTokenByText(text); err != nil || ok {
		return id, err
	}

	isWord := IsWordText(text)

	var id int64
	err := s.q().QueryRow(
		`INSERT INTO tokens (text, is_word) VALUES (?, ?) RETURNING id`,
		text, boolToInt(isWord)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert token: %w", err)
	}

	if isWord && stemmer != nil {
		if st := stemmer.Stem(text); st != "" {
			if _, err := s.q().Exec(
				`INSERT INTO token_stems (token_id, stem) VALUES (?, ?)`,
				id, st); err != nil {
				return 0, fmt.Errorf("insert stem: %w", err)
			}
		}
	}

	return id, nil
}

// FilterWordTokenIDs returns the subset of ids that are word tokens,
// in id order.
func (s *Store) FilterWordTokenIDs(ids []int64) ([]int64, error) {
	return s.filterTokenIDs(ids, true)
}

// FilterKnownTokenIDs returns the subset of ids present in the tokens
// table, in id order.
func (s *Store) FilterKnownTokenIDs(ids []int64) ([]int64, error) {
	return s.filterTokenIDs(ids, false)
}

func (s *Store) filterTokenIDs(ids []int64, wordsOnly bool) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id FROM tokens WHERE id IN (` + placeholders(len(ids)) + `)`
	if wordsOnly {
		query += ` AND is_word = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.q().Query(query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TokenIDsForStem returns every token id sharing a stem, in id order.
func (s *Store) TokenIDsForStem(st string) ([]int64, error) {
	rows, err := s.q().Query(
		`SELECT token_id FROM token_stems WHERE stem = ? ORDER BY token_id`, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetRandomToken picks a uniformly random token id. It assumes the END
// sentinel occupies id 1 and draws from [2, max(id)], so it reports
// false until the table holds at least two rows.
func (s *Store) GetRandomToken() (int64, bool, error) {
	var max sql.NullInt64
	if err := s.q().QueryRow(`SELECT MAX(id) FROM tokens`).Scan(&max); err != nil {
		return 0, false, err
	}
	if !max.Valid || max.Int64 < 2 {
		return 0, false, nil
	}
	return 2 + s.rng.Int63n(max.Int64-1), true, nil
}

// =============================================================================
// Stems
// =============================================================================

// DeleteStems drops the whole token_stems table content. It is fully
// rebuildable from tokens.
func (s *Store) DeleteStems() error {
	_, err := s.q().Exec(`DELETE FROM token_stems`)
	return err
}

// RebuildStems repopulates token_stems for every word token using the
// given stemmer.
func (s *Store) RebuildStems(stemmer stem.Stemmer) error {
	// Collect first: the single connection cannot interleave inserts
	// with an open result set.
	rows, err := s.q().Query(`SELECT id, text FROM tokens WHERE is_word = 1`)
	if err != nil {
		return err
	}

	type wordToken struct {
		id   int64
		text string
	}
	var words []wordToken
	for rows.Next() {
		var w wordToken
		if err := rows.Scan(&w.id, &w.text); err != nil {
			rows.Close()
			return err
		}
		words = append(words, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, w := range words {
		st := stemmer.Stem(w.text)
		if st == "" {
			continue
		}
		if _, err := s.q().Exec(
			`INSERT INTO token_stems (token_id, stem) VALUES (?, ?)`,
			w.id, st); err != nil {
			return fmt.Errorf("insert stem: %w", err)
		}
	}

	return nil
}

// =============================================================================
// Nodes
// =============================================================================

// GetNodeByTokens resolves an order-sized context tuple to a node id,
// inserting a row with count 0 when absent.
func (s *Store) GetNodeByTokens(tokenIDs []int64) (int64, error) {
	if len(tokenIDs) != s.order {
		return 0, fmt.Errorf("context has %d tokens, want %d", len(tokenIDs), s.order)
	}

	args := int64Args(tokenIDs)

	var id int64
	err := s.q().QueryRow(s.nodeSelect, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if err := s.q().QueryRow(s.nodeInsert, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert node: %w", err)
	}
	return id, nil
}

// GetRandomNodeWithToken picks a uniformly random node whose first
// slot holds tokenID.
func (s *Store) GetRandomNodeWithToken(tokenID int64) (int64, bool, error) {
	var count int64
	err := s.q().QueryRow(
		`SELECT COUNT(*) FROM nodes WHERE token0_id = ?`, tokenID).Scan(&count)
	if err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}

	var id int64
	err = s.q().QueryRow(
		`SELECT id FROM nodes WHERE token0_id = ? ORDER BY id LIMIT 1 OFFSET ?`,
		tokenID, s.rng.Int63n(count)).Scan(&id)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// NodeCounts batch-fetches nodes.count for a set of node ids.
func (s *Store) NodeCounts(ids []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	rows, err := s.q().Query(
		`SELECT id, count FROM nodes WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// NodeLastTokenID returns the id in the node's final slot.
func (s *Store) NodeLastTokenID(nodeID int64) (int64, error) {
	var id int64
	err := s.q().QueryRow(
		`SELECT `+s.lastCol+` FROM nodes WHERE id = ?`, nodeID).Scan(&id)
	return id, err
}

// NodeLastTokenText returns the text of the node's final slot.
func (s *Store) NodeLastTokenText(nodeID int64) (string, error) {
	var text string
	err := s.q().QueryRow(
		`SELECT tokens.text FROM nodes, tokens
			WHERE nodes.id = ? AND tokens.id = nodes.`+s.lastCol, nodeID).Scan(&text)
	return text, err
}

// =============================================================================
// Edges
// =============================================================================

// AddEdge increments the count of a matching (prev, next, has_space)
// edge, inserting a fresh row with count 1 otherwise. The triggers
// installed by the migrations keep next_node.count in sync.
func (s *Store) AddEdge(prevNode, nextNode int64, hasSpace bool) error {
	res, err := s.q().Exec(
		`UPDATE edges SET count = count + 1
			WHERE prev_node = ? AND next_node = ? AND has_space = ?`,
		prevNode, nextNode, boolToInt(hasSpace))
	if err != nil {
		return fmt.Errorf("update edge: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	_, err = s.q().Exec(
		`INSERT INTO edges (prev_node, next_node, has_space, count)
			VALUES (?, ?, ?, 1)`,
		prevNode, nextNode, boolToInt(hasSpace))
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// EdgePrevWord renders the surface word an edge contributes to a
// reply: the text of the last slot of its prev context.
func (s *Store) EdgePrevWord(e Edge) (string, error) {
	return s.NodeLastTokenText(e.Prev)
}

// EdgePrevTokenID is the id counterpart of EdgePrevWord.
func (s *Store) EdgePrevTokenID(e Edge) (int64, error) {
	return s.NodeLastTokenID(e.Prev)
}

// Walk performs a uniform random walk from start until it reaches end,
// collecting the traversed edges in walk order. Forward follows
// prev_node -> next_node; Backward follows next_node -> prev_node.
func (s *Store) Walk(start, end int64, dir Direction) ([]Edge, error) {
	var edges []Edge

	cur := start
	for steps := 0; cur != end && steps < maxWalkSteps; steps++ {
		e, ok, err := s.randomEdge(cur, dir)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		edges = append(edges, e)
		if dir == Forward {
			cur = e.Next
		} else {
			cur = e.Prev
		}
	}

	return edges, nil
}

func (s *Store) randomEdge(nodeID int64, dir Direction) (Edge, bool, error) {
	col := "prev_node"
	if dir == Backward {
		col = "next_node"
	}

	var count int64
	err := s.q().QueryRow(
		`SELECT COUNT(*) FROM edges WHERE `+col+` = ?`, nodeID).Scan(&count)
	if err != nil {
		return Edge{}, false, err
	}
	if count == 0 {
		return Edge{}, false, nil
	}

	var e Edge
	var hasSpace int
	err = s.q().QueryRow(
		`SELECT id, prev_node, next_node, has_space, count FROM edges
			WHERE `+col+` = ? ORDER BY id LIMIT 1 OFFSET ?`,
		nodeID, s.rng.Int63n(count)).Scan(&e.ID, &e.Prev, &e.Next, &hasSpace, &e.Count)
	if err != nil {
		return Edge{}, false, err
	}
	e.HasSpace = hasSpace != 0
	return e, true, nil
}

// =============================================================================
// Introspection (used by tests and invariant checks)
// =============================================================================

// TokenCount returns the number of token rows.
func (s *Store) TokenCount() (int64, error) { return s.countRows("tokens") }

// NodeCount returns the number of node rows.
func (s *Store) NodeCount() (int64, error) { return s.countRows("nodes") }

// EdgeCount returns the number of edge rows.
func (s *Store) EdgeCount() (int64, error) { return s.countRows("edges") }

// StemCount returns the number of stem rows.
func (s *Store) StemCount() (int64, error) { return s.countRows("token_stems") }

func (s *Store) countRows(table string) (int64, error) {
	var n int64
	err := s.q().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
	return n, err
}

// BrokenNodeCounts returns how many nodes violate the invariant that
// node.count equals the sum of inbound edge counts. Zero on a healthy
// graph.
func (s *Store) BrokenNodeCounts() (int64, error) {
	var n int64
	err := s.q().QueryRow(
		`SELECT COUNT(*) FROM nodes WHERE count !=
			(SELECT COALESCE(SUM(count), 0) FROM edges
				WHERE edges.next_node = nodes.id)`).Scan(&n)
	return n, err
}

// StemRows returns (token_id, stem) pairs ordered for comparison in
// rebuild-idempotence checks.
func (s *Store) StemRows() ([]string, error) {
	rows, err := s.q().Query(
		`SELECT token_id, stem FROM token_stems ORDER BY token_id, stem`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id int64
		var st string
		if err := rows.Scan(&id, &st); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%d:%s", id, st))
	}
	return out, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
