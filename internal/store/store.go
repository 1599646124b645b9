// Package store provides the SQLite-backed graph model for the brain:
// tokens, token stems, nodes (order-sized contexts) and the edges
// between them. Uses ncruces/go-sqlite3/driver which provides a
// database/sql interface.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SchemaVersion is the only on-disk format this package understands.
const SchemaVersion = "2"

// ErrSchemaMismatch is returned when a brain file carries a different
// schema version. There is no auto-upgrade path.
var ErrSchemaMismatch = errors.New("brain file schema version mismatch")

// Params configure the creation of a new brain file. They are ignored
// for existing files, whose info table wins.
type Params struct {
	Order     int
	Tokenizer string
	Rand      *rand.Rand
}

// Store owns the database connection for one brain file. A single
// process must own the file; concurrent writers are not supported.
type Store struct {
	db  *sql.DB
	tx  *sql.Tx
	rng *rand.Rand

	order     int
	tokenizer string
	fresh     bool

	// Prebuilt SQL fragments that depend on the Markov order.
	nodeSelect string
	nodeInsert string
	lastCol    string
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every primitive
// works inside and outside batch transactions.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Open opens the brain file at path, creating and initializing it when
// absent. Existing files are verified against SchemaVersion and have
// migrations applied.
func Open(path string, p Params) (*Store, error) {
	if p.Order <= 0 {
		p.Order = 3
	}
	if p.Tokenizer == "" {
		p.Tokenizer = "Cobe"
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer, one connection: keeps pragmas, transactions and
	// last-insert state on a single handle.
	db.SetMaxOpenConns(1)

	if fresh {
		if err := initSchema(db, p.Order, p.Tokenizer); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	s := &Store{db: db, rng: p.Rand, fresh: fresh}

	if err := s.loadInfo(); err != nil {
		db.Close()
		return nil, err
	}
	s.tokenizer = firstNonEmpty(s.tokenizer, p.Tokenizer)

	if err := s.applyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	// Speed over durability: a crash mid-write may corrupt the file,
	// which is acceptable for a local chat brain.
	pragmas := []string{
		"cache_size=10000",
		"journal_mode=truncate",
		"temp_store=memory",
		"synchronous=OFF",
	}
	for _, pr := range pragmas {
		if err := s.pragma(pr); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pr, err)
		}
	}

	s.buildNodeQueries()
	return s, nil
}

// Close closes the database, rolling back any unfinished batch.
func (s *Store) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// Order returns the Markov order recorded in the info table.
func (s *Store) Order() int { return s.order }

// TokenizerName returns the tokenizer recorded in the info table.
func (s *Store) TokenizerName() string { return s.tokenizer }

// Fresh reports whether this Open created the brain file. Settings
// that only apply at creation time key off this.
func (s *Store) Fresh() bool { return s.fresh }

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) pragma(stmt string) error {
	// Pragmas may or may not return a result row; Query tolerates both.
	rows, err := s.db.Query("PRAGMA " + stmt)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

// =============================================================================
// Schema
// =============================================================================

func initSchema(db *sql.DB, order int, tokenizerName string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tokenCols := make([]string, order)
	for i := range tokenCols {
		tokenCols[i] = fmt.Sprintf("token%d_id INTEGER REFERENCES tokens(id)", i)
	}

	stmts := []string{
		`CREATE TABLE info (
			attribute TEXT NOT NULL PRIMARY KEY,
			text TEXT NOT NULL
		)`,
		`CREATE TABLE tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT UNIQUE NOT NULL,
			is_word INTEGER NOT NULL
		)`,
		`CREATE TABLE token_stems (
			token_id INTEGER,
			stem TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			count INTEGER NOT NULL,
			%s
		)`, strings.Join(tokenCols, ",\n\t\t\t")),
		`CREATE TABLE edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			prev_node INTEGER NOT NULL REFERENCES nodes(id),
			next_node INTEGER NOT NULL REFERENCES nodes(id),
			count INTEGER NOT NULL,
			has_space INTEGER NOT NULL
		)`,
		`CREATE INDEX token_stems_stem ON token_stems (stem)`,
		fmt.Sprintf(`CREATE UNIQUE INDEX nodes_token_ids ON nodes (%s)`,
			tokenColumnList(order)),
	}
	stmts = append(stmts, replyIndexStmts()...)

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	info := [][2]string{
		{"version", SchemaVersion},
		{"order", fmt.Sprintf("%d", order)},
		{"tokenizer", tokenizerName},
	}
	for _, kv := range info {
		if _, err := tx.Exec(
			`INSERT INTO info (attribute, text) VALUES (?, ?)`,
			kv[0], kv[1]); err != nil {
			return fmt.Errorf("init info: %w", err)
		}
	}

	return tx.Commit()
}

func replyIndexStmts() []string {
	return []string{
		`CREATE UNIQUE INDEX edges_all_next ON edges
			(next_node, prev_node, has_space, count)`,
		`CREATE UNIQUE INDEX edges_all_prev ON edges
			(prev_node, next_node, has_space, count)`,
	}
}

func tokenColumnList(order int) string {
	cols := make([]string, order)
	for i := range cols {
		cols[i] = fmt.Sprintf("token%d_id", i)
	}
	return strings.Join(cols, ", ")
}

func (s *Store) loadInfo() error {
	version, ok, err := s.GetInfo("version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if !ok || version != SchemaVersion {
		return fmt.Errorf("%w: have %q, want %q", ErrSchemaMismatch, version, SchemaVersion)
	}

	orderText, ok, err := s.GetInfo("order")
	if err != nil {
		return fmt.Errorf("read order: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: missing order attribute", ErrSchemaMismatch)
	}
	if _, err := fmt.Sscanf(orderText, "%d", &s.order); err != nil || s.order <= 0 {
		return fmt.Errorf("%w: bad order %q", ErrSchemaMismatch, orderText)
	}

	s.tokenizer, _, err = s.GetInfo("tokenizer")
	if err != nil {
		return fmt.Errorf("read tokenizer: %w", err)
	}

	return nil
}

// applyMigrations runs on every open and is idempotent: it removes the
// redundant text index older files carried and installs the triggers
// that keep nodes.count equal to the sum of inbound edge counts.
func (s *Store) applyMigrations() error {
	stmts := []string{
		`DROP INDEX IF EXISTS tokens_text`,

		`CREATE TRIGGER IF NOT EXISTS edges_insert_trigger
			AFTER INSERT ON edges BEGIN
				UPDATE nodes SET count = count + NEW.count
					WHERE id = NEW.next_node;
			END`,
		`CREATE TRIGGER IF NOT EXISTS edges_update_trigger
			AFTER UPDATE ON edges BEGIN
				UPDATE nodes SET count = count + (NEW.count - OLD.count)
					WHERE id = NEW.next_node;
			END`,
		`CREATE TRIGGER IF NOT EXISTS edges_delete_trigger
			AFTER DELETE ON edges BEGIN
				UPDATE nodes SET count = count - OLD.count
					WHERE id = OLD.next_node;
			END`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) buildNodeQueries() {
	conds := make([]string, s.order)
	marks := make([]string, s.order)
	for i := range conds {
		conds[i] = fmt.Sprintf("token%d_id = ?", i)
		marks[i] = "?"
	}

	s.nodeSelect = "SELECT id FROM nodes WHERE " + strings.Join(conds, " AND ")
	s.nodeInsert = fmt.Sprintf(
		"INSERT INTO nodes (count, %s) VALUES (0, %s) RETURNING id",
		tokenColumnList(s.order), strings.Join(marks, ", "))
	s.lastCol = fmt.Sprintf("token%d_id", s.order-1)
}

// =============================================================================
// Info
// =============================================================================

// GetInfo reads one attribute from the info table.
func (s *Store) GetInfo(attribute string) (string, bool, error) {
	var text string
	err := s.q().QueryRow(
		`SELECT text FROM info WHERE attribute = ?`, attribute).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// SetInfo writes one attribute to the info table.
func (s *Store) SetInfo(attribute, text string) error {
	_, err := s.q().Exec(
		`INSERT INTO info (attribute, text) VALUES (?, ?)
			ON CONFLICT(attribute) DO UPDATE SET text = excluded.text`,
		attribute, text)
	return err
}

// DelInfo removes one attribute from the info table.
func (s *Store) DelInfo(attribute string) error {
	_, err := s.q().Exec(`DELETE FROM info WHERE attribute = ?`, attribute)
	return err
}

// =============================================================================
// Transactions and batch mode
// =============================================================================

// Begin opens a transaction; subsequent primitives run inside it until
// Commit or Rollback.
func (s *Store) Begin() error {
	if s.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction.
func (s *Store) Commit() error {
	if s.tx == nil {
		return errors.New("no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback abandons the open transaction.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// StartBatch trades durability for ingest throughput: the journal moves
// to memory, the reply indexes are replaced by a plain learn index and
// commits are deferred until StopBatch.
func (s *Store) StartBatch() error {
	if err := s.pragma("journal_mode=memory"); err != nil {
		return fmt.Errorf("batch journal mode: %w", err)
	}

	drops := []string{
		`DROP INDEX IF EXISTS edges_all_next`,
		`DROP INDEX IF EXISTS edges_all_prev`,
		`CREATE INDEX IF NOT EXISTS learn_index ON edges (prev_node, next_node)`,
	}
	for _, stmt := range drops {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("swap learn index: %w", err)
		}
	}

	return s.Begin()
}

// StopBatch commits the batch and restores the reply configuration.
func (s *Store) StopBatch() error {
	if err := s.Commit(); err != nil {
		return err
	}

	stmts := append([]string{`DROP INDEX IF EXISTS learn_index`}, replyIndexStmts()...)
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("restore reply indexes: %w", err)
		}
	}

	return s.pragma("journal_mode=truncate")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
