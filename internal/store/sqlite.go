package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the SQLite-backed event, chunk, and consolidation store.
type SQLiteStore struct {
	db *sql.DB

	idMu    sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers; row updates such as strength
	// boosts are single statements and never read-modify-write in Go.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		channel     TEXT NOT NULL,
		actor_type  TEXT NOT NULL,
		actor_id    TEXT NOT NULL,
		kind        TEXT NOT NULL,
		sensitivity TEXT NOT NULL,
		tags        TEXT,
		content     TEXT NOT NULL,
		data        TEXT,
		refs        TEXT,
		task_id     TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS event_refs (
		event_id TEXT NOT NULL REFERENCES events(id),
		ref_id   TEXT NOT NULL,
		PRIMARY KEY (event_id, ref_id)
	);
	CREATE INDEX IF NOT EXISTS idx_event_refs_ref ON event_refs(ref_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		event_id    TEXT NOT NULL REFERENCES events(id),
		session_id  TEXT NOT NULL,
		channel     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		sensitivity TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		token_est   INTEGER NOT NULL,
		importance  REAL NOT NULL,
		embedding   TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(tenant_id, session_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_chunks_event ON chunks(event_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content=chunks,
		content_rowid=rowid
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id                TEXT PRIMARY KEY,
		tenant_id         TEXT NOT NULL,
		session_id        TEXT NOT NULL,
		what_happened     TEXT NOT NULL,
		what_noticed      TEXT,
		what_learned      TEXT,
		becoming          TEXT,
		significance      REAL NOT NULL,
		tags              TEXT,
		compression_level TEXT NOT NULL DEFAULT 'full',
		summary           TEXT,
		memory_strength   REAL NOT NULL DEFAULT 1.0,
		retrieval_count   INTEGER NOT NULL DEFAULT 0,
		last_retrieved_at TEXT,
		last_decay_at     TEXT,
		consolidated_at   TEXT,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_tenant ON episodes(tenant_id, compression_level, created_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS episodes_fts USING fts5(
		episode_id UNINDEXED,
		body
	);

	CREATE TABLE IF NOT EXISTS principles (
		id                 TEXT PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		principle          TEXT NOT NULL,
		category           TEXT NOT NULL,
		confidence         REAL NOT NULL,
		source_episodes    TEXT,
		source_count       INTEGER NOT NULL DEFAULT 0,
		memory_strength    REAL NOT NULL DEFAULT 1.0,
		retrieval_count    INTEGER NOT NULL DEFAULT 0,
		last_retrieved_at  TEXT,
		last_reinforced_at TEXT NOT NULL,
		last_decay_at      TEXT,
		superseded_by      TEXT,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_principles_tenant ON principles(tenant_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS principles_fts USING fts5(
		principle_id UNINDEXED,
		body
	);

	CREATE TABLE IF NOT EXISTS reflections (
		id                 TEXT PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		tier               TEXT NOT NULL,
		period_start       TEXT NOT NULL,
		period_end         TEXT NOT NULL,
		session_count      INTEGER NOT NULL,
		summary            TEXT NOT NULL,
		key_insights       TEXT,
		themes             TEXT,
		identity_evolution TEXT,
		source             TEXT NOT NULL,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reflections_tenant ON reflections(tenant_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS rules (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		agent_id   TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL DEFAULT '',
		text       TEXT NOT NULL,
		priority   REAL NOT NULL,
		token_est  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_tenant ON rules(tenant_id);

	CREATE TABLE IF NOT EXISTS task_edges (
		tenant_id  TEXT NOT NULL,
		from_task  TEXT NOT NULL,
		to_task    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, from_task, to_task)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE OF text ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func marshalList(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	json.Unmarshal([]byte(ns.String), &out)
	return out
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

func stringArgs(prefix []any, ids []string) []any {
	args := append([]any{}, prefix...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
