package corpus

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the corpus_entries table used by the Postgres
// ingestion source. Execute it via [PostgresSource.Migrate] or apply it
// manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS corpus_entries (
    entry_id         TEXT PRIMARY KEY,
    source_primary   TEXT NOT NULL,
    source_secondary TEXT NOT NULL DEFAULT '',
    hint_name        TEXT NOT NULL DEFAULT '',
    hint_hash        BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_corpus_entries_hint ON corpus_entries(hint_name) WHERE hint_name <> '';
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource loads corpus entries from a PostgreSQL table. It is the
// tagged ingestion variant for upstream dumps that arrive as SQL rows; rows
// are projected into the canonical [Match] model at load time.
type PostgresSource struct {
	db DB
}

// NewPostgresSource creates a source over the given connection or pool.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes the [Schema] DDL, creating the corpus_entries table and
// index if they do not already exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("corpus: migrate: %w", err)
	}
	return nil
}

// Load reads every row and builds a Corpus keyed by the normalized primary
// rendering. Homograph rows append under the shared key in row order.
func (s *PostgresSource) Load(ctx context.Context) (*Corpus, error) {
	rows, err := s.db.Query(ctx, `
		SELECT entry_id, source_primary, source_secondary, hint_name, hint_hash
		FROM corpus_entries
		ORDER BY entry_id`)
	if err != nil {
		return nil, fmt.Errorf("corpus: query entries: %w", err)
	}
	defer rows.Close()

	c := New(make(map[string][]Match))
	for rows.Next() {
		var m Match
		var hintHash int64
		if err := rows.Scan(&m.EntryID, &m.SourcePrimary, &m.SourceSecondary, &m.HintName, &hintHash); err != nil {
			return nil, fmt.Errorf("corpus: scan entry: %w", err)
		}
		m.HintHash = uint32(hintHash)
		c.Add(m.SourcePrimary, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: iterate entries: %w", err)
	}
	return c, nil
}
