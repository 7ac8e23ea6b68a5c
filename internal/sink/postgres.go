package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/bestiary/internal/monster"
	"github.com/MrWong99/bestiary/internal/narrative"
	"github.com/MrWong99/bestiary/internal/pipeline"
)

// Schema is the SQL DDL for the monsters table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS monsters (
    run_id     TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    concept    TEXT NOT NULL DEFAULT '',
    answers    JSONB NOT NULL DEFAULT '{}',
    record     JSONB NOT NULL,
    markdown   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_monsters_name ON monsters(name);
CREATE INDEX IF NOT EXISTS idx_monsters_created ON monsters(created_at DESC);
`

// DefaultListLimit is used by [PostgresStore.List] when limit <= 0.
const DefaultListLimit = 50

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is a stored monster.
type Entry struct {
	RunID     string            `json:"run_id"`
	Name      string            `json:"name"`
	Concept   string            `json:"concept"`
	Answers   narrative.Answers `json:"-"`
	Record    *monster.Record   `json:"record"`
	Markdown  string            `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// PostgresStore is a [Sink] that persists finalized runs in PostgreSQL and
// serves them back by run ID.
type PostgresStore struct {
	db DB
}

var _ Sink = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Name implements [Sink].
func (s *PostgresStore) Name() string { return "postgres" }

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("sink: postgres: migrate: %w", err)
	}
	return nil
}

// Write implements [Sink]. Writing the same run twice is an error.
func (s *PostgresStore) Write(ctx context.Context, st *pipeline.State) error {
	rec, err := record(st)
	if err != nil {
		return err
	}
	recJSON, err := monster.Encode(rec)
	if err != nil {
		return fmt.Errorf("sink: postgres: %w", err)
	}
	answersJSON, err := json.Marshal(narrative.SetOf(st.Answers))
	if err != nil {
		return fmt.Errorf("sink: postgres: marshal answers: %w", err)
	}

	const query = `
		INSERT INTO monsters (run_id, name, concept, answers, record, markdown)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`

	var created time.Time
	err = s.db.QueryRow(ctx, query,
		st.RunID, rec.Name, st.Concept, answersJSON, recJSON, monster.Markdown(rec),
	).Scan(&created)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("sink: postgres: run %q already stored", st.RunID)
		}
		return fmt.Errorf("sink: postgres: insert: %w", err)
	}
	return nil
}

// Get retrieves a stored monster by run ID. It returns (nil, nil) if no such
// run exists.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*Entry, error) {
	const query = `
		SELECT run_id, name, concept, answers, record, markdown, created_at
		FROM monsters
		WHERE run_id = $1`

	var (
		e                    Entry
		answersJSON, recJSON []byte
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&e.RunID, &e.Name, &e.Concept, &answersJSON, &recJSON, &e.Markdown, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sink: postgres: get %q: %w", runID, err)
	}
	if err := unmarshalEntry(&e, answersJSON, recJSON); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns the most recently stored monsters, newest first, at most
// limit of them.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const query = `
		SELECT run_id, name, concept, answers, record, markdown, created_at
		FROM monsters
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sink: postgres: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                    Entry
			answersJSON, recJSON []byte
		)
		if err := rows.Scan(
			&e.RunID, &e.Name, &e.Concept, &answersJSON, &recJSON, &e.Markdown, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sink: postgres: list scan: %w", err)
		}
		if err := unmarshalEntry(&e, answersJSON, recJSON); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sink: postgres: list: %w", err)
	}
	return entries, nil
}

// unmarshalEntry decodes the JSONB columns of a monsters row.
func unmarshalEntry(e *Entry, answersJSON, recJSON []byte) error {
	var set narrative.Set
	if err := json.Unmarshal(answersJSON, &set); err != nil {
		return fmt.Errorf("sink: postgres: unmarshal answers of %q: %w", e.RunID, err)
	}
	e.Answers = set.Answers()

	rec, err := monster.Decode(recJSON)
	if err != nil {
		return fmt.Errorf("sink: postgres: unmarshal record of %q: %w", e.RunID, err)
	}
	e.Record = rec
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
