package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/tcasfees/internal/model"
)

// Run describes one scrape for the runs table
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Queries  []string
	Programs int
}

// SQLiteStore accumulates programs across runs, one row per URL
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		queries     TEXT NOT NULL,
		programs    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS programs (
		url                  TEXT PRIMARY KEY,
		run_id               TEXT NOT NULL REFERENCES runs(id),
		program_name         TEXT NOT NULL,
		university           TEXT NOT NULL,
		degree_name_en       TEXT,
		program_type         TEXT,
		tuition_per_semester INTEGER,
		tuition_basis        TEXT NOT NULL DEFAULT '',
		raw_fee_text         TEXT,
		admission_rounds     TEXT,
		keywords             TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_programs_university ON programs(university);
	CREATE INDEX IF NOT EXISTS idx_programs_run ON programs(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun records the run and upserts every program by URL.
// A program already stored keeps its earlier keywords; new queries are appended
// once each. All other columns take the latest values.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, records []*model.ProgramRecord) (string, error) {
	if run.ID == "" {
		run.ID = s.newID()
	}
	queries, err := json.Marshal(nonNil(run.Queries))
	if err != nil {
		return "", fmt.Errorf("marshal queries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, queries, programs) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Started.UTC().Format(time.RFC3339), run.Finished.UTC().Format(time.RFC3339),
		string(queries), len(records))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		var stored sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT keywords FROM programs WHERE url = ?`, r.URL).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("read keywords %s: %w", r.URL, err)
		}

		var previous []string
		if stored.Valid {
			if err := json.Unmarshal([]byte(stored.String), &previous); err != nil {
				return "", fmt.Errorf("parse stored keywords %s: %w", r.URL, err)
			}
		}
		keywords, err := json.Marshal(mergeKeywords(previous, r.Keywords))
		if err != nil {
			return "", fmt.Errorf("marshal keywords: %w", err)
		}

		var rounds sql.NullString
		if len(r.AdmissionRounds) > 0 {
			b, err := json.Marshal(r.AdmissionRounds)
			if err != nil {
				return "", fmt.Errorf("marshal admission rounds: %w", err)
			}
			rounds = sql.NullString{String: string(b), Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO programs (url, run_id, program_name, university, degree_name_en, program_type,
				tuition_per_semester, tuition_basis, raw_fee_text, admission_rounds, keywords, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				run_id = excluded.run_id,
				program_name = excluded.program_name,
				university = excluded.university,
				degree_name_en = excluded.degree_name_en,
				program_type = excluded.program_type,
				tuition_per_semester = excluded.tuition_per_semester,
				tuition_basis = excluded.tuition_basis,
				raw_fee_text = excluded.raw_fee_text,
				admission_rounds = excluded.admission_rounds,
				keywords = excluded.keywords,
				updated_at = excluded.updated_at`,
			r.URL, run.ID, r.ProgramName, r.University, nullString(r.DegreeNameEN), nullString(r.ProgramType),
			nullInt(r.TuitionPerSemester), r.TuitionBasis, nullString(r.RawFeeText), rounds, string(keywords), now)
		if err != nil {
			return "", fmt.Errorf("upsert %s: %w", r.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

// Programs returns every stored program ordered by university then name
func (s *SQLiteStore) Programs(ctx context.Context) ([]*model.ProgramRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, program_name, university, degree_name_en, program_type, tuition_per_semester,
			tuition_basis, raw_fee_text, admission_rounds, keywords
		FROM programs ORDER BY university, program_name, url`)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	var out []*model.ProgramRecord
	for rows.Next() {
		var r model.ProgramRecord
		var degree, programType, rawFee, rounds sql.NullString
		var tuition sql.NullInt64
		var keywords string
		if err := rows.Scan(&r.URL, &r.ProgramName, &r.University, &degree, &programType, &tuition,
			&r.TuitionBasis, &rawFee, &rounds, &keywords); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}

		r.DegreeNameEN = fromNull(degree)
		r.ProgramType = fromNull(programType)
		r.RawFeeText = fromNull(rawFee)
		if tuition.Valid {
			v := int(tuition.Int64)
			r.TuitionPerSemester = &v
		}
		if rounds.Valid {
			if err := json.Unmarshal([]byte(rounds.String), &r.AdmissionRounds); err != nil {
				return nil, fmt.Errorf("parse admission rounds %s: %w", r.URL, err)
			}
		}
		if err := json.Unmarshal([]byte(keywords), &r.Keywords); err != nil {
			return nil, fmt.Errorf("parse keywords %s: %w", r.URL, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Runs returns recorded runs, newest first
func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, queries, programs FROM runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var started, finished, queries string
		if err := rows.Scan(&run.ID, &started, &finished, &queries, &run.Programs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.Started, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
		}
		if run.Finished, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of run %s: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(queries), &run.Queries); err != nil {
			return nil, fmt.Errorf("parse queries of run %s: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// mergeKeywords keeps previous as stored and appends each query of current not already present
func mergeKeywords(previous, current []string) []string {
	if len(previous) == 0 {
		return nonNil(current)
	}
	seen := make(map[string]bool, len(previous))
	merged := append([]string(nil), previous...)
	for _, k := range previous {
		seen[k] = true
	}
	for _, k := range current {
		if !seen[k] {
			seen[k] = true
			merged = append(merged, k)
		}
	}
	return merged
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
