// Package sqldb implements the meeting store over database/sql through
// sqlx, with dialects for sqlite and postgres.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
	"github.com/stewardlabs/meeting-steward/internal/storage"
	"github.com/stewardlabs/meeting-steward/internal/storage/dialect"
)

// Config holds the database connection settings.
type Config struct {
	Driver string
	DSN    string
}

// Store is a SQL implementation of storage.MeetingStore.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.MeetingStore = (*Store)(nil)

// New opens the database, applies pragmas and brings the schema up to
// date.
func New(cfg Config) (*Store, error) {
	d, err := dialect.New(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

// NewSQLite opens a sqlite-backed store at the given path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS meetings (
id TEXT PRIMARY KEY,
source_type TEXT NOT NULL,
source_name TEXT,
raw_transcript TEXT NOT NULL,
summary_json TEXT,
run_json TEXT,
created_at %s NOT NULL,
updated_at %s NOT NULL
)`, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS decisions (
id TEXT PRIMARY KEY,
meeting_id TEXT NOT NULL,
position INTEGER NOT NULL,
description TEXT NOT NULL,
owner TEXT,
rationale TEXT,
decided_at TEXT,
created_at %s NOT NULL,
FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS action_items (
id TEXT PRIMARY KEY,
meeting_id TEXT NOT NULL,
position INTEGER NOT NULL,
description TEXT NOT NULL,
owner TEXT,
due_date TEXT,
priority TEXT NOT NULL,
status TEXT NOT NULL,
created_at %s NOT NULL,
FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_meetings_created ON meetings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_meeting ON decisions(meeting_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_action_items_meeting ON action_items(meeting_id, position)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return s.runMigrations()
}

// runMigrations adds columns the original schema did not have.
func (s *Store) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"meetings", "run_json", "ALTER TABLE meetings ADD COLUMN run_json TEXT"},
		{"action_items", "status", "ALTER TABLE action_items ADD COLUMN status TEXT NOT NULL DEFAULT 'pending'"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("checking column %s.%s: %w", m.table, m.column, err)
		}
		if !exists {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	if err := s.db.QueryRow(s.dialect.ColumnExistsQuery(), table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveMeeting writes the meeting with its decisions and action items in
// one transaction. Saving the same meeting id again replaces the record
// wholesale.
func (s *Store) SaveMeeting(ctx context.Context, state domain.MeetingState) (string, error) {
	if state.MeetingID == "" {
		return "", fmt.Errorf("meeting has no id")
	}

	now := time.Now().UTC()
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	summaryJSON, err := json.Marshal(state.Summary)
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	runJSON, err := json.Marshal(state.Run)
	if err != nil {
		return "", fmt.Errorf("encoding run info: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := s.dialect.UpsertClause("id", []string{"raw_transcript", "summary_json", "run_json", "updated_at"})
	meetingQuery := s.dialect.Rebind(fmt.Sprintf(`INSERT INTO meetings
(id, source_type, source_name, raw_transcript, summary_json, run_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
%s`, upsert))

	if _, err := tx.ExecContext(ctx, meetingQuery,
		state.MeetingID, string(state.SourceType), state.SourceName, state.RawTranscript,
		string(summaryJSON), string(runJSON), createdAt, now); err != nil {
		return "", fmt.Errorf("inserting meeting: %w", err)
	}

	for _, table := range []string{"decisions", "action_items"} {
		del := s.dialect.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE meeting_id = ?`, table))
		if _, err := tx.ExecContext(ctx, del, state.MeetingID); err != nil {
			return "", fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	decisionQuery := s.dialect.Rebind(`INSERT INTO decisions
(id, meeting_id, position, description, owner, rationale, decided_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, d := range state.Decisions {
		if _, err := tx.ExecContext(ctx, decisionQuery,
			d.ID, state.MeetingID, i, d.Description, d.Owner, d.Rationale, d.DecidedAt, now); err != nil {
			return "", fmt.Errorf("inserting decision %d: %w", i, err)
		}
	}

	itemQuery := s.dialect.Rebind(`INSERT INTO action_items
(id, meeting_id, position, description, owner, due_date, priority, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, a := range state.ActionItems {
		if _, err := tx.ExecContext(ctx, itemQuery,
			a.ID, state.MeetingID, i, a.Description, a.Owner, a.DueDate,
			string(a.Priority), string(a.Status), now); err != nil {
			return "", fmt.Errorf("inserting action item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing meeting: %w", err)
	}
	return state.MeetingID, nil
}

// GetMeeting reassembles the full record: the meeting row plus its
// ordered decisions and action items.
func (s *Store) GetMeeting(ctx context.Context, id string) (*domain.MeetingRecord, error) {
	query := s.dialect.Rebind(`SELECT id, source_type, source_name, raw_transcript, summary_json, run_json, created_at, updated_at
FROM meetings WHERE id = ?`)

	var rec domain.MeetingRecord
	var sourceType string
	var sourceName, summaryStr, runStr sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &sourceType, &sourceName, &rec.RawTranscript,
		&summaryStr, &runStr, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading meeting: %w", err)
	}

	rec.SourceType = domain.SourceType(sourceType)
	rec.SourceName = sourceName.String
	if summaryStr.Valid && summaryStr.String != "" {
		if err := json.Unmarshal([]byte(summaryStr.String), &rec.Summary); err != nil {
			return nil, fmt.Errorf("decoding summary: %w", err)
		}
	}
	if runStr.Valid && runStr.String != "" {
		if err := json.Unmarshal([]byte(runStr.String), &rec.Run); err != nil {
			return nil, fmt.Errorf("decoding run info: %w", err)
		}
	}

	if rec.Decisions, err = s.getDecisions(ctx, id); err != nil {
		return nil, err
	}
	if rec.ActionItems, err = s.getActionItems(ctx, id); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (s *Store) getDecisions(ctx context.Context, meetingID string) ([]domain.Decision, error) {
	query := s.dialect.Rebind(`SELECT id, description, owner, rationale, decided_at
FROM decisions WHERE meeting_id = ?
ORDER BY position ASC`)

	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]domain.Decision, 0)
	for rows.Next() {
		var d domain.Decision
		var owner, rationale, decidedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.Description, &owner, &rationale, &decidedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Owner = owner.String
		d.Rationale = rationale.String
		d.DecidedAt = decidedAt.String
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

func (s *Store) getActionItems(ctx context.Context, meetingID string) ([]domain.ActionItem, error) {
	query := s.dialect.Rebind(`SELECT id, description, owner, due_date, priority, status
FROM action_items WHERE meeting_id = ?
ORDER BY position ASC`)

	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("querying action items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ActionItem, 0)
	for rows.Next() {
		var a domain.ActionItem
		var owner, dueDate sql.NullString
		var priority, status string
		if err := rows.Scan(&a.ID, &a.Description, &owner, &dueDate, &priority, &status); err != nil {
			return nil, fmt.Errorf("scanning action item: %w", err)
		}
		a.Owner = owner.String
		a.DueDate = dueDate.String
		a.Priority = domain.Priority(priority)
		a.Status = domain.ActionStatus(status)
		items = append(items, a)
	}

	return items, rows.Err()
}

// ListMeetings returns the newest meetings first with a short
// transcript preview.
func (s *Store) ListMeetings(ctx context.Context, limit int) ([]domain.MeetingPreview, error) {
	if limit <= 0 {
		limit = 20
	}

	query := s.dialect.Rebind(`SELECT id, source_type, source_name, raw_transcript, created_at
FROM meetings
ORDER BY created_at DESC, id
LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying meetings: %w", err)
	}
	defer rows.Close()

	previews := make([]domain.MeetingPreview, 0)
	for rows.Next() {
		var p domain.MeetingPreview
		var sourceType, transcript string
		var sourceName sql.NullString
		if err := rows.Scan(&p.ID, &sourceType, &sourceName, &transcript, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning meeting: %w", err)
		}
		p.SourceType = domain.SourceType(sourceType)
		p.SourceName = sourceName.String
		p.TranscriptPreview = domain.Preview(transcript, 100)
		previews = append(previews, p)
	}

	return previews, rows.Err()
}

// Stats counts the stored meetings, decisions and action items.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	counts := []struct {
		table string
		dest  *int64
	}{
		{"meetings", &stats.Meetings},
		{"decisions", &stats.Decisions},
		{"action_items", &stats.ActionItems},
	}

	for _, c := range counts {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)
		if err := s.db.QueryRowContext(ctx, query).Scan(c.dest); err != nil {
			return domain.StoreStats{}, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
