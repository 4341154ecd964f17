package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"card-engagement-api/internal/models"
)

// ErrNotFound is returned when an engagement record does not exist.
var ErrNotFound = errors.New("engagement not found")

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
// Temperature has no column: it is always derived from score.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS engagements (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			action_log TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engagements_card_id ON engagements(card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_engagements_card_score ON engagements(card_id, score DESC)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertEngagement creates an engagement, or, when the id already exists,
// overwrites score and log and merges contact fields so that empty values
// never replace stored ones.
func (db *DB) UpsertEngagement(ctx context.Context, rec models.EngagementRecord, now time.Time) error {
	query := `INSERT INTO engagements (
		id, card_id, name, email, phone, company, score, action_log, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = COALESCE(NULLIF(excluded.name, ''), engagements.name),
		email = COALESCE(NULLIF(excluded.email, ''), engagements.email),
		phone = COALESCE(NULLIF(excluded.phone, ''), engagements.phone),
		company = COALESCE(NULLIF(excluded.company, ''), engagements.company),
		score = excluded.score,
		action_log = excluded.action_log,
		updated_at = excluded.updated_at`

	ts := now.UTC().Format(time.RFC3339Nano)
	_, err := db.conn.ExecContext(ctx,
		query,
		rec.ID,
		rec.CardID,
		rec.Name,
		rec.Email,
		rec.Phone,
		rec.Company,
		rec.Score,
		serializeActionLog(rec.ActionLog),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert engagement: %w", err)
	}

	return nil
}

// UpdateEngagement sets the score, splices the action log delta at offset
// and merges contact fields, all in one transaction. Re-sending the same
// delta at the same offset leaves the log unchanged.
func (db *DB) UpdateEngagement(ctx context.Context, id string, req models.UpdateEngagementRequest, now time.Time) (models.EngagementRecord, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanEngagement(tx.QueryRowContext(ctx, selectEngagement+` WHERE id = ?`, id))
	if err != nil {
		return models.EngagementRecord{}, err
	}

	offset := req.ActionLogOffset
	if offset > len(rec.ActionLog) {
		offset = len(rec.ActionLog)
	}
	log := make([]models.ActionKind, 0, offset+len(req.ActionLog))
	log = append(log, rec.ActionLog[:offset]...)
	log = append(log, req.ActionLog...)

	rec.ActionLog = log
	rec.Score = req.Score
	rec.ContactFields = rec.ContactFields.Merge(req.ContactFields)
	rec.UpdatedAt = now.UTC()

	_, err = tx.ExecContext(ctx, `UPDATE engagements SET
		name = ?, email = ?, phone = ?, company = ?,
		score = ?, action_log = ?, updated_at = ?
		WHERE id = ?`,
		rec.Name,
		rec.Email,
		rec.Phone,
		rec.Company,
		rec.Score,
		serializeActionLog(rec.ActionLog),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to update engagement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return rec, nil
}

const selectEngagement = `SELECT id, card_id, name, email, phone, company,
	score, action_log, created_at, updated_at
	FROM engagements`

// GetEngagement returns the engagement with the given id.
func (db *DB) GetEngagement(ctx context.Context, id string) (models.EngagementRecord, error) {
	return scanEngagement(db.conn.QueryRowContext(ctx, selectEngagement+` WHERE id = ?`, id))
}

// ListByCard returns a card's engagements with minScore <= score <= maxScore,
// highest score first.
func (db *DB) ListByCard(ctx context.Context, cardID string, minScore, maxScore, limit int) ([]models.EngagementRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectEngagement+` WHERE card_id = ? AND score >= ? AND score <= ?
		ORDER BY score DESC, updated_at DESC LIMIT ?`,
		cardID, int64(minScore), int64(maxScore), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagements: %w", err)
	}
	defer rows.Close()

	var records []models.EngagementRecord
	for rows.Next() {
		rec, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engagements: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEngagement(row rowScanner) (models.EngagementRecord, error) {
	var rec models.EngagementRecord
	var logJSON, createdAtStr, updatedAtStr string

	err := row.Scan(
		&rec.ID,
		&rec.CardID,
		&rec.Name,
		&rec.Email,
		&rec.Phone,
		&rec.Company,
		&rec.Score,
		&logJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EngagementRecord{}, ErrNotFound
	}
	if err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to scan engagement: %w", err)
	}

	rec.ActionLog = deserializeActionLog(logJSON)

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return models.EngagementRecord{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return rec, nil
}

// serializeActionLog converts an action log to a JSON string.
func serializeActionLog(log []models.ActionKind) string {
	if len(log) == 0 {
		return "[]"
	}
	data, err := json.Marshal(log)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// deserializeActionLog converts a serialized action log back to a slice.
func deserializeActionLog(serialized string) []models.ActionKind {
	serialized = strings.TrimSpace(serialized)
	if serialized == "" || serialized == "[]" {
		return []models.ActionKind{}
	}

	var result []models.ActionKind
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return []models.ActionKind{}
	}
	return result
}
