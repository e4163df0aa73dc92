package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DedupRepo remembers provider message IDs so a redelivered webhook or event
// cannot apply the same answer to a session twice.
type DedupRepo interface {
	// RecordInbound returns false when messageID was already recorded.
	RecordInbound(messageID, participantID string) (bool, error)
	MarkProcessed(messageID string) error
}

// DedupRecord is one remembered inbound message. ProcessedAt stays nil until the
// replies for it have been produced.
type DedupRecord struct {
	MessageID     string
	ParticipantID string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}

// sqlDedup implements DedupRepo over database/sql. The dialects differ only in
// placeholder syntax and conflict handling, so each store supplies its statements.
type sqlDedup struct {
	db     *sql.DB
	insert string // must ignore conflicts on message_id
	mark   string
}

var (
	sqliteDedup = sqlDedup{
		insert: `INSERT OR IGNORE INTO inbound_dedup (message_id, participant_id, received_at) VALUES (?, ?, ?)`,
		mark:   `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
	}
	postgresDedup = sqlDedup{
		insert: `INSERT INTO inbound_dedup (message_id, participant_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		mark:   `UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
	}
)

func (d sqlDedup) with(db *sql.DB) sqlDedup {
	d.db = db
	return d
}

// RecordInbound relies on the primary key so that concurrent redeliveries
// race safely: exactly one insert affects a row.
func (d sqlDedup) RecordInbound(messageID, participantID string) (bool, error) {
	res, err := d.db.Exec(d.insert, messageID, participantID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	if n == 0 {
		slog.Debug("store.RecordInbound: duplicate message", "messageID", messageID, "participantID", participantID)
	}
	return n > 0, nil
}

func (d sqlDedup) MarkProcessed(messageID string) error {
	if _, err := d.db.Exec(d.mark, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordInbound(messageID, participantID string) (bool, error) {
	return sqliteDedup.with(s.db).RecordInbound(messageID, participantID)
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	return sqliteDedup.with(s.db).MarkProcessed(messageID)
}

func (s *PostgresStore) RecordInbound(messageID, participantID string) (bool, error) {
	return postgresDedup.with(s.db).RecordInbound(messageID, participantID)
}

func (s *PostgresStore) MarkProcessed(messageID string) error {
	return postgresDedup.with(s.db).MarkProcessed(messageID)
}

var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)
