package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
)

// EnsureConversation is the idempotent lookup-or-create for the ordered
// participant pair plus job. The unique index on (lo, hi, job_id) makes the
// insert race-safe: a concurrent creator wins and the loser falls through to
// the lookup.
func (r *SQLiteRepo) EnsureConversation(ctx context.Context, lo, hi, jobID int64) (*models.Conversation, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return nil, fmt.Errorf("conversation requires two distinct participants")
	}

	if _, err := r.conn.Exec(ctx, `INSERT INTO conversations (participant_lo, participant_hi, job_id) VALUES (?, ?, ?) ON CONFLICT(participant_lo, participant_hi, job_id) DO NOTHING`, lo, hi, jobID); err != nil {
		return nil, storeErr("ensure conversation", err)
	}

	row := r.conn.QueryRow(ctx, `SELECT id, participant_lo, participant_hi, job_id, last_message_at FROM conversations WHERE participant_lo = ? AND participant_hi = ? AND job_id = ?`, lo, hi, jobID)
	c, err := scanConversation(row)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("conversation (%d,%d,%d): %w", lo, hi, jobID, engage.ErrNotFound)
	}
	return c, nil
}

func (r *SQLiteRepo) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, participant_lo, participant_hi, job_id, last_message_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (r *SQLiteRepo) ListByParticipant(ctx context.Context, userID int64, limit, offset int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, participant_lo, participant_hi, job_id, last_message_at FROM conversations WHERE participant_lo = ? OR participant_hi = ? ORDER BY COALESCE(last_message_at, 0) DESC LIMIT ? OFFSET ?`, userID, userID, limit, offset)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *SQLiteRepo) TouchLastMessage(ctx context.Context, id, at int64) error {
	if _, err := r.conn.Exec(ctx, `UPDATE conversations SET last_message_at = ? WHERE id = ?`, at, id); err != nil {
		return storeErr("touch conversation", err)
	}
	return nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var last sql.NullInt64
	if err := row.Scan(&c.ID, &c.ParticipantLo, &c.ParticipantHi, &c.JobID, &last); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("scan conversation", err)
	}
	if last.Valid {
		c.LastMessageAt = &last.Int64
	}
	return &c, nil
}
