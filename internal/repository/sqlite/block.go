package sqlite

import (
	"context"
	"fmt"

	"github.com/shiftline/marketplace/pkg/models"
)

func (r *SQLiteRepo) CreateBlock(ctx context.Context, ownerID, blockedID int64) error {
	if ownerID == blockedID {
		return fmt.Errorf("cannot block self")
	}
	if _, err := r.conn.Exec(ctx, `INSERT INTO blocks (owner_id, blocked_id, created) VALUES (?, ?, ?) ON CONFLICT(owner_id, blocked_id) DO NOTHING`, ownerID, blockedID, now()); err != nil {
		return storeErr("create block", err)
	}
	return nil
}

func (r *SQLiteRepo) DeleteBlock(ctx context.Context, ownerID, blockedID int64) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM blocks WHERE owner_id = ? AND blocked_id = ?`, ownerID, blockedID); err != nil {
		return storeErr("delete block", err)
	}
	return nil
}

// Blocked reports whether either user blocks the other. Messaging is gated
// on both directions.
func (r *SQLiteRepo) Blocked(ctx context.Context, a, b int64) (bool, error) {
	row := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM blocks WHERE (owner_id = ? AND blocked_id = ?) OR (owner_id = ? AND blocked_id = ?)`, a, b, b, a)
	var cnt int
	if err := row.Scan(&cnt); err != nil {
		return false, storeErr("check blocked", err)
	}
	return cnt > 0, nil
}

func (r *SQLiteRepo) CreateReport(ctx context.Context, rep *models.Report) (int64, error) {
	if rep == nil {
		return 0, fmt.Errorf("report is nil")
	}
	if rep.Created == 0 {
		rep.Created = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO reports (reporter_id, reported_id, reason, created) VALUES (?, ?, ?, ?)`,
		rep.ReporterID, rep.ReportedID, rep.Reason, rep.Created)
	if err != nil {
		return 0, storeErr("create report", err)
	}
	return res.LastInsertId()
}
