package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
)

func (r *SQLiteRepo) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("application is nil")
	}
	if a.Status == "" {
		a.Status = models.ApplicationPending
	}
	if a.AppliedAt == 0 {
		a.AppliedAt = now()
	}

	// The insert revalidates job status at commit time, so an application
	// cannot attach to a job cancelled between the caller's read and here.
	// A second active application by the same applicant trips the partial
	// unique index and comes back as ErrInvalidState.
	res, err := r.conn.Exec(ctx, `INSERT INTO applications (job_id, applicant_id, status, note, applied_at)
		SELECT ?, ?, ?, ?, ? FROM jobs WHERE id = ? AND status IN (?, ?)`,
		a.JobID, a.ApplicantID, string(a.Status), a.Note, a.AppliedAt,
		a.JobID, string(models.JobOpen), string(models.JobApplied))
	if err != nil {
		return 0, storeErr("create application", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("rows affected", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("job %d does not take applications: %w", a.JobID, engage.ErrInvalidState)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, job_id, applicant_id, status, note, applied_at FROM applications WHERE id = ?`, id)
	return scanApplication(row)
}

func (r *SQLiteRepo) ListByJob(ctx context.Context, jobID int64) ([]models.Application, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, job_id, applicant_id, status, note, applied_at FROM applications WHERE job_id = ? ORDER BY applied_at ASC`, jobID)
	if err != nil {
		return nil, storeErr("list applications", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *SQLiteRepo) ListByApplicant(ctx context.Context, applicantID int64, limit, offset int) ([]models.Application, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, job_id, applicant_id, status, note, applied_at FROM applications WHERE applicant_id = ? ORDER BY applied_at DESC LIMIT ? OFFSET ?`, applicantID, limit, offset)
	if err != nil {
		return nil, storeErr("list applications by applicant", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *SQLiteRepo) TransitionApplication(ctx context.Context, id int64, from []models.ApplicationStatus, to models.ApplicationStatus) error {
	args := []any{string(to)}
	ph := make([]string, len(from))
	for i, s := range from {
		ph[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, id)

	res, err := r.conn.Exec(ctx, `UPDATE applications SET status = ? WHERE status IN (`+strings.Join(ph, ",")+`) AND id = ?`, args...)
	if err != nil {
		return storeErr("transition application", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var cnt int
	row := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM applications WHERE id = ?`, id)
	if err := row.Scan(&cnt); err != nil {
		return storeErr("check application exists", err)
	}
	if cnt == 0 {
		return fmt.Errorf("application %d: %w", id, engage.ErrNotFound)
	}
	return fmt.Errorf("application %d: %w", id, engage.ErrInvalidState)
}

func (r *SQLiteRepo) CountActive(ctx context.Context, jobID int64) (int64, error) {
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM applications WHERE job_id = ? AND status IN (?, ?)`,
		jobID, string(models.ApplicationPending), string(models.ApplicationAccepted))
	var cnt int64
	if err := row.Scan(&cnt); err != nil {
		return 0, storeErr("count active applications", err)
	}
	return cnt, nil
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var a models.Application
	var status string
	if err := row.Scan(&a.ID, &a.JobID, &a.ApplicantID, &status, &a.Note, &a.AppliedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("scan application", err)
	}
	a.Status = models.ApplicationStatus(status)
	return &a, nil
}
