package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

const jobColumns = `id, employer_id, title, description, category, subcategory, location, salary_min, salary_max, salary_period, urgent, status, accepted_application_id, phone_shared_by_employer, phone_shared_by_worker, posted_at, accepted_at, completed_at`

func (r *SQLiteRepo) CreateJob(ctx context.Context, j *models.Job) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.Status == "" {
		j.Status = models.JobOpen
	}
	if j.PostedAt == 0 {
		j.PostedAt = now()
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO jobs (employer_id, title, description, category, subcategory, location, salary_min, salary_max, salary_period, urgent, status, posted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.EmployerID, j.Title, j.Description, j.Category, j.Subcategory, j.Location, j.SalaryMin, j.SalaryMax, j.SalaryPeriod, boolToInt(j.Urgent), string(j.Status), j.PostedAt)
	if err != nil {
		return 0, storeErr("create job", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	where, args := jobFilterClause(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := r.conn.QueryRows(ctx, `SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY urgent DESC, posted_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, storeErr("list jobs", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}

	return out, nil
}

func (r *SQLiteRepo) CountJobs(ctx context.Context, f repository.JobFilter) (int64, error) {
	where, args := jobFilterClause(f)
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`+where, args...)
	var cnt int64
	if err := row.Scan(&cnt); err != nil {
		return 0, storeErr("count jobs", err)
	}
	return cnt, nil
}

func jobFilterClause(f repository.JobFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Urgent != nil {
		conds = append(conds, "urgent = ?")
		args = append(args, boolToInt(*f.Urgent))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// TransitionJob commits "move to `to` only if status is one of `from`" as a
// single conditional write. Zero rows affected means the caller lost a race
// or referenced a missing job.
func (r *SQLiteRepo) TransitionJob(ctx context.Context, id int64, from []models.JobStatus, to models.JobStatus) error {
	args := []any{string(to)}
	ph := make([]string, len(from))
	for i, s := range from {
		ph[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, id)

	res, err := r.conn.Exec(ctx, `UPDATE jobs SET status = ? WHERE status IN (`+strings.Join(ph, ",")+`) AND id = ?`, args...)
	if err != nil {
		return storeErr("transition job", err)
	}
	return r.checkJobAffected(ctx, res, id)
}

func (r *SQLiteRepo) AcceptJob(ctx context.Context, id, applicationID int64) error {
	res, err := r.conn.Exec(ctx, `UPDATE jobs SET status = ?, accepted_application_id = ?, accepted_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.JobAccepted), applicationID, now(), id, string(models.JobOpen), string(models.JobApplied))
	if err != nil {
		return storeErr("accept job", err)
	}
	return r.checkJobAffected(ctx, res, id)
}

func (r *SQLiteRepo) CompleteJob(ctx context.Context, id int64) error {
	res, err := r.conn.Exec(ctx, `UPDATE jobs SET status = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.JobCompleted), now(), id, string(models.JobAccepted), string(models.JobInProgress))
	if err != nil {
		return storeErr("complete job", err)
	}
	return r.checkJobAffected(ctx, res, id)
}

func (r *SQLiteRepo) RevertToOpen(ctx context.Context, id int64) error {
	res, err := r.conn.Exec(ctx, `UPDATE jobs SET status = ? WHERE id = ? AND status = ?`,
		string(models.JobOpen), id, string(models.JobApplied))
	if err != nil {
		return storeErr("revert job", err)
	}
	return r.checkJobAffected(ctx, res, id)
}

func (r *SQLiteRepo) MarkPhoneShared(ctx context.Context, id int64, byEmployer bool) error {
	col := "phone_shared_by_worker"
	if byEmployer {
		col = "phone_shared_by_employer"
	}
	res, err := r.conn.Exec(ctx, `UPDATE jobs SET `+col+` = 1 WHERE id = ? AND status = ? AND `+col+` = 0`,
		id, string(models.JobAccepted))
	if err != nil {
		return storeErr("mark phone shared", err)
	}
	return r.checkJobAffected(ctx, res, id)
}

// checkJobAffected distinguishes a lost race from a missing row after a
// conditional write matched nothing.
func (r *SQLiteRepo) checkJobAffected(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var cnt int
	row := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id)
	if err := row.Scan(&cnt); err != nil {
		return storeErr("check job exists", err)
	}
	if cnt == 0 {
		return fmt.Errorf("job %d: %w", id, engage.ErrNotFound)
	}
	return fmt.Errorf("job %d: %w", id, engage.ErrInvalidState)
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var status string
	var urgent, sharedEmp, sharedWrk int
	var acceptedApp, acceptedAt, completedAt sql.NullInt64
	if err := row.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Description, &j.Category, &j.Subcategory, &j.Location,
		&j.SalaryMin, &j.SalaryMax, &j.SalaryPeriod, &urgent, &status, &acceptedApp, &sharedEmp, &sharedWrk,
		&j.PostedAt, &acceptedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("scan job", err)
	}
	j.Status = models.JobStatus(status)
	j.Urgent = urgent != 0
	j.PhoneSharedByEmployer = sharedEmp != 0
	j.PhoneSharedByWorker = sharedWrk != 0
	if acceptedApp.Valid {
		j.AcceptedApplicationID = &acceptedApp.Int64
	}
	if acceptedAt.Valid {
		j.AcceptedAt = &acceptedAt.Int64
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Int64
	}
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
