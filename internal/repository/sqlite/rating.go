package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftline/marketplace/pkg/models"
)

func (r *SQLiteRepo) CreateRating(ctx context.Context, rt *models.Rating) (int64, error) {
	if rt == nil {
		return 0, fmt.Errorf("rating is nil")
	}
	if rt.Created == 0 {
		rt.Created = now()
	}

	// UNIQUE(job_id, rater_id) turns a duplicate submission into
	// ErrInvalidState.
	res, err := r.conn.Exec(ctx, `INSERT INTO ratings (job_id, rater_id, ratee_id, score, review, created) VALUES (?, ?, ?, ?, ?, ?)`,
		rt.JobID, rt.RaterID, rt.RateeID, rt.Score, rt.Review, rt.Created)
	if err != nil {
		return 0, storeErr("create rating", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetRating(ctx context.Context, jobID, raterID int64) (*models.Rating, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, job_id, rater_id, ratee_id, score, review, created FROM ratings WHERE job_id = ? AND rater_id = ?`, jobID, raterID)
	var rt models.Rating
	if err := row.Scan(&rt.ID, &rt.JobID, &rt.RaterID, &rt.RateeID, &rt.Score, &rt.Review, &rt.Created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("scan rating", err)
	}
	return &rt, nil
}

func (r *SQLiteRepo) ListByRatee(ctx context.Context, rateeID int64, limit, offset int) ([]models.Rating, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, job_id, rater_id, ratee_id, score, review, created FROM ratings WHERE ratee_id = ? ORDER BY created DESC LIMIT ? OFFSET ?`, rateeID, limit, offset)
	if err != nil {
		return nil, storeErr("list ratings", err)
	}
	defer rows.Close()

	var out []models.Rating
	for rows.Next() {
		var rt models.Rating
		if err := rows.Scan(&rt.ID, &rt.JobID, &rt.RaterID, &rt.RateeID, &rt.Score, &rt.Review, &rt.Created); err != nil {
			return nil, storeErr("scan rating", err)
		}
		out = append(out, rt)
	}
	return out, nil
}

// PendingObligations recomputes the derived view on demand: completed jobs
// the user took part in (either side of the engagement) with no outbound
// rating yet, oldest completion first. Nothing is cached.
func (r *SQLiteRepo) PendingObligations(ctx context.Context, userID int64) ([]models.Obligation, error) {
	q := `SELECT ` + prefixColumns("j", jobColumns) + `, a.applicant_id
		FROM jobs j
		JOIN applications a ON a.id = j.accepted_application_id
		WHERE j.status = ?
		  AND (j.employer_id = ? OR a.applicant_id = ?)
		  AND NOT EXISTS (SELECT 1 FROM ratings rt WHERE rt.job_id = j.id AND rt.rater_id = ?)
		ORDER BY j.completed_at ASC, j.id ASC`

	rows, err := r.conn.QueryRows(ctx, q, string(models.JobCompleted), userID, userID, userID)
	if err != nil {
		return nil, storeErr("pending obligations", err)
	}
	defer rows.Close()

	var out []models.Obligation
	for rows.Next() {
		var j models.Job
		var status string
		var urgent, sharedEmp, sharedWrk int
		var acceptedApp, acceptedAt, completedAt sql.NullInt64
		var applicantID int64
		if err := rows.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Description, &j.Category, &j.Subcategory, &j.Location,
			&j.SalaryMin, &j.SalaryMax, &j.SalaryPeriod, &urgent, &status, &acceptedApp, &sharedEmp, &sharedWrk,
			&j.PostedAt, &acceptedAt, &completedAt, &applicantID); err != nil {
			return nil, storeErr("scan obligation", err)
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

		counterpart := j.EmployerID
		if userID == j.EmployerID {
			counterpart = applicantID
		}
		var done int64
		if j.CompletedAt != nil {
			done = *j.CompletedAt
		}
		out = append(out, models.Obligation{Job: j, CounterpartID: counterpart, CompletedAt: done})
	}
	return out, nil
}
