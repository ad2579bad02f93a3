package photojobs

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"CAMPUS-backend/internal/platform/apierr"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/paging"
)

type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = `
	id, title, location, start_at, end_at, requester_id, requester_name, notes,
	status, delivery_url, created_at, updated_at, completed_at`

func scanJob(r rowScanner) (*Job, error) {
	var j Job
	err := r.Scan(
		&j.ID, &j.Title, &j.Location, &j.StartAt, &j.EndAt, &j.RequesterID, &j.RequesterName, &j.Notes,
		&j.Status, &j.DeliveryURL, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) InsertJob(ctx context.Context, j *Job) error {
	const q = `
	INSERT INTO photo_jobs
	(id, title, location, start_at, end_at, requester_id, requester_name, notes,
	 status, delivery_url, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		j.ID, j.Title, j.Location, j.StartAt, j.EndAt, j.RequesterID, j.RequesterName, j.Notes,
		j.Status, j.DeliveryURL, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string, forUpdate bool) (*Job, error) {
	q := `SELECT` + jobColumns + ` FROM photo_jobs WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	j, err := scanJob(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrNotFound("photo job not found")
		}
		return nil, err
	}
	byJob, err := s.photographers(ctx, []string{j.ID})
	if err != nil {
		return nil, err
	}
	j.Photographers = byJob[j.ID]
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j *Job) error {
	const q = `
		UPDATE photo_jobs
		SET status = ?, delivery_url = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`
	res, err := s.q.ExecContext(ctx, q, j.Status, j.DeliveryURL, j.UpdatedAt, j.CompletedAt, j.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("photo job not found")
	}
	return nil
}

// ReplacePhotographers: 消してから入れ直す（同じTx内で呼ぶ）
func (s *Store) ReplacePhotographers(ctx context.Context, jobID string, ps []Photographer) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM photo_job_photographers WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	if len(ps) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO photo_job_photographers (job_id, photographer_id, photographer_name, position) VALUES `)
	args := make([]any, 0, len(ps)*4)
	for i, p := range ps {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, jobID, p.ID, p.Name, i)
	}
	_, err := s.q.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *Store) photographers(ctx context.Context, jobIDs []string) (map[string][]Photographer, error) {
	out := make(map[string][]Photographer, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(jobIDs)), ",")
	args := make([]any, len(jobIDs))
	for i, id := range jobIDs {
		args[i] = id
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT job_id, photographer_id, photographer_name FROM photo_job_photographers WHERE job_id IN (`+ph+`) ORDER BY job_id, position`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			jobID string
			p     Photographer
		)
		if err := rows.Scan(&jobID, &p.ID, &p.Name); err != nil {
			return nil, err
		}
		out[jobID] = append(out[jobID], p)
	}
	return out, rows.Err()
}

func (s *Store) ListJobs(ctx context.Context, f Filter, p paging.Page) ([]Job, int64, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM photo_jobs WHERE 1=1")
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.RequesterID != nil {
		sb.WriteString(" AND requester_id = ?")
		args = append(args, *f.RequesterID)
	}
	if f.PhotographerID != nil {
		sb.WriteString(" AND id IN (SELECT job_id FROM photo_job_photographers WHERE photographer_id = ?)")
		args = append(args, *f.PhotographerID)
	}
	if f.From != nil {
		sb.WriteString(" AND end_at > ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(" AND start_at < ?")
		args = append(args, *f.To)
	}
	where := sb.String()

	var total int64
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT"+jobColumns+where+" ORDER BY start_at "+p.OrderSQL()+", id LIMIT ? OFFSET ?",
		append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := make([]Job, 0, p.Limit)
	ids := make([]string, 0, p.Limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *j)
		ids = append(ids, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	byJob, err := s.photographers(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range jobs {
		jobs[i].Photographers = byJob[jobs[i].ID]
	}
	return jobs, total, nil
}
