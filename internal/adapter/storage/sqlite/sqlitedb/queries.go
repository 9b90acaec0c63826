package sqlitedb

import (
	"context"
	"database/sql"
)

const countActiveJobs = `-- name: CountActiveJobs :one
SELECT COUNT(*) FROM jobs
WHERE session_id = ? AND status IN ('queued', 'processing')
`

func (q *Queries) CountActiveJobs(ctx context.Context, sessionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActiveJobs, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteJob = `-- name: DeleteJob :exec
DELETE FROM jobs WHERE id = ?
`

func (q *Queries) DeleteJob(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteJob, id)
	return err
}

const getJob = `-- name: GetJob :one
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs WHERE id = ?
`

func (q *Queries) GetJob(ctx context.Context, id string) (Job, error) {
	row := q.db.QueryRowContext(ctx, getJob, id)
	var i Job
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.MediaType,
		&i.OriginalFilename,
		&i.Action,
		&i.TargetFormat,
		&i.CompMode,
		&i.CompValue,
		&i.Params,
		&i.Status,
		&i.Error,
		&i.CreatedAt,
		&i.StartedAt,
		&i.DoneAt,
		&i.ExpiresAt,
		&i.InputPath,
		&i.OutputPath,
		&i.OutputFilename,
	)
	return i, err
}

const getJobForSession = `-- name: GetJobForSession :one
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs WHERE id = ? AND session_id = ?
`

type GetJobForSessionParams struct {
	ID        string
	SessionID string
}

func (q *Queries) GetJobForSession(ctx context.Context, arg GetJobForSessionParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, getJobForSession, arg.ID, arg.SessionID)
	var i Job
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.MediaType,
		&i.OriginalFilename,
		&i.Action,
		&i.TargetFormat,
		&i.CompMode,
		&i.CompValue,
		&i.Params,
		&i.Status,
		&i.Error,
		&i.CreatedAt,
		&i.StartedAt,
		&i.DoneAt,
		&i.ExpiresAt,
		&i.InputPath,
		&i.OutputPath,
		&i.OutputFilename,
	)
	return i, err
}

const insertJob = `-- name: InsertJob :exec
INSERT INTO jobs (
    id, session_id, media_type, original_filename, action, target_format,
    comp_mode, comp_value, params, status, error, created_at, started_at,
    done_at, expires_at, input_path, output_path, output_filename
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertJobParams struct {
	ID               string
	SessionID        string
	MediaType        string
	OriginalFilename string
	Action           string
	TargetFormat     sql.NullString
	CompMode         sql.NullString
	CompValue        sql.NullString
	Params           string
	Status           string
	Error            string
	CreatedAt        int64
	StartedAt        sql.NullInt64
	DoneAt           sql.NullInt64
	ExpiresAt        sql.NullInt64
	InputPath        sql.NullString
	OutputPath       sql.NullString
	OutputFilename   sql.NullString
}

func (q *Queries) InsertJob(ctx context.Context, arg InsertJobParams) error {
	_, err := q.db.ExecContext(ctx, insertJob,
		arg.ID,
		arg.SessionID,
		arg.MediaType,
		arg.OriginalFilename,
		arg.Action,
		arg.TargetFormat,
		arg.CompMode,
		arg.CompValue,
		arg.Params,
		arg.Status,
		arg.Error,
		arg.CreatedAt,
		arg.StartedAt,
		arg.DoneAt,
		arg.ExpiresAt,
		arg.InputPath,
		arg.OutputPath,
		arg.OutputFilename,
	)
	return err
}

const listCollectableJobs = `-- name: ListCollectableJobs :many
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs
WHERE (expires_at IS NOT NULL AND expires_at <= ?1)
   OR created_at <= ?2
ORDER BY created_at
`

type ListCollectableJobsParams struct {
	Now          int64
	ZombieBefore int64
}

func (q *Queries) ListCollectableJobs(ctx context.Context, arg ListCollectableJobsParams) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listCollectableJobs, arg.Now, arg.ZombieBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const listJobsByStatus = `-- name: ListJobsByStatus :many
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs WHERE status = ? ORDER BY created_at, rowid
`

func (q *Queries) ListJobsByStatus(ctx context.Context, status string) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listJobsByStatus, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const listSessionJobs = `-- name: ListSessionJobs :many
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs
WHERE session_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`

type ListSessionJobsParams struct {
	SessionID string
	Limit     int64
}

func (q *Queries) ListSessionJobs(ctx context.Context, arg ListSessionJobsParams) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listSessionJobs, arg.SessionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const listSessionJobsNotExpired = `-- name: ListSessionJobsNotExpired :many
SELECT id, session_id, media_type, original_filename, action, target_format, comp_mode, comp_value, params, status, error, created_at, started_at, done_at, expires_at, input_path, output_path, output_filename FROM jobs
WHERE session_id = ?1
  AND (expires_at IS NULL OR expires_at > ?2)
ORDER BY created_at DESC, rowid DESC
LIMIT ?3
`

type ListSessionJobsNotExpiredParams struct {
	SessionID string
	Now       int64
	Limit     int64
}

func (q *Queries) ListSessionJobsNotExpired(ctx context.Context, arg ListSessionJobsNotExpiredParams) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listSessionJobsNotExpired, arg.SessionID, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const updateJobFields = `-- name: UpdateJobFields :execrows
UPDATE jobs SET
    status = COALESCE(?1, status),
    error = COALESCE(?2, error),
    started_at = COALESCE(?3, started_at),
    done_at = COALESCE(?4, done_at),
    expires_at = COALESCE(?5, expires_at),
    output_path = COALESCE(?6, output_path),
    output_filename = COALESCE(?7, output_filename),
    input_path = CASE WHEN ?8 THEN NULL ELSE input_path END
WHERE id = ?9
  AND (?10 IS NULL OR status = ?10)
`

type UpdateJobFieldsParams struct {
	Status         sql.NullString
	Error          sql.NullString
	StartedAt      sql.NullInt64
	DoneAt         sql.NullInt64
	ExpiresAt      sql.NullInt64
	OutputPath     sql.NullString
	OutputFilename sql.NullString
	ClearInputPath bool
	ID             string
	FromStatus     sql.NullString
}

func (q *Queries) UpdateJobFields(ctx context.Context, arg UpdateJobFieldsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateJobFields,
		arg.Status,
		arg.Error,
		arg.StartedAt,
		arg.DoneAt,
		arg.ExpiresAt,
		arg.OutputPath,
		arg.OutputFilename,
		arg.ClearInputPath,
		arg.ID,
		arg.FromStatus,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var items []Job
	for rows.Next() {
		var i Job
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.MediaType,
			&i.OriginalFilename,
			&i.Action,
			&i.TargetFormat,
			&i.CompMode,
			&i.CompValue,
			&i.Params,
			&i.Status,
			&i.Error,
			&i.CreatedAt,
			&i.StartedAt,
			&i.DoneAt,
			&i.ExpiresAt,
			&i.InputPath,
			&i.OutputPath,
			&i.OutputFilename,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
