package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/mediaconv/internal/adapter/storage/sqlite/sqlitedb"
	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/port"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ZombieAge is how old a row must be before it is collected regardless of
// its status.
const ZombieAge = 24 * time.Hour

type Store struct {
	db      *sql.DB
	queries *sqlitedb.Queries
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA cache_size = -8000",    // 8MB
				"PRAGMA mmap_size = 268435456", // 256MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	dbPath := filepath.Join(dataDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:      db,
		queries: sqlitedb.New(db),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, j *domain.Job) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	err = s.queries.InsertJob(ctx, sqlitedb.InsertJobParams{
		ID:               j.ID,
		SessionID:        j.SessionID,
		MediaType:        string(j.MediaType),
		OriginalFilename: j.OriginalFilename,
		Action:           string(j.Action),
		TargetFormat:     nullString(j.TargetFormat),
		CompMode:         nullString(j.CompMode),
		CompValue:        nullString(j.CompValue),
		Params:           string(params),
		Status:           string(j.Status),
		Error:            j.Error,
		CreatedAt:        j.CreatedAt.Unix(),
		StartedAt:        nullUnix(j.StartedAt),
		DoneAt:           nullUnix(j.DoneAt),
		ExpiresAt:        nullUnix(j.ExpiresAt),
		InputPath:        nullString(j.InputPath),
		OutputPath:       nullString(j.OutputPath),
		OutputFilename:   nullString(j.OutputFilename),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert job %s: %w", j.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row, err := s.queries.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return jobFromRow(row), nil
}

// GetForSession returns the job only when it belongs to sessionID, so a
// foreign job is indistinguishable from a missing one.
func (s *Store) GetForSession(ctx context.Context, id, sessionID string) (*domain.Job, error) {
	row, err := s.queries.GetJobForSession(ctx, sqlitedb.GetJobForSessionParams{
		ID:        id,
		SessionID: sessionID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return jobFromRow(row), nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, u domain.JobUpdate) (bool, error) {
	if u.Empty() {
		return false, nil
	}
	n, err := s.queries.UpdateJobFields(ctx, sqlitedb.UpdateJobFieldsParams{
		Status:         nullStatus(u.Status),
		Error:          nullStringPtr(u.Error),
		StartedAt:      nullTimePtr(u.StartedAt),
		DoneAt:         nullTimePtr(u.DoneAt),
		ExpiresAt:      nullTimePtr(u.ExpiresAt),
		OutputPath:     nullStringPtr(u.OutputPath),
		OutputFilename: nullStringPtr(u.OutputFilename),
		ClearInputPath: u.ClearInputPath,
		ID:             id,
		FromStatus:     nullStatus(u.FromStatus),
	})
	if err != nil {
		return false, fmt.Errorf("update job %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) CountActive(ctx context.Context, sessionID string) (int, error) {
	n, err := s.queries.CountActiveJobs(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return int(n), nil
}

func (s *Store) ListForSession(ctx context.Context, sessionID string, limit int, notExpiredOnly bool, now time.Time) ([]*domain.Job, error) {
	var (
		rows []sqlitedb.Job
		err  error
	)
	if notExpiredOnly {
		rows, err = s.queries.ListSessionJobsNotExpired(ctx, sqlitedb.ListSessionJobsNotExpiredParams{
			SessionID: sessionID,
			Now:       now.Unix(),
			Limit:     int64(limit),
		})
	} else {
		rows, err = s.queries.ListSessionJobs(ctx, sqlitedb.ListSessionJobsParams{
			SessionID: sessionID,
			Limit:     int64(limit),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("list session jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

// CollectExpired returns every row past its retention window, and every
// row older than ZombieAge whatever its status.
func (s *Store) CollectExpired(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	rows, err := s.queries.ListCollectableJobs(ctx, sqlitedb.ListCollectableJobsParams{
		Now:          now.Unix(),
		ZombieBefore: now.Add(-ZombieAge).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("list collectable jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error) {
	var result []*domain.Job
	for _, st := range statuses {
		rows, err := s.queries.ListJobsByStatus(ctx, string(st))
		if err != nil {
			return nil, fmt.Errorf("list %s jobs: %w", st, err)
		}
		result = append(result, jobsFromRows(rows)...)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.queries.DeleteJob(ctx, id)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// Helper conversions

func jobFromRow(row sqlitedb.Job) *domain.Job {
	j := &domain.Job{
		ID:               row.ID,
		SessionID:        row.SessionID,
		MediaType:        domain.MediaType(row.MediaType),
		OriginalFilename: row.OriginalFilename,
		Action:           domain.Action(row.Action),
		TargetFormat:     row.TargetFormat.String,
		CompMode:         row.CompMode.String,
		CompValue:        row.CompValue.String,
		Status:           domain.JobStatus(row.Status),
		Error:            row.Error,
		CreatedAt:        time.Unix(row.CreatedAt, 0),
		StartedAt:        nullTime(row.StartedAt),
		DoneAt:           nullTime(row.DoneAt),
		ExpiresAt:        nullTime(row.ExpiresAt),
		InputPath:        row.InputPath.String,
		OutputPath:       row.OutputPath.String,
		OutputFilename:   row.OutputFilename.String,
	}
	// A params column that fails to decode leaves the job with defaults.
	_ = json.Unmarshal([]byte(row.Params), &j.Params)
	return j
}

func jobsFromRows(rows []sqlitedb.Job) []*domain.Job {
	result := make([]*domain.Job, len(rows))
	for i, row := range rows {
		result[i] = jobFromRow(row)
	}
	return result
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStatus(s *domain.JobStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullUnix(t sql.NullTime) sql.NullInt64 {
	if !t.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Time.Unix(), Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullTime(v sql.NullInt64) sql.NullTime {
	if !v.Valid {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Unix(v.Int64, 0), Valid: true}
}

var _ port.JobStore = (*Store)(nil)
