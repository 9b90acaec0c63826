package domain

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// IsActive reports whether the job counts against the session quota.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

type Action string

const (
	ActionConvert  Action = "convert"
	ActionCompress Action = "compress"
)

// ParseAction returns the action named by s, or false when s is not one
// of convert or compress.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.TrimSpace(s)) {
	case ActionConvert:
		return ActionConvert, true
	case ActionCompress:
		return ActionCompress, true
	}
	return "", false
}

type Job struct {
	ID               string
	SessionID        string
	MediaType        MediaType
	OriginalFilename string
	Action           Action
	TargetFormat     string
	CompMode         string
	CompValue        string
	Params           Params
	Status           JobStatus
	Error            string
	CreatedAt        time.Time
	StartedAt        sql.NullTime
	DoneAt           sql.NullTime
	ExpiresAt        sql.NullTime
	InputPath        string
	OutputPath       string
	OutputFilename   string
}

// NewJobID returns a fresh opaque job identifier.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsExpired reports whether the job's retention window has lapsed at now.
// Jobs without an expiry never report expired.
func (j *Job) IsExpired(now time.Time) bool {
	return j.ExpiresAt.Valid && !j.ExpiresAt.Time.After(now)
}

// JobUpdate is a partial update of the mutable job columns. Nil fields
// are left untouched.
type JobUpdate struct {
	Status         *JobStatus
	Error          *string
	StartedAt      *time.Time
	DoneAt         *time.Time
	ExpiresAt      *time.Time
	OutputPath     *string
	OutputFilename *string
	ClearInputPath bool

	// FromStatus restricts the update to rows currently in that status.
	FromStatus *JobStatus
}

// Empty reports whether the update would change nothing.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.Error == nil && u.StartedAt == nil && u.DoneAt == nil &&
		u.ExpiresAt == nil && u.OutputPath == nil && u.OutputFilename == nil && !u.ClearInputPath
}

// JobView is the read model handed to the web layer. Timestamps are unix
// seconds.
type JobView struct {
	ID               string    `json:"id"`
	MediaType        MediaType `json:"media_type"`
	OriginalFilename string    `json:"original_filename"`
	Action           Action    `json:"action"`
	TargetFormat     string    `json:"target_format,omitempty"`
	CompMode         string    `json:"comp_mode,omitempty"`
	CompValue        string    `json:"comp_value,omitempty"`
	Status           JobStatus `json:"status"`
	Error            string    `json:"error"`
	CreatedAt        int64     `json:"created_at"`
	StartedAt        *int64    `json:"started_at"`
	DoneAt           *int64    `json:"done_at"`
	ExpiresAt        *int64    `json:"expires_at"`
	OutputFilename   string    `json:"output_filename,omitempty"`
	DownloadURL      string    `json:"download_url,omitempty"`
}

func (j *Job) View() JobView {
	v := JobView{
		ID:               j.ID,
		MediaType:        j.MediaType,
		OriginalFilename: j.OriginalFilename,
		Action:           j.Action,
		TargetFormat:     j.TargetFormat,
		CompMode:         j.CompMode,
		CompValue:        j.CompValue,
		Status:           j.Status,
		Error:            j.Error,
		CreatedAt:        j.CreatedAt.Unix(),
		StartedAt:        unixOrNil(j.StartedAt),
		DoneAt:           unixOrNil(j.DoneAt),
		ExpiresAt:        unixOrNil(j.ExpiresAt),
		OutputFilename:   j.OutputFilename,
	}
	if j.Status == JobStatusDone {
		v.DownloadURL = "/download/" + j.ID
	}
	return v
}

func unixOrNil(t sql.NullTime) *int64 {
	if !t.Valid {
		return nil
	}
	s := t.Time.Unix()
	return &s
}
