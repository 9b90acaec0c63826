package sqlitedb

import (
	"database/sql"
)

type Job struct {
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
