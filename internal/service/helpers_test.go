package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/mediaconv/internal/adapter/storage/sqlite"
	"github.com/bnema/mediaconv/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// transformFunc adapts a function to port.Transformer.
type transformFunc func(ctx context.Context, req domain.TransformRequest) error

func (f transformFunc) Transform(ctx context.Context, req domain.TransformRequest) error {
	return f(ctx, req)
}

// writeOutput is a transform that produces a small output file.
func writeOutput(_ context.Context, req domain.TransformRequest) error {
	return os.WriteFile(req.OutputPath, []byte("converted:"+filepath.Base(req.InputPath)), 0644)
}

// seedJob inserts a job whose input file exists under dir.
func seedJob(t *testing.T, store *sqlite.Store, dir, id, session, filename string, status domain.JobStatus, created time.Time) *domain.Job {
	t.Helper()
	input := filepath.Join(dir, id+"__"+filename)
	require.NoError(t, os.WriteFile(input, []byte("input "+id), 0644))

	j := &domain.Job{
		ID:               id,
		SessionID:        session,
		MediaType:        domain.DetectMediaType(filename),
		OriginalFilename: filename,
		Action:           domain.ActionConvert,
		TargetFormat:     "jpg",
		Status:           status,
		CreatedAt:        created,
		InputPath:        input,
	}
	require.NoError(t, store.Insert(context.Background(), j))
	return j
}

func fileMissing(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// recordingPublisher collects published events in order.
type recordingPublisher struct {
	events chan Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan Event, 64)}
}

func (p *recordingPublisher) Publish(jobID string, event Event) {
	event.JobID = jobID
	p.events <- event
}

func (p *recordingPublisher) statuses() []domain.JobStatus {
	var out []domain.JobStatus
	for {
		select {
		case ev := <-p.events:
			out = append(out, ev.Status)
		default:
			return out
		}
	}
}
