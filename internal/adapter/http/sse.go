package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

// SSEHandler streams the status of one job until it reaches a terminal
// state.
type SSEHandler struct {
	eventBus  *service.EventBus
	jobs      JobService
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewSSEHandler(eventBus *service.EventBus, jobs JobService, logger *zap.Logger) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		jobs:      jobs,
		keepAlive: keepAliveInterval,
		logger:    logger,
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendStatus writes the job view as a "status" event. It returns the
// last sent view so unchanged states are not repeated.
func sendStatus(w http.ResponseWriter, view *domain.JobView, last *domain.JobView) (*domain.JobView, error) {
	if last != nil && last.Status == view.Status && last.Error == view.Error {
		return last, nil
	}
	data, err := json.Marshal(view)
	if err != nil {
		return last, err
	}
	sseWrite(w, "status", string(data))
	return view, nil
}

func (h *SSEHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session := SessionID(r.Context())
	ctx := r.Context()

	var ch chan service.Event
	if h.eventBus != nil {
		// Subscribe first so no transition slips between the read and the wait.
		ch = h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)
	}

	view, err := h.jobs.GetStatus(ctx, id, session)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": domain.ErrNotFound.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	last, err := sendStatus(w, view, nil)
	if err != nil || view.Status.IsTerminal() {
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			// A slow subscriber can miss an event, so the stored state is
			// checked on every tick as well.
			var done bool
			if last, done = h.refresh(w, r, id, session, last); done {
				return
			}
			sendKeepAlive(w)
		case _, ok := <-ch:
			if !ok {
				return
			}
			var done bool
			if last, done = h.refresh(w, r, id, session, last); done {
				return
			}
		}
	}
}

// refresh re-reads the job and sends it when its state changed. It
// reports true once the stream should end.
func (h *SSEHandler) refresh(w http.ResponseWriter, r *http.Request, id, session string, last *domain.JobView) (*domain.JobView, bool) {
	view, err := h.jobs.GetStatus(r.Context(), id, session)
	if err != nil {
		h.logger.Debug("job gone while streaming", zap.String("job_id", id), zap.Error(err))
		return last, true
	}
	last, err = sendStatus(w, view, last)
	if err != nil {
		return last, true
	}
	return last, view.Status.IsTerminal()
}
