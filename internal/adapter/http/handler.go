package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

const archiveFilename = "converted_files.zip"

type Handlers struct {
	jobs      JobService
	maxSizeMB int
	logger    *zap.Logger
}

func NewHandlers(jobs JobService, maxSizeMB int, logger *zap.Logger) *Handlers {
	return &Handlers{
		jobs:      jobs,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"cpu_threads":       runtime.NumCPU(),
		"workers":           h.jobs.Workers(),
		"retention_seconds": int64(h.jobs.Retention() / time.Second),
	})
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.jobs.List(r.Context(), SessionID(r.Context()), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxSizeMB)*1024*1024)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid upload"})
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	req := service.AdmitRequest{
		SessionID:    SessionID(r.Context()),
		Action:       r.FormValue("action"),
		TargetFormat: r.FormValue("format"),
		CompMode:     r.FormValue("comp_mode"),
		CompValue:    r.FormValue("comp_value"),
		Params:       paramsFromForm(r),
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close() //nolint:errcheck
		req.File = file
		req.Filename = header.Filename
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid upload"})
		return
	}

	res, err := h.jobs.Admit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Status == domain.JobStatusDone {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"job_id": res.JobID, "status": string(res.Status)})
}

func paramsFromForm(r *http.Request) domain.Params {
	v := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }
	return domain.Params{
		FPS:             v("fps"),
		VideoPreset:     v("video_preset"),
		AudioBitrate:    v("audio_bitrate"),
		AudioChannels:   v("audio_channels"),
		AudioSampleRate: v("audio_sample_rate"),
		GIFSpeed:        v("gif_speed"),
		GIFFPS:          v("gif_fps"),
		GIFResolution:   v("gif_resolution"),
		ImageQuality:    v("image_quality"),
		ImageMaxSize:    v("image_max_size"),
		ICOSize:         v("ico_size"),
		RelativePath:    v("relative_path"),
	}
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.jobs.GetStatus(r.Context(), chi.URLParam(r, "id"), SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	out, err := h.jobs.FetchOutput(r.Context(), chi.URLParam(r, "id"), SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer out.File.Close() //nolint:errcheck

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(out.Filename))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, out.Filename, time.Time{}, out.File)
}

func (h *Handlers) DownloadAll(w http.ResponseWriter, r *http.Request) {
	aw := &archiveWriter{w: w}
	if err := h.jobs.ArchiveOutputs(r.Context(), SessionID(r.Context()), aw); err != nil {
		if aw.started {
			// Headers are gone; the client sees a truncated archive.
			h.logger.Warn("archive interrupted", zap.Error(err))
			return
		}
		h.writeError(w, err)
	}
}

// archiveWriter sends the download headers with the first archive bytes
// so a refusal can still become a JSON error.
type archiveWriter struct {
	w       http.ResponseWriter
	started bool
}

func (a *archiveWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		h := a.w.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", contentDisposition(archiveFilename))
		h.Set("Cache-Control", "no-store")
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func (h *Handlers) ClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobs.PurgeSession(r.Context(), SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// writeError maps job subsystem errors to status codes. Rejections carry
// their message, anything unexpected is logged and reported generically.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": rejectionMessage(err)})
	case errors.Is(err, domain.ErrRejected):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": rejectionMessage(err)})
	case isTooLarge(err):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": domain.ErrNotFound.Error()})
	case errors.Is(err, domain.ErrNotReady):
		writeJSON(w, http.StatusConflict, map[string]string{"error": domain.ErrNotReady.Error()})
	case errors.Is(err, domain.ErrExpired):
		writeJSON(w, http.StatusGone, map[string]string{"error": domain.ErrExpired.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

func rejectionMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrRejected.Error()+": ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// contentDisposition builds an attachment header with a quoted ASCII
// fallback and, for non-ASCII names, an RFC 5987 encoded variant.
func contentDisposition(filename string) string {
	name := domain.SanitizeFilename(filename)
	header := fmt.Sprintf("attachment; filename=%q", asciiFallback(name))
	if !isASCII(name) {
		header += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return header
}

func asciiFallback(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r > unicode.MaxASCII {
			sb.WriteRune('_')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
