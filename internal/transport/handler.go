// Package transport exposes the pipeline over HTTP: step-by-step triggers
// for operators, file-repository management and the metrics endpoint.
package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"regsync/internal/files"
	"regsync/internal/loader"
	"regsync/internal/platform/middleware"
	"regsync/internal/process"
)

// Handler serves the operator API.
type Handler struct {
	proc     *process.Process
	selector *files.Selector
	loader   *loader.Loader
	logger   *slog.Logger
}

func NewHandler(proc *process.Process, selector *files.Selector, ld *loader.Loader, logger *slog.Logger) *Handler {
	return &Handler{proc: proc, selector: selector, loader: ld, logger: logger}
}

// NewRouter wires the operator API and the metrics endpoint.
func NewRouter(h *Handler, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	r.Get("/check", h.Check)
	r.Get("/files", h.ListFiles)
	r.Post("/files/delete", h.DeleteFile)
	r.Post("/clean", h.Clean)
	r.Post("/clean-all", h.CleanAll)

	r.Route("/process", func(r chi.Router) {
		r.Post("/download", h.Download)
		r.Post("/load/new", h.LoadNew)
		r.Post("/load/current", h.LoadCurrent)
		r.Post("/diff", h.Diff)
		r.Post("/upload", h.Upload)
		r.Post("/serialize", h.Serialize)
		r.Post("/run", h.Run)
		r.Post("/continue", h.Continue)
	})

	r.Post("/toggle", h.Toggle(false))
	r.Post("/toggle/audit", h.Toggle(true))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Check reports the current pipeline stage.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"stage": h.proc.Stage().String()})
}

// ListFiles returns the names of all working files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	names, err := h.selector.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"files": names})
}

// DeleteFile removes one named working file. The name is taken from the
// "name" query parameter; path components are stripped.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "missing name parameter"})
		return
	}
	if err := h.selector.Remove(name); err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: "no such file"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "file deleted"})
}

// Clean removes archives and extracts, preserving snapshot baselines.
func (h *Handler) Clean(w http.ResponseWriter, r *http.Request) {
	if err := h.selector.RemoveAll(true); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "working files removed, snapshots kept"})
}

// CleanAll removes every working file, snapshot baselines included.
func (h *Handler) CleanAll(w http.ResponseWriter, r *http.Request) {
	if err := h.selector.RemoveAll(false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "all working files removed"})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.DownloadAndUnzip(r.Context())
	writeStatus(w, status, err)
}

func (h *Handler) LoadNew(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.LoadLatest(r.Context())
	writeStatus(w, status, err)
}

func (h *Handler) LoadCurrent(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.DeserializePrevious(r.Context())
	writeStatus(w, status, err)
}

func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.ComputeDiff(r.Context())
	writeStatus(w, status, err)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.UploadChanges(r.Context())
	writeStatus(w, status, err)
}

func (h *Handler) Serialize(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.SerializeSnapshot(r.Context())
	writeStatus(w, status, err)
}

// Run executes download and the first phase: load, baseline, diff.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	status, err := h.proc.DownloadAndUnzip(r.Context())
	if err != nil || status != process.StatusContinue {
		writeStatus(w, status, err)
		return
	}
	writeStatus(w, h.proc.RunFirst(r.Context()), nil)
}

// Continue executes the second phase: upload, serialize, notify, cleanup.
func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.proc.RunContinue(r.Context()), nil)
}

// Toggle accepts a correspondence table as a multipart upload under the
// "toggleFile" field and runs the remap engine over it.
func (h *Handler) Toggle(auditOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("toggleFile")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "missing toggleFile upload"})
			return
		}
		defer file.Close()

		tmp, err := os.CreateTemp("", "toggle-*.csv")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(tmp.Name())
		_, err = io.Copy(tmp, file)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			writeError(w, err)
			return
		}

		entries, err := h.loader.LoadCorrespondences(tmp.Name())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
			return
		}

		if h.proc.Stage() != process.StageIdle {
			writeStatus(w, process.StatusDelayed, nil)
			return
		}
		h.proc.Toggle(r.Context(), entries, auditOnly)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "correspondence table processed"})
	}
}

// writeStatus maps a pipeline outcome onto an HTTP status: ok is 200,
// conflicting activity is 409, a missing input is 412, failures are 500.
func writeStatus(w http.ResponseWriter, status process.Status, err error) {
	code := http.StatusOK
	switch status {
	case process.StatusContinue:
		code = http.StatusOK
	case process.StatusAborted, process.StatusDelayed:
		code = http.StatusConflict
	case process.StatusNoArchive, process.StatusExtractNotNewer, process.StatusNoExtract, process.StatusNoDiff:
		code = http.StatusPreconditionFailed
	default:
		code = http.StatusInternalServerError
	}

	message := status.Message()
	if err != nil {
		message = err.Error()
	}
	label := "ok"
	if code != http.StatusOK {
		label = "error"
	}
	writeJSON(w, code, statusResponse{Status: label, Message: message})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
