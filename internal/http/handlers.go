package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"ai-dialog-analysis-service/internal/analysiserr"
	"ai-dialog-analysis-service/internal/app"
	"ai-dialog-analysis-service/internal/ingest"
	"ai-dialog-analysis-service/internal/observability/logging"
	"ai-dialog-analysis-service/internal/observability/metrics"
	"ai-dialog-analysis-service/internal/service/pipeline"
	"ai-dialog-analysis-service/internal/store"
)

// maxURLBody bounds a text/plain request body carrying a URL.
const maxURLBody = 8 * 1024

// maxMultipartMemory is kept in memory before multipart parts spill to disk.
const maxMultipartMemory = 32 << 20

type handlers struct {
	app *app.Application
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// analyze accepts a multipart upload in field "file" or a body holding an
// http(s) URL and responds with the dialog result.
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	m := metrics.DefaultMetrics
	m.RecordRequestStart("http")

	src, err := h.source(w, r)
	var a *pipeline.Analysis
	if err == nil {
		a, err = h.app.Pipeline.AnalyzeSource(r.Context(), src)
	}
	m.RecordRequestEnd(analysiserr.Kind(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Analysis-ID", a.ID)
	writeJSON(w, http.StatusOK, a.Result)
}

// source resolves the request into an ingest.Source.
func (h *handlers) source(w http.ResponseWriter, r *http.Request) (ingest.Source, error) {
	cfg := h.app.Cfg.Ingest
	if cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, uploadError(err)
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, ingest.ErrUnsupported
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, uploadError(err)
		}
		return ingest.NewFileBytes(hdr.Filename, data), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxURLBody))
	if err != nil {
		return nil, uploadError(err)
	}
	remote, err := ingest.ParseURL(string(body))
	if err != nil {
		return nil, err
	}
	remote.Client = h.app.HTTPClient
	remote.MaxBytes = cfg.MaxDownloadBytes
	return remote, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.Join(analysiserr.ErrLimitExceeded, err)
	}
	return errors.Join(analysiserr.ErrInputSource, err)
}

type analysisView struct {
	AnalysisID   string          `json:"analysisId"`
	Source       string          `json:"source"`
	STTProvider  string          `json:"sttProvider"`
	SampleRate   int             `json:"sampleRate"`
	AudioSeconds float64         `json:"audioSeconds"`
	Status       string          `json:"status"`
	ErrorKind    string          `json:"errorKind,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Result       json.RawMessage `json:"result,omitempty"`
}

func toView(rec store.Record) analysisView {
	v := analysisView{
		AnalysisID:   rec.AnalysisID,
		Source:       rec.Source,
		STTProvider:  rec.STTProvider,
		SampleRate:   rec.SampleRate,
		AudioSeconds: rec.AudioSeconds,
		Status:       rec.Status,
		ErrorKind:    rec.ErrorKind,
		CreatedAt:    rec.CreatedAt,
	}
	if len(rec.Result) > 0 {
		v.Result = rec.Result
	}
	return v
}

func (h *handlers) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.app.Store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "analysis store disabled", Kind: "not_found"})
		return
	}
	id := chi.URLParam(r, "analysisID")
	rec, err := h.app.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
		return
	}
	if err != nil {
		logger := logging.WithAnalysis(id)
		logger.Error().Err(err).Msg("load stored analysis")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(rec))
}

func (h *handlers) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.app.Store == nil {
		writeJSON(w, http.StatusOK, []analysisView{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.app.Store.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]analysisView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

// StatusFor maps an analysis error kind to an HTTP status code.
func StatusFor(kind string) int {
	switch kind {
	case "input_source":
		return http.StatusBadRequest
	case "audio_format", "timing_data":
		return http.StatusUnprocessableEntity
	case "limit_exceeded":
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := analysiserr.Kind(err)
	msg := err.Error()
	switch {
	case errors.Is(err, ingest.ErrUnsupported):
		msg = ingest.UnsupportedMessage
	case kind == "internal":
		msg = "internal error"
	}
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind).Msg("analysis request failed")
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
