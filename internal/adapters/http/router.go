package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
	"github.com/kirillkom/sales-coach/internal/infrastructure/report"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
	"github.com/kirillkom/sales-coach/internal/observability/metrics"
)

const ownerIDHeader = "X-Owner-Id"

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxInFlight bounds concurrently served requests; zero disables
	// the backpressure gate.
	MaxInFlight     int
	BackpressureMax time.Duration
	// MaxUploadBytes caps the upload request body; zero disables the
	// cap at the transport level (the use case still validates size).
	MaxUploadBytes int64
}

// maxMultipartOverhead leaves room for multipart boundaries and the
// scenario_type field on top of the audio payload itself.
const maxMultipartOverhead = 1 << 20

type Router struct {
	uploader ports.CallUploader
	reader   ports.CallReader
	status   ports.StatusSource
	breakers *resilience.Registry
	cfg      RouterConfig

	metrics        *metrics.HTTPServerMetrics
	metricsService string
}

// WithMetrics attaches domain-level observability: upload outcomes and
// open stream counts. Request-level metrics stay in the middleware.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics, service string) *Router {
	rt.metrics = m
	rt.metricsService = service
	return rt
}

func NewRouter(
	uploader ports.CallUploader,
	reader ports.CallReader,
	status ports.StatusSource,
	breakers *resilience.Registry,
	cfg RouterConfig,
) *Router {
	return &Router{
		uploader: uploader,
		reader:   reader,
		status:   status,
		breakers: breakers,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/calls", rt.callsCollection)
	mux.HandleFunc("/v1/calls/", rt.callsItem)
	mux.HandleFunc("/v1/breakers", rt.breakerStats)

	var handler http.Handler = mux
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.cfg.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureMax)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) callsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadCall(w, r)
	case http.MethodGet:
		rt.listCalls(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// callsItem dispatches /v1/calls/{id}, /v1/calls/{id}/events and
// /v1/calls/{id}/report.
func (rt *Router) callsItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calls/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "call id is required"})
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		rt.getCall(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		rt.deleteCall(w, r, id)
	case sub == "events" && r.Method == http.MethodGet:
		rt.streamStatus(w, r, id)
	case sub == "report" && r.Method == http.MethodGet:
		rt.downloadReport(w, r, id)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadCall(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		// Cut oversized bodies off while they stream in instead of
		// spooling them to disk first.
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+maxMultipartOverhead)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body exceeds the upload size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	call, err := rt.uploader.Upload(r.Context(), ports.UploadParams{
		OwnerID:      ownerID,
		Filename:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		SizeBytes:    fileHeader.Size,
		ScenarioType: r.FormValue("scenario_type"),
		Body:         file,
	})
	if rt.metrics != nil {
		rt.metrics.RecordUpload(rt.metricsService, fileHeader.Size, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, call)
}

func (rt *Router) listCalls(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	calls, err := rt.reader.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (rt *Router) getCall(w http.ResponseWriter, r *http.Request, id string) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	call, err := rt.reader.GetByID(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (rt *Router) deleteCall(w http.ResponseWriter, r *http.Request, id string) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := rt.reader.SoftDelete(r.Context(), ownerID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request, id string) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	call, err := rt.reader.GetByID(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if call.Status != domain.StatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "report is only available for completed calls",
		})
		return
	}

	workbook, err := report.BuildWorkbook(call)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="call-report-`+call.ID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func (rt *Router) breakerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": rt.breakers.Stats()})
}

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := strings.TrimSpace(r.Header.Get(ownerIDHeader))
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "header " + ownerIDHeader + " is required"})
		return "", false
	}
	return ownerID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
