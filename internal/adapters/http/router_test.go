package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/sales-coach/internal/core/domain"
	"github.com/kirillkom/sales-coach/internal/core/ports"
	"github.com/kirillkom/sales-coach/internal/infrastructure/resilience"
	"github.com/kirillkom/sales-coach/internal/infrastructure/status"
)

type uploaderFake struct {
	lastParams ports.UploadParams
	err        error
}

func (f *uploaderFake) Upload(_ context.Context, params ports.UploadParams) (*domain.Call, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Call{
		ID:               "call-1",
		OwnerID:          params.OwnerID,
		OriginalFilename: params.Filename,
		Status:           domain.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

type readerFake struct {
	calls map[string]*domain.Call
	// onGet runs inside GetByID, before the record is returned.
	onGet func()
}

func (f *readerFake) GetByID(_ context.Context, ownerID, id string) (*domain.Call, error) {
	if f.onGet != nil {
		f.onGet()
	}
	call, ok := f.calls[id]
	if !ok || call.OwnerID != ownerID {
		return nil, domain.ErrCallNotFound
	}
	return call, nil
}

func (f *readerFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Call, error) {
	var out []domain.Call
	for _, call := range f.calls {
		if call.OwnerID == ownerID {
			out = append(out, *call)
		}
	}
	return out, nil
}

func (f *readerFake) SoftDelete(_ context.Context, ownerID, id string) error {
	call, ok := f.calls[id]
	if !ok || call.OwnerID != ownerID {
		return domain.ErrCallNotFound
	}
	delete(f.calls, id)
	return nil
}

func newTestRouter(reader *readerFake, hub *status.Hub) *Router {
	if hub == nil {
		hub = status.NewHub()
	}
	breakers := resilience.NewRegistry(resilience.DefaultSettings(), "transcription")
	return NewRouter(&uploaderFake{}, reader, hub, breakers, RouterConfig{})
}

func multipartBody(t *testing.T, filename, contentType, scenario string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("fake audio bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if scenario != "" {
		if err := writer.WriteField("scenario_type", scenario); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadCallReturns202(t *testing.T) {
	uploader := &uploaderFake{}
	router := NewRouter(uploader, &readerFake{calls: map[string]*domain.Call{}}, status.NewHub(), resilience.NewRegistry(resilience.DefaultSettings()), RouterConfig{})
	handler := router.Handler()

	body, contentType := multipartBody(t, "demo.mp3", "audio/mpeg", "cold_call")
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", res.Code, res.Body.String())
	}
	if uploader.lastParams.OwnerID != "owner-1" {
		t.Fatalf("owner = %q, want owner-1", uploader.lastParams.OwnerID)
	}
	if uploader.lastParams.ScenarioType != "cold_call" {
		t.Fatalf("scenario = %q, want cold_call", uploader.lastParams.ScenarioType)
	}
	if uploader.lastParams.MimeType != "audio/mpeg" {
		t.Fatalf("mime = %q, want audio/mpeg", uploader.lastParams.MimeType)
	}

	var created domain.Call
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("created status = %s, want pending", created.Status)
	}
}

func TestUploadRequiresOwnerHeader(t *testing.T) {
	handler := newTestRouter(&readerFake{calls: map[string]*domain.Call{}}, nil).Handler()

	body, contentType := multipartBody(t, "demo.mp3", "audio/mpeg", "")
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestUploadBodyOverLimitRejectedBeforeSpooling(t *testing.T) {
	uploader := &uploaderFake{}
	router := NewRouter(uploader, &readerFake{calls: map[string]*domain.Call{}}, status.NewHub(), resilience.NewRegistry(resilience.DefaultSettings()), RouterConfig{MaxUploadBytes: 16})
	handler := router.Handler()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "huge.mp3")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	// Blow past the cap plus the multipart allowance.
	if _, err := part.Write(bytes.Repeat([]byte("a"), 2<<20)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/calls", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
	if uploader.lastParams.Filename != "" {
		t.Fatal("uploader must not see an oversized request")
	}
}

func TestUploadValidationErrorMapsTo400(t *testing.T) {
	uploader := &uploaderFake{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("media type application/zip is not allowed"))}
	router := NewRouter(uploader, &readerFake{calls: map[string]*domain.Call{}}, status.NewHub(), resilience.NewRegistry(resilience.DefaultSettings()), RouterConfig{})
	handler := router.Handler()

	body, contentType := multipartBody(t, "demo.zip", "application/zip", "")
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestGetCallNotFoundMapsTo404(t *testing.T) {
	handler := newTestRouter(&readerFake{calls: map[string]*domain.Call{}}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/missing", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestGetCallScopedByOwner(t *testing.T) {
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusScoring, Transcript: []domain.TranscriptEntry{{Role: domain.RoleUser, Content: "hi"}}},
	}}
	handler := newTestRouter(reader, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/call-1", nil)
	req.Header.Set(ownerIDHeader, "owner-2")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("foreign owner status = %d, want 404", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/calls/call-1", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", res.Code)
	}
	var call domain.Call
	if err := json.NewDecoder(res.Body).Decode(&call); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if call.Status != domain.StatusScoring {
		t.Fatalf("status = %s, want scoring", call.Status)
	}
}

func TestDeleteCallReturns204(t *testing.T) {
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusPending},
	}}
	handler := newTestRouter(reader, nil).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/calls/call-1", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", res.Code)
	}
	if len(reader.calls) != 0 {
		t.Fatal("call was not deleted")
	}
}

func TestReportRequiresCompletedCall(t *testing.T) {
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {ID: "call-1", OwnerID: "owner-1", Status: domain.StatusTranscribing},
	}}
	handler := newTestRouter(reader, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/call-1/report", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
}

func TestReportDownloadForCompletedCall(t *testing.T) {
	reader := &readerFake{calls: map[string]*domain.Call{
		"call-1": {
			ID:      "call-1",
			OwnerID: "owner-1",
			Status:  domain.StatusCompleted,
			Analysis: &domain.ScoringResult{
				OverallScore: 66,
				Dimensions:   []domain.DimensionScore{{Dimension: "Opener", Score: 7}},
			},
		},
	}}
	handler := newTestRouter(reader, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/call-1/report", nil)
	req.Header.Set(ownerIDHeader, "owner-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); !strings.Contains(got, "spreadsheetml") {
		t.Fatalf("content type = %q, want xlsx", got)
	}
	if res.Body.Len() == 0 {
		t.Fatal("empty workbook body")
	}
}

func TestBreakerStatsEndpoint(t *testing.T) {
	handler := newTestRouter(&readerFake{calls: map[string]*domain.Call{}}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/breakers", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var payload struct {
		Breakers []resilience.Stats `json:"breakers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Breakers) != 1 || payload.Breakers[0].Name != "transcription" {
		t.Fatalf("breakers = %+v, want one named transcription", payload.Breakers)
	}
}
