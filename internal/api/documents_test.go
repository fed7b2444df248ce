package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/pipeline"
	"github.com/ehr/intake/internal/platform/auth"
)

type fakeProcessor struct {
	seenName    string
	seenContent string
	result      pipeline.Result
}

func (f *fakeProcessor) Process(_ context.Context, path string) pipeline.Result {
	f.seenName = filepath.Base(path)
	data, _ := os.ReadFile(path)
	f.seenContent = string(data)
	res := f.result
	res.FileName = filepath.Base(path)
	res.FilePath = path
	return res
}

func multipartRequest(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpload_Success(t *testing.T) {
	rec := clinical.EmptyRecord()
	proc := &fakeProcessor{result: pipeline.Result{
		DocumentID:   uuid.New(),
		DocumentType: clinical.DocumentText,
		State:        pipeline.StageAssembled,
		Record:       &rec,
	}}
	h := NewDocumentHandler(proc, zerolog.Nop())

	e := echo.New()
	resp := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, "file", "note.txt", "Diagnosis: asthma"), resp)

	if err := h.Upload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}
	if proc.seenName != "note.txt" || proc.seenContent != "Diagnosis: asthma" {
		t.Errorf("processor saw %q with %q", proc.seenName, proc.seenContent)
	}

	var got pipeline.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FilePath != "note.txt" {
		t.Errorf("expected scratch path hidden, got %q", got.FilePath)
	}
	if c.Get("document_id") != proc.result.DocumentID.String() {
		t.Error("expected document_id on context")
	}
}

func TestUpload_FailedDocument(t *testing.T) {
	proc := &fakeProcessor{result: pipeline.Result{
		State:   pipeline.StageFailed,
		Failure: &pipeline.Failure{Stage: pipeline.StageExtracted, Cause: "Unsupported FHIR resource type: Observation"},
	}}
	h := NewDocumentHandler(proc, zerolog.Nop())

	e := echo.New()
	resp := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, "file", "obs.json", `{"resourceType":"Observation"}`), resp)

	if err := h.Upload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"stage":"Extracted"`)) {
		t.Errorf("expected failure in body, got %s", resp.Body.String())
	}
}

func TestUpload_MissingFile(t *testing.T) {
	h := NewDocumentHandler(&fakeProcessor{}, zerolog.Nop())
	e := echo.New()
	c := e.NewContext(multipartRequest(t, "other", "note.txt", "x"), httptest.NewRecorder())

	err := h.Upload(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"note.txt", "note.txt"},
		{"../../etc/passwd", "passwd"},
		{`C:\scans\page.tiff`, "page.tiff"},
		{".hidden.hl7", "hidden.hl7"},
		{"..", "upload"},
		{"", "upload"},
	}
	for _, tt := range tests {
		if got := uploadName(tt.in); got != tt.want {
			t.Errorf("uploadName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegisterRoutes_RequiresIntakeRole(t *testing.T) {
	e := echo.New()
	NewDocumentHandler(&fakeProcessor{}, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))

	req := multipartRequest(t, "file", "note.txt", "x")
	req = req.WithContext(context.WithValue(req.Context(), auth.UserRolesKey, []string{auth.RoleReviewer}))
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("expected 403 for reviewer, got %d", resp.Code)
	}
}
