package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/pipeline"
	"github.com/ehr/intake/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		StoreDriver:     config.DriverMemory,
		ModelTimeout:    time.Second,
		DocumentTimeout: time.Minute,
		BatchWorkers:    2,
		MaxFileSize:     1 << 20,
	}
}

// =========== process ===========

func TestProcessTarget(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.txt")
	os.WriteFile(file, []byte("Diagnosis: asthma"), 0o644)

	tests := []struct {
		name    string
		file    string
		dir     string
		wantErr string
	}{
		{"file", file, "", ""},
		{"dir", "", dir, ""},
		{"both", file, dir, "not both"},
		{"neither", "", "", "required"},
		{"missing file", filepath.Join(dir, "nope.txt"), "", "path not found"},
		{"file is dir", dir, "", "is a directory"},
		{"dir is file", "", file, "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processTarget(tt.file, tt.dir)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWriteOutput_File(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "deeper", "results.json")
	var stdout bytes.Buffer
	if err := writeOutput(out, map[string]int{"count": 1}, &stdout); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "{\n  \"count\": 1\n}\n" {
		t.Errorf("unexpected output %q", data)
	}
	if !strings.Contains(stdout.String(), out) {
		t.Errorf("expected path in stdout, got %q", stdout.String())
	}
}

func TestWriteOutput_Stdout(t *testing.T) {
	var stdout bytes.Buffer
	if err := writeOutput("", []string{"a"}, &stdout); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	if stdout.String() != "[\n  \"a\"\n]\n" {
		t.Errorf("unexpected stdout %q", stdout.String())
	}
}

func TestBuildApp_ProcessesDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "note.txt"), []byte("Diagnosis: hypertension\nProcedure: office visit\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "bad.hl7"), []byte("garbage"), 0o644)

	a, err := buildApp(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.close()

	out, err := pipeline.NewBatch(a.pipeline, 2, zerolog.Nop()).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.ProcessedFiles) != 1 || len(out.Errors) != 1 {
		t.Fatalf("expected 1 processed and 1 error, got %+v", out)
	}
	res := out.ProcessedFiles[0].Result
	if res.State != pipeline.StagePersisted {
		t.Errorf("expected Persisted, got %s", res.State)
	}
	if _, err := a.repo.GetByDocument(context.Background(), res.DocumentID); err != nil {
		t.Errorf("expected stored record: %v", err)
	}
}

func TestBuildApp_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "intake.db")

	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.close()
	if a.pinger == nil {
		t.Fatal("expected sqlite store to be pingable")
	}
	if err := a.pinger.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestBuildApp_BadMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	os.WriteFile(path, []byte("icd10: []\n"), 0o644)
	cfg := testConfig()
	cfg.MappingsFile = path

	if _, err := buildApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected configuration error for empty mapping table")
	}
}

// =========== serve ===========

const testKey = "0123456789abcdef0123456789abcdef"

func bearer(t *testing.T, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + s
}

func TestServer_Routes(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = testKey
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	e := newServer(cfg, a, zerolog.Nop())

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"records need a token", http.MethodGet, "/api/v1/patients/MRN1/records", "", http.StatusUnauthorized},
		{"reviewer lists records", http.MethodGet, "/api/v1/patients/MRN1/records", bearer(t, auth.RoleReviewer), http.StatusOK},
		{"unknown record", http.MethodGet, "/api/v1/records/0b7a3f1e-5f5e-4f59-9b1a-2a6a3c1d9e10", bearer(t, auth.RoleReviewer), http.StatusNotFound},
		{"reviewer cannot upload", http.MethodPost, "/api/v1/documents", bearer(t, auth.RoleReviewer), http.StatusForbidden},
		{"role-less token", http.MethodGet, "/api/v1/patients/MRN1/records", bearer(t), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServer_HealthReportsStore(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	e := newServer(testConfig(), a, zerolog.Nop())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" || body["store"] != config.DriverMemory {
		t.Errorf("unexpected health body %v", body)
	}
}
