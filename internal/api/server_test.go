// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/config"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/health"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/jobs"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

type stubJobs struct {
	byID      map[string]*jobs.Job
	submitted []separate.Request
	submitErr error
	cancelErr error
}

func newStubJobs() *stubJobs {
	return &stubJobs{byID: make(map[string]*jobs.Job)}
}

func (s *stubJobs) Submit(_ context.Context, req separate.Request) (*jobs.Job, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, req)
	job := &jobs.Job{
		ID:        uuid.NewString(),
		State:     jobs.StateQueued,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	s.byID[job.ID] = job
	return job, nil
}

func (s *stubJobs) Get(_ context.Context, id string) (*jobs.Job, error) {
	job, ok := s.byID[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (s *stubJobs) List(_ context.Context, _ int) ([]*jobs.Job, error) {
	var out []*jobs.Job
	for _, j := range s.byID {
		out = append(out, j)
	}
	return out, nil
}

func (s *stubJobs) Cancel(_ context.Context, id string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	job, ok := s.byID[id]
	if !ok {
		return jobs.ErrNotFound
	}
	job.State = jobs.StateCanceled
	return nil
}

func testServer(t *testing.T, stub *stubJobs) (*Server, config.AppConfig) {
	t.Helper()
	cfg := config.AppConfig{
		InputDir:  t.TempDir(),
		OutputDir: t.TempDir(),
		Defaults: config.ModelDefaults{
			Model: "is", Rank: 4, Iterations: 20, Domain: 2,
			Algorithm: "mm", FFTSize: 1024, HopSize: 256,
		},
	}
	return New(cfg, stub, health.NewManager("test")), cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobAppliesDefaults(t *testing.T) {
	stub := newStubJobs()
	srv, cfg := testServer(t, stub)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/jobs", map[string]any{
		"input": "mixture.wav",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, stub.submitted, 1)
	req := stub.submitted[0]
	assert.Equal(t, "is", req.Model)
	assert.Equal(t, 4, req.Rank)
	assert.Equal(t, 1024, req.FFTSize)
	assert.Equal(t, cfg.OutputDir, req.OutputDir)
	assert.Equal(t, filepath.Join(cfg.InputDir, "mixture.wav"), req.InputPath)

	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.StateQueued, job.State)
	assert.NotEmpty(t, job.ID)
}

func TestSubmitJobOverrides(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/jobs", map[string]any{
		"input":      "mixture.wav",
		"model":      "cauchy",
		"rank":       8,
		"sources":    2,
		"iterations": 100,
		"algorithm":  "fast",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	req := stub.submitted[0]
	assert.Equal(t, "cauchy", req.Model)
	assert.Equal(t, 8, req.Rank)
	assert.Equal(t, 2, req.Sources)
	assert.Equal(t, 100, req.Iterations)
	assert.Equal(t, "fast", req.Algorithm)
}

func TestSubmitJobRejectsTraversal(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	for _, input := range []string{"../secret.wav", "/etc/passwd", `a\b.wav`} {
		rec := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/jobs", map[string]any{"input": input})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "input %q", input)
	}
	assert.Empty(t, stub.submitted)
}

func TestSubmitJobBadBody(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodPost, "/api/v1/jobs", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	job, err := stub.Submit(context.Background(), separate.Request{Model: "is"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
}

func TestGetJobErrors(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	_, err := stub.Submit(context.Background(), separate.Request{Model: "is"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs []*jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 1)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/api/v1/jobs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	job, err := stub.Submit(context.Background(), separate.Request{Model: "is"})
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, jobs.StateCanceled, job.State)

	stub.cancelErr = jobs.ErrTerminal
	rec = doJSON(t, srv.Router(), http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDownloadArtifact(t *testing.T) {
	stub := newStubJobs()
	srv, cfg := testServer(t, stub)

	job, err := stub.Submit(context.Background(), separate.Request{Model: "is"})
	require.NoError(t, err)
	job.State = jobs.StateDone
	job.Artifacts = &separate.Artifacts{
		Stems:  []string{"mixture-stem1.wav"},
		Report: "mixture-report.json",
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.OutputDir, "mixture-stem1.wav"), []byte("RIFFdata"), 0o600))

	rec := doJSON(t, srv.Router(), http.MethodGet,
		"/api/v1/jobs/"+job.ID+"/artifacts/mixture-stem1.wav", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFdata", rec.Body.String())

	// Not listed on the job.
	rec = doJSON(t, srv.Router(), http.MethodGet,
		"/api/v1/jobs/"+job.ID+"/artifacts/other.wav", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	stub := newStubJobs()
	srv, _ := testServer(t, stub)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	stub := newStubJobs()
	cfg := config.AppConfig{
		InputDir:  t.TempDir(),
		OutputDir: t.TempDir(),
		RateLimit: 2,
		Defaults:  config.ModelDefaults{Model: "is", Rank: 2, Iterations: 5, FFTSize: 256, HopSize: 64},
	}
	srv := New(cfg, stub, health.NewManager("test"))

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
