// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/jobs"
	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/platform/fs"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

// submitRequest is the POST /jobs body. Omitted model parameters fall back
// to the daemon defaults.
type submitRequest struct {
	Input      string  `json:"input"`
	Model      string  `json:"model,omitempty"`
	Rank       int     `json:"rank,omitempty"`
	Sources    int     `json:"sources,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
	Domain     float64 `json:"domain,omitempty"`
	Algorithm  string  `json:"algorithm,omitempty"`
	FFTSize    int     `json:"fft_size,omitempty"`
	HopSize    int     `json:"hop_size,omitempty"`
	Seed       int64   `json:"seed,omitempty"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	// Job inputs are confined to the configured input directory.
	inputPath, err := fs.ConfineRelPath(s.cfg.InputDir, body.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid input path")
		return
	}

	req := s.requestDefaults()
	req.InputPath = inputPath
	if body.Model != "" {
		req.Model = body.Model
	}
	if body.Rank > 0 {
		req.Rank = body.Rank
	}
	if body.Sources > 0 {
		req.Sources = body.Sources
	}
	if body.Iterations > 0 {
		req.Iterations = body.Iterations
	}
	if body.Domain > 0 {
		req.Domain = body.Domain
	}
	if body.Algorithm != "" {
		req.Algorithm = body.Algorithm
	}
	if body.FFTSize > 0 {
		req.FFTSize = body.FFTSize
	}
	if body.HopSize > 0 {
		req.HopSize = body.HopSize
	}
	req.Seed = body.Seed

	job, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) requestDefaults() separate.Request {
	d := s.cfg.Defaults
	return separate.Request{
		OutputDir:  s.cfg.OutputDir,
		Model:      d.Model,
		Rank:       d.Rank,
		Iterations: d.Iterations,
		Domain:     d.Domain,
		Algorithm:  d.Algorithm,
		FFTSize:    d.FFTSize,
		HopSize:    d.HopSize,
		Tolerance:  d.Tolerance,
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	err := s.jobs.Cancel(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	if job.Artifacts == nil || !artifactNamed(job, name) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	path, err := fs.ConfineRelPath(s.cfg.OutputDir, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid artifact name")
		return
	}

	f, err := os.Open(path) // #nosec G304 -- confined to output dir above
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if filepath.Ext(name) == ".wav" {
		w.Header().Set("Content-Type", "audio/wav")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func artifactNamed(job *jobs.Job, name string) bool {
	if name == job.Artifacts.Report {
		return true
	}
	for _, stem := range job.Artifacts.Stems {
		if stem == name {
			return true
		}
	}
	return false
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return nil, false
	}

	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
		} else {
			logger := xglog.WithComponentFromContext(r.Context(), "api")
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "job.lookup_error").
				Str(xglog.FieldJobID, id).
				Msg("job lookup failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	return job, true
}
