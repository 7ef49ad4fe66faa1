package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/coordinator"
	"github.com/contractlens/extractor/internal/export"
	"github.com/contractlens/extractor/internal/jobs"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http.encode_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// handleHealth reports liveness plus the configured pipeline defaults so
// operators can confirm what a request without overrides will run.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":              "ok",
		"extraction_method":   string(s.defaults.Method),
		"llm_processing_mode": string(s.defaults.Mode),
		"ocr_engine":          string(s.defaults.Engine),
	})
}

// handleExtract accepts a multipart upload, validates it, and queues an
// asynchronous extraction job. Responds 202 with the job ID.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !constants.IsAllowedExt(header.Filename) {
		s.writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q, allowed: pdf, docx", filepath.Ext(header.Filename)))
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	jobID := uuid.NewString()
	uploadPath, err := s.saveUpload(file, jobID, header.Filename)
	if err != nil {
		s.logger.Error("http.upload_save_failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}

	method := opts.Method
	if method == "" {
		method = s.defaults.Method
	}
	mode := opts.Mode
	if mode == "" {
		mode = s.defaults.Mode
	}
	job, err := s.store.Create(r.Context(), jobID, header.Filename, string(method), string(mode))
	if err != nil {
		os.Remove(uploadPath)
		s.logger.Error("http.job_create_failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot create job")
		return
	}

	s.wg.Add(1)
	go s.runJob(jobID, uploadPath, opts)

	s.writeJSON(w, http.StatusAccepted, job)
}

func parseOptions(r *http.Request) (coordinator.Options, error) {
	var opts coordinator.Options
	if v := r.FormValue("extraction_method"); v != "" {
		method, err := constants.ParseExtractionMethod(v)
		if err != nil {
			return opts, err
		}
		opts.Method = method
	}
	if v := r.FormValue("llm_processing_mode"); v != "" {
		mode, err := constants.ParseProcessingMode(v)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if v := r.FormValue("ocr_engine"); v != "" {
		engine, err := constants.ParseOCREngine(v)
		if err != nil {
			return opts, err
		}
		opts.Engine = engine
	}
	return opts, nil
}

func (s *Server) saveUpload(file io.Reader, jobID, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.UploadDir, jobID+"."+constants.NormalizeExt(filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// runJob drives one extraction in the background, bounded by the concurrency
// semaphore. The uploaded file is removed when the job reaches a terminal
// state.
func (s *Server) runJob(jobID, path string, opts coordinator.Options) {
	defer s.wg.Done()
	defer os.Remove(path)

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), s.extractTimeout)
	defer cancel()

	if err := s.store.MarkProcessing(ctx, jobID); err != nil {
		s.logger.Error("job.mark_processing_failed", "job_id", jobID, "error", err)
		return
	}
	_ = s.store.AppendLog(ctx, jobID, "INFO", "extraction started")

	result, err := s.coord.Extract(ctx, path, opts)
	if err != nil {
		s.logger.Error("job.failed", "job_id", jobID, "error", err)
		_ = s.store.AppendLog(ctx, jobID, "ERROR", err.Error())
		if err := s.store.MarkFailed(ctx, jobID, err.Error()); err != nil {
			s.logger.Error("job.mark_failed_failed", "job_id", jobID, "error", err)
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		_ = s.store.AppendLog(ctx, jobID, "ERROR", "cannot encode result")
		_ = s.store.MarkFailed(ctx, jobID, "cannot encode result")
		return
	}
	_ = s.store.AppendLog(ctx, jobID, "INFO",
		fmt.Sprintf("extraction finished in %dms, schema_valid=%t", result.DurationMS, result.SchemaValid))
	if err := s.store.MarkCompleted(ctx, jobID, payload); err != nil {
		s.logger.Error("job.mark_completed_failed", "job_id", jobID, "error", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("http.list_failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot list jobs")
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != constants.StatusCompleted {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}
	result, err := s.store.Result(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("http.result_failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot load result")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	logLines, err := s.store.Logs(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("http.logs_failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot load logs")
		return
	}
	if logLines == nil {
		logLines = []jobs.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": logLines})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != constants.StatusCompleted {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}
	raw, err := s.store.Result(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cannot load result")
		return
	}
	var result coordinator.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Error("http.export_decode_failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "stored result is unreadable")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".xlsx"))
	if err := export.WriteXLSX(w, result.Record); err != nil {
		s.logger.Error("http.export_failed", "job_id", job.ID, "error", err)
	}
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("http.job_lookup_failed", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cannot load job")
		return nil, false
	}
	return job, true
}
