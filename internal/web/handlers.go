package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sheetmerge/sheetmerge/internal/archive"
	"github.com/sheetmerge/sheetmerge/internal/logging"
	"github.com/sheetmerge/sheetmerge/internal/merge"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleMerge accepts a multipart upload of spreadsheet files and starts an
// asynchronous merge job over them. The response carries the job ID for
// the progress, result, and download endpoints.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "upload too large or invalid form")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) < s.cfg.Upload.MinFiles {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("at least %d files are required for merging", s.cfg.Upload.MinFiles))
		return
	}

	sources := make([]merge.Source, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("open %s: %v", header.Filename, err))
			return
		}
		name, data, err := archive.Decompress(header.Filename, file, maxSize)
		file.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("read %s: %v", header.Filename, err))
			return
		}
		sources = append(sources, merge.Source{Name: name, Data: data})
	}

	jobID, err := s.service.StartMerge(r.Context(), sources)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("merge job accepted",
		"job_id", jobID,
		"files", len(sources),
	)
	writeJSON(w, r, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleMergeProgress streams job progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter: the event ID is
// the progress percentage, so reconnecting clients skip what they have.
func (s *Server) handleMergeProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "missing job ID")
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(jobID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: the job reached a terminal phase.
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events the client already received before reconnecting.
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleMergeResult returns the final result summary of a job, blocking
// until the job completes if it is still running.
func (s *Server) handleMergeResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "missing job ID")
		return
	}

	result, err := s.service.GetResult(r.Context(), jobID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleMergeDownload serves the merged workbook bytes as an attachment.
func (s *Server) handleMergeDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "missing job ID")
		return
	}

	result, err := s.service.GetResult(r.Context(), jobID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if result.Error != "" || len(result.Output) == 0 {
		writeError(w, r, http.StatusConflict, "job produced no output: "+result.Error)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="merged_data.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Output)))
	w.Write(result.Output)
}

// handleCancelMerge cancels an in-progress merge job.
func (s *Server) handleCancelMerge(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "missing job ID")
		return
	}

	if err := s.service.CancelJob(jobID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleCacheInvalidate drops one cached artifact by fingerprint.
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	if fingerprint == "" {
		writeError(w, r, http.StatusBadRequest, "missing fingerprint")
		return
	}

	found := s.service.InvalidateCache(fingerprint)
	writeJSON(w, r, http.StatusOK, map[string]bool{"invalidated": found})
}

// handleCachePurge drops every cached artifact.
func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	purged := s.service.PurgeCache()
	writeJSON(w, r, http.StatusOK, map[string]int{"purged": purged})
}

// handleStatus reports the merge limiter's state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.LimiterStatus())
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
