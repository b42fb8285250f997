package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"vidproc/internal/logging"
	"vidproc/internal/pipeline"
	"vidproc/internal/services"
)

// jobResponse is written for every notification that reached the pipeline.
type jobResponse struct {
	VideoID   string `json:"videoId"`
	Outcome   string `json:"outcome"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context(), s.logger)
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	event, messageID, err := decodeNotification(body)
	if err != nil {
		logger.Info("notification rejected", logging.Error(err), logging.String(logging.FieldEventType, "bad_request"))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := pipeline.NewJob(event.Name)
	if err != nil {
		logger.Info("notification rejected", logging.Error(err), logging.String(logging.FieldEventType, "bad_request"))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("notification received",
		logging.String("object", job.RawObjectName),
		logging.String("message_id", messageID),
		logging.String(logging.FieldVideoID, job.VideoID),
	)

	if !s.track() {
		s.writeError(w, http.StatusServiceUnavailable, errShuttingDown.Error())
		return
	}
	ctx := s.jobContext(r)

	if s.opts.Async {
		adm, outcome, err := s.proc.Admit(ctx, job)
		if err != nil {
			s.jobs.Done()
			s.writeOutcome(w, r, job, outcome, err)
			return
		}
		go s.runAsync(ctx, adm)
		s.writeOutcome(w, r, job, pipeline.Accepted, nil)
		return
	}

	defer s.jobs.Done()
	if !s.acquire(r.Context().Done()) {
		s.writeError(w, http.StatusServiceUnavailable, "no worker available")
		return
	}
	defer s.release()
	adm, outcome, err := s.proc.Admit(ctx, job)
	if err == nil {
		outcome, err = s.proc.Run(ctx, adm)
	}
	s.writeOutcome(w, r, job, outcome, err)
}

func (s *Server) runAsync(ctx context.Context, adm *pipeline.Admission) {
	defer s.jobs.Done()
	if !s.acquire(nil) {
		s.proc.Release(ctx, adm, errShuttingDown)
		return
	}
	defer s.release()
	_, _ = s.proc.Run(ctx, adm)
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, job pipeline.Job, outcome pipeline.Outcome, err error) {
	resp := jobResponse{
		VideoID:   job.VideoID,
		Outcome:   outcome.String(),
		RequestID: requestID(r),
	}
	if outcome == pipeline.Completed {
		resp.Filename = job.OutputObjectName
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, statusCode(outcome, err), resp)
}

// statusCode maps a job outcome to the HTTP response code. Missing input is a
// client error; a failed download of an existing object is not.
func statusCode(outcome pipeline.Outcome, err error) int {
	switch outcome {
	case pipeline.Completed:
		return http.StatusOK
	case pipeline.Accepted:
		return http.StatusAccepted
	case pipeline.Conflict:
		return http.StatusBadRequest
	case pipeline.InputUnavailable:
		if errors.Is(err, services.ErrNotFound) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHeadVideo(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	ok, err := s.store.Exists(r.Context(), id)
	switch {
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
