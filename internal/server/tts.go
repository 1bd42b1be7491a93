package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/triamed/voicefront/internal/ttsjob"
)

// ttsStartRequest is the POST /start body.
type ttsStartRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// ttsCancelRequest is the POST /cancel body.
type ttsCancelRequest struct {
	JobID string `json:"job_id"`
}

// ttsResponse is the envelope for start and cancel replies.
type ttsResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleTTSStart(w http.ResponseWriter, r *http.Request) {
	var req ttsStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}

	id, err := s.deps.Jobs.Start(req.Text, req.Voice)
	if errors.Is(err, ttsjob.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, "text 不能为空")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ttsResponse{Status: "started", JobID: id, Message: "TTS 任务已启动"})
}

func (s *Server) handleTTSCancel(w http.ResponseWriter, r *http.Request) {
	var req ttsCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求体")
		return
	}

	flipped, err := s.deps.Jobs.Cancel(req.JobID)
	if errors.Is(err, ttsjob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "任务 "+req.JobID+" 不存在")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ttsResponse{Status: "cancelled", JobID: req.JobID, Message: "任务已取消"}
	if !flipped {
		resp.Message = "任务已结束，无需取消"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTTSResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")

	snap, err := s.deps.Jobs.Result(id)
	if errors.Is(err, ttsjob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "任务 "+id+" 不存在")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTTSCleanup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")

	err := s.deps.Jobs.Cleanup(id)
	switch {
	case errors.Is(err, ttsjob.ErrNotFound):
		writeError(w, http.StatusNotFound, "任务 "+id+" 不存在")
	case errors.Is(err, ttsjob.ErrNotTerminal):
		writeError(w, http.StatusBadRequest, "任务尚未结束，无法清理")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "job_id": id})
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// writeError mirrors the JSON error shape of the job API.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"status": "error", "detail": detail})
}
