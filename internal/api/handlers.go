package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/HealthCoach/internal/messaging"
	"github.com/BTreeMap/HealthCoach/internal/models"
)

// messageRequest is the body of POST /messages.
type messageRequest struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// messagesHandler runs one message through the intake and returns the replies.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: user_id")
		return
	}

	out, err := s.conversation.Converse(r.Context(), models.Response{
		From:      req.UserID,
		Body:      req.Text,
		Time:      s.now().Unix(),
		MessageID: req.MessageID,
	})
	switch {
	case errors.Is(err, messaging.ErrDuplicate):
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Duplicate message ignored", []models.OutboundMessage{}))
		return
	case err != nil:
		slog.Error("Server.messagesHandler: conversation failed", "error", err, "userID", req.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	if out == nil {
		out = []models.OutboundMessage{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

// assessmentsHandler lists archived assessments, optionally filtered by ?user_id=.
func (s *Server) assessmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	list, err := s.assessments.GetAssessments(userID)
	if err != nil {
		slog.Error("Server.assessmentsHandler: failed to read assessments", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read assessments")
		return
	}
	if list == nil {
		list = []models.Assessment{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}
