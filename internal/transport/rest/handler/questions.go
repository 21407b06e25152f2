package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"buzzhost/internal/service"
)

// QuestionHandler handles direct question generation
type QuestionHandler struct {
	questions *service.QuestionService
}

// NewQuestionHandler creates a new question handler
func NewQuestionHandler(questions *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// GenerateRequest is the request body for question generation
type GenerateRequest struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// Generate handles POST /v1/questions. Unlike the join flow this surfaces
// provider failures to the caller instead of silently falling back.
func (h *QuestionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.Count <= 0 {
		req.Count = 5
	}

	questions, err := h.questions.GenerateFromLLM(r.Context(), req.Subject, req.Count)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":     "failed to generate questions",
			"details":   err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}
