package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andrew/mentor-gateway/internal/mentor"
)

const maxBodyBytes = 1 << 20

// MentorService is the learner-facing feature set
type MentorService interface {
	Chat(ctx context.Context, req mentor.ChatRequest) (*mentor.ChatResponse, error)
	GenerateCourse(ctx context.Context, topic, difficulty string) (*mentor.CourseResult, error)
	InterviewQuestions(ctx context.Context, topic string, count int) (*mentor.InterviewResult, error)
}

// TopicSource lists topics worth suggesting to learners
type TopicSource interface {
	SuggestedTopics(ctx context.Context) []string
}

// MentorHandler handles mentor chat, course and interview requests
type MentorHandler struct {
	svc    MentorService
	topics TopicSource
}

// NewMentorHandler creates a new mentor handler
func NewMentorHandler(svc MentorService, topics TopicSource) *MentorHandler {
	return &MentorHandler{svc: svc, topics: topics}
}

// CourseRequest represents a course generation request
type CourseRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty,omitempty"`
}

// InterviewRequest represents an interview question request
type InterviewRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondServiceError maps mentor validation errors to 400 and anything else to 503
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mentor.ErrEmptyMessage), errors.Is(err, mentor.ErrEmptyTopic):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusServiceUnavailable, "request could not be completed")
	}
}

// HandleChat handles POST /v1/mentor/chat
func (h *MentorHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req mentor.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// HandleGenerateCourse handles POST /v1/courses/generate
func (h *MentorHandler) HandleGenerateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.GenerateCourse(r.Context(), req.Topic, req.Difficulty)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// HandleSuggestedTopics handles GET /v1/courses/suggested
func (h *MentorHandler) HandleSuggestedTopics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"topics": h.topics.SuggestedTopics(r.Context()),
	})
}

// HandleInterviewQuestions handles POST /v1/interview/questions
func (h *MentorHandler) HandleInterviewQuestions(w http.ResponseWriter, r *http.Request) {
	var req InterviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.InterviewQuestions(r.Context(), req.Topic, req.Count)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
