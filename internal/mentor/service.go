// Package mentor implements the learner-facing features on top of the
// orchestrator and the fallback store. Every operation returns usable output
// even when no completion provider can answer.
package mentor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/andrew/mentor-gateway/internal/agents"
	"github.com/andrew/mentor-gateway/internal/database/models"
	"github.com/andrew/mentor-gateway/internal/fallback"
	"github.com/andrew/mentor-gateway/internal/logging"
)

// Content sources reported on generated results
const (
	SourceAI          = "ai"
	SourceCache       = "cache"
	SourcePopular     = "popular"
	SourcePlaceholder = "placeholder"
)

const (
	defaultQuestionCount = 5
	maxQuestionCount     = 20
	maxHistory           = 10
)

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrEmptyTopic   = errors.New("topic is required")
)

// Completer produces completions; *orchestrator.Orchestrator satisfies it
type Completer interface {
	Complete(ctx context.Context, req agents.CompletionRequest) (*agents.CompletionResponse, error)
}

// ContentStore is the subset of the fallback store the service reads and fills
type ContentStore interface {
	Has(ctx context.Context, topic string) bool
	Get(ctx context.Context, topic string) *models.CachedCourse
	Put(ctx context.Context, course *models.CachedCourse)
	RandomPopularFallback(ctx context.Context) *models.CachedCourse
}

// Service answers mentor chat, course and interview requests
type Service struct {
	ai     Completer
	store  ContentStore
	logger *log.Logger
}

// NewService creates a mentor service
func NewService(ai Completer, store ContentStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ai: ai, store: store, logger: logger}
}

// ChatRequest is a single learner turn with optional prior history
type ChatRequest struct {
	Message string           `json:"message"`
	Topic   string           `json:"topic,omitempty"`
	History []agents.Message `json:"history,omitempty"`
}

// ChatResponse is the mentor's reply. Degraded is set when no provider answered.
type ChatResponse struct {
	Reply    string `json:"reply"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Degraded bool   `json:"degraded"`

	// CourseTopic points at cached content the learner can study meanwhile
	CourseTopic string `json:"courseTopic,omitempty"`
}

// Chat asks the AI mentor for a reply, degrading to a labeled notice on total failure
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	system := "You are a patient programming mentor. Explain concepts step by step with short examples."
	if req.Topic != "" {
		system += fmt.Sprintf(" The learner is studying %s.", req.Topic)
	}

	history := req.History
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages := make([]agents.Message, 0, len(history)+2)
	messages = append(messages, agents.Message{Role: agents.RoleSystem, Content: system})
	for _, m := range history {
		if m.Role == agents.RoleUser || m.Role == agents.RoleAssistant {
			messages = append(messages, m)
		}
	}
	messages = append(messages, agents.Message{Role: agents.RoleUser, Content: message})

	resp, err := s.ai.Complete(ctx, agents.CompletionRequest{Messages: messages, Endpoint: "mentor"})
	if err == nil && resp.Content != "" {
		return &ChatResponse{
			Reply:    resp.Content,
			Provider: resp.Provider,
			Model:    resp.Model,
			Degraded: resp.Placeholder,
		}, nil
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logFailure("mentor", req.Topic, err)

	out := &ChatResponse{
		Reply: "The AI mentor is temporarily unavailable. " +
			"Your question was not lost; please try again in a few minutes.",
		Degraded: true,
	}
	if req.Topic != "" && s.store.Has(ctx, req.Topic) {
		out.CourseTopic = fallback.Normalize(req.Topic)
		out.Reply += fmt.Sprintf(" Meanwhile, a saved course on %q is available to study.", req.Topic)
	}
	return out, nil
}

// CourseResult carries a course and where it came from
type CourseResult struct {
	Course   *models.CachedCourse `json:"course"`
	Source   string               `json:"source"`
	Provider string               `json:"provider,omitempty"`
}

// GenerateCourse returns a course for the topic from the cache, the AI, a popular
// cached course, or a placeholder, in that order.
func (s *Service) GenerateCourse(ctx context.Context, topic, difficulty string) (*CourseResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if difficulty == "" {
		difficulty = "beginner"
	}

	if cached := s.store.Get(ctx, topic); cached != nil {
		return &CourseResult{Course: cached, Source: SourceCache}, nil
	}

	prompt := fmt.Sprintf(`Create a %s course about %q.
Respond with JSON only, using this shape:
{"title": "...", "description": "...", "lessons": [{"title": "...", "content": "...",
"questions": [{"prompt": "...", "options": ["..."], "answer": "...", "explanation": "..."}]}]}
Include 3 to 5 lessons with 2 questions each.`, difficulty, topic)

	resp, err := s.ai.Complete(ctx, agents.CompletionRequest{
		Messages: []agents.Message{
			{Role: agents.RoleSystem, Content: "You design concise programming courses and answer in strict JSON."},
			{Role: agents.RoleUser, Content: prompt},
		},
		MaxTokens: 4096,
		Endpoint:  "course",
	})
	if err == nil && !resp.Placeholder {
		course, perr := parseCourse(resp.Content)
		if perr == nil {
			course.Topic = fallback.Normalize(topic)
			course.Difficulty = difficulty
			s.store.Put(ctx, course)
			return &CourseResult{Course: course, Source: SourceAI, Provider: resp.Provider}, nil
		}
		err = perr
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logFailure("course", topic, err)

	if popular := s.store.RandomPopularFallback(ctx); popular != nil {
		return &CourseResult{Course: popular, Source: SourcePopular}, nil
	}
	return &CourseResult{Course: placeholderCourse(topic, difficulty), Source: SourcePlaceholder}, nil
}

// InterviewResult is a set of practice questions
type InterviewResult struct {
	Topic     string            `json:"topic"`
	Questions []models.Question `json:"questions"`
	Source    string            `json:"source"`
	Provider  string            `json:"provider,omitempty"`
}

// InterviewQuestions generates practice questions, reusing cached course questions when the AI is unavailable
func (s *Service) InterviewQuestions(ctx context.Context, topic string, count int) (*InterviewResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if count <= 0 {
		count = defaultQuestionCount
	}
	if count > maxQuestionCount {
		count = maxQuestionCount
	}

	prompt := fmt.Sprintf(`Write %d technical interview questions about %q.
Respond with a JSON array only: [{"prompt": "...", "answer": "...", "explanation": "..."}]`, count, topic)

	resp, err := s.ai.Complete(ctx, agents.CompletionRequest{
		Messages: []agents.Message{
			{Role: agents.RoleSystem, Content: "You are a senior engineer running a technical interview. Answer in strict JSON."},
			{Role: agents.RoleUser, Content: prompt},
		},
		MaxTokens: 2048,
		Endpoint:  "interview",
	})
	if err == nil && !resp.Placeholder {
		questions, perr := parseQuestions(resp.Content)
		if perr == nil && len(questions) > 0 {
			if len(questions) > count {
				questions = questions[:count]
			}
			return &InterviewResult{Topic: topic, Questions: questions, Source: SourceAI, Provider: resp.Provider}, nil
		}
		if perr == nil {
			perr = errors.New("no questions in response")
		}
		err = perr
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logFailure("interview", topic, err)

	if cached := s.store.Get(ctx, topic); cached != nil {
		var questions []models.Question
		for _, l := range cached.Lessons {
			questions = append(questions, l.Questions...)
		}
		if len(questions) > 0 {
			if len(questions) > count {
				questions = questions[:count]
			}
			return &InterviewResult{Topic: topic, Questions: questions, Source: SourceCache}, nil
		}
	}

	return &InterviewResult{Topic: topic, Questions: placeholderQuestions(topic, count), Source: SourcePlaceholder}, nil
}

func (s *Service) logFailure(endpoint, topic string, err error) {
	fields := log.Fields{
		"endpoint": endpoint,
		"topic":    topic,
		"event":    "degraded_response",
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.logger.WithFields(fields).Warn("Serving degraded response")
}

type courseJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Lessons     []models.Lesson `json:"lessons"`
}

// parseCourse extracts a course from model output, tolerating code fences and surrounding prose
func parseCourse(content string) (*models.CachedCourse, error) {
	raw := extractJSON(content, '{', '}')
	if raw == "" {
		return nil, errors.New("no JSON object in course response")
	}

	var parsed courseJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse course: %w", err)
	}
	if parsed.Title == "" || len(parsed.Lessons) == 0 {
		return nil, errors.New("course response is missing a title or lessons")
	}

	return &models.CachedCourse{
		Title:       parsed.Title,
		Description: parsed.Description,
		Lessons:     parsed.Lessons,
	}, nil
}

func parseQuestions(content string) ([]models.Question, error) {
	raw := extractJSON(content, '[', ']')
	if raw == "" {
		return nil, errors.New("no JSON array in interview response")
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	out := questions[:0]
	for _, q := range questions {
		if strings.TrimSpace(q.Prompt) != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

func extractJSON(content string, first, last byte) string {
	start := strings.IndexByte(content, first)
	end := strings.LastIndexByte(content, last)
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func placeholderCourse(topic, difficulty string) *models.CachedCourse {
	return &models.CachedCourse{
		Topic:       fallback.Normalize(topic),
		Title:       fallback.DisplayTopic(fallback.Normalize(topic)),
		Description: "[placeholder] Course generation is temporarily unavailable. This outline is a starting point; try again shortly for the full course.",
		Difficulty:  difficulty,
		Lessons: []models.Lesson{
			{Title: "Overview", Content: fmt.Sprintf("What %s is and where it is used.", topic)},
			{Title: "Core concepts", Content: fmt.Sprintf("The key ideas and vocabulary of %s.", topic)},
			{Title: "Practice", Content: fmt.Sprintf("Build a small project that uses %s.", topic)},
		},
	}
}

func placeholderQuestions(topic string, count int) []models.Question {
	templates := []string{
		"Explain %s to someone new to it.",
		"What problems does %s solve well, and where does it fall short?",
		"Describe a bug you could introduce while using %s and how you would find it.",
		"How would you test code that relies on %s?",
		"What trade-offs would you weigh before adopting %s in a project?",
	}
	if count > len(templates) {
		count = len(templates)
	}

	questions := make([]models.Question, 0, count)
	for _, tpl := range templates[:count] {
		questions = append(questions, models.Question{
			Prompt:      fmt.Sprintf(tpl, topic),
			Explanation: "[placeholder] AI-generated questions are temporarily unavailable.",
		})
	}
	return questions
}
