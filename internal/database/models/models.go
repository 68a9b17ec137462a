package models

import "time"

type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

type Lesson struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Questions []Question `json:"questions,omitempty"`
}

type CachedCourse struct {
	ID          int64     `json:"id"`
	Topic       string    `json:"topic"` // Normalized key, e.g. "python-basics"
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Lessons     []Lesson  `json:"lessons"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy so cached entries are never shared with callers
func (c *CachedCourse) Clone() *CachedCourse {
	if c == nil {
		return nil
	}
	out := *c
	out.Lessons = make([]Lesson, len(c.Lessons))
	for i, l := range c.Lessons {
		out.Lessons[i] = l
		out.Lessons[i].Questions = make([]Question, len(l.Questions))
		for j, q := range l.Questions {
			out.Lessons[i].Questions[j] = q
			out.Lessons[i].Questions[j].Options = append([]string(nil), q.Options...)
		}
	}
	return &out
}

type UsageLog struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Endpoint     string    `json:"endpoint"`
	Tokens       int       `json:"tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Requests     int     `json:"requests"`
	Failures     int     `json:"failures"`
	Tokens       int64   `json:"tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
}

type UsageStats struct {
	TotalRequests int             `json:"total_requests"`
	TotalTokens   int64           `json:"total_tokens"`
	ByProvider    []ProviderUsage `json:"by_provider"`
	ByEndpoint    map[string]int  `json:"by_endpoint"`
}

type QuotaAlert struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`
	Threshold    float64   `json:"threshold"`
	PercentUsed  float64   `json:"percent_used"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}
