// Package fallback serves previously generated course content without calling
// any completion provider. Lookups go through an in-process tier backed by the
// persistent course table.
package fallback

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/andrew/mentor-gateway/internal/database/models"
	"github.com/andrew/mentor-gateway/internal/logging"
	"github.com/andrew/mentor-gateway/internal/metrics"
)

const (
	DefaultPrewarmLimit   = 50
	DefaultPopularPool    = 10
	DefaultSuggestedLimit = 20
)

// DefaultTopics is served by SuggestedTopics when the persistent tier has nothing to offer
var DefaultTopics = []string{
	"Python Basics",
	"JavaScript Fundamentals",
	"Data Structures",
	"Algorithms",
	"SQL Essentials",
	"Git And Version Control",
	"System Design",
	"Machine Learning Basics",
	"Web Development",
	"Go Programming",
}

// Backend is the persistent tier
type Backend interface {
	FindCourse(ctx context.Context, topic string) (*models.CachedCourse, error)
	UpsertCourse(ctx context.Context, course *models.CachedCourse) (*models.CachedCourse, error)
	IncrementCourseAccess(ctx context.Context, topic string) error
	TopCourses(ctx context.Context, limit int) ([]models.CachedCourse, error)
}

// Stats reports lookup accounting since process start
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hitRate"`
	CachedTopics int     `json:"cachedTopics"`
}

// Options tunes a Store
type Options struct {
	PrewarmLimit   int
	PopularPool    int
	SuggestedLimit int
	Logger         *log.Logger
	Recorder       metrics.Recorder

	// Pick returns a random index in [0, n); defaults to math/rand
	Pick func(n int) int
}

// Store is the two-tier fallback content cache
type Store struct {
	backend Backend
	opts    Options
	logger  *log.Logger

	mu     sync.Mutex
	memory map[string]*models.CachedCourse

	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore creates a store over the given backend
func NewStore(backend Backend, opts Options) *Store {
	if opts.PrewarmLimit <= 0 {
		opts.PrewarmLimit = DefaultPrewarmLimit
	}
	if opts.PopularPool <= 0 {
		opts.PopularPool = DefaultPopularPool
	}
	if opts.SuggestedLimit <= 0 {
		opts.SuggestedLimit = DefaultSuggestedLimit
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}

	return &Store{
		backend: backend,
		opts:    opts,
		logger:  opts.Logger,
		memory:  make(map[string]*models.CachedCourse),
	}
}

// Normalize converts a topic to its cache key: lower-cased, trimmed, whitespace runs joined by hyphens
func Normalize(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), "-")
}

// DisplayTopic converts a cache key back to a human-readable title
func DisplayTopic(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "-", " "))
}

// Has reports whether content exists for the topic in either tier. Store errors count as absent.
func (s *Store) Has(ctx context.Context, topic string) bool {
	key := Normalize(topic)
	if key == "" {
		return false
	}

	s.mu.Lock()
	_, ok := s.memory[key]
	s.mu.Unlock()
	if ok {
		return true
	}

	course, err := s.backend.FindCourse(ctx, key)
	if err != nil {
		s.logger.WithFields(log.Fields{"topic": key, "error": err.Error()}).Warn("Fallback lookup failed")
		return false
	}
	return course != nil
}

// Get returns a copy of the cached course for the topic, or nil on a miss.
// Every hit bumps the course's access count.
func (s *Store) Get(ctx context.Context, topic string) *models.CachedCourse {
	key := Normalize(topic)

	s.mu.Lock()
	if course, ok := s.memory[key]; ok && key != "" {
		course.AccessCount++
		out := course.Clone()
		s.mu.Unlock()

		s.hit("memory")
		s.bumpAccess(ctx, course.Topic)
		return out
	}
	s.mu.Unlock()

	var course *models.CachedCourse
	if key != "" {
		var err error
		course, err = s.backend.FindCourse(ctx, key)
		if err != nil {
			s.logger.WithFields(log.Fields{"topic": key, "error": err.Error()}).Warn("Fallback lookup failed")
			course = nil
		}
	}
	if course == nil {
		s.misses.Add(1)
		s.opts.Recorder.ObserveCacheLookup("persistent", false)
		return nil
	}

	s.mu.Lock()
	if existing, ok := s.memory[course.Topic]; ok {
		course = existing
	} else {
		s.memory[course.Topic] = course
	}
	course.AccessCount++
	out := course.Clone()
	s.mu.Unlock()

	s.hit("persistent")
	s.bumpAccess(ctx, course.Topic)
	return out
}

func (s *Store) hit(tier string) {
	s.hits.Add(1)
	s.opts.Recorder.ObserveCacheLookup(tier, true)
}

// bumpAccess persists an access-count increment; failures never reach the caller
func (s *Store) bumpAccess(ctx context.Context, key string) {
	if err := s.backend.IncrementCourseAccess(ctx, key); err != nil {
		s.logger.WithFields(log.Fields{"topic": key, "error": err.Error()}).Debug("Failed to record course access")
	}
}

// Put stores a course under its normalized topic in both tiers.
// A persistence failure is logged and the course is still served from memory.
func (s *Store) Put(ctx context.Context, course *models.CachedCourse) {
	if course == nil {
		return
	}
	c := course.Clone()
	c.Topic = Normalize(c.Topic)
	if c.Topic == "" {
		return
	}

	stored, err := s.backend.UpsertCourse(ctx, c)
	if err != nil {
		s.logger.WithFields(log.Fields{"topic": c.Topic, "error": err.Error()}).Warn("Failed to persist course")
		stored = c
	}

	s.mu.Lock()
	s.memory[stored.Topic] = stored.Clone()
	s.mu.Unlock()
}

// RandomPopularFallback picks uniformly among the most-accessed persisted courses.
// It returns nil when nothing is stored or the store is unreachable.
func (s *Store) RandomPopularFallback(ctx context.Context) *models.CachedCourse {
	courses, err := s.backend.TopCourses(ctx, s.opts.PopularPool)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load popular courses")
		return nil
	}
	if len(courses) == 0 {
		return nil
	}
	return courses[s.opts.Pick(len(courses))].Clone()
}

// SuggestedTopics lists the most-accessed topics in display form, or DefaultTopics
// when the persistent tier is empty or unreachable.
func (s *Store) SuggestedTopics(ctx context.Context) []string {
	courses, err := s.backend.TopCourses(ctx, s.opts.SuggestedLimit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load suggested topics")
		return append([]string(nil), DefaultTopics...)
	}
	if len(courses) == 0 {
		return append([]string(nil), DefaultTopics...)
	}

	topics := make([]string, 0, len(courses))
	for _, c := range courses {
		topics = append(topics, DisplayTopic(c.Topic))
	}
	return topics
}

// Stats returns hit/miss accounting; HitRate is a percentage and 0 before any lookup
func (s *Store) Stats() Stats {
	hits, misses := s.hits.Load(), s.misses.Load()

	s.mu.Lock()
	cached := len(s.memory)
	s.mu.Unlock()

	st := Stats{Hits: hits, Misses: misses, CachedTopics: cached}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total) * 100
	}
	return st
}

// Prewarm loads the most-accessed persisted courses into memory. Failures are logged only.
func (s *Store) Prewarm(ctx context.Context) {
	courses, err := s.backend.TopCourses(ctx, s.opts.PrewarmLimit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to prewarm fallback cache")
		return
	}

	s.mu.Lock()
	for i := range courses {
		c := courses[i]
		s.memory[c.Topic] = &c
	}
	s.mu.Unlock()

	s.logger.WithField("courses", len(courses)).Info("Fallback cache prewarmed")
}
