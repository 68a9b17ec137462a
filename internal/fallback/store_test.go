package fallback

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/mentor-gateway/internal/database"
	"github.com/andrew/mentor-gateway/internal/database/models"
)

// memBackend is an in-memory Backend; set err to make every call fail
type memBackend struct {
	mu      sync.Mutex
	courses map[string]*models.CachedCourse
	order   []string
	err     error
	finds   int
}

func newMemBackend() *memBackend {
	return &memBackend{courses: make(map[string]*models.CachedCourse)}
}

func (m *memBackend) FindCourse(ctx context.Context, topic string) (*models.CachedCourse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.err != nil {
		return nil, m.err
	}
	for _, key := range m.order {
		if strings.Contains(key, topic) {
			return m.courses[key].Clone(), nil
		}
	}
	return nil, nil
}

func (m *memBackend) UpsertCourse(ctx context.Context, course *models.CachedCourse) (*models.CachedCourse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if existing, ok := m.courses[course.Topic]; ok {
		c := course.Clone()
		c.AccessCount = existing.AccessCount
		m.courses[course.Topic] = c
		return c.Clone(), nil
	}
	c := course.Clone()
	c.AccessCount = 0
	m.courses[c.Topic] = c
	m.order = append(m.order, c.Topic)
	return c.Clone(), nil
}

func (m *memBackend) IncrementCourseAccess(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if c, ok := m.courses[topic]; ok {
		c.AccessCount++
	}
	return nil
}

func (m *memBackend) TopCourses(ctx context.Context, limit int) ([]models.CachedCourse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.CachedCourse, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, *m.courses[key].Clone())
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func course(topic, title string) *models.CachedCourse {
	return &models.CachedCourse{
		Topic:       topic,
		Title:       title,
		Description: "An introduction to " + title,
		Difficulty:  "beginner",
		Lessons: []models.Lesson{
			{
				Title:   "Getting started",
				Content: "Install the toolchain.",
				Questions: []models.Question{
					{Prompt: "What prints text?", Options: []string{"print", "echo"}, Answer: "print"},
				},
			},
		},
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Python Basics":        "python-basics",
		"  python   basics \n": "python-basics",
		"PYTHON\tBASICS":       "python-basics",
		"python-basics":        "python-basics",
		"   ":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestDisplayTopic(t *testing.T) {
	assert.Equal(t, "Python Basics", DisplayTopic("python-basics"))
	assert.Equal(t, "Go", DisplayTopic("go"))
}

func TestGetMissThenPutThenHit(t *testing.T) {
	s := NewStore(newMemBackend(), Options{})
	ctx := context.Background()

	assert.Nil(t, s.Get(ctx, "Python Basics"))
	assert.Equal(t, int64(1), s.Stats().Misses)

	s.Put(ctx, course("python-basics", "Python Basics"))

	got := s.Get(ctx, "python basics")
	require.NotNil(t, got)
	assert.Equal(t, "Python Basics", got.Title)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 50.0, st.HitRate, 0.001)
	assert.Equal(t, 1, st.CachedTopics)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := NewStore(newMemBackend(), Options{})
	ctx := context.Background()
	in := course("  Data   Structures ", "Data Structures")

	s.Put(ctx, in)

	for _, variant := range []string{"data structures", "DATA STRUCTURES", " data-structures "} {
		got := s.Get(ctx, variant)
		require.NotNil(t, got, variant)
		assert.Equal(t, "data-structures", got.Topic)
		assert.Equal(t, in.Title, got.Title)
		assert.Equal(t, in.Description, got.Description)
		assert.Equal(t, in.Lessons, got.Lessons)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewStore(newMemBackend(), Options{})
	ctx := context.Background()
	s.Put(ctx, course("go", "Go"))

	got := s.Get(ctx, "go")
	got.Title = "mutated"
	got.Lessons[0].Questions[0].Options[0] = "mutated"

	again := s.Get(ctx, "go")
	assert.Equal(t, "Go", again.Title)
	assert.Equal(t, "print", again.Lessons[0].Questions[0].Options[0])
}

func TestGetPromotesPersistentHit(t *testing.T) {
	backend := newMemBackend()
	_, err := backend.UpsertCourse(context.Background(), course("rust-ownership", "Rust Ownership"))
	require.NoError(t, err)

	s := NewStore(backend, Options{})
	ctx := context.Background()

	got := s.Get(ctx, "Rust Ownership")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.Equal(t, 1, s.Stats().CachedTopics)

	got = s.Get(ctx, "rust ownership")
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.Equal(t, 1, backend.finds, "second lookup must be served from memory")
	assert.Equal(t, int64(2), backend.courses["rust-ownership"].AccessCount)
}

func TestHitRateProperty(t *testing.T) {
	s := NewStore(newMemBackend(), Options{})
	ctx := context.Background()
	assert.Equal(t, float64(0), s.Stats().HitRate)

	s.Put(ctx, course("go", "Go"))
	lookups := []string{"go", "rust", "go", "java", "Go", "go", "kotlin"}
	for _, topic := range lookups {
		s.Get(ctx, topic)
		st := s.Stats()
		assert.InDelta(t, float64(st.Hits)/float64(st.Hits+st.Misses)*100, st.HitRate, 0.0001)
	}

	st := s.Stats()
	assert.Equal(t, int64(4), st.Hits)
	assert.Equal(t, int64(3), st.Misses)
}

func TestStoreErrorsDegrade(t *testing.T) {
	backend := newMemBackend()
	backend.err = errors.New("disk on fire")
	s := NewStore(backend, Options{})
	ctx := context.Background()

	assert.False(t, s.Has(ctx, "go"))
	assert.Nil(t, s.Get(ctx, "go"))
	assert.Nil(t, s.RandomPopularFallback(ctx))
	assert.Equal(t, DefaultTopics, s.SuggestedTopics(ctx))
	s.Prewarm(ctx)

	// Put still serves from memory when persistence fails
	s.Put(ctx, course("go", "Go"))
	assert.True(t, s.Has(ctx, "go"))
	require.NotNil(t, s.Get(ctx, "go"))
}

func TestHas(t *testing.T) {
	backend := newMemBackend()
	_, err := backend.UpsertCourse(context.Background(), course("sql-essentials", "SQL Essentials"))
	require.NoError(t, err)
	s := NewStore(backend, Options{})
	ctx := context.Background()

	assert.True(t, s.Has(ctx, "SQL Essentials"))
	assert.False(t, s.Has(ctx, "cobol"))
	assert.False(t, s.Has(ctx, "  "))
	assert.Equal(t, Stats{}, s.Stats(), "Has does not count as a lookup")
}

func TestRandomPopularFallback(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()

	var picked []int
	s := NewStore(backend, Options{PopularPool: 2, Pick: func(n int) int {
		picked = append(picked, n)
		return n - 1
	}})
	assert.Nil(t, s.RandomPopularFallback(ctx))

	for _, topic := range []string{"go", "rust", "zig"} {
		_, err := backend.UpsertCourse(ctx, course(topic, topic))
		require.NoError(t, err)
	}

	got := s.RandomPopularFallback(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "rust", got.Topic)
	assert.Equal(t, []int{2}, picked)
}

func TestSuggestedTopics(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()
	s := NewStore(backend, Options{})

	assert.Equal(t, DefaultTopics, s.SuggestedTopics(ctx))

	_, err := backend.UpsertCourse(ctx, course("machine-learning", "ML"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Machine Learning"}, s.SuggestedTopics(ctx))
}

func TestPrewarm(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()
	for _, topic := range []string{"go", "rust", "zig"} {
		_, err := backend.UpsertCourse(ctx, course(topic, topic))
		require.NoError(t, err)
	}

	s := NewStore(backend, Options{PrewarmLimit: 2})
	s.Prewarm(ctx)
	assert.Equal(t, 2, s.Stats().CachedTopics)

	require.NotNil(t, s.Get(ctx, "go"))
	assert.Equal(t, 0, backend.finds)
}

func TestConcurrentHitsKeepAccessCount(t *testing.T) {
	s := NewStore(newMemBackend(), Options{})
	ctx := context.Background()
	s.Put(ctx, course("go", "Go"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Get(ctx, "go")
		}()
	}
	wg.Wait()

	got := s.Get(ctx, "go")
	assert.Equal(t, int64(51), got.AccessCount)
}

type slowBackend struct {
	*memBackend
	delay time.Duration
}

func (b *slowBackend) FindCourse(ctx context.Context, topic string) (*models.CachedCourse, error) {
	time.Sleep(b.delay)
	return b.memBackend.FindCourse(ctx, topic)
}

func TestConcurrentColdMissesKeepAccessCount(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	_, err := backend.UpsertCourse(ctx, course("go", "Go"))
	require.NoError(t, err)

	s := NewStore(&slowBackend{memBackend: backend, delay: 20 * time.Millisecond}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, s.Get(ctx, "go"))
		}()
	}
	wg.Wait()

	got := s.Get(ctx, "go")
	require.NotNil(t, got)
	assert.Equal(t, int64(21), got.AccessCount)

	persisted, err := backend.FindCourse(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, int64(21), persisted.AccessCount)
}

func TestStoreWithSQLite(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "mentor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	s := NewStore(db, Options{})
	s.Put(ctx, course("Python Basics", "Python Basics"))

	fresh := NewStore(db, Options{})
	got := fresh.Get(ctx, "python basics")
	require.NotNil(t, got)
	assert.Equal(t, "python-basics", got.Topic)
	assert.Equal(t, "Python Basics", got.Title)
	require.Len(t, got.Lessons, 1)
	assert.Equal(t, []string{"Python Basics"}, fresh.SuggestedTopics(ctx))
}
