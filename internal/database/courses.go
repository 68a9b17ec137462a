package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andrew/mentor-gateway/internal/database/models"
)

const courseColumns = `id, topic, title, description, difficulty, content, access_count, created_at, updated_at`

// UpsertCourse inserts a course keyed by topic, or refreshes the content of an existing one.
// New courses start with an access count of zero.
func (db *DB) UpsertCourse(ctx context.Context, course *models.CachedCourse) (*models.CachedCourse, error) {
	content, err := json.Marshal(course.Lessons)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize lessons: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO cached_courses (topic, title, description, difficulty, content, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			difficulty = excluded.difficulty,
			content = excluded.content,
			updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query,
		course.Topic,
		course.Title,
		course.Description,
		course.Difficulty,
		string(content),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert course: %w", err)
	}

	return db.GetCourseByTopic(ctx, course.Topic)
}

// GetCourseByTopic retrieves a course by its exact topic key
func (db *DB) GetCourseByTopic(ctx context.Context, topic string) (*models.CachedCourse, error) {
	query := `SELECT ` + courseColumns + ` FROM cached_courses WHERE topic = ?`
	course, err := scanCourse(db.conn.QueryRowContext(ctx, query, topic))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// FindCourse retrieves the best course whose topic contains the given key,
// case-insensitively. An exact match wins, then the most accessed.
func (db *DB) FindCourse(ctx context.Context, topic string) (*models.CachedCourse, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM cached_courses
		WHERE topic LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY (lower(topic) = lower(?)) DESC, access_count DESC
		LIMIT 1
	`
	course, err := scanCourse(db.conn.QueryRowContext(ctx, query, escapeLike(topic), topic))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return course, nil
}

// IncrementCourseAccess bumps the access counter of a course
func (db *DB) IncrementCourseAccess(ctx context.Context, topic string) error {
	query := `UPDATE cached_courses SET access_count = access_count + 1 WHERE topic = ?`
	if _, err := db.conn.ExecContext(ctx, query, topic); err != nil {
		return fmt.Errorf("failed to increment course access: %w", err)
	}
	return nil
}

// TopCourses returns the most accessed courses
func (db *DB) TopCourses(ctx context.Context, limit int) ([]models.CachedCourse, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM cached_courses
		ORDER BY access_count DESC, updated_at DESC
		LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []models.CachedCourse
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, *course)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}

	return courses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*models.CachedCourse, error) {
	var course models.CachedCourse
	var content string
	err := row.Scan(
		&course.ID,
		&course.Topic,
		&course.Title,
		&course.Description,
		&course.Difficulty,
		&content,
		&course.AccessCount,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &course.Lessons); err != nil {
		return nil, fmt.Errorf("failed to parse lessons of %s: %w", course.Topic, err)
	}
	return &course, nil
}

// escapeLike escapes LIKE wildcards so the topic matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
