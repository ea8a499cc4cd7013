// Package store owns survey persistence and the publication lifecycle:
// drafts become addressable on first save, publishing assigns a stable
// public slug exactly once, and public respondents get exactly one response
// row per (survey, respondent) pair.
package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/survey"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrTitleRequired    = errors.New("title is required")
	ErrCompleted        = errors.New("response already completed")
	ErrQuestionRequired = errors.New("question is required")
	ErrAnswerRequired   = errors.New("answer is required")
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"

	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "sqlite3")}
}

type SurveyRecord struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Definition  string     `db:"definition" json:"definition"`
	Visibility  string     `db:"visibility" json:"visibility"`
	Slug        *string    `db:"slug" json:"slug,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Parse returns the typed survey document stored in the record.
func (r SurveyRecord) Parse() (survey.Survey, error) {
	return survey.Parse([]byte(r.Definition))
}
