package store

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/survey"
)

type ResponseRecord struct {
	ID          string         `json:"id"`
	SurveyID    string         `json:"survey_id"`
	Respondent  string         `json:"-"`
	Answers     map[string]any `json:"answers"`
	Status      string         `json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type responseRow struct {
	ID          string     `db:"id"`
	SurveyID    string     `db:"survey_id"`
	Respondent  string     `db:"respondent"`
	Answers     string     `db:"answers"`
	Status      string     `db:"status"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (r responseRow) record() (ResponseRecord, error) {
	rec := ResponseRecord{
		ID:          r.ID,
		SurveyID:    r.SurveyID,
		Respondent:  r.Respondent,
		Answers:     map[string]any{},
		Status:      r.Status,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Answers != "" {
		if err := json.Unmarshal([]byte(r.Answers), &rec.Answers); err != nil {
			return ResponseRecord{}, errors.Wrap(err, "decode answers")
		}
	}
	return rec, nil
}

// EnsureResponse returns the single response row for (survey, respondent),
// creating it when absent. The UNIQUE index makes this idempotent: calling
// it any number of times yields the same row.
func (s *Store) EnsureResponse(ctx context.Context, slug, respondent string) (ResponseRecord, error) {
	rec, err := s.GetPublicSurvey(ctx, slug)
	if err != nil {
		return ResponseRecord{}, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO response (id, survey_id, respondent, answers, status, created_at, updated_at)
		VALUES (?, ?, ?, '{}', ?, ?, ?)
		ON CONFLICT (survey_id, respondent) DO NOTHING`,
		survey.NewID(), rec.ID, respondent, StatusInProgress, now, now,
	)
	if err != nil {
		return ResponseRecord{}, errors.Wrap(err, "ensure response")
	}
	return s.getResponse(ctx, rec.ID, respondent)
}

// GetResponse loads the respondent's saved answers for a published survey.
func (s *Store) GetResponse(ctx context.Context, slug, respondent string) (ResponseRecord, error) {
	rec, err := s.GetPublicSurvey(ctx, slug)
	if err != nil {
		return ResponseRecord{}, err
	}
	return s.getResponse(ctx, rec.ID, respondent)
}

func (s *Store) getResponse(ctx context.Context, surveyID, respondent string) (ResponseRecord, error) {
	var row responseRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM response WHERE survey_id = ? AND respondent = ?`,
		surveyID, respondent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ResponseRecord{}, ErrNotFound
	}
	if err != nil {
		return ResponseRecord{}, errors.Wrap(err, "get response")
	}
	return row.record()
}

// SaveResponse upserts the full answers map. markCompleted finalizes the
// response; once completed, further saves are rejected.
func (s *Store) SaveResponse(ctx context.Context, slug, respondent string, answers map[string]any, markCompleted bool) error {
	current, err := s.EnsureResponse(ctx, slug, respondent)
	if err != nil {
		return err
	}
	if current.Status == StatusCompleted {
		return ErrCompleted
	}

	if answers == nil {
		answers = map[string]any{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return errors.Wrap(err, "encode answers")
	}

	now := time.Now().UTC()
	status := StatusInProgress
	var completedAt *time.Time
	if markCompleted {
		status = StatusCompleted
		completedAt = &now
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE response
		SET answers = ?, status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(data), status, completedAt, now, current.ID,
	)
	return errors.Wrap(err, "save response")
}

// ListResponses returns every response of a survey, newest first (admin).
func (s *Store) ListResponses(ctx context.Context, surveyID string) ([]ResponseRecord, error) {
	rows := []responseRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM response WHERE survey_id = ? ORDER BY updated_at DESC`,
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list responses")
	}
	out := make([]ResponseRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
