package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/survey"
)

// FieldQuestion is one respondent question against a single field, with an
// optional admin answer. Its lifecycle is independent of any response.
type FieldQuestion struct {
	ID         string     `db:"id" json:"id"`
	SurveyID   string     `db:"survey_id" json:"survey_id"`
	FieldID    string     `db:"field_id" json:"field_id"`
	Question   string     `db:"question" json:"question"`
	AskedAt    time.Time  `db:"asked_at" json:"asked_at"`
	Answer     *string    `db:"answer" json:"answer,omitempty"`
	AnsweredAt *time.Time `db:"answered_at" json:"answered_at,omitempty"`
}

// AskQuestion files a respondent question against a field of a published
// survey. The field must exist in the current definition.
func (s *Store) AskQuestion(ctx context.Context, slug, fieldID, question string) (FieldQuestion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return FieldQuestion{}, ErrQuestionRequired
	}

	rec, err := s.GetPublicSurvey(ctx, slug)
	if err != nil {
		return FieldQuestion{}, err
	}
	doc, err := rec.Parse()
	if err != nil {
		return FieldQuestion{}, errors.Wrap(err, "decode definition")
	}
	if _, ok := survey.FindField(doc, fieldID); !ok {
		return FieldQuestion{}, ErrNotFound
	}

	q := FieldQuestion{
		ID:       survey.NewID(),
		SurveyID: rec.ID,
		FieldID:  fieldID,
		Question: question,
		AskedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_question (id, survey_id, field_id, question, asked_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.SurveyID, q.FieldID, q.Question, q.AskedAt,
	)
	if err != nil {
		return FieldQuestion{}, errors.Wrap(err, "insert question")
	}
	return q, nil
}

// ListQuestions returns a field's thread, oldest first.
func (s *Store) ListQuestions(ctx context.Context, slug, fieldID string) ([]FieldQuestion, error) {
	rec, err := s.GetPublicSurvey(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := []FieldQuestion{}
	err = s.db.SelectContext(ctx, &out, `
		SELECT * FROM field_question
		WHERE survey_id = ? AND field_id = ?
		ORDER BY asked_at ASC`,
		rec.ID, fieldID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	return out, nil
}

// ListSurveyQuestions returns every question of a survey for the admin
// inbox, unanswered first.
func (s *Store) ListSurveyQuestions(ctx context.Context, surveyID string) ([]FieldQuestion, error) {
	out := []FieldQuestion{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM field_question
		WHERE survey_id = ?
		ORDER BY (answer IS NULL) DESC, asked_at ASC`,
		surveyID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list survey questions")
	}
	return out, nil
}

// AnswerQuestion records the admin answer and its timestamp.
func (s *Store) AnswerQuestion(ctx context.Context, questionID, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrAnswerRequired
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE field_question SET answer = ?, answered_at = ? WHERE id = ?`,
		answer, time.Now().UTC(), questionID,
	)
	if err != nil {
		return errors.Wrap(err, "answer question")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "answer question: rows affected")
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}
