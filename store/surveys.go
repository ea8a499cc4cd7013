package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/survey"
)

// UpsertDraft validates the definition and inserts or updates the survey
// row. This is the point at which a draft becomes addressable: the returned
// id is the durable identifier.
func (s *Store) UpsertDraft(ctx context.Context, id, title, description string, definition survey.Survey) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if err := survey.Validate(definition); err != nil {
		return "", err
	}
	data, err := survey.Export(definition)
	if err != nil {
		return "", errors.Wrap(err, "encode definition")
	}

	now := time.Now().UTC()
	if id == "" {
		id = survey.NewID()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO survey (id, title, description, definition, visibility, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, title, description, string(data), VisibilityPrivate, now, now,
		)
		if err != nil {
			return "", errors.Wrap(err, "insert survey")
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE survey
		SET title = ?, description = ?, definition = ?, updated_at = ?
		WHERE id = ?`,
		title, description, string(data), now, id,
	)
	if err != nil {
		return "", errors.Wrap(err, "update survey")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrap(err, "update survey: rows affected")
	}
	if n < 1 {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (SurveyRecord, error) {
	var rec SurveyRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM survey WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SurveyRecord{}, ErrNotFound
	}
	if err != nil {
		return SurveyRecord{}, errors.Wrap(err, "get survey")
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]SurveyRecord, error) {
	recs := []SurveyRecord{}
	err := s.db.SelectContext(ctx, &recs, `SELECT * FROM survey ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list surveys")
	}
	return recs, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM survey WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete survey")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete survey: rows affected")
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}

// GetPublicSurvey resolves a published survey by slug. Private and
// unpublished surveys are not reachable this way.
func (s *Store) GetPublicSurvey(ctx context.Context, slug string) (SurveyRecord, error) {
	var rec SurveyRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT * FROM survey WHERE slug = ? AND visibility = ?`,
		slug, VisibilityPublic,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SurveyRecord{}, ErrNotFound
	}
	if err != nil {
		return SurveyRecord{}, errors.Wrap(err, "get public survey")
	}
	return rec, nil
}

// Publish flips a survey public. The slug is derived from the title exactly
// once; republishing an already-published survey keeps its slug and
// published timestamp. Slug, visibility and timestamp land in one UPDATE so
// publication never partially applies.
func (s *Store) Publish(ctx context.Context, id string) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var rec SurveyRecord
	err = tx.GetContext(ctx, &rec, `SELECT * FROM survey WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "get survey")
	}

	slug := ""
	if rec.Slug != nil && *rec.Slug != "" {
		slug = *rec.Slug
	} else {
		base := slugify(rec.Title)
		var existing []string
		err = tx.SelectContext(ctx, &existing, `
			SELECT slug FROM survey WHERE slug IS NOT NULL AND slug LIKE ?`,
			base+"%",
		)
		if err != nil {
			return "", errors.Wrap(err, "list slugs")
		}
		used := make(map[string]struct{}, len(existing))
		for _, s := range existing {
			used[s] = struct{}{}
		}
		slug = uniqueSlug(base, func(candidate string) bool {
			_, ok := used[candidate]
			return ok
		})
	}

	publishedAt := time.Now().UTC()
	if rec.PublishedAt != nil {
		publishedAt = *rec.PublishedAt
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE survey
		SET visibility = ?, slug = ?, published_at = ?, updated_at = ?
		WHERE id = ?`,
		VisibilityPublic, slug, publishedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return "", errors.Wrap(err, "publish survey")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit publish")
	}
	return slug, nil
}

// Unpublish makes a survey private again. The slug is retained so a later
// re-publish reuses it.
func (s *Store) Unpublish(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE survey SET visibility = ?, updated_at = ? WHERE id = ?`,
		VisibilityPrivate, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "unpublish survey")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "unpublish survey: rows affected")
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}
