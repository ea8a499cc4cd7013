package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/config"
	"github.com/dtlabs/stepform/database"
	"github.com/dtlabs/stepform/survey"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.Config{DBUrl: filepath.Join(t.TempDir(), "test.sqlite")})
	if err != nil {
		t.Fatalf("open database: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testDoc() survey.Survey {
	return survey.Survey{
		Version: survey.Version,
		ID:      survey.NewID(),
		Steps: []survey.Step{{
			ID:    survey.NewID(),
			Title: "Step 1",
			Fields: []survey.Field{
				survey.TextField{FieldBase: survey.FieldBase{ID: "f_name", Title: "Name", Required: true}},
				survey.RatingField{
					FieldBase: survey.FieldBase{ID: "f_score", Title: "Score"},
					Scale:     survey.Scale{Min: 1, Max: 5},
				},
			},
		}},
	}
}

func TestUpsertDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDraft(ctx, "", "Team Onboarding", "about the team", testDoc())
	if err != nil {
		t.Fatalf("insert: %s", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	if rec.Title != "Team Onboarding" || rec.Visibility != VisibilityPrivate {
		t.Errorf("unexpected record: %+v", rec)
	}
	if _, err := rec.Parse(); err != nil {
		t.Errorf("stored definition does not parse: %s", err)
	}

	got, err := s.UpsertDraft(ctx, id, "Renamed", "", testDoc())
	if err != nil {
		t.Fatalf("update: %s", err)
	}
	if got != id {
		t.Errorf("update changed id: %q != %q", got, id)
	}
	rec, _ = s.Get(ctx, id)
	if rec.Title != "Renamed" {
		t.Errorf("title not updated: %q", rec.Title)
	}
}

func TestUpsertDraftRejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertDraft(ctx, "", "   ", "", testDoc()); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("blank title: got %v, want ErrTitleRequired", err)
	}

	empty := testDoc()
	empty.Steps = nil
	var vErr *survey.ValidationError
	if _, err := s.UpsertDraft(ctx, "", "Valid Title", "", empty); !errors.As(err, &vErr) {
		t.Errorf("invalid definition: got %v, want ValidationError", err)
	}

	if _, err := s.UpsertDraft(ctx, "nope", "Valid Title", "", testDoc()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestPublishLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDraft(ctx, "", "Team Onboarding!", "", testDoc())
	if err != nil {
		t.Fatal(err)
	}

	slug, err := s.Publish(ctx, id)
	if err != nil {
		t.Fatalf("publish: %s", err)
	}
	if slug != "team-onboarding" {
		t.Errorf("slug = %q, want team-onboarding", slug)
	}

	rec, err := s.GetPublicSurvey(ctx, slug)
	if err != nil {
		t.Fatalf("public lookup: %s", err)
	}
	if rec.PublishedAt == nil {
		t.Fatal("published_at not set")
	}
	publishedAt := *rec.PublishedAt

	// republish keeps slug and original timestamp
	time.Sleep(10 * time.Millisecond)
	again, err := s.Publish(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if again != slug {
		t.Errorf("republish changed slug: %q != %q", again, slug)
	}
	rec, _ = s.GetPublicSurvey(ctx, slug)
	if !rec.PublishedAt.Equal(publishedAt) {
		t.Errorf("republish changed published_at: %s != %s", rec.PublishedAt, publishedAt)
	}
}

func TestPublishResolvesSlugCollisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, want := range []string{"onboarding", "onboarding-2", "onboarding-3"} {
		id, err := s.UpsertDraft(ctx, "", "Onboarding", "", testDoc())
		if err != nil {
			t.Fatal(err)
		}
		slug, err := s.Publish(ctx, id)
		if err != nil {
			t.Fatalf("publish #%d: %s", i+1, err)
		}
		if slug != want {
			t.Errorf("publish #%d: slug = %q, want %q", i+1, slug, want)
		}
	}
}

func TestUnpublishRetainsSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.UpsertDraft(ctx, "", "Pulse Check", "", testDoc())
	slug, _ := s.Publish(ctx, id)

	if err := s.Unpublish(ctx, id); err != nil {
		t.Fatalf("unpublish: %s", err)
	}
	if _, err := s.GetPublicSurvey(ctx, slug); !errors.Is(err, ErrNotFound) {
		t.Errorf("unpublished survey still public: %v", err)
	}

	rec, _ := s.Get(ctx, id)
	if rec.Slug == nil || *rec.Slug != slug {
		t.Error("slug not retained after unpublish")
	}

	again, err := s.Publish(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if again != slug {
		t.Errorf("republish after unpublish changed slug: %q != %q", again, slug)
	}
}

func TestEnsureResponseIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.UpsertDraft(ctx, "", "Pulse Check", "", testDoc())
	slug, _ := s.Publish(ctx, id)

	first, err := s.EnsureResponse(ctx, slug, "alice")
	if err != nil {
		t.Fatalf("ensure: %s", err)
	}
	second, err := s.EnsureResponse(ctx, slug, "alice")
	if err != nil {
		t.Fatalf("ensure again: %s", err)
	}
	if first.ID != second.ID {
		t.Errorf("same respondent got two rows: %q != %q", first.ID, second.ID)
	}

	other, _ := s.EnsureResponse(ctx, slug, "bob")
	if other.ID == first.ID {
		t.Error("different respondents share a row")
	}

	if _, err := s.EnsureResponse(ctx, "no-such-slug", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown slug: got %v, want ErrNotFound", err)
	}
}

func TestSaveResponseCompletedGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.UpsertDraft(ctx, "", "Pulse Check", "", testDoc())
	slug, _ := s.Publish(ctx, id)

	answers := map[string]any{"f_name": "Alice", "f_score": 4}
	if err := s.SaveResponse(ctx, slug, "alice", answers, false); err != nil {
		t.Fatalf("save: %s", err)
	}
	rec, err := s.GetResponse(ctx, slug, "alice")
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	if rec.Answers["f_name"] != "Alice" || rec.Status != StatusInProgress {
		t.Errorf("unexpected response: %+v", rec)
	}

	if err := s.SaveResponse(ctx, slug, "alice", answers, true); err != nil {
		t.Fatalf("complete: %s", err)
	}
	rec, _ = s.GetResponse(ctx, slug, "alice")
	if rec.Status != StatusCompleted || rec.CompletedAt == nil {
		t.Errorf("not completed: %+v", rec)
	}

	err = s.SaveResponse(ctx, slug, "alice", answers, false)
	if !errors.Is(err, ErrCompleted) {
		t.Errorf("save after completion: got %v, want ErrCompleted", err)
	}
}

func TestQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.UpsertDraft(ctx, "", "Pulse Check", "", testDoc())
	slug, _ := s.Publish(ctx, id)

	if _, err := s.AskQuestion(ctx, slug, "f_name", "  "); !errors.Is(err, ErrQuestionRequired) {
		t.Errorf("blank question: got %v", err)
	}
	if _, err := s.AskQuestion(ctx, slug, "no-such-field", "hello?"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown field: got %v", err)
	}

	q1, err := s.AskQuestion(ctx, slug, "f_name", "Full name or nickname?")
	if err != nil {
		t.Fatalf("ask: %s", err)
	}
	q2, err := s.AskQuestion(ctx, slug, "f_name", "Middle name too?")
	if err != nil {
		t.Fatal(err)
	}

	thread, err := s.ListQuestions(ctx, slug, "f_name")
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 2 || thread[0].ID != q1.ID {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	if err := s.AnswerQuestion(ctx, q1.ID, "Either works"); err != nil {
		t.Fatalf("answer: %s", err)
	}
	if err := s.AnswerQuestion(ctx, "no-such-id", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown question: got %v", err)
	}
	if err := s.AnswerQuestion(ctx, q2.ID, "  "); !errors.Is(err, ErrAnswerRequired) {
		t.Errorf("blank answer: got %v", err)
	}

	// admin inbox: unanswered first
	inbox, err := s.ListSurveyQuestions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(inbox) != 2 || inbox[0].ID != q2.ID || inbox[0].Answer != nil {
		t.Fatalf("unexpected inbox order: %+v", inbox)
	}
	if inbox[1].Answer == nil || *inbox[1].Answer != "Either works" || inbox[1].AnsweredAt == nil {
		t.Errorf("answer not recorded: %+v", inbox[1])
	}
}
