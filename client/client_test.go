package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/app"
	"github.com/dtlabs/stepform/config"
	"github.com/dtlabs/stepform/database"
	"github.com/dtlabs/stepform/draft"
	"github.com/dtlabs/stepform/routes"
	"github.com/dtlabs/stepform/session"
	"github.com/dtlabs/stepform/store"
	"github.com/dtlabs/stepform/survey"
)

type testServer struct {
	url   string
	store *store.Store
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	cfg := config.Config{
		DBUrl:            filepath.Join(t.TempDir(), "test.sqlite"),
		TokenSecret:      "test-secret",
		RespondentSecret: "test-secret",
	}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open database: %s", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	srv := httptest.NewServer(routes.Wire(app.App{
		Store:  st,
		Config: cfg,
	}))
	t.Cleanup(srv.Close)
	return testServer{url: srv.URL, store: st}
}

func publishTestSurvey(t *testing.T, st *store.Store) (id, slug string) {
	t.Helper()
	doc := survey.Survey{
		Version: survey.Version,
		ID:      survey.NewID(),
		Steps: []survey.Step{{
			ID: survey.NewID(),
			Fields: []survey.Field{
				survey.TextField{FieldBase: survey.FieldBase{ID: "f_name", Title: "Your name", Required: true}},
			},
		}},
	}

	ctx := context.Background()
	id, err := st.UpsertDraft(ctx, "", "Pulse Check", "", doc)
	if err != nil {
		t.Fatal(err)
	}
	slug, err = st.Publish(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return id, slug
}

func TestGetSurvey(t *testing.T) {
	srv := newTestServer(t)
	_, slug := publishTestSurvey(t, srv.store)
	c := New(srv.url, draft.New(t.TempDir()))

	doc, err := c.GetSurvey(context.Background(), slug)
	if err != nil {
		t.Fatalf("get survey: %s", err)
	}
	if _, ok := survey.FindField(doc, "f_name"); !ok {
		t.Error("definition lost its field")
	}

	if _, err := c.GetSurvey(context.Background(), "no-such-slug"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown slug: got %v, want ErrNotFound", err)
	}
}

func TestRespondentIdentitySurvivesRestart(t *testing.T) {
	srv := newTestServer(t)
	_, slug := publishTestSurvey(t, srv.store)
	cacheDir := t.TempDir()
	ctx := context.Background()

	first, err := New(srv.url, draft.New(cacheDir)).EnsureResponse(ctx, slug)
	if err != nil {
		t.Fatalf("ensure: %s", err)
	}

	// fresh client, same cache: token replay maps onto the same row
	second, err := New(srv.url, draft.New(cacheDir)).EnsureResponse(ctx, slug)
	if err != nil {
		t.Fatal(err)
	}
	if first.ResponseID != second.ResponseID {
		t.Errorf("restart changed identity: %q != %q", first.ResponseID, second.ResponseID)
	}

	// empty cache means a new respondent
	other, err := New(srv.url, draft.New(t.TempDir())).EnsureResponse(ctx, slug)
	if err != nil {
		t.Fatal(err)
	}
	if other.ResponseID == first.ResponseID {
		t.Error("distinct respondents share a row")
	}
}

func TestSessionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id, slug := publishTestSurvey(t, srv.store)
	ctx := context.Background()

	cacheDir := t.TempDir()
	c := New(srv.url, draft.New(cacheDir))
	s := session.New(c, draft.New(cacheDir), slug)
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %s", err)
	}
	if s.State() != session.StateActive {
		t.Fatalf("state = %s", s.State())
	}

	s.SetAnswer("f_name", "Alice")
	s.Flush()

	responses, err := srv.store.ListResponses(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 || responses[0].Answers["f_name"] != "Alice" {
		t.Fatalf("autosave did not land: %+v", responses)
	}
	if responses[0].Status != store.StatusInProgress {
		t.Errorf("autosave completed the response: %+v", responses[0])
	}

	if err := s.Submit(ctx); err != nil {
		t.Fatalf("submit: %s", err)
	}
	responses, _ = srv.store.ListResponses(ctx, id)
	if responses[0].Status != store.StatusCompleted {
		t.Errorf("submit did not complete: %+v", responses[0])
	}

	// sealed server-side too
	if err := c.SaveResponse(ctx, slug, map[string]any{"f_name": "Eve"}, false); !errors.Is(err, ErrCompleted) {
		t.Errorf("save after completion: got %v, want ErrCompleted", err)
	}
}

func TestQuestionThreadOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, slug := publishTestSurvey(t, srv.store)
	ctx := context.Background()

	c := New(srv.url, draft.New(t.TempDir()))
	q, err := c.AskQuestion(ctx, slug, "f_name", "Nickname ok?")
	if err != nil {
		t.Fatalf("ask: %s", err)
	}

	if err := srv.store.AnswerQuestion(ctx, q.ID, "Sure"); err != nil {
		t.Fatal(err)
	}

	thread, err := c.ListQuestions(ctx, slug, "f_name")
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 1 || thread[0].Answer == nil || *thread[0].Answer != "Sure" {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	if _, err := c.AskQuestion(ctx, slug, "no-such-field", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown field: got %v, want ErrNotFound", err)
	}
}
