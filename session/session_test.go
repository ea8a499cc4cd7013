package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/debounce"
	"github.com/dtlabs/stepform/draft"
	"github.com/dtlabs/stepform/survey"
)

type savedCall struct {
	answers   map[string]any
	completed bool
}

type fakeBackend struct {
	mu        sync.Mutex
	doc       survey.Survey
	state     ResponseState
	saves     []savedCall
	ensures   int
	failSave  bool
	failGet   bool
	questions map[string][]Question
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		doc: survey.Survey{
			Version: survey.Version,
			ID:      "s1",
			Steps: []survey.Step{
				{
					ID: "st1",
					Fields: []survey.Field{
						survey.TextField{FieldBase: survey.FieldBase{ID: "f_name", Title: "Your name", Required: true}},
						survey.RatingField{
							FieldBase: survey.FieldBase{ID: "f_score", Title: "Score"},
							Scale:     survey.Scale{Min: 1, Max: 5},
						},
					},
				},
				{
					ID: "st2",
					Fields: []survey.Field{
						survey.CheckboxField{
							FieldBase: survey.FieldBase{ID: "f_tags", Title: "Topics"},
							Options:   []survey.Option{{ID: "o1", Label: "Go"}},
						},
					},
				},
			},
		},
		state: ResponseState{
			ResponseID: "r1",
			Answers:    map[string]any{},
			Status:     "in_progress",
		},
		questions: map[string][]Question{},
	}
}

func (b *fakeBackend) GetSurvey(ctx context.Context, slug string) (survey.Survey, error) {
	return b.doc, nil
}

func (b *fakeBackend) EnsureResponse(ctx context.Context, slug string) (ResponseState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensures++
	return b.state, nil
}

func (b *fakeBackend) GetResponse(ctx context.Context, slug string) (ResponseState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet {
		return ResponseState{}, errors.New("offline")
	}
	return b.state, nil
}

func (b *fakeBackend) SaveResponse(ctx context.Context, slug string, answers map[string]any, markCompleted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave {
		return errors.New("save failed")
	}
	if b.state.Status == "completed" {
		return errors.New("response already completed")
	}

	snapshot := make(map[string]any, len(answers))
	for k, v := range answers {
		snapshot[k] = v
	}
	b.saves = append(b.saves, savedCall{snapshot, markCompleted})
	b.state.Answers = snapshot
	if markCompleted {
		b.state.Status = "completed"
	}
	return nil
}

func (b *fakeBackend) AskQuestion(ctx context.Context, slug, fieldID, question string) (Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := Question{
		ID:       fmt.Sprintf("q%d", len(b.questions[fieldID])+1),
		FieldID:  fieldID,
		Question: question,
		AskedAt:  time.Now(),
	}
	b.questions[fieldID] = append(b.questions[fieldID], q)
	return q, nil
}

func (b *fakeBackend) ListQuestions(ctx context.Context, slug, fieldID string) ([]Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Question(nil), b.questions[fieldID]...), nil
}

func (b *fakeBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves)
}

func (b *fakeBackend) lastSave() savedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves[len(b.saves)-1]
}

func newTestSession(t *testing.T, b Backend, cache *draft.Store) *Session {
	t.Helper()
	s := New(b, cache, "pulse")
	s.saveDelay, s.saveMax = 10*time.Millisecond, 100*time.Millisecond
	s.save = debounce.New(s.saveDelay, s.saveMax)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartActivatesSession(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))

	if s.State() != StateInitializing {
		t.Fatalf("state before start: %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %s", err)
	}
	if s.State() != StateActive {
		t.Errorf("state = %s, want active", s.State())
	}
	if s.ResponseID() != "r1" {
		t.Errorf("response id = %q", s.ResponseID())
	}
	if b.ensures != 1 {
		t.Errorf("ensure calls = %d, want 1", b.ensures)
	}
}

func TestStartResumesCompletedResponse(t *testing.T) {
	b := newFakeBackend()
	b.state.Status = "completed"
	s := newTestSession(t, b, draft.New(t.TempDir()))

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateSubmitted {
		t.Errorf("state = %s, want submitted", s.State())
	}
}

func TestRemoteAnswersWinOverCache(t *testing.T) {
	cache := draft.New(t.TempDir())
	cache.SaveJSON(draft.Key(answersCacheKey, "pulse"), map[string]any{"f_name": "stale local"})

	b := newFakeBackend()
	b.state.Answers = map[string]any{"f_name": "fresh remote"}
	s := newTestSession(t, b, cache)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Answers()["f_name"]; got != "fresh remote" {
		t.Errorf("answer = %v, want remote copy", got)
	}
}

func TestCachedAnswersSurviveOfflineHydration(t *testing.T) {
	cache := draft.New(t.TempDir())
	cache.SaveJSON(draft.Key(answersCacheKey, "pulse"), map[string]any{"f_name": "cached"})

	b := newFakeBackend()
	b.failGet = true
	s := newTestSession(t, b, cache)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Answers()["f_name"]; got != "cached" {
		t.Errorf("answer = %v, want cached copy", got)
	}
}

func TestAutosaveCoalescesBursts(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetAnswer("f_name", "A")
	s.SetAnswer("f_name", "Al")
	s.SetAnswer("f_name", "Alice")

	waitFor(t, "autosave", func() bool { return b.saveCount() > 0 })
	time.Sleep(50 * time.Millisecond)

	if n := b.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
	last := b.lastSave()
	if last.answers["f_name"] != "Alice" || last.completed {
		t.Errorf("unexpected save: %+v", last)
	}
}

func TestAutosaveMirrorsLocalCache(t *testing.T) {
	cache := draft.New(t.TempDir())
	b := newFakeBackend()
	s := newTestSession(t, b, cache)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetAnswer("f_score", 4)

	var cached map[string]any
	if !cache.LoadJSON(draft.Key(answersCacheKey, "pulse"), &cached) {
		t.Fatal("answers not mirrored to cache")
	}
	if cached["f_score"] != float64(4) {
		t.Errorf("cached answers = %v", cached)
	}
}

func TestAutosaveFailureIsRecoverable(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	b.failSave = true
	b.mu.Unlock()
	s.SetAnswer("f_name", "Alice")
	waitFor(t, "error state", func() bool { return s.State() == StateError })
	if s.LastError() == "" {
		t.Error("expected an error message")
	}

	b.mu.Lock()
	b.failSave = false
	b.mu.Unlock()
	s.SetAnswer("f_name", "Alice B")
	if s.State() != StateActive {
		t.Errorf("edit did not clear error state: %s", s.State())
	}
	waitFor(t, "successful save", func() bool { return b.saveCount() > 0 })
}

func TestSubmitBlocksOnMissingRequired(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := s.Submit(context.Background())
	var reqErr *RequiredError
	if !errors.As(err, &reqErr) {
		t.Fatalf("submit: got %v, want RequiredError", err)
	}
	if !strings.Contains(reqErr.Error(), "Your name") {
		t.Errorf("message does not name the field: %q", reqErr.Error())
	}
	if s.State() != StateActive {
		t.Errorf("state = %s, want active", s.State())
	}
	if b.saveCount() != 0 {
		t.Error("blocked submit must not write")
	}
}

func TestRequiredErrorCapsListedTitles(t *testing.T) {
	missing := make([]string, 11)
	for i := range missing {
		missing[i] = fmt.Sprintf("Field %d", i+1)
	}
	msg := (&RequiredError{Missing: missing}).Error()

	if !strings.Contains(msg, "Field 8") || strings.Contains(msg, "Field 9") {
		t.Errorf("unexpected listing: %q", msg)
	}
	if !strings.Contains(msg, "(+3 more)") {
		t.Errorf("missing overflow count: %q", msg)
	}
}

func TestWhitespaceDoesNotSatisfyRequired(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetAnswer("f_name", "   ")
	var reqErr *RequiredError
	if err := s.Submit(context.Background()); !errors.As(err, &reqErr) {
		t.Errorf("whitespace answer passed the gate: %v", err)
	}
}

func TestSubmitSealsSession(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetAnswer("f_name", "Alice")
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %s", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state = %s, want submitted", s.State())
	}
	last := b.lastSave()
	if !last.completed || last.answers["f_name"] != "Alice" {
		t.Errorf("unexpected final save: %+v", last)
	}

	// sealed: edits are dropped, repeat submit is a no-op
	saves := b.saveCount()
	s.SetAnswer("f_name", "Eve")
	time.Sleep(150 * time.Millisecond)
	if b.saveCount() != saves {
		t.Error("edit after submit reached the backend")
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Errorf("repeat submit: %v", err)
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.SetAnswer("f_name", "Alice")

	b.mu.Lock()
	b.failSave = true
	b.mu.Unlock()
	if err := s.Submit(context.Background()); err == nil {
		t.Fatal("expected submit to fail")
	}
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}

	b.mu.Lock()
	b.failSave = false
	b.mu.Unlock()
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %s", err)
	}
	if s.State() != StateSubmitted {
		t.Errorf("state = %s, want submitted", s.State())
	}
}

func TestRatingAnswerMustBeInScale(t *testing.T) {
	doc := newFakeBackend().doc
	rating, _ := survey.FindField(doc, "f_score")

	if answerFilled(rating, 0) || answerFilled(rating, 6) {
		t.Error("out-of-scale rating counted as filled")
	}
	if !answerFilled(rating, 3) || !answerFilled(rating, float64(5)) {
		t.Error("in-scale rating not counted")
	}
}

func TestStepNavigationAndProgress(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.PrevStep()
	if s.Step() != 0 {
		t.Error("prev on first step moved")
	}
	s.NextStep()
	if s.Step() != 1 {
		t.Errorf("step = %d, want 1", s.Step())
	}
	s.NextStep()
	if s.Step() != 1 {
		t.Error("next on last step moved")
	}

	s.SetAnswer("f_name", "Alice")
	s.SetAnswer("f_tags", []any{"Go"})
	answered, total := s.Progress()
	if answered != 2 || total != 3 {
		t.Errorf("progress = %d/%d, want 2/3", answered, total)
	}
}

func TestAdminAnswersPickLatest(t *testing.T) {
	b := newFakeBackend()
	s := newTestSession(t, b, draft.New(t.TempDir()))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := s.AskQuestion(context.Background(), "f_name", "Nickname ok?"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AskQuestion(context.Background(), "f_name", "Initials?"); err != nil {
		t.Fatal(err)
	}

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	first, second := "Sure", "Full name please"
	b.mu.Lock()
	b.questions["f_name"][0].Answer = &first
	b.questions["f_name"][0].AnsweredAt = &older
	b.questions["f_name"][1].Answer = &second
	b.questions["f_name"][1].AnsweredAt = &newer
	b.mu.Unlock()

	if err := s.RefreshAdminAnswers(context.Background()); err != nil {
		t.Fatal(err)
	}
	answer, ok := s.AdminAnswer("f_name")
	if !ok || answer != second {
		t.Errorf("admin answer = %q, %v; want latest", answer, ok)
	}
	if _, ok := s.AdminAnswer("f_score"); ok {
		t.Error("unanswered field has an admin answer")
	}
}
