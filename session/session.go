// Package session drives one respondent through a published survey: it
// hydrates saved answers, autosaves edits with a debounce, gates submission
// on required fields and carries the per-field question thread.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/debounce"
	"github.com/dtlabs/stepform/draft"
	"github.com/dtlabs/stepform/survey"
)

// Backend is the remote side of a session. Respondent identity is the
// implementation's business: the session never sees a token.
type Backend interface {
	GetSurvey(ctx context.Context, slug string) (survey.Survey, error)
	EnsureResponse(ctx context.Context, slug string) (ResponseState, error)
	GetResponse(ctx context.Context, slug string) (ResponseState, error)
	SaveResponse(ctx context.Context, slug string, answers map[string]any, markCompleted bool) error
	AskQuestion(ctx context.Context, slug, fieldID, question string) (Question, error)
	ListQuestions(ctx context.Context, slug, fieldID string) ([]Question, error)
}

type ResponseState struct {
	ResponseID string         `json:"response_id"`
	Answers    map[string]any `json:"answers"`
	Status     string         `json:"status"`
}

type Question struct {
	ID         string     `json:"id"`
	FieldID    string     `json:"field_id"`
	Question   string     `json:"question"`
	AskedAt    time.Time  `json:"asked_at"`
	Answer     *string    `json:"answer,omitempty"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateSubmitted    State = "submitted"
	StateError        State = "error"
)

const statusCompleted = "completed"

const (
	autosaveDelay   = 700 * time.Millisecond
	autosaveMaxWait = 5 * time.Second

	// How many missing field titles the submit error spells out before
	// collapsing the rest into a count.
	requiredListCap = 8

	responseCacheKey = "response_v1"
	answersCacheKey  = "answers_v1"
)

// RequiredError lists the required fields still unanswered at submit time,
// in document order.
type RequiredError struct {
	Missing []string
}

func (e *RequiredError) Error() string {
	listed := e.Missing
	extra := 0
	if len(listed) > requiredListCap {
		extra = len(listed) - requiredListCap
		listed = listed[:requiredListCap]
	}
	msg := "please fill the required fields: " + strings.Join(listed, ", ")
	if extra > 0 {
		msg += fmt.Sprintf(" (+%d more)", extra)
	}
	return msg
}

type cachedIdentity struct {
	ResponseID string `json:"response_id"`
}

type Session struct {
	slug    string
	backend Backend
	cache   *draft.Store

	mu           sync.Mutex
	state        State
	lastErr      string
	doc          survey.Survey
	answers      map[string]any
	responseID   string
	hydrated     bool
	step         int
	adminAnswers map[string]string

	save      *debounce.Debouncer
	saveDelay time.Duration
	saveMax   time.Duration

	// saveMu serializes remote writes so a debounced autosave can never
	// interleave with the final submit.
	saveMu sync.Mutex
}

func New(backend Backend, cache *draft.Store, slug string) *Session {
	s := &Session{
		slug:         slug,
		backend:      backend,
		cache:        cache,
		state:        StateInitializing,
		answers:      map[string]any{},
		adminAnswers: map[string]string{},
		saveDelay:    autosaveDelay,
		saveMax:      autosaveMaxWait,
	}
	s.save = debounce.New(s.saveDelay, s.saveMax)
	return s
}

// Start hydrates the session. Locally cached answers appear immediately;
// once the server copy arrives it overwrites them, so the cache only papers
// over the gap before hydration. Start may be called again after a failure.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	var cached map[string]any
	if s.cache.LoadJSON(draft.Key(answersCacheKey, s.slug), &cached) && cached != nil {
		s.answers = cached
	}
	var ident cachedIdentity
	if s.cache.LoadJSON(draft.Key(responseCacheKey, s.slug), &ident) {
		s.responseID = ident.ResponseID
	}
	s.mu.Unlock()

	doc, err := s.backend.GetSurvey(ctx, s.slug)
	if err != nil {
		return s.fail("load survey", err)
	}

	st, err := s.backend.EnsureResponse(ctx, s.slug)
	if err != nil {
		return s.fail("create response", err)
	}

	remote, remoteErr := s.backend.GetResponse(ctx, s.slug)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.responseID = st.ResponseID
	s.cache.SaveJSON(draft.Key(responseCacheKey, s.slug), cachedIdentity{st.ResponseID})

	if remoteErr == nil {
		st = remote
		if remote.Answers != nil {
			s.answers = remote.Answers
		}
	}
	s.hydrated = true
	s.mirrorAnswersLocked()

	if st.Status == statusCompleted {
		s.state = StateSubmitted
	} else {
		s.state = StateActive
	}
	s.lastErr = ""
	return nil
}

func (s *Session) fail(op string, err error) error {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err.Error()
	s.mu.Unlock()
	return errors.Wrap(err, op)
}

// SetAnswer records a field value and schedules an autosave. After
// submission the session is sealed and edits are dropped.
func (s *Session) SetAnswer(fieldID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitted {
		return
	}
	if s.state == StateError {
		s.state = StateActive
		s.lastErr = ""
	}

	s.answers[fieldID] = value
	s.mirrorAnswersLocked()
	s.save.Trigger(s.autosave)
}

func (s *Session) mirrorAnswersLocked() {
	if !s.hydrated {
		return
	}
	s.cache.SaveJSON(draft.Key(answersCacheKey, s.slug), s.answers)
}

func (s *Session) autosave() {
	s.mu.Lock()
	if s.state == StateSubmitted {
		s.mu.Unlock()
		return
	}
	snapshot := s.answersCopyLocked()
	s.mu.Unlock()

	s.saveMu.Lock()
	err := s.backend.SaveResponse(context.Background(), s.slug, snapshot, false)
	s.saveMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.state == StateActive {
			s.state = StateError
			s.lastErr = err.Error()
		}
		return
	}
	if s.state == StateError {
		s.state = StateActive
		s.lastErr = ""
	}
}

// Flush forces any pending autosave to run now.
func (s *Session) Flush() {
	s.save.Flush()
}

// Submit runs the required-field gate, then seals the response. A pending
// autosave is cancelled first so nothing can land after the final write.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateSubmitted {
		s.mu.Unlock()
		return nil
	}
	if missing := s.missingRequiredLocked(); len(missing) > 0 {
		s.mu.Unlock()
		return &RequiredError{Missing: missing}
	}
	snapshot := s.answersCopyLocked()
	s.mu.Unlock()

	s.save.Stop()

	s.saveMu.Lock()
	err := s.backend.SaveResponse(ctx, s.slug, snapshot, true)
	s.saveMu.Unlock()
	if err != nil {
		s.mu.Lock()
		s.save = debounce.New(s.saveDelay, s.saveMax)
		s.mu.Unlock()
		return s.fail("submit", err)
	}

	s.mu.Lock()
	s.state = StateSubmitted
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}

func (s *Session) missingRequiredLocked() (missing []string) {
	for _, st := range s.doc.Steps {
		for _, f := range st.Fields {
			base := f.Base()
			if !base.Required {
				continue
			}
			if answerFilled(f, s.answers[base.ID]) {
				continue
			}
			title := base.Title
			if title == "" {
				title = "Untitled field"
			}
			missing = append(missing, title)
		}
	}
	return
}

// answerFilled decides, per field variant, whether a stored value counts as
// an answer for the required gate.
func answerFilled(f survey.Field, v any) bool {
	if v == nil {
		return false
	}
	switch f := f.(type) {
	case survey.TextField, survey.RadioField:
		s, ok := v.(string)
		return ok && strings.TrimSpace(s) != ""
	case survey.CheckboxField:
		switch vs := v.(type) {
		case []any:
			return len(vs) > 0
		case []string:
			return len(vs) > 0
		}
		return false
	case survey.RatingField:
		n, ok := asNumber(v)
		return ok && n >= float64(f.Scale.Min) && n <= float64(f.Scale.Max)
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// AskQuestion files a question against a field and returns the stored row.
func (s *Session) AskQuestion(ctx context.Context, fieldID, text string) (Question, error) {
	return s.backend.AskQuestion(ctx, s.slug, fieldID, text)
}

// Questions returns a field's thread, oldest first.
func (s *Session) Questions(ctx context.Context, fieldID string) ([]Question, error) {
	return s.backend.ListQuestions(ctx, s.slug, fieldID)
}

// RefreshAdminAnswers reloads the latest admin answer for every field of the
// current step.
func (s *Session) RefreshAdminAnswers(ctx context.Context) error {
	s.mu.Lock()
	var fields []string
	if s.step < len(s.doc.Steps) {
		for _, f := range s.doc.Steps[s.step].Fields {
			fields = append(fields, f.Base().ID)
		}
	}
	s.mu.Unlock()

	latest := map[string]string{}
	for _, fieldID := range fields {
		questions, err := s.backend.ListQuestions(ctx, s.slug, fieldID)
		if err != nil {
			return errors.Wrap(err, "list questions")
		}
		var last *Question
		for i := range questions {
			q := &questions[i]
			if q.Answer == nil || q.AnsweredAt == nil {
				continue
			}
			if last == nil || q.AnsweredAt.After(*last.AnsweredAt) {
				last = q
			}
		}
		if last != nil {
			latest[fieldID] = *last.Answer
		}
	}

	s.mu.Lock()
	for fieldID, answer := range latest {
		s.adminAnswers[fieldID] = answer
	}
	s.mu.Unlock()
	return nil
}

// AdminAnswer returns the latest known admin answer for a field.
func (s *Session) AdminAnswer(fieldID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer, ok := s.adminAnswers[fieldID]
	return answer, ok
}

func (s *Session) NextStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step < len(s.doc.Steps)-1 {
		s.step++
	}
}

func (s *Session) PrevStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > 0 {
		s.step--
	}
}

func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Progress counts answered fields against the document total.
func (s *Session) Progress() (answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.doc.Steps {
		for _, f := range st.Fields {
			total++
			if answerFilled(f, s.answers[f.Base().ID]) {
				answered++
			}
		}
	}
	return
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Survey() survey.Survey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return survey.Clone(s.doc)
}

func (s *Session) ResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseID
}

func (s *Session) Answers() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answersCopyLocked()
}

func (s *Session) answersCopyLocked() map[string]any {
	out := make(map[string]any, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Close cancels any pending autosave. The local cache keeps the latest
// answers, so nothing is lost for the next visit.
func (s *Session) Close() {
	s.save.Stop()
}
