// Package draft is the local, ephemeral cache for in-progress survey
// documents and respondent answers. It exists to survive restarts between
// authoritative saves and is never the system of record.
package draft

import (
	"os"
	"path/filepath"
	"regexp"

	json "github.com/goccy/go-json"

	"github.com/dtlabs/stepform/survey"
)

// SurveyDraftKey is the fixed key for the authoring draft.
const SurveyDraftKey = "survey_draft_v1"

var reUnsafeKey = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store persists small JSON blobs under named keys in a single directory.
// A Store created without a usable directory is disabled: every operation
// is a silent no-op, and loads report absent. That is a capability check,
// not an error path.
type Store struct {
	dir string
}

// New returns a store rooted at dir. An empty dir, or one that cannot be
// created, yields a disabled store.
func New(dir string) *Store {
	if dir == "" {
		return &Store{}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &Store{}
	}
	return &Store{dir: dir}
}

// Enabled reports whether the store has a usable backing directory.
func (s *Store) Enabled() bool { return s.dir != "" }

// Key derives a purpose-scoped cache key so multiple public surveys cached
// side by side do not collide, e.g. Key("answers_v1", slug).
func Key(purpose, slug string) string {
	return purpose + ":" + slug
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, reUnsafeKey.ReplaceAllString(key, "_")+".json")
}

// SaveSurvey caches a full survey document under key.
func (s *Store) SaveSurvey(key string, doc survey.Survey) {
	if !s.Enabled() {
		return
	}
	data, err := survey.Export(doc)
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path(key), data, 0o600)
}

// LoadSurvey returns the cached document for key, or false when absent.
// A cached blob that fails validation is treated exactly like absent: a
// background cache hit must never surface a parse error.
func (s *Store) LoadSurvey(key string) (survey.Survey, bool) {
	if !s.Enabled() {
		return survey.Survey{}, false
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return survey.Survey{}, false
	}
	doc, err := survey.Parse(data)
	if err != nil {
		return survey.Survey{}, false
	}
	return doc, true
}

// SaveJSON caches an arbitrary value (session identity, answer maps).
func (s *Store) SaveJSON(key string, v any) {
	if !s.Enabled() {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path(key), data, 0o600)
}

// LoadJSON reads a cached value into out, reporting false when absent or
// unreadable.
func (s *Store) LoadJSON(key string, out any) bool {
	if !s.Enabled() {
		return false
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Clear removes the cached entry for key.
func (s *Store) Clear(key string) {
	if !s.Enabled() {
		return
	}
	_ = os.Remove(s.path(key))
}
