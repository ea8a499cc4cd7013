// Package builder holds the in-memory authoring model for one survey
// document: ordered steps, typed fields, options, and the edit/preview
// cursors. Every mutation schedules a debounced write of the full document
// to the local draft store.
package builder

import (
	"fmt"
	"sync"
	"time"

	"github.com/dtlabs/stepform/debounce"
	"github.com/dtlabs/stepform/draft"
	"github.com/dtlabs/stepform/survey"
)

const (
	draftSaveDelay = 400 * time.Millisecond

	// Cap on how long continuous typing can postpone the draft write.
	draftSaveMaxWait = 5 * time.Second
)

// Builder owns one survey document. It is safe for use from a single
// session; the internal lock only guards against the debounced save
// goroutine.
type Builder struct {
	mu             sync.Mutex
	doc            survey.Survey
	currentStep    int
	previewStep    int
	previewAnswers map[string]any

	drafts *draft.Store
	save   *debounce.Debouncer
}

// New starts a builder from the cached draft when one exists, otherwise
// from a fresh single-step document.
func New(drafts *draft.Store) *Builder {
	b := &Builder{
		previewAnswers: map[string]any{},
		drafts:         drafts,
		save:           debounce.New(draftSaveDelay, draftSaveMaxWait),
	}
	if doc, ok := drafts.LoadSurvey(draft.SurveyDraftKey); ok {
		b.doc = doc
	} else {
		b.doc = DefaultSurvey()
	}
	return b
}

// DefaultSurvey is the empty document every authoring session starts from.
func DefaultSurvey() survey.Survey {
	return survey.Survey{
		Version: survey.Version,
		ID:      survey.NewID(),
		Steps: []survey.Step{
			{ID: survey.NewID(), Title: "Step 1"},
		},
	}
}

// defaultField constructs the variant-correct empty field for type.
func defaultField(t survey.FieldType) survey.Field {
	base := survey.FieldBase{ID: survey.NewID()}
	switch t {
	case survey.FieldText:
		return survey.TextField{FieldBase: base}
	case survey.FieldRating:
		return survey.RatingField{FieldBase: base, Scale: survey.Scale{Min: 1, Max: 5}}
	case survey.FieldCheckbox:
		return survey.CheckboxField{FieldBase: base, Options: []survey.Option{{ID: survey.NewID(), Label: "Option 1"}}}
	default:
		return survey.RadioField{FieldBase: base, Options: []survey.Option{{ID: survey.NewID(), Label: "Option 1"}}}
	}
}

// Close cancels any pending draft write. Must be called on teardown.
func (b *Builder) Close() { b.save.Stop() }

// FlushDraft writes any pending draft immediately.
func (b *Builder) FlushDraft() { b.save.Flush() }

func (b *Builder) scheduleSave() {
	b.save.Trigger(func() {
		b.mu.Lock()
		doc := survey.Clone(b.doc)
		b.mu.Unlock()
		b.drafts.SaveSurvey(draft.SurveyDraftKey, doc)
	})
}

// Survey returns a deep snapshot of the current document.
func (b *Builder) Survey() survey.Survey {
	b.mu.Lock()
	defer b.mu.Unlock()
	return survey.Clone(b.doc)
}

func clamp(idx, length int) int {
	if idx < 0 {
		return 0
	}
	if idx > length-1 {
		if length == 0 {
			return 0
		}
		return length - 1
	}
	return idx
}

func (b *Builder) clampCursors() {
	b.currentStep = clamp(b.currentStep, len(b.doc.Steps))
	b.previewStep = clamp(b.previewStep, len(b.doc.Steps))
}

// CurrentStep returns the edit cursor.
func (b *Builder) CurrentStep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStep
}

func (b *Builder) SetCurrentStep(idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentStep = clamp(idx, len(b.doc.Steps))
}

// PreviewStep returns the preview cursor.
func (b *Builder) PreviewStep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.previewStep
}

func (b *Builder) SetPreviewStep(idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previewStep = clamp(idx, len(b.doc.Steps))
}

// SetPreviewAnswer records an in-preview answer; preview answers never
// leave the builder.
func (b *Builder) SetPreviewAnswer(fieldID string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previewAnswers[fieldID] = value
}

func (b *Builder) PreviewAnswers() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, len(b.previewAnswers))
	for k, v := range b.previewAnswers {
		out[k] = v
	}
	return out
}

func (b *Builder) SetTitle(title string) {
	b.mu.Lock()
	b.doc.Title = title
	b.mu.Unlock()
	b.scheduleSave()
}

func (b *Builder) SetDescription(desc string) {
	b.mu.Lock()
	b.doc.Description = desc
	b.mu.Unlock()
	b.scheduleSave()
}

type StepPatch struct {
	Title       *string
	Description *string
}

func (b *Builder) UpdateStep(stepID string, patch StepPatch) {
	b.mu.Lock()
	for i := range b.doc.Steps {
		if b.doc.Steps[i].ID != stepID {
			continue
		}
		if patch.Title != nil {
			b.doc.Steps[i].Title = *patch.Title
		}
		if patch.Description != nil {
			b.doc.Steps[i].Description = *patch.Description
		}
	}
	b.mu.Unlock()
	b.scheduleSave()
}

// AddStep appends a step titled "Step N" and moves the edit cursor to it.
func (b *Builder) AddStep() {
	b.mu.Lock()
	b.doc.Steps = append(b.doc.Steps, survey.Step{
		ID:    survey.NewID(),
		Title: fmt.Sprintf("Step %d", len(b.doc.Steps)+1),
	})
	b.currentStep = len(b.doc.Steps) - 1
	b.mu.Unlock()
	b.scheduleSave()
}

// RemoveStep deletes a step. Removing the last remaining step is a silent
// no-op, not an error.
func (b *Builder) RemoveStep(stepID string) {
	b.mu.Lock()
	if len(b.doc.Steps) > 1 {
		kept := b.doc.Steps[:0:0]
		for _, st := range b.doc.Steps {
			if st.ID != stepID {
				kept = append(kept, st)
			}
		}
		if len(kept) > 0 {
			b.doc.Steps = kept
		}
		b.clampCursors()
	}
	b.mu.Unlock()
	b.scheduleSave()
}

// MoveStep swaps the step at index with its neighbour in direction dir
// (-1 up, +1 down). Out-of-bounds targets are a no-op. The edit cursor
// follows the step it was on.
func (b *Builder) MoveStep(index int, dir int) {
	b.mu.Lock()
	to := index + dir
	if index >= 0 && index < len(b.doc.Steps) && to >= 0 && to < len(b.doc.Steps) {
		b.doc.Steps[index], b.doc.Steps[to] = b.doc.Steps[to], b.doc.Steps[index]
		switch b.currentStep {
		case index:
			b.currentStep = to
		case to:
			b.currentStep = index
		}
	}
	b.mu.Unlock()
	b.scheduleSave()
}

func (b *Builder) stepIndex(stepID string) int {
	for i := range b.doc.Steps {
		if b.doc.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// AddField appends a variant-correct default field to the step.
func (b *Builder) AddField(stepID string, t survey.FieldType) {
	b.mu.Lock()
	if i := b.stepIndex(stepID); i >= 0 {
		b.doc.Steps[i].Fields = append(b.doc.Steps[i].Fields, defaultField(t))
	}
	b.mu.Unlock()
	b.scheduleSave()
}

// FieldPatch is a partial update scoped to a field's own variant shape.
// The type tag itself cannot change; unrelated variant attributes are
// ignored. Replacing a field's type means remove then add.
type FieldPatch struct {
	Title       *string
	Description *string
	Required    *bool
	Placeholder *string      // text fields only
	Scale       *survey.Scale // rating fields only
}

func patchBase(base survey.FieldBase, p FieldPatch) survey.FieldBase {
	if p.Title != nil {
		base.Title = *p.Title
	}
	if p.Description != nil {
		base.Description = *p.Description
	}
	if p.Required != nil {
		base.Required = *p.Required
	}
	return base
}

func applyFieldPatch(f survey.Field, p FieldPatch) survey.Field {
	switch v := f.(type) {
	case survey.TextField:
		v.FieldBase = patchBase(v.FieldBase, p)
		if p.Placeholder != nil {
			v.Placeholder = *p.Placeholder
		}
		return v
	case survey.RadioField:
		v.FieldBase = patchBase(v.FieldBase, p)
		return v
	case survey.CheckboxField:
		v.FieldBase = patchBase(v.FieldBase, p)
		return v
	case survey.RatingField:
		v.FieldBase = patchBase(v.FieldBase, p)
		if p.Scale != nil {
			v.Scale = *p.Scale
		}
		return v
	default:
		return f
	}
}

func (b *Builder) UpdateField(stepID, fieldID string, patch FieldPatch) {
	b.mu.Lock()
	if i := b.stepIndex(stepID); i >= 0 {
		fields := b.doc.Steps[i].Fields
		for j, f := range fields {
			if f.Base().ID == fieldID {
				fields[j] = applyFieldPatch(f, patch)
			}
		}
	}
	b.mu.Unlock()
	b.scheduleSave()
}

func (b *Builder) RemoveField(stepID, fieldID string) {
	b.mu.Lock()
	if i := b.stepIndex(stepID); i >= 0 {
		fields := b.doc.Steps[i].Fields
		kept := fields[:0:0]
		for _, f := range fields {
			if f.Base().ID != fieldID {
				kept = append(kept, f)
			}
		}
		b.doc.Steps[i].Fields = kept
	}
	b.mu.Unlock()
	b.scheduleSave()
}

// MoveField behaves like MoveStep, scoped to the owning step's field list.
func (b *Builder) MoveField(stepID string, index int, dir int) {
	b.mu.Lock()
	if i := b.stepIndex(stepID); i >= 0 {
		fields := b.doc.Steps[i].Fields
		to := index + dir
		if index >= 0 && index < len(fields) && to >= 0 && to < len(fields) {
			fields[index], fields[to] = fields[to], fields[index]
		}
	}
	b.mu.Unlock()
	b.scheduleSave()
}

func (b *Builder) withOptions(stepID, fieldID string, fn func(opts []survey.Option) []survey.Option) {
	i := b.stepIndex(stepID)
	if i < 0 {
		return
	}
	fields := b.doc.Steps[i].Fields
	for j, f := range fields {
		if f.Base().ID != fieldID {
			continue
		}
		switch v := f.(type) {
		case survey.RadioField:
			v.Options = fn(v.Options)
			fields[j] = v
		case survey.CheckboxField:
			v.Options = fn(v.Options)
			fields[j] = v
		}
	}
}

// AddOption appends "Option N" to a radio or checkbox field.
func (b *Builder) AddOption(stepID, fieldID string) {
	b.mu.Lock()
	b.withOptions(stepID, fieldID, func(opts []survey.Option) []survey.Option {
		return append(opts, survey.Option{
			ID:    survey.NewID(),
			Label: fmt.Sprintf("Option %d", len(opts)+1),
		})
	})
	b.mu.Unlock()
	b.scheduleSave()
}

func (b *Builder) UpdateOption(stepID, fieldID, optionID, label string) {
	b.mu.Lock()
	b.withOptions(stepID, fieldID, func(opts []survey.Option) []survey.Option {
		for i := range opts {
			if opts[i].ID == optionID {
				opts[i].Label = label
			}
		}
		return opts
	})
	b.mu.Unlock()
	b.scheduleSave()
}

// RemoveOption deletes an option. The last remaining option of a field
// cannot be removed; that is a silent no-op.
func (b *Builder) RemoveOption(stepID, fieldID, optionID string) {
	b.mu.Lock()
	b.withOptions(stepID, fieldID, func(opts []survey.Option) []survey.Option {
		if len(opts) <= 1 {
			return opts
		}
		kept := opts[:0:0]
		for _, o := range opts {
			if o.ID != optionID {
				kept = append(kept, o)
			}
		}
		return kept
	})
	b.mu.Unlock()
	b.scheduleSave()
}

// Import replaces the whole document with validated JSON. On failure the
// current document is left untouched and the first violated rule is
// returned for display.
func (b *Builder) Import(data []byte) error {
	doc, err := survey.Parse(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.doc = doc
	b.currentStep = 0
	b.previewStep = 0
	b.previewAnswers = map[string]any{}
	b.mu.Unlock()
	b.scheduleSave()
	return nil
}

// Export serializes the current document to the interchange format.
func (b *Builder) Export() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return survey.Export(b.doc)
}

// Reset discards the cached draft and starts over from a fresh document.
func (b *Builder) Reset() {
	b.mu.Lock()
	b.doc = DefaultSurvey()
	b.currentStep = 0
	b.previewStep = 0
	b.previewAnswers = map[string]any{}
	b.mu.Unlock()
	b.drafts.Clear(draft.SurveyDraftKey)
}
