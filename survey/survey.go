package survey

// Version is the only survey document format version this engine accepts.
// Documents carrying any other version fail validation on import.
const Version = 1

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldRating   FieldType = "rating"
)

// KnownFieldTypes lists every variant of the closed field union, in
// declaration order.
var KnownFieldTypes = []FieldType{FieldText, FieldRadio, FieldCheckbox, FieldRating}

type Survey struct {
	Version     int    `json:"version"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

type Step struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Scale struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FieldBase carries the attributes common to every field variant.
type FieldBase struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Field is the closed sum of the four variants. Consumers must switch on
// the concrete type; the unexported marker keeps the set closed.
type Field interface {
	Type() FieldType
	Base() FieldBase
	clone() Field
	isField()
}

type TextField struct {
	FieldBase
	Placeholder string `json:"placeholder"`
}

type RadioField struct {
	FieldBase
	Options []Option `json:"options"`
}

type CheckboxField struct {
	FieldBase
	Options []Option `json:"options"`
}

type RatingField struct {
	FieldBase
	Scale Scale `json:"scale"`
}

func (f TextField) Type() FieldType     { return FieldText }
func (f RadioField) Type() FieldType    { return FieldRadio }
func (f CheckboxField) Type() FieldType { return FieldCheckbox }
func (f RatingField) Type() FieldType   { return FieldRating }

func (f TextField) Base() FieldBase     { return f.FieldBase }
func (f RadioField) Base() FieldBase    { return f.FieldBase }
func (f CheckboxField) Base() FieldBase { return f.FieldBase }
func (f RatingField) Base() FieldBase   { return f.FieldBase }

func (TextField) isField()     {}
func (RadioField) isField()    {}
func (CheckboxField) isField() {}
func (RatingField) isField()   {}

func (f TextField) clone() Field { return f }

func (f RadioField) clone() Field {
	f.Options = append([]Option(nil), f.Options...)
	return f
}

func (f CheckboxField) clone() Field {
	f.Options = append([]Option(nil), f.Options...)
	return f
}

func (f RatingField) clone() Field { return f }

// Clone returns a deep copy of the document, so callers can hand out
// snapshots without sharing mutable slices.
func Clone(s Survey) Survey {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		cs := st
		cs.Fields = make([]Field, len(st.Fields))
		for j, f := range st.Fields {
			cs.Fields[j] = f.clone()
		}
		out.Steps[i] = cs
	}
	return out
}

// FieldCount returns the total number of fields across all steps.
func FieldCount(s Survey) (n int) {
	for _, st := range s.Steps {
		n += len(st.Fields)
	}
	return n
}

// FindField locates a field by id anywhere in the document.
func FindField(s Survey, fieldID string) (Field, bool) {
	for _, st := range s.Steps {
		for _, f := range st.Fields {
			if f.Base().ID == fieldID {
				return f, true
			}
		}
	}
	return nil, false
}
