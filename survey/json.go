package survey

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// The JSON export/import format is the one durable external contract of
// this package: pretty-printed, version-tagged, field variants carried as a
// discriminated union on "type". Export then Parse must round-trip with
// zero semantic loss.

func (f TextField) MarshalJSON() ([]byte, error) {
	type alias TextField
	return json.Marshal(struct {
		Type FieldType `json:"type"`
		alias
	}{FieldText, alias(f)})
}

func (f RadioField) MarshalJSON() ([]byte, error) {
	type alias RadioField
	return json.Marshal(struct {
		Type FieldType `json:"type"`
		alias
	}{FieldRadio, alias(f)})
}

func (f CheckboxField) MarshalJSON() ([]byte, error) {
	type alias CheckboxField
	return json.Marshal(struct {
		Type FieldType `json:"type"`
		alias
	}{FieldCheckbox, alias(f)})
}

func (f RatingField) MarshalJSON() ([]byte, error) {
	type alias RatingField
	return json.Marshal(struct {
		Type FieldType `json:"type"`
		alias
	}{FieldRating, alias(f)})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string            `json:"id"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Fields      []json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.ID = raw.ID
	s.Title = raw.Title
	s.Description = raw.Description
	s.Fields = nil
	for _, rf := range raw.Fields {
		f, err := unmarshalField(rf)
		if err != nil {
			return err
		}
		s.Fields = append(s.Fields, f)
	}
	return nil
}

// unmarshalField dispatches on the "type" tag. Unknown tags are a hard
// validation failure, never coerced.
func unmarshalField(data []byte) (Field, error) {
	var probe struct {
		Type FieldType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case FieldText:
		var f TextField
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FieldRadio:
		var f RadioField
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FieldCheckbox:
		var f CheckboxField
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FieldRating:
		var f RatingField
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, &ValidationError{fmt.Sprintf("unknown field type %q", string(probe.Type))}
	}
}

// Parse decodes and validates untrusted survey JSON. The version literal is
// checked before anything else so future formats fail with a clear message
// instead of a decode error deep inside an unknown field shape.
func Parse(data []byte) (Survey, error) {
	var versionProbe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &versionProbe); err != nil {
		return Survey{}, &ValidationError{"invalid JSON"}
	}
	if versionProbe.Version == nil || *versionProbe.Version != Version {
		return Survey{}, &ValidationError{fmt.Sprintf("version must be %d", Version)}
	}

	var s Survey
	if err := json.Unmarshal(data, &s); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return Survey{}, vErr
		}
		return Survey{}, &ValidationError{"invalid JSON"}
	}
	if err := Validate(s); err != nil {
		return Survey{}, err
	}
	return s, nil
}

// Export serializes a document to the interchange format.
func Export(s Survey) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
