package survey

import "fmt"

// ValidationError names the first violated constraint of a document. It is
// always recoverable: callers turn it into a status message and keep their
// previous state.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{fmt.Sprintf(format, args...)}
}

// Validate checks an in-memory document against the format rules, reporting
// the first violation in priority order: version, steps cardinality, field
// variant constraints in document order.
func Validate(s Survey) error {
	if s.Version != Version {
		return invalidf("version must be %d", Version)
	}
	if s.ID == "" {
		return invalidf("survey id must not be empty")
	}
	if len(s.Steps) < 1 {
		return invalidf("steps must contain at least 1 step")
	}
	for _, st := range s.Steps {
		if st.ID == "" {
			return invalidf("step id must not be empty")
		}
		for _, f := range st.Fields {
			if err := validateField(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateField(f Field) error {
	if f.Base().ID == "" {
		return invalidf("field id must not be empty")
	}
	switch v := f.(type) {
	case TextField:
		return nil
	case RadioField:
		return validateOptions(v.Options)
	case CheckboxField:
		return validateOptions(v.Options)
	case RatingField:
		if v.Scale.Min >= v.Scale.Max {
			return invalidf("scale.min must be < scale.max")
		}
		return nil
	default:
		return invalidf("unknown field type %q", string(f.Type()))
	}
}

func validateOptions(opts []Option) error {
	if len(opts) < 1 {
		return invalidf("options must contain at least 1 option")
	}
	for _, o := range opts {
		if o.ID == "" {
			return invalidf("option id must not be empty")
		}
	}
	return nil
}
