package tools

import (
	"encoding/json"
	"fmt"
	"math"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

// Validate checks a raw argument payload against the schema. Arguments are
// decoded once here, at the tool-call boundary, so every malformed payload
// fails with one consistent error shape before any handler runs.
func (s Schema) Validate(raw json.RawMessage) error {
	if s.Type != "object" {
		return nil
	}

	var args map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return chiselerrors.Wrap(err, chiselerrors.ErrCodeInvalidInput, "tool arguments are not a JSON object")
		}
	}

	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return chiselerrors.New(chiselerrors.ErrCodeInvalidInput,
				fmt.Sprintf("missing required argument %q", name))
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			// Unknown arguments are tolerated; models pad payloads.
			continue
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p Property) check(name string, value any) error {
	invalid := func(format string, args ...any) error {
		return chiselerrors.New(chiselerrors.ErrCodeInvalidInput, fmt.Sprintf(format, args...)).
			WithContext("argument", name)
	}

	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return invalid("argument %q must be a string", name)
		}
		if p.MinLength > 0 && len(s) < p.MinLength {
			return invalid("argument %q is shorter than %d characters", name, p.MinLength)
		}
		if p.MaxLength > 0 && len(s) > p.MaxLength {
			return invalid("argument %q is longer than %d characters", name, p.MaxLength)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return invalid("argument %q must be one of %v", name, p.Enum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return invalid("argument %q must be a boolean", name)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return invalid("argument %q must be an integer", name)
		}
		return p.checkBounds(name, f, invalid)
	case "number":
		f, ok := value.(float64)
		if !ok {
			return invalid("argument %q must be a number", name)
		}
		return p.checkBounds(name, f, invalid)
	case "array":
		items, ok := value.([]any)
		if !ok {
			return invalid("argument %q must be an array", name)
		}
		if p.MinItems > 0 && len(items) < p.MinItems {
			return invalid("argument %q needs at least %d items", name, p.MinItems)
		}
		if p.MaxItems > 0 && len(items) > p.MaxItems {
			return invalid("argument %q allows at most %d items", name, p.MaxItems)
		}
		if p.Items != nil {
			for _, item := range items {
				if err := p.Items.check(name, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p Property) checkBounds(name string, f float64, invalid func(string, ...any) error) error {
	if p.Minimum != nil && f < *p.Minimum {
		return invalid("argument %q is below minimum %v", name, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return invalid("argument %q is above maximum %v", name, *p.Maximum)
	}
	return nil
}
