package agenda

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"

	"github.com/soren-n/tickle/internal/tickleerrors"
)

// Load reads and decodes the source agenda at path. YAML is first parsed
// into a generic document, then strictly decoded into Source via
// mapstructure so that unknown keys and type mismatches surface as
// SchemaError rather than silently zero-valued fields; a pass of
// required-field validation then checks that every task defines its
// mandatory fields.
func Load(path string) (*Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agenda %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &tickleerrors.SchemaError{Path: path, Reason: err.Error()}
	}

	var src Source
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &src,
	})
	if err != nil {
		return nil, fmt.Errorf("building agenda decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, &tickleerrors.SchemaError{Path: path, Reason: err.Error()}
	}

	if err := validateSource(&src); err != nil {
		return nil, &tickleerrors.SchemaError{Path: path, Reason: err.Error()}
	}

	return &src, nil
}

// Store serializes src back to YAML at path.
func Store(path string, src *Source) error {
	raw, err := yaml.Marshal(src)
	if err != nil {
		return fmt.Errorf("encoding agenda: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing agenda %s: %w", path, err)
	}
	return nil
}

func validateSource(src *Source) error {
	for i, task := range src.Tasks {
		if task.Proc == "" {
			return fmt.Errorf("task %d: missing required field proc", i)
		}
		if len(task.Flows) == 0 {
			return fmt.Errorf("task %d (%s): must list at least one flow", i, task.Desc)
		}
	}
	return nil
}
