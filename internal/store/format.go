package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"underwriting/internal/rule"

	"gopkg.in/yaml.v3"
)

// Format is an export/import encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a format name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// FormatOf guesses the format of a file from its extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func encodeDocument(doc rule.Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON, "":
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// decodeDocument decodes an import payload, which must carry a version and
// a rule list.
func decodeDocument(category rule.Category, data []byte, format Format) (rule.Document, error) {
	doc := rule.Document{Category: category}
	if err := unmarshal(data, format, &doc); err != nil {
		return rule.Document{}, err
	}
	if strings.TrimSpace(doc.Version) == "" {
		return rule.Document{}, fmt.Errorf("%w: version is missing", ErrMalformedImport)
	}
	if doc.Rules == nil {
		return rule.Document{}, fmt.Errorf("%w: rule list is missing", ErrMalformedImport)
	}
	return doc, nil
}

// rawRules returns the rule list of an import payload as decoded values,
// before defaults of the rule types fill absent fields. The list key is
// picked the way rule.Document picks it.
func rawRules(data []byte, format Format) ([]any, error) {
	var w struct {
		Rules     *[]any `json:"rules" yaml:"rules"`
		Protocols *[]any `json:"protocols" yaml:"protocols"`
	}
	if err := unmarshal(data, format, &w); err != nil {
		return nil, err
	}
	switch {
	case w.Protocols != nil:
		return *w.Protocols, nil
	case w.Rules != nil:
		return *w.Rules, nil
	default:
		return nil, fmt.Errorf("%w: rule list is missing", ErrMalformedImport)
	}
}

func unmarshal(data []byte, format Format, v any) error {
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, v)
	case FormatJSON, "":
		err = json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported format %q: %w", format, ErrMalformedImport)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}
	return nil
}
