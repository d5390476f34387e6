package evalctx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// segmentPattern matches one dotted segment: name, name[] or name[key].
var segmentPattern = regexp.MustCompile(`^([A-Za-z_$][A-Za-z0-9_$]*)(\[([A-Za-z0-9_$-]*)\])?$`)

// ErrEmptyPath is returned by ParsePath for an empty field path.
var ErrEmptyPath = errors.New("empty field path")

// Segment is one element of a field path.
type Segment struct {
	Name string
	// Iterate is set for name[]; the segment expands an array.
	Iterate bool
	// Key is the index or map key of name[key].
	Key    string
	HasKey bool
}

func (s Segment) String() string {
	switch {
	case s.Iterate:
		return s.Name + "[]"
	case s.HasKey:
		return s.Name + "[" + s.Key + "]"
	default:
		return s.Name
	}
}

// Path is a parsed field path such as medicalDisclosures[].conditionName.
type Path []Segment

// ParsePath parses a dotted field path.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyPath
	}
	parts := strings.Split(raw, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		m := segmentPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid path segment %q in %q", part, raw)
		}
		seg := Segment{Name: m[1]}
		if m[2] != "" {
			if m[3] == "" {
				seg.Iterate = true
			} else {
				seg.Key = m[3]
				seg.HasKey = true
			}
		}
		path = append(path, seg)
	}
	return path, nil
}

// ValidPath reports whether raw follows the field path grammar.
func ValidPath(raw string) bool {
	_, err := ParsePath(raw)
	return err == nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// SplitIterate splits the path at its first name[] segment. prefix addresses
// the array itself and rest is resolved against each element. ok is false
// when the path has no iterating segment.
func (p Path) SplitIterate() (prefix Path, rest Path, ok bool) {
	for i, s := range p {
		if s.Iterate {
			prefix = make(Path, i+1)
			copy(prefix, p[:i+1])
			prefix[i] = Segment{Name: s.Name}
			return prefix, p[i+1:], true
		}
	}
	return p, nil, false
}

// Lookup resolves the path against root. Iterating segments are treated as
// plain names here; expansion is the evaluator's job. The boolean is false
// when any segment cannot be resolved.
func (p Path) Lookup(root any) (any, bool) {
	current := root
	for _, seg := range p {
		next, ok := field(current, seg.Name)
		if !ok {
			return nil, false
		}
		if seg.HasKey {
			next, ok = index(next, seg.Key)
			if !ok {
				return nil, false
			}
		}
		current = next
	}
	return current, true
}

// Resolve parses raw and looks it up against root. Unparseable paths resolve
// to absent.
func Resolve(root any, raw string) (any, bool) {
	path, err := ParsePath(raw)
	if err != nil {
		return nil, false
	}
	return path.Lookup(root)
}

func field(v any, name string) (any, bool) {
	switch m := v.(type) {
	case Context:
		val, ok := m[name]
		return val, ok
	case map[string]any:
		val, ok := m[name]
		return val, ok
	default:
		return nil, false
	}
}

func index(v any, key string) (any, bool) {
	switch c := v.(type) {
	case []any:
		i, err := cast.ToIntE(key)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	case []map[string]any:
		i, err := cast.ToIntE(key)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	default:
		return field(v, key)
	}
}

// Elements returns v as a slice of elements when it is an array.
func Elements(v any) ([]any, bool) {
	switch c := v.(type) {
	case []any:
		return c, true
	case []map[string]any:
		out := make([]any, len(c))
		for i := range c {
			out[i] = c[i]
		}
		return out, true
	case []string:
		out := make([]any, len(c))
		for i := range c {
			out[i] = c[i]
		}
		return out, true
	default:
		return nil, false
	}
}
