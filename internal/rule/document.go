package rule

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InitialVersion is the version of a document that was never written.
const InitialVersion = "1.0.0"

// Document is the persisted rule set of one category.
type Document struct {
	Category     Category
	Version      string
	LastModified time.Time
	Rules        []Rule
}

// NewDocument returns the empty first-run document of a category.
func NewDocument(category Category) Document {
	return Document{
		Category: category,
		Version:  InitialVersion,
		Rules:    []Rule{},
	}
}

// wireDocument is the on-disk shape. Test protocol documents carry their
// rules under "protocols", every other category under "rules".
type wireDocument struct {
	Version      string     `json:"version" yaml:"version"`
	LastModified *time.Time `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	Rules        *[]Rule    `json:"rules,omitempty" yaml:"rules,omitempty"`
	Protocols    *[]Rule    `json:"protocols,omitempty" yaml:"protocols,omitempty"`
}

func (d Document) wire() wireDocument {
	rules := d.Rules
	if rules == nil {
		rules = []Rule{}
	}
	w := wireDocument{Version: d.Version}
	if !d.LastModified.IsZero() {
		lm := d.LastModified
		w.LastModified = &lm
	}
	if d.Category == CategoryTestProtocol {
		w.Protocols = &rules
	} else {
		w.Rules = &rules
	}
	return w
}

func (d *Document) fromWire(w wireDocument) {
	d.Version = w.Version
	d.LastModified = time.Time{}
	if w.LastModified != nil {
		d.LastModified = *w.LastModified
	}
	d.Rules = nil
	switch {
	case w.Protocols != nil:
		d.Rules = *w.Protocols
		if d.Category == "" {
			d.Category = CategoryTestProtocol
		}
	case w.Rules != nil:
		d.Rules = *w.Rules
	}
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.wire())
}

// UnmarshalJSON implements json.Unmarshaler. Either rules key is accepted.
// A document without any rules key decodes with nil Rules, which lets
// importers tell an absent list from an empty one.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.fromWire(w)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Document) MarshalYAML() (any, error) {
	return d.wire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	var w wireDocument
	if err := node.Decode(&w); err != nil {
		return err
	}
	d.fromWire(w)
	return nil
}

// Index returns the position of the rule with the given id, or -1.
func (d Document) Index(id string) int {
	return slices.IndexFunc(d.Rules, func(r Rule) bool { return r.ID == id })
}

// Enabled returns the enabled rules ordered by descending priority. Rules of
// equal priority keep their document order.
func (d Document) Enabled() []Rule {
	out := make([]Rule, 0, len(d.Rules))
	for _, r := range d.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	SortByPriority(out)
	return out
}

// SortByPriority sorts rules by descending priority, keeping the relative
// order of rules with equal priority.
func SortByPriority(rules []Rule) {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		return b.Priority - a.Priority
	})
}

// BumpPatch increments the patch component of a MAJOR.MINOR.PATCH version.
// Versions that do not parse are treated as InitialVersion.
func BumpPatch(version string) string {
	major, minor, patch, err := parseVersion(version)
	if err != nil {
		major, minor, patch = 1, 0, 0
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch+1)
}

func parseVersion(version string) (major, minor, patch int, err error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(version), "v"), ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version %q: expected MAJOR.MINOR.PATCH", version)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("version %q: invalid component %q", version, p)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
