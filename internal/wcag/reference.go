// Package wcag holds the WCAG 2.2 success criterion reference data used for
// mapping validation and coverage reporting.
package wcag

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"bytemomo/narwhal/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed wcag22.yaml
var embedded []byte

var idPattern = regexp.MustCompile(`^[1-4]\.[0-9]+\.[0-9]+$`)

// Criterion is one WCAG success criterion.
type Criterion struct {
	ID        string       `yaml:"id" json:"id"`
	Title     string       `yaml:"title" json:"title"`
	Level     domain.Level `yaml:"level" json:"level"`
	Principle string       `yaml:"principle" json:"principle"`
}

// Guideline returns the guideline prefix of the criterion, e.g. "1.4" for 1.4.3.
func (c Criterion) Guideline() string {
	if i := strings.LastIndex(c.ID, "."); i > 0 {
		return c.ID[:i]
	}
	return c.ID
}

type document struct {
	Version  string      `yaml:"version"`
	Criteria []Criterion `yaml:"criteria"`
}

// Reference is an immutable, validated set of success criteria.
type Reference struct {
	version string
	ordered []Criterion
	byID    map[string]Criterion
}

// Default returns the embedded WCAG 2.2 reference.
func Default() (*Reference, error) {
	ref, err := Parse(embedded)
	if err != nil {
		return nil, fmt.Errorf("embedded wcag reference: %w", err)
	}
	return ref, nil
}

// Load reads a reference file. An empty path yields the embedded data.
func Load(path string) (*Reference, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wcag reference %s: %w", path, err)
	}
	ref, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("wcag reference %s: %w", path, err)
	}
	return ref, nil
}

// Parse decodes and validates reference data.
func Parse(data []byte) (*Reference, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(doc.Criteria) == 0 {
		return nil, fmt.Errorf("no criteria defined")
	}

	ref := &Reference{
		version: doc.Version,
		byID:    make(map[string]Criterion, len(doc.Criteria)),
	}
	for i, c := range doc.Criteria {
		c.ID = strings.TrimSpace(c.ID)
		if !idPattern.MatchString(c.ID) {
			return nil, fmt.Errorf("criteria[%d]: invalid id %q", i, c.ID)
		}
		switch c.Level {
		case domain.LevelA, domain.LevelAA, domain.LevelAAA:
		default:
			return nil, fmt.Errorf("criterion %s: invalid level %q", c.ID, c.Level)
		}
		if _, dup := ref.byID[c.ID]; dup {
			return nil, fmt.Errorf("criterion %s: duplicate entry", c.ID)
		}
		ref.byID[c.ID] = c
		ref.ordered = append(ref.ordered, c)
	}
	sort.Slice(ref.ordered, func(i, j int) bool {
		return domain.CompareCriteria(ref.ordered[i].ID, ref.ordered[j].ID) < 0
	})
	return ref, nil
}

func (r *Reference) Version() string { return r.version }

func (r *Reference) Len() int { return len(r.ordered) }

// Lookup returns the criterion with the given id.
func (r *Reference) Lookup(id string) (Criterion, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Contains reports whether id is a known success criterion.
func (r *Reference) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Level returns the conformance level of id, or unknown.
func (r *Reference) Level(id string) domain.Level {
	if c, ok := r.byID[id]; ok {
		return c.Level
	}
	return domain.LevelUnknown
}

// All returns every criterion in ascending id order. The slice is a copy.
func (r *Reference) All() []Criterion {
	out := make([]Criterion, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// HighestLevel returns the highest conformance level among ids, ignoring
// ids the reference does not know. No known ids yields unknown.
func (r *Reference) HighestLevel(ids []string) domain.Level {
	best := domain.LevelUnknown
	for _, id := range ids {
		if l := r.Level(id); l.Rank() > best.Rank() {
			best = l
		}
	}
	return best
}
