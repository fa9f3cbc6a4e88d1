package normalize

import (
	"embed"
	"fmt"
	"sort"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/wcag"
)

//go:embed tables/*.yaml
var tableFS embed.FS

// Profile bundles everything the engine needs to know about one tool.
type Profile struct {
	Tool   domain.ToolName
	Table  *Table
	Decode Decoder
}

// Registry holds validated profiles keyed by tool.
type Registry struct {
	profiles map[domain.ToolName]*Profile
}

// DecoderFor returns the payload decoder of a known tool.
func DecoderFor(tool domain.ToolName) (Decoder, error) {
	switch tool {
	case domain.ToolStructure:
		return DecodeStructure, nil
	case domain.ToolAxe:
		return DecodeAxe, nil
	case domain.ToolPa11y:
		return DecodePa11y, nil
	case domain.ToolLighthouse:
		return DecodeLighthouse, nil
	default:
		return nil, fmt.Errorf("no decoder for tool %q", tool)
	}
}

// LoadTable reads and validates the embedded mapping table of tool.
func LoadTable(tool domain.ToolName, ref *wcag.Reference) (*Table, error) {
	data, err := tableFS.ReadFile("tables/" + string(tool) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("mapping table for %s: %w", tool, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	if t.Tool != tool {
		return nil, fmt.Errorf("mapping table for %s declares tool %q", tool, t.Tool)
	}
	if err := t.Validate(ref); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultRegistry builds the registry for every known tool from the embedded
// tables. Any invalid table is a startup error.
func DefaultRegistry(ref *wcag.Reference) (*Registry, error) {
	var profiles []Profile
	for _, tool := range domain.AllTools() {
		table, err := LoadTable(tool, ref)
		if err != nil {
			return nil, err
		}
		dec, err := DecoderFor(tool)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, Profile{Tool: tool, Table: table, Decode: dec})
	}
	return NewRegistry(ref, profiles...)
}

// NewRegistry validates the given profiles.
func NewRegistry(ref *wcag.Reference, profiles ...Profile) (*Registry, error) {
	reg := &Registry{profiles: make(map[domain.ToolName]*Profile, len(profiles))}
	for i := range profiles {
		p := profiles[i]
		if p.Table == nil || p.Decode == nil {
			return nil, fmt.Errorf("profile %s: table and decoder are required", p.Tool)
		}
		if p.Table.Tool != p.Tool {
			return nil, fmt.Errorf("profile %s: table declares tool %q", p.Tool, p.Table.Tool)
		}
		if err := p.Table.Validate(ref); err != nil {
			return nil, err
		}
		if _, dup := reg.profiles[p.Tool]; dup {
			return nil, fmt.Errorf("profile %s registered twice", p.Tool)
		}
		reg.profiles[p.Tool] = &p
	}
	return reg, nil
}

// Lookup returns the profile of tool.
func (r *Registry) Lookup(tool domain.ToolName) (*Profile, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.profiles[tool]
	return p, ok
}

// Tools lists the registered tools in name order.
func (r *Registry) Tools() []domain.ToolName {
	out := make([]domain.ToolName, 0, len(r.profiles))
	for t := range r.profiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
