package config

import (
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/analyzer"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/pipeline/consolidator"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Profile is a scan profile: which analyzers run, how long they may take
// and where the results go.
type Profile struct {
	Timeout        time.Duration                      `yaml:"timeout"`
	OutDir         string                             `yaml:"out_dir"`
	PageLevelMatch string                             `yaml:"page_level_match"`
	Reference      string                             `yaml:"reference,omitempty"`
	Listen         string                             `yaml:"listen,omitempty"`
	Adapters       map[domain.ToolName]*AdapterConfig `yaml:"adapters"`
	NATS           NATSConfig                         `yaml:"nats"`
	Log            LogConfig                          `yaml:"log"`
}

// NATSConfig enables the scan-completed event when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// AdapterConfig accepts either a scalar ("enabled", "disabled", true, false)
// or a mapping with the analyzer options:
//
//	adapters:
//	  structure: enabled
//	  axe:
//	    runner: docker
//	    image: registry.local/axe:4.10
type AdapterConfig struct {
	Enabled          bool
	analyzer.Options `yaml:",inline"`
}

// UnmarshalYAML handles both the scalar and the mapping form.
func (a *AdapterConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch strings.ToLower(strings.TrimSpace(node.Value)) {
		case "enabled", "true", "on", "yes":
			a.Enabled = true
		case "disabled", "false", "off", "no":
			a.Enabled = false
		default:
			return fmt.Errorf("line %d: adapter state must be enabled or disabled, got %q", node.Line, node.Value)
		}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Enabled          *bool `yaml:"enabled"`
			analyzer.Options `yaml:",inline"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		a.Enabled = raw.Enabled == nil || *raw.Enabled
		a.Options = raw.Options
		return nil
	default:
		return fmt.Errorf("line %d: adapter entry must be a scalar or a mapping", node.Line)
	}
}

// EnabledTools lists the enabled analyzers in their canonical order.
func (p *Profile) EnabledTools() []domain.ToolName {
	var out []domain.ToolName
	for _, t := range domain.AllTools() {
		if a, ok := p.Adapters[t]; ok && a.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// SetEnabled switches a tool on or off, keeping its options.
func (p *Profile) SetEnabled(tool domain.ToolName, enabled bool) {
	if p.Adapters == nil {
		p.Adapters = map[domain.ToolName]*AdapterConfig{}
	}
	a, ok := p.Adapters[tool]
	if !ok {
		a = &AdapterConfig{}
		p.Adapters[tool] = a
	}
	a.Enabled = enabled
}

// AnalyzerOptions returns the options for tool with the scan timeout filled in.
func (p *Profile) AnalyzerOptions(tool domain.ToolName) analyzer.Options {
	var opts analyzer.Options
	if a, ok := p.Adapters[tool]; ok {
		opts = a.Options
	}
	opts.Timeout = p.Timeout
	return opts
}

// Validate checks the profile after defaults were applied.
func (p *Profile) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	if p.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	if _, err := consolidator.ParsePageLevelMatch(p.PageLevelMatch); err != nil {
		return err
	}
	for tool, a := range p.Adapters {
		if _, err := domain.ParseToolName(string(tool)); err != nil {
			return fmt.Errorf("adapters: %w", err)
		}
		if a == nil {
			return fmt.Errorf("adapters: %s has no configuration", tool)
		}
		if err := a.Options.Validate(tool); err != nil {
			return fmt.Errorf("adapters: %w", err)
		}
	}
	if len(p.EnabledTools()) == 0 {
		return fmt.Errorf("no adapter is enabled")
	}
	if _, err := logrus.ParseLevel(p.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch p.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", p.Log.Format)
	}
	return nil
}
