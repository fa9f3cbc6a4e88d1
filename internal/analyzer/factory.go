// Package analyzer holds the adapters around the individual accessibility
// tools and the executors they run on.
package analyzer

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Runner names where command line tools are executed.
const (
	RunnerLocal  = "local"
	RunnerDocker = "docker"
)

// Options are the per-tool settings of a scan profile. Fields that do not
// apply to a tool are ignored.
type Options struct {
	Runner         string        `yaml:"runner,omitempty" json:"runner,omitempty"`
	Command        string        `yaml:"command,omitempty" json:"command,omitempty"`
	Args           []string      `yaml:"args,omitempty" json:"args,omitempty"`
	Image          string        `yaml:"image,omitempty" json:"image,omitempty"`
	Standard       string        `yaml:"standard,omitempty" json:"standard,omitempty"`
	Tags           string        `yaml:"tags,omitempty" json:"tags,omitempty"`
	IncludeNotices bool          `yaml:"include_notices,omitempty" json:"include_notices,omitempty"`
	ChromeFlags    string        `yaml:"chrome_flags,omitempty" json:"chrome_flags,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty"`
	Timeout        time.Duration `yaml:"-" json:"-"`
}

// Validate checks the runner selection.
func (o Options) Validate(tool domain.ToolName) error {
	switch o.Runner {
	case "", RunnerLocal:
	case RunnerDocker:
		if tool == domain.ToolStructure {
			return fmt.Errorf("%s: runs in-process and cannot use the docker runner", tool)
		}
		if o.Image == "" {
			return fmt.Errorf("%s: docker runner requires an image", tool)
		}
	default:
		return fmt.Errorf("%s: unknown runner %q", tool, o.Runner)
	}
	if o.MaxBodyBytes < 0 {
		return fmt.Errorf("%s: max_body_bytes must not be negative", tool)
	}
	return nil
}

// Factory builds analyzers. Executors are shared between the analyzers it
// creates; the docker executor is created on first use.
type Factory struct {
	Log        *log.Entry
	HTTPClient *http.Client
	Local      Executor

	mu     sync.Mutex
	docker Executor
}

func NewFactory(l *log.Entry) *Factory {
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Factory{
		Log:        l,
		HTTPClient: &http.Client{},
		Local:      NewLocalExecutor(),
	}
}

// New returns the analyzer for tool configured with opts.
func (f *Factory) New(tool domain.ToolName, opts Options) (domain.Analyzer, error) {
	if err := opts.Validate(tool); err != nil {
		return nil, err
	}
	switch tool {
	case domain.ToolStructure:
		return NewStructure(f.HTTPClient, opts, f.Log), nil
	case domain.ToolAxe:
		return NewAxe(f.executor(opts.Runner), opts, f.Log), nil
	case domain.ToolPa11y:
		return NewPa11y(f.executor(opts.Runner), opts, f.Log), nil
	case domain.ToolLighthouse:
		return NewLighthouse(f.executor(opts.Runner), opts, f.Log), nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", tool)
	}
}

func (f *Factory) executor(runner string) Executor {
	if runner != RunnerDocker {
		return f.Local
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docker == nil {
		f.docker = NewDockerExecutor(f.Log.WithField("runner", RunnerDocker))
	}
	return f.docker
}
