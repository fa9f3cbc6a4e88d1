package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/pipeline/consolidator"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Defaults applied to every profile.
const (
	DefaultTimeout = 120 * time.Second
	DefaultOutDir  = "reports"
	DefaultListen  = ":8080"
)

// Environment variables overlaid on the profile.
const (
	EnvOutDir         = "NARWHAL_OUT_DIR"
	EnvTimeout        = "NARWHAL_TIMEOUT"
	EnvLogLevel       = "NARWHAL_LOG_LEVEL"
	EnvLogFormat      = "NARWHAL_LOG_FORMAT"
	EnvNATSURL        = "NARWHAL_NATS_URL"
	EnvNATSSubject    = "NARWHAL_NATS_SUBJECT"
	EnvListen         = "NARWHAL_LISTEN"
	EnvPageLevelMatch = "NARWHAL_PAGE_LEVEL_MATCH"
)

// Loader provides functionality to load and validate scan profiles
type Loader struct {
	basePath  string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader with the specified base path
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{
		basePath:  basePath,
		lookupEnv: os.LookupEnv,
	}
}

// LoadDotEnv loads the first .env file found into the process environment.
// Variables already set are left alone.
func LoadDotEnv() string {
	for _, path := range []string{".env", "../.env", "/app/.env"} {
		if err := godotenv.Load(path); err == nil {
			log.WithField("path", path).Debug("Loaded environment file")
			return path
		}
	}
	return ""
}

// Default returns the built-in profile: every analyzer enabled with default
// options, environment overlay and validation applied.
func (l *Loader) Default() (*Profile, error) {
	return l.finish(&Profile{}, "<default>")
}

// Load reads the profile at path. An empty path yields Default.
func (l *Loader) Load(path string) (*Profile, error) {
	if path == "" {
		return l.Default()
	}
	fullPath := l.resolvePath(path)

	data, err := l.readFile(fullPath)
	if err != nil {
		return nil, NewProfileLoadError(fullPath, "failed to read profile", err)
	}

	// Expand environment variables
	data = l.expandEnvVars(data)

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, NewProfileLoadError(fullPath, "failed to parse profile", err)
	}

	if p.Reference != "" && !filepath.IsAbs(p.Reference) {
		p.Reference = filepath.Join(filepath.Dir(fullPath), p.Reference)
	}
	return l.finish(&p, fullPath)
}

func (l *Loader) finish(p *Profile, source string) (*Profile, error) {
	if err := l.applyEnv(p); err != nil {
		return nil, NewProfileLoadError(source, "invalid environment", err)
	}
	l.setProfileDefaults(p)
	if err := p.Validate(); err != nil {
		return nil, NewProfileLoadError(source, "validation failed", err)
	}
	return p, nil
}

func (l *Loader) applyEnv(p *Profile) error {
	set := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvOutDir, &p.OutDir)
	set(EnvLogLevel, &p.Log.Level)
	set(EnvLogFormat, &p.Log.Format)
	set(EnvNATSURL, &p.NATS.URL)
	set(EnvNATSSubject, &p.NATS.Subject)
	set(EnvListen, &p.Listen)
	set(EnvPageLevelMatch, &p.PageLevelMatch)

	if v, ok := l.lookupEnv(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		p.Timeout = d
	}
	return nil
}

// resolvePath resolves a path relative to the loader's base path
func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// readFile reads a file and returns its contents
func (l *Loader) readFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}

	return os.ReadFile(path)
}

// expandEnvVars expands ${VAR} references using the loader's environment
func (l *Loader) expandEnvVars(data []byte) []byte {
	return []byte(os.Expand(string(data), func(key string) string {
		v, _ := l.lookupEnv(key)
		return v
	}))
}

// setProfileDefaults sets default values for a scan profile
func (l *Loader) setProfileDefaults(p *Profile) {
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.OutDir == "" {
		p.OutDir = DefaultOutDir
	}
	if p.PageLevelMatch == "" {
		p.PageLevelMatch = string(consolidator.MatchExactMessage)
	}
	if p.Listen == "" {
		p.Listen = DefaultListen
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
	if p.Log.Format == "" {
		p.Log.Format = "json"
	}

	// Tools not mentioned in the profile run with default options.
	if p.Adapters == nil {
		p.Adapters = map[domain.ToolName]*AdapterConfig{}
	}
	for _, t := range domain.AllTools() {
		if a, ok := p.Adapters[t]; !ok || a == nil {
			p.Adapters[t] = &AdapterConfig{Enabled: true}
		}
	}
}

// LoaderError represents a configuration loading error
type LoaderError struct {
	Type    string
	Path    string
	Message string
	Cause   error
}

func (e LoaderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (caused by: %v)", e.Type, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Path, e.Message)
}

func (e LoaderError) Unwrap() error {
	return e.Cause
}

func NewProfileLoadError(path, message string, cause error) error {
	return LoaderError{
		Type:    "profile",
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}
