package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"bytemomo/narwhal/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	out   Output
	err   error
	calls []Command
}

func (f *fakeExecutor) Run(ctx context.Context, c Command) (Output, error) {
	f.calls = append(f.calls, c)
	return f.out, f.err
}

const (
	axeOutput        = `[{"url":"https://example.com","violations":[{"id":"image-alt","impact":"critical","tags":["wcag2a","wcag111"],"help":"Images must have alternate text","nodes":[{"target":["img"]}]}]}]`
	pa11yOutput      = `[{"code":"WCAG2AA.Principle1.Guideline1_1.1_1_1.H37","type":"error","message":"Img element missing an alt attribute.","selector":"html > body > img"}]`
	lighthouseOutput = `{"categories":{"accessibility":{"auditRefs":[{"id":"image-alt"}]}},"audits":{"image-alt":{"id":"image-alt","title":"Image elements do not have [alt] attributes","score":1}}}`
)

func TestAxeCommandLine(t *testing.T) {
	exec := &fakeExecutor{out: Output{Stdout: []byte(axeOutput)}}
	a := NewAxe(exec, Options{Timeout: 90 * time.Second, Args: []string{"--exit"}}, testLogger())

	payload, err := a.Invoke(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.JSONEq(t, axeOutput, string(payload))
	assert.Equal(t, domain.ToolAxe, a.Name())

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "axe", exec.calls[0].Name)
	assert.Equal(t, []string{
		"https://example.com", "--stdout",
		"--tags", "wcag2a,wcag2aa,wcag21a,wcag21aa,wcag22aa",
		"--timeout", "90",
		"--exit",
	}, exec.calls[0].Args)
}

func TestAxeTimeoutRoundsUp(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    string
	}{
		{500 * time.Millisecond, "1"},
		{90 * time.Second, "90"},
		{90*time.Second + 1, "91"},
	}
	for _, tc := range cases {
		exec := &fakeExecutor{out: Output{Stdout: []byte(axeOutput)}}
		a := NewAxe(exec, Options{Timeout: tc.timeout}, testLogger())
		_, err := a.Invoke(context.Background(), "https://example.com")
		require.NoError(t, err)

		args := exec.calls[0].Args
		i := indexOf(args, "--timeout")
		require.GreaterOrEqual(t, i, 0, tc.timeout)
		assert.Equal(t, tc.want, args[i+1], tc.timeout)
	}
}

func indexOf(s []string, v string) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}

func TestPa11yAcceptsIssuesExitCode(t *testing.T) {
	exec := &fakeExecutor{out: Output{Stdout: []byte(pa11yOutput), ExitCode: 2}}
	a := NewPa11y(exec, Options{Standard: "WCAG2AAA", IncludeNotices: true, Command: "/opt/pa11y"}, testLogger())

	_, err := a.Invoke(context.Background(), "https://example.com")
	require.NoError(t, err)

	c := exec.calls[0]
	assert.Equal(t, "/opt/pa11y", c.Name)
	assert.Equal(t, []string{
		"--reporter", "json", "--standard", "WCAG2AAA",
		"--include-warnings", "--include-notices",
		"https://example.com",
	}, c.Args)
}

func TestLighthouseCommandLine(t *testing.T) {
	exec := &fakeExecutor{out: Output{Stdout: []byte(lighthouseOutput)}}
	a := NewLighthouse(exec, Options{Runner: RunnerDocker, Image: "registry.local/lighthouse:12"}, testLogger())

	_, err := a.Invoke(context.Background(), "https://example.com")
	require.NoError(t, err)

	c := exec.calls[0]
	assert.Equal(t, "lighthouse", c.Name)
	assert.Equal(t, "registry.local/lighthouse:12", c.Image)
	assert.Contains(t, c.Args, "--only-categories=accessibility")
	assert.Contains(t, c.Args, "--chrome-flags=--headless=new --no-sandbox")
	assert.Equal(t, "https://example.com", c.Args[0])
}

func TestCLIAnalyzerFailures(t *testing.T) {
	cases := []struct {
		name        string
		out         Output
		err         error
		unavailable bool
		reason      string
	}{
		{
			name:        "tool missing",
			err:         fmt.Errorf("%w: axe: executable file not found in $PATH", domain.ErrUnavailable),
			unavailable: true,
		},
		{
			name:   "bad exit status",
			out:    Output{ExitCode: 1, Stderr: []byte("Error: net::ERR_NAME_NOT_RESOLVED")},
			reason: "exit status 1",
		},
		{
			name:   "empty output",
			out:    Output{Stdout: []byte("  \n")},
			reason: "empty output",
		},
		{
			name:   "malformed output",
			out:    Output{Stdout: []byte("Testing https://example.com ... please wait")},
			reason: "malformed output",
		},
		{
			name:   "executor error",
			err:    errors.New("fork/exec: resource temporarily unavailable"),
			reason: "execution failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAxe(&fakeExecutor{out: tc.out, err: tc.err}, Options{}, testLogger())
			_, err := a.Invoke(context.Background(), "https://example.com")
			require.Error(t, err)

			if tc.unavailable {
				assert.ErrorIs(t, err, domain.ErrUnavailable)
				return
			}
			assert.NotErrorIs(t, err, domain.ErrUnavailable)
			var ae *domain.AdapterError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, domain.ToolAxe, ae.Tool)
			assert.Equal(t, tc.reason, ae.Reason)
		})
	}
}

func TestCLIAnalyzerReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewPa11y(&fakeExecutor{err: context.Canceled}, Options{}, testLogger())
	_, err := a.Invoke(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.Canceled)
	var ae *domain.AdapterError
	assert.False(t, errors.As(err, &ae))
}

func TestTailKeepsEnd(t *testing.T) {
	assert.Equal(t, "no diagnostic output", tail(nil))
	long := make([]byte, stderrTail+100)
	for i := range long {
		long[i] = 'a'
	}
	long[len(long)-1] = 'z'
	got := tail(long)
	assert.Len(t, got, stderrTail+3)
	assert.Equal(t, byte('z'), got[len(got)-1])
}

func TestTailCutsOnRuneBoundary(t *testing.T) {
	// Each "é" is two bytes; the trailing "a" puts the byte cut inside one.
	long := []byte(strings.Repeat("é", stderrTail) + "a")
	got := tail(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, "...é"))
	assert.LessOrEqual(t, len(got), stderrTail+3)
}

func TestLocalExecutorMissingBinary(t *testing.T) {
	e := NewLocalExecutor()
	e.lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	_, err := e.Run(context.Background(), Command{Name: "pa11y"})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Contains(t, err.Error(), "pa11y")
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name string
		tool domain.ToolName
		opts Options
		ok   bool
	}{
		{"defaults", domain.ToolAxe, Options{}, true},
		{"local", domain.ToolPa11y, Options{Runner: RunnerLocal}, true},
		{"docker with image", domain.ToolLighthouse, Options{Runner: RunnerDocker, Image: "lh:latest"}, true},
		{"docker without image", domain.ToolAxe, Options{Runner: RunnerDocker}, false},
		{"structure in docker", domain.ToolStructure, Options{Runner: RunnerDocker, Image: "x"}, false},
		{"unknown runner", domain.ToolAxe, Options{Runner: "podman"}, false},
		{"negative body limit", domain.ToolStructure, Options{MaxBodyBytes: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate(tc.tool)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFactoryBuildsEveryTool(t *testing.T) {
	f := NewFactory(testLogger())
	local := &fakeExecutor{}
	f.Local = local

	for _, tool := range domain.AllTools() {
		a, err := f.New(tool, Options{})
		require.NoError(t, err, tool)
		assert.Equal(t, tool, a.Name())
	}

	_, err := f.New(domain.ToolName("wave"), Options{})
	assert.Error(t, err)

	a, err := f.New(domain.ToolAxe, Options{Runner: RunnerDocker, Image: "axe:4"})
	require.NoError(t, err)
	cli, ok := a.(*CLIAnalyzer)
	require.True(t, ok)
	_, isDocker := cli.exec.(*DockerExecutor)
	assert.True(t, isDocker)
	assert.Same(t, f.executor(RunnerDocker), f.executor(RunnerDocker))
}
