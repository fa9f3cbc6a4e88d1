package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"bytemomo/narwhal/internal/domain"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	createErr error
	startErr  error
	waitErr   error
	// onWait runs inside ContainerWait; a nil status leaves the container
	// running until ctx is done.
	onWait func()
	status *container.WaitResponse
	stdout string
	stderr string

	pings   int
	created *container.Config
	limits  *container.HostConfig
	removed []container.RemoveOptions
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	f.pings++
	return types.Ping{}, nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created = config
	f.limits = hostConfig
	return container.CreateResponse{ID: "0123456789abcdef"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeDocker) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.onWait != nil {
		f.onWait()
	}
	switch {
	case f.waitErr != nil:
		errCh <- f.waitErr
	case f.status != nil:
		statusCh <- *f.status
	}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout)); err != nil {
		return nil, err
	}
	if f.stderr != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr)); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removed = append(f.removed, options)
	return nil
}

func dockerExecutor(api dockerAPI) *DockerExecutor {
	e := NewDockerExecutor(testLogger())
	e.api = api
	return e
}

var lighthouseCmd = Command{Name: "lighthouse", Args: []string{"https://example.com"}, Image: "lh:12"}

func TestDockerExecutorRunsAndRemovesContainer(t *testing.T) {
	api := &fakeDocker{
		status: &container.WaitResponse{StatusCode: 2},
		stdout: `{"audits":{}}`,
		stderr: "chrome warning",
	}
	out, err := dockerExecutor(api).Run(context.Background(), lighthouseCmd)
	require.NoError(t, err)

	assert.Equal(t, 2, out.ExitCode)
	assert.Equal(t, `{"audits":{}}`, string(out.Stdout))
	assert.Equal(t, "chrome warning", string(out.Stderr))
	assert.Equal(t, []string{"lighthouse", "https://example.com"}, []string(api.created.Cmd))
	assert.Equal(t, "lh:12", api.created.Image)
	assert.True(t, api.limits.ReadonlyRootfs)
	assert.Equal(t, []string{"ALL"}, []string(api.limits.CapDrop))
	assert.Equal(t, []container.RemoveOptions{{Force: true}}, api.removed)
}

func TestDockerExecutorRemovesContainerOnFailure(t *testing.T) {
	cases := []struct {
		name   string
		api    *fakeDocker
		cancel bool
		want   error
	}{
		{
			name: "start error",
			api:  &fakeDocker{startErr: errors.New("port already allocated")},
		},
		{
			name: "wait error",
			api:  &fakeDocker{waitErr: errors.New("connection reset")},
		},
		{
			name: "container wait error",
			api:  &fakeDocker{status: &container.WaitResponse{Error: &container.WaitExitError{Message: "oom"}}},
		},
		{
			name:   "cancelled while waiting",
			api:    &fakeDocker{},
			cancel: true,
			want:   context.Canceled,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel {
				tc.api.onWait = cancel
			}

			_, err := dockerExecutor(tc.api).Run(ctx, lighthouseCmd)
			require.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrUnavailable)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
			assert.Equal(t, []container.RemoveOptions{{Force: true}}, tc.api.removed)
		})
	}
}

func TestDockerExecutorMissingImageIsUnavailable(t *testing.T) {
	api := &fakeDocker{createErr: errdefs.NotFound(errors.New("No such image: lh:12"))}
	_, err := dockerExecutor(api).Run(context.Background(), lighthouseCmd)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Contains(t, err.Error(), "lh:12")
	assert.Empty(t, api.removed)
}

func TestDockerExecutorWithoutImageSkipsDaemon(t *testing.T) {
	api := &fakeDocker{}
	_, err := dockerExecutor(api).Run(context.Background(), Command{Name: "axe"})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Zero(t, api.pings)
	assert.Nil(t, api.created)
}
