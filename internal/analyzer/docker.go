package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	log "github.com/sirupsen/logrus"
)

// dockerAPI is the subset of the docker client the executor needs.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerExecutor runs tools inside throwaway containers with sandbox limits.
// The container is force-removed on every exit path.
type DockerExecutor struct {
	Log *log.Entry
	// Limits is the host configuration applied to every container.
	Limits container.HostConfig

	once   sync.Once
	api    dockerAPI
	apiErr error
}

// NewDockerExecutor returns an executor that connects to the daemon lazily
// using the standard DOCKER_* environment.
func NewDockerExecutor(l *log.Entry) *DockerExecutor {
	return &DockerExecutor{Log: l, Limits: SandboxLimits()}
}

// SandboxLimits drops all capabilities, makes the root filesystem read-only
// and caps memory, CPU and process count. Network stays bridged because the
// tools must reach the target URL.
func SandboxLimits() container.HostConfig {
	return container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		Tmpfs:          map[string]string{"/tmp": "rw,size=256m"},
		ShmSize:        256 * 1024 * 1024,
		Resources: container.Resources{
			Memory:    1024 * 1024 * 1024,
			NanoCPUs:  1_000_000_000,
			PidsLimit: func() *int64 { v := int64(256); return &v }(),
		},
		NetworkMode: "bridge",
	}
}

func (e *DockerExecutor) dockerClient() (dockerAPI, error) {
	e.once.Do(func() {
		if e.api != nil {
			return
		}
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			e.apiErr = err
			return
		}
		e.api = cli
	})
	return e.api, e.apiErr
}

func (e *DockerExecutor) Run(ctx context.Context, c Command) (Output, error) {
	if c.Image == "" {
		return Output{}, fmt.Errorf("%w: no container image configured for %s", domain.ErrUnavailable, c.Name)
	}
	api, err := e.dockerClient()
	if err != nil {
		return Output{}, fmt.Errorf("%w: docker client: %v", domain.ErrUnavailable, err)
	}
	if _, err := api.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, fmt.Errorf("%w: docker daemon not available: %v", domain.ErrUnavailable, err)
	}

	limits := e.Limits
	resp, err := api.ContainerCreate(ctx,
		&container.Config{
			Image: c.Image,
			Cmd:   append([]string{c.Name}, c.Args...),
			Env:   c.Env,
			User:  "1000:1000",
		},
		&limits,
		nil,
		nil,
		"",
	)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Output{}, fmt.Errorf("%w: image %s not present: %v", domain.ErrUnavailable, c.Image, err)
		}
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, fmt.Errorf("create container: %w", err)
	}
	l := e.logger().WithFields(log.Fields{"container": shortID(resp.ID), "image": c.Image})
	defer e.remove(api, l, resp.ID)

	if err := api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, fmt.Errorf("start container: %w", err)
	}
	l.Debug("Container started")

	var out Output
	statusCh, errCh := api.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, fmt.Errorf("wait for container: %w", err)
	case st := <-statusCh:
		if st.Error != nil {
			return Output{}, fmt.Errorf("container wait: %s", st.Error.Message)
		}
		out.ExitCode = int(st.StatusCode)
	}

	logs, err := api.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Output{}, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Output{}, fmt.Errorf("demultiplex container logs: %w", err)
	}
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	return out, nil
}

// remove uses its own deadline so cleanup still happens after ctx expired.
func (e *DockerExecutor) remove(api dockerAPI, l *log.Entry, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		l.WithError(err).Warn("Failed to remove container")
		return
	}
	l.Debug("Container removed")
}

func (e *DockerExecutor) logger() *log.Entry {
	if e.Log != nil {
		return e.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
