package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerClient wraps the docker SDK's client.Client so callers construct it
// once (NewDockerClient) and hand it to every wrapper that wants a
// container-backed executor via WithDockerImage.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient connects to the Docker daemon at host (empty string uses
// the environment-derived default, DOCKER_HOST or the platform socket).
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// dockerBackend runs a wrapper's argv inside a fresh, disposable container
// of image. Each call creates, starts, streams, waits, and removes its own
// container; nothing is reused across tasks.
type dockerBackend struct {
	client *DockerClient
	image  string
}

func (b *dockerBackend) start(ctx context.Context, binary string, argv []string, workDir string, env map[string]string) (procHandle, error) {
	cmd := append([]string{binary}, argv...)

	var envList []string
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	containerCfg := &container.Config{
		Image:      b.image,
		Cmd:        cmd,
		Env:        envList,
		WorkingDir: workDir,
		Tty:        false,
	}

	created, err := b.client.cli.ContainerCreate(ctx, containerCfg, nil, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container from %s: %w", b.image, err)
	}

	if err := b.client.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container %s: %w", created.ID, err)
	}

	return &dockerHandle{client: b.client, containerID: created.ID}, nil
}

type dockerHandle struct {
	client      *DockerClient
	containerID string

	stdout *io.PipeReader
	stderr bytes.Buffer
}

func (h *dockerHandle) Stdout() io.Reader {
	if h.stdout != nil {
		return h.stdout
	}

	pr, pw := io.Pipe()
	h.stdout = pr

	go func() {
		logs, err := h.client.cli.ContainerLogs(context.Background(), h.containerID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		defer logs.Close()

		_, err = stdcopy.StdCopy(pw, &h.stderr, logs)
		pw.CloseWithError(err)
	}()

	return h.stdout
}

func (h *dockerHandle) Wait() (exitCode int, stderr string, err error) {
	statusCh, errCh := h.client.cli.ContainerWait(context.Background(), h.containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case werr := <-errCh:
		err = werr
	}

	_ = h.client.cli.ContainerRemove(context.Background(), h.containerID, container.RemoveOptions{Force: true})
	return exitCode, h.stderr.String(), err
}

func (h *dockerHandle) Kill() {
	_ = h.client.cli.ContainerKill(context.Background(), h.containerID, "SIGTERM")
}
