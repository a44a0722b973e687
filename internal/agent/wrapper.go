package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ArgvBuilder is a pure function from a Task to the argv a wrapper's binary
// should be invoked with. Implementations must not perform I/O.
type ArgvBuilder func(task Task) []string

// VersionProbe reports a wrapper's health by returning (version string,
// healthy). Most wrappers use the base implementation (spawn "<binary>
// --version", return the first trimmed line); a family of agents needs a
// bespoke override because they never exit after printing their version.
type VersionProbe func(ctx context.Context, w *Wrapper) (string, bool)

// StreamOutcome is delivered once on a stream's outcome channel when the
// underlying process has settled.
type StreamOutcome struct {
	Status     Status
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// backend is the spawn mechanism behind a Wrapper: local process or
// container. Both return data through the same shape so Wrapper's
// execute/executeStream logic never branches on which is active.
type backend interface {
	// start spawns binary with argv, cwd, and an environment overlay, and
	// returns a handle streaming its stdout plus a way to wait/kill it.
	start(ctx context.Context, binary string, argv []string, workDir string, env map[string]string) (procHandle, error)
}

// procHandle abstracts over a running child, whether a local process or a
// container, for the purposes of the wrapper contract.
type procHandle interface {
	Stdout() io.Reader
	Wait() (exitCode int, stderr string, err error)
	Kill()
}

// Wrapper adapts one external coding-agent CLI to the uniform contract
// described in spec.md §4.1: execute, executeStream, health, version.
type Wrapper struct {
	id           string
	name         string
	binary       string
	capabilities []string
	argvBuilder  ArgvBuilder
	versionProbe VersionProbe

	process backend // always set, the ExecutorProcess backend
	docker  backend // set only when WithDockerImage was supplied
}

// Option customizes a Wrapper at construction time.
type Option func(*Wrapper)

// WithVersionProbe overrides the default "--version" health strategy.
func WithVersionProbe(probe VersionProbe) Option {
	return func(w *Wrapper) { w.versionProbe = probe }
}

// WithDockerImage gives the wrapper a containerized backend, selected for
// any Task with Executor == ExecutorDocker. client must be a live
// *DockerClient; a nil client leaves the wrapper process-only.
func WithDockerImage(client *DockerClient, image string) Option {
	return func(w *Wrapper) {
		if client == nil {
			return
		}
		w.docker = &dockerBackend{client: client, image: image}
	}
}

// NewWrapper builds a wrapper around binary, identified by id/name, advertising
// capabilities, using build to construct argv from a Task.
func NewWrapper(id, name, binary string, capabilities []string, build ArgvBuilder, opts ...Option) *Wrapper {
	w := &Wrapper{
		id:           id,
		name:         name,
		binary:       binary,
		capabilities: append([]string(nil), capabilities...),
		argvBuilder:  build,
		process:      &processBackend{},
	}
	w.versionProbe = defaultVersionProbe
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wrapper) ID() string            { return w.id }
func (w *Wrapper) Name() string          { return w.name }
func (w *Wrapper) Binary() string        { return w.binary }
func (w *Wrapper) Capabilities() []string { return w.capabilities }

// HasCapability reports whether capability is among w.Capabilities().
func (w *Wrapper) HasCapability(capability string) bool {
	for _, c := range w.capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Execute runs task to completion, settling exactly once: the return value
// on natural exit, a timeout result after killing the child and waiting for
// it on deadline, or an error result if the binary could not be started at
// all. The process backend kills with SIGKILL; only the docker backend sends
// SIGTERM.
func (w *Wrapper) Execute(ctx context.Context, task Task) Result {
	start := time.Now()
	argv := w.argvBuilder(task)

	handle, err := w.backendFor(task).start(ctx, w.binary, argv, task.WorkDir, task.Env)
	if err != nil {
		return Result{
			AgentID:    w.id,
			Status:     StatusError,
			Stderr:     err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, task.timeout())
	defer cancel()

	var out bytes.Buffer
	readDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(&out, handle.Stdout())
		close(readDone)
	}()

	type waitResult struct {
		exitCode int
		stderr   string
		err      error
	}
	waitDone := make(chan waitResult, 1)
	go func() {
		exitCode, stderr, err := handle.Wait()
		waitDone <- waitResult{exitCode, stderr, err}
	}()

	select {
	case res := <-waitDone:
		<-readDone
		status := StatusSuccess
		if res.exitCode != 0 || res.err != nil {
			status = StatusError
		}
		return Result{
			AgentID:    w.id,
			Status:     status,
			Output:     out.String(),
			Stderr:     res.stderr,
			ExitCode:   res.exitCode,
			DurationMs: time.Since(start).Milliseconds(),
		}
	case <-timeoutCtx.Done():
		handle.Kill()
		<-readDone
		var stderr string
		select {
		case res := <-waitDone:
			stderr = res.stderr
		case <-time.After(2 * time.Second):
		}
		return Result{
			AgentID:    w.id,
			Status:     StatusTimeout,
			Output:     out.String(),
			Stderr:     stderr,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
}

// ExecuteStream behaves like Execute but yields stdout as it arrives. The
// chunk channel closes once the process has settled; exactly one value is
// sent on outcome before it closes. The channel is buffered so a slow
// consumer creates back-pressure on its own read loop, not data loss.
func (w *Wrapper) ExecuteStream(ctx context.Context, task Task) (<-chan string, <-chan StreamOutcome) {
	chunks := make(chan string, 64)
	outcome := make(chan StreamOutcome, 1)

	go func() {
		defer close(chunks)
		defer close(outcome)

		start := time.Now()
		argv := w.argvBuilder(task)

		handle, err := w.backendFor(task).start(ctx, w.binary, argv, task.WorkDir, task.Env)
		if err != nil {
			outcome <- StreamOutcome{Status: StatusError, Stderr: err.Error(), DurationMs: time.Since(start).Milliseconds()}
			return
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, task.timeout())
		defer cancel()

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			buf := make([]byte, 4096)
			for {
				n, err := handle.Stdout().Read(buf)
				if n > 0 {
					select {
					case chunks <- string(buf[:n]):
					case <-timeoutCtx.Done():
						return
					}
				}
				if err != nil {
					return
				}
			}
		}()

		type waitResult struct {
			exitCode int
			stderr   string
			err      error
		}
		waitDone := make(chan waitResult, 1)
		go func() {
			exitCode, stderr, err := handle.Wait()
			waitDone <- waitResult{exitCode, stderr, err}
		}()

		select {
		case res := <-waitDone:
			<-readDone
			status := StatusSuccess
			if res.exitCode != 0 || res.err != nil {
				status = StatusError
			}
			outcome <- StreamOutcome{Status: status, Stderr: res.stderr, ExitCode: res.exitCode, DurationMs: time.Since(start).Milliseconds()}
		case <-timeoutCtx.Done():
			handle.Kill()
			<-readDone
			outcome <- StreamOutcome{Status: StatusTimeout, DurationMs: time.Since(start).Milliseconds()}
		}
	}()

	return chunks, outcome
}

// Health reports true iff Version resolves within its own timeout.
func (w *Wrapper) Health(ctx context.Context) bool {
	_, ok := w.Version(ctx)
	return ok
}

// Version runs the wrapper's version probe (the "--version" default, or a
// bespoke override) and returns (version, healthy).
func (w *Wrapper) Version(ctx context.Context) (string, bool) {
	return w.versionProbe(ctx, w)
}

func (w *Wrapper) backendFor(task Task) backend {
	if task.Executor == ExecutorDocker && w.docker != nil {
		return w.docker
	}
	return w.process
}

// defaultVersionProbe spawns "<binary> --version" with a short deadline and
// returns the first trimmed line of stdout.
func defaultVersionProbe(ctx context.Context, w *Wrapper) (string, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	handle, err := w.process.start(probeCtx, w.binary, []string{"--version"}, "", nil)
	if err != nil {
		return "", false
	}

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&out, handle.Stdout())
		close(done)
	}()

	select {
	case <-done:
	case <-probeCtx.Done():
		handle.Kill()
		<-done
	}
	_, _, _ = handle.Wait()

	line := firstNonEmptyLine(out.String())
	if line == "" {
		return "", false
	}
	return line, true
}

// GeminiVersionProbe handles the "Gemini" family: the binary prints its
// version banner and then hangs rather than exiting. Spawn, capture
// stdout, kill after 2s, and resolve with the first non-empty line (or
// unhealthy if nothing was printed).
func GeminiVersionProbe(ctx context.Context, w *Wrapper) (string, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	handle, err := w.process.start(probeCtx, w.binary, []string{"--version"}, "", nil)
	if err != nil {
		return "", false
	}

	var (
		out bytes.Buffer
		mu  sync.Mutex
	)
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := handle.Stdout().Read(buf)
			if n > 0 {
				mu.Lock()
				out.Write(buf[:n])
				mu.Unlock()
			}
			if err != nil {
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-probeCtx.Done():
	}
	handle.Kill()

	mu.Lock()
	line := firstNonEmptyLine(out.String())
	mu.Unlock()
	if line == "" {
		return "", false
	}
	return line, true
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ErrSpawn wraps an underlying spawn failure (missing binary, permission
// denied, etc.) with the wrapper id for diagnostics.
func ErrSpawn(id string, err error) error {
	return fmt.Errorf("wrapper %q: spawn failed: %w", id, err)
}
