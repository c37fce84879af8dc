package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

const (
	defaultImage     = "datachat:latest"
	containerWorkDir = "/work"
	containerUser    = "65534:65534"
	defaultMemoryMB  = 512
	defaultNanoCPUs  = 1_000_000_000
	pidsLimit        = 64
	removeTimeout    = 10 * time.Second
)

// Docker runs each execution in a throwaway container started from an image
// whose entrypoint is the datachat binary. The request directory is the
// only mount; the container has no network.
type Docker struct {
	cli  *client.Client
	opts Options
	ws   Workspace
	log  *zap.Logger
}

// NewDocker connects to the daemon configured by the environment.
func NewDocker(opts Options) (*Docker, error) {
	opts.setDefaults()
	if opts.Image == "" {
		opts.Image = defaultImage
	}
	if opts.MemoryMB <= 0 {
		opts.MemoryMB = defaultMemoryMB
	}
	if opts.NanoCPUs <= 0 {
		opts.NanoCPUs = defaultNanoCPUs
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	ws, err := NewWorkspace(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	log := opts.Logger.Named("sandbox.docker")
	log.Info("docker sandbox initialized", zap.String("image", opts.Image), zap.Int64("memory_mb", opts.MemoryMB))
	return &Docker{cli: cli, opts: opts, ws: ws, log: log}, nil
}

func (s *Docker) Execute(ctx context.Context, code string, t *dataset.Table) Result {
	start := time.Now()
	r := s.execute(ctx, code, t, start)
	r.Duration = time.Since(start)
	if r.Outcome == Failure {
		logFault(s.log, code, r)
	}
	return r
}

func (s *Docker) execute(ctx context.Context, code string, t *dataset.Table, start time.Time) Result {
	dir, cleanup, err := s.ws.Prepare(userFrom(ctx))
	if err != nil {
		return failure(start, err.Error())
	}
	defer cleanup()
	if err := writeJob(dir, code, t, s.opts); err != nil {
		return failure(start, err.Error())
	}
	// the container user must be able to write result.json and the plot
	if err := os.Chmod(dir, 0o777); err != nil {
		return failure(start, fmt.Sprintf("open request dir: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout+5*time.Second)
	defer cancel()

	cfg := &container.Config{
		Image:           s.opts.Image,
		Cmd:             []string{RunnerCommand, containerWorkDir},
		User:            containerUser,
		WorkingDir:      containerWorkDir,
		NetworkDisabled: true,
		Env:             []string{"HOME=" + containerWorkDir},
	}
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: dir,
			Target: containerWorkDir,
		}},
		Resources: container.Resources{
			Memory:    s.opts.MemoryMB * 1024 * 1024,
			NanoCPUs:  s.opts.NanoCPUs,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}
	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return failure(start, fmt.Sprintf("create container: %v", err))
	}
	defer s.remove(resp.ID)

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return failure(start, fmt.Sprintf("start container: %v", err))
	}
	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return failure(start, fmt.Sprintf("execution timed out after %s", s.opts.Timeout))
		}
		return failure(start, fmt.Sprintf("wait container: %v", err))
	case st := <-statusCh:
		if st.StatusCode != 0 {
			return failure(start, childFault(fmt.Errorf("container exited with status %d", st.StatusCode), s.stderr(resp.ID)))
		}
	case <-ctx.Done():
		return failure(start, fmt.Sprintf("execution timed out after %s", s.opts.Timeout))
	}

	r, err := collectResult(dir)
	if err != nil {
		return failure(start, err.Error())
	}
	return r
}

func (s *Docker) stderr(id string) string {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	rc, err := s.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStderr: true, Tail: "20"})
	if err != nil {
		return ""
	}
	defer rc.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return ""
	}
	return stderr.String()
}

// remove force-removes the container; it runs on a fresh context so a
// timed-out execution still cleans up.
func (s *Docker) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		s.log.Warn("failed to remove sandbox container", zap.String("container_id", id), zap.Error(err))
	}
}

func ptr[T any](v T) *T {
	return &v
}
