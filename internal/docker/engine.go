// Package docker implements the container-engine boundary: agent container
// lifecycle, workspace file injection, log scanning and resource stats.
package docker

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"zeroone.host/internal/core/logger"
	"zeroone.host/internal/core/ports"
)

// gatewayPort is the fixed port the agent process listens on inside its
// container.
const gatewayPort = 42617

const stopGraceSeconds = 10

// Options configures the engine from application config.
type Options struct {
	Image       string
	NetworkName string
	Domain      string
	PortMin     int
	PortMax     int
}

// Engine drives the Docker daemon. It implements ports.ContainerEngine.
type Engine struct {
	cli  *client.Client
	opts Options
}

var _ ports.ContainerEngine = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Engine{cli: cli, opts: opts}, nil
}

// Ping verifies the daemon is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.cli.Close()
}

// EnsureNetwork creates the shared bridge network if it does not exist.
func (e *Engine) EnsureNetwork(ctx context.Context) error {
	list, err := e.cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("name", e.opts.NetworkName)),
	})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}
	if len(list) > 0 {
		return nil
	}

	if _, err := e.cli.NetworkCreate(ctx, e.opts.NetworkName, types.NetworkCreate{Driver: "bridge"}); err != nil {
		return fmt.Errorf("creating network %s: %w", e.opts.NetworkName, err)
	}
	logger.Info("created docker network", "network", e.opts.NetworkName)
	return nil
}

// EnsureImage pulls the runtime image if it is not present locally.
func (e *Engine) EnsureImage(ctx context.Context) error {
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, e.opts.Image); err == nil {
		return nil
	}

	logger.Info("pulling image", "image", e.opts.Image)
	reader, err := e.cli.ImagePull(ctx, e.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", e.opts.Image, err)
	}
	defer reader.Close()

	// Drain to completion; the pull only finishes when the progress stream
	// is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull progress for %s: %w", e.opts.Image, err)
	}
	logger.Info("pull complete", "image", e.opts.Image)
	return nil
}

// FindFreePort scans the configured host port range and returns the first
// port not published by any existing container. There is no reservation
// step between scan and create; the caller serializes allocations.
func (e *Engine) FindFreePort(ctx context.Context) (int, error) {
	containers, err := e.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return 0, fmt.Errorf("listing containers: %w", err)
	}

	used := make(map[int]bool)
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				used[int(p.PublicPort)] = true
			}
		}
	}

	for port := e.opts.PortMin; port <= e.opts.PortMax; port++ {
		if !used[port] {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free ports available in range %d-%d", e.opts.PortMin, e.opts.PortMax)
}

// ContainerName returns the canonical container name for an agent slug.
func ContainerName(slug string) string {
	return "zeroclaw-" + slug
}

// CreateContainer creates (but does not start) an agent container: gateway
// port published on the chosen host port, plan resource limits, restart
// policy, and the Traefik labels that make <slug>.<domain> route to the
// gateway with automatic TLS.
func (e *Engine) CreateContainer(ctx context.Context, opts ports.CreateContainerOptions) (string, error) {
	exposed := nat.Port(fmt.Sprintf("%d/tcp", gatewayPort))

	env := []string{
		"API_KEY=" + opts.APIKey,
		"PROVIDER=" + opts.Provider,
		"ZEROCLAW_MODEL=" + opts.Model,
		"ZEROCLAW_ALLOW_PUBLIC_BIND=true",
		fmt.Sprintf("ZEROCLAW_GATEWAY_PORT=%d", gatewayPort),
		"HOME=/zeroclaw-data",
		"ZEROCLAW_WORKSPACE=/zeroclaw-data/workspace",
	}
	if opts.ProviderURL != "" {
		env = append(env, "ZEROCLAW_PROVIDER_URL="+opts.ProviderURL)
	}

	labels := map[string]string{
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", opts.Slug):                      fmt.Sprintf("Host(`%s.%s`)", opts.Slug, e.opts.Domain),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", opts.Slug):               "websecure",
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", opts.Slug):          "letsencrypt",
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", opts.Slug): strconv.Itoa(gatewayPort),
		"managed-by": "zeroone",
		"agent-slug": opts.Slug,
	}

	memoryBytes := int64(opts.MemoryMb) * 1024 * 1024
	nanoCPUs := int64(math.Round(opts.CPUQuota * 1e9))

	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        e.opts.Image,
			Cmd:          []string{"daemon"},
			Env:          env,
			Labels:       labels,
			ExposedPorts: nat.PortSet{exposed: struct{}{}},
			Volumes:      map[string]struct{}{"/zeroclaw-data": {}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				exposed: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(opts.HostPort)}},
			},
			Resources: container.Resources{
				Memory:   memoryBytes,
				NanoCPUs: nanoCPUs,
			},
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
			NetworkMode:   container.NetworkMode(e.opts.NetworkName),
		},
		nil, nil, ContainerName(opts.Slug),
	)
	if err != nil {
		return "", fmt.Errorf("creating container for %s: %w", opts.Slug, err)
	}
	return resp.ID, nil
}

func (e *Engine) StartContainer(ctx context.Context, containerID string) error {
	if err := e.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

// StopContainer stops gracefully with a bounded timeout. Stopping an
// already-stopped container is not an error.
func (e *Engine) StopContainer(ctx context.Context, containerID string) error {
	timeout := stopGraceSeconds
	err := e.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) {
		// The daemon reports stopping a stopped container as a 304; the
		// client swallows that, so anything surfacing here is real.
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

func (e *Engine) RestartContainer(ctx context.Context, containerID string) error {
	timeout := stopGraceSeconds
	if err := e.cli.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("restarting container: %w", err)
	}
	return nil
}

// RemoveContainer force-removes; removing a missing container is not an
// error.
func (e *Engine) RemoveContainer(ctx context.Context, containerID string) error {
	err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}
