package ports

import (
	"context"
	"time"

	"zeroone.host/internal/core/domain"
)

type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Update(ctx context.Context, agent *domain.Agent) error
	// UpdateFields patches a subset of columns; used by background tasks so
	// concurrent metric polls don't overwrite whole rows.
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	Get(ctx context.Context, id string) (*domain.Agent, error)
	GetOwned(ctx context.Context, id, userID string) (*domain.Agent, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Agent, error)
	ListByStatus(ctx context.Context, status domain.AgentStatus) ([]*domain.Agent, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// NameExists is case-insensitive and global: all agents share one
	// subdomain namespace.
	NameExists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// CreateContainerOptions carries everything the engine needs to create one
// agent container. Resource limits are resolved from the owner's plan at
// call time and fixed for the container's lifetime.
type CreateContainerOptions struct {
	Slug        string
	APIKey      string
	Provider    string
	Model       string
	ProviderURL string
	HostPort    int
	MemoryMb    int
	CPUQuota    float64
}

// ContainerEngine is the container-runtime boundary. The Docker
// implementation lives in internal/docker; tests substitute fakes.
type ContainerEngine interface {
	EnsureNetwork(ctx context.Context) error
	EnsureImage(ctx context.Context) error
	FindFreePort(ctx context.Context) (int, error)
	CreateContainer(ctx context.Context, opts CreateContainerOptions) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	RestartContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
	WriteWorkspace(ctx context.Context, containerID string, ws domain.Workspace) error
	WaitForPairingCode(ctx context.Context, containerID string, timeout time.Duration) (string, error)
	WaitForNewPairingCode(ctx context.Context, containerID string, timeout time.Duration, previousCode string) (string, error)
	ContainerLogs(ctx context.Context, containerID string, tail int) ([]string, error)
	ContainerStats(ctx context.Context, containerID string) (domain.StatsSnapshot, error)
}

// Address is a resolved agent endpoint. Whether it points at the container
// name (shared network) or loopback plus the published host port is decided
// once at startup, not per call site.
type Address struct {
	Host string
	Port int
}

// AddressResolver maps an agent to its gateway endpoint.
type AddressResolver interface {
	Resolve(slug string, hostPort int) Address
}

// GatewayClient speaks the agent process's HTTP control protocol.
type GatewayClient interface {
	// CheckHealth returns true on any 2xx; network errors mean unhealthy,
	// never an error value, because callers poll it in a loop.
	CheckHealth(ctx context.Context, addr Address) bool
	// Pair exchanges a 6-digit pairing code for a bearer token, retrying
	// with backoff while the agent's listener is still coming up.
	Pair(ctx context.Context, addr Address, code string) (string, error)
	SendMessage(ctx context.Context, addr Address, token, message string) (map[string]any, error)
}

// EventBus fans agent lifecycle events out to dashboard connections and
// caches the latest stats snapshot per agent.
type EventBus interface {
	PublishAgentEvent(ctx context.Context, ev domain.AgentEvent) error
	SubscribeAgentEvents(ctx context.Context) (<-chan domain.AgentEvent, error)
	CacheStats(ctx context.Context, agentID string, s domain.StatsSnapshot) error
	CachedStats(ctx context.Context, agentID string) (*domain.StatsSnapshot, error)
}
