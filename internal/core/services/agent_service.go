package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"zeroone.host/internal/core/crypto"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/logger"
	"zeroone.host/internal/core/ports"
	"zeroone.host/internal/core/tracing"
	"zeroone.host/internal/metrics"
)

var (
	ErrQuotaExceeded  = errors.New("agent quota exceeded for plan")
	ErrNameTaken      = errors.New("agent name already taken")
	ErrValidation     = errors.New("invalid input")
	ErrWrongState     = errors.New("operation not allowed in current state")
	ErrNoContainer    = errors.New("agent has no container")
	ErrTokenMissing   = errors.New("agent has no gateway token")
	ErrAPIKeyRequired = errors.New("api key required for this provider")
)

const (
	deployTimeout  = 5 * time.Minute
	settleDelay    = 500 * time.Millisecond
	oldCodeTimeout = 30 * time.Second
	newCodeTimeout = 45 * time.Second
	healthTimeout  = 15 * time.Second
	healthInterval = time.Second

	defaultProvider = "openrouter"
)

type CreateAgentInput struct {
	Name               string                 `json:"name"`
	Provider           string                 `json:"provider"`
	Model              string                 `json:"model"`
	APIKey             string                 `json:"api_key"`
	ProviderURL        string                 `json:"provider_url"`
	Temperature        *float64               `json:"temperature"`
	AgentName          string                 `json:"agent_name"`
	UserName           string                 `json:"user_name"`
	Timezone           string                 `json:"timezone"`
	CommunicationStyle string                 `json:"communication_style"`
	MemoryBackend      domain.MemoryBackend   `json:"memory_backend"`
	AutoSave           *bool                  `json:"auto_save"`
	Channels           *domain.ChannelsConfig `json:"channels"`
}

// UpdateAgentInput patches a subset of agent fields. Nil pointers mean "leave
// unchanged".
type UpdateAgentInput struct {
	Name               *string                `json:"name"`
	Model              *string                `json:"model"`
	APIKey             *string                `json:"api_key"`
	ProviderURL        *string                `json:"provider_url"`
	Temperature        *float64               `json:"temperature"`
	AgentName          *string                `json:"agent_name"`
	UserName           *string                `json:"user_name"`
	Timezone           *string                `json:"timezone"`
	CommunicationStyle *string                `json:"communication_style"`
	MemoryBackend      *domain.MemoryBackend  `json:"memory_backend"`
	AutoSave           *bool                  `json:"auto_save"`
	Channels           *domain.ChannelsConfig `json:"channels"`
}

// AgentService orchestrates the agent lifecycle: provisioning containers,
// the pairing handshake, config updates and teardown. Slow container work
// runs in background goroutines; the HTTP layer only sees the synchronous
// validation phase.
type AgentService struct {
	agents   ports.AgentRepository
	users    ports.UserRepository
	engine   ports.ContainerEngine
	gateway  ports.GatewayClient
	resolver ports.AddressResolver
	bus      ports.EventBus
	box      *crypto.Box
	// domain is the Traefik wildcard zone agents are routed under.
	domain string

	// locks serializes mutating background work per agent so a restart
	// cannot interleave with an in-flight deploy.
	locks sync.Map
	// portMu covers the find-port/create-container window; without it two
	// concurrent deploys can pick the same host port.
	portMu sync.Mutex

	sleep func(time.Duration)
}

func NewAgentService(
	agents ports.AgentRepository,
	users ports.UserRepository,
	engine ports.ContainerEngine,
	gateway ports.GatewayClient,
	resolver ports.AddressResolver,
	bus ports.EventBus,
	box *crypto.Box,
	domain string,
) *AgentService {
	return &AgentService{
		agents:   agents,
		users:    users,
		engine:   engine,
		gateway:  gateway,
		resolver: resolver,
		bus:      bus,
		box:      box,
		domain:   domain,
		sleep:    time.Sleep,
	}
}

func (s *AgentService) lockFor(agentID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(agentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateAgent validates quota and input synchronously, persists the agent as
// PENDING and kicks off the container deployment in the background.
func (s *AgentService) CreateAgent(ctx context.Context, userID string, in CreateAgentInput) (*domain.Agent, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := domain.LimitsFor(user.Plan)
	if limits.MaxAgents > 0 {
		count, err := s.agents.CountByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if count >= int64(limits.MaxAgents) {
			return nil, ErrQuotaExceeded
		}
	}

	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrValidation)
	}
	taken, err := s.agents.NameExists(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameTaken
	}

	provider := in.Provider
	if provider == "" {
		provider = defaultProvider
	}
	// Ollama talks to a local endpoint and needs no key.
	if in.APIKey == "" && provider != "ollama" {
		return nil, ErrAPIKeyRequired
	}

	backend := in.MemoryBackend
	if backend == "" {
		backend = domain.MemoryBackendSQLite
	}
	if !domain.ValidMemoryBackend(backend) {
		return nil, fmt.Errorf("%w: unknown memory backend %q", ErrValidation, backend)
	}

	temperature := 0.7
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return nil, fmt.Errorf("%w: temperature out of range", ErrValidation)
		}
		temperature = *in.Temperature
	}

	autoSave := true
	if in.AutoSave != nil {
		autoSave = *in.AutoSave
	}

	slug, err := uniqueSlug(ctx, s.agents, in.Name)
	if err != nil {
		return nil, err
	}

	agent := &domain.Agent{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Name:               in.Name,
		Slug:               slug,
		Status:             domain.AgentStatusPending,
		Provider:           provider,
		Model:              in.Model,
		Temperature:        temperature,
		ProviderURL:        in.ProviderURL,
		AgentName:          in.AgentName,
		UserName:           in.UserName,
		Timezone:           in.Timezone,
		CommunicationStyle: in.CommunicationStyle,
		MemoryBackend:      backend,
		AutoSave:           autoSave,
		Subdomain:          slug + "." + s.domain,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}

	if in.APIKey != "" {
		enc, err := s.box.Encrypt(in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypting api key: %w", err)
		}
		agent.EncryptedAPIKey = enc
	}
	if in.Channels != nil {
		enc, err := s.encryptChannels(in.Channels)
		if err != nil {
			return nil, err
		}
		agent.EncryptedChannels = enc
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	go s.deploy(agent.ID, limits)

	return agent, nil
}

// deploy runs the full provisioning sequence for a freshly created agent.
// Any failure leaves the agent in ERROR with the container preserved for
// log inspection.
func (s *AgentService) deploy(agentID string, limits domain.PlanLimits) {
	mu := s.lockFor(agentID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "agent.deploy")
	defer span.End()

	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		logger.Error("deploy: loading agent failed", "agent_id", agentID, "error", err)
		return
	}

	succeeded := false
	defer func() {
		if !succeeded {
			metrics.RecordDeploy("failure")
		}
	}()

	s.setStatus(ctx, agent, domain.AgentStatusStarting, "deploying container")

	if err := s.engine.EnsureNetwork(ctx); err != nil {
		s.fail(ctx, agent, fmt.Errorf("ensuring network: %w", err))
		return
	}
	if err := s.engine.EnsureImage(ctx); err != nil {
		s.fail(ctx, agent, fmt.Errorf("ensuring image: %w", err))
		return
	}

	apiKey := ""
	if agent.EncryptedAPIKey != "" {
		apiKey, err = s.box.Decrypt(agent.EncryptedAPIKey)
		if err != nil {
			s.fail(ctx, agent, fmt.Errorf("decrypting api key: %w", err))
			return
		}
	}

	s.portMu.Lock()
	port, err := s.engine.FindFreePort(ctx)
	if err != nil {
		s.portMu.Unlock()
		s.fail(ctx, agent, fmt.Errorf("allocating port: %w", err))
		return
	}
	containerID, err := s.engine.CreateContainer(ctx, ports.CreateContainerOptions{
		Slug:        agent.Slug,
		APIKey:      apiKey,
		Provider:    agent.Provider,
		Model:       agent.Model,
		ProviderURL: agent.ProviderURL,
		HostPort:    port,
		MemoryMb:    limits.MemoryMb,
		CPUQuota:    limits.CPUQuota,
	})
	s.portMu.Unlock()
	if err != nil {
		s.fail(ctx, agent, fmt.Errorf("creating container: %w", err))
		return
	}

	agent.ContainerID = containerID
	agent.ContainerPort = port
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{
		"container_id":   containerID,
		"container_port": port,
	}); err != nil {
		s.fail(ctx, agent, fmt.Errorf("persisting container binding: %w", err))
		return
	}

	if err := s.engine.StartContainer(ctx, containerID); err != nil {
		s.fail(ctx, agent, fmt.Errorf("starting container: %w", err))
		return
	}

	// Let the runtime create its data volume layout before we copy files in.
	s.sleep(settleDelay)

	// On first deploy a missing workspace just means default personas; the
	// agent still boots. Config updates treat this as fatal instead.
	if err := s.engine.WriteWorkspace(ctx, containerID, s.workspaceFor(agent)); err != nil {
		logger.Warn("deploy: writing workspace failed, continuing with defaults",
			"agent_id", agent.ID, "error", err)
	}

	token, err := s.pairAfterRestart(ctx, agent)
	if err != nil {
		s.fail(ctx, agent, err)
		return
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	if !s.waitHealthy(ctx, addr, healthTimeout) {
		s.fail(ctx, agent, errors.New("agent did not become healthy after pairing"))
		return
	}

	now := time.Now()
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{
		"encrypted_token": token,
		"status":          domain.AgentStatusRunning,
		"last_health_at":  &now,
	}); err != nil {
		s.fail(ctx, agent, fmt.Errorf("persisting deployment: %w", err))
		return
	}
	succeeded = true
	agent.Status = domain.AgentStatusRunning
	s.publish(ctx, agent, "agent deployed")
	metrics.RecordDeploy("success")
	logger.Info("agent deployed", "agent_id", agent.ID, "slug", agent.Slug, "port", port)
}

// pairAfterRestart performs the pairing handshake: capture the code printed
// at first boot, restart so the runtime picks up the written workspace and
// prints a fresh code, then exchange that new code for a bearer token. The
// old code is captured first because the only way to recognize the new one
// is that its value differs.
func (s *AgentService) pairAfterRestart(ctx context.Context, agent *domain.Agent) (string, error) {
	oldCode, err := s.engine.WaitForPairingCode(ctx, agent.ContainerID, oldCodeTimeout)
	if err != nil {
		return "", fmt.Errorf("waiting for initial pairing code: %w", err)
	}

	if err := s.engine.RestartContainer(ctx, agent.ContainerID); err != nil {
		return "", fmt.Errorf("restarting container: %w", err)
	}

	newCode, err := s.engine.WaitForNewPairingCode(ctx, agent.ContainerID, newCodeTimeout, oldCode)
	if err != nil {
		return "", fmt.Errorf("waiting for new pairing code: %w", err)
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	token, err := s.gateway.Pair(ctx, addr, newCode)
	if err != nil {
		return "", fmt.Errorf("pairing: %w", err)
	}

	enc, err := s.box.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("encrypting token: %w", err)
	}
	return enc, nil
}

func (s *AgentService) waitHealthy(ctx context.Context, addr ports.Address, timeout time.Duration) bool {
	attempts := int(timeout / healthInterval)
	for i := 0; i < attempts; i++ {
		if s.gateway.CheckHealth(ctx, addr) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.sleep(healthInterval)
	}
	return s.gateway.CheckHealth(ctx, addr)
}

// Get returns an agent owned by userID.
func (s *AgentService) Get(ctx context.Context, id, userID string) (*domain.Agent, error) {
	return s.agents.GetOwned(ctx, id, userID)
}

func (s *AgentService) List(ctx context.Context, userID string) ([]*domain.Agent, error) {
	return s.agents.ListByUser(ctx, userID)
}

// CheckName reports whether a display name is still free. Names share one
// global namespace because slugs map to subdomains.
func (s *AgentService) CheckName(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("%w: name is required", ErrValidation)
	}
	taken, err := s.agents.NameExists(ctx, name)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Start transitions a STOPPED or ERROR agent back towards RUNNING. The
// container work happens in the background; callers get 202 semantics.
func (s *AgentService) Start(ctx context.Context, id, userID string) error {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	switch agent.Status {
	case domain.AgentStatusStopped, domain.AgentStatusError:
	default:
		return fmt.Errorf("%w: cannot start agent in status %s", ErrWrongState, agent.Status)
	}

	s.setStatus(ctx, agent, domain.AgentStatusStarting, "starting agent")

	if agent.ContainerID == "" {
		// Deploy never got as far as creating a container; run the full
		// sequence again.
		user, err := s.users.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		go s.deploy(agent.ID, domain.LimitsFor(user.Plan))
		return nil
	}

	go s.startExisting(agent.ID)
	return nil
}

func (s *AgentService) startExisting(agentID string) {
	mu := s.lockFor(agentID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		logger.Error("start: loading agent failed", "agent_id", agentID, "error", err)
		return
	}

	if err := s.engine.StartContainer(ctx, agent.ContainerID); err != nil {
		s.fail(ctx, agent, fmt.Errorf("starting container: %w", err))
		return
	}
	s.sleep(settleDelay)

	// A cold boot prints a single fresh pairing code; exchange it for a new
	// token. The workspace is already in the data volume, so no restart is
	// needed before pairing.
	code, err := s.engine.WaitForPairingCode(ctx, agent.ContainerID, newCodeTimeout)
	if err != nil {
		s.fail(ctx, agent, fmt.Errorf("waiting for pairing code: %w", err))
		return
	}
	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	rawToken, err := s.gateway.Pair(ctx, addr, code)
	if err != nil {
		s.fail(ctx, agent, fmt.Errorf("pairing: %w", err))
		return
	}
	token, err := s.box.Encrypt(rawToken)
	if err != nil {
		s.fail(ctx, agent, fmt.Errorf("encrypting token: %w", err))
		return
	}

	if !s.waitHealthy(ctx, addr, healthTimeout) {
		s.fail(ctx, agent, errors.New("agent did not become healthy after start"))
		return
	}

	now := time.Now()
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{
		"encrypted_token": token,
		"status":          domain.AgentStatusRunning,
		"last_health_at":  &now,
	}); err != nil {
		s.fail(ctx, agent, err)
		return
	}
	agent.Status = domain.AgentStatusRunning
	s.publish(ctx, agent, "agent started")
}

// Stop is synchronous: stopping a container is fast and callers want to see
// STOPPED when the call returns.
func (s *AgentService) Stop(ctx context.Context, id, userID string) error {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if agent.ContainerID == "" {
		return ErrNoContainer
	}

	mu := s.lockFor(agent.ID)
	mu.Lock()
	defer mu.Unlock()

	s.setStatus(ctx, agent, domain.AgentStatusStopping, "stopping agent")

	if err := s.engine.StopContainer(ctx, agent.ContainerID); err != nil {
		s.fail(ctx, agent, fmt.Errorf("stopping container: %w", err))
		return err
	}

	s.setStatus(ctx, agent, domain.AgentStatusStopped, "agent stopped")
	return nil
}

// Restart bounces the container and re-runs the pairing handshake: the
// gateway session does not survive a restart, so a fresh token is exchanged
// and persisted.
func (s *AgentService) Restart(ctx context.Context, id, userID string) error {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if agent.ContainerID == "" {
		return ErrNoContainer
	}

	s.setStatus(ctx, agent, domain.AgentStatusStarting, "restarting agent")
	go s.restartExisting(agent.ID)
	return nil
}

func (s *AgentService) restartExisting(agentID string) {
	mu := s.lockFor(agentID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		logger.Error("restart: loading agent failed", "agent_id", agentID, "error", err)
		return
	}

	token, err := s.pairAfterRestart(ctx, agent)
	if err != nil {
		s.fail(ctx, agent, err)
		return
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	if !s.waitHealthy(ctx, addr, healthTimeout) {
		s.fail(ctx, agent, errors.New("agent did not become healthy after restart"))
		return
	}

	now := time.Now()
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{
		"encrypted_token": token,
		"status":          domain.AgentStatusRunning,
		"last_health_at":  &now,
	}); err != nil {
		s.fail(ctx, agent, err)
		return
	}
	agent.Status = domain.AgentStatusRunning
	s.publish(ctx, agent, "agent restarted")
}

// Update patches agent configuration. Persisting the fields is synchronous;
// if the agent is RUNNING and any workspace-visible field changed, the
// container is reconfigured in the background, which re-runs the pairing
// handshake because a restart invalidates the old gateway session.
func (s *AgentService) Update(ctx context.Context, id, userID string, in UpdateAgentInput) (*domain.Agent, error) {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	workspaceChanged := false

	// Renames keep the slug (and therefore the subdomain and container name)
	// stable; only the display name changes.
	if in.Name != nil && *in.Name != "" && !strings.EqualFold(*in.Name, agent.Name) {
		taken, err := s.agents.NameExists(ctx, *in.Name)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNameTaken
		}
		agent.Name = *in.Name
	}
	if in.Model != nil && *in.Model != "" {
		agent.Model = *in.Model
	}
	if in.ProviderURL != nil {
		agent.ProviderURL = *in.ProviderURL
	}
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return nil, fmt.Errorf("%w: temperature out of range", ErrValidation)
		}
		agent.Temperature = *in.Temperature
	}
	if in.APIKey != nil && *in.APIKey != "" {
		enc, err := s.box.Encrypt(*in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypting api key: %w", err)
		}
		agent.EncryptedAPIKey = enc
	}
	if in.AgentName != nil {
		agent.AgentName = *in.AgentName
		workspaceChanged = true
	}
	if in.UserName != nil {
		agent.UserName = *in.UserName
		workspaceChanged = true
	}
	if in.Timezone != nil {
		agent.Timezone = *in.Timezone
		workspaceChanged = true
	}
	if in.CommunicationStyle != nil {
		agent.CommunicationStyle = *in.CommunicationStyle
		workspaceChanged = true
	}
	if in.MemoryBackend != nil {
		if !domain.ValidMemoryBackend(*in.MemoryBackend) {
			return nil, fmt.Errorf("%w: unknown memory backend %q", ErrValidation, *in.MemoryBackend)
		}
		agent.MemoryBackend = *in.MemoryBackend
		workspaceChanged = true
	}
	if in.AutoSave != nil {
		agent.AutoSave = *in.AutoSave
		workspaceChanged = true
	}
	if in.Channels != nil {
		enc, err := s.encryptChannels(in.Channels)
		if err != nil {
			return nil, err
		}
		agent.EncryptedChannels = enc
		workspaceChanged = true
	}

	agent.UpdatedAt = time.Now()
	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, err
	}

	if workspaceChanged && agent.Status == domain.AgentStatusRunning && agent.ContainerID != "" {
		s.setStatus(ctx, agent, domain.AgentStatusStarting, "applying configuration")
		go s.reconfigure(agent.ID)
	}

	return agent, nil
}

// reconfigure rewrites the workspace inside a running container and re-pairs.
// Unlike first deploy, a failed workspace write here is fatal: the caller
// asked for this exact config to be applied.
func (s *AgentService) reconfigure(agentID string) {
	mu := s.lockFor(agentID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "agent.reconfigure")
	defer span.End()

	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		logger.Error("reconfigure: loading agent failed", "agent_id", agentID, "error", err)
		return
	}

	if err := s.engine.WriteWorkspace(ctx, agent.ContainerID, s.workspaceFor(agent)); err != nil {
		s.fail(ctx, agent, fmt.Errorf("writing workspace: %w", err))
		return
	}

	token, err := s.pairAfterRestart(ctx, agent)
	if err != nil {
		s.fail(ctx, agent, err)
		return
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	if !s.waitHealthy(ctx, addr, healthTimeout) {
		s.fail(ctx, agent, errors.New("agent did not become healthy after reconfigure"))
		return
	}

	now := time.Now()
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{
		"encrypted_token": token,
		"status":          domain.AgentStatusRunning,
		"last_health_at":  &now,
	}); err != nil {
		s.fail(ctx, agent, err)
		return
	}
	agent.Status = domain.AgentStatusRunning
	s.publish(ctx, agent, "configuration applied")
}

// Delete removes the container (if any) and the database row. Synchronous:
// force-removing a container does not wait for graceful shutdown.
func (s *AgentService) Delete(ctx context.Context, id, userID string) error {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	mu := s.lockFor(agent.ID)
	mu.Lock()
	defer mu.Unlock()

	if agent.ContainerID != "" {
		if err := s.engine.RemoveContainer(ctx, agent.ContainerID); err != nil {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	if err := s.agents.Delete(ctx, agent.ID); err != nil {
		return err
	}
	s.locks.Delete(agent.ID)
	metrics.DropAgent(agent.Slug)

	s.publish(ctx, agent, "agent deleted")
	return nil
}

// SendMessage proxies one chat message to the agent's webhook.
func (s *AgentService) SendMessage(ctx context.Context, id, userID, message string) (map[string]any, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if agent.Status != domain.AgentStatusRunning {
		return nil, fmt.Errorf("%w: agent is %s", ErrWrongState, agent.Status)
	}
	if agent.EncryptedToken == "" {
		return nil, ErrTokenMissing
	}

	token, err := s.box.Decrypt(agent.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting token: %w", err)
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	return s.gateway.SendMessage(ctx, addr, token, message)
}

// Logs returns the last tail lines of container output, demultiplexed.
func (s *AgentService) Logs(ctx context.Context, id, userID string, tail int) ([]string, error) {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if agent.ContainerID == "" {
		return nil, ErrNoContainer
	}
	if tail <= 0 || tail > 1000 {
		tail = 100
	}
	return s.engine.ContainerLogs(ctx, agent.ContainerID, tail)
}

// Stats returns a resource snapshot, preferring the monitor's cached reading
// over a live Docker API call.
func (s *AgentService) Stats(ctx context.Context, id, userID string) (*domain.StatsSnapshot, error) {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if agent.ContainerID == "" {
		return nil, ErrNoContainer
	}

	if cached, err := s.bus.CachedStats(ctx, agent.ID); err == nil && cached != nil {
		return cached, nil
	}

	snap, err := s.engine.ContainerStats(ctx, agent.ContainerID)
	if err != nil {
		return nil, err
	}
	if err := s.bus.CacheStats(ctx, agent.ID, snap); err != nil {
		logger.Debug("caching stats failed", "agent_id", agent.ID, "error", err)
	}
	return &snap, nil
}

// DashboardToken returns the plaintext gateway token so the dashboard can
// talk to the agent directly.
func (s *AgentService) DashboardToken(ctx context.Context, id, userID string) (string, error) {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return "", err
	}
	if agent.EncryptedToken == "" {
		return "", ErrTokenMissing
	}
	return s.box.Decrypt(agent.EncryptedToken)
}

// HealthProbe checks the agent's gateway and records the result.
func (s *AgentService) HealthProbe(ctx context.Context, id, userID string) (bool, error) {
	agent, err := s.agents.GetOwned(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if agent.Status != domain.AgentStatusRunning {
		return false, nil
	}

	addr := s.resolver.Resolve(agent.Slug, agent.ContainerPort)
	healthy := s.gateway.CheckHealth(ctx, addr)
	if healthy {
		now := time.Now()
		if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{"last_health_at": &now}); err != nil {
			logger.Debug("recording health probe failed", "agent_id", agent.ID, "error", err)
		}
	}
	return healthy, nil
}

func (s *AgentService) workspaceFor(agent *domain.Agent) domain.Workspace {
	ws := domain.Workspace{
		AgentName:          agent.AgentName,
		UserName:           agent.UserName,
		Timezone:           agent.Timezone,
		CommunicationStyle: agent.CommunicationStyle,
		Temperature:        agent.Temperature,
		MemoryBackend:      agent.MemoryBackend,
		AutoSave:           agent.AutoSave,
	}
	if agent.EncryptedChannels != "" {
		raw, err := s.box.Decrypt(agent.EncryptedChannels)
		if err != nil {
			logger.Warn("decrypting channels failed, rendering without them",
				"agent_id", agent.ID, "error", err)
			return ws
		}
		var channels domain.ChannelsConfig
		if err := json.Unmarshal([]byte(raw), &channels); err != nil {
			logger.Warn("parsing channels failed, rendering without them",
				"agent_id", agent.ID, "error", err)
			return ws
		}
		ws.Channels = &channels
	}
	return ws
}

func (s *AgentService) encryptChannels(channels *domain.ChannelsConfig) (string, error) {
	raw, err := json.Marshal(channels)
	if err != nil {
		return "", fmt.Errorf("marshaling channels: %w", err)
	}
	enc, err := s.box.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("encrypting channels: %w", err)
	}
	return enc, nil
}

// setStatus persists a status transition and publishes the matching event.
func (s *AgentService) setStatus(ctx context.Context, agent *domain.Agent, status domain.AgentStatus, msg string) {
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{"status": status}); err != nil {
		logger.Error("updating status failed", "agent_id", agent.ID, "status", status, "error", err)
	}
	agent.Status = status
	s.publish(ctx, agent, msg)
}

// fail moves the agent to ERROR. The container is left in place so its logs
// stay inspectable.
func (s *AgentService) fail(ctx context.Context, agent *domain.Agent, cause error) {
	logger.Error("agent operation failed", "agent_id", agent.ID, "slug", agent.Slug, "error", cause)
	if err := s.agents.UpdateFields(ctx, agent.ID, map[string]any{"status": domain.AgentStatusError}); err != nil {
		logger.Error("updating status to ERROR failed", "agent_id", agent.ID, "error", err)
	}
	agent.Status = domain.AgentStatusError
	s.publish(ctx, agent, cause.Error())
	metrics.RecordOperationError()
}

func (s *AgentService) publish(ctx context.Context, agent *domain.Agent, msg string) {
	ev := domain.AgentEvent{
		AgentID: agent.ID,
		Slug:    agent.Slug,
		Status:  agent.Status,
		Message: msg,
		At:      time.Now(),
	}
	if err := s.bus.PublishAgentEvent(ctx, ev); err != nil {
		logger.Debug("publishing event failed", "agent_id", agent.ID, "error", err)
	}
}
