package services

import (
	"context"
	"time"

	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/logger"
	"zeroone.host/internal/core/ports"
	"zeroone.host/internal/metrics"
)

const monitorInterval = 30 * time.Second

// AgentMonitor periodically polls every RUNNING agent: gateway health plus a
// container resource reading. Agents whose gateway stops answering are moved
// to ERROR so the dashboard reflects reality without anyone clicking refresh.
type AgentMonitor struct {
	agents   ports.AgentRepository
	engine   ports.ContainerEngine
	gateway  ports.GatewayClient
	resolver ports.AddressResolver
	bus      ports.EventBus
	interval time.Duration
}

func NewAgentMonitor(
	agents ports.AgentRepository,
	engine ports.ContainerEngine,
	gateway ports.GatewayClient,
	resolver ports.AddressResolver,
	bus ports.EventBus,
) *AgentMonitor {
	return &AgentMonitor{
		agents:   agents,
		engine:   engine,
		gateway:  gateway,
		resolver: resolver,
		bus:      bus,
		interval: monitorInterval,
	}
}

// Start blocks until ctx is canceled; run it in its own goroutine.
func (m *AgentMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *AgentMonitor) sweep(ctx context.Context) {
	agents, err := m.agents.ListByStatus(ctx, domain.AgentStatusRunning)
	if err != nil {
		logger.Error("monitor: listing running agents failed", "error", err)
		return
	}

	metrics.SetRunningAgents(len(agents))
	for _, agent := range agents {
		m.checkAgent(ctx, agent)
	}
}

func (m *AgentMonitor) checkAgent(ctx context.Context, agent *domain.Agent) {
	addr := m.resolver.Resolve(agent.Slug, agent.ContainerPort)

	if !m.gateway.CheckHealth(ctx, addr) {
		logger.Warn("monitor: agent unhealthy", "agent_id", agent.ID, "slug", agent.Slug)
		if err := m.agents.UpdateFields(ctx, agent.ID, map[string]any{
			"status": domain.AgentStatusError,
		}); err != nil {
			logger.Error("monitor: marking agent unhealthy failed", "agent_id", agent.ID, "error", err)
			return
		}
		ev := domain.AgentEvent{
			AgentID: agent.ID,
			Slug:    agent.Slug,
			Status:  domain.AgentStatusError,
			Message: "health check failed",
			At:      time.Now(),
		}
		if err := m.bus.PublishAgentEvent(ctx, ev); err != nil {
			logger.Debug("monitor: publishing event failed", "agent_id", agent.ID, "error", err)
		}
		return
	}

	now := time.Now()
	fields := map[string]any{"last_health_at": &now}

	snap, err := m.engine.ContainerStats(ctx, agent.ContainerID)
	if err != nil {
		logger.Debug("monitor: reading stats failed", "agent_id", agent.ID, "error", err)
	} else {
		fields["memory_mb"] = snap.MemoryMb
		fields["cpu_percent"] = snap.CPUPercent
		metrics.RecordAgentResources(agent.Slug, snap.CPUPercent, snap.MemoryMb)
		if err := m.bus.CacheStats(ctx, agent.ID, snap); err != nil {
			logger.Debug("monitor: caching stats failed", "agent_id", agent.ID, "error", err)
		}
	}

	if err := m.agents.UpdateFields(ctx, agent.ID, fields); err != nil {
		logger.Error("monitor: recording health failed", "agent_id", agent.ID, "error", err)
	}
}
