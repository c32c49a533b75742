package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zeroone.host/internal/core/domain"
)

func runningAgent(t *testing.T, repo *fakeRepo) *domain.Agent {
	t.Helper()
	agent := &domain.Agent{
		ID:          "a1",
		UserID:      "u1",
		Name:        "Helper Bot",
		Slug:        "helper-bot",
		ContainerID: "ctr-helper-bot",
		Status:      domain.AgentStatusRunning,
	}
	require.NoError(t, repo.Create(context.Background(), agent))
	return agent
}

func TestMonitorRecordsStatsForHealthyAgent(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeEngine()
	engine.stats = domain.StatsSnapshot{MemoryMb: 73.4, CPUPercent: 2.1, ReadAt: time.Now()}
	gateway := &fakeGateway{healthy: true}
	bus := newFakeBus()
	agent := runningAgent(t, repo)

	m := NewAgentMonitor(repo, engine, gateway, fakeResolver{}, bus)
	m.sweep(context.Background())

	got, err := repo.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusRunning, got.Status)
	assert.Equal(t, 73.4, got.MemoryMb)
	assert.Equal(t, 2.1, got.CPUPercent)
	assert.NotNil(t, got.LastHealthAt)

	cached, err := bus.CachedStats(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 73.4, cached.MemoryMb)
}

func TestMonitorMarksUnhealthyAgent(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeEngine()
	gateway := &fakeGateway{healthy: false}
	bus := newFakeBus()
	agent := runningAgent(t, repo)

	m := NewAgentMonitor(repo, engine, gateway, fakeResolver{}, bus)
	m.sweep(context.Background())

	got, err := repo.Get(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusError, got.Status)

	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.AgentStatusError, bus.events[0].Status)
	assert.Equal(t, "health check failed", bus.events[0].Message)
}

func TestMonitorSkipsNonRunningAgents(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeEngine()
	gateway := &fakeGateway{healthy: false}
	bus := newFakeBus()

	stopped := &domain.Agent{ID: "a2", UserID: "u1", Slug: "idle", Status: domain.AgentStatusStopped}
	require.NoError(t, repo.Create(context.Background(), stopped))

	m := NewAgentMonitor(repo, engine, gateway, fakeResolver{}, bus)
	m.sweep(context.Background())

	got, err := repo.Get(context.Background(), stopped.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusStopped, got.Status)
	assert.Empty(t, bus.events)
}
