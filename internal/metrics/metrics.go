// Package metrics holds the Prometheus collectors for agent lifecycle and
// resource usage. HTTP-level metrics live with the HTTP handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	agentDeploysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_deploys_total",
			Help: "Total number of agent deployments by outcome",
		},
		[]string{"outcome"},
	)

	agentOperationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_operation_errors_total",
			Help: "Total number of background agent operations that ended in ERROR",
		},
	)

	agentsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agents_running",
			Help: "Number of agents currently in RUNNING state",
		},
	)

	agentCPUUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_cpu_usage_percent",
			Help: "Agent CPU usage percentage",
		},
		[]string{"slug"},
	)

	agentRAMUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_ram_usage_mb",
			Help: "Agent RAM usage in MB",
		},
		[]string{"slug"},
	)
)

// RecordDeploy increments the deploy counter; outcome is "success" or
// "failure".
func RecordDeploy(outcome string) {
	agentDeploysTotal.WithLabelValues(outcome).Inc()
}

// RecordOperationError counts a background operation ending in ERROR.
func RecordOperationError() {
	agentOperationErrors.Inc()
}

// SetRunningAgents sets the current number of RUNNING agents.
func SetRunningAgents(count int) {
	agentsRunning.Set(float64(count))
}

// RecordAgentResources records one agent's CPU and RAM usage.
func RecordAgentResources(slug string, cpu, ram float64) {
	agentCPUUsage.WithLabelValues(slug).Set(cpu)
	agentRAMUsage.WithLabelValues(slug).Set(ram)
}

// DropAgent removes per-agent series after deletion.
func DropAgent(slug string) {
	agentCPUUsage.DeleteLabelValues(slug)
	agentRAMUsage.DeleteLabelValues(slug)
}
