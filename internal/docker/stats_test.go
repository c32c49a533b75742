package docker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCPUPercent(t *testing.T) {
	tests := []struct {
		name        string
		cpuDelta    float64
		systemDelta float64
		cores       float64
		want        float64
	}{
		{"half a core of four", 5e8, 4e9, 4, 50},
		{"fully busy single core", 1e9, 1e9, 1, 100},
		{"idle", 0, 1e9, 2, 0},
		{"zero system delta", 5e8, 0, 4, 0},
		{"negative system delta", 5e8, -1, 4, 0},
		{"counter reset", -5e8, 1e9, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cpuPercent(tt.cpuDelta, tt.systemDelta, tt.cores)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
			assert.False(t, math.IsInf(got, 0))
		})
	}
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 12.3, round1(12.34))
	assert.Equal(t, 12.4, round1(12.35))
	assert.Equal(t, 0.0, round1(0.04))
}
