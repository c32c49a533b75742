package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/services"
)

func TestRequireUser(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = userID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := requireUser(next)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", seen)
}

func TestMetricsEndpointGating(t *testing.T) {
	withMetrics := NewServer(nil, nil, nil, true)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	withMetrics.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	withoutMetrics := NewServer(nil, nil, nil, false)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	withoutMetrics.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", domain.ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest},
		{"api key required", services.ErrAPIKeyRequired, http.StatusBadRequest},
		{"name taken", services.ErrNameTaken, http.StatusConflict},
		{"quota", services.ErrQuotaExceeded, http.StatusConflict},
		{"wrong state", fmt.Errorf("%w: agent is STOPPED", services.ErrWrongState), http.StatusConflict},
		{"no container", services.ErrNoContainer, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
