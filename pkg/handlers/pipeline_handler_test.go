package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/services"
)

func TestPipelineHandler_Run(t *testing.T) {
	svc := &mockPipelineService{
		runOnceSummary: services.TickSummary{
			StartedAt:          time.Date(2025, 12, 4, 15, 40, 0, 0, time.UTC),
			CyclesClosed:       2,
			InspectionsCreated: 1,
			PhotosLinked:       3,
		},
	}
	handler := NewPipelineHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	rec := httptest.NewRecorder()

	handler.Run(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.runOnceCalls)

	var summary services.TickSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 2, summary.CyclesClosed)
	assert.Equal(t, 1, summary.InspectionsCreated)
	assert.Equal(t, 3, summary.PhotosLinked)
}

func TestPipelineHandler_Run_TickInProgress(t *testing.T) {
	svc := &mockPipelineService{runOnceErr: apperrors.ErrTickInProgress}
	handler := NewPipelineHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	rec := httptest.NewRecorder()

	handler.Run(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "tick_in_progress", body["error"])
}

func TestPipelineHandler_Run_Failure(t *testing.T) {
	svc := &mockPipelineService{runOnceErr: assert.AnError}
	handler := NewPipelineHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	rec := httptest.NewRecorder()

	handler.Run(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "pipeline_failed", body["error"])
}

func TestPipelineHandler_Status(t *testing.T) {
	lastTick := &services.TickSummary{CyclesClosed: 1}
	svc := &mockPipelineService{
		status: services.PipelineStatus{
			SchedulerRunning: true,
			LastTick:         lastTick,
			LastError:        "boom",
		},
	}
	handler := NewPipelineHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil)
	rec := httptest.NewRecorder()

	handler.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status services.PipelineStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.SchedulerRunning)
	assert.False(t, status.TickInProgress)
	require.NotNil(t, status.LastTick)
	assert.Equal(t, 1, status.LastTick.CyclesClosed)
	assert.Equal(t, "boom", status.LastError)
}

func TestPipelineHandler_RegisterRoutes(t *testing.T) {
	handler := NewPipelineHandler(&mockPipelineService{}, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Run is POST-only.
	req = httptest.NewRequest(http.MethodGet, "/api/pipeline/run", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
