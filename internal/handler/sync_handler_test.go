package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
	"github.com/noah-isme/admission-sync/pkg/jobs"
)

type fakeStatus struct{}

func (fakeStatus) Status() models.SyncStatus {
	return models.SyncStatus{Dataset: "students", Running: true, Last: &models.SyncResult{Dataset: "students", Inserted: 12}}
}

type fakeQueue struct {
	jobs   []jobs.Job
	queued bool
	err    error
}

func (f *fakeQueue) Enqueue(job jobs.Job) (bool, error) {
	f.jobs = append(f.jobs, job)
	return f.queued, f.err
}

type fakeLastUpdate struct {
	states  map[string]*models.SyncState
	dataset string
}

func (f *fakeLastUpdate) LastUpdate(_ context.Context, dataset string) (*models.SyncState, error) {
	f.dataset = dataset
	return f.states[dataset], nil
}

func newSyncRouter(queue *fakeQueue, tracker *fakeLastUpdate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSyncHandler(fakeStatus{}, tracker, "Admin Users",
		SyncTarget{Dataset: "students", JobType: "reconcile", Queue: queue},
		SyncTarget{Dataset: "Admin Users", JobType: "admin-import", Queue: &fakeQueue{queued: true}})
	r := gin.New()
	r.GET("/sync/status", h.Status)
	r.POST("/sync/trigger", h.Trigger)
	r.GET("/last-update", h.LastUpdate)
	return r
}

func TestSyncHandlerStatus(t *testing.T) {
	r := newSyncRouter(&fakeQueue{}, &fakeLastUpdate{})

	rec := doRequest(r, http.MethodGet, "/sync/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &status))
	assert.True(t, status.Running)
	assert.Equal(t, 12, status.Last.Inserted)
}

func TestSyncHandlerTriggerQueuesManualPass(t *testing.T) {
	queue := &fakeQueue{queued: true}
	r := newSyncRouter(queue, &fakeLastUpdate{})

	rec := doRequest(r, http.MethodPost, "/sync/trigger", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, TriggerManual, queue.jobs[0].Reason)
	assert.Equal(t, "reconcile", queue.jobs[0].Type)
	assert.JSONEq(t, `{"dataset":"students","queued":true,"coalesced":false}`, string(decodeEnvelope(t, rec).Data))
}

func TestSyncHandlerTriggerErrors(t *testing.T) {
	r := newSyncRouter(&fakeQueue{err: errors.New("queue stopped")}, &fakeLastUpdate{})

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(r, http.MethodPost, "/sync/trigger", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodPost, "/sync/trigger?dataset=courses", nil).Code)
}

func TestSyncHandlerLastUpdate(t *testing.T) {
	at := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	tracker := &fakeLastUpdate{states: map[string]*models.SyncState{
		"students": {Dataset: "students", LastSyncedAt: at, Provenance: models.ProvenanceDirectStoreMutation, UpdatedBy: "database"},
	}}
	r := newSyncRouter(&fakeQueue{}, tracker)

	rec := doRequest(r, http.MethodGet, "/last-update?dataset=students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lastUpdatedAt":"2025-06-03T08:00:00Z","updateType":"direct-store-mutation","updatedBy":"database"}`, string(decodeEnvelope(t, rec).Data))

	rec = doRequest(r, http.MethodGet, "/last-update", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Admin Users", tracker.dataset)
	assert.JSONEq(t, `{"lastUpdatedAt":null,"updateType":null,"updatedBy":null}`, string(decodeEnvelope(t, rec).Data))
}
