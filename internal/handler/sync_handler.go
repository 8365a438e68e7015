package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-sync/internal/models"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/jobs"
	"github.com/noah-isme/admission-sync/pkg/response"
)

// TriggerManual is the job reason recorded for passes requested over HTTP.
const TriggerManual = "manual"

type syncStatusProvider interface {
	Status() models.SyncStatus
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (bool, error)
}

type lastUpdateReader interface {
	LastUpdate(ctx context.Context, dataset string) (*models.SyncState, error)
}

// SyncTarget binds a dataset to the queue that refreshes it.
type SyncTarget struct {
	Dataset string
	JobType string
	Queue   jobEnqueuer
}

// SyncHandler exposes the reconciler state and manual triggers.
type SyncHandler struct {
	status         syncStatusProvider
	tracker        lastUpdateReader
	targets        map[string]SyncTarget
	defaultTarget  string
	defaultTracked string
}

// NewSyncHandler constructs a SyncHandler. The first target is triggered when no dataset is
// given; trackedDataset is reported by /last-update when no dataset is given.
func NewSyncHandler(status syncStatusProvider, tracker lastUpdateReader, trackedDataset string, targets ...SyncTarget) *SyncHandler {
	h := &SyncHandler{
		status:         status,
		tracker:        tracker,
		targets:        make(map[string]SyncTarget, len(targets)),
		defaultTracked: trackedDataset,
	}
	for i, t := range targets {
		if i == 0 {
			h.defaultTarget = t.Dataset
		}
		h.targets[t.Dataset] = t
	}
	return h
}

// Status godoc
// @Summary Reconciler status
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.status.Status(), nil)
}

// Trigger godoc
// @Summary Queue a reconciliation pass
// @Tags Sync
// @Produce json
// @Security BearerAuth
// @Param dataset query string false "Dataset to refresh"
// @Success 202 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sync/trigger [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	dataset := strings.TrimSpace(c.Query("dataset"))
	if dataset == "" {
		dataset = h.defaultTarget
	}
	target, ok := h.targets[dataset]
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown dataset"))
		return
	}

	queued, err := target.Queue.Enqueue(jobs.Job{Type: target.JobType, Reason: TriggerManual})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, http.StatusServiceUnavailable, "sync queue unavailable"))
		return
	}
	response.Accepted(c, gin.H{"dataset": dataset, "queued": queued, "coalesced": !queued})
}

// LastUpdate godoc
// @Summary Last recorded change of a dataset
// @Tags Sync
// @Produce json
// @Param dataset query string false "Dataset name"
// @Success 200 {object} response.Envelope
// @Router /last-update [get]
func (h *SyncHandler) LastUpdate(c *gin.Context) {
	dataset := strings.TrimSpace(c.Query("dataset"))
	if dataset == "" {
		dataset = h.defaultTracked
	}
	state, err := h.tracker.LastUpdate(c.Request.Context(), dataset)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{"lastUpdatedAt": nil, "updateType": nil, "updatedBy": nil}
	if state != nil {
		payload["lastUpdatedAt"] = state.LastSyncedAt
		payload["updateType"] = state.Provenance
		payload["updatedBy"] = state.UpdatedBy
	}
	response.JSON(c, http.StatusOK, payload, nil)
}
