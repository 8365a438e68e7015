package models

import "time"

// Provenance tags where the latest change to a dataset came from.
type Provenance string

const (
	ProvenanceFileImport          Provenance = "file-import"
	ProvenanceDirectStoreMutation Provenance = "direct-store-mutation"
	ProvenanceSystem              Provenance = "system"
)

// Valid reports whether p is a known provenance.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceFileImport, ProvenanceDirectStoreMutation, ProvenanceSystem:
		return true
	}
	return false
}

// SyncState is the last-change record for one dataset. It is overwritten, never versioned.
type SyncState struct {
	Dataset      string     `db:"dataset" json:"dataset"`
	LastSyncedAt time.Time  `db:"last_synced_at" json:"lastUpdatedAt"`
	Provenance   Provenance `db:"provenance" json:"updateType"`
	UpdatedBy    string     `db:"updated_by" json:"updatedBy"`
	UpdatedAt    time.Time  `db:"updated_at" json:"-"`
}

// SkipReason explains why a pass left the store untouched.
type SkipReason string

const (
	SkipSourceMissing SkipReason = "source_missing"
	SkipSourceLocked  SkipReason = "source_locked"
	SkipEmptyBatch    SkipReason = "empty_batch"
)

// SyncResult summarises one reconciliation pass.
type SyncResult struct {
	Dataset      string     `json:"dataset"`
	Trigger      string     `json:"trigger,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   time.Time  `json:"finishedAt"`
	RowsSeen     int        `json:"rowsSeen"`
	Valid        int        `json:"valid"`
	Invalid      int        `json:"invalid"`
	Deleted      int64      `json:"deleted"`
	Inserted     int        `json:"inserted"`
	Rejected     int        `json:"rejected"`
	FailedChunks int        `json:"failedChunks"`
	Changed      bool       `json:"changed"`
	Skipped      SkipReason `json:"skipped,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SyncStatus reports the reconciler state for one dataset.
type SyncStatus struct {
	Dataset string      `json:"dataset"`
	Running bool        `json:"running"`
	Pending bool        `json:"pending"`
	Last    *SyncResult `json:"last"`
	Metrics SyncMetrics `json:"metrics"`
}

// SyncMetrics is a point-in-time summary of pipeline counters for the status endpoint.
type SyncMetrics struct {
	PassesTotal       uint64    `json:"passesTotal"`
	PassesFailed      uint64    `json:"passesFailed"`
	PassesSkipped     uint64    `json:"passesSkipped"`
	RowsInserted      uint64    `json:"rowsInserted"`
	FailedChunks      uint64    `json:"failedChunks"`
	AveragePassMs     float64   `json:"averagePassMs"`
	CacheHitRatio     float64   `json:"cacheHitRatio"`
	RequestsTotal     uint64    `json:"requestsTotal"`
	FeedNotifications uint64    `json:"feedNotifications"`
	GeneratedAt       time.Time `json:"generatedAt"`
}
