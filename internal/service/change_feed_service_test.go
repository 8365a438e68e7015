package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
)

type fakeNotificationSource struct {
	ch chan *pq.Notification
}

func (f *fakeNotificationSource) Notifications() <-chan *pq.Notification { return f.ch }

func (f *fakeNotificationSource) Ping() error { return nil }

type fakeGuard struct{ writing atomic.Bool }

func (g *fakeGuard) Writing() bool { return g.writing.Load() }

func runFeed(t *testing.T, tables map[string]FeedTable) (*fakeNotificationSource, *fakeRecorder) {
	t.Helper()
	source := &fakeNotificationSource{ch: make(chan *pq.Notification, 8)}
	recorder := &fakeRecorder{}
	svc := NewChangeFeedService(source, recorder, tables, nil, NewMetricsService(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return source, recorder
}

func notify(table, op string) *pq.Notification {
	return &pq.Notification{Channel: "admission_changes", Extra: `{"table":"` + table + `","op":"` + op + `"}`}
}

func TestChangeFeedRecordsDirectMutation(t *testing.T) {
	source, recorder := runFeed(t, map[string]FeedTable{
		TableAdmissionRecords: {Dataset: "students"},
		TableAdminUsers:       {Dataset: "Admin Users"},
	})

	source.ch <- notify(TableAdmissionRecords, "UPDATE")
	source.ch <- nil
	source.ch <- notify(TableAdminUsers, "INSERT")

	require.Eventually(t, func() bool { return len(recorder.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []recordedUpdate{
		{dataset: "students", provenance: models.ProvenanceDirectStoreMutation},
		{dataset: "Admin Users", provenance: models.ProvenanceDirectStoreMutation},
	}, recorder.all())
}

func TestChangeFeedIgnoresOwnWrites(t *testing.T) {
	guard := &fakeGuard{}
	guard.writing.Store(true)
	source, recorder := runFeed(t, map[string]FeedTable{TableAdmissionRecords: {Dataset: "students", Guard: guard}})

	source.ch <- notify(TableAdmissionRecords, "DELETE")
	source.ch <- &pq.Notification{Extra: "not json"}
	source.ch <- notify("audit_logs", "INSERT")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, recorder.all())

	guard.writing.Store(false)
	source.ch <- notify(TableAdmissionRecords, "UPDATE")
	require.Eventually(t, func() bool { return len(recorder.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestProvenanceFollowsLatestSource(t *testing.T) {
	tracker := NewTrackerService(newMemorySyncStateRepo(), TrackerConfig{Dataset: "students"}, nil)
	svc, _, _ := newReconcileFixture(t, ReconcileConfig{QuietPeriod: time.Millisecond})
	svc.tracker = tracker
	writeAdmissionsCSV(t, svc.cfg.SourcePath, [][]string{admissionRow("TX-1", "MIT")})

	_, err := svc.Reconcile(context.Background(), "startup")
	require.NoError(t, err)
	state, err := tracker.LastUpdate(context.Background(), "students")
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceFileImport, state.Provenance)

	require.Eventually(t, func() bool { return !svc.Writing() }, time.Second, time.Millisecond)
	feed := NewChangeFeedService(&fakeNotificationSource{}, tracker, map[string]FeedTable{
		TableAdmissionRecords: {Dataset: "students", Guard: svc},
	}, nil, nil, nil)
	feed.handle(context.Background(), notify(TableAdmissionRecords, "UPDATE"))

	state, err = tracker.LastUpdate(context.Background(), "students")
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceDirectStoreMutation, state.Provenance)
	assert.Equal(t, UpdatedByDatabase, state.UpdatedBy)
}
