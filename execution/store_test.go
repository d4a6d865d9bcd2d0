package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/script"
	"github.com/goliatone/go-scriptdesk/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newRecord(id, requester string, status Status) Record {
	return Record{
		ID:            id,
		ScriptID:      "1",
		ScriptName:    "User Data Analysis",
		Status:        status,
		StartTime:     baseTime,
		RequestedBy:   requester,
		ScriptType:    "analysis",
		ExecutionName: "nightly " + id,
		Inputs: script.Values{
			"user_status": script.Scalar("active"),
			"hosts":       script.List("web-1", "web-2"),
			"items":       script.Table(script.Row{"sku": "ABC123", "quantity": "4"}),
		},
	}
}

type failingKV struct {
	storage.KV
	fail bool
}

func (f *failingKV) Put(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.KV.Put(ctx, key, value)
}

func TestStoreAddAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, storage.NewMemory())
	require.NoError(t, err)

	rec := newRecord("100", "Regular User", StatusPendingApproval)
	added, err := store.Add(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "100", added.ID)

	got, ok := store.Get("100")
	require.True(t, ok)
	assert.Equal(t, StatusPendingApproval, got.Status)
	assert.True(t, got.Inputs["hosts"].Equal(script.List("web-1", "web-2")))

	_, ok = store.Get("missing")
	assert.False(t, ok)

	_, err = store.MustGet("missing")
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeExecutionNotFound))
}

func TestStoreAddCopiesInputs(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)

	rec := newRecord("1", "Admin User", StatusAboutToRun)
	_, err = store.Add(ctx, rec)
	require.NoError(t, err)

	rec.Inputs["user_status"] = script.Scalar("changed")
	got, _ := store.Get("1")
	assert.Equal(t, "active", got.Inputs.Text("user_status"))

	got.Inputs["user_status"] = script.Scalar("changed again")
	again, _ := store.Get("1")
	assert.Equal(t, "active", again.Inputs.Text("user_status"))
}

func TestStoreRejectsDuplicateAndEmptyIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)

	_, err = store.Add(ctx, newRecord("1", "a", StatusRunning))
	require.NoError(t, err)

	_, err = store.Add(ctx, newRecord("1", "b", StatusRunning))
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeValidationFailed))

	_, err = store.Add(ctx, Record{})
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeValidationFailed))
	assert.Equal(t, 1, store.Len())
}

func TestStoreUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)
	_, err = store.Add(ctx, newRecord("7", "Regular User", StatusRunning))
	require.NoError(t, err)

	end := baseTime.Add(3 * time.Second)
	updated, ok, err := store.Update(ctx, "7", StatusPatch(StatusCompleted).WithResult("done").WithEndTime(end))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, "done", updated.Result)
	require.NotNil(t, updated.EndTime)
	assert.True(t, updated.EndTime.Equal(end))
	assert.Equal(t, "Regular User", updated.RequestedBy)
	assert.Equal(t, "nightly 7", updated.ExecutionName)
}

func TestStoreUpdateMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	store, err := NewStore(ctx, kv)
	require.NoError(t, err)

	_, ok, err := store.Update(ctx, "nope", StatusPatch(StatusCompleted))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, kv.Snapshot())
}

func TestStoreUpdateFuncAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)
	_, err = store.Add(ctx, newRecord("1", "a", StatusRejected))
	require.NoError(t, err)

	_, ok, err := store.UpdateFunc(ctx, "1", func(cur Record) (Patch, error) {
		if cur.Status.Terminal() {
			return Patch{}, scriptdesk.ErrInvalidTransition
		}
		return StatusPatch(StatusRunning), nil
	})
	assert.True(t, ok)
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeInvalidTransition))

	got, _ := store.Get("1")
	assert.Equal(t, StatusRejected, got.Status)
}

func TestStoreFilterPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)

	for _, id := range []string{"30", "10", "20"} {
		_, err := store.Add(ctx, newRecord(id, "a", StatusPendingApproval))
		require.NoError(t, err)
	}
	_, _, err = store.Update(ctx, "10", StatusPatch(StatusAboutToRun))
	require.NoError(t, err)

	pending := store.Filter(ByStatus(StatusPendingApproval))
	require.Len(t, pending, 2)
	assert.Equal(t, "30", pending[0].ID)
	assert.Equal(t, "20", pending[1].ID)
	assert.Equal(t, []string{"30", "10", "20"}, store.IDs())
}

func TestStoreReloadReflectsCommittedState(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	store, err := NewStore(ctx, kv)
	require.NoError(t, err)
	_, err = store.Add(ctx, newRecord("1", "Regular User", StatusPendingApproval))
	require.NoError(t, err)
	_, err = store.Add(ctx, newRecord("2", "Admin User", StatusAboutToRun))
	require.NoError(t, err)
	_, _, err = store.Update(ctx, "1", StatusPatch(StatusRejected).WithRejection("Admin User", "missing data").WithEndTime(baseTime))
	require.NoError(t, err)

	reloaded, err := NewStore(ctx, kv)
	require.NoError(t, err)
	require.Equal(t, store.IDs(), reloaded.IDs())

	got, ok := reloaded.Get("1")
	require.True(t, ok)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "missing data", got.RejectionReason)
	assert.Equal(t, "Admin User", got.RejectedBy)
	assert.True(t, got.StartTime.Equal(baseTime))
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(baseTime))
	assert.True(t, got.Inputs["items"].Equal(script.Table(script.Row{"sku": "ABC123", "quantity": "4"})))
	assert.True(t, got.Inputs["hosts"].Equal(script.List("web-1", "web-2")))
}

func TestStoreMalformedStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Put(ctx, storage.KeyExecutions, []byte(`{not json`)))

	store, err := NewStore(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	_, err = store.Add(ctx, newRecord("1", "a", StatusRunning))
	require.NoError(t, err)

	reloaded, err := NewStore(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestStoreRollsBackWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: storage.NewMemory()}
	store, err := NewStore(ctx, kv)
	require.NoError(t, err)

	_, err = store.Add(ctx, newRecord("1", "a", StatusRunning))
	require.NoError(t, err)

	kv.fail = true
	_, err = store.Add(ctx, newRecord("2", "a", StatusRunning))
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeStorageFailed))
	assert.Equal(t, 1, store.Len())

	_, _, err = store.Update(ctx, "1", StatusPatch(StatusCompleted))
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeStorageFailed))
	got, _ := store.Get("1")
	assert.Equal(t, StatusRunning, got.Status)

	kv.fail = false
	_, err = store.Add(ctx, newRecord("2", "a", StatusRunning))
	require.NoError(t, err)
}

func TestStoreNotifiesObservers(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)

	var added []string
	var updated []RecordUpdated
	store.SubscribeAdded(func(_ context.Context, evt RecordAdded) error {
		added = append(added, evt.Record.ID)
		return nil
	})
	sub := store.SubscribeUpdated(func(_ context.Context, evt RecordUpdated) error {
		updated = append(updated, evt)
		return errors.New("observer failures are not fatal")
	})

	_, err = store.Add(ctx, newRecord("1", "a", StatusRunning))
	require.NoError(t, err)
	_, _, err = store.Update(ctx, "1", StatusPatch(StatusCompleted).WithResult("ok"))
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, added)
	require.Len(t, updated, 1)
	assert.Equal(t, StatusRunning, updated[0].Previous.Status)
	assert.Equal(t, StatusCompleted, updated[0].Record.Status)
	assert.Equal(t, []string{"status", "result"}, updated[0].Fields)

	sub.Unsubscribe()
	_, _, err = store.Update(ctx, "1", Patch{}.WithResult("again"))
	require.NoError(t, err)
	assert.Len(t, updated, 1)
}

func TestStoreSharesStorageBackends(t *testing.T) {
	ctx := context.Background()
	file, err := storage.NewFileKV(t.TempDir())
	require.NoError(t, err)

	store, err := NewStore(ctx, file)
	require.NoError(t, err)
	_, err = store.Add(ctx, newRecord("5", "a", StatusPendingApproval))
	require.NoError(t, err)

	reloaded, err := NewStore(ctx, file)
	require.NoError(t, err)
	got, ok := reloaded.Get("5")
	require.True(t, ok)
	assert.Equal(t, "nightly 5", got.ExecutionName)
}
