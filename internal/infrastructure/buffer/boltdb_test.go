package buffer

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue", "floorctl.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestAppendKeepsOrder(t *testing.T) {
	store, _ := openTemp(t)

	first, err := store.Append(Action{Operation: OperationCreateRoom, LocalRef: "r1"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.JSONEq(t, `{}`, string(first.Payload))

	_, err = store.Append(Action{Operation: OperationBook, RoomID: LocalRefPrefix + "r1", Payload: json.RawMessage(`{"participants":2}`)})
	require.NoError(t, err)
	_, err = store.Append(Action{Operation: OperationFree, RoomID: "room-9"})
	require.NoError(t, err)

	actions, err := store.List()
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, OperationCreateRoom, actions[0].Operation)
	assert.Equal(t, OperationBook, actions[1].Operation)
	assert.Equal(t, OperationFree, actions[2].Operation)

	ref, ok := actions[1].TargetsLocalRef()
	assert.True(t, ok)
	assert.Equal(t, "r1", ref)
	_, ok = actions[2].TargetsLocalRef()
	assert.False(t, ok)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestReplaceKeepsPosition(t *testing.T) {
	store, _ := openTemp(t)

	a, err := store.Append(Action{Operation: OperationUpdateRoom, RoomID: "x"})
	require.NoError(t, err)
	_, err = store.Append(Action{Operation: OperationFree, RoomID: "x"})
	require.NoError(t, err)

	a.Attempts = 3
	a.Payload = json.RawMessage(`{"force":true}`)
	require.NoError(t, store.Replace(a))

	actions, err := store.List()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, a.ID, actions[0].ID)
	assert.Equal(t, 3, actions[0].Attempts)
	assert.JSONEq(t, `{"force":true}`, string(actions[0].Payload))

	err = store.Replace(Action{ID: "missing"})
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestRemove(t *testing.T) {
	store, _ := openTemp(t)

	a, err := store.Append(Action{Operation: OperationDeleteRoom, RoomID: "x"})
	require.NoError(t, err)
	require.NoError(t, store.Remove(a.ID))
	require.NoError(t, store.Remove(a.ID))

	_, err = store.Get(a.ID)
	assert.ErrorIs(t, err, ErrActionNotFound)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestUnreadableRowsAreListedAndRemovable(t *testing.T) {
	store, _ := openTemp(t)

	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), []byte("{not json"))
	}))
	good, err := store.Append(Action{Operation: OperationFree, RoomID: "room-1"})
	require.NoError(t, err)

	actions, err := store.List()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, OperationUnreadable, actions[0].Operation)
	assert.NotEmpty(t, actions[0].ID)
	assert.Equal(t, good.ID, actions[1].ID)

	got, err := store.Get(actions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, OperationUnreadable, got.Operation)

	require.NoError(t, store.Remove(actions[0].ID))
	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	actions, err = store.List()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, good.ID, actions[0].ID)
}

func TestRefsAndWatermarkSurviveReopen(t *testing.T) {
	store, path := openTemp(t)

	_, found, err := store.Ref("r1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.BindRef("r1", RefBinding{RoomID: "room-1"}))
	require.NoError(t, store.BindRef("r2", RefBinding{Dropped: true}))
	require.NoError(t, store.SetWatermark(42))
	_, err = store.Append(Action{Operation: OperationFree, RoomID: "room-1"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	binding, found, err := reopened.Ref("r1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "room-1", binding.RoomID)

	binding, _, err = reopened.Ref("r2")
	require.NoError(t, err)
	assert.True(t, binding.Dropped)

	watermark, err := reopened.Watermark()
	require.NoError(t, err)
	assert.Equal(t, int64(42), watermark)

	actions, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestNilStore(t *testing.T) {
	var store *Store
	_, err := store.List()
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}
