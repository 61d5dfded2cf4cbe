package database

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-assistant/aura-core/internal/apptype"
)

var testDBCounter atomic.Int64

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBCounter.Add(1))
	store, err := NewStore(&Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSchemaBootstrapIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	// Re-applying the schema against the live database must not fail or
	// drop data.
	ctx := context.Background()
	_, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	require.NoError(t, store.initialize(store.db))

	got, err := store.Get(ctx, 1, apptype.KindList, "Покупки", nil)
	require.NoError(t, err)
	assert.Equal(t, "Покупки", got.Title)
}

func TestCreateAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	assert.NotZero(t, list.ID)
	assert.Equal(t, apptype.KindList, list.Kind)
	assert.Nil(t, list.ParentID)

	task, err := store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.NoError(t, err)
	require.NotNil(t, task.ParentID)
	assert.Equal(t, list.ID, *task.ParentID)

	got, err := store.Get(ctx, 1, apptype.KindTask, "Молоко", &list.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = store.Get(ctx, 1, apptype.KindTask, "Хлеб", &list.ID)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestUniquenessWithinParent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))

	// Same title under another parent is fine.
	other, err := store.Create(ctx, 1, apptype.KindList, "Дом", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &other.ID, apptype.Metadata{})
	assert.NoError(t, err)
}

func TestUniquenessAtRootLevel(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	// NULL parents must still collide.
	_, err = store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))

	// A different owner is a different namespace.
	_, err = store.Create(ctx, 2, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	assert.NoError(t, err)
}

func TestParentMustBelongToSameOwner(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	foreign, err := store.Create(ctx, 2, apptype.KindList, "Чужой", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &foreign.ID, apptype.Metadata{})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))

	missing := int64(99999)
	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &missing, apptype.Metadata{})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	first, err := store.SoftDelete(ctx, list.ID, 1)
	require.NoError(t, err)
	assert.True(t, first.Meta.Deleted)

	second, err := store.SoftDelete(ctx, list.ID, 1)
	require.NoError(t, err)
	assert.True(t, second.Meta.Deleted)

	// Only the first delete produced an audit record.
	trail, err := store.AuditTrail(ctx, list.ID, 1)
	require.NoError(t, err)
	ops := make([]string, 0, len(trail))
	for _, rec := range trail {
		ops = append(ops, rec.Op)
	}
	assert.Equal(t, []string{"create", "soft_delete"}, ops)
}

func TestRestore(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	task, err := store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.SoftDelete(ctx, task.ID, 1)
	require.NoError(t, err)

	restored, err := store.Restore(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.False(t, restored.Meta.Deleted)

	// Restoring an active entity fails.
	_, err = store.Restore(ctx, task.ID, 1)
	assert.ErrorIs(t, err, apptype.ErrNotFound)

	// Restoring a nonexistent id fails the same way.
	_, err = store.Restore(ctx, 99999, 1)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestSoftDeleteSurvivesIdentityForRecreate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	task, err := store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.NoError(t, err)
	_, err = store.SoftDelete(ctx, task.ID, 1)
	require.NoError(t, err)

	// The identity slot is still occupied by the soft-deleted row; callers
	// restore instead of recreating.
	_, err = store.Create(ctx, 1, apptype.KindTask, "Молоко", "", &list.ID, apptype.Metadata{})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))
}

func TestMoveRejectsCycles(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a, err := store.Create(ctx, 1, apptype.KindList, "A", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	b, err := store.Create(ctx, 1, apptype.KindList, "B", "", &a.ID, apptype.Metadata{})
	require.NoError(t, err)
	c, err := store.Create(ctx, 1, apptype.KindList, "C", "", &b.ID, apptype.Metadata{})
	require.NoError(t, err)

	// Moving A under its grandchild C would create a cycle.
	_, err = store.Move(ctx, a.ID, 1, c.ID)
	assert.ErrorIs(t, err, apptype.ErrCycleDetected)

	// Moving an entity under itself is the degenerate cycle.
	_, err = store.Move(ctx, a.ID, 1, a.ID)
	assert.ErrorIs(t, err, apptype.ErrCycleDetected)

	// A legal move still works.
	moved, err := store.Move(ctx, c.ID, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, *moved.ParentID)
}

func TestMoveChecksUniquenessAtDestination(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	src, err := store.Create(ctx, 1, apptype.KindList, "Работа", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	dst, err := store.Create(ctx, 1, apptype.KindList, "Вторник", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	task, err := store.Create(ctx, 1, apptype.KindTask, "Отчёт", "", &src.ID, apptype.Metadata{})
	require.NoError(t, err)
	_, err = store.Create(ctx, 1, apptype.KindTask, "Отчёт", "", &dst.ID, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.Move(ctx, task.ID, 1, dst.ID)
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))
}

func TestUpdateRevalidatesUniqueness(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	other, err := store.Create(ctx, 1, apptype.KindList, "Дом", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	title := "Покупки"
	_, err = store.Update(ctx, other.ID, 1, FieldChanges{Title: &title})
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))
}

func TestHardDeleteRequiresSoftDeleteOrForce(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	err = store.HardDelete(ctx, list.ID, 1, false)
	require.Error(t, err)
	assert.True(t, apptype.IsConstraintViolation(err))

	_, err = store.SoftDelete(ctx, list.ID, 1)
	require.NoError(t, err)
	require.NoError(t, store.HardDelete(ctx, list.ID, 1, false))

	_, err = store.GetByID(ctx, list.ID, 1)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestOwnerScoping(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)

	_, err = store.GetByID(ctx, list.ID, 2)
	assert.ErrorIs(t, err, apptype.ErrNotFound)

	_, err = store.SoftDelete(ctx, list.ID, 2)
	assert.ErrorIs(t, err, apptype.ErrNotFound)
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, apptype.Metadata{})
	require.NoError(t, err)
	newTitle := "Продукты"
	_, err = store.Update(ctx, list.ID, 1, FieldChanges{Title: &newTitle})
	require.NoError(t, err)
	_, err = store.SoftDelete(ctx, list.ID, 1)
	require.NoError(t, err)

	trail, err := store.AuditTrail(ctx, list.ID, 1)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "create", trail[0].Op)
	assert.Nil(t, trail[0].Before)
	assert.NotNil(t, trail[0].After)
	assert.Equal(t, "update", trail[1].Op)
	assert.Equal(t, "soft_delete", trail[2].Op)
	assert.NotNil(t, trail[2].Before)
}

func TestMetadataRoundTripKeepsUnknownKeys(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	meta := apptype.Metadata{Status: apptype.StatusDone, Extra: map[string]any{"color": "red"}}
	list, err := store.Create(ctx, 1, apptype.KindList, "Покупки", "", nil, meta)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, list.ID, 1)
	require.NoError(t, err)
	assert.True(t, got.Meta.Done())
	assert.Equal(t, "red", got.Meta.Extra["color"])
}
