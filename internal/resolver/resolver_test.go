package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/database"
)

var testDBCounter atomic.Int64

func setupResolver(t *testing.T) (*Resolver, *database.Store) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("file:resolver_%s_%d?mode=memory&cache=shared", name, testDBCounter.Add(1))
	store, err := database.NewStore(&database.Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func mustCreate(t *testing.T, store *database.Store, owner int64, kind apptype.Kind, title string, parent *int64) *apptype.Entity {
	t.Helper()
	e, err := store.Create(context.Background(), owner, kind, title, "", parent, apptype.Metadata{})
	require.NoError(t, err)
	return e
}

func TestResolveExactBeatsFuzzy(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	// Two lists that normalize identically apart from case and trailing
	// space: an exact case-insensitive hit must win without ambiguity.
	exact := mustCreate(t, store, 1, apptype.KindList, "Работа", nil)
	mustCreate(t, store, 1, apptype.KindList, "работа важная", nil)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "Работа"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, exact.ID, res.List.ID)
}

func TestResolveCaseVariantsStayDistinct(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	// The owner keeps both case variants; a reference matching one of them
	// byte for byte settles at the strictest tier instead of turning the
	// pair into an ambiguity at the case-folded one.
	upper := mustCreate(t, store, 1, apptype.KindList, "Работа", nil)
	lower := mustCreate(t, store, 1, apptype.KindList, "работа ", nil)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "Работа"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, upper.ID, res.List.ID)

	res, err = r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "работа"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, lower.ID, res.List.ID)

	// A reference matching neither variant exactly still folds into both.
	res, err = r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "РАБОТА"})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateAmbiguousMatch, res.State)
	assert.Len(t, res.Candidates, 2)
}

func TestResolveNormalizedTier(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	list := mustCreate(t, store, 1, apptype.KindList, "Работа ", nil)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "работа"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, list.ID, res.List.ID)
}

func TestResolveContainmentRequiresUniqueness(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	mustCreate(t, store, 1, apptype.KindList, "Покупки на неделю", nil)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "покупки"})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateResolved, res.State)

	// A second containment hit makes the same reference ambiguous.
	mustCreate(t, store, 1, apptype.KindList, "Покупки к празднику", nil)
	res, err = r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "покупки"})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateAmbiguousMatch, res.State)
	assert.Len(t, res.Candidates, 2)
}

func TestResolveNotFoundForQueries(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	mustCreate(t, store, 1, apptype.KindList, "Работа", nil)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionShowTasks, List: "Спорт"})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateNotFound, res.State)
	assert.Equal(t, "Спорт", res.MissingRef)
}

func TestResolveAddTaskFlagsImplicitCreation(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionAddTask, List: "Покупки", Task: "Молоко"})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateResolved, res.State)
	assert.True(t, res.CreateList)
	assert.Nil(t, res.List)
}

func TestResolveTaskWithinList(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	list := mustCreate(t, store, 1, apptype.KindList, "Покупки", nil)
	task := mustCreate(t, store, 1, apptype.KindTask, "Молоко", &list.ID)
	other := mustCreate(t, store, 1, apptype.KindList, "Дом", nil)
	mustCreate(t, store, 1, apptype.KindTask, "Молоко", &other.ID)

	// Scoping to the list keeps the same-titled task elsewhere out.
	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionMarkDone, List: "Покупки", Task: "молоко"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, task.ID, res.Target.ID)
}

func TestResolveMoveAcrossLists(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	work := mustCreate(t, store, 1, apptype.KindList, "Работа", nil)
	tuesday := mustCreate(t, store, 1, apptype.KindList, "Вторник", nil)
	report := mustCreate(t, store, 1, apptype.KindTask, "Отчёт", &work.ID)

	res, err := r.Resolve(ctx, 1, apptype.Action{
		Kind: apptype.ActionMoveEntity, Task: "Отчёт", List: "Работа", ToList: "Вторник",
	})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, report.ID, res.Target.ID)
	assert.Equal(t, tuesday.ID, res.Destination.ID)
}

func TestResolveMoveWithoutSourceList(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	work := mustCreate(t, store, 1, apptype.KindList, "Работа", nil)
	mustCreate(t, store, 1, apptype.KindList, "Вторник", nil)
	report := mustCreate(t, store, 1, apptype.KindTask, "Отчёт", &work.ID)

	res, err := r.Resolve(ctx, 1, apptype.Action{
		Kind: apptype.ActionMoveEntity, Task: "отчёт", ToList: "Вторник",
	})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, report.ID, res.Target.ID)
}

func TestResolveMoveMissingDestinationIsNotFound(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	work := mustCreate(t, store, 1, apptype.KindList, "Работа", nil)
	mustCreate(t, store, 1, apptype.KindTask, "Отчёт", &work.ID)

	// Moving never creates the destination implicitly.
	res, err := r.Resolve(ctx, 1, apptype.Action{
		Kind: apptype.ActionMoveEntity, Task: "Отчёт", List: "Работа", ToList: "Среда",
	})
	require.NoError(t, err)
	assert.Equal(t, apptype.StateNotFound, res.State)
	assert.Equal(t, "Среда", res.MissingRef)
	assert.False(t, res.CreateList)
}

func TestResolveMoveFallsBackToListTarget(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	archive := mustCreate(t, store, 1, apptype.KindList, "Архив", nil)
	projects := mustCreate(t, store, 1, apptype.KindList, "Проекты", nil)

	// No task is titled "Архив", so the reference binds the list itself.
	res, err := r.Resolve(ctx, 1, apptype.Action{
		Kind: apptype.ActionMoveEntity, Task: "Архив", ToList: "Проекты",
	})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, archive.ID, res.Target.ID)
	assert.Equal(t, projects.ID, res.Destination.ID)
}

func TestResolveMoveRejectsCyclicDestination(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	mustCreate(t, store, 1, apptype.KindList, "Работа", nil)

	// Moving an entity into itself must be caught here, before any write.
	_, err := r.Resolve(ctx, 1, apptype.Action{
		Kind: apptype.ActionMoveEntity, Task: "Работа", ToList: "Работа",
	})
	require.ErrorIs(t, err, apptype.ErrCycleDetected)
}

func TestResolveRestoreSearchesDeletedTasks(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	list := mustCreate(t, store, 1, apptype.KindList, "Покупки", nil)
	task := mustCreate(t, store, 1, apptype.KindTask, "Молоко", &list.ID)
	_, err := store.SoftDelete(ctx, task.ID, 1)
	require.NoError(t, err)

	res, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionRestoreTask, Task: "Молоко"})
	require.NoError(t, err)
	require.Equal(t, apptype.StateResolved, res.State)
	assert.Equal(t, task.ID, res.Target.ID)
}

func TestResolveIsReadOnly(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, 1, apptype.Action{Kind: apptype.ActionAddTask, List: "Покупки", Task: "Молоко"})
	require.NoError(t, err)

	// Resolution flagged creation but did not perform it.
	lists, err := store.Roots(ctx, 1, apptype.KindList, database.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, lists)
}

func TestFindSimilarList(t *testing.T) {
	r, store := setupResolver(t)
	ctx := context.Background()

	mustCreate(t, store, 1, apptype.KindList, "Покупки", nil)

	similar, score, err := r.FindSimilarList(ctx, 1, "Список покупок")
	require.NoError(t, err)
	require.NotNil(t, similar)
	assert.Equal(t, "Покупки", similar.Title)
	assert.GreaterOrEqual(t, score, similarityThreshold)

	none, _, err := r.FindSimilarList(ctx, 1, "Спорт")
	require.NoError(t, err)
	assert.Nil(t, none)
}
