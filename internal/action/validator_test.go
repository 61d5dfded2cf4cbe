package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-assistant/aura-core/internal/apptype"
)

func schemaReason(t *testing.T, err error) *apptype.SchemaViolationError {
	t.Helper()
	var sv *apptype.SchemaViolationError
	require.True(t, errors.As(err, &sv), "expected schema violation, got %v", err)
	return sv
}

func TestValidateCreate(t *testing.T) {
	a, err := Validate(map[string]any{
		"action": "create",
		"type":   "list",
		"title":  "Покупки",
		"tasks":  []any{"Молоко", "Хлеб"},
	})
	require.NoError(t, err)
	assert.Equal(t, apptype.ActionCreate, a.Kind)
	assert.Equal(t, "list", a.Type)
	assert.Equal(t, "Покупки", a.Title)
	assert.Equal(t, []string{"Молоко", "Хлеб"}, a.Tasks)
}

func TestValidateCreateDefaultsToList(t *testing.T) {
	a, err := Validate(map[string]any{"action": "create", "title": "Идеи"})
	require.NoError(t, err)
	assert.Equal(t, "list", a.Type)
}

func TestValidateUnknownAction(t *testing.T) {
	_, err := Validate(map[string]any{"action": "teleport", "list": "Покупки"})
	sv := schemaReason(t, err)
	assert.Equal(t, apptype.ReasonUnknownAction, sv.Reason)
	assert.Equal(t, "teleport", sv.Value)
}

func TestValidateMissingAction(t *testing.T) {
	_, err := Validate(map[string]any{"list": "Покупки"})
	sv := schemaReason(t, err)
	assert.Equal(t, apptype.ReasonUnknownAction, sv.Reason)
}

func TestValidateKindAliasesAction(t *testing.T) {
	a, err := Validate(map[string]any{"kind": "add_task", "list": "Покупки", "task": "Молоко"})
	require.NoError(t, err)
	assert.Equal(t, apptype.ActionAddTask, a.Kind)
	assert.Equal(t, "Покупки", a.List)
	assert.Equal(t, "Молоко", a.Task)
}

func TestValidateActionNameCaseInsensitive(t *testing.T) {
	a, err := Validate(map[string]any{"action": "Add_Task", "list": "Покупки", "task": "Молоко"})
	require.NoError(t, err)
	assert.Equal(t, apptype.ActionAddTask, a.Kind)
}

func TestValidateMissingField(t *testing.T) {
	_, err := Validate(map[string]any{"action": "add_task", "list": "Покупки"})
	sv := schemaReason(t, err)
	assert.Equal(t, apptype.ReasonMissingField, sv.Reason)
	assert.Equal(t, "task|tasks", sv.Field)
}

func TestValidateEmptyField(t *testing.T) {
	_, err := Validate(map[string]any{"action": "delete_list", "list": "   "})
	sv := schemaReason(t, err)
	assert.Equal(t, apptype.ReasonEmptyField, sv.Reason)
	assert.Equal(t, "list", sv.Field)
}

func TestValidateTrimsWhitespace(t *testing.T) {
	a, err := Validate(map[string]any{
		"action": "add_task",
		"list":   "  Покупки ",
		"task":   " Молоко\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "Покупки", a.List)
	assert.Equal(t, "Молоко", a.Task)
}

func TestValidateSynonyms(t *testing.T) {
	for raw, want := range map[string]apptype.ActionKind{
		"create_list": apptype.ActionCreate,
		"done":        apptype.ActionMarkDone,
		"move_task":   apptype.ActionMoveEntity,
		"find":        apptype.ActionSearchEntity,
	} {
		k, ok := CanonicalKind(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, k)
	}
}

func TestValidateUpdateTaskByIndex(t *testing.T) {
	a, err := Validate(map[string]any{
		"action":    "update_task",
		"list":      "Покупки",
		"by_index":  float64(2),
		"new_title": "Кефир",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, a.ByIndex)
	assert.Equal(t, "Кефир", a.NewTitle)
}

func TestValidateBadType(t *testing.T) {
	_, err := Validate(map[string]any{
		"action": "add_task",
		"list":   42,
		"task":   "Молоко",
	})
	sv := schemaReason(t, err)
	assert.Equal(t, apptype.ReasonBadType, sv.Reason)
}

func TestValidateBareStringTasks(t *testing.T) {
	a, err := Validate(map[string]any{
		"action": "add_task",
		"list":   "Покупки",
		"tasks":  "Молоко",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Молоко"}, a.Tasks)
}

func TestValidateNoFieldActions(t *testing.T) {
	for _, name := range []string{"show_lists", "show_all_tasks", "show_completed_tasks", "show_deleted_tasks"} {
		a, err := Validate(map[string]any{"action": name})
		require.NoError(t, err, name)
		assert.Equal(t, apptype.ActionKind(name), a.Kind)
	}
}

func TestValidateAllFailsFast(t *testing.T) {
	_, err := ValidateAll([]map[string]any{
		{"action": "show_lists"},
		{"action": "nonsense"},
	})
	require.Error(t, err)
	assert.True(t, apptype.IsSchemaViolation(err))
}

func TestValidateNeverTouchesStore(t *testing.T) {
	// References to entities that do not exist validate fine; existence is
	// the resolver's concern.
	a, err := Validate(map[string]any{
		"action": "mark_done",
		"list":   "Несуществующий",
		"task":   "Ничто",
	})
	require.NoError(t, err)
	assert.Equal(t, apptype.ActionMarkDone, a.Kind)
}
