// Package action defines the closed action vocabulary and validates raw
// model output against it. Validation is pure: it never touches the store
// or resolves references, it only checks shape.
package action

import (
	"strings"

	"github.com/aura-assistant/aura-core/internal/apptype"
)

// synonyms canonicalizes near-miss action names the model tends to emit.
// Anything not in this table and not already canonical is UnknownAction.
var synonyms = map[string]apptype.ActionKind{
	"create_list":    apptype.ActionCreate,
	"new_list":       apptype.ActionCreate,
	"add":            apptype.ActionAddTask,
	"add_tasks":      apptype.ActionAddTask,
	"list_tasks":     apptype.ActionShowTasks,
	"list_lists":     apptype.ActionShowLists,
	"done":           apptype.ActionMarkDone,
	"complete_task":  apptype.ActionMarkDone,
	"remove_task":    apptype.ActionDeleteTask,
	"remove_list":    apptype.ActionDeleteList,
	"move_task":      apptype.ActionMoveEntity,
	"move":           apptype.ActionMoveEntity,
	"search":         apptype.ActionSearchEntity,
	"find":           apptype.ActionSearchEntity,
	"rename":         apptype.ActionRenameList,
	"edit_task":      apptype.ActionUpdateTask,
	"restore":        apptype.ActionRestoreTask,
	"ask":            apptype.ActionClarify,
	"respond":        apptype.ActionSay,
	"answer":         apptype.ActionSay,
	"show_completed": apptype.ActionShowCompletedTasks,
	"show_deleted":   apptype.ActionShowDeletedTasks,
}

// canonical maps every canonical kind to itself for O(1) membership.
var canonical = map[string]apptype.ActionKind{}

func init() {
	for _, k := range []apptype.ActionKind{
		apptype.ActionCreate,
		apptype.ActionAddTask,
		apptype.ActionShowTasks,
		apptype.ActionShowLists,
		apptype.ActionShowAllTasks,
		apptype.ActionShowCompletedTasks,
		apptype.ActionShowDeletedTasks,
		apptype.ActionSearchEntity,
		apptype.ActionRenameList,
		apptype.ActionUpdateTask,
		apptype.ActionMarkDone,
		apptype.ActionDeleteTask,
		apptype.ActionDeleteList,
		apptype.ActionRestoreTask,
		apptype.ActionMoveEntity,
		apptype.ActionUpdateProfile,
		apptype.ActionSay,
		apptype.ActionClarify,
	} {
		canonical[string(k)] = k
	}
}

// CanonicalKind resolves a raw action name to its canonical kind. Lookup
// is case-insensitive since models occasionally capitalize action names.
func CanonicalKind(name string) (apptype.ActionKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if k, ok := canonical[name]; ok {
		return k, true
	}
	if k, ok := synonyms[name]; ok {
		return k, true
	}
	return "", false
}

// fieldSpec declares per-kind field requirements. required fields must be
// present and non-empty; oneOf groups need at least one member present.
type fieldSpec struct {
	required []string
	oneOf    [][]string
}

var fieldSpecs = map[apptype.ActionKind]fieldSpec{
	apptype.ActionCreate:        {required: []string{"title"}},
	apptype.ActionAddTask:       {required: []string{"list"}, oneOf: [][]string{{"task", "tasks"}}},
	apptype.ActionShowTasks:     {required: []string{"list"}},
	apptype.ActionSearchEntity:  {required: []string{"pattern"}},
	apptype.ActionRenameList:    {required: []string{"list", "new_title"}},
	apptype.ActionUpdateTask:    {required: []string{"list", "new_title"}, oneOf: [][]string{{"title", "by_index"}}},
	apptype.ActionMarkDone:      {required: []string{"list", "task"}},
	apptype.ActionDeleteTask:    {required: []string{"list", "task"}},
	apptype.ActionDeleteList:    {required: []string{"list"}},
	apptype.ActionRestoreTask:   {required: []string{"task"}},
	apptype.ActionMoveEntity:    {required: []string{"task", "to_list"}},
	apptype.ActionUpdateProfile: {oneOf: [][]string{{"city", "profession"}}},
	apptype.ActionSay:           {required: []string{"text"}},
	apptype.ActionClarify:       {required: []string{"question"}},
	// show_lists, show_all_tasks, show_completed_tasks, show_deleted_tasks
	// carry no fields.
}
