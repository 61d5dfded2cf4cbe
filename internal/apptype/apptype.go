package apptype

import (
	"time"
)

// Kind enumerates the supported entity kinds. Every record in the store is
// one of these; the persistence layer keeps a single physical schema.
type Kind string

const (
	KindList        Kind = "list"
	KindTask        Kind = "task"
	KindNote        Kind = "note"
	KindReminder    Kind = "reminder"
	KindIdea        Kind = "idea"
	KindUserProfile Kind = "user_profile"
)

// ValidKind reports whether k is one of the supported entity kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindList, KindTask, KindNote, KindReminder, KindIdea, KindUserProfile:
		return true
	}
	return false
}

// Metadata is the typed view over the open-ended meta column. Unknown keys
// written by older builds survive round-trips untouched via Extra.
type Metadata struct {
	Deleted      bool   `json:"deleted,omitempty"`
	Status       string `json:"status,omitempty"`
	Archived     bool   `json:"archived,omitempty"`
	ArchivedFrom string `json:"archived_from,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	City         string `json:"city,omitempty"`
	Profession   string `json:"profession,omitempty"`

	Extra map[string]any `json:"-"`
}

const StatusDone = "done"

// Done reports whether the entity carries a completion mark.
func (m Metadata) Done() bool { return m.Status == StatusDone }

// Active reports whether the entity is neither soft-deleted nor archived.
func (m Metadata) Active() bool { return !m.Deleted && !m.Archived }

// IsZero reports whether the metadata carries nothing worth persisting.
func (m Metadata) IsZero() bool {
	return !m.Deleted && m.Status == "" && !m.Archived && m.ArchivedFrom == "" &&
		m.CompletedAt == "" && m.City == "" && m.Profession == "" && len(m.Extra) == 0
}

// Entity is the universal persisted record.
type Entity struct {
	ID        int64     `json:"id"`
	Owner     int64     `json:"owner"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	ParentID  *int64    `json:"parentId,omitempty"`
	Meta      Metadata  `json:"meta,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionKind enumerates the closed action vocabulary extracted from model
// output. Anything else fails validation with UnknownAction.
type ActionKind string

const (
	ActionCreate             ActionKind = "create"
	ActionAddTask            ActionKind = "add_task"
	ActionShowTasks          ActionKind = "show_tasks"
	ActionShowLists          ActionKind = "show_lists"
	ActionShowAllTasks       ActionKind = "show_all_tasks"
	ActionShowCompletedTasks ActionKind = "show_completed_tasks"
	ActionShowDeletedTasks   ActionKind = "show_deleted_tasks"
	ActionSearchEntity       ActionKind = "search_entity"
	ActionRenameList         ActionKind = "rename_list"
	ActionUpdateTask         ActionKind = "update_task"
	ActionMarkDone           ActionKind = "mark_done"
	ActionDeleteTask         ActionKind = "delete_task"
	ActionDeleteList         ActionKind = "delete_list"
	ActionRestoreTask        ActionKind = "restore_task"
	ActionMoveEntity         ActionKind = "move_entity"
	ActionUpdateProfile      ActionKind = "update_profile"
	ActionSay                ActionKind = "say"
	ActionClarify            ActionKind = "clarify"
)

// Mutates reports whether the action kind writes to the store when applied.
func (k ActionKind) Mutates() bool {
	switch k {
	case ActionCreate, ActionAddTask, ActionRenameList, ActionUpdateTask,
		ActionMarkDone, ActionDeleteTask, ActionDeleteList, ActionRestoreTask,
		ActionMoveEntity, ActionUpdateProfile:
		return true
	}
	return false
}

// Conversational reports whether the action carries no store operation at all.
func (k ActionKind) Conversational() bool {
	return k == ActionSay || k == ActionClarify
}

// Action is a single validated user-intent unit. It is transient: built by
// the validator from interpreter output, consumed once by the resolver.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Type is the entity kind for create actions; empty means list.
	Type string `json:"type,omitempty"`

	// Unresolved human-readable references.
	List   string `json:"list,omitempty"`
	ToList string `json:"toList,omitempty"`
	Task   string `json:"task,omitempty"`

	// Kind-specific payload.
	Title      string   `json:"title,omitempty"`
	NewTitle   string   `json:"newTitle,omitempty"`
	ByIndex    int      `json:"byIndex,omitempty"`
	Tasks      []string `json:"tasks,omitempty"`
	Pattern    string   `json:"pattern,omitempty"`
	Text       string   `json:"text,omitempty"`
	Question   string   `json:"question,omitempty"`
	Pending    string   `json:"pending,omitempty"`
	City       string   `json:"city,omitempty"`
	Profession string   `json:"profession,omitempty"`
	Fuzzy      bool     `json:"fuzzy,omitempty"`
}

// ResolutionState is the variant tag of a resolution outcome.
type ResolutionState string

const (
	StateResolved            ResolutionState = "resolved"
	StateAmbiguousMatch      ResolutionState = "ambiguous_match"
	StateNotFound            ResolutionState = "not_found"
	StateClarificationNeeded ResolutionState = "clarification_needed"
)

// Resolution binds an Action's references to concrete entities, or explains
// why it could not. Produced per action; never persisted.
type Resolution struct {
	State  ResolutionState
	Action Action

	// Bound references, populated for StateResolved as applicable.
	List        *Entity
	Target      *Entity
	Destination *Entity

	// CreateList marks an implicit-container decision: the referenced list
	// does not exist and the action kind permits auto-creating it.
	CreateList bool

	// MissingRef names the reference that produced StateNotFound.
	MissingRef string

	// Candidates carries all equally plausible entities for
	// StateAmbiguousMatch so the presentation layer can ask.
	Candidates []Entity
}

// ConversationContext is the per-owner hint block supplied fresh on every
// call. It is optional and may be lost on restart; nothing in the core
// depends on it being long-lived.
type ConversationContext struct {
	LastList      string              `json:"lastList,omitempty"`
	LastAction    string              `json:"lastAction,omitempty"`
	PendingDelete string              `json:"pendingDelete,omitempty"`
	History       []string            `json:"history,omitempty"`
	KindCounts    map[Kind]int        `json:"kindCounts,omitempty"`
	Lists         map[string][]string `json:"lists,omitempty"`
	Profile       map[string]string   `json:"profile,omitempty"`
}

// TurnOutcome classifies what a single action produced.
type TurnOutcome string

const (
	OutcomeApplied       TurnOutcome = "applied"
	OutcomeSay           TurnOutcome = "say"
	OutcomeClarification TurnOutcome = "clarification"
	OutcomeAmbiguous     TurnOutcome = "ambiguous"
	OutcomeNotFound      TurnOutcome = "not_found"
	OutcomeDuplicate     TurnOutcome = "duplicate"
	OutcomeRejected      TurnOutcome = "rejected"
	OutcomeFallback      TurnOutcome = "fallback"
)

// ListRecap is one container with its active children, in creation order.
type ListRecap struct {
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

// TaskRef names a task together with the list it belongs to.
type TaskRef struct {
	ID   int64  `json:"id,omitempty"`
	List string `json:"list"`
	Task string `json:"task"`
}

// TurnResult is the structured handoff to the presentation collaborator:
// which entities changed, the sibling recap for display, and the outcome
// variant. The core never renders user-facing text beyond Text/Question
// passthrough from say/clarify actions.
type TurnResult struct {
	Outcome TurnOutcome `json:"outcome"`
	Action  ActionKind  `json:"action"`

	Changed []Entity    `json:"changed,omitempty"`
	Recap   []ListRecap `json:"recap,omitempty"`
	Tasks   []TaskRef   `json:"tasks,omitempty"`

	// Say/clarify passthrough.
	Text     string `json:"text,omitempty"`
	Question string `json:"question,omitempty"`
	Pending  string `json:"pending,omitempty"`

	// Disambiguation and diagnostics.
	Candidates []string `json:"candidates,omitempty"`
	MissingRef string   `json:"missingRef,omitempty"`
	Detail     string   `json:"detail,omitempty"`

	// Near-duplicate report for create-style actions.
	Duplicate  string  `json:"duplicate,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}
