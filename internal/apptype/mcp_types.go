package apptype

// Tool argument and result payloads for the MCP surface. Owner defaults to
// 0 when the caller serves a single user.

// ProcessUtteranceArgs drives the full interpret-validate-resolve-apply
// pipeline for one utterance.
type ProcessUtteranceArgs struct {
	OwnerID   int64  `json:"owner_id,omitempty"`
	Utterance string `json:"utterance"`
	// Optional conversational hints; the server merges them with the
	// stored lists and profile.
	LastList      string   `json:"last_list,omitempty"`
	PendingDelete string   `json:"pending_delete,omitempty"`
	History       []string `json:"history,omitempty"`
}

// ProcessUtteranceResult carries one result per extracted action.
type ProcessUtteranceResult struct {
	Results []TurnResult `json:"results"`
}

// ShowListsArgs requests the full overview of active lists.
type ShowListsArgs struct {
	OwnerID int64 `json:"owner_id,omitempty"`
}

// OverviewResult is the structured overview payload.
type OverviewResult struct {
	Lists []ListRecap `json:"lists"`
}

// ShowTasksArgs requests the tasks of one list by title.
type ShowTasksArgs struct {
	OwnerID int64  `json:"owner_id,omitempty"`
	List    string `json:"list"`
}

// SearchTasksArgs finds active tasks by substring.
type SearchTasksArgs struct {
	OwnerID int64  `json:"owner_id,omitempty"`
	Pattern string `json:"pattern"`
}

// TaskListingArgs requests completed or deleted task history.
type TaskListingArgs struct {
	OwnerID int64 `json:"owner_id,omitempty"`
}

// TaskListingResult is a flat task listing with list attribution.
type TaskListingResult struct {
	Tasks []TaskRef `json:"tasks"`
}

// AuditTrailArgs requests the mutation history of one entity.
type AuditTrailArgs struct {
	OwnerID  int64 `json:"owner_id,omitempty"`
	EntityID int64 `json:"entity_id"`
}

// HealthArgs requests a server health probe.
type HealthArgs struct{}
