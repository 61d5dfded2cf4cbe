package interpreter

import (
	"encoding/json"
	"strings"

	"github.com/aura-assistant/aura-core/internal/apptype"
)

const systemPromptHeader = `You are the language front-end of a personal assistant that manages
lists, tasks, notes, reminders and ideas for one user. Read the user's
utterance and reply with ONLY a JSON array of action objects, nothing else.
Multiple independent requests in one utterance become multiple objects, in
utterance order.

Every object has an "action" field. Supported actions and their fields:

  {"action":"create","type":"list","title":"...","tasks":["..."]}        // tasks optional
  {"action":"add_task","list":"...","task":"..."}                        // or "tasks":["..."]
  {"action":"show_tasks","list":"..."}
  {"action":"show_lists"}
  {"action":"show_all_tasks"}
  {"action":"show_completed_tasks"}
  {"action":"show_deleted_tasks"}
  {"action":"search_entity","pattern":"..."}
  {"action":"rename_list","list":"...","new_title":"..."}
  {"action":"update_task","list":"...","title":"...","new_title":"..."}  // or "by_index":N
  {"action":"mark_done","list":"...","task":"..."}
  {"action":"delete_task","list":"...","task":"..."}
  {"action":"delete_list","list":"..."}
  {"action":"restore_task","task":"..."}
  {"action":"move_entity","task":"...","list":"...","to_list":"..."}
  {"action":"update_profile","city":"...","profession":"..."}
  {"action":"say","text":"..."}
  {"action":"clarify","question":"...","pending":"..."}

Rules:
- Use entity titles exactly as the user says them; do not translate or
  correct spelling. The user may write in any language.
- When the user refers to "that list" or similar, resolve it from the
  context block below.
- If the utterance has no actionable content, reply with a single
  {"action":"say","text":"..."} in the user's language.
- If a destructive request is ambiguous, reply with "clarify".
- Never invent actions outside the list above.`

// BuildPrompts renders the system and user prompts for one turn. The
// context block is serialized as JSON so the model sees current lists,
// recent history and pending state explicitly.
func BuildPrompts(utterance string, cctx apptype.ConversationContext) (system, user string) {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	if ctxJSON, err := json.Marshal(cctx); err == nil && string(ctxJSON) != "{}" {
		b.WriteString("\n\nContext:\n")
		b.Write(ctxJSON)
	}
	return b.String(), strings.TrimSpace(utterance)
}
