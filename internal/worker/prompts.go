package worker

import (
	"encoding/json"
	"fmt"
)

// PromptTemplate renders a worker's params into its initial prompt.
type PromptTemplate func(workerID string, params json.RawMessage) string

// templates is the task_type → prompt-template catalog referenced by
// spec.md §4.7 step 2. It starts with the built-in task types below, and
// RegisterTemplate adds or overrides entries at runtime. BuildPrompt reads
// no prompt files: a task type missing here gets the generic template.
var templates = map[string]PromptTemplate{
	"generic": func(workerID string, params json.RawMessage) string {
		return fmt.Sprintf("You are worker %s. Task parameters:\n\n%s\n\nWhen finished, call report(worker_id=%q, ...).", workerID, string(params), workerID)
	},
	"research": func(workerID string, params json.RawMessage) string {
		return fmt.Sprintf("You are research worker %s. Investigate the following and report findings:\n\n%s\n\nCall report(worker_id=%q, status=\"complete\", summary=..., body=...) with your findings.", workerID, string(params), workerID)
	},
	"followup": func(workerID string, params json.RawMessage) string {
		return fmt.Sprintf("You are a follow-up worker %s, continuing prior work. Context:\n\n%s\n\nCall report(worker_id=%q, ...) when done.", workerID, string(params), workerID)
	},
}

// RegisterTemplate adds or overrides a task_type's prompt template —
// installed apps use this to extend the catalog beyond the built-ins.
func RegisterTemplate(taskType string, tpl PromptTemplate) {
	templates[taskType] = tpl
}

// BuildPrompt renders the prompt for a worker's task_type, falling back to
// the generic template for an unknown type rather than failing the run.
func BuildPrompt(workerID, taskType string, params json.RawMessage) string {
	tpl, ok := templates[taskType]
	if !ok {
		tpl = templates["generic"]
	}
	return tpl(workerID, params)
}
