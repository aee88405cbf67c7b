package convstream

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nexus-chief/chief/internal/tmux"
)

// Status is a point-in-time read of a tmux pane's agent activity, the Go
// analogue of the original's ClaudeStatus.
type Status struct {
	IsThinking       bool
	ActiveTask       string
	LastTask         string
	ElapsedTime      string
	TokenCount       string
	ContextWarning   bool
	ContextRemaining int
	ContextPercent   int
	Model            string
	CostUSD          float64
}

// StatusProber captures a pane's current activity status. The tmux-backed
// implementation parses CapturePane output the way
// internal/tmux.Driver.IsClaudeRunning inspects pane content; a nil
// *Status return means no status could be determined (pane gone, no
// indicators found).
type StatusProber interface {
	Status(ctx context.Context, pane string) (*Status, error)
}

// TmuxStatusProber implements StatusProber over a live tmux.Driver.
type TmuxStatusProber struct {
	Tmux *tmux.Driver
}

// Status inspects the last lines of pane for thinking/task indicators.
// This is necessarily heuristic: chief has no structured IPC into Claude's
// own process, only what's visible on the terminal.
func (p *TmuxStatusProber) Status(ctx context.Context, pane string) (*Status, error) {
	content, err := p.Tmux.CapturePane(ctx, pane, 20)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(content)
	st := &Status{
		IsThinking: strings.Contains(lower, "thinking") || strings.Contains(content, "✻") || strings.Contains(content, "✢"),
	}
	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "ctx:"); idx >= 0 {
			st.ActiveTask = strings.TrimSpace(line[idx:])
		}
	}
	return st, nil
}

// loadTasks mirrors the original's TASKS_DIR/TODOS_DIR lookup order: the
// newer per-session directory of individual JSON files first, falling
// back to the legacy single JSON-array file.
func loadTasks(claudeSessionID, sessionID string) []Task {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	tasksDir := filepath.Join(home, ".claude", "tasks")
	if claudeSessionID != "" {
		dir := filepath.Join(tasksDir, claudeSessionID)
		if entries, err := os.ReadDir(dir); err == nil {
			var names []string
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".json") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			var tasks []Task
			for _, name := range names {
				data, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					continue
				}
				var item map[string]any
				if err := json.Unmarshal(data, &item); err != nil {
					continue
				}
				tasks = append(tasks, taskFromNewFormat(item, strings.TrimSuffix(name, ".json")))
			}
			if len(tasks) > 0 {
				return tasks
			}
		}
	}

	todosDir := filepath.Join(home, ".claude", "todos")
	ids := []string{}
	if claudeSessionID != "" {
		ids = append(ids, claudeSessionID)
	}
	if sessionID != "" {
		ids = append(ids, sessionID)
	}
	for _, sid := range ids {
		for _, pattern := range []string{sid + "-agent-" + sid + ".json", "agent-" + sid + ".json", sid + ".json"} {
			data, err := os.ReadFile(filepath.Join(todosDir, pattern))
			if err != nil {
				continue
			}
			var items []map[string]any
			if err := json.Unmarshal(data, &items); err != nil {
				continue
			}
			var tasks []Task
			for i, item := range items {
				tasks = append(tasks, taskFromLegacyFormat(item, i))
			}
			if len(tasks) > 0 {
				return tasks
			}
		}
	}
	return nil
}

func taskFromNewFormat(item map[string]any, fallbackID string) Task {
	id, _ := item["id"].(string)
	if id == "" {
		id = fallbackID
	}
	subject, _ := item["subject"].(string)
	content, _ := item["content"].(string)
	if content == "" {
		content = subject
	}
	status, _ := item["status"].(string)
	if status == "" {
		status = "pending"
	}
	activeForm, _ := item["activeForm"].(string)
	description, _ := item["description"].(string)
	var blockedBy []string
	if raw, ok := item["blockedBy"].([]any); ok {
		for _, b := range raw {
			if s, ok := b.(string); ok {
				blockedBy = append(blockedBy, s)
			}
		}
	}
	return Task{ID: id, Content: content, Subject: subject, Description: description, Status: status, ActiveForm: activeForm, BlockedBy: blockedBy}
}

func taskFromLegacyFormat(item map[string]any, index int) Task {
	content, _ := item["content"].(string)
	status, _ := item["status"].(string)
	if status == "" {
		status = "pending"
	}
	activeForm, _ := item["activeForm"].(string)
	return Task{ID: strconv.Itoa(index + 1), Content: content, Subject: content, Status: status, ActiveForm: activeForm}
}

func tasksEqual(a, b []Task) bool {
	if len(a) != len(b) {
		return false
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}
