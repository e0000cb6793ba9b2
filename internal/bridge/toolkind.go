package bridge

import (
	"strings"

	acp "github.com/coder/acp-go-sdk"
)

// toolKindRules maps tool-name fragments to protocol tool kinds. First match
// wins, so order is load-bearing: the think rule sits before the edit rule
// so names like "TodoWrite" classify by intent rather than by the "write"
// fragment.
var toolKindRules = []struct {
	fragments []string
	kind      acp.ToolKind
}{
	{[]string{"read", "view", "get"}, acp.ToolKindRead},
	{[]string{"think", "plan", "todo"}, acp.ToolKindThink},
	{[]string{"write", "create", "update", "edit"}, acp.ToolKindEdit},
	{[]string{"delete", "remove"}, acp.ToolKindDelete},
	{[]string{"move", "rename"}, acp.ToolKindMove},
	{[]string{"search", "find", "grep"}, acp.ToolKindSearch},
	{[]string{"run", "execute", "bash"}, acp.ToolKindExecute},
	{[]string{"fetch", "download", "web"}, acp.ToolKindFetch},
}

// toolKindForName classifies a tool by case-insensitive substring match.
func toolKindForName(name string) acp.ToolKind {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, rule := range toolKindRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(lower, fragment) {
				return rule.kind
			}
		}
	}
	return acp.ToolKindOther
}

// isTaskListTool reports whether the tool maintains the agent's task list,
// which gets the rendered progress report in addition to the tool update.
func isTaskListTool(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "todo") || strings.Contains(lower, "tasklist") || lower == "task_list"
}
