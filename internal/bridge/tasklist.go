package bridge

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/softkr/zed-claude-acp/internal/i18n"
)

// Task item statuses as the task-list tool reports them.
const (
	taskStatusCompleted  = "completed"
	taskStatusInProgress = "in_progress"
	taskStatusPending    = "pending"
)

type taskItem struct {
	Content string
	Status  string
}

// parseTaskItems extracts the item list from a task-list tool's input.
func parseTaskItems(input map[string]any) []taskItem {
	raw := sliceParam(input, "todos")
	if raw == nil {
		raw = sliceParam(input, "tasks")
	}
	items := make([]taskItem, 0, len(raw))
	for _, entry := range raw {
		fields := mapValue(entry)
		if fields == nil {
			continue
		}
		content := stringParam(fields, "content")
		if content == "" {
			content = stringParam(fields, "activeForm")
		}
		if content == "" {
			continue
		}
		status := stringParam(fields, "status")
		if status == "" {
			status = taskStatusPending
		}
		items = append(items, taskItem{Content: content, Status: status})
	}
	return items
}

var (
	taskReportBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 1)
	taskTitleStyle = lipgloss.NewStyle().Bold(true)
)

const taskBarWidth = 20

// renderTaskReport formats the bordered progress block: a title with counts,
// a proportional bar, and one line per item with a status glyph. Purely
// presentational; it never touches session state.
func renderTaskReport(loc *i18n.Localizer, items []taskItem) string {
	if len(items) == 0 {
		return ""
	}

	var completed, inProgress, pending int
	for _, item := range items {
		switch item.Status {
		case taskStatusCompleted:
			completed++
		case taskStatusInProgress:
			inProgress++
		default:
			pending++
		}
	}

	filled := taskBarWidth * completed / len(items)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", taskBarWidth-filled)

	var sb strings.Builder
	title := fmt.Sprintf("%s %d/%d", loc.Render(i18n.MsgTaskReportTitle, nil), completed, len(items))
	sb.WriteString(taskTitleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(bar)
	sb.WriteString("\n")
	for _, item := range items {
		sb.WriteString(taskGlyph(item.Status))
		sb.WriteString(" ")
		sb.WriteString(item.Content)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("%s %d · %s %d · %s %d",
		loc.Render(i18n.MsgTaskCompleted, nil), completed,
		loc.Render(i18n.MsgTaskInProgress, nil), inProgress,
		loc.Render(i18n.MsgTaskPending, nil), pending,
	))

	return taskReportBorder.Render(sb.String())
}

func taskGlyph(status string) string {
	switch status {
	case taskStatusCompleted:
		return "✓"
	case taskStatusInProgress:
		return "▸"
	default:
		return "○"
	}
}
